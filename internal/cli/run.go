package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/orq/internal/store"
	"github.com/roach88/orq/internal/translate"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	DatabasePath string            // DSN, overrides the configuration
	Setup        string            // SQL script run before the query
	Args         map[string]string // argument value overrides
}

// RunResult is the JSON form of an executed command.
type RunResult struct {
	Kind     string `json:"kind"`
	SQL      string `json:"sql"`
	Result   any    `json:"result,omitempty"`
	Affected int64  `json:"affected"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <query.yaml>",
		Short: "Translate and execute a query document",
		Long: `Translate a YAML query document and execute it against a database.

SELECT commands print their result; UPDATE, INSERT and DELETE commands
print the number of affected rows. Only sqlite, postgres and mysql
databases can be opened.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DatabasePath, "db", "", "database DSN (overrides config)")
	cmd.Flags().StringVar(&opts.Setup, "setup", "", "SQL script to run first")
	cmd.Flags().StringToStringVarP(&opts.Args, "arg", "a", nil, "argument value (name=value, lists comma separated)")

	return cmd
}

func runRun(ctx context.Context, opts *RunOptions, path string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := opts.formatter(cmd)

	ws, err := loadWorkspace(opts.RootOptions, formatter, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	dsn := opts.DatabasePath
	if dsn == "" {
		dsn = ws.config.Database
	}
	if dsn == "" {
		return formatter.fail(ExitCommandError, ErrCodeDatabase, errors.New("no database: use --db or set database in the configuration"))
	}

	built, err := ws.loadQuery(path, formatter)
	if err != nil {
		return err
	}
	values, err := built.Values(opts.Args)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeArguments, err)
	}
	command, err := ws.translate(built, values, formatter)
	if err != nil {
		return err
	}
	text, err := command.SQL()
	if err != nil {
		return formatter.fail(ExitFailure, ErrCodeTranslation, err)
	}
	formatter.VerboseLog("SQL: %s", text)

	db, err := store.Open(command.Dialect, dsn)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeDatabase, err)
	}
	defer db.Close()
	db.WithLogger(ws.config.Logger(cmd.ErrOrStderr()))

	if opts.Setup != "" {
		script, err := os.ReadFile(opts.Setup)
		if err != nil {
			return formatter.fail(ExitCommandError, ErrCodeDatabase, err)
		}
		if err := db.ExecScript(ctx, string(script)); err != nil {
			return formatter.fail(ExitFailure, ErrCodeDatabase, err)
		}
	}

	result := &RunResult{Kind: string(command.Kind), SQL: text}
	if command.Kind == translate.KindSelect {
		result.Result, err = db.Query(ctx, command, values...)
	} else {
		result.Affected, err = db.Exec(ctx, command, values...)
	}
	if err != nil {
		return formatter.fail(ExitFailure, ErrCodeDatabase, err)
	}
	return outputRunSuccess(formatter, result)
}

func outputRunSuccess(f *OutputFormatter, r *RunResult) error {
	if f.Format == "json" {
		return f.Success(r)
	}

	if r.Kind != string(translate.KindSelect) {
		f.Check("%s affected %d row(s)", r.Kind, r.Affected)
		return nil
	}
	rows, ok := r.Result.([]any)
	if !ok {
		f.Check("Result: %v", r.Result)
		return nil
	}
	f.Check("%d row(s)", len(rows))
	for _, row := range rows {
		fmt.Fprintf(f.Writer, "  %v\n", row)
	}
	return nil
}
