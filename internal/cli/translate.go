package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/orq/internal/translate"
)

// TranslateOptions holds flags for the translate command.
type TranslateOptions struct {
	*RootOptions
	Args map[string]string // argument value overrides
}

// TranslateResult is the JSON form of a translated command.
type TranslateResult struct {
	Kind       string          `json:"kind"`
	Dialect    string          `json:"dialect"`
	Template   string          `json:"template"`
	SQL        string          `json:"sql"`
	Parameters []ParameterInfo `json:"parameters"`
	Cacheable  bool            `json:"cacheable"`
	Shape      string          `json:"shape"`
	Values     []any           `json:"values,omitempty"`
}

// ParameterInfo describes one bound parameter.
type ParameterInfo struct {
	Name     string `json:"name"`
	Position int    `json:"position"`
	Type     string `json:"type"`
}

// NewTranslateCommand creates the translate command.
func NewTranslateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TranslateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "translate <query.yaml>",
		Short: "Translate a query document to SQL",
		Long: `Translate a YAML query document into a SQL command for the configured
dialect and print its template, parameters and shape.

Argument values are only needed when the dialect cannot bind a list
argument and the values are inlined; the command is then reported as
not cacheable.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranslate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringToStringVarP(&opts.Args, "arg", "a", nil, "argument value (name=value, lists comma separated)")

	return cmd
}

func runTranslate(opts *TranslateOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	ws, err := loadWorkspace(opts.RootOptions, formatter, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	built, err := ws.loadQuery(path, formatter)
	if err != nil {
		return err
	}

	values, err := built.Values(opts.Args)
	if err != nil {
		formatter.VerboseLog("Translating without argument values: %v", err)
		values = nil
	}

	command, err := ws.translate(built, values, formatter)
	if err != nil {
		return err
	}

	result, err := describe(command)
	if err != nil {
		return formatter.fail(ExitFailure, ErrCodeTranslation, err)
	}
	if values != nil {
		result.Values, err = command.Bind(values...)
		if err != nil {
			return formatter.fail(ExitCommandError, ErrCodeArguments, err)
		}
	}
	return outputTranslateSuccess(formatter, result)
}

// describe summarizes a command for output.
func describe(c *translate.Command) (*TranslateResult, error) {
	text, err := c.SQL()
	if err != nil {
		return nil, err
	}
	params := make([]ParameterInfo, len(c.Parameters))
	for i, p := range c.Parameters {
		params[i] = ParameterInfo{Name: p.Name, Position: p.Position, Type: fmt.Sprint(p.Type)}
	}
	return &TranslateResult{
		Kind:       string(c.Kind),
		Dialect:    c.Dialect,
		Template:   c.Template,
		SQL:        text,
		Parameters: params,
		Cacheable:  c.Cacheable,
		Shape:      c.Shape,
	}, nil
}

func outputTranslateSuccess(f *OutputFormatter, r *TranslateResult) error {
	if f.Format == "json" {
		return f.Success(r)
	}

	f.Check("Translated %s command for %s", r.Kind, r.Dialect)
	fmt.Fprintln(f.Writer)
	fmt.Fprintln(f.Writer, r.SQL)
	fmt.Fprintln(f.Writer)
	for _, p := range r.Parameters {
		f.Field(fmt.Sprintf("  %s", p.Name), p.Type)
	}
	for i, v := range r.Values {
		f.Field(fmt.Sprintf("  value %d", i), v)
	}
	f.Field("Cacheable", r.Cacheable)
	f.Field("Shape", r.Shape)
	return nil
}
