package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/orq/internal/convert"
	"github.com/roach88/orq/internal/model"
	"github.com/roach88/orq/internal/querydoc"
	"github.com/roach88/orq/internal/querysql"
	"github.com/roach88/orq/internal/store"
	"github.com/roach88/orq/internal/testutil"
	"github.com/roach88/orq/internal/translate"
)

// Harness holds what a scenario run shares across dialects.
type Harness struct {
	model  *model.Model
	built  *querydoc.Built
	values []any
	logger *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Load the model and build the query document
//  2. Translate the query for every built-in dialect
//  3. If assertions need it, execute the SQLite command in a fresh
//     in-memory database
//  4. Evaluate assertions
//
// Run returns an error when the scenario itself cannot be set up; failed
// translations and executions are part of the result.
func Run(scenario *Scenario) (*Result, error) {
	m, err := loadModel(scenario.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to load model: %w", err)
	}

	src, err := yaml.Marshal(&scenario.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to encode query: %w", err)
	}
	doc, err := querydoc.Decode(src)
	if err != nil {
		return nil, fmt.Errorf("failed to decode query: %w", err)
	}
	built, err := doc.Build(m)
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	// Missing values only matter when a dialect inlines them or the
	// command is executed.
	values, valuesErr := built.Values(scenario.Args)
	h := &Harness{
		model:  m,
		built:  built,
		values: values,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}

	result := NewResult()
	commands := make(map[string]*translate.Command)
	for _, name := range querysql.Names() {
		cmd, rec := h.translate(name)
		result.Commands[name] = rec
		if cmd != nil {
			commands[name] = cmd
		}
	}

	if scenario.executes() {
		result.Executed = true
		ctx := context.Background()
		if valuesErr != nil {
			result.ExecError = valuesErr.Error()
		} else if cmd, ok := commands["sqlite"]; !ok {
			result.ExecError = "no sqlite command: " + result.Commands["sqlite"].Error
		} else if err := h.execute(ctx, scenario, cmd, result); err != nil {
			result.ExecError = err.Error()
		}
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// loadModel loads and resolves the model in dir, or the library fixture.
func loadModel(dir string) (*model.Model, error) {
	if dir == "" {
		return testutil.NewLibrary()
	}
	m, err := model.Load(dir)
	if err != nil {
		return nil, err
	}
	if err := m.Resolve(convert.NewRegistry()); err != nil {
		return nil, err
	}
	return m, nil
}

// translate translates the scenario query for one dialect.
func (h *Harness) translate(name string) (*translate.Command, *CommandRecord) {
	d, err := querysql.Lookup(name)
	if err != nil {
		return nil, &CommandRecord{Error: err.Error()}
	}
	tr := translate.New(h.model, d, translate.WithLogger(h.logger))

	var cmd *translate.Command
	if h.built.Mutation != nil {
		cmd, err = tr.TranslateMutation(h.built.Query, *h.built.Mutation, h.values...)
	} else {
		cmd, err = tr.Translate(h.built.Query, h.values...)
	}
	if err != nil {
		rec := &CommandRecord{Error: err.Error()}
		var te *translate.Error
		if errors.As(err, &te) {
			rec.ErrorKind = string(te.Kind)
		}
		return nil, rec
	}
	return cmd, &CommandRecord{
		Kind:       string(cmd.Kind),
		Template:   cmd.Template,
		Parameters: len(cmd.Parameters),
		Cacheable:  cmd.Cacheable,
	}
}

// execute runs the SQLite command against a fresh in-memory database.
func (h *Harness) execute(ctx context.Context, scenario *Scenario, cmd *translate.Command, result *Result) error {
	st, err := store.Open("sqlite", ":memory:")
	if err != nil {
		return fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()
	st.WithLogger(h.logger)

	scripts := []string{testutil.LibrarySchema, testutil.LibraryData}
	if len(scenario.Setup) > 0 || scenario.Model != "" {
		scripts = scripts[:0]
		for _, path := range scenario.Setup {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read setup script: %w", err)
			}
			scripts = append(scripts, string(data))
		}
	}
	for _, script := range scripts {
		if err := st.ExecScript(ctx, script); err != nil {
			return fmt.Errorf("setup: %w", err)
		}
	}

	if cmd.Kind != translate.KindSelect {
		result.Affected, err = st.Exec(ctx, cmd, h.values...)
		return err
	}
	rows, err := st.Query(ctx, cmd, h.values...)
	if err != nil {
		return err
	}
	result.Rows, err = normalize(rows)
	return err
}

// normalize converts v to plain JSON values so that results compare
// independently of Go types.
func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
