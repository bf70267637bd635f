package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/roach88/orq/internal/config"
	"github.com/roach88/orq/internal/convert"
	"github.com/roach88/orq/internal/model"
	"github.com/roach88/orq/internal/querydoc"
	"github.com/roach88/orq/internal/translate"
)

// workspace is what every command loads before it runs: the configuration,
// the resolved model and a translator for the selected dialect.
type workspace struct {
	config     *config.Config
	model      *model.Model
	translator *translate.Translator
}

// loadWorkspace reads the configuration, applies flag overrides and loads
// the model. Log output of the translator goes to logs.
func loadWorkspace(opts *RootOptions, f *OutputFormatter, logs io.Writer) (*workspace, error) {
	cfg := config.Default()
	if opts.Config != "" {
		var err error
		cfg, err = config.Load(opts.Config)
		if err != nil {
			return nil, f.fail(ExitCommandError, ErrCodeConfig, err)
		}
		f.VerboseLog("Loaded configuration %s", opts.Config)
	}
	if opts.Dialect != "" {
		cfg.Dialect = opts.Dialect
	}
	if opts.Model != "" {
		cfg.Model = opts.Model
	}

	dialect, err := cfg.SQLDialect()
	if err != nil {
		return nil, f.fail(ExitCommandError, ErrCodeConfig, err)
	}
	if cfg.Model == "" {
		return nil, f.fail(ExitCommandError, ErrCodeModel, errors.New("no model directory: use --model or set model in the configuration"))
	}

	m, err := model.Load(cfg.Model)
	if err != nil {
		return nil, f.fail(ExitCommandError, ErrCodeModel, err)
	}
	if err := m.Resolve(convert.NewRegistry()); err != nil {
		return nil, f.fail(ExitCommandError, ErrCodeModel, err)
	}
	f.VerboseLog("Loaded %d entities from %s", len(m.Names()), cfg.Model)

	tr := translate.New(m, dialect, cfg.Options(cfg.Logger(logs))...)
	return &workspace{config: cfg, model: m, translator: tr}, nil
}

// loadQuery decodes and builds a query document against the model.
func (w *workspace) loadQuery(path string, f *OutputFormatter) (*querydoc.Built, error) {
	doc, err := querydoc.Load(path)
	if err != nil {
		return nil, f.fail(ExitCommandError, ErrCodeDocument, err)
	}
	built, err := doc.Build(w.model)
	if err != nil {
		return nil, f.fail(ExitCommandError, ErrCodeDocument, fmt.Errorf("%s: %w", path, err))
	}
	return built, nil
}

// translate turns a built document into a command, binding values for
// arguments that must be inlined.
func (w *workspace) translate(built *querydoc.Built, values []any, f *OutputFormatter) (*translate.Command, error) {
	var (
		cmd *translate.Command
		err error
	)
	if built.Mutation != nil {
		cmd, err = w.translator.TranslateMutation(built.Query, *built.Mutation, values...)
	} else {
		cmd, err = w.translator.Translate(built.Query, values...)
	}
	if err != nil {
		return nil, f.fail(ExitFailure, ErrCodeTranslation, err)
	}
	return cmd, nil
}
