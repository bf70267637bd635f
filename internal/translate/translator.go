package translate

import (
	"log/slog"
	"strings"

	"github.com/roach88/orq/internal/convert"
	"github.com/roach88/orq/internal/expr"
	"github.com/roach88/orq/internal/model"
	"github.com/roach88/orq/internal/queryir"
	"github.com/roach88/orq/internal/querysql"
	"github.com/roach88/orq/internal/readplan"
	"github.com/roach88/orq/internal/shape"
)

// Translator turns query expressions into commands for one dialect.
//
// Thread-safety model:
//   - Translate/TranslateMutation: safe from any goroutine
//   - every call owns its own query tree and context; the Translator is
//     never mutated after New
//
// INVARIANTS:
//   - translation is all-or-nothing: a call returns a complete Command or
//     a single *Error carrying the query
//   - the same query shape always yields the same template and parameter
//     order
type Translator struct {
	model    *model.Model
	dialect  querysql.Dialect
	registry *convert.Registry
	arrays   bool
	logger   *slog.Logger
}

// Option configures a Translator.
type Option func(*Translator)

// WithRegistry sets the type-conversion registry.
// Default: convert.NewRegistry().
func WithRegistry(r *convert.Registry) Option {
	return func(t *Translator) {
		t.registry = r
	}
}

// WithArrayParameters enables or disables binding lists as one array
// parameter on dialects that support it. Disabled lists are inlined as
// literals and the command is not cacheable.
func WithArrayParameters(enabled bool) Option {
	return func(t *Translator) {
		t.arrays = enabled
	}
}

// WithLogger sets the logger for translation milestones.
// Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(t *Translator) {
		t.logger = l
	}
}

// New creates a Translator over model m emitting SQL for dialect d.
func New(m *model.Model, d querysql.Dialect, opts ...Option) *Translator {
	t := &Translator{
		model:    m,
		dialect:  d,
		registry: convert.NewRegistry(),
		arrays:   true,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Dialect returns the target dialect.
func (t *Translator) Dialect() querysql.Dialect { return t.dialect }

// Translate translates a query into a SELECT command. args are the
// call-site arguments; they are only read when a value must be inlined.
func (t *Translator) Translate(q *expr.Query, args ...any) (*Command, error) {
	t.logger.Debug("translating query", "dialect", t.dialect.Name(), "query", expr.String(q.Body))
	cmd, err := t.translate(q, args)
	if err != nil {
		return nil, withQuery(err, q)
	}
	t.logger.Debug("query translated",
		"shape", cmd.Shape,
		"parameters", len(cmd.Parameters),
		"cacheable", cmd.Cacheable,
	)
	return cmd, nil
}

func (t *Translator) translate(q *expr.Query, args []any) (*Command, error) {
	c := t.newContext(q, args)
	ops, err := c.decompose(q)
	if err != nil {
		return nil, err
	}

	root, err := c.build(nil, c.tree.NewScope(0), ops, false)
	if err != nil {
		return nil, err
	}
	if err := c.ungroup(root); err != nil {
		return nil, err
	}
	reader, err := c.split(root, root.Projection)
	if err != nil {
		return nil, err
	}
	if err := c.finish(); err != nil {
		return nil, err
	}

	b := newBinder(c)
	text, err := querysql.NewEmitter(t.dialect, c.tree, b).Select(root)
	if err != nil {
		return nil, wrapf(UnsupportedConstruct, err, "emitting SQL")
	}
	plan, err := readplan.Compile(reader)
	if err != nil {
		return nil, wrapf(UnsupportedConstruct, err, "compiling read plan")
	}
	key, err := shape.Key(q)
	if err != nil {
		return nil, wrapf(UnsupportedConstruct, err, "computing query shape")
	}

	t.logger.Debug("query tree finalized", "scopes", len(c.tree.Scopes), "tables", len(c.tree.Tables()))
	return &Command{
		Kind:       KindSelect,
		Dialect:    t.dialect.Name(),
		Template:   text,
		Parameters: b.params,
		Plan:       plan,
		Post:       c.post,
		Cacheable:  !b.literal,
		Shape:      key,
	}, nil
}

// TranslateMutation translates a query into an UPDATE, INSERT or DELETE
// command. The query's final projection describes the written values (or
// the deleted keys).
func (t *Translator) TranslateMutation(q *expr.Query, spec MutationSpec, args ...any) (*Command, error) {
	t.logger.Debug("translating mutation", "dialect", t.dialect.Name(), "kind", spec.Kind, "target", spec.Target)
	cmd, err := t.translateMutation(q, spec, args)
	if err != nil {
		return nil, withQuery(err, q)
	}
	t.logger.Debug("mutation translated", "shape", cmd.Shape, "parameters", len(cmd.Parameters))
	return cmd, nil
}

func (t *Translator) translateMutation(q *expr.Query, spec MutationSpec, args []any) (*Command, error) {
	c := t.newContext(q, args)
	ops, err := c.decompose(q)
	if err != nil {
		return nil, err
	}
	for _, op := range ops {
		if op.Kind == OpTerminal {
			return nil, failf(InvalidMutationProjection, "%s cannot end a %s", op.Method, spec.Kind)
		}
	}

	base, err := c.build(nil, c.tree.NewScope(0), ops, false)
	if err != nil {
		return nil, err
	}
	m, err := c.mutation(base, spec)
	if err != nil {
		return nil, err
	}
	if err := c.finish(); err != nil {
		return nil, err
	}
	for i, v := range m.Values {
		if m.Values[i], err = Optimize(v); err != nil {
			return nil, err
		}
	}

	b := newBinder(c)
	text, err := querysql.NewEmitter(t.dialect, c.tree, b).Mutation(m)
	if err != nil {
		return nil, wrapf(UnsupportedConstruct, err, "emitting SQL")
	}
	target := spec.Target
	if target == "" {
		target = m.Target.Name
	}
	key, err := shape.MutationKey(q, string(spec.Kind), target)
	if err != nil {
		return nil, wrapf(UnsupportedConstruct, err, "computing query shape")
	}
	return &Command{
		Kind:       CommandKind(spec.Kind),
		Dialect:    t.dialect.Name(),
		Template:   text,
		Parameters: b.params,
		Cacheable:  !b.literal,
		Shape:      key,
	}, nil
}

func (c *context) decompose(q *expr.Query) ([]Operation, error) {
	if q == nil || q.Body == nil {
		return nil, failf(UnsupportedConstruct, "empty query")
	}
	body, err := c.externalize(q.Body)
	if err != nil {
		return nil, err
	}
	return Decompose(body)
}

// finish runs the passes after analysis: capability check, paging
// normalization, alias assignment, optimization and the structural
// validation of the tree.
func (c *context) finish() error {
	if err := c.checkSQL(); err != nil {
		return err
	}
	if err := c.normalizePaging(); err != nil {
		return err
	}
	c.tree.AssignAliases()
	if err := c.tree.Rewrite(Optimize); err != nil {
		return err
	}
	res := queryir.Validate(c.tree, queryir.ValidateOptions{RequiresOrderForPaging: c.caps.RequiresOrderForPaging})
	if !res.Valid {
		return failf(UnsupportedConstruct, "inconsistent query tree: %s", strings.Join(res.Violations, "; "))
	}
	return nil
}
