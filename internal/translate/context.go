package translate

import (
	"maps"
	"reflect"

	"github.com/roach88/orq/internal/convert"
	"github.com/roach88/orq/internal/expr"
	"github.com/roach88/orq/internal/model"
	"github.com/roach88/orq/internal/queryir"
	"github.com/roach88/orq/internal/querysql"
	"github.com/roach88/orq/internal/readplan"
)

var (
	boolType  = reflect.TypeOf(false)
	int64Type = reflect.TypeOf(int64(0))
	floatType = reflect.TypeOf(0.0)
	strType   = reflect.TypeOf("")
)

// context is the mutable state of one translation call. It is never shared
// between calls.
type context struct {
	model    *model.Model
	dialect  querysql.Dialect
	caps     querysql.Capabilities
	registry *convert.Registry
	arrays   bool

	query *expr.Query
	args  []any
	tree  *queryir.Tree

	externals []*expr.External

	// groups maps the projection node standing for a group to the group
	// it represents.
	groups map[*expr.New]*group

	post *readplan.PostProcessor
}

// group is the state behind a GroupBy projection.
type group struct {
	scope *queryir.Scope
	key   expr.Node
	elem  expr.Node
}

func (t *Translator) newContext(q *expr.Query, args []any) *context {
	return &context{
		model:    t.model,
		dialect:  t.dialect,
		caps:     t.dialect.Capabilities(),
		registry: t.registry,
		arrays:   t.arrays,
		query:    q,
		args:     args,
		tree:     queryir.NewTree(),
		groups:   map[*expr.New]*group{},
	}
}

// bindings maps lambda parameters to the reduced values flowing into them.
type bindings map[*expr.Parameter]expr.Node

func (b bindings) with(params []*expr.Parameter, values []expr.Node) bindings {
	out := make(bindings, len(b)+len(params))
	maps.Copy(out, b)
	for i, p := range params {
		out[p] = values[i]
	}
	return out
}

// lambda reduces the body of l with its parameters bound to values.
func (c *context) lambda(env bindings, s *queryir.Scope, l *expr.Lambda, values ...expr.Node) (expr.Node, error) {
	if l == nil {
		return nil, failf(UnsupportedConstruct, "missing function argument")
	}
	if len(l.Params) != len(values) {
		return nil, failf(UnsupportedConstruct, "function %s takes %d parameters, %d supplied",
			expr.String(l), len(l.Params), len(values))
	}
	return c.reduce(env.with(l.Params, values), s, l.Body)
}

// external registers a new external value computed from src. Every use of
// one argument shares a single external.
func (c *context) external(src expr.Node) *expr.External {
	if _, ok := src.(*expr.Argument); ok {
		for _, ext := range c.externals {
			if ext.Source == src {
				return ext
			}
		}
	}
	ext := &expr.External{ID: len(c.externals) + 1, Source: src, Typ: src.Type()}
	c.externals = append(c.externals, ext)
	return ext
}

// externalize replaces every maximal sub-expression that depends only on
// call-site arguments (and client functions over them) with an external
// value. Constants stay inline.
func (c *context) externalize(n expr.Node) (expr.Node, error) {
	if n == nil {
		return nil, nil
	}
	if _, isLambda := n.(*expr.Lambda); !isLambda && closed(n) {
		return c.external(n), nil
	}
	ops, err := expr.Operands(n)
	if err != nil {
		return nil, err
	}
	if len(ops) == 0 {
		return n, nil
	}
	next := make([]expr.Node, len(ops))
	for i, op := range ops {
		if next[i], err = c.externalize(op); err != nil {
			return nil, err
		}
	}
	return expr.Rebuild(n, next)
}

// closed reports whether n can be computed before the query runs: it reads
// at least one argument or client function, and no row, parameter or
// untranslated method.
func closed(n expr.Node) bool {
	dynamic, open := false, false
	expr.Inspect(n, func(x expr.Node) bool {
		switch y := x.(type) {
		case *expr.Parameter, *expr.EntitySet, *expr.Lambda:
			open = true
		case *expr.Argument:
			dynamic = true
		case *expr.Call:
			if y.Fn == nil {
				open = true
			} else {
				dynamic = true
			}
		}
		return !open
	})
	return dynamic && !open
}

func conjoin(acc, n expr.Node) expr.Node {
	if acc == nil {
		return n
	}
	return expr.And(acc, n)
}

func typeOr(t, fallback reflect.Type) reflect.Type {
	if t != nil {
		return t
	}
	return fallback
}

func zero(t reflect.Type) any {
	if t == nil {
		return nil
	}
	return reflect.Zero(t).Interface()
}

// hasAggregate reports whether n computes an aggregate of its own scope.
// Aggregates inside subqueries belong to those subqueries.
func hasAggregate(n expr.Node) bool {
	found := false
	expr.Inspect(n, func(x expr.Node) bool {
		if f, ok := x.(*expr.Function); ok && f.Kind.IsAggregate() {
			found = true
		}
		return !found
	})
	return found
}

// sqlCapable reports whether the database can evaluate n entirely.
func (c *context) sqlCapable(n expr.Node) bool {
	if !c.dialect.Supports(n) {
		return false
	}
	ops, err := expr.Operands(n)
	if err != nil {
		return false
	}
	for _, op := range ops {
		if !c.sqlCapable(op) {
			return false
		}
	}
	return true
}

// dependsOnRow reports whether n reads anything produced by the statement.
func dependsOnRow(n expr.Node) bool {
	found := false
	expr.Inspect(n, func(x expr.Node) bool {
		switch y := x.(type) {
		case *expr.Column, *expr.Table, *expr.Subquery:
			found = true
		case *expr.Function:
			if y.Kind.IsAggregate() {
				found = true
			}
		}
		return !found
	})
	return found
}
