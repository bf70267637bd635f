package translate

import (
	"reflect"

	"github.com/roach88/orq/internal/convert"
	"github.com/roach88/orq/internal/expr"
	"github.com/roach88/orq/internal/queryir"
	"github.com/roach88/orq/internal/readplan"
)

// split walks the final projection of s top-down and replaces every
// database-evaluated part with a reader leaf over a registered output. What
// remains is evaluated in client code by the read plan.
func (c *context) split(s *queryir.Scope, n expr.Node) (expr.Node, error) {
	switch x := n.(type) {
	case *expr.New:
		if c.groups[x] != nil {
			return nil, failf(UnsupportedConstruct, "a group can only be projected through its Key and aggregates")
		}
	case *expr.Lambda, *expr.EntitySet, *expr.Parameter:
		return nil, failf(UnsupportedConstruct, "%s cannot be projected", expr.String(n))
	}
	if !dependsOnRow(n) {
		return n, nil
	}

	if c.sqlCapable(n) {
		if t, ok := n.(*expr.Table); ok {
			return c.readRow(s, t)
		}
		return c.readColumn(s, n)
	}

	switch x := n.(type) {
	case *expr.Table:
		if x.Entity == nil {
			return nil, failf(UnsupportedConstruct, "derived table %s cannot be projected", x.Identity)
		}
		return c.split(s, c.expandRow(x))
	case *expr.Call:
		if x.Fn == nil {
			return nil, failf(UnsupportedConstruct, "method %s cannot be translated", x.Method)
		}
	case *expr.Function:
		if !readplan.HasClientEquivalent(x.Kind) {
			return nil, failf(UnsupportedConstruct, "%s cannot be evaluated by %s or in client code", x.Kind, c.dialect.Name())
		}
	}

	ops, err := expr.Operands(n)
	if err != nil {
		return nil, err
	}
	next := make([]expr.Node, len(ops))
	for i, op := range ops {
		if next[i], err = c.split(s, op); err != nil {
			return nil, err
		}
	}
	return expr.Rebuild(n, next)
}

// expandRow rewrites a table as a member-by-member construction.
func (c *context) expandRow(t *expr.Table) expr.Node {
	cols := c.tree.RegisterAllColumns(t)
	names := make([]string, len(cols))
	args := make([]expr.Node, len(cols))
	for i, col := range cols {
		names[i] = col.Meta.Member
		args[i] = col
	}
	return expr.Struct(t.Type(), names, args...)
}

func (c *context) readRow(s *queryir.Scope, t *expr.Table) (expr.Node, error) {
	cols := c.tree.RegisterAllColumns(t)
	leaf := &expr.ReadRow{
		Table:      t,
		Members:    t.Entity.Columns,
		Indexes:    make([]int, len(cols)),
		Converters: make([]convert.Func, len(cols)),
	}
	for i, col := range cols {
		conv, err := c.converter(col, col.Type())
		if err != nil {
			return nil, err
		}
		leaf.Indexes[i] = c.tree.RegisterOutput(s, col)
		leaf.Converters[i] = conv
	}
	return leaf, nil
}

func (c *context) readColumn(s *queryir.Scope, n expr.Node) (expr.Node, error) {
	t := n.Type()
	conv, err := c.converter(n, t)
	if err != nil {
		return nil, err
	}
	return &expr.ReadColumn{
		Index:   c.tree.RegisterOutput(s, n),
		Typ:     t,
		Null:    zero(t),
		Convert: conv,
	}, nil
}

// converter picks the conversion from what the driver returns for n to the
// type the query expects: the column's own converter for a plain column,
// otherwise a registry lookup, even when the types look alike.
func (c *context) converter(n expr.Node, to reflect.Type) (convert.Func, error) {
	if col, ok := n.(*expr.Column); ok && col.Meta.Converter.ToMember != nil {
		return col.Meta.Converter.ToMember, nil
	}
	from := c.dialect.ResultType(n)
	cv, ok := c.registry.Lookup(from, to)
	if !ok {
		return nil, failf(TypeConversionMissing, "no conversion from %s to %s for %s", from, to, expr.String(n))
	}
	return cv.ToMember, nil
}

// checkSQL verifies that every expression the statement itself must
// evaluate is within the dialect's reach.
func (c *context) checkSQL() error {
	for _, s := range c.tree.Scopes {
		for _, n := range s.Expressions() {
			if !c.sqlCapable(n) {
				return failf(UnsupportedConstruct, "%s cannot be evaluated by %s", expr.String(n), c.dialect.Name())
			}
		}
	}
	return nil
}
