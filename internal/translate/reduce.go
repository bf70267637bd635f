package translate

import (
	"reflect"

	"github.com/roach88/orq/internal/expr"
	"github.com/roach88/orq/internal/queryir"
	"github.com/roach88/orq/internal/querysql"
)

// chainMethods are the operators that keep a receiver a query sequence.
var chainMethods = map[string]bool{
	"Where": true, "Select": true, "Distinct": true,
	"OrderBy": true, "OrderByDescending": true,
	"ThenBy": true, "ThenByDescending": true,
}

// quantifiers are the methods that open a correlated subquery when their
// receiver is a collection member or a query sequence.
var quantifiers = map[string]bool{
	"Any": true, "All": true, "Count": true, "LongCount": true,
	"Sum": true, "Min": true, "Max": true, "Average": true,
}

var aggregates = map[string]expr.FuncKind{
	"Sum":     expr.FuncSum,
	"Min":     expr.FuncMin,
	"Max":     expr.FuncMax,
	"Average": expr.FuncAvg,
}

func isQueryChain(n expr.Node) bool {
	switch x := n.(type) {
	case *expr.EntitySet:
		return true
	case *expr.Call:
		return x.Fn == nil && len(x.Args) > 0 && chainMethods[x.Method] && isQueryChain(x.Args[0])
	}
	return false
}

// reduce turns a lambda body into its SQL shape within scope s: parameters
// become the values bound to them, member accesses become columns or joined
// tables, and recognized methods become SQL functions or subqueries. Client
// calls are kept for the tier splitter.
func (c *context) reduce(env bindings, s *queryir.Scope, n expr.Node) (expr.Node, error) {
	switch x := n.(type) {
	case *expr.Parameter:
		v, ok := env[x]
		if !ok {
			return nil, failf(UnsupportedConstruct, "parameter %s is not bound", x.Name)
		}
		return v, nil
	case *expr.Argument:
		return c.external(x), nil
	case *expr.Lambda:
		return nil, failf(UnsupportedConstruct, "function %s used as a value", expr.String(x))
	case *expr.EntitySet:
		return nil, failf(UnsupportedConstruct, "entity set %s used as a value", x.Entity)
	case *expr.New:
		if c.groups[x] != nil {
			return x, nil
		}
	case *expr.Member:
		return c.member(env, s, x)
	case *expr.Binary:
		return c.binary(env, s, x)
	case *expr.Call:
		if x.Fn == nil {
			return c.method(env, s, x)
		}
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
		if next[i], err = c.reduce(env, s, op); err != nil {
			return nil, err
		}
	}
	return expr.Rebuild(n, next)
}

func (c *context) member(env bindings, s *queryir.Scope, m *expr.Member) (expr.Node, error) {
	target, err := c.reduce(env, s, m.Target)
	if err != nil {
		return nil, err
	}

	switch t := target.(type) {
	case *expr.Table:
		return c.tableMember(s, t, m.Name)

	case *expr.New:
		if g, ok := c.groups[t]; ok {
			if m.Name == "Key" {
				return g.key, nil
			}
			return nil, failf(UnsupportedConstruct, "group member %s cannot be translated; use Key or an aggregate", m.Name)
		}
		if arg, ok := t.Arg(m.Name); ok {
			return arg, nil
		}
		return nil, failf(UnsupportedConstruct, "%s has no member %s", expr.String(t), m.Name)

	case *expr.External:
		return c.external(&expr.Member{Target: t.Source, Name: m.Name, Typ: m.Typ}), nil
	}

	if target == m.Target {
		return m, nil
	}
	return &expr.Member{Target: target, Name: m.Name, Typ: m.Typ}, nil
}

func (c *context) tableMember(s *queryir.Scope, t *expr.Table, name string) (expr.Node, error) {
	if t.Entity == nil {
		return nil, failf(UnsupportedConstruct, "member %s of a derived table", name)
	}
	if col, ok := t.Entity.Column(name); ok {
		return c.tree.RegisterColumn(t, col), nil
	}
	if _, ok := t.Entity.References[name]; ok {
		return c.navigate(s, t, name)
	}
	if _, ok := t.Entity.Collections[name]; ok {
		return nil, failf(UnsupportedConstruct, "collection %s.%s can only be used with Any, All, Count or an aggregate",
			t.Entity.Name, name)
	}
	return nil, failf(UnresolvedAssociation, "%s has no mapped member %s", t.Entity.Name, name)
}

// navigate joins the target of reference member of from into s. The join
// condition compares the referenced table's key on the left with the
// referencing table's key on the right.
func (c *context) navigate(s *queryir.Scope, from *expr.Table, member string) (*expr.Table, error) {
	assoc, err := c.model.Association(from.Entity, member)
	if err != nil {
		return nil, wrapf(UnresolvedAssociation, err, "navigation %s.%s", from.Entity.Name, member)
	}
	if len(assoc.ThisKeys) == 0 || len(assoc.ThisKeys) != len(assoc.OtherKeys) {
		return nil, failf(UnresolvedAssociation, "navigation %s.%s pairs %d key columns with %d",
			from.Entity.Name, member, len(assoc.ThisKeys), len(assoc.OtherKeys))
	}

	kind := expr.JoinInner
	if assoc.Nullable || from.Kind == expr.JoinLeftOuter {
		kind = expr.JoinLeftOuter
	}
	candidate := &expr.Table{Entity: assoc.Target, Identity: from.Identity + "." + member, Kind: kind}
	tbl := c.tree.RegisterTable(s, candidate)
	if tbl != candidate {
		return tbl, nil
	}

	var cond expr.Node
	for i := range assoc.ThisKeys {
		this := c.tree.RegisterColumn(from, assoc.ThisKeys[i])
		other := c.tree.RegisterColumn(tbl, assoc.OtherKeys[i])
		if assoc.Referencing {
			cond = conjoin(cond, expr.Eq(other, this))
		} else {
			cond = conjoin(cond, expr.Eq(this, other))
		}
	}
	tbl.Join = cond
	return tbl, nil
}

func (c *context) binary(env bindings, s *queryir.Scope, x *expr.Binary) (expr.Node, error) {
	l, err := c.reduce(env, s, x.Left)
	if err != nil {
		return nil, err
	}
	r, err := c.reduce(env, s, x.Right)
	if err != nil {
		return nil, err
	}

	if x.Op == expr.OpEqual || x.Op == expr.OpNotEqual {
		lt, lrow := l.(*expr.Table)
		rt, rrow := r.(*expr.Table)
		switch {
		case lrow && rrow:
			return c.compareRows(x.Op, lt, rt)
		case lrow && isNull(r):
			return c.rowIsNull(x.Op, lt)
		case rrow && isNull(l):
			return c.rowIsNull(x.Op, rt)
		}
	}
	return expr.Rebuild(x, []expr.Node{l, r})
}

func isNull(n expr.Node) bool {
	k, ok := n.(*expr.Constant)
	return ok && k.Value == nil
}

// rowIsNull tests a joined row for absence through its first key column.
func (c *context) rowIsNull(op expr.BinaryOp, t *expr.Table) (expr.Node, error) {
	if t.Entity == nil || len(t.Entity.Keys()) == 0 {
		return nil, failf(UnsupportedConstruct, "row %s has no key to compare with nil", t.Identity)
	}
	key := c.tree.RegisterColumn(t, t.Entity.Keys()[0])
	return expr.Bin(op, key, expr.ConstOf(nil, key.Type())), nil
}

func (c *context) compareRows(op expr.BinaryOp, l, r *expr.Table) (expr.Node, error) {
	if l.Entity == nil || l.Entity != r.Entity {
		return nil, failf(UnsupportedConstruct, "cannot compare rows of %s and %s", l.Identity, r.Identity)
	}
	keys := l.Entity.Keys()
	if len(keys) == 0 {
		return nil, failf(UnsupportedConstruct, "rows of %s have no key to compare", l.Entity.Name)
	}
	var cond expr.Node
	for _, k := range keys {
		cond = conjoin(cond, expr.Eq(c.tree.RegisterColumn(l, k), c.tree.RegisterColumn(r, k)))
	}
	if op == expr.OpNotEqual {
		return expr.Not(cond), nil
	}
	return cond, nil
}

func (c *context) method(env bindings, s *queryir.Scope, call *expr.Call) (expr.Node, error) {
	if len(call.Args) == 0 {
		return nil, failf(UnsupportedConstruct, "method %s has no receiver", call.Method)
	}
	recv := call.Args[0]

	if quantifiers[call.Method] {
		if isQueryChain(recv) {
			return c.subquery(env, s, call, nil, "")
		}
		if m, ok := recv.(*expr.Member); ok {
			target, err := c.reduce(env, s, m.Target)
			if err != nil {
				return nil, err
			}
			if t, ok := target.(*expr.Table); ok && t.Entity != nil {
				if _, ok := t.Entity.Collections[m.Name]; ok {
					return c.subquery(env, s, call, t, m.Name)
				}
			}
		}
	}

	r, err := c.reduce(env, s, recv)
	if err != nil {
		return nil, err
	}
	if g, ok := r.(*expr.New); ok && c.groups[g] != nil {
		return c.aggregate(env, c.groups[g], call)
	}

	args := make([]expr.Node, len(call.Args)-1)
	for i, a := range call.Args[1:] {
		if args[i], err = c.reduce(env, s, a); err != nil {
			return nil, err
		}
	}
	return c.scalarMethod(call, r, args)
}

// scalarMethod maps a value method to its SQL function.
func (c *context) scalarMethod(call *expr.Call, recv expr.Node, args []expr.Node) (expr.Node, error) {
	arity := func(n int) error {
		if len(args) != n {
			return failf(UnsupportedConstruct, "%s takes %d arguments, got %d", call.Method, n, len(args))
		}
		return nil
	}
	typed := func(kind expr.FuncKind, n int, def reflect.Type) (expr.Node, error) {
		if err := arity(n); err != nil {
			return nil, err
		}
		return expr.Fn(kind, typeOr(call.Typ, def), append([]expr.Node{recv}, args...)...), nil
	}

	switch call.Method {
	case "ToUpper":
		return typed(expr.FuncUpper, 0, strType)
	case "ToLower":
		return typed(expr.FuncLower, 0, strType)
	case "Trim":
		return typed(expr.FuncTrim, 0, strType)
	case "Len", "Length":
		return typed(expr.FuncLength, 0, int64Type)
	case "Substring":
		return typed(expr.FuncSubstring, 2, strType)
	case "Concat":
		return typed(expr.FuncConcat, 1, strType)
	case "StartsWith":
		return typed(expr.FuncStartsWith, 1, boolType)
	case "EndsWith":
		return typed(expr.FuncEndsWith, 1, boolType)
	case "Like":
		return typed(expr.FuncLike, 1, boolType)
	case "DateDiffDays":
		return typed(expr.FuncDateDiffDays, 1, int64Type)
	case "Contains":
		if err := arity(1); err != nil {
			return nil, err
		}
		if querysql.IsList(recv.Type()) {
			return expr.Fn(expr.FuncIn, boolType, args[0], recv), nil
		}
		return expr.Fn(expr.FuncContainsText, boolType, recv, args[0]), nil
	}
	return nil, failf(UnsupportedConstruct, "method %s cannot be translated", call.Method)
}

// aggregate computes an aggregate over the elements of grp.
func (c *context) aggregate(env bindings, grp *group, call *expr.Call) (expr.Node, error) {
	sel, err := optionalLambda(call)
	if err != nil {
		return nil, err
	}

	switch call.Method {
	case "Count", "LongCount":
		t := typeOr(call.Typ, int64Type)
		if sel == nil {
			return expr.Fn(expr.FuncCountStar, t), nil
		}
		pred, err := c.lambda(env, grp.scope, sel, grp.elem)
		if err != nil {
			return nil, err
		}
		one := expr.ConstOf(1, expr.IntType())
		return expr.Fn(expr.FuncCount, t, expr.If(pred, one, expr.ConstOf(nil, expr.IntType()))), nil
	}

	kind, ok := aggregates[call.Method]
	if !ok {
		return nil, failf(UnsupportedConstruct, "%s is not an aggregate over a group", call.Method)
	}
	v := grp.elem
	if sel != nil {
		if v, err = c.lambda(env, grp.scope, sel, grp.elem); err != nil {
			return nil, err
		}
	}
	if _, whole := v.(*expr.Table); whole {
		return nil, failf(UnsupportedConstruct, "%s over whole rows", call.Method)
	}
	t := call.Typ
	if t == nil {
		t = v.Type()
		if kind == expr.FuncAvg {
			t = floatType
		}
	}
	return expr.Fn(kind, t, v), nil
}

func optionalLambda(call *expr.Call) (*expr.Lambda, error) {
	switch len(call.Args) {
	case 1:
		return nil, nil
	case 2:
		l, ok := call.Args[1].(*expr.Lambda)
		if !ok {
			return nil, failf(UnsupportedConstruct, "%s argument must be a function, got %s", call.Method, expr.String(call.Args[1]))
		}
		return l, nil
	}
	return nil, failf(UnsupportedConstruct, "%s takes at most one function argument", call.Method)
}

// subquery opens a correlated scope under s for a quantifier or aggregate
// over a collection member (from.member) or a nested query chain.
func (c *context) subquery(env bindings, s *queryir.Scope, call *expr.Call, from *expr.Table, member string) (expr.Node, error) {
	fn, err := optionalLambda(call)
	if err != nil {
		return nil, err
	}

	sub := c.tree.NewScope(s.ID)
	var elem expr.Node
	if from != nil {
		assoc, err := c.model.Association(from.Entity, member)
		if err != nil {
			return nil, wrapf(UnresolvedAssociation, err, "collection %s.%s", from.Entity.Name, member)
		}
		if len(assoc.ThisKeys) == 0 || len(assoc.ThisKeys) != len(assoc.OtherKeys) {
			return nil, failf(UnresolvedAssociation, "collection %s.%s pairs %d key columns with %d",
				from.Entity.Name, member, len(assoc.ThisKeys), len(assoc.OtherKeys))
		}
		child := c.tree.NewRootTable(sub, assoc.Target)
		for i := range assoc.ThisKeys {
			sub.Where = append(sub.Where, expr.Eq(
				c.tree.RegisterColumn(from, assoc.ThisKeys[i]),
				c.tree.RegisterColumn(child, assoc.OtherKeys[i]),
			))
		}
		elem = child
	} else {
		ops, err := Decompose(call.Args[0])
		if err != nil {
			return nil, err
		}
		if _, err := c.build(env, sub, ops, true); err != nil {
			return nil, err
		}
		elem = sub.Projection
	}

	exists := expr.Fn(expr.FuncExists, boolType, &expr.Subquery{Scope: sub.ID, Typ: boolType})
	switch call.Method {
	case "Any":
		if fn != nil {
			pred, err := c.lambda(env, sub, fn, elem)
			if err != nil {
				return nil, err
			}
			sub.Where = append(sub.Where, pred)
		}
		return exists, nil

	case "All":
		if fn == nil {
			return nil, failf(UnsupportedConstruct, "All requires a predicate")
		}
		pred, err := c.lambda(env, sub, fn, elem)
		if err != nil {
			return nil, err
		}
		sub.Where = append(sub.Where, expr.Not(pred))
		return expr.Not(exists), nil

	case "Count", "LongCount":
		if fn != nil {
			pred, err := c.lambda(env, sub, fn, elem)
			if err != nil {
				return nil, err
			}
			sub.Where = append(sub.Where, pred)
		}
		t := typeOr(call.Typ, int64Type)
		c.tree.RegisterOutput(sub, expr.Fn(expr.FuncCountStar, t))
		return &expr.Subquery{Scope: sub.ID, Typ: t}, nil
	}

	v := elem
	if fn != nil {
		if v, err = c.lambda(env, sub, fn, elem); err != nil {
			return nil, err
		}
	}
	if _, whole := v.(*expr.Table); whole {
		return nil, failf(UnsupportedConstruct, "%s over whole rows", call.Method)
	}
	kind := aggregates[call.Method]
	t := call.Typ
	if t == nil {
		t = v.Type()
		if kind == expr.FuncAvg {
			t = floatType
		}
	}
	c.tree.RegisterOutput(sub, expr.Fn(kind, t, v))
	return &expr.Subquery{Scope: sub.ID, Typ: t}, nil
}
