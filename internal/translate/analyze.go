package translate

import (
	"github.com/roach88/orq/internal/expr"
	"github.com/roach88/orq/internal/queryir"
	"github.com/roach88/orq/internal/readplan"
)

// nestedOps are the operations a subquery chain may use.
var nestedOps = map[OpKind]bool{
	OpSource: true, OpFilter: true, OpProject: true, OpDistinct: true,
}

// build applies ops to scope s and returns the scope holding the final
// projection. Terminal operations may wrap s in a new top-level scope.
func (c *context) build(env bindings, s *queryir.Scope, ops []Operation, nested bool) (*queryir.Scope, error) {
	for i, op := range ops {
		if nested && !nestedOps[op.Kind] {
			return nil, failf(UnsupportedConstruct, "%s is not supported inside a subquery", op.Method)
		}
		if s.Paged() && !afterPaging(s, op) {
			return nil, failf(UnsupportedConstruct, "%s after Skip/Take is not supported", op.Method)
		}

		var err error
		switch op.Kind {
		case OpSource:
			set, ok := op.Source.(*expr.EntitySet)
			if !ok {
				return nil, failf(UnsupportedConstruct, "%s is not an entity set", expr.String(op.Source))
			}
			ent, ok := c.model.Entity(set.Entity)
			if !ok {
				return nil, failf(UnsupportedConstruct, "unknown entity %s", set.Entity)
			}
			s.Projection = c.tree.NewRootTable(s, ent)

		case OpFilter:
			err = c.filter(env, s, op.Lambda(0))

		case OpProject:
			s.Projection, err = c.lambda(env, s, op.Lambda(0), s.Projection)

		case OpOrderBy, OpThenBy:
			if op.Kind == OpThenBy && len(s.OrderBy) == 0 {
				return nil, failf(UnsupportedConstruct, "%s without OrderBy", op.Method)
			}
			var key expr.Node
			if key, err = c.lambda(env, s, op.Lambda(0), s.Projection); err != nil {
				return nil, err
			}
			if op.Kind == OpOrderBy {
				s.OrderBy = nil
			}
			var keys []expr.Node
			if keys, err = c.flatten(key, "order"); err != nil {
				return nil, err
			}
			for _, k := range keys {
				s.OrderBy = append(s.OrderBy, queryir.Ordering{Expr: k, Descending: op.Descending})
			}

		case OpGroupBy:
			err = c.groupBy(env, s, op)

		case OpSkip:
			s.Offset, err = c.count(op)

		case OpTake:
			s.Limit, err = c.count(op)

		case OpDistinct:
			s.Distinct = true

		case OpJoin:
			err = c.join(env, s, op)

		case OpTerminal:
			if i != len(ops)-1 {
				return nil, failf(UnsupportedConstruct, "%s must end the query", op.Method)
			}
			return c.terminal(env, s, op)
		}
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

// afterPaging reports whether op may follow Skip/Take without changing
// which rows the page selects.
func afterPaging(s *queryir.Scope, op Operation) bool {
	switch op.Kind {
	case OpProject, OpTerminal:
		return true
	case OpTake:
		return s.Limit == nil
	}
	return false
}

// filter adds a predicate. Once a scope is grouped, predicates over
// aggregates filter groups; predicates over the key filter rows.
func (c *context) filter(env bindings, s *queryir.Scope, l *expr.Lambda) error {
	pred, err := c.lambda(env, s, l, s.Projection)
	if err != nil {
		return err
	}
	if len(s.GroupBy) > 0 && hasAggregate(pred) {
		s.Having = append(s.Having, pred)
		return nil
	}
	s.Where = append(s.Where, pred)
	return nil
}

// flatten splits a composite key into its parts.
func (c *context) flatten(key expr.Node, use string) ([]expr.Node, error) {
	switch k := key.(type) {
	case *expr.New:
		if c.groups[k] != nil {
			return nil, failf(UnsupportedConstruct, "cannot %s by a group", use)
		}
		return k.Args, nil
	case *expr.Table:
		if use == "group" || k.Entity == nil {
			return nil, failf(UnsupportedConstruct, "cannot %s by whole rows of %s", use, k.Identity)
		}
		var keys []expr.Node
		for _, col := range k.Entity.Keys() {
			keys = append(keys, c.tree.RegisterColumn(k, col))
		}
		return keys, nil
	}
	return []expr.Node{key}, nil
}

func (c *context) groupBy(env bindings, s *queryir.Scope, op Operation) error {
	if len(s.GroupBy) > 0 || c.isGroup(s.Projection) {
		return failf(UnsupportedConstruct, "nested GroupBy is not supported")
	}
	key, err := c.lambda(env, s, op.Lambda(0), s.Projection)
	if err != nil {
		return err
	}
	elem := s.Projection
	if l := op.Lambda(1); l != nil {
		if elem, err = c.lambda(env, s, l, s.Projection); err != nil {
			return err
		}
	}
	if s.GroupBy, err = c.flatten(key, "group"); err != nil {
		return err
	}
	g := expr.Record([]string{"Key"}, key)
	c.groups[g] = &group{scope: s, key: key, elem: elem}
	s.Projection = g
	return nil
}

func (c *context) isGroup(n expr.Node) bool {
	g, ok := n.(*expr.New)
	return ok && c.groups[g] != nil
}

// count turns a Skip/Take count into an external value so that paging is
// always parameterized.
func (c *context) count(op Operation) (expr.Node, error) {
	switch x := op.Count.(type) {
	case *expr.External:
		return x, nil
	case *expr.Constant:
		return c.external(x), nil
	}
	return nil, failf(UnsupportedConstruct, "%s count %s must be a constant or depend only on arguments",
		op.Method, expr.String(op.Count))
}

// join adds the inner source of a Join operator as an inner-joined table.
func (c *context) join(env bindings, s *queryir.Scope, op Operation) error {
	if c.isGroup(s.Projection) {
		return failf(UnsupportedConstruct, "Join over groups is not supported")
	}
	inner, err := Decompose(op.Source)
	if err != nil {
		return err
	}
	set := inner[0].Source.(*expr.EntitySet)
	ent, ok := c.model.Entity(set.Entity)
	if !ok {
		return failf(UnsupportedConstruct, "unknown entity %s", set.Entity)
	}

	outerKey, err := c.lambda(env, s, op.Lambda(0), s.Projection)
	if err != nil {
		return err
	}
	tbl := c.tree.NewRootTable(s, ent)
	tbl.Kind = expr.JoinInner
	for _, iop := range inner[1:] {
		if iop.Kind != OpFilter {
			return failf(UnsupportedConstruct, "a joined source may only be filtered, got %s", iop.Method)
		}
		pred, err := c.lambda(env, s, iop.Lambda(0), tbl)
		if err != nil {
			return err
		}
		s.Where = append(s.Where, pred)
	}
	innerKey, err := c.lambda(env, s, op.Lambda(1), tbl)
	if err != nil {
		return err
	}
	if tbl.Join, err = joinCondition(outerKey, innerKey); err != nil {
		return err
	}
	s.Projection, err = c.lambda(env, s, op.Lambda(2), s.Projection, tbl)
	return err
}

func joinCondition(outer, inner expr.Node) (expr.Node, error) {
	on, isCompositeOuter := outer.(*expr.New)
	in, isCompositeInner := inner.(*expr.New)
	switch {
	case isCompositeOuter && isCompositeInner:
		if len(on.Args) != len(in.Args) {
			return nil, failf(UnresolvedAssociation, "join keys pair %d members with %d", len(on.Args), len(in.Args))
		}
		var cond expr.Node
		for i := range on.Args {
			cond = conjoin(cond, expr.Eq(on.Args[i], in.Args[i]))
		}
		return cond, nil
	case isCompositeOuter || isCompositeInner:
		return nil, failf(UnresolvedAssociation, "join keys %s and %s do not pair up", expr.String(outer), expr.String(inner))
	}
	return expr.Eq(outer, inner), nil
}

// terminal applies a chain-ending operator and selects its post-processor.
func (c *context) terminal(env bindings, s *queryir.Scope, op Operation) (*queryir.Scope, error) {
	if pred := op.Lambda(0); pred != nil && op.Method != "All" {
		if s.Paged() {
			return nil, failf(UnsupportedConstruct, "%s with a predicate after Skip/Take is not supported", op.Method)
		}
		if err := c.filter(env, s, pred); err != nil {
			return nil, err
		}
	}
	if c.isGroup(s.Projection) {
		return nil, failf(UnsupportedConstruct, "%s over groups is not supported", op.Method)
	}

	elemType := s.Projection.Type()
	switch op.Method {
	case "First", "FirstOrDefault":
		if s.Limit == nil {
			s.Limit = c.external(expr.ConstOf(1, expr.IntType()))
		}
	case "Single", "SingleOrDefault":
		if s.Limit == nil {
			s.Limit = c.external(expr.ConstOf(2, expr.IntType()))
		}
	case "Last", "LastOrDefault":
		if !s.Paged() && len(s.OrderBy) > 0 {
			for i := range s.OrderBy {
				s.OrderBy[i].Descending = !s.OrderBy[i].Descending
			}
			s.Limit = c.external(expr.ConstOf(1, expr.IntType()))
		}
	case "Count":
		return c.countRows(s, op)
	case "Any", "All":
		return c.exists(env, s, op)
	}
	c.post = &readplan.PostProcessor{Kind: readplan.PostKind(op.Method), Type: elemType}
	return s, nil
}

// countRows projects COUNT(*) over s, wrapping s in a derived table when
// its rows are paged, distinct or grouped.
func (c *context) countRows(s *queryir.Scope, op Operation) (*queryir.Scope, error) {
	t := typeOr(op.Call.Typ, int64Type)
	if s.Paged() || s.Distinct || len(s.GroupBy) > 0 {
		if s.Paged() && !c.caps.CountOverPaging {
			return nil, failf(DialectCapabilityViolation, "%s cannot count a paged query", c.dialect.Name())
		}
		if !s.Paged() {
			s.OrderBy = nil
		}
		c.registerRowOutputs(s)
		outer := c.tree.NewScope(0)
		c.tree.Root = outer.ID
		c.tree.NewDerivedTable(outer, s)
		s = outer
	} else {
		s.OrderBy = nil
	}
	s.Projection = expr.Fn(expr.FuncCountStar, t)
	c.post = &readplan.PostProcessor{Kind: readplan.PostScalar, Type: t}
	return s, nil
}

// registerRowOutputs gives a counted inner scope the select list that
// defines its rows.
func (c *context) registerRowOutputs(s *queryir.Scope) {
	if len(s.GroupBy) > 0 {
		for _, k := range s.GroupBy {
			c.tree.RegisterOutput(s, k)
		}
		return
	}
	var visit func(n expr.Node)
	visit = func(n expr.Node) {
		switch x := n.(type) {
		case *expr.Table:
			if x.Entity != nil {
				for _, col := range c.tree.RegisterAllColumns(x) {
					c.tree.RegisterOutput(s, col)
				}
			}
			return
		case *expr.Constant, *expr.External:
			return
		}
		if dependsOnRow(n) && c.sqlCapable(n) {
			c.tree.RegisterOutput(s, n)
			return
		}
		ops, _ := expr.Operands(n)
		for _, op := range ops {
			visit(op)
		}
	}
	visit(s.Projection)
}

// exists evaluates Any/All as EXISTS over s from a new table-less scope.
func (c *context) exists(env bindings, s *queryir.Scope, op Operation) (*queryir.Scope, error) {
	test := expr.Fn(expr.FuncExists, boolType, &expr.Subquery{Scope: s.ID, Typ: boolType})
	var projection expr.Node = test
	if op.Method == "All" {
		pred := op.Lambda(0)
		if pred == nil {
			return nil, failf(UnsupportedConstruct, "All requires a predicate")
		}
		if s.Paged() {
			return nil, failf(UnsupportedConstruct, "All after Skip/Take is not supported")
		}
		p, err := c.lambda(env, s, pred, s.Projection)
		if err != nil {
			return nil, err
		}
		if len(s.GroupBy) > 0 && hasAggregate(p) {
			s.Having = append(s.Having, expr.Not(p))
		} else {
			s.Where = append(s.Where, expr.Not(p))
		}
		projection = expr.Not(test)
	}
	if !s.Paged() {
		s.OrderBy = nil
	}

	outer := c.tree.NewScope(0)
	c.tree.Root = outer.ID
	s.Parent = outer.ID
	outer.Projection = projection
	c.post = &readplan.PostProcessor{Kind: readplan.PostScalar, Type: boolType}
	return outer, nil
}

// ungroup turns a group projection that reaches the result into key/value
// rows regrouped in client code.
func (c *context) ungroup(s *queryir.Scope) error {
	g, ok := s.Projection.(*expr.New)
	if !ok || c.groups[g] == nil {
		return nil
	}
	if len(s.Having) > 0 {
		return failf(UnsupportedConstruct, "filtering groups by an aggregate requires an aggregate projection")
	}
	if s.Paged() {
		return failf(UnsupportedConstruct, "paging groups is not supported")
	}
	grp := c.groups[g]
	s.GroupBy = nil
	s.Projection = expr.Record([]string{"Key", "Value"}, grp.key, grp.elem)
	c.post = &readplan.PostProcessor{Kind: readplan.PostGroup, Type: expr.GroupingType}
	return nil
}
