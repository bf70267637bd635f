package translate

import (
	"github.com/roach88/orq/internal/expr"
	"github.com/roach88/orq/internal/queryir"
)

// normalizePaging gives every paged scope the ordering its dialect needs and
// derives the offset+limit bound for row-range paging.
//
// The fallback order is fixed: first output of a DISTINCT scope, then the
// constant ordering, then a projected plain column, then the primary key of
// the first table. Changing it changes which rows a page returns.
func (c *context) normalizePaging() error {
	for _, s := range c.tree.Scopes {
		if !s.Paged() {
			continue
		}
		if c.caps.RequiresOrderForPaging && len(s.OrderBy) == 0 && !s.ConstantOrder {
			if err := c.fallbackOrder(s); err != nil {
				return err
			}
		}
		if s.Offset != nil && s.Limit != nil {
			s.Bound = c.bound(s.Offset, s.Limit)
		}
	}
	return nil
}

func (c *context) fallbackOrder(s *queryir.Scope) error {
	switch {
	case s.Distinct && len(s.Outputs) > 0:
		s.OrderBy = []queryir.Ordering{{Expr: s.Outputs[0]}}
		return nil
	case c.caps.ConstantOrderFallback:
		s.ConstantOrder = true
		return nil
	}

	for _, out := range s.Outputs {
		if col, ok := out.(*expr.Column); ok {
			s.OrderBy = []queryir.Ordering{{Expr: col}}
			return nil
		}
	}

	if len(s.Tables) == 0 || s.Tables[0].Entity == nil {
		return failf(DialectCapabilityViolation, "%s needs an ordering to page scope %d and none can be derived",
			c.dialect.Name(), s.ID)
	}
	keys := s.Tables[0].Entity.Keys()
	if len(keys) == 0 {
		return failf(DialectCapabilityViolation, "%s needs an ordering to page %s, which has no key",
			c.dialect.Name(), s.Tables[0].Entity.Name)
	}
	s.OrderBy = []queryir.Ordering{{Expr: c.tree.RegisterColumn(s.Tables[0], keys[0])}}
	return nil
}

// bound is offset+limit. Two external counts combine into one external so
// the sum is computed before the query runs.
func (c *context) bound(offset, limit expr.Node) expr.Node {
	off, ok1 := offset.(*expr.External)
	lim, ok2 := limit.(*expr.External)
	if ok1 && ok2 {
		return c.external(expr.Add(off.Source, lim.Source))
	}
	return expr.Add(offset, limit)
}
