package queryir

import (
	"fmt"

	"github.com/roach88/orq/internal/expr"
)

// ValidationResult lists structural invariant violations of a finalized
// tree. An empty Violations slice means the tree is safe to emit.
type ValidationResult struct {
	Valid      bool
	Violations []string
}

// ValidateOptions carries dialect facts the checks depend on.
type ValidateOptions struct {
	// RequiresOrderForPaging demands an ordering on every paged scope.
	RequiresOrderForPaging bool
}

// Validate checks the invariants every emitted tree must hold:
//  1. a logical table identity appears at most once
//  2. table aliases are unique when the tree has more than one table
//  3. every column refers to a table visible from the scope using it
//  4. paged scopes are ordered when the dialect requires it
//
// Validate is a pure function with no side effects.
func Validate(t *Tree, opts ValidateOptions) ValidationResult {
	v := &validator{tree: t}
	v.identities()
	v.aliases()
	v.visibility()
	if opts.RequiresOrderForPaging {
		v.paging()
	}
	return ValidationResult{Valid: len(v.violations) == 0, Violations: v.violations}
}

type validator struct {
	tree       *Tree
	violations []string
}

func (v *validator) addViolation(format string, args ...any) {
	v.violations = append(v.violations, fmt.Sprintf(format, args...))
}

func (v *validator) identities() {
	seen := map[string]int{}
	for _, s := range v.tree.Scopes {
		for _, tbl := range s.Tables {
			if prev, ok := seen[tbl.Identity]; ok {
				v.addViolation("table %s registered in scopes %d and %d", tbl.Identity, prev, s.ID)
				continue
			}
			seen[tbl.Identity] = s.ID
			if tbl.Scope != s.ID {
				v.addViolation("table %s listed in scope %d but owned by scope %d", tbl.Identity, s.ID, tbl.Scope)
			}
		}
	}
}

func (v *validator) aliases() {
	tables := v.tree.Tables()
	if len(tables) < 2 {
		return
	}
	seen := map[string]string{}
	for _, tbl := range tables {
		if tbl.Alias == "" {
			v.addViolation("table %s has no alias", tbl.Identity)
			continue
		}
		if other, ok := seen[tbl.Alias]; ok {
			v.addViolation("alias %s shared by %s and %s", tbl.Alias, other, tbl.Identity)
			continue
		}
		seen[tbl.Alias] = tbl.Identity
	}
}

func (v *validator) visibility() {
	for _, s := range v.tree.Scopes {
		visible := map[*expr.Table]bool{}
		for _, id := range v.tree.Ancestors(s.ID) {
			for _, tbl := range v.tree.Scope(id).Tables {
				visible[tbl] = true
			}
		}
		for _, n := range s.Expressions() {
			expr.Inspect(n, func(n expr.Node) bool {
				if c, ok := n.(*expr.Column); ok && !visible[c.Table] {
					v.addViolation("scope %d uses column %s of invisible table %s", s.ID, c.Name(), c.Table.Identity)
				}
				return true
			})
		}
	}
}

func (v *validator) paging() {
	for _, s := range v.tree.Scopes {
		if s.Paged() && len(s.OrderBy) == 0 && !s.ConstantOrder {
			v.addViolation("scope %d is paged without an ordering", s.ID)
		}
	}
}
