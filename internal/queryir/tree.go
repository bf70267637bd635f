package queryir

import (
	"fmt"

	"github.com/roach88/orq/internal/expr"
	"github.com/roach88/orq/internal/model"
)

// Ordering is one ORDER BY key.
type Ordering struct {
	Expr       expr.Node
	Descending bool
}

// Scope is one SELECT in the arena.
type Scope struct {
	ID     int
	Parent int

	Tables  []*expr.Table
	Where   []expr.Node
	GroupBy []expr.Node
	Having  []expr.Node
	OrderBy []Ordering

	// ConstantOrder renders ORDER BY (SELECT 1); set by the paging
	// normalizer when a dialect needs some ordering for paging.
	ConstantOrder bool

	Offset expr.Node
	Limit  expr.Node

	// Bound is Offset+Limit, derived for dialects whose paging syntax is
	// expressed as a row range.
	Bound expr.Node

	Distinct bool

	Outputs       []expr.Node
	OutputAliases []string

	// Projection is the current SQL-shaped projection of the scope while
	// it is being analyzed.
	Projection expr.Node
}

// Paged reports whether the scope has an offset or a limit.
func (s *Scope) Paged() bool { return s.Offset != nil || s.Limit != nil }

// Tree is the scope arena of one translation.
type Tree struct {
	Scopes []*Scope

	// Root is the id of the scope the statement selects from.
	Root int

	columns  map[*expr.Table][]*expr.Column
	nextRoot int
}

// NewTree returns an empty arena.
func NewTree() *Tree {
	return &Tree{columns: map[*expr.Table][]*expr.Column{}}
}

// NewScope allocates a scope under parent (0 for a top-level scope). The
// first top-level scope becomes the tree root.
func (t *Tree) NewScope(parent int) *Scope {
	s := &Scope{ID: len(t.Scopes) + 1, Parent: parent}
	t.Scopes = append(t.Scopes, s)
	if parent == 0 && t.Root == 0 {
		t.Root = s.ID
	}
	return s
}

// Scope returns the scope with the given id.
func (t *Tree) Scope(id int) *Scope {
	if id <= 0 || id > len(t.Scopes) {
		panic(fmt.Sprintf("queryir: scope %d out of range", id))
	}
	return t.Scopes[id-1]
}

// RootScope returns the statement's root scope.
func (t *Tree) RootScope() *Scope { return t.Scope(t.Root) }

// Ancestors returns id followed by each ancestor up to the top.
func (t *Tree) Ancestors(id int) []int {
	var chain []int
	for id != 0 {
		chain = append(chain, id)
		id = t.Scope(id).Parent
	}
	return chain
}

// LowestCommonAncestor returns the deepest scope that is an ancestor of (or
// equal to) both a and b, or 0 when they share none.
func (t *Tree) LowestCommonAncestor(a, b int) int {
	seen := map[int]bool{}
	for _, id := range t.Ancestors(a) {
		seen[id] = true
	}
	for _, id := range t.Ancestors(b) {
		if seen[id] {
			return id
		}
	}
	return 0
}

// NewRootTable creates a table for a root query source and adds it to s.
// Every call yields a new logical identity.
func (t *Tree) NewRootTable(s *Scope, e *model.Entity) *expr.Table {
	t.nextRoot++
	tbl := &expr.Table{
		Entity:   e,
		Identity: fmt.Sprintf("%s#%d", e.Name, t.nextRoot),
		Scope:    s.ID,
	}
	s.Tables = append(s.Tables, tbl)
	return tbl
}

// NewDerivedTable creates a table selecting from scope source and adds it
// to s.
func (t *Tree) NewDerivedTable(s *Scope, source *Scope) *expr.Table {
	tbl := &expr.Table{
		Identity: fmt.Sprintf("derived#%d", source.ID),
		Scope:    s.ID,
		Derived:  source.ID,
	}
	source.Parent = s.ID
	s.Tables = append(s.Tables, tbl)
	return tbl
}

// FindTable returns the table with the given identity anywhere in the tree.
func (t *Tree) FindTable(identity string) (*expr.Table, bool) {
	for _, s := range t.Scopes {
		for _, tbl := range s.Tables {
			if tbl.Identity == identity {
				return tbl, true
			}
		}
	}
	return nil, false
}

// RegisterTable returns the canonical table for candidate's identity as seen
// from scope s, promoting an existing registration to the lowest common
// ancestor when it lives in an unrelated scope. When no table with that
// identity exists the candidate is added to s and returned.
func (t *Tree) RegisterTable(s *Scope, candidate *expr.Table) *expr.Table {
	existing, ok := t.FindTable(candidate.Identity)
	if !ok {
		candidate.Scope = s.ID
		s.Tables = append(s.Tables, candidate)
		return candidate
	}

	for _, id := range t.Ancestors(s.ID) {
		if id == existing.Scope {
			return existing
		}
	}

	lca := t.LowestCommonAncestor(s.ID, existing.Scope)
	if lca == 0 {
		// Unrelated statements (e.g. a derived source): nothing is shared.
		candidate.Scope = s.ID
		s.Tables = append(s.Tables, candidate)
		return candidate
	}
	t.move(existing, lca)
	return existing
}

func (t *Tree) move(tbl *expr.Table, to int) {
	from := t.Scope(tbl.Scope)
	for i, cur := range from.Tables {
		if cur == tbl {
			from.Tables = append(from.Tables[:i:i], from.Tables[i+1:]...)
			break
		}
	}
	dest := t.Scope(to)
	dest.Tables = append(dest.Tables, tbl)
	tbl.Scope = to
}

// RegisterColumn returns the column of tbl mapped by meta, registering it on
// first use.
func (t *Tree) RegisterColumn(tbl *expr.Table, meta *model.Column) *expr.Column {
	for _, c := range t.columns[tbl] {
		if c.Meta.Name == meta.Name {
			return c
		}
	}
	c := &expr.Column{Table: tbl, Meta: meta}
	t.columns[tbl] = append(t.columns[tbl], c)
	return c
}

// RegisterAllColumns registers every mapped column of tbl in entity order.
func (t *Tree) RegisterAllColumns(tbl *expr.Table) []*expr.Column {
	cols := make([]*expr.Column, 0, len(tbl.Entity.Columns))
	for _, meta := range tbl.Entity.Columns {
		cols = append(cols, t.RegisterColumn(tbl, meta))
	}
	return cols
}

// Columns returns the columns registered on tbl.
func (t *Tree) Columns(tbl *expr.Table) []*expr.Column {
	return t.columns[tbl]
}

// RegisterOutput appends n to the scope's outputs unless a structurally equal
// output is already present, and returns its position.
func (t *Tree) RegisterOutput(s *Scope, n expr.Node) int {
	for i, out := range s.Outputs {
		if expr.Equal(out, n) {
			return i
		}
	}
	s.Outputs = append(s.Outputs, n)
	s.OutputAliases = append(s.OutputAliases, "")
	return len(s.Outputs) - 1
}

// Tables returns every table of the tree in scope order.
func (t *Tree) Tables() []*expr.Table {
	var all []*expr.Table
	for _, s := range t.Scopes {
		all = append(all, s.Tables...)
	}
	return all
}

// Walk calls f for every expression owned by the tree: join conditions,
// predicates, grouping keys, orderings, paging and outputs.
func (t *Tree) Walk(f func(expr.Node)) {
	for _, s := range t.Scopes {
		for _, n := range s.Expressions() {
			f(n)
		}
	}
}

// Expressions returns every expression owned directly by s.
func (s *Scope) Expressions() []expr.Node {
	var out []expr.Node
	for _, tbl := range s.Tables {
		if tbl.Join != nil {
			out = append(out, tbl.Join)
		}
	}
	out = append(out, s.Where...)
	out = append(out, s.GroupBy...)
	out = append(out, s.Having...)
	for _, o := range s.OrderBy {
		out = append(out, o.Expr)
	}
	for _, n := range []expr.Node{s.Offset, s.Limit, s.Bound} {
		if n != nil {
			out = append(out, n)
		}
	}
	return append(out, s.Outputs...)
}

// Rewrite replaces every expression owned by the tree with f's result.
func (t *Tree) Rewrite(f func(expr.Node) (expr.Node, error)) error {
	apply := func(n expr.Node) (expr.Node, error) {
		if n == nil {
			return nil, nil
		}
		return f(n)
	}
	applyAll := func(ns []expr.Node) error {
		for i, n := range ns {
			out, err := apply(n)
			if err != nil {
				return err
			}
			ns[i] = out
		}
		return nil
	}

	for _, s := range t.Scopes {
		for _, tbl := range s.Tables {
			j, err := apply(tbl.Join)
			if err != nil {
				return err
			}
			tbl.Join = j
		}
		for _, list := range [][]expr.Node{s.Where, s.GroupBy, s.Having, s.Outputs} {
			if err := applyAll(list); err != nil {
				return err
			}
		}
		for i := range s.OrderBy {
			out, err := apply(s.OrderBy[i].Expr)
			if err != nil {
				return err
			}
			s.OrderBy[i].Expr = out
		}
	}
	return nil
}
