package queryir

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/orq/internal/expr"
)

// AssignAliases gives every table a unique alias when the tree has more
// than one table, and disambiguates output column names within each scope.
// Aliases already set (for example by the non-query builder) are kept when
// unique.
func (t *Tree) AssignAliases() {
	tables := t.Tables()
	if len(tables) > 1 || (len(tables) == 1 && tables[0].Derived != 0) {
		used := map[string]bool{}
		for _, s := range t.Scopes {
			for _, name := range s.OutputAliases {
				if name != "" {
					used[name] = true
				}
			}
		}
		var pending []*expr.Table
		for _, tbl := range tables {
			if tbl.Alias != "" && !used[tbl.Alias] {
				used[tbl.Alias] = true
				continue
			}
			pending = append(pending, tbl)
		}
		next := 0
		for _, tbl := range pending {
			for used["t"+strconv.Itoa(next)] {
				next++
			}
			tbl.Alias = "t" + strconv.Itoa(next)
			used[tbl.Alias] = true
		}
	}

	for _, s := range t.Scopes {
		assignOutputAliases(s)
	}
}

// DefaultName returns the name a database gives output n without an alias,
// or "" when the name is unspecified.
func DefaultName(n expr.Node) string {
	if c, ok := n.(*expr.Column); ok {
		return c.Name()
	}
	return ""
}

func assignOutputAliases(s *Scope) {
	for len(s.OutputAliases) < len(s.Outputs) {
		s.OutputAliases = append(s.OutputAliases, "")
	}

	taken := map[string]bool{}
	for i, out := range s.Outputs {
		name := s.OutputAliases[i]
		if name == "" {
			name = DefaultName(out)
		}
		if name != "" {
			taken[strings.ToLower(name)] = false
		}
	}

	for i, out := range s.Outputs {
		if s.OutputAliases[i] != "" {
			taken[strings.ToLower(s.OutputAliases[i])] = true
			continue
		}
		name := DefaultName(out)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if !taken[key] {
			taken[key] = true
			continue
		}
		for n := 0; ; n++ {
			candidate := fmt.Sprintf("%s%d", name, n)
			ck := strings.ToLower(candidate)
			if _, exists := taken[ck]; !exists {
				s.OutputAliases[i] = candidate
				taken[ck] = true
				break
			}
		}
	}
}

// OutputName returns the effective name of output i of s.
func (s *Scope) OutputName(i int) string {
	if i < len(s.OutputAliases) && s.OutputAliases[i] != "" {
		return s.OutputAliases[i]
	}
	return DefaultName(s.Outputs[i])
}
