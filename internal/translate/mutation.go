package translate

import (
	"fmt"

	"github.com/roach88/orq/internal/expr"
	"github.com/roach88/orq/internal/model"
	"github.com/roach88/orq/internal/queryir"
)

// MutationSpec names the statement a non-query translation produces.
type MutationSpec struct {
	Kind queryir.MutationKind

	// Target is the entity written to. Empty means the entity of the
	// query's source.
	Target string
}

// mutation builds the mutation of spec over the analyzed base scope.
func (c *context) mutation(base *queryir.Scope, spec MutationSpec) (*queryir.Mutation, error) {
	target, err := c.mutationTarget(base, spec)
	if err != nil {
		return nil, err
	}
	m := &queryir.Mutation{Kind: spec.Kind, Target: target, Base: base}
	for _, tbl := range base.Tables {
		if tbl.Entity == target {
			m.Table = tbl
			break
		}
	}

	switch spec.Kind {
	case queryir.MutationUpdate, queryir.MutationInsert:
		err = c.assignments(m, base.Projection)
	case queryir.MutationDelete:
		err = c.deletedKeys(m, base.Projection)
	default:
		err = failf(InvalidMutationProjection, "unknown mutation kind %q", spec.Kind)
	}
	if err != nil {
		return nil, err
	}

	if spec.Kind == queryir.MutationInsert {
		for _, v := range m.Values {
			base.Outputs = append(base.Outputs, v)
			base.OutputAliases = append(base.OutputAliases, "")
		}
		return m, nil
	}

	if m.Table == nil {
		return nil, failf(InvalidMutationProjection, "the query does not read from %s", target.Name)
	}
	m.Simple = len(c.tree.Scopes) == 1 && len(base.Tables) == 1 &&
		!base.Paged() && !base.Distinct && len(base.GroupBy) == 0
	if m.Simple {
		return m, nil
	}

	keys := target.Keys()
	if len(keys) == 0 {
		return nil, failf(InvalidMutationProjection, "%s has no key to match affected rows", target.Name)
	}
	for i, k := range keys {
		m.KeyOutputs = append(m.KeyOutputs, len(base.Outputs))
		base.Outputs = append(base.Outputs, c.tree.RegisterColumn(m.Table, k))
		base.OutputAliases = append(base.OutputAliases, fmt.Sprintf("k%d", i))
	}
	if spec.Kind == queryir.MutationUpdate {
		for i, v := range m.Values {
			m.ValueOutputs = append(m.ValueOutputs, len(base.Outputs))
			base.Outputs = append(base.Outputs, v)
			base.OutputAliases = append(base.OutputAliases, fmt.Sprintf("v%d", i))
		}
	}
	return m, nil
}

func (c *context) mutationTarget(base *queryir.Scope, spec MutationSpec) (*model.Entity, error) {
	if spec.Target != "" {
		e, ok := c.model.Entity(spec.Target)
		if !ok {
			return nil, failf(InvalidMutationProjection, "unknown target entity %s", spec.Target)
		}
		return e, nil
	}
	if len(base.Tables) == 0 || base.Tables[0].Entity == nil {
		return nil, failf(InvalidMutationProjection, "cannot infer the target entity")
	}
	return base.Tables[0].Entity, nil
}

// assignments maps a flat construction onto target columns. Single-key
// reference members assign their foreign-key column.
func (c *context) assignments(m *queryir.Mutation, projection expr.Node) error {
	n, ok := projection.(*expr.New)
	if !ok || c.groups[n] != nil {
		return failf(InvalidMutationProjection, "%s needs an object construction, got %s", m.Kind, expr.String(projection))
	}
	for i, name := range n.Names {
		col, err := c.assignedColumn(m.Target, name)
		if err != nil {
			return err
		}
		v := n.Args[i]
		if t, isRow := v.(*expr.Table); isRow {
			if t.Entity == nil || len(t.Entity.Keys()) != 1 {
				return failf(InvalidMutationProjection, "%s: only single-key rows can be assigned", name)
			}
			v = c.tree.RegisterColumn(t, t.Entity.Keys()[0])
		}
		if !c.sqlCapable(v) {
			return failf(InvalidMutationProjection, "value of %s cannot be computed by %s: %s",
				name, c.dialect.Name(), expr.String(v))
		}
		m.Columns = append(m.Columns, col)
		m.Values = append(m.Values, v)
	}
	return nil
}

func (c *context) assignedColumn(target *model.Entity, member string) (*model.Column, error) {
	if col, ok := target.Column(member); ok {
		return col, nil
	}
	if ref, ok := target.References[member]; ok && ref.Via == "" {
		if len(ref.Keys) != 1 {
			return nil, failf(InvalidMutationProjection, "%s.%s has a composite key", target.Name, member)
		}
		if col, ok := target.Column(ref.Keys[0]); ok {
			return col, nil
		}
	}
	return nil, failf(InvalidMutationProjection, "%s does not map to a column of %s", member, target.Name)
}

// deletedKeys checks that a delete projection yields the target key: the
// target row itself, its key column, or a construction of its key columns.
func (c *context) deletedKeys(m *queryir.Mutation, projection expr.Node) error {
	isKey := func(n expr.Node) bool {
		col, ok := n.(*expr.Column)
		return ok && col.Table == m.Table && col.Meta.Key
	}
	switch p := projection.(type) {
	case *expr.Table:
		if p == m.Table {
			return nil
		}
	case *expr.Column:
		if isKey(p) {
			return nil
		}
	case *expr.New:
		if c.groups[p] == nil && len(p.Args) > 0 {
			for _, a := range p.Args {
				if !isKey(a) {
					return failf(InvalidMutationProjection, "DELETE projection member %s is not a key of %s",
						expr.String(a), m.Target.Name)
				}
			}
			return nil
		}
	}
	return failf(InvalidMutationProjection, "DELETE needs the %s row or its key, got %s", m.Target.Name, expr.String(projection))
}
