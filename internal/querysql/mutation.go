package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/orq/internal/queryir"
)

// Derived-table aliases of compound mutations. They never collide with
// table aliases, which are always t<N>.
const (
	updateAlias = "_u"
	deleteAlias = "_d"
)

// Mutation renders an UPDATE, INSERT or DELETE statement.
func (e *Emitter) Mutation(m *queryir.Mutation) (string, error) {
	switch m.Kind {
	case queryir.MutationInsert:
		return e.insert(m)
	case queryir.MutationUpdate:
		if m.Simple {
			return e.simpleUpdate(m)
		}
		return e.compoundUpdate(m)
	case queryir.MutationDelete:
		if m.Simple {
			return e.simpleDelete(m)
		}
		return e.compoundDelete(m)
	}
	return "", fmt.Errorf("unknown mutation kind %q", m.Kind)
}

func (e *Emitter) insert(m *queryir.Mutation) (string, error) {
	cols := make([]string, len(m.Columns))
	for i, c := range m.Columns {
		cols[i] = e.ident(c.Name)
	}
	sel, err := e.Select(m.Base)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("INSERT INTO %s (%s) %s", e.ident(m.Target.Table), strings.Join(cols, ", "), sel), nil
}

func (e *Emitter) assignments(m *queryir.Mutation, value func(i int) (string, error), qualified bool) (string, error) {
	parts := make([]string, len(m.Columns))
	for i, c := range m.Columns {
		v, err := value(i)
		if err != nil {
			return "", err
		}
		target := e.ident(c.Name)
		if qualified {
			target = e.ident(m.Target.Table) + "." + target
		}
		parts[i] = target + " = " + v
	}
	return strings.Join(parts, ", "), nil
}

func (e *Emitter) simpleUpdate(m *queryir.Mutation) (string, error) {
	set, err := e.assignments(m, func(i int) (string, error) { return e.value(m.Values[i]) }, false)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("UPDATE " + e.ident(m.Target.Table) + " SET " + set)
	if len(m.Base.Where) > 0 {
		where, err := e.conjunction(m.Base.Where)
		if err != nil {
			return "", err
		}
		b.WriteString(" WHERE " + where)
	}
	return b.String(), nil
}

func (e *Emitter) simpleDelete(m *queryir.Mutation) (string, error) {
	var b strings.Builder
	b.WriteString("DELETE FROM " + e.ident(m.Target.Table))
	if len(m.Base.Where) > 0 {
		where, err := e.conjunction(m.Base.Where)
		if err != nil {
			return "", err
		}
		b.WriteString(" WHERE " + where)
	}
	return b.String(), nil
}

// keyMatch renders target.key = alias.keyN for every key output.
func (e *Emitter) keyMatch(m *queryir.Mutation, alias string) string {
	keys := m.Target.Keys()
	parts := make([]string, len(m.KeyOutputs))
	for i, out := range m.KeyOutputs {
		parts[i] = fmt.Sprintf("%s.%s = %s.%s",
			e.ident(m.Target.Table), e.ident(keys[i].Name),
			e.ident(alias), e.ident(m.Base.OutputName(out)))
	}
	return strings.Join(parts, " AND ")
}

func (e *Emitter) compoundUpdate(m *queryir.Mutation) (string, error) {
	e.qualify = true
	base, err := e.Select(m.Base)
	if err != nil {
		return "", err
	}
	fromDerived := func(i int) (string, error) {
		return e.ident(updateAlias) + "." + e.ident(m.Base.OutputName(m.ValueOutputs[i])), nil
	}
	target := e.ident(m.Target.Table)
	derived := "(" + base + ") AS " + e.ident(updateAlias)
	match := e.keyMatch(m, updateAlias)

	switch e.caps.CompoundUpdate {
	case UpdateJoin:
		set, err := e.assignments(m, fromDerived, true)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("UPDATE %s INNER JOIN %s ON %s SET %s", target, derived, match, set), nil
	case UpdateFromJoin:
		set, err := e.assignments(m, fromDerived, false)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("UPDATE %s SET %s FROM %s INNER JOIN %s ON %s", target, set, target, derived, match), nil
	default:
		set, err := e.assignments(m, fromDerived, false)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("UPDATE %s SET %s FROM %s WHERE %s", target, set, derived, match), nil
	}
}

func (e *Emitter) compoundDelete(m *queryir.Mutation) (string, error) {
	e.qualify = true
	base, err := e.Select(m.Base)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("DELETE FROM %s WHERE EXISTS (SELECT 1 FROM (%s) AS %s WHERE %s)",
		e.ident(m.Target.Table), base, e.ident(deleteAlias), e.keyMatch(m, deleteAlias)), nil
}
