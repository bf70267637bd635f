// Package model holds entity metadata: the mapping between query-level
// entities and their tables, columns, keys and associations.
//
// A Model is built once (usually from CUE model files, see Load) and is
// read-only afterwards, so it is safe to share across concurrent
// translations.
package model

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/roach88/orq/internal/convert"
)

// Column maps one entity member to one stored column.
type Column struct {
	Member     string       // member (field) name
	Name       string       // stored column name
	Type       reflect.Type // member type as seen by query expressions
	StoredType reflect.Type // type of the stored value
	Key        bool
	Nullable   bool

	// FieldIndex locates the member on the bound Go struct, nil when the
	// entity has no Go type.
	FieldIndex []int

	// Converter converts stored values to member values and back. Set by
	// Model.Resolve.
	Converter convert.Converter
}

// Reference is a reference-valued member: either a foreign-key navigation
// (Keys names this entity's foreign-key members) or a one-to-one
// back-reference (Via names the target entity's reference member that
// points back here).
type Reference struct {
	Member   string
	Target   string
	Keys     []string
	Via      string
	Nullable bool
}

// Collection is a one-to-many member: the Target entity rows whose Via
// reference points at this entity.
type Collection struct {
	Member string
	Target string
	Via    string
}

// Entity describes one mapped entity.
type Entity struct {
	Name   string
	Table  string
	GoType reflect.Type

	Columns     []*Column
	References  map[string]*Reference
	Collections map[string]*Collection

	byMember map[string]*Column
}

// NewEntity returns an empty entity mapped to table.
func NewEntity(name, table string) *Entity {
	if table == "" {
		table = name
	}
	return &Entity{
		Name:        name,
		Table:       table,
		References:  map[string]*Reference{},
		Collections: map[string]*Collection{},
		byMember:    map[string]*Column{},
	}
}

// AddColumn appends a column mapping.
func (e *Entity) AddColumn(c *Column) {
	if c.Name == "" {
		c.Name = c.Member
	}
	if c.StoredType == nil {
		c.StoredType = c.Type
	}
	e.Columns = append(e.Columns, c)
	e.byMember[c.Member] = c
}

// AddReference registers a reference member.
func (e *Entity) AddReference(r *Reference) { e.References[r.Member] = r }

// AddCollection registers a collection member.
func (e *Entity) AddCollection(c *Collection) { e.Collections[c.Member] = c }

// Column returns the column mapped to member.
func (e *Entity) Column(member string) (*Column, bool) {
	c, ok := e.byMember[member]
	return c, ok
}

// Keys returns the primary-key columns in declaration order.
func (e *Entity) Keys() []*Column {
	var keys []*Column
	for _, c := range e.Columns {
		if c.Key {
			keys = append(keys, c)
		}
	}
	return keys
}

// Type returns the Go type rows of this entity materialize as.
func (e *Entity) Type() reflect.Type {
	if e.GoType != nil {
		return e.GoType
	}
	return reflect.TypeOf(map[string]any{})
}

// Association is a resolved reference or collection member.
//
// ThisKeys are columns of the entity owning the member, OtherKeys are
// columns of Target; they pair up by position.
type Association struct {
	Member     string
	Target     *Entity
	ThisKeys   []*Column
	OtherKeys  []*Column
	Nullable   bool
	Collection bool

	// Referencing reports whether the owning entity holds the foreign key
	// (a forward navigation). When false the target holds it.
	Referencing bool
}

// Model is the entity registry.
type Model struct {
	entities map[string]*Entity
	byType   map[reflect.Type]*Entity
}

// New returns an empty model.
func New() *Model {
	return &Model{
		entities: map[string]*Entity{},
		byType:   map[reflect.Type]*Entity{},
	}
}

// Add registers an entity.
func (m *Model) Add(e *Entity) error {
	if _, exists := m.entities[e.Name]; exists {
		return fmt.Errorf("entity %q already defined", e.Name)
	}
	m.entities[e.Name] = e
	if e.GoType != nil {
		m.byType[e.GoType] = e
	}
	return nil
}

// Entity returns the entity named name.
func (m *Model) Entity(name string) (*Entity, bool) {
	e, ok := m.entities[name]
	return e, ok
}

// EntityFor returns the entity bound to Go type t.
func (m *Model) EntityFor(t reflect.Type) (*Entity, bool) {
	e, ok := m.byType[t]
	return e, ok
}

// Names returns entity names in sorted order.
func (m *Model) Names() []string {
	names := make([]string, 0, len(m.entities))
	for name := range m.entities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Bind attaches Go struct type t to the named entity. Every mapped column
// must correspond to an exported field of the same member name; the field's
// type becomes the member type.
func (m *Model) Bind(name string, t reflect.Type) error {
	e, ok := m.entities[name]
	if !ok {
		return fmt.Errorf("bind %s: unknown entity", name)
	}
	if t.Kind() != reflect.Struct {
		return fmt.Errorf("bind %s: %s is not a struct type", name, t)
	}
	for _, c := range e.Columns {
		f, ok := t.FieldByName(c.Member)
		if !ok {
			return fmt.Errorf("bind %s: %s has no field %s", name, t, c.Member)
		}
		c.Type = f.Type
		c.FieldIndex = f.Index
	}
	if e.GoType != nil {
		delete(m.byType, e.GoType)
	}
	e.GoType = t
	m.byType[t] = e
	return nil
}

// Resolve validates associations and attaches stored→member converters to
// every column. It must be called after all entities are added and bound.
func (m *Model) Resolve(reg *convert.Registry) error {
	for _, name := range m.Names() {
		e := m.entities[name]
		for _, c := range e.Columns {
			conv, ok := reg.Lookup(c.StoredType, c.Type)
			if !ok {
				return fmt.Errorf("entity %s: no converter from %s to %s for column %s",
					e.Name, c.StoredType, c.Type, c.Name)
			}
			c.Converter = conv
		}
		for member := range e.References {
			if _, err := m.Association(e, member); err != nil {
				return err
			}
		}
		for member := range e.Collections {
			if _, err := m.Association(e, member); err != nil {
				return err
			}
		}
	}
	return nil
}

// Association resolves a reference or collection member of e.
func (m *Model) Association(e *Entity, member string) (*Association, error) {
	if r, ok := e.References[member]; ok {
		target, ok := m.entities[r.Target]
		if !ok {
			return nil, fmt.Errorf("%s.%s: unknown target entity %q", e.Name, member, r.Target)
		}
		if r.Via != "" {
			back, ok := target.References[r.Via]
			if !ok {
				return nil, fmt.Errorf("%s.%s: %s has no reference %q", e.Name, member, target.Name, r.Via)
			}
			fk, err := columns(target, back.Keys)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", e.Name, member, err)
			}
			return &Association{
				Member:    member,
				Target:    target,
				ThisKeys:  e.Keys(),
				OtherKeys: fk,
				Nullable:  true,
			}, nil
		}
		fk, err := columns(e, r.Keys)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", e.Name, member, err)
		}
		nullable := r.Nullable
		for _, c := range fk {
			nullable = nullable || c.Nullable
		}
		return &Association{
			Member:      member,
			Target:      target,
			ThisKeys:    fk,
			OtherKeys:   target.Keys(),
			Nullable:    nullable,
			Referencing: true,
		}, nil
	}

	if c, ok := e.Collections[member]; ok {
		target, ok := m.entities[c.Target]
		if !ok {
			return nil, fmt.Errorf("%s.%s: unknown target entity %q", e.Name, member, c.Target)
		}
		back, ok := target.References[c.Via]
		if !ok {
			return nil, fmt.Errorf("%s.%s: %s has no reference %q", e.Name, member, target.Name, c.Via)
		}
		fk, err := columns(target, back.Keys)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", e.Name, member, err)
		}
		return &Association{
			Member:     member,
			Target:     target,
			ThisKeys:   e.Keys(),
			OtherKeys:  fk,
			Nullable:   true,
			Collection: true,
		}, nil
	}

	return nil, fmt.Errorf("%s has no association member %q", e.Name, member)
}

func columns(e *Entity, members []string) ([]*Column, error) {
	out := make([]*Column, 0, len(members))
	for _, m := range members {
		c, ok := e.Column(m)
		if !ok {
			return nil, fmt.Errorf("%s has no column member %q", e.Name, m)
		}
		out = append(out, c)
	}
	return out, nil
}
