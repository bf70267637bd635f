// Package readplan holds the compiled description of how a result row
// becomes a Go value.
//
// A plan is a tree of plain data nodes (column readers, row readers, object
// constructions and the client-evaluated expressions the database could not
// compute). It is interpreted by Read; nothing is generated or compiled at
// run time, so a plan can be printed, compared and shared freely. Plans are
// immutable after Compile and safe for concurrent use.
package readplan

import (
	"fmt"
	"reflect"

	"github.com/roach88/orq/internal/convert"
	"github.com/roach88/orq/internal/expr"
)

// Row is one result row in select-list order.
type Row []any

// Node is one plan node. Read evaluates it against a row and the call-site
// arguments of the query.
type Node interface {
	Read(row Row, args []any) (any, error)
}

// Column reads one scalar from the row.
type Column struct {
	Index   int
	Type    reflect.Type
	Null    any // value used when the column is NULL
	Convert convert.Func
}

// RowRead reconstructs an entity row from consecutive output columns.
type RowRead struct {
	Type       reflect.Type // struct type, or nil for a member map
	Members    []string
	Fields     [][]int // struct field index per member
	Indexes    []int
	Converters []convert.Func
}

// Record constructs a struct (Type is a struct type) or a member map.
type Record struct {
	Type   reflect.Type
	Names  []string
	Fields []Node
}

// Constant yields a fixed value.
type Constant struct {
	Value any
}

// Argument yields a call-site argument.
type Argument struct {
	Index int
}

// Call invokes a Go function with evaluated arguments.
type Call struct {
	Name string
	Fn   reflect.Value
	Args []Node
}

// Unary applies a unary operator in client code.
type Unary struct {
	Op      expr.UnaryOp
	Operand Node
	Type    reflect.Type
}

// Binary applies a binary operator in client code.
type Binary struct {
	Op          expr.BinaryOp
	Left, Right Node
}

// Conditional evaluates Test and one of its branches.
type Conditional struct {
	Test, IfTrue, IfFalse Node
}

// Member reads a struct field or map key of Target.
type Member struct {
	Target Node
	Name   string
}

// Function is the client equivalent of a SQL function.
type Function struct {
	Kind expr.FuncKind
	Args []Node
}

func (c *Column) Read(row Row, _ []any) (any, error) {
	if c.Index < 0 || c.Index >= len(row) {
		return nil, fmt.Errorf("column %d out of range (row has %d)", c.Index, len(row))
	}
	v := row[c.Index]
	if v == nil {
		return c.Null, nil
	}
	if c.Convert == nil {
		return v, nil
	}
	out, err := c.Convert(v)
	if err != nil {
		return nil, fmt.Errorf("column %d: %w", c.Index, err)
	}
	if out == nil {
		return c.Null, nil
	}
	return out, nil
}

func (r *RowRead) Read(row Row, _ []any) (any, error) {
	values := make([]any, len(r.Members))
	for i, idx := range r.Indexes {
		if idx < 0 || idx >= len(row) {
			return nil, fmt.Errorf("%s: column %d out of range", r.Members[i], idx)
		}
		v := row[idx]
		if v != nil && r.Converters[i] != nil {
			var err error
			if v, err = r.Converters[i](v); err != nil {
				return nil, fmt.Errorf("%s: %w", r.Members[i], err)
			}
		}
		values[i] = v
	}

	if r.Type == nil {
		m := make(map[string]any, len(values))
		for i, name := range r.Members {
			m[name] = values[i]
		}
		return m, nil
	}
	out := reflect.New(r.Type).Elem()
	for i, v := range values {
		if err := assign(out.FieldByIndex(r.Fields[i]), v); err != nil {
			return nil, fmt.Errorf("%s.%s: %w", r.Type, r.Members[i], err)
		}
	}
	return out.Interface(), nil
}

func (r *Record) Read(row Row, args []any) (any, error) {
	if r.Type == nil || r.Type.Kind() != reflect.Struct {
		m := make(map[string]any, len(r.Names))
		for i, name := range r.Names {
			v, err := r.Fields[i].Read(row, args)
			if err != nil {
				return nil, err
			}
			m[name] = v
		}
		return m, nil
	}

	out := reflect.New(r.Type).Elem()
	for i, name := range r.Names {
		v, err := r.Fields[i].Read(row, args)
		if err != nil {
			return nil, err
		}
		f := out.FieldByName(name)
		if !f.IsValid() {
			return nil, fmt.Errorf("%s has no field %s", r.Type, name)
		}
		if err := assign(f, v); err != nil {
			return nil, fmt.Errorf("%s.%s: %w", r.Type, name, err)
		}
	}
	return out.Interface(), nil
}

func (c *Constant) Read(Row, []any) (any, error) { return c.Value, nil }

func (a *Argument) Read(_ Row, args []any) (any, error) {
	if a.Index < 0 || a.Index >= len(args) {
		return nil, fmt.Errorf("argument %d not supplied (got %d)", a.Index, len(args))
	}
	return args[a.Index], nil
}

func (c *Call) Read(row Row, args []any) (any, error) {
	ft := c.Fn.Type()
	in := make([]reflect.Value, len(c.Args))
	for i, a := range c.Args {
		v, err := a.Read(row, args)
		if err != nil {
			return nil, err
		}
		var pt reflect.Type
		if ft.IsVariadic() && i >= ft.NumIn()-1 {
			pt = ft.In(ft.NumIn() - 1).Elem()
		} else {
			pt = ft.In(i)
		}
		in[i], err = valueOf(v, pt)
		if err != nil {
			return nil, fmt.Errorf("%s argument %d: %w", c.Name, i, err)
		}
	}
	out := c.Fn.Call(in)
	if len(out) == 0 {
		return nil, nil
	}
	if last := out[len(out)-1]; len(out) > 1 && last.Type().Implements(errorType) {
		if !last.IsNil() {
			return nil, fmt.Errorf("%s: %w", c.Name, last.Interface().(error))
		}
	}
	return out[0].Interface(), nil
}

func (u *Unary) Read(row Row, args []any) (any, error) {
	v, err := u.Operand.Read(row, args)
	if err != nil {
		return nil, err
	}
	switch u.Op {
	case expr.OpNot:
		if v == nil {
			return nil, nil
		}
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("not: %T is not a bool", v)
		}
		return !b, nil
	case expr.OpNegate:
		return negate(v)
	case expr.OpConvert:
		if v == nil || u.Type == nil {
			return v, nil
		}
		rv, err := valueOf(v, u.Type)
		if err != nil {
			return nil, err
		}
		return rv.Interface(), nil
	}
	return nil, fmt.Errorf("unknown unary operator %q", u.Op)
}

func (b *Binary) Read(row Row, args []any) (any, error) {
	l, err := b.Left.Read(row, args)
	if err != nil {
		return nil, err
	}
	switch b.Op {
	case expr.OpAnd, expr.OpOr:
		lb, _ := l.(bool)
		if b.Op == expr.OpAnd && !lb {
			return false, nil
		}
		if b.Op == expr.OpOr && lb {
			return true, nil
		}
		r, err := b.Right.Read(row, args)
		if err != nil {
			return nil, err
		}
		rb, _ := r.(bool)
		return rb, nil
	case expr.OpCoalesce:
		if l != nil && !isNilPointer(l) {
			return l, nil
		}
		return b.Right.Read(row, args)
	}
	r, err := b.Right.Read(row, args)
	if err != nil {
		return nil, err
	}
	return binary(b.Op, l, r)
}

func (c *Conditional) Read(row Row, args []any) (any, error) {
	t, err := c.Test.Read(row, args)
	if err != nil {
		return nil, err
	}
	if b, _ := t.(bool); b {
		return c.IfTrue.Read(row, args)
	}
	return c.IfFalse.Read(row, args)
}

func (m *Member) Read(row Row, args []any) (any, error) {
	v, err := m.Target.Read(row, args)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, nil
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Struct:
		f := rv.FieldByName(m.Name)
		if !f.IsValid() {
			return nil, fmt.Errorf("%s has no field %s", rv.Type(), m.Name)
		}
		return f.Interface(), nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		f := rv.MapIndex(reflect.ValueOf(m.Name).Convert(rv.Type().Key()))
		if !f.IsValid() {
			return nil, nil
		}
		return f.Interface(), nil
	}
	return nil, fmt.Errorf("cannot read member %s of %T", m.Name, v)
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

func isNilPointer(v any) bool {
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}

// valueOf returns v as a reflect.Value assignable to t.
func valueOf(v any, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(t), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}
	if t.Kind() == reflect.Pointer && rv.Type().ConvertibleTo(t.Elem()) {
		p := reflect.New(t.Elem())
		p.Elem().Set(rv.Convert(t.Elem()))
		return p, nil
	}
	if rv.Type().ConvertibleTo(t) && convertibleKinds(rv.Kind(), t.Kind()) {
		return rv.Convert(t), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot use %T as %s", v, t)
}

// convertibleKinds rules out reflect conversions that compile but change
// meaning, such as int to string.
func convertibleKinds(from, to reflect.Kind) bool {
	if to == reflect.String {
		return from == reflect.String
	}
	return true
}

func assign(f reflect.Value, v any) error {
	rv, err := valueOf(v, f.Type())
	if err != nil {
		return err
	}
	f.Set(rv)
	return nil
}
