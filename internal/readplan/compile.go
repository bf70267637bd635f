package readplan

import (
	"fmt"
	"reflect"

	"github.com/roach88/orq/internal/expr"
)

// Plan is a compiled read plan.
type Plan struct {
	Root Node

	// Columns is the number of output columns the plan reads.
	Columns int
}

// Compile turns a tier-split projection into a plan. The projection may
// contain reader leaves (ReadColumn, ReadRow), object constructions and
// client-evaluable expressions; anything else is an error.
func Compile(n expr.Node) (*Plan, error) {
	c := &compiler{}
	root, err := c.compile(n)
	if err != nil {
		return nil, err
	}
	return &Plan{Root: root, Columns: c.columns}, nil
}

// CompileValue compiles an expression over call-site arguments only. It is
// used for parameter extraction and literal evaluation.
func CompileValue(n expr.Node) (Node, error) {
	c := &compiler{noRow: true}
	return c.compile(n)
}

// Read evaluates the plan against one row.
func (p *Plan) Read(row Row, args []any) (any, error) {
	return p.Root.Read(row, args)
}

type compiler struct {
	noRow   bool
	columns int
}

func (c *compiler) see(idx int) {
	if idx+1 > c.columns {
		c.columns = idx + 1
	}
}

func (c *compiler) all(ns []expr.Node) ([]Node, error) {
	out := make([]Node, len(ns))
	for i, n := range ns {
		p, err := c.compile(n)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

func (c *compiler) compile(n expr.Node) (Node, error) {
	switch x := n.(type) {
	case *expr.ReadColumn:
		if c.noRow {
			return nil, fmt.Errorf("column reader outside a row context")
		}
		c.see(x.Index)
		return &Column{Index: x.Index, Type: x.Typ, Null: x.Null, Convert: x.Convert}, nil

	case *expr.ReadRow:
		if c.noRow {
			return nil, fmt.Errorf("row reader outside a row context")
		}
		r := &RowRead{
			Members:    make([]string, len(x.Members)),
			Fields:     make([][]int, len(x.Members)),
			Indexes:    x.Indexes,
			Converters: x.Converters,
		}
		if x.Table.Entity != nil && x.Table.Entity.GoType != nil {
			r.Type = x.Table.Entity.GoType
		}
		for i, m := range x.Members {
			r.Members[i] = m.Member
			r.Fields[i] = m.FieldIndex
			c.see(x.Indexes[i])
			if r.Type != nil && m.FieldIndex == nil {
				return nil, fmt.Errorf("%s.%s is not bound to a struct field", x.Table.Entity.Name, m.Member)
			}
		}
		return r, nil

	case *expr.New:
		fields, err := c.all(x.Args)
		if err != nil {
			return nil, err
		}
		rec := &Record{Names: x.Names, Fields: fields}
		if x.Typ != nil && x.Typ.Kind() == reflect.Struct {
			rec.Type = x.Typ
		}
		return rec, nil

	case *expr.Constant:
		return &Constant{Value: x.Value}, nil

	case *expr.Argument:
		return &Argument{Index: x.Index}, nil

	case *expr.External:
		return c.compile(x.Source)

	case *expr.Call:
		if x.Fn == nil {
			return nil, fmt.Errorf("method %s cannot be evaluated after fetch", x.Method)
		}
		fn := reflect.ValueOf(x.Fn)
		if fn.Kind() != reflect.Func {
			return nil, fmt.Errorf("%s: %T is not a function", x.Method, x.Fn)
		}
		ft := fn.Type()
		if (!ft.IsVariadic() && ft.NumIn() != len(x.Args)) || (ft.IsVariadic() && len(x.Args) < ft.NumIn()-1) {
			return nil, fmt.Errorf("%s: function takes %d arguments, call has %d", x.Method, ft.NumIn(), len(x.Args))
		}
		args, err := c.all(x.Args)
		if err != nil {
			return nil, err
		}
		return &Call{Name: x.Method, Fn: fn, Args: args}, nil

	case *expr.Unary:
		op, err := c.compile(x.Operand)
		if err != nil {
			return nil, err
		}
		return &Unary{Op: x.Op, Operand: op, Type: x.Typ}, nil

	case *expr.Binary:
		l, err := c.compile(x.Left)
		if err != nil {
			return nil, err
		}
		r, err := c.compile(x.Right)
		if err != nil {
			return nil, err
		}
		return &Binary{Op: x.Op, Left: l, Right: r}, nil

	case *expr.Conditional:
		ops, err := c.all([]expr.Node{x.Test, x.IfTrue, x.IfFalse})
		if err != nil {
			return nil, err
		}
		return &Conditional{Test: ops[0], IfTrue: ops[1], IfFalse: ops[2]}, nil

	case *expr.Member:
		target, err := c.compile(x.Target)
		if err != nil {
			return nil, err
		}
		return &Member{Target: target, Name: x.Name}, nil

	case *expr.Function:
		if !HasClientEquivalent(x.Kind) {
			return nil, fmt.Errorf("function %s has no client equivalent", x.Kind)
		}
		args, err := c.all(x.Args)
		if err != nil {
			return nil, err
		}
		return &Function{Kind: x.Kind, Args: args}, nil
	}
	return nil, fmt.Errorf("cannot read %s after fetch", expr.String(n))
}
