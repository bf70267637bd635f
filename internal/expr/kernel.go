package expr

import (
	"errors"
	"fmt"
)

// ErrUnknownNode is returned when the kernel meets a node kind it does not
// know. With a sealed grammar this only happens for nil nodes or when a new
// kind is added without extending Operands/Rebuild.
var ErrUnknownNode = errors.New("unknown expression node")

// Func is a rewrite callback applied by Recurse.
type Func func(Node) (Node, error)

// Operands returns the ordered child nodes of n.
//
// Lambda parameters are not operands: a Lambda's only operand is its body.
// Tables, columns, external values and reader leaves are leaves; a table's
// join condition is owned by the scope arena and rewritten separately.
func Operands(n Node) ([]Node, error) {
	switch e := n.(type) {
	case *Constant, *Parameter, *Argument, *EntitySet, *Table, *Column,
		*External, *Subquery, *ReadColumn, *ReadRow:
		return nil, nil
	case *Unary:
		return []Node{e.Operand}, nil
	case *Binary:
		return []Node{e.Left, e.Right}, nil
	case *Conditional:
		return []Node{e.Test, e.IfTrue, e.IfFalse}, nil
	case *Member:
		return []Node{e.Target}, nil
	case *New:
		return e.Args, nil
	case *Call:
		return e.Args, nil
	case *Lambda:
		return []Node{e.Body}, nil
	case *Function:
		return e.Args, nil
	default:
		return nil, fmt.Errorf("operands of %T: %w", n, ErrUnknownNode)
	}
}

// Rebuild returns n with its operands replaced by ops. When every element of
// ops is identical to the current operand, n itself is returned so that
// reference-equality checks further down the pipeline stay valid.
func Rebuild(n Node, ops []Node) (Node, error) {
	current, err := Operands(n)
	if err != nil {
		return nil, err
	}
	if len(current) != len(ops) {
		return nil, fmt.Errorf("rebuild %T: expected %d operands, got %d", n, len(current), len(ops))
	}
	if sameNodes(current, ops) {
		return n, nil
	}

	switch e := n.(type) {
	case *Unary:
		return &Unary{Op: e.Op, Operand: ops[0], Typ: e.Typ}, nil
	case *Binary:
		return &Binary{Op: e.Op, Left: ops[0], Right: ops[1]}, nil
	case *Conditional:
		return &Conditional{Test: ops[0], IfTrue: ops[1], IfFalse: ops[2]}, nil
	case *Member:
		return &Member{Target: ops[0], Name: e.Name, Typ: e.Typ}, nil
	case *New:
		return &New{Typ: e.Typ, Names: e.Names, Args: ops}, nil
	case *Call:
		return &Call{Method: e.Method, Args: ops, Fn: e.Fn, Typ: e.Typ}, nil
	case *Lambda:
		return &Lambda{Params: e.Params, Body: ops[0]}, nil
	case *Function:
		return &Function{Kind: e.Kind, Args: ops, Typ: e.Typ}, nil
	default:
		return nil, fmt.Errorf("rebuild %T: %w", n, ErrUnknownNode)
	}
}

// Recurse rewrites n bottom-up: every operand is recursed into first, the
// node is rebuilt with the transformed operands, and f is applied to the
// rebuilt node. Nodes whose subtree did not change keep their identity.
func Recurse(n Node, f Func) (Node, error) {
	ops, err := Operands(n)
	if err != nil {
		return nil, err
	}
	if len(ops) > 0 {
		var next []Node
		for i, op := range ops {
			rewritten, err := Recurse(op, f)
			if err != nil {
				return nil, err
			}
			if rewritten != op && next == nil {
				next = make([]Node, len(ops))
				copy(next, ops)
			}
			if next != nil {
				next[i] = rewritten
			}
		}
		if next != nil {
			n, err = Rebuild(n, next)
			if err != nil {
				return nil, err
			}
		}
	}
	return f(n)
}

// Inspect walks n pre-order and calls f for every node. Returning false from
// f skips the node's operands.
func Inspect(n Node, f func(Node) bool) {
	if n == nil || !f(n) {
		return
	}
	ops, _ := Operands(n)
	for _, op := range ops {
		Inspect(op, f)
	}
}

func sameNodes(a, b []Node) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
