package translate

import (
	"github.com/roach88/orq/internal/expr"
)

var inverse = map[expr.BinaryOp]expr.BinaryOp{
	expr.OpEqual:     expr.OpNotEqual,
	expr.OpNotEqual:  expr.OpEqual,
	expr.OpLess:      expr.OpGreaterEq,
	expr.OpGreaterEq: expr.OpLess,
	expr.OpGreater:   expr.OpLessEq,
	expr.OpLessEq:    expr.OpGreater,
}

// Optimize simplifies boolean structure bottom-up: double negation,
// negated comparisons and boolean constants folded against predicates.
// Optimize(Optimize(n)) equals Optimize(n).
func Optimize(n expr.Node) (expr.Node, error) {
	return expr.Recurse(n, simplify)
}

func simplify(n expr.Node) (expr.Node, error) {
	switch x := n.(type) {
	case *expr.Unary:
		if x.Op == expr.OpNot {
			return negate(x), nil
		}
	case *expr.Binary:
		return fold(x), nil
	}
	return n, nil
}

// negate simplifies not(x) given an already simplified x.
func negate(not *expr.Unary) expr.Node {
	switch x := not.Operand.(type) {
	case *expr.Unary:
		if x.Op == expr.OpNot {
			return x.Operand
		}
	case *expr.Binary:
		if op, ok := inverse[x.Op]; ok {
			return &expr.Binary{Op: op, Left: x.Left, Right: x.Right}
		}
	case *expr.Function:
		switch x.Kind {
		case expr.FuncIsNull:
			return &expr.Function{Kind: expr.FuncIsNotNull, Args: x.Args, Typ: x.Typ}
		case expr.FuncIsNotNull:
			return &expr.Function{Kind: expr.FuncIsNull, Args: x.Args, Typ: x.Typ}
		}
	case *expr.Constant:
		if b, ok := x.Value.(bool); ok {
			return expr.ConstOf(!b, x.Typ)
		}
	}
	return not
}

func fold(b *expr.Binary) expr.Node {
	switch b.Op {
	case expr.OpAnd, expr.OpOr, expr.OpEqual, expr.OpNotEqual:
	default:
		return b
	}

	lc, lconst := boolConstant(b.Left)
	rc, rconst := boolConstant(b.Right)
	if lconst && rconst {
		switch b.Op {
		case expr.OpAnd:
			return expr.ConstOf(lc && rc, boolType)
		case expr.OpOr:
			return expr.ConstOf(lc || rc, boolType)
		case expr.OpEqual:
			return expr.ConstOf(lc == rc, boolType)
		default:
			return expr.ConstOf(lc != rc, boolType)
		}
	}

	var (
		k     bool
		other expr.Node
	)
	switch {
	case lconst && isPredicate(b.Right):
		k, other = lc, b.Right
	case rconst && isPredicate(b.Left):
		k, other = rc, b.Left
	default:
		return b
	}

	switch b.Op {
	case expr.OpAnd:
		if k {
			return other
		}
		return expr.ConstOf(false, boolType)
	case expr.OpOr:
		if k {
			return expr.ConstOf(true, boolType)
		}
		return other
	case expr.OpEqual:
		if k {
			return other
		}
		return negate(expr.Not(other))
	default:
		if k {
			return negate(expr.Not(other))
		}
		return other
	}
}

func boolConstant(n expr.Node) (bool, bool) {
	k, ok := n.(*expr.Constant)
	if !ok {
		return false, false
	}
	b, ok := k.Value.(bool)
	return b, ok
}

// isPredicate reports whether n is itself a boolean-valued condition.
// Boolean columns and parameters do not qualify: folding against them
// would assume two-valued logic for possibly NULL values.
func isPredicate(n expr.Node) bool {
	switch x := n.(type) {
	case *expr.Binary:
		return x.Op.IsComparison() || x.Op.IsLogical()
	case *expr.Unary:
		return x.Op == expr.OpNot
	case *expr.Function:
		return x.Kind.IsPredicate()
	}
	return false
}
