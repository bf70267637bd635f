package translate

import (
	"github.com/roach88/orq/internal/expr"
)

// OpKind is the kind of one logical operation.
type OpKind string

const (
	OpSource   OpKind = "Source"
	OpFilter   OpKind = "Filter"
	OpProject  OpKind = "Project"
	OpOrderBy  OpKind = "OrderBy"
	OpThenBy   OpKind = "ThenBy"
	OpGroupBy  OpKind = "GroupBy"
	OpSkip     OpKind = "Skip"
	OpTake     OpKind = "Take"
	OpDistinct OpKind = "Distinct"
	OpJoin     OpKind = "Join"
	OpTerminal OpKind = "Terminal"
)

// Operation is one step of a decomposed query chain.
type Operation struct {
	Kind OpKind

	// Method is the chain method the operation came from.
	Method string

	// Source is the entity set of an OpSource, or the inner sequence of an
	// OpJoin.
	Source expr.Node

	// Lambdas holds the operation's function arguments in call order:
	// predicate, selector, key (and element selector for GroupBy; outer
	// key, inner key and result selector for Join). It is empty for Skip,
	// Take, Distinct and predicate-less terminals.
	Lambdas []*expr.Lambda

	// Count is the row count of Skip and Take.
	Count expr.Node

	Descending bool

	// Call is the originating call, for error reporting.
	Call *expr.Call
}

// Lambda returns the i-th lambda or nil.
func (op Operation) Lambda(i int) *expr.Lambda {
	if i < len(op.Lambdas) {
		return op.Lambdas[i]
	}
	return nil
}

// terminals are chain-ending methods; each takes an optional predicate.
var terminals = map[string]bool{
	"First": true, "FirstOrDefault": true,
	"Single": true, "SingleOrDefault": true,
	"Last": true, "LastOrDefault": true,
	"Count": true, "Any": true, "All": true,
}

// Decompose flattens a method chain into operations ordered from the source
// to the final operation.
func Decompose(n expr.Node) ([]Operation, error) {
	var rev []Operation
	for {
		switch x := n.(type) {
		case *expr.EntitySet:
			rev = append(rev, Operation{Kind: OpSource, Method: "From", Source: x})
			out := make([]Operation, len(rev))
			for i, op := range rev {
				out[len(rev)-1-i] = op
			}
			return out, nil

		case *expr.Call:
			op, next, err := decomposeCall(x)
			if err != nil {
				return nil, err
			}
			rev = append(rev, op)
			n = next

		default:
			return nil, failf(UnsupportedConstruct, "%s is not a query source or chain method", expr.String(n))
		}
	}
}

func decomposeCall(c *expr.Call) (Operation, expr.Node, error) {
	if len(c.Args) == 0 || c.Fn != nil {
		return Operation{}, nil, failf(UnsupportedConstruct, "method %s is not a query operator", c.Method)
	}
	src := c.Args[0]
	rest := c.Args[1:]

	lambdas := func(min, max int) ([]*expr.Lambda, error) {
		if len(rest) < min || len(rest) > max {
			return nil, failf(UnsupportedConstruct, "%s takes %d to %d function arguments, got %d", c.Method, min, max, len(rest))
		}
		out := make([]*expr.Lambda, len(rest))
		for i, a := range rest {
			l, ok := a.(*expr.Lambda)
			if !ok {
				return nil, failf(UnsupportedConstruct, "%s argument %d must be a function, got %s", c.Method, i+1, expr.String(a))
			}
			out[i] = l
		}
		return out, nil
	}

	op := Operation{Method: c.Method, Call: c}
	var err error

	switch c.Method {
	case "Where":
		op.Kind = OpFilter
		op.Lambdas, err = lambdas(1, 1)
	case "Select":
		op.Kind = OpProject
		op.Lambdas, err = lambdas(1, 1)
	case "OrderBy", "OrderByDescending":
		op.Kind = OpOrderBy
		op.Descending = c.Method == "OrderByDescending"
		op.Lambdas, err = lambdas(1, 1)
	case "ThenBy", "ThenByDescending":
		op.Kind = OpThenBy
		op.Descending = c.Method == "ThenByDescending"
		op.Lambdas, err = lambdas(1, 1)
	case "GroupBy":
		op.Kind = OpGroupBy
		op.Lambdas, err = lambdas(1, 2)
	case "Skip", "Take":
		op.Kind = OpSkip
		if c.Method == "Take" {
			op.Kind = OpTake
		}
		if len(rest) != 1 {
			return op, nil, failf(UnsupportedConstruct, "%s takes one count argument", c.Method)
		}
		op.Count = rest[0]
	case "Distinct":
		op.Kind = OpDistinct
		if len(rest) != 0 {
			return op, nil, failf(UnsupportedConstruct, "Distinct takes no arguments")
		}
	case "Join":
		op.Kind = OpJoin
		if len(rest) != 4 {
			return op, nil, failf(UnsupportedConstruct, "Join takes an inner source and three functions")
		}
		op.Source = rest[0]
		rest = rest[1:]
		op.Lambdas, err = lambdas(3, 3)
	default:
		if !terminals[c.Method] {
			return op, nil, failf(UnsupportedConstruct, "unsupported query method %s", c.Method)
		}
		op.Kind = OpTerminal
		op.Lambdas, err = lambdas(0, 1)
	}
	if err != nil {
		return op, nil, err
	}
	return op, src, nil
}
