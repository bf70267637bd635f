package expr

import (
	"reflect"
)

// Constructors used by query builders, the query document decoder and tests.

// Const returns a constant typed by its dynamic value.
func Const(v any) *Constant {
	return &Constant{Value: v, Typ: reflect.TypeOf(v)}
}

// ConstOf returns a constant with an explicit type (useful for typed nils).
func ConstOf(v any, t reflect.Type) *Constant {
	return &Constant{Value: v, Typ: t}
}

// Param returns a lambda parameter.
func Param(name string, t reflect.Type) *Parameter {
	return &Parameter{Name: name, Typ: t}
}

// Arg returns a call-site argument reference.
func Arg(index int, name string, t reflect.Type) *Argument {
	return &Argument{Index: index, Name: name, Typ: t}
}

// Lam returns a lambda over params.
func Lam(body Node, params ...*Parameter) *Lambda {
	return &Lambda{Params: params, Body: body}
}

// From returns an entity set source.
func From(entity string, t reflect.Type) *EntitySet {
	if t == nil {
		t = RowType
	}
	return &EntitySet{Entity: entity, Typ: t}
}

// Field returns a member access. The member type is taken from the target's
// struct type when it has a field of that name.
func Field(target Node, name string) *Member {
	var t reflect.Type
	if tt := target.Type(); tt != nil {
		if tt.Kind() == reflect.Pointer {
			tt = tt.Elem()
		}
		if tt.Kind() == reflect.Struct {
			if f, ok := tt.FieldByName(name); ok {
				t = f.Type
			}
		}
	}
	return &Member{Target: target, Name: name, Typ: t}
}

// FieldOf returns a member access with an explicit type.
func FieldOf(target Node, name string, t reflect.Type) *Member {
	return &Member{Target: target, Name: name, Typ: t}
}

// Bin returns a binary node.
func Bin(op BinaryOp, l, r Node) *Binary { return &Binary{Op: op, Left: l, Right: r} }

func Eq(l, r Node) *Binary  { return Bin(OpEqual, l, r) }
func Ne(l, r Node) *Binary  { return Bin(OpNotEqual, l, r) }
func Lt(l, r Node) *Binary  { return Bin(OpLess, l, r) }
func Le(l, r Node) *Binary  { return Bin(OpLessEq, l, r) }
func Gt(l, r Node) *Binary  { return Bin(OpGreater, l, r) }
func Ge(l, r Node) *Binary  { return Bin(OpGreaterEq, l, r) }
func And(l, r Node) *Binary { return Bin(OpAnd, l, r) }
func Or(l, r Node) *Binary  { return Bin(OpOr, l, r) }
func Add(l, r Node) *Binary { return Bin(OpAdd, l, r) }
func Sub(l, r Node) *Binary { return Bin(OpSub, l, r) }
func Mul(l, r Node) *Binary { return Bin(OpMul, l, r) }
func Div(l, r Node) *Binary { return Bin(OpDiv, l, r) }

// Not returns a logical negation.
func Not(x Node) *Unary { return &Unary{Op: OpNot, Operand: x} }

// Neg returns an arithmetic negation.
func Neg(x Node) *Unary { return &Unary{Op: OpNegate, Operand: x} }

// Convert returns a type conversion.
func Convert(x Node, t reflect.Type) *Unary { return &Unary{Op: OpConvert, Operand: x, Typ: t} }

// If returns a conditional.
func If(test, ifTrue, ifFalse Node) *Conditional {
	return &Conditional{Test: test, IfTrue: ifTrue, IfFalse: ifFalse}
}

// Record returns a New over RowType; names and args pair up by position.
func Record(names []string, args ...Node) *New {
	return &New{Typ: RowType, Names: names, Args: args}
}

// Struct returns a New constructing a value of struct type t.
func Struct(t reflect.Type, names []string, args ...Node) *New {
	return &New{Typ: t, Names: names, Args: args}
}

// Invoke returns a client-evaluated call of fn. Typ is fn's first result type.
func Invoke(name string, fn any, args ...Node) *Call {
	var t reflect.Type
	if ft := reflect.TypeOf(fn); ft != nil && ft.Kind() == reflect.Func && ft.NumOut() > 0 {
		t = ft.Out(0)
	}
	return &Call{Method: name, Args: args, Fn: fn, Typ: t}
}

// Method returns a recognized method call (string helpers, list membership,
// aggregate or quantifier over a collection).
func Method(name string, t reflect.Type, args ...Node) *Call {
	return &Call{Method: name, Args: args, Typ: t}
}

// Fn returns a SQL function node.
func Fn(kind FuncKind, t reflect.Type, args ...Node) *Function {
	return &Function{Kind: kind, Args: args, Typ: t}
}

// Query is a compiled query: a body expression over call-site arguments.
type Query struct {
	Body Node
	Args []*Argument
}

// NewQuery returns a query over the given arguments.
func NewQuery(body Node, args ...*Argument) *Query {
	return &Query{Body: body, Args: args}
}

func op(method string, t reflect.Type, src Node, args ...Node) *Call {
	return &Call{Method: method, Args: append([]Node{src}, args...), Typ: t}
}

func elementType(src Node) reflect.Type { return src.Type() }

// Where filters src by pred.
func Where(src Node, pred *Lambda) *Call {
	return op("Where", elementType(src), src, pred)
}

// Select projects src through sel.
func Select(src Node, sel *Lambda) *Call {
	return op("Select", sel.Body.Type(), src, sel)
}

// OrderBy orders src ascending by key, replacing any previous ordering.
func OrderBy(src Node, key *Lambda) *Call {
	return op("OrderBy", elementType(src), src, key)
}

// OrderByDesc orders src descending by key.
func OrderByDesc(src Node, key *Lambda) *Call {
	return op("OrderByDescending", elementType(src), src, key)
}

// ThenBy appends an ascending ordering key.
func ThenBy(src Node, key *Lambda) *Call {
	return op("ThenBy", elementType(src), src, key)
}

// ThenByDesc appends a descending ordering key.
func ThenByDesc(src Node, key *Lambda) *Call {
	return op("ThenByDescending", elementType(src), src, key)
}

// GroupBy groups src by key; elem, when non-nil, selects group elements.
func GroupBy(src Node, key *Lambda, elem *Lambda) *Call {
	if elem == nil {
		return op("GroupBy", GroupingType, src, key)
	}
	return op("GroupBy", GroupingType, src, key, elem)
}

// GroupingType is the element type of a grouped sequence.
var GroupingType = reflect.TypeOf(Grouping{})

// Grouping is the client value of one group: its key and its elements.
type Grouping struct {
	Key    any
	Values []any
}

// Skip bypasses count rows.
func Skip(src Node, count Node) *Call { return op("Skip", elementType(src), src, count) }

// Take limits src to count rows.
func Take(src Node, count Node) *Call { return op("Take", elementType(src), src, count) }

// Distinct removes duplicate rows.
func Distinct(src Node) *Call { return op("Distinct", elementType(src), src) }

// Join correlates outer and inner on equal keys and projects with result,
// a two-parameter lambda (outer, inner).
func Join(outer, inner Node, outerKey, innerKey, result *Lambda) *Call {
	return op("Join", result.Body.Type(), outer, inner, outerKey, innerKey, result)
}

// Terminal applies a terminal operator (First, Single, Count, Any, ...)
// with an optional predicate.
func Terminal(method string, src Node, pred *Lambda) *Call {
	t := elementType(src)
	switch method {
	case "Count":
		t = reflect.TypeOf(int64(0))
	case "Any", "All":
		t = boolType
	}
	if pred == nil {
		return op(method, t, src)
	}
	return op(method, t, src, pred)
}
