package expr

import (
	"reflect"

	"github.com/roach88/orq/internal/convert"
	"github.com/roach88/orq/internal/model"
)

// Node is a sealed interface over every expression kind the translator
// understands. Only types in this package implement it, so type switches in
// the kernel and in every pass can be exhaustive.
//
// All node kinds are pointer types. Identity comparison (==) between two
// Nodes is therefore always safe and is what the kernel uses to detect that a
// rewrite left a subtree unchanged.
type Node interface {
	// Type returns the Go type the node evaluates to, or nil when unknown
	// (for example a member access on an untyped record).
	Type() reflect.Type

	node() // Marker method - seals interface to this package
}

var (
	boolType = reflect.TypeOf(false)
	intType  = reflect.TypeOf(0)

	// RowType is the value type of an entity that has no Go struct bound:
	// rows materialize as member-name keyed maps.
	RowType = reflect.TypeOf(map[string]any{})
)

// BoolType returns the bool reflect.Type.
func BoolType() reflect.Type { return boolType }

// IntType returns the int reflect.Type.
func IntType() reflect.Type { return intType }

// Constant is a literal value embedded in the query. Constants are part of
// the query shape and are formatted inline by the dialect.
type Constant struct {
	Value any
	Typ   reflect.Type
}

func (*Constant) node()                 {}
func (c *Constant) Type() reflect.Type { return c.Typ }

// Parameter is a lambda parameter. It is bound by the analyzer to the value
// flowing through the query chain (an entity row, a projection, a group).
type Parameter struct {
	Name string
	Typ  reflect.Type
}

func (*Parameter) node()                 {}
func (p *Parameter) Type() reflect.Type { return p.Typ }

// Argument is a call-site argument of the compiled query. Sub-expressions
// that depend only on arguments become ExternalValues during translation.
type Argument struct {
	Index int
	Name  string
	Typ   reflect.Type
}

func (*Argument) node()                 {}
func (a *Argument) Type() reflect.Type { return a.Typ }

// UnaryOp enumerates unary operators.
type UnaryOp string

const (
	OpNot     UnaryOp = "not"
	OpNegate  UnaryOp = "neg"
	OpConvert UnaryOp = "convert"
)

// Unary applies a unary operator. For OpConvert, Typ is the target type.
type Unary struct {
	Op      UnaryOp
	Operand Node
	Typ     reflect.Type
}

func (*Unary) node() {}

func (u *Unary) Type() reflect.Type {
	switch u.Op {
	case OpNot:
		return boolType
	case OpConvert:
		return u.Typ
	default:
		return u.Operand.Type()
	}
}

// BinaryOp enumerates binary operators.
type BinaryOp string

const (
	OpAdd       BinaryOp = "+"
	OpSub       BinaryOp = "-"
	OpMul       BinaryOp = "*"
	OpDiv       BinaryOp = "/"
	OpMod       BinaryOp = "%"
	OpEqual     BinaryOp = "="
	OpNotEqual  BinaryOp = "<>"
	OpLess      BinaryOp = "<"
	OpLessEq    BinaryOp = "<="
	OpGreater   BinaryOp = ">"
	OpGreaterEq BinaryOp = ">="
	OpAnd       BinaryOp = "AND"
	OpOr        BinaryOp = "OR"
	OpCoalesce  BinaryOp = "??"
)

// IsComparison reports whether op yields a boolean from two values.
func (op BinaryOp) IsComparison() bool {
	switch op {
	case OpEqual, OpNotEqual, OpLess, OpLessEq, OpGreater, OpGreaterEq:
		return true
	}
	return false
}

// IsLogical reports whether op is AND or OR.
func (op BinaryOp) IsLogical() bool {
	return op == OpAnd || op == OpOr
}

// Binary applies a binary operator.
type Binary struct {
	Op    BinaryOp
	Left  Node
	Right Node
}

func (*Binary) node() {}

func (b *Binary) Type() reflect.Type {
	if b.Op.IsComparison() || b.Op.IsLogical() {
		return boolType
	}
	if b.Op == OpCoalesce {
		if t := b.Right.Type(); t != nil {
			return t
		}
	}
	if t := b.Left.Type(); t != nil {
		return t
	}
	return b.Right.Type()
}

// Conditional is a ternary test ? ifTrue : ifFalse.
type Conditional struct {
	Test    Node
	IfTrue  Node
	IfFalse Node
}

func (*Conditional) node() {}

func (c *Conditional) Type() reflect.Type {
	if t := c.IfTrue.Type(); t != nil {
		return t
	}
	return c.IfFalse.Type()
}

// Member is a named member access (struct field, entity member, record key).
type Member struct {
	Target Node
	Name   string
	Typ    reflect.Type
}

func (*Member) node()                 {}
func (m *Member) Type() reflect.Type { return m.Typ }

// New constructs an object from named members. Typ is either a struct type
// (names are field names) or RowType (names are map keys).
type New struct {
	Typ   reflect.Type
	Names []string
	Args  []Node
}

func (*New) node()                 {}
func (n *New) Type() reflect.Type { return n.Typ }

// Arg returns the constructor argument for the named member.
func (n *New) Arg(name string) (Node, bool) {
	for i, nm := range n.Names {
		if nm == name {
			return n.Args[i], true
		}
	}
	return nil, false
}

// Call is a method application. Query operators (Where, Select, ...) are
// Calls whose first argument is the source sequence. Fn, when set, is a Go
// function that evaluates the call in client code after fetch.
type Call struct {
	Method string
	Args   []Node
	Fn     any
	Typ    reflect.Type
}

func (*Call) node()                 {}
func (c *Call) Type() reflect.Type { return c.Typ }

// Lambda is a function literal: Params => Body.
type Lambda struct {
	Params []*Parameter
	Body   Node
}

func (*Lambda) node()                 {}
func (l *Lambda) Type() reflect.Type { return l.Body.Type() }

// EntitySet is a query source over all rows of a mapped entity.
type EntitySet struct {
	Entity string
	Typ    reflect.Type
}

func (*EntitySet) node()                 {}
func (s *EntitySet) Type() reflect.Type { return s.Typ }

// JoinKind is the SQL join kind of a TableRef.
type JoinKind string

const (
	JoinNone      JoinKind = ""
	JoinInner     JoinKind = "INNER"
	JoinLeftOuter JoinKind = "LEFT OUTER"
)

// Table is a TableRef: a registered handle to a logical table within the
// scope arena. Identity is the logical identity (entity + join path); two
// Tables with the same Identity are the same logical table. Alias and Scope
// are assigned by the registrar and mutate in place; the pointer is the
// handle every Column refers to.
type Table struct {
	Entity   *model.Entity
	Identity string
	Join     Node
	Kind     JoinKind
	Alias    string
	Scope    int

	// Derived is the id of the scope this table selects from, or 0 for
	// a physical table.
	Derived int
}

func (*Table) node() {}

func (t *Table) Type() reflect.Type {
	if t.Entity != nil && t.Entity.GoType != nil {
		return t.Entity.GoType
	}
	return RowType
}

// Column is a ColumnRef: a column of a registered table.
type Column struct {
	Table *Table
	Meta  *model.Column
}

func (*Column) node()                 {}
func (c *Column) Type() reflect.Type { return c.Meta.Type }

// Name returns the stored column name.
func (c *Column) Name() string { return c.Meta.Name }

// FuncKind tags a vendor-neutral SQL function.
type FuncKind string

const (
	FuncIsNull       FuncKind = "IsNull"
	FuncIsNotNull    FuncKind = "IsNotNull"
	FuncLike         FuncKind = "Like"
	FuncStartsWith   FuncKind = "StartsWith"
	FuncEndsWith     FuncKind = "EndsWith"
	FuncContainsText FuncKind = "ContainsText"
	FuncUpper        FuncKind = "Upper"
	FuncLower        FuncKind = "Lower"
	FuncLength       FuncKind = "Length"
	FuncSubstring    FuncKind = "Substring"
	FuncTrim         FuncKind = "Trim"
	FuncConcat       FuncKind = "Concat"
	FuncDateDiffDays FuncKind = "DateDiffDays"
	FuncIn           FuncKind = "In"
	FuncExists       FuncKind = "Exists"
	FuncCount        FuncKind = "Count"
	FuncCountStar    FuncKind = "CountStar"
	FuncSum          FuncKind = "Sum"
	FuncMin          FuncKind = "Min"
	FuncMax          FuncKind = "Max"
	FuncAvg          FuncKind = "Avg"
)

// IsAggregate reports whether the function aggregates over a group.
func (k FuncKind) IsAggregate() bool {
	switch k {
	case FuncCount, FuncCountStar, FuncSum, FuncMin, FuncMax, FuncAvg:
		return true
	}
	return false
}

// IsPredicate reports whether the function yields a SQL boolean condition.
func (k FuncKind) IsPredicate() bool {
	switch k {
	case FuncIsNull, FuncIsNotNull, FuncLike, FuncStartsWith, FuncEndsWith,
		FuncContainsText, FuncIn, FuncExists:
		return true
	}
	return false
}

// Function is a SqlFunctionCall.
type Function struct {
	Kind FuncKind
	Args []Node
	Typ  reflect.Type
}

func (*Function) node()                 {}
func (f *Function) Type() reflect.Type { return f.Typ }

// Usage classifies how an ExternalValue reaches the database.
type Usage int

const (
	NotUsed Usage = iota
	UsageParameter
	UsageLiteral
)

func (u Usage) String() string {
	switch u {
	case UsageParameter:
		return "Parameter"
	case UsageLiteral:
		return "Literal"
	default:
		return "NotUsed"
	}
}

// External is an ExternalValue: a placeholder for a value supplied at
// execution time. Source is evaluated against the call-site arguments.
type External struct {
	ID     int
	Source Node
	Typ    reflect.Type
	Usage  Usage
}

func (*External) node()                 {}
func (e *External) Type() reflect.Type { return e.Typ }

// Subquery references a nested scope of the arena that yields a scalar or is
// used under EXISTS.
type Subquery struct {
	Scope int
	Typ   reflect.Type
}

func (*Subquery) node()                 {}
func (s *Subquery) Type() reflect.Type { return s.Typ }

// ReadColumn is the scalar reader leaf the tier splitter substitutes for a
// database-evaluated value.
type ReadColumn struct {
	Index   int
	Typ     reflect.Type
	Null    any
	Convert convert.Func
}

func (*ReadColumn) node()                 {}
func (r *ReadColumn) Type() reflect.Type { return r.Typ }

// ReadRow is the row-materialization leaf the tier splitter substitutes for a
// database-evaluated table: one column index and converter per member.
type ReadRow struct {
	Table      *Table
	Members    []*model.Column
	Indexes    []int
	Converters []convert.Func
}

func (*ReadRow) node()                 {}
func (r *ReadRow) Type() reflect.Type { return r.Table.Type() }
