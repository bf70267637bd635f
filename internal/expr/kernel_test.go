package expr

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/orq/internal/model"
)

type book struct {
	ID    int64
	Title string
	Price float64
}

var bookType = reflect.TypeOf(book{})

func TestOperands_Order(t *testing.T) {
	a, b, c := Const(1), Const(2), Const(3)

	testCases := []struct {
		name string
		node Node
		want []Node
	}{
		{"binary", Add(a, b), []Node{a, b}},
		{"unary", Neg(a), []Node{a}},
		{"conditional", If(a, b, c), []Node{a, b, c}},
		{"new", Record([]string{"x", "y"}, a, b), []Node{a, b}},
		{"function", Fn(FuncUpper, nil, c), []Node{c}},
		{"call", Method("Contains", nil, a, b), []Node{a, b}},
		{"constant", a, nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Operands(tc.node)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestOperands_LambdaBodyOnly(t *testing.T) {
	p := Param("b", bookType)
	lam := Lam(Field(p, "Price"), p)

	ops, err := Operands(lam)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Same(t, lam.Body, ops[0])
}

func TestOperands_Unknown(t *testing.T) {
	_, err := Operands(nil)
	assert.True(t, errors.Is(err, ErrUnknownNode))
}

func TestRebuild_SameChildrenKeepsIdentity(t *testing.T) {
	n := Add(Const(1), Const(2))

	got, err := Rebuild(n, []Node{n.Left, n.Right})
	require.NoError(t, err)
	assert.Same(t, n, got)
}

func TestRebuild_ArityMismatch(t *testing.T) {
	_, err := Rebuild(Add(Const(1), Const(2)), []Node{Const(1)})
	assert.Error(t, err)
}

func TestRecurse_IdentityFunctionPreservesTree(t *testing.T) {
	p := Param("b", bookType)
	tree := Where(From("Book", bookType), Lam(And(Gt(Field(p, "Price"), Const(10.0)), Not(Eq(Field(p, "Title"), Const("x")))), p))

	got, err := Recurse(tree, func(n Node) (Node, error) { return n, nil })
	require.NoError(t, err)
	assert.Same(t, Node(tree), got)
}

func TestRecurse_PostOrder(t *testing.T) {
	var visited []string
	tree := Add(Mul(Const(1), Const(2)), Const(3))

	_, err := Recurse(tree, func(n Node) (Node, error) {
		visited = append(visited, String(n))
		return n, nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "2", "(1 * 2)", "3", "((1 * 2) + 3)"}, visited)
}

func TestRecurse_RewritesOnlyChangedPath(t *testing.T) {
	left := Mul(Const(1), Const(2))
	right := Sub(Const(5), Const(3))
	tree := Add(left, right)

	got, err := Recurse(tree, func(n Node) (Node, error) {
		if c, ok := n.(*Constant); ok && c.Value == 3 {
			return Const(4), nil
		}
		return n, nil
	})
	require.NoError(t, err)

	rebuilt := got.(*Binary)
	assert.NotSame(t, tree, rebuilt)
	assert.Same(t, Node(left), rebuilt.Left, "unchanged subtree must keep identity")
	assert.Equal(t, "(5 - 4)", String(rebuilt.Right))
}

func TestRecurse_PropagatesError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Recurse(Add(Const(1), Const(2)), func(n Node) (Node, error) {
		if _, ok := n.(*Binary); ok {
			return nil, boom
		}
		return n, nil
	})
	assert.ErrorIs(t, err, boom)
}

func TestInspect_SkipsChildren(t *testing.T) {
	tree := Add(Neg(Const(1)), Const(2))
	var seen []string
	Inspect(tree, func(n Node) bool {
		seen = append(seen, String(n))
		_, isUnary := n.(*Unary)
		return !isUnary
	})
	assert.Equal(t, []string{"((neg 1) + 2)", "(neg 1)", "2"}, seen)
}

func TestEqual(t *testing.T) {
	p := Param("b", bookType)
	ext := &External{Source: Arg(0, "x", intType), Typ: intType}

	testCases := []struct {
		name string
		a, b Node
		want bool
	}{
		{"same constants", Const(1), Const(1), true},
		{"different constant types", Const(1), Const(int64(1)), false},
		{"binary", Add(Field(p, "Price"), Const(1.0)), Add(Field(p, "Price"), Const(1.0)), true},
		{"binary op differs", Add(Const(1), Const(2)), Sub(Const(1), Const(2)), false},
		{"external by identity", ext, &External{Source: Arg(0, "x", intType), Typ: intType}, false},
		{"external same pointer", ext, ext, true},
		{"arguments by index", Arg(1, "a", intType), Arg(1, "b", intType), true},
		{"function", Fn(FuncUpper, nil, Const("a")), Fn(FuncUpper, nil, Const("a")), true},
		{"function kind differs", Fn(FuncUpper, nil, Const("a")), Fn(FuncLower, nil, Const("a")), false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Equal(tc.a, tc.b))
		})
	}
}

func TestEqual_ColumnsCompareByTableAndName(t *testing.T) {
	tbl := &Table{Identity: "root#1"}
	other := &Table{Identity: "root#1"}
	meta := testColumn("Price")

	assert.True(t, Equal(&Column{Table: tbl, Meta: meta}, &Column{Table: tbl, Meta: testColumn("Price")}))
	assert.False(t, Equal(&Column{Table: tbl, Meta: meta}, &Column{Table: other, Meta: meta}))
}

func TestField_InfersStructType(t *testing.T) {
	p := Param("b", bookType)

	assert.Equal(t, reflect.TypeOf(0.0), Field(p, "Price").Type())
	assert.Nil(t, Field(p, "Missing").Type())
}

func TestBinary_Type(t *testing.T) {
	assert.Equal(t, boolType, Eq(Const(1), Const(2)).Type())
	assert.Equal(t, boolType, And(Const(true), Const(false)).Type())
	assert.Equal(t, reflect.TypeOf(1.5), Add(Const(1.5), Const(2.0)).Type())
	assert.Equal(t, reflect.TypeOf(""), Bin(OpCoalesce, ConstOf(nil, nil), Const("x")).Type())
}

func TestString(t *testing.T) {
	p := Param("b", bookType)
	q := Where(From("Book", bookType), Lam(Gt(Field(p, "Price"), Arg(0, "min", reflect.TypeOf(0.0))), p))

	got := String(q)
	assert.True(t, strings.HasPrefix(got, "From<Book>.Where("), got)
	assert.Contains(t, got, "b => (b.Price > @min)")
}

func testColumn(name string) *model.Column {
	return &model.Column{Member: name, Name: name, Type: reflect.TypeOf(0.0)}
}
