package shape

import (
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/orq/internal/expr"
)

type book struct {
	ID    int64
	Title string
	Price float64
}

var bookType = reflect.TypeOf(book{})

func priceAbove(limit expr.Node) *expr.Query {
	arg := expr.Arg(0, "min", reflect.TypeOf(0.0))
	b := expr.Param("b", bookType)
	body := expr.Where(expr.From("Book", bookType), expr.Lam(expr.Gt(expr.Field(b, "Price"), limit), b))
	return expr.NewQuery(body, arg)
}

func TestKeyDeterminism(t *testing.T) {
	q := priceAbove(expr.Arg(0, "min", reflect.TypeOf(0.0)))

	k1, err := Key(q)
	require.NoError(t, err)
	k2, err := Key(q)
	require.NoError(t, err)

	assert.Equal(t, k1, k2)
	assert.Len(t, k1, 64, "SHA-256 hex is 64 characters")
}

func TestKeyIgnoresArgumentValuesButNotConstants(t *testing.T) {
	byArg1, err := Key(priceAbove(expr.Arg(0, "min", reflect.TypeOf(0.0))))
	require.NoError(t, err)
	byArg2, err := Key(priceAbove(expr.Arg(0, "min", reflect.TypeOf(0.0))))
	require.NoError(t, err)
	assert.Equal(t, byArg1, byArg2)

	ten, err := Key(priceAbove(expr.Const(10.0)))
	require.NoError(t, err)
	eleven, err := Key(priceAbove(expr.Const(11.0)))
	require.NoError(t, err)
	assert.NotEqual(t, ten, eleven)
	assert.NotEqual(t, byArg1, ten)
}

func TestMutationKeyDiffersFromQueryKey(t *testing.T) {
	q := priceAbove(expr.Const(1.0))
	qk, err := Key(q)
	require.NoError(t, err)
	mk, err := MutationKey(q, "DELETE", "Book")
	require.NoError(t, err)
	uk, err := MutationKey(q, "UPDATE", "Book")
	require.NoError(t, err)

	assert.NotEqual(t, qk, mk)
	assert.NotEqual(t, mk, uk)
}

func TestCanonicalNormalizesStrings(t *testing.T) {
	// "é" as one code point and as e + combining acute.
	composed := expr.NewQuery(expr.Const("caf\u00e9"))
	decomposed := expr.NewQuery(expr.Const("cafe\u0301"))

	a, err := Canonical(composed)
	require.NoError(t, err)
	b, err := Canonical(decomposed)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestCanonicalKeyOrderAndEscaping(t *testing.T) {
	got, err := Canonical(expr.NewQuery(expr.Const("<a & b>\u2028")))
	require.NoError(t, err)

	s := string(got)
	assert.True(t, strings.HasPrefix(s, `{"args":[],"body":{`), s)
	assert.Contains(t, s, "<a & b>\u2028")
}

func TestCanonicalRejectsTranslationNodes(t *testing.T) {
	_, err := Canonical(expr.NewQuery(&expr.ReadColumn{Index: 0}))
	assert.Error(t, err)
}

func TestCompareKeysRFC8785(t *testing.T) {
	// U+1F600 sorts after U+FB01 in UTF-8 but before it in UTF-16.
	assert.Negative(t, compareKeysRFC8785("\U0001F600", "\uFB01"))
	assert.Negative(t, compareKeysRFC8785("a", "ab"))
	assert.Zero(t, compareKeysRFC8785("k", "k"))
}
