package translate

import (
	"errors"
	"fmt"
	"iter"
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/orq/internal/expr"
	"github.com/roach88/orq/internal/querysql"
	"github.com/roach88/orq/internal/readplan"
	"github.com/roach88/orq/internal/testutil"
)

var (
	bookType   = reflect.TypeOf(testutil.Book{})
	authorType = reflect.TypeOf(testutil.Author{})
	reviewType = reflect.TypeOf(testutil.Review{})
	orderType  = reflect.TypeOf(testutil.Order{})
)

func newTranslator(t *testing.T, d querysql.Dialect, opts ...Option) *Translator {
	t.Helper()
	return New(testutil.Library(t), d, opts...)
}

func books() *expr.EntitySet   { return expr.From("Book", bookType) }
func authors() *expr.EntitySet { return expr.From("Author", authorType) }
func orders() *expr.EntitySet  { return expr.From("Order", orderType) }

// dump renders a command for golden comparison.
func dump(cmd *Command) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", cmd.Template)
	for _, p := range cmd.Parameters {
		fmt.Fprintf(&b, "param %d %s %s\n", p.Position, p.Name, p.Type)
	}
	return []byte(b.String())
}

func rowsOf(rows ...readplan.Row) iter.Seq2[readplan.Row, error] {
	return func(yield func(readplan.Row, error) bool) {
		for _, r := range rows {
			if !yield(r, nil) {
				return
			}
		}
	}
}

func TestTranslate_PagingWithoutOrderUsesConstantOrder(t *testing.T) {
	tr := newTranslator(t, querysql.MSSQL())
	q := expr.NewQuery(expr.Take(expr.Skip(books(), expr.Const(5)), expr.Const(10)))

	cmd, err := tr.Translate(q)
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(cmd.Template,
		` FROM [Book] ORDER BY (SELECT 1) OFFSET {2} ROWS FETCH NEXT {3} ROWS ONLY`), cmd.Template)
	require.Len(t, cmd.Parameters, 2)
	assert.Equal(t, "@P1", cmd.Parameters[0].Name)
	assert.Equal(t, "@P2", cmd.Parameters[1].Name)

	values, err := cmd.Bind()
	require.NoError(t, err)
	assert.Equal(t, []any{5, 10}, values)
	assert.True(t, cmd.Cacheable)
	assert.Nil(t, cmd.Post)
}

func TestTranslate_PagingParameterOrderFollowsText(t *testing.T) {
	q := func() *expr.Query {
		return expr.NewQuery(expr.Take(expr.Skip(books(), expr.Const(5)), expr.Const(10)))
	}

	testCases := []struct {
		dialect querysql.Dialect
		suffix  string
		want    []any
	}{
		{querysql.SQLite(), ` LIMIT {2} OFFSET {3}`, []any{10, 5}},
		{querysql.Postgres(), ` LIMIT {2} OFFSET {3}`, []any{10, 5}},
		{querysql.MSSQL(), ` OFFSET {2} ROWS FETCH NEXT {3} ROWS ONLY`, []any{5, 10}},
		{querysql.Firebird(), ` ROWS {2} + 1 TO {3}`, []any{5, 15}},
	}

	for _, tc := range testCases {
		t.Run(tc.dialect.Name(), func(t *testing.T) {
			cmd, err := newTranslator(t, tc.dialect).Translate(q())
			require.NoError(t, err)
			assert.True(t, strings.HasSuffix(cmd.Template, tc.suffix), cmd.Template)

			values, err := cmd.Bind()
			require.NoError(t, err)
			require.Len(t, values, len(tc.want))
			for i := range tc.want {
				assert.EqualValues(t, tc.want[i], values[i])
			}
		})
	}
}

func TestTranslate_PagingOrderFallbacks(t *testing.T) {
	b := expr.Param("b", bookType)

	t.Run("explicit ordering is kept", func(t *testing.T) {
		q := expr.NewQuery(expr.Take(
			expr.Select(expr.OrderBy(books(), expr.Lam(expr.Field(b, "Title"), b)), expr.Lam(expr.Field(b, "Title"), b)),
			expr.Const(3)))
		cmd, err := newTranslator(t, querysql.MSSQL()).Translate(q)
		require.NoError(t, err)
		assert.Equal(t, `SELECT [Title] FROM [Book] ORDER BY [Title] OFFSET 0 ROWS FETCH NEXT {2} ROWS ONLY`, cmd.Template)
	})

	t.Run("distinct orders by first output", func(t *testing.T) {
		q := expr.NewQuery(expr.Take(
			expr.Distinct(expr.Select(books(), expr.Lam(expr.Field(b, "Category"), b))),
			expr.Const(3)))
		cmd, err := newTranslator(t, querysql.MSSQL()).Translate(q)
		require.NoError(t, err)
		assert.Equal(t, `SELECT DISTINCT [Category] FROM [Book] ORDER BY [Category] OFFSET 0 ROWS FETCH NEXT {2} ROWS ONLY`, cmd.Template)
	})

	t.Run("projected column without constant fallback", func(t *testing.T) {
		caps := querysql.MSSQL().Capabilities()
		caps.ConstantOrderFallback = false
		d := querysql.WithCapabilities(querysql.MSSQL(), caps)

		q := expr.NewQuery(expr.Take(expr.Select(books(), expr.Lam(expr.Field(b, "Price"), b)), expr.Const(3)))
		cmd, err := newTranslator(t, d).Translate(q)
		require.NoError(t, err)
		assert.Equal(t, `SELECT [Price] FROM [Book] ORDER BY [Price] OFFSET 0 ROWS FETCH NEXT {2} ROWS ONLY`, cmd.Template)
	})

	t.Run("primary key when nothing is projected from the database", func(t *testing.T) {
		caps := querysql.MSSQL().Capabilities()
		caps.ConstantOrderFallback = false
		d := querysql.WithCapabilities(querysql.MSSQL(), caps)

		q := expr.NewQuery(expr.Take(expr.Select(books(), expr.Lam(expr.Const("x"), b)), expr.Const(3)))
		cmd, err := newTranslator(t, d).Translate(q)
		require.NoError(t, err)
		assert.Equal(t, `SELECT 1 FROM [Book] ORDER BY [ID] OFFSET 0 ROWS FETCH NEXT {2} ROWS ONLY`, cmd.Template)
	})
}

func TestTranslate_SameTableTwiceGetsDistinctAliases(t *testing.T) {
	o := expr.Param("o", orderType)
	strType := reflect.TypeOf("")
	q := expr.NewQuery(expr.Select(orders(), expr.Lam(
		expr.Record([]string{"Buyer", "Approver"},
			expr.FieldOf(expr.Field(o, "Buyer"), "Name", strType),
			expr.FieldOf(expr.Field(o, "Approver"), "Name", strType)),
		o)))

	cmd, err := newTranslator(t, querysql.SQLite()).Translate(q)
	require.NoError(t, err)
	testutil.AssertGolden(t, "self_join_aliases", dump(cmd))

	out, err := cmd.Results(rowsOf(readplan.Row{"ann", "bob"}, readplan.Row{"bob", nil}), nil)
	require.NoError(t, err)
	assert.Equal(t, []any{
		map[string]any{"Buyer": "ann", "Approver": "bob"},
		map[string]any{"Buyer": "bob", "Approver": ""},
	}, out)
}

func TestTranslate_NavigationJoinedOnce(t *testing.T) {
	o := expr.Param("o", orderType)
	strType := reflect.TypeOf("")
	buyerName := func() expr.Node { return expr.FieldOf(expr.Field(o, "Buyer"), "Name", strType) }
	q := expr.NewQuery(expr.Select(
		expr.Where(orders(), expr.Lam(expr.Eq(buyerName(), expr.Const("ann")), o)),
		expr.Lam(buyerName(), o)))

	cmd, err := newTranslator(t, querysql.SQLite()).Translate(q)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT "t1"."Name" FROM "Order" AS "t0" INNER JOIN "User" AS "t1" ON "t1"."ID" = "t0"."BuyerID" `+
			`WHERE "t1"."Name" = 'ann'`,
		cmd.Template)
}

func TestTranslate_TablePromotedOutOfSubquery(t *testing.T) {
	b := expr.Param("b", bookType)
	r := expr.Param("r", reviewType)
	strType := reflect.TypeOf("")
	authorName := func() expr.Node { return expr.FieldOf(expr.Field(b, "Author"), "Name", strType) }

	anyReview := expr.Method("Any", reflect.TypeOf(false), expr.Field(b, "Reviews"), expr.Lam(
		expr.And(expr.Gt(expr.Field(r, "Stars"), expr.Const(int64(3))), expr.Eq(authorName(), expr.Const("Lem"))),
		r))
	q := expr.NewQuery(expr.Select(
		expr.Where(books(), expr.Lam(anyReview, b)),
		expr.Lam(authorName(), b)))

	cmd, err := newTranslator(t, querysql.SQLite()).Translate(q)
	require.NoError(t, err)
	testutil.AssertGolden(t, "promoted_navigation", dump(cmd))
	assert.Equal(t, 1, strings.Count(cmd.Template, `"Author"`))
}

func TestTranslate_GroupByAggregateStaysInSQL(t *testing.T) {
	b := expr.Param("b", bookType)
	g := expr.Param("g", expr.GroupingType)
	int64Type := reflect.TypeOf(int64(0))

	q := expr.NewQuery(expr.Select(
		expr.GroupBy(books(), expr.Lam(expr.Field(b, "Category"), b), nil),
		expr.Lam(expr.Record([]string{"Key", "Count"},
			expr.Field(g, "Key"),
			expr.Method("Count", int64Type, g)), g)))

	cmd, err := newTranslator(t, querysql.SQLite()).Translate(q)
	require.NoError(t, err)
	assert.Equal(t, `SELECT "Category", COUNT(*) FROM "Book" GROUP BY "Category"`, cmd.Template)
	assert.Nil(t, cmd.Post)

	out, err := cmd.Results(rowsOf(readplan.Row{"Fiction", int64(3)}, readplan.Row{"Essays", int64(1)}), nil)
	require.NoError(t, err)
	assert.Equal(t, []any{
		map[string]any{"Key": "Fiction", "Count": int64(3)},
		map[string]any{"Key": "Essays", "Count": int64(1)},
	}, out)
}

func TestTranslate_GroupByFiltersAndAggregates(t *testing.T) {
	b := expr.Param("b", bookType)
	g := expr.Param("g", expr.GroupingType)
	int64Type := reflect.TypeOf(int64(0))
	floatType := reflect.TypeOf(0.0)

	grouped := expr.GroupBy(books(), expr.Lam(expr.Field(b, "Category"), b), nil)
	filtered := expr.Where(grouped, expr.Lam(expr.And(
		expr.Ne(expr.Field(g, "Key"), expr.Const("Poetry")),
		expr.Gt(expr.Method("Count", int64Type, g), expr.Const(int64(1)))), g))
	q := expr.NewQuery(expr.Select(filtered, expr.Lam(expr.Record([]string{"Category", "Total"},
		expr.Field(g, "Key"),
		expr.Method("Sum", floatType, g, expr.Lam(expr.Field(b, "Price"), b))), g)))

	cmd, err := newTranslator(t, querysql.SQLite()).Translate(q)
	require.NoError(t, err)
	testutil.AssertGolden(t, "group_having", dump(cmd))
}

func TestTranslate_GroupByClientElementIsReassembled(t *testing.T) {
	b := expr.Param("b", bookType)
	label := func(s string) string { return "<" + s + ">" }
	q := expr.NewQuery(expr.GroupBy(books(),
		expr.Lam(expr.Field(b, "Category"), b),
		expr.Lam(expr.Invoke("label", label, expr.Field(b, "Title")), b)))

	cmd, err := newTranslator(t, querysql.SQLite()).Translate(q)
	require.NoError(t, err)
	assert.Equal(t, `SELECT "Category", "Title" FROM "Book"`, cmd.Template)
	require.NotNil(t, cmd.Post)
	assert.Equal(t, readplan.PostGroup, cmd.Post.Kind)

	out, err := cmd.Results(rowsOf(
		readplan.Row{"Fiction", "Solaris"},
		readplan.Row{"Essays", "Summa"},
		readplan.Row{"Fiction", "Cyberiad"},
	), nil)
	require.NoError(t, err)
	assert.Equal(t, []expr.Grouping{
		{Key: "Fiction", Values: []any{"<Solaris>", "<Cyberiad>"}},
		{Key: "Essays", Values: []any{"<Summa>"}},
	}, out)
}

func TestTranslate_ClientProjectionReadsEachColumnOnce(t *testing.T) {
	b := expr.Param("b", bookType)
	title := func() expr.Node { return expr.Field(b, "Title") }
	q := expr.NewQuery(expr.Select(books(), expr.Lam(expr.Record([]string{"Title", "Shout"},
		title(), expr.Invoke("shout", strings.ToUpper, title())), b)))

	cmd, err := newTranslator(t, querysql.SQLite()).Translate(q)
	require.NoError(t, err)
	assert.Equal(t, `SELECT "Title" FROM "Book"`, cmd.Template)
	assert.Equal(t, 1, cmd.Plan.Columns)

	out, err := cmd.Results(rowsOf(readplan.Row{"Solaris"}), nil)
	require.NoError(t, err)
	assert.Equal(t, []any{map[string]any{"Title": "Solaris", "Shout": "SOLARIS"}}, out)
}

func TestTranslate_PredicatesAreOptimized(t *testing.T) {
	b := expr.Param("b", bookType)
	q := expr.NewQuery(expr.Select(
		expr.Where(books(), expr.Lam(expr.Not(expr.Le(expr.Field(b, "Price"), expr.Const(10.0))), b)),
		expr.Lam(expr.Field(b, "Title"), b)))

	cmd, err := newTranslator(t, querysql.SQLite()).Translate(q)
	require.NoError(t, err)
	assert.Equal(t, `SELECT "Title" FROM "Book" WHERE "Price" > 10`, cmd.Template)
}

func TestTranslate_CollectionAnyBecomesExists(t *testing.T) {
	a := expr.Param("a", authorType)
	b := expr.Param("b", bookType)
	q := expr.NewQuery(expr.Select(
		expr.Where(authors(), expr.Lam(expr.Method("Any", reflect.TypeOf(false), expr.Field(a, "Books"),
			expr.Lam(expr.Gt(expr.Field(b, "Price"), expr.Const(10.0)), b)), a)),
		expr.Lam(expr.Field(a, "Name"), a)))

	cmd, err := newTranslator(t, querysql.SQLite()).Translate(q)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT "t0"."Name" FROM "Author" AS "t0" WHERE EXISTS `+
			`(SELECT 1 FROM "Book" AS "t1" WHERE "t0"."ID" = "t1"."AuthorID" AND "t1"."Price" > 10)`,
		cmd.Template)
}

func TestTranslate_CollectionCountInProjection(t *testing.T) {
	b := expr.Param("b", bookType)
	int64Type := reflect.TypeOf(int64(0))
	q := expr.NewQuery(expr.Select(books(), expr.Lam(expr.Record([]string{"Title", "Reviews"},
		expr.Field(b, "Title"),
		expr.Method("Count", int64Type, expr.Field(b, "Reviews"))), b)))

	cmd, err := newTranslator(t, querysql.SQLite()).Translate(q)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT "t0"."Title", (SELECT COUNT(*) FROM "Review" AS "t1" WHERE "t0"."ID" = "t1"."BookID") `+
			`FROM "Book" AS "t0"`,
		cmd.Template)
}

func TestTranslate_Join(t *testing.T) {
	b := expr.Param("b", bookType)
	a := expr.Param("a", authorType)
	q := expr.NewQuery(expr.Join(books(), authors(),
		expr.Lam(expr.Field(b, "AuthorID"), b),
		expr.Lam(expr.Field(a, "ID"), a),
		expr.Lam(expr.Record([]string{"Title", "Author"}, expr.Field(b, "Title"), expr.Field(a, "Name")), b, a)))

	cmd, err := newTranslator(t, querysql.SQLite()).Translate(q)
	require.NoError(t, err)
	testutil.AssertGolden(t, "join", dump(cmd))
}

func TestTranslate_Terminals(t *testing.T) {
	b := expr.Param("b", bookType)
	title := func() *expr.Lambda { return expr.Lam(expr.Field(b, "Title"), b) }
	expensive := func() *expr.Lambda { return expr.Lam(expr.Gt(expr.Field(b, "Price"), expr.Const(100.0)), b) }

	testCases := []struct {
		name     string
		query    expr.Node
		template string
		post     readplan.PostKind
		bind     []any
	}{
		{
			name:     "First",
			query:    expr.Terminal("First", expr.Select(books(), title()), nil),
			template: `SELECT "Title" FROM "Book" LIMIT {2}`,
			post:     readplan.PostFirst,
			bind:     []any{1},
		},
		{
			name:     "SingleOrDefault",
			query:    expr.Terminal("SingleOrDefault", expr.Select(books(), title()), nil),
			template: `SELECT "Title" FROM "Book" LIMIT {2}`,
			post:     readplan.PostSingleOrDefault,
			bind:     []any{2},
		},
		{
			name:     "Last flips the ordering",
			query:    expr.Terminal("Last", expr.Select(expr.OrderBy(books(), title()), title()), nil),
			template: `SELECT "Title" FROM "Book" ORDER BY "Title" DESC LIMIT {2}`,
			post:     readplan.PostLast,
			bind:     []any{1},
		},
		{
			name:     "Count with predicate",
			query:    expr.Terminal("Count", books(), expensive()),
			template: `SELECT COUNT(*) FROM "Book" WHERE "Price" > 100`,
			post:     readplan.PostScalar,
			bind:     []any{},
		},
		{
			name:     "Count over distinct",
			query:    expr.Terminal("Count", expr.Distinct(expr.Select(books(), title())), nil),
			template: `SELECT COUNT(*) FROM (SELECT DISTINCT "t0"."Title" FROM "Book" AS "t0") AS "t1"`,
			post:     readplan.PostScalar,
			bind:     []any{},
		},
		{
			name:     "Any",
			query:    expr.Terminal("Any", books(), expensive()),
			template: `SELECT EXISTS (SELECT 1 FROM "Book" WHERE "Price" > 100)`,
			post:     readplan.PostScalar,
			bind:     []any{},
		},
		{
			name:     "All",
			query:    expr.Terminal("All", books(), expensive()),
			template: `SELECT NOT EXISTS (SELECT 1 FROM "Book" WHERE "Price" <= 100)`,
			post:     readplan.PostScalar,
			bind:     []any{},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cmd, err := newTranslator(t, querysql.SQLite()).Translate(expr.NewQuery(tc.query))
			require.NoError(t, err)
			assert.Equal(t, tc.template, cmd.Template)
			require.NotNil(t, cmd.Post)
			assert.Equal(t, tc.post, cmd.Post.Kind)

			values, err := cmd.Bind()
			require.NoError(t, err)
			assert.Equal(t, tc.bind, values)
		})
	}
}

func TestTranslate_ScalarResults(t *testing.T) {
	b := expr.Param("b", bookType)
	expensive := expr.Lam(expr.Gt(expr.Field(b, "Price"), expr.Const(100.0)), b)

	count, err := newTranslator(t, querysql.SQLite()).Translate(expr.NewQuery(expr.Terminal("Count", books(), expensive)))
	require.NoError(t, err)
	got, err := count.Results(rowsOf(readplan.Row{int64(4)}), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(4), got)

	anyBook, err := newTranslator(t, querysql.SQLite()).Translate(expr.NewQuery(expr.Terminal("Any", books(), nil)))
	require.NoError(t, err)
	got, err = anyBook.Results(rowsOf(readplan.Row{int64(1)}), nil)
	require.NoError(t, err)
	assert.Equal(t, true, got)
}

func TestTranslate_SingleRejectsSecondRow(t *testing.T) {
	b := expr.Param("b", bookType)
	cmd, err := newTranslator(t, querysql.SQLite()).Translate(expr.NewQuery(
		expr.Terminal("Single", expr.Select(books(), expr.Lam(expr.Field(b, "Title"), b)), nil)))
	require.NoError(t, err)

	_, err = cmd.Results(rowsOf(readplan.Row{"a"}, readplan.Row{"b"}), nil)
	assert.ErrorIs(t, err, readplan.ErrMoreThanOne)

	_, err = cmd.Results(rowsOf(), nil)
	assert.ErrorIs(t, err, readplan.ErrNoElements)
}

func TestTranslate_ArgumentsAreParameters(t *testing.T) {
	b := expr.Param("b", bookType)
	name := expr.Arg(0, "name", reflect.TypeOf(""))
	q := func() *expr.Query {
		return expr.NewQuery(expr.Select(
			expr.Where(books(), expr.Lam(expr.Or(
				expr.Eq(expr.Field(b, "Title"), name),
				expr.Eq(expr.Field(b, "Category"), name)), b)),
			expr.Lam(expr.Field(b, "ID"), b)), name)
	}

	t.Run("numbered placeholders are reused", func(t *testing.T) {
		cmd, err := newTranslator(t, querysql.SQLite()).Translate(q())
		require.NoError(t, err)
		assert.Equal(t, `SELECT "ID" FROM "Book" WHERE "Title" = {2} OR "Category" = {2}`, cmd.Template)
		require.Len(t, cmd.Parameters, 1)

		text, err := cmd.SQL()
		require.NoError(t, err)
		assert.Equal(t, `SELECT "ID" FROM "Book" WHERE "Title" = ?1 OR "Category" = ?1`, text)

		values, err := cmd.Bind("Solaris")
		require.NoError(t, err)
		assert.Equal(t, []any{"Solaris"}, values)
	})

	t.Run("positional placeholders repeat the value", func(t *testing.T) {
		cmd, err := newTranslator(t, querysql.MySQL()).Translate(q())
		require.NoError(t, err)
		assert.Equal(t, "SELECT `ID` FROM `Book` WHERE `Title` = {2} OR `Category` = {3}", cmd.Template)
		require.Len(t, cmd.Parameters, 2)

		values, err := cmd.Bind("Solaris")
		require.NoError(t, err)
		assert.Equal(t, []any{"Solaris", "Solaris"}, values)
	})

	t.Run("missing argument", func(t *testing.T) {
		cmd, err := newTranslator(t, querysql.SQLite()).Translate(q())
		require.NoError(t, err)
		_, err = cmd.Bind()
		assert.Error(t, err)
	})
}

func TestTranslate_ComputedArgumentIsOneParameter(t *testing.T) {
	b := expr.Param("b", bookType)
	limit := expr.Arg(0, "limit", reflect.TypeOf(0.0))
	q := expr.NewQuery(expr.Select(
		expr.Where(books(), expr.Lam(expr.Lt(expr.Field(b, "Price"), expr.Mul(limit, expr.Const(2.0))), b)),
		expr.Lam(expr.Field(b, "ID"), b)), limit)

	cmd, err := newTranslator(t, querysql.Postgres()).Translate(q)
	require.NoError(t, err)
	assert.Equal(t, `SELECT "ID" FROM "Book" WHERE "Price" < {2}`, cmd.Template)

	values, err := cmd.Bind(7.5)
	require.NoError(t, err)
	assert.Equal(t, []any{15.0}, values)
}

func TestTranslate_ListArguments(t *testing.T) {
	b := expr.Param("b", bookType)
	ids := expr.Arg(0, "ids", reflect.TypeOf([]int64{}))
	q := func() *expr.Query {
		return expr.NewQuery(expr.Select(
			expr.Where(books(), expr.Lam(
				expr.Method("Contains", reflect.TypeOf(false), ids, expr.Field(b, "ID")), b)),
			expr.Lam(expr.Field(b, "Title"), b)), ids)
	}
	args := []int64{1, 2}

	t.Run("array parameter", func(t *testing.T) {
		cmd, err := newTranslator(t, querysql.Postgres()).Translate(q(), args)
		require.NoError(t, err)
		assert.Equal(t, `SELECT "Title" FROM "Book" WHERE "ID" = ANY({2})`, cmd.Template)
		assert.True(t, cmd.Cacheable)
		require.Len(t, cmd.Parameters, 1)
		assert.Equal(t, "$1", cmd.Parameters[0].Name)
	})

	t.Run("inlined without array support", func(t *testing.T) {
		cmd, err := newTranslator(t, querysql.SQLite()).Translate(q(), args)
		require.NoError(t, err)
		assert.Equal(t, `SELECT "Title" FROM "Book" WHERE "ID" IN (1, 2)`, cmd.Template)
		assert.False(t, cmd.Cacheable)
		assert.Empty(t, cmd.Parameters)
	})

	t.Run("inlined when array parameters are disabled", func(t *testing.T) {
		cmd, err := newTranslator(t, querysql.Postgres(), WithArrayParameters(false)).Translate(q(), args)
		require.NoError(t, err)
		assert.Equal(t, `SELECT "Title" FROM "Book" WHERE "ID" IN (1, 2)`, cmd.Template)
		assert.False(t, cmd.Cacheable)
	})
}

func TestTranslate_Deterministic(t *testing.T) {
	b := expr.Param("b", bookType)
	q := func(min float64) *expr.Query {
		return expr.NewQuery(expr.Take(expr.Select(
			expr.Where(books(), expr.Lam(expr.Gt(expr.Field(b, "Price"), expr.Const(min)), b)),
			expr.Lam(expr.Record([]string{"Title", "Author"},
				expr.Field(b, "Title"),
				expr.FieldOf(expr.Field(b, "Author"), "Name", reflect.TypeOf(""))), b)),
			expr.Const(10)))
	}

	tr := newTranslator(t, querysql.MSSQL())
	first, err := tr.Translate(q(5))
	require.NoError(t, err)
	second, err := tr.Translate(q(5))
	require.NoError(t, err)
	assert.Equal(t, first.Template, second.Template)
	assert.Equal(t, first.Shape, second.Shape)
	assert.Equal(t, len(first.Parameters), len(second.Parameters))

	other, err := tr.Translate(q(6))
	require.NoError(t, err)
	assert.NotEqual(t, first.Shape, other.Shape)
}

func TestTranslate_Errors(t *testing.T) {
	b := expr.Param("b", bookType)
	strType := reflect.TypeOf("")
	type point struct{ X, Y int }

	sqliteNoCountOverPaging := func() querysql.Dialect {
		caps := querysql.SQLite().Capabilities()
		caps.CountOverPaging = false
		return querysql.WithCapabilities(querysql.SQLite(), caps)
	}

	testCases := []struct {
		name    string
		dialect querysql.Dialect
		query   expr.Node
		kind    Kind
	}{
		{
			name:    "unmapped member",
			dialect: querysql.SQLite(),
			query:   expr.Select(books(), expr.Lam(expr.FieldOf(b, "Publisher", strType), b)),
			kind:    UnresolvedAssociation,
		},
		{
			name:    "unknown method",
			dialect: querysql.SQLite(),
			query: expr.Where(books(), expr.Lam(
				expr.Eq(expr.Method("Reverse", strType, expr.Field(b, "Title")), expr.Const("x")), b)),
			kind: UnsupportedConstruct,
		},
		{
			name:    "collection used as a value",
			dialect: querysql.SQLite(),
			query:   expr.Select(books(), expr.Lam(expr.Field(b, "Reviews"), b)),
			kind:    UnsupportedConstruct,
		},
		{
			name:    "no conversion for the projected type",
			dialect: querysql.SQLite(),
			query: expr.Select(books(), expr.Lam(
				expr.Method("ToUpper", reflect.TypeOf(point{}), expr.Field(b, "Title")), b)),
			kind: TypeConversionMissing,
		},
		{
			name:    "count over paging",
			dialect: sqliteNoCountOverPaging(),
			query:   expr.Terminal("Count", expr.Take(books(), expr.Const(3)), nil),
			kind:    DialectCapabilityViolation,
		},
		{
			name:    "filter after paging",
			dialect: querysql.SQLite(),
			query: expr.Where(expr.Take(books(), expr.Const(3)),
				expr.Lam(expr.Gt(expr.Field(b, "Price"), expr.Const(1.0)), b)),
			kind: UnsupportedConstruct,
		},
		{
			name:    "ThenBy without OrderBy",
			dialect: querysql.SQLite(),
			query:   expr.ThenBy(books(), expr.Lam(expr.Field(b, "Title"), b)),
			kind:    UnsupportedConstruct,
		},
		{
			name:    "unknown entity",
			dialect: querysql.SQLite(),
			query:   expr.From("Magazine", nil),
			kind:    UnsupportedConstruct,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			q := expr.NewQuery(tc.query)
			_, err := newTranslator(t, tc.dialect).Translate(q)
			require.Error(t, err)
			assert.True(t, IsKind(err, tc.kind), "got %v", err)

			var te *Error
			require.True(t, errors.As(err, &te))
			assert.Same(t, q, te.Query)
		})
	}
}
