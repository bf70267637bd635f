package querysql

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/orq/internal/expr"
	"github.com/roach88/orq/internal/model"
	"github.com/roach88/orq/internal/queryir"
)

func bookEntity() *model.Entity {
	e := model.NewEntity("Book", "")
	e.AddColumn(&model.Column{Member: "ID", Type: reflect.TypeOf(int64(0)), Key: true})
	e.AddColumn(&model.Column{Member: "Title", Type: reflect.TypeOf("")})
	e.AddColumn(&model.Column{Member: "Price", Type: reflect.TypeOf(0.0)})
	return e
}

// paramBinder binds every external as the next parameter.
func paramBinder() Binder {
	n := 0
	return BinderFunc(func(ext *expr.External) (string, error) {
		ext.Usage = expr.UsageParameter
		tok := Placeholder(n)
		n++
		return tok, nil
	})
}

func newExt(t reflect.Type) *expr.External {
	return &expr.External{Typ: t, Usage: expr.UsageParameter}
}

func singleTable(t *testing.T) (*queryir.Tree, *queryir.Scope, *expr.Table, *model.Entity) {
	t.Helper()
	book := bookEntity()
	tree := queryir.NewTree()
	s := tree.NewScope(0)
	tbl := tree.NewRootTable(s, book)
	return tree, s, tbl, book
}

func TestSelect_SingleTable(t *testing.T) {
	tree, s, tbl, book := singleTable(t)
	title := tree.RegisterColumn(tbl, book.Columns[1])
	price := tree.RegisterColumn(tbl, book.Columns[2])
	tree.RegisterOutput(s, title)
	s.Where = []expr.Node{expr.Gt(price, newExt(reflect.TypeOf(0.0)))}
	s.OrderBy = []queryir.Ordering{{Expr: price, Descending: true}}
	tree.AssignAliases()

	got, err := NewEmitter(SQLite(), tree, paramBinder()).Select(s)
	require.NoError(t, err)
	assert.Equal(t, `SELECT "Title" FROM "Book" WHERE "Price" > {2} ORDER BY "Price" DESC`, got)
}

func TestSelect_NestedNegation(t *testing.T) {
	tree, s, tbl, book := singleTable(t)
	price := tree.RegisterColumn(tbl, book.Columns[2])
	id := tree.RegisterColumn(tbl, book.Columns[0])

	tree.RegisterOutput(s, expr.Neg(expr.Const(-1)))
	s.Where = []expr.Node{
		expr.Gt(expr.Neg(expr.Neg(price)), expr.Const(10)),
		expr.Eq(id, expr.Const(1)),
	}
	tree.AssignAliases()

	got, err := NewEmitter(SQLite(), tree, paramBinder()).Select(s)
	require.NoError(t, err)
	assert.Equal(t, `SELECT -(-1) FROM "Book" WHERE -(-"Price") > 10 AND "ID" = 1`, got)
	assert.NotContains(t, got, "--")
}

func TestSelect_EmptyListIn(t *testing.T) {
	tree, s, tbl, book := singleTable(t)
	title := tree.RegisterColumn(tbl, book.Columns[1])
	id := tree.RegisterColumn(tbl, book.Columns[0])
	boolType := reflect.TypeOf(false)
	in := func() expr.Node { return expr.Fn(expr.FuncIn, boolType, id, expr.Const([]int64{})) }

	tree.RegisterOutput(s, title)
	s.Where = []expr.Node{in(), expr.Not(in())}
	tree.AssignAliases()

	got, err := NewEmitter(SQLite(), tree, paramBinder()).Select(s)
	require.NoError(t, err)
	assert.Equal(t, `SELECT "Title" FROM "Book" WHERE 1 = 0 AND NOT 1 = 0`, got)
}

func TestSelect_Precedence(t *testing.T) {
	tree, s, tbl, book := singleTable(t)
	price := tree.RegisterColumn(tbl, book.Columns[2])
	id := tree.RegisterColumn(tbl, book.Columns[0])

	tree.RegisterOutput(s, expr.Mul(expr.Add(price, expr.Const(1)), expr.Const(2)))
	tree.RegisterOutput(s, expr.Sub(price, expr.Sub(id, expr.Const(1))))
	s.Where = []expr.Node{
		expr.Or(expr.Eq(id, expr.Const(1)), expr.Eq(id, expr.Const(2))),
		expr.Not(expr.And(expr.Gt(price, expr.Const(1)), expr.Lt(price, expr.Const(5)))),
	}
	tree.AssignAliases()

	got, err := NewEmitter(SQLite(), tree, paramBinder()).Select(s)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT ("Price" + 1) * 2, "Price" - ("ID" - 1) FROM "Book" `+
			`WHERE ("ID" = 1 OR "ID" = 2) AND NOT ("Price" > 1 AND "Price" < 5)`, got)
}

func TestSelect_NullComparisonAndCoalesce(t *testing.T) {
	tree, s, tbl, book := singleTable(t)
	title := tree.RegisterColumn(tbl, book.Columns[1])
	tree.RegisterOutput(s, expr.Bin(expr.OpCoalesce, title, expr.Const("n/a")))
	s.Where = []expr.Node{expr.Ne(title, expr.ConstOf(nil, nil))}
	tree.AssignAliases()

	got, err := NewEmitter(SQLite(), tree, paramBinder()).Select(s)
	require.NoError(t, err)
	assert.Equal(t, `SELECT COALESCE("Title", 'n/a') FROM "Book" WHERE "Title" IS NOT NULL`, got)
}

func TestSelect_LiteralBracesEscaped(t *testing.T) {
	tree, s, tbl, book := singleTable(t)
	title := tree.RegisterColumn(tbl, book.Columns[1])
	tree.RegisterOutput(s, title)
	s.Where = []expr.Node{expr.Eq(title, expr.Const("{x}"))}
	tree.AssignAliases()

	got, err := NewEmitter(SQLite(), tree, paramBinder()).Select(s)
	require.NoError(t, err)
	assert.Equal(t, `SELECT "Title" FROM "Book" WHERE "Title" = '{0}x{1}'`, got)

	text, err := Format(got, nil)
	require.NoError(t, err)
	assert.Contains(t, text, `'{x}'`)
}

func TestSelect_Paging(t *testing.T) {
	testCases := []struct {
		dialect Dialect
		offset  bool
		limit   bool
		want    string
	}{
		{SQLite(), true, true, ` LIMIT {2} OFFSET {3}`},
		{SQLite(), true, false, ` LIMIT -1 OFFSET {2}`},
		{Postgres(), true, false, ` OFFSET {2}`},
		{MySQL(), false, true, ` LIMIT {2}`},
		{MSSQL(), true, true, ` ORDER BY (SELECT 1) OFFSET {2} ROWS FETCH NEXT {3} ROWS ONLY`},
		{MSSQL(), false, true, ` ORDER BY (SELECT 1) OFFSET 0 ROWS FETCH NEXT {2} ROWS ONLY`},
		{Firebird(), true, true, ` ROWS {2} + 1 TO {3}`},
		{Firebird(), false, true, ` ROWS 1 TO {2}`},
	}

	for _, tc := range testCases {
		t.Run(tc.dialect.Name(), func(t *testing.T) {
			tree, s, tbl, book := singleTable(t)
			tree.RegisterOutput(s, tree.RegisterColumn(tbl, book.Columns[0]))
			intType := reflect.TypeOf(0)
			if tc.offset {
				s.Offset = newExt(intType)
			}
			if tc.limit {
				s.Limit = newExt(intType)
			}
			if s.Offset != nil && s.Limit != nil {
				s.Bound = newExt(intType)
			}
			s.ConstantOrder = tc.dialect.Capabilities().ConstantOrderFallback
			tree.AssignAliases()

			got, err := NewEmitter(tc.dialect, tree, paramBinder()).Select(s)
			require.NoError(t, err)

			q := tc.dialect.QuoteIdentifier
			prefix := "SELECT " + q("ID") + " FROM " + q("Book")
			assert.Equal(t, Escape(prefix)+tc.want, got)
		})
	}
}

func TestSelect_JoinsAreQualified(t *testing.T) {
	book := bookEntity()
	book.AddColumn(&model.Column{Member: "AuthorID", Type: reflect.TypeOf(int64(0))})
	author := model.NewEntity("Author", "")
	author.AddColumn(&model.Column{Member: "ID", Type: reflect.TypeOf(int64(0)), Key: true})
	author.AddColumn(&model.Column{Member: "Name", Type: reflect.TypeOf(""), Nullable: true})

	tree := queryir.NewTree()
	s := tree.NewScope(0)
	b := tree.NewRootTable(s, book)
	a := tree.RegisterTable(s, &expr.Table{Entity: author, Identity: b.Identity + ".Author", Kind: expr.JoinLeftOuter})
	a.Join = expr.Eq(tree.RegisterColumn(a, author.Columns[0]), tree.RegisterColumn(b, book.Columns[3]))
	tree.RegisterOutput(s, tree.RegisterColumn(b, book.Columns[1]))
	tree.RegisterOutput(s, tree.RegisterColumn(a, author.Columns[1]))
	tree.AssignAliases()

	got, err := NewEmitter(Postgres(), tree, paramBinder()).Select(s)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT "t0"."Title", "t1"."Name" FROM "Book" AS "t0" LEFT OUTER JOIN "Author" AS "t1" ON "t1"."ID" = "t0"."AuthorID"`,
		got)
}

func TestSelect_ExistsSubqueryAndIn(t *testing.T) {
	book := bookEntity()
	tree := queryir.NewTree()
	s := tree.NewScope(0)
	b := tree.NewRootTable(s, book)
	sub := tree.NewScope(s.ID)
	b2 := tree.NewRootTable(sub, book)
	sub.Where = []expr.Node{expr.Gt(tree.RegisterColumn(b2, book.Columns[2]), tree.RegisterColumn(b, book.Columns[2]))}

	ids := newExt(reflect.TypeOf([]int64{}))
	tree.RegisterOutput(s, tree.RegisterColumn(b, book.Columns[0]))
	s.Where = []expr.Node{
		expr.Fn(expr.FuncExists, reflect.TypeOf(false), &expr.Subquery{Scope: sub.ID}),
		expr.Fn(expr.FuncIn, reflect.TypeOf(false), tree.RegisterColumn(b, book.Columns[0]), ids),
	}
	tree.AssignAliases()

	got, err := NewEmitter(Postgres(), tree, paramBinder()).Select(s)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT "t0"."ID" FROM "Book" AS "t0" WHERE EXISTS (SELECT 1 FROM "Book" AS "t1" WHERE "t1"."Price" > "t0"."Price") AND "t0"."ID" = ANY({2})`,
		got)
}

func TestSelect_BooleanValueOnMSSQL(t *testing.T) {
	tree, s, tbl, book := singleTable(t)
	price := tree.RegisterColumn(tbl, book.Columns[2])
	tree.RegisterOutput(s, expr.Gt(price, expr.Const(10)))
	tree.AssignAliases()

	got, err := NewEmitter(MSSQL(), tree, paramBinder()).Select(s)
	require.NoError(t, err)
	assert.Equal(t, `SELECT CASE WHEN [Price] > 10 THEN 1 ELSE 0 END FROM [Book]`, got)
}

func TestMutation_SimpleUpdate(t *testing.T) {
	tree, s, tbl, book := singleTable(t)
	price := tree.RegisterColumn(tbl, book.Columns[2])
	s.Where = []expr.Node{expr.Eq(tree.RegisterColumn(tbl, book.Columns[1]), newExt(reflect.TypeOf("")))}
	tree.AssignAliases()

	m := &queryir.Mutation{
		Kind:    queryir.MutationUpdate,
		Target:  book,
		Table:   tbl,
		Columns: []*model.Column{book.Columns[2]},
		Values:  []expr.Node{expr.Add(price, expr.Const(1))},
		Base:    s,
		Simple:  true,
	}

	got, err := NewEmitter(SQLite(), tree, paramBinder()).Mutation(m)
	require.NoError(t, err)
	assert.Equal(t, `UPDATE "Book" SET "Price" = "Price" + 1 WHERE "Title" = {2}`, got)
}

func TestMutation_CompoundForms(t *testing.T) {
	build := func() (*queryir.Tree, *queryir.Mutation) {
		book := bookEntity()
		tree := queryir.NewTree()
		s := tree.NewScope(0)
		tbl := tree.NewRootTable(s, book)
		price := tree.RegisterColumn(tbl, book.Columns[2])
		k := tree.RegisterOutput(s, tree.RegisterColumn(tbl, book.Columns[0]))
		v := tree.RegisterOutput(s, expr.Add(price, expr.Const(1)))
		s.OutputAliases[k], s.OutputAliases[v] = "k0", "v0"
		s.OrderBy = []queryir.Ordering{{Expr: price}}
		s.Limit = newExt(reflect.TypeOf(0))
		tree.AssignAliases()
		return tree, &queryir.Mutation{
			Kind: queryir.MutationUpdate, Target: book, Table: tbl,
			Columns: []*model.Column{book.Columns[2]}, Values: []expr.Node{s.Outputs[v]},
			Base: s, KeyOutputs: []int{k}, ValueOutputs: []int{v},
		}
	}

	testCases := []struct {
		dialect Dialect
		want    string
	}{
		{SQLite(), `UPDATE "Book" SET "Price" = "_u"."v0" FROM (SELECT "Book"."ID" AS "k0", "Book"."Price" + 1 AS "v0" FROM "Book" ORDER BY "Book"."Price" LIMIT {2}) AS "_u" WHERE "Book"."ID" = "_u"."k0"`},
		{MySQL(), "UPDATE `Book` INNER JOIN (SELECT `Book`.`ID` AS `k0`, `Book`.`Price` + 1 AS `v0` FROM `Book` ORDER BY `Book`.`Price` LIMIT {2}) AS `_u` ON `Book`.`ID` = `_u`.`k0` SET `Book`.`Price` = `_u`.`v0`"},
	}

	for _, tc := range testCases {
		t.Run(tc.dialect.Name(), func(t *testing.T) {
			tree, m := build()
			got, err := NewEmitter(tc.dialect, tree, paramBinder()).Mutation(m)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestMutation_CompoundDelete(t *testing.T) {
	tree, s, tbl, book := singleTable(t)
	k := tree.RegisterOutput(s, tree.RegisterColumn(tbl, book.Columns[0]))
	s.OutputAliases[k] = "k0"
	s.Limit = newExt(reflect.TypeOf(0))
	tree.AssignAliases()

	m := &queryir.Mutation{Kind: queryir.MutationDelete, Target: book, Table: tbl, Base: s, KeyOutputs: []int{k}}
	got, err := NewEmitter(SQLite(), tree, paramBinder()).Mutation(m)
	require.NoError(t, err)
	assert.Equal(t,
		`DELETE FROM "Book" WHERE EXISTS (SELECT 1 FROM (SELECT "Book"."ID" AS "k0" FROM "Book" LIMIT {2}) AS "_d" WHERE "Book"."ID" = "_d"."k0")`,
		got)
}
