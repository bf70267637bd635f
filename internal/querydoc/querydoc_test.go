package querydoc

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/orq/internal/queryir"
	"github.com/roach88/orq/internal/querysql"
	"github.com/roach88/orq/internal/testutil"
	"github.com/roach88/orq/internal/translate"
)

// translateDoc decodes, builds and translates a document for SQLite.
func translateDoc(t *testing.T, src string) (*translate.Command, *Built) {
	t.Helper()
	doc, err := Decode([]byte(src))
	require.NoError(t, err)
	m := testutil.Library(t)
	built, err := doc.Build(m)
	require.NoError(t, err)

	tr := translate.New(m, querysql.SQLite())
	var cmd *translate.Command
	if built.Mutation != nil {
		cmd, err = tr.TranslateMutation(built.Query, *built.Mutation)
	} else {
		cmd, err = tr.Translate(built.Query)
	}
	require.NoError(t, err)
	return cmd, built
}

func TestBuild_Templates(t *testing.T) {
	testCases := []struct {
		name     string
		doc      string
		template string
	}{
		{
			name: "filter and projection",
			doc: `
from: Book
ops:
  - where: {gt: [{field: Price}, 10]}
  - select: {field: Title}
`,
			template: `SELECT "Title" FROM "Book" WHERE "Price" > 10`,
		},
		{
			name: "group with count",
			doc: `
from: Book
ops:
  - groupBy: {field: Category}
  - select: {record: {Key: {field: Key}, Count: {count: }}}
`,
			template: `SELECT "Category", COUNT(*) FROM "Book" GROUP BY "Category"`,
		},
		{
			name: "collection quantifier",
			doc: `
from: Author
ops:
  - where: {any: {of: Books, where: {gt: [{field: Price}, 10.0]}}}
  - select: {field: Name}
`,
			template: `SELECT "t0"."Name" FROM "Author" AS "t0" WHERE EXISTS ` +
				`(SELECT 1 FROM "Book" AS "t1" WHERE "t0"."ID" = "t1"."AuthorID" AND "t1"."Price" > 10)`,
		},
		{
			name: "join",
			doc: `
from: Book
ops:
  - join:
      entity: Author
      outerKey: {field: AuthorID}
      innerKey: {field: ID}
      result: {record: {Title: {field: outer.Title}, Author: {field: inner.Name}}}
`,
			template: `SELECT "t0"."Title", "t1"."Name" FROM "Book" AS "t0" INNER JOIN "Author" AS "t1" ON "t0"."AuthorID" = "t1"."ID"`,
		},
		{
			name: "terminal shorthand",
			doc: `
from: Book
ops:
  - terminal: Count
`,
			template: `SELECT COUNT(*) FROM "Book"`,
		},
		{
			name: "terminal with predicate",
			doc: `
from: Book
ops:
  - terminal: {method: Any, where: {gt: [{field: Price}, 100.0]}}
`,
			template: `SELECT EXISTS (SELECT 1 FROM "Book" WHERE "Price" > 100)`,
		},
		{
			name: "update",
			doc: `
from: Book
args:
  - {name: category, type: string}
ops:
  - where: {eq: [{field: Category}, {arg: category}]}
  - select: {record: {Price: {add: [{field: Price}, 1]}}}
mutation: {kind: update}
`,
			template: `UPDATE "Book" SET "Price" = "Price" + 1 WHERE "Category" = {2}`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cmd, _ := translateDoc(t, tc.doc)
			assert.Equal(t, tc.template, cmd.Template)
		})
	}
}

func TestBuild_Mutation(t *testing.T) {
	_, built := translateDoc(t, `
from: Book
ops:
  - where: {lt: [{field: Price}, 1.0]}
mutation: {kind: delete, target: Book}
`)
	require.NotNil(t, built.Mutation)
	assert.Equal(t, queryir.MutationDelete, built.Mutation.Kind)
	assert.Equal(t, "Book", built.Mutation.Target)
}

func TestBuilt_Values(t *testing.T) {
	doc, err := Decode([]byte(`
from: Book
args:
  - {name: category, type: string}
  - {name: ids, type: "[]int64"}
  - {name: limit, type: int64}
ops:
  - where: {and: [{eq: [{field: Category}, {arg: category}]}, {method: {name: Contains, args: [{arg: ids}, {field: ID}]}}]}
  - take: {arg: limit}
values:
  category: Fiction
  ids: [1, 2]
`))
	require.NoError(t, err)
	built, err := doc.Build(testutil.Library(t))
	require.NoError(t, err)

	_, err = built.Values(nil)
	assert.ErrorContains(t, err, `no value for argument "limit"`)

	values, err := built.Values(map[string]string{"limit": "3"})
	require.NoError(t, err)
	assert.Equal(t, []any{"Fiction", []int64{1, 2}, int64(3)}, values)

	values, err = built.Values(map[string]string{"limit": "3", "ids": "4, 5", "category": "Poetry"})
	require.NoError(t, err)
	assert.Equal(t, []any{"Poetry", []int64{4, 5}, int64(3)}, values)

	_, err = built.Values(map[string]string{"limit": "many"})
	assert.Error(t, err)
}

func TestDecode_Errors(t *testing.T) {
	testCases := []struct {
		name string
		doc  string
		code string
	}{
		{"syntax", "from: [", ErrCodeParse},
		{"unknown field", "from: Book\nfilter: x\n", ErrCodeInvalid},
		{"missing from", "ops: []\n", ErrCodeInvalid},
		{"two operators", "from: Book\nops:\n  - {distinct: true, take: 1}\n", ErrCodeInvalid},
		{"no operator", "from: Book\nops:\n  - {filter: 1}\n", ErrCodeInvalid},
		{"element without groupBy", "from: Book\nops:\n  - {distinct: true, element: {field: Title}}\n", ErrCodeInvalid},
		{"duplicate argument", "from: Book\nargs:\n  - {name: a, type: string}\n  - {name: a, type: int64}\n", ErrCodeInvalid},
		{"undeclared value", "from: Book\nvalues:\n  a: 1\n", ErrCodeInvalid},
		{"bad mutation", "from: Book\nmutation: {kind: upsert}\n", ErrCodeInvalid},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.doc))
			require.Error(t, err)
			var de *DecodeError
			require.True(t, errors.As(err, &de), "got %T: %v", err, err)
			assert.Equal(t, tc.code, de.Code)
		})
	}
}

func TestBuild_Errors(t *testing.T) {
	testCases := []struct {
		name string
		doc  string
	}{
		{"unknown entity", "from: Magazine\n"},
		{"unknown member", "from: Book\nops:\n  - where: {field: Rating}\n"},
		{"undeclared argument", "from: Book\nops:\n  - where: {eq: [{field: Title}, {arg: title}]}\n"},
		{"unknown expression", "from: Book\nops:\n  - where: {like: [{field: Title}, x]}\n"},
		{"arity", "from: Book\nops:\n  - where: {eq: [{field: Title}]}\n"},
		{"group member", "from: Book\nops:\n  - groupBy: {field: Category}\n  - select: {field: Title}\n"},
		{"aggregate outside a group", "from: Book\nops:\n  - select: {count: }\n"},
		{"not a collection", "from: Book\nops:\n  - where: {any: {of: Author}}\n"},
		{"bad argument type", "from: Book\nargs:\n  - {name: a, type: decimal}\n"},
		{"join prefix missing", "from: Book\nops:\n  - join: {entity: Author, outerKey: {field: AuthorID}, innerKey: {field: ID}, result: {field: Title}}\n"},
	}
	m := testutil.Library(t)
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			doc, err := Decode([]byte(tc.doc))
			require.NoError(t, err)
			_, err = doc.Build(m)
			require.Error(t, err)
			var de *DecodeError
			assert.True(t, errors.As(err, &de), "got %T: %v", err, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q.yaml")
	require.NoError(t, os.WriteFile(path, []byte("from: Book\nops:\n  - distinct: true\n"), 0o644))

	doc, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Book", doc.From)
	assert.True(t, doc.Ops[0].Distinct)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
