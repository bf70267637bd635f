package testutil

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/orq/internal/convert"
	"github.com/roach88/orq/internal/model"
)

// LibraryModel is the CUE source of the library fixture: books with
// authors and reviews, and orders referencing two users.
const LibraryModel = `
entity: Book: {
	columns: {
		ID:       {type: "int64", key: true}
		Title:    {type: "string"}
		Price:    {type: "float64"}
		Category: {type: "string"}
		AuthorID: {type: "int64"}
	}
	references: Author: {entity: "Author", keys: ["AuthorID"]}
	collections: Reviews: {entity: "Review", via: "Book"}
}

entity: Author: {
	columns: {
		ID:      {type: "int64", key: true}
		Name:    {type: "string"}
		Country: {type: "string", nullable: true}
	}
	collections: Books: {entity: "Book", via: "Author"}
}

entity: Review: {
	columns: {
		ID:     {type: "int64", key: true}
		BookID: {type: "int64"}
		Stars:  {type: "int64"}
		Body:   {type: "string", column: "body_text"}
	}
	references: Book: {entity: "Book", keys: ["BookID"]}
}

entity: User: {
	columns: {
		ID:   {type: "int64", key: true}
		Name: {type: "string"}
	}
}

entity: Order: {
	columns: {
		ID:         {type: "int64", key: true}
		BuyerID:    {type: "int64"}
		ApproverID: {type: "int64", nullable: true}
		Total:      {type: "float64"}
	}
	references: {
		Buyer:    {entity: "User", keys: ["BuyerID"]}
		Approver: {entity: "User", keys: ["ApproverID"]}
	}
}
`

// LibrarySchema creates the fixture tables in SQLite.
const LibrarySchema = `
CREATE TABLE "Author" ("ID" INTEGER PRIMARY KEY, "Name" TEXT NOT NULL, "Country" TEXT);
CREATE TABLE "Book" ("ID" INTEGER PRIMARY KEY, "Title" TEXT NOT NULL, "Price" REAL NOT NULL,
	"Category" TEXT NOT NULL, "AuthorID" INTEGER NOT NULL REFERENCES "Author"("ID"));
CREATE TABLE "Review" ("ID" INTEGER PRIMARY KEY, "BookID" INTEGER NOT NULL REFERENCES "Book"("ID"),
	"Stars" INTEGER NOT NULL, "body_text" TEXT NOT NULL);
CREATE TABLE "User" ("ID" INTEGER PRIMARY KEY, "Name" TEXT NOT NULL);
CREATE TABLE "Order" ("ID" INTEGER PRIMARY KEY, "BuyerID" INTEGER NOT NULL, "ApproverID" INTEGER,
	"Total" REAL NOT NULL);
`

// LibraryData seeds the fixture tables.
const LibraryData = `
INSERT INTO "Author" VALUES (1, 'Le Guin', 'US'), (2, 'Lem', 'PL'), (3, 'Anonymous', NULL);
INSERT INTO "Book" VALUES
	(1, 'The Dispossessed', 12.5, 'Fiction', 1),
	(2, 'Solaris', 9.0, 'Fiction', 2),
	(3, 'The Cyberiad', 11.0, 'Fiction', 2),
	(4, 'Summa Technologiae', 20.0, 'Essays', 2),
	(5, 'Beowulf', 5.0, 'Poetry', 3);
INSERT INTO "Review" VALUES (1, 1, 5, 'classic'), (2, 1, 4, 'dense'), (3, 2, 5, 'haunting');
INSERT INTO "User" VALUES (1, 'ann'), (2, 'bob');
INSERT INTO "Order" VALUES (1, 1, 2, 30.0), (2, 2, NULL, 12.5);
`

type Book struct {
	ID       int64
	Title    string
	Price    float64
	Category string
	AuthorID int64
}

type Author struct {
	ID      int64
	Name    string
	Country *string
}

type Review struct {
	ID     int64
	BookID int64
	Stars  int64
	Body   string
}

type User struct {
	ID   int64
	Name string
}

type Order struct {
	ID         int64
	BuyerID    int64
	ApproverID *int64
	Total      float64
}

// LibraryTypes maps fixture entity names to their Go types.
var LibraryTypes = map[string]reflect.Type{
	"Book":   reflect.TypeOf(Book{}),
	"Author": reflect.TypeOf(Author{}),
	"Review": reflect.TypeOf(Review{}),
	"User":   reflect.TypeOf(User{}),
	"Order":  reflect.TypeOf(Order{}),
}

// NewLibrary compiles, binds and resolves the library model.
func NewLibrary() (*model.Model, error) {
	m, err := model.CompileString(LibraryModel)
	if err != nil {
		return nil, err
	}
	for _, name := range m.Names() {
		if err := m.Bind(name, LibraryTypes[name]); err != nil {
			return nil, err
		}
	}
	if err := m.Resolve(convert.NewRegistry()); err != nil {
		return nil, err
	}
	return m, nil
}

// Library returns the resolved library model or fails the test.
func Library(t testing.TB) *model.Model {
	t.Helper()
	m, err := NewLibrary()
	require.NoError(t, err)
	return m
}
