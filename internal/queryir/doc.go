// Package queryir provides the SQL-shaped intermediate representation the
// translator builds between the expression tree and emitted SQL text.
//
// ARCHITECTURE:
//
//	[expr chain] → [queryir.Tree] → [querysql emitter]
//
// A Tree is an arena of Scopes addressed by integer id (ids start at 1; 0
// means "no scope"). Each Scope models one SELECT: its tables, predicates,
// grouping, ordering, paging and output list. Scopes refer to their parent
// by id and to nested scopes through expr.Subquery nodes, so the structure
// never holds parent pointers and is trivially discarded after emission.
//
// TABLE IDENTITY:
//
// Every expr.Table carries a logical identity: a unique id for each root
// source, or the parent's identity plus the navigation member for tables
// introduced by association navigation. RegisterTable guarantees that one
// identity appears at most once across the whole tree:
//
//   - visible in the current scope or an ancestor → the existing table
//     is returned;
//   - registered in an unrelated scope → the table is promoted to the
//     lowest common ancestor of both scopes (its join condition moves
//     with it) and returned;
//   - otherwise the candidate is added to the current scope.
//
// Columns are registered per table, so promoting a table also promotes every
// column already registered on it.
//
// ALIASES:
//
// AssignAliases runs once the tree is final. A tree with exactly one table
// leaves it unaliased; otherwise tables receive t0, t1, … (smallest unused
// number). Output aliases are only assigned where two outputs of one scope
// would share a default column name.
package queryir
