// Package translate turns query expressions into executable commands: a
// SQL template, the parameters it binds, a read plan that materializes
// each result row, and an optional post-processor over the result values.
//
// PIPELINE:
//
//	externalize → Decompose → build (scope analysis) → split (tiers)
//	  → finish (paging, aliases, Optimize, validation) → emit → read plan
//
//  1. Sub-expressions that depend only on call-site arguments become
//     external values. They are bound as parameters, or inlined as
//     literals when the dialect cannot bind them.
//  2. The method chain is flattened into Operations and applied to a
//     queryir.Tree. Lambda bodies are reduced against the model: member
//     accesses become columns or joined tables, collection quantifiers
//     become correlated subqueries, and group aggregates become SQL
//     aggregates.
//  3. The final projection is split between the database and client code.
//     Whatever the dialect can compute is read back as an output column;
//     the rest is evaluated by the read plan.
//  4. Paging is normalized for dialects that need an ordering, tables and
//     outputs receive aliases, and predicates are simplified.
//
// TEMPLATES:
//
// Templates use {0} and {1} for literal braces and {N} (N >= 2) for
// parameter N-2. Command.SQL substitutes the dialect's parameter names.
//
// CACHEABILITY:
//
// A Command is cacheable unless a value was inlined for one particular set
// of arguments (a list on a dialect without array parameters). Shape
// identifies the query independently of argument values, so a cacheable
// command may be reused for every query with the same Shape.
//
// ERRORS:
//
// Every failure is an *Error with a Kind; see IsKind.
package translate
