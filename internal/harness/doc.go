// Package harness runs translation conformance scenarios.
//
// A scenario is a YAML file holding one query document and the assertions
// its translation must satisfy:
//
//	name: fiction_titles
//	description: Filter by an argument and project one column
//	query:
//	  from: Book
//	  args: [{name: category, type: string}]
//	  ops:
//	    - where: {eq: [{field: Category}, {arg: category}]}
//	    - select: {field: Title}
//	args: {category: Fiction}
//	assertions:
//	  - {type: template, dialect: mssql, expect: 'SELECT [Title] FROM [Book] WHERE [Category] = {2}'}
//	  - {type: result, rows: [Solaris, The Cyberiad, The Dispossessed]}
//
// The query is translated for every built-in dialect. Scenarios with result
// or affected assertions are also executed against a fresh in-memory SQLite
// database seeded with the setup scripts.
//
// When model is omitted the library fixture from testutil is used, and an
// executed scenario without setup scripts is seeded with the fixture data.
//
// # Assertion types
//
//   - template: the command template for dialect (default sqlite) equals expect
//   - error: translation for dialect fails with the given error kind
//   - cacheable: the command's cacheable flag for dialect equals cacheable
//   - result: the SQLite query result equals rows
//   - affected: the SQLite mutation affected count rows
//
// Golden snapshots of the per-dialect commands are compared with goldie; see
// RunWithGolden.
package harness
