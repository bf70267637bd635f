// Package store executes translated commands over database/sql.
//
// A Store pairs one *sql.DB with the dialect its commands were translated
// for. Query runs a SELECT command and materializes its result through the
// command's read plan; Exec runs an UPDATE, INSERT or DELETE command and
// returns the affected row count.
//
// # Drivers
//
//   - sqlite:   github.com/mattn/go-sqlite3 (driver "sqlite3")
//   - postgres: github.com/lib/pq (driver "postgres"); list parameters are
//     bound through pq.Array
//   - mysql:    github.com/go-sql-driver/mysql (driver "mysql"); DSNs are
//     normalized to parse DATETIME values and allow multi-statement scripts
//
// MSSQL and Firebird commands can be translated but not executed here.
//
// # SQLite Configuration
//
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//   - a single open connection, so ":memory:" databases stay shared
package store
