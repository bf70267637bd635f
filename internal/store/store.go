package store

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"log/slog"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/orq/internal/readplan"
	"github.com/roach88/orq/internal/translate"
)

// drivers maps dialect names to database/sql driver names.
var drivers = map[string]string{
	"sqlite":   "sqlite3",
	"postgres": "postgres",
	"mysql":    "mysql",
}

// Driver returns the database/sql driver name for a dialect.
func Driver(dialect string) (string, error) {
	d, ok := drivers[dialect]
	if !ok {
		return "", fmt.Errorf("no database driver for dialect %q", dialect)
	}
	return d, nil
}

// Store runs translated commands against one database.
type Store struct {
	db      *sql.DB
	dialect string
	logger  *slog.Logger
}

// Open connects to the database at dsn with the driver of dialect.
//
// For sqlite, dsn is a file path or ":memory:". The connection pool is
// limited to one connection and the required pragmas are applied.
func Open(dialect, dsn string) (*Store, error) {
	driver, err := Driver(dialect)
	if err != nil {
		return nil, err
	}
	if driver == "mysql" {
		if dsn, err = mysqlDSN(dsn); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if driver == "sqlite3" {
		// SQLite only supports one writer at a time
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		if err := applyPragmas(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply pragmas: %w", err)
		}
	}

	return &Store{db: db, dialect: dialect, logger: slog.Default()}, nil
}

// mysqlDSN parses dsn and enables the options query results rely on.
func mysqlDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.MultiStatements = true
	return cfg.FormatDSN(), nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// WithLogger sets the logger used for executed statements.
func (s *Store) WithLogger(l *slog.Logger) *Store {
	s.logger = l
	return s
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect returns the dialect name commands must be translated for.
func (s *Store) Dialect() string {
	return s.dialect
}

// ExecScript runs a multi-statement SQL script such as a schema.
func (s *Store) ExecScript(ctx context.Context, script string) error {
	if _, err := s.db.ExecContext(ctx, script); err != nil {
		return fmt.Errorf("execute script: %w", err)
	}
	return nil
}

func (s *Store) prepare(cmd *translate.Command, args []any) (string, []any, error) {
	if cmd.Dialect != s.dialect {
		return "", nil, fmt.Errorf("command was translated for %s, store is %s", cmd.Dialect, s.dialect)
	}
	text, err := cmd.SQL()
	if err != nil {
		return "", nil, fmt.Errorf("format command: %w", err)
	}
	values, err := cmd.Bind(args...)
	if err != nil {
		return "", nil, fmt.Errorf("bind parameters: %w", err)
	}
	return text, driverValues(s.dialect, values), nil
}

// Query runs a SELECT command and returns its result: the value the
// command's post-processor produces, or every row value as a []any.
func (s *Store) Query(ctx context.Context, cmd *translate.Command, args ...any) (any, error) {
	if cmd.Kind != translate.KindSelect {
		return nil, fmt.Errorf("query: %s command has no result rows", cmd.Kind)
	}
	text, values, err := s.prepare(cmd, args)
	if err != nil {
		return nil, err
	}
	s.logger.Info("executing query", "dialect", s.dialect, "sql", text, "parameters", len(values))

	rows, err := s.db.QueryContext(ctx, text, values...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	result, err := cmd.Results(scan(rows), args)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Exec runs an UPDATE, INSERT or DELETE command and returns the number of
// affected rows.
func (s *Store) Exec(ctx context.Context, cmd *translate.Command, args ...any) (int64, error) {
	if cmd.Kind == translate.KindSelect {
		return 0, fmt.Errorf("exec: SELECT commands are run with Query")
	}
	text, values, err := s.prepare(cmd, args)
	if err != nil {
		return 0, err
	}
	s.logger.Info("executing command", "dialect", s.dialect, "kind", cmd.Kind, "sql", text, "parameters", len(values))

	res, err := s.db.ExecContext(ctx, text, values...)
	if err != nil {
		return 0, fmt.Errorf("exec: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// scan yields each result row as driver values in select-list order.
func scan(rows *sql.Rows) iter.Seq2[readplan.Row, error] {
	return func(yield func(readplan.Row, error) bool) {
		types, err := rows.ColumnTypes()
		if err != nil {
			yield(nil, fmt.Errorf("column types: %w", err))
			return
		}
		for rows.Next() {
			row := make([]any, len(types))
			ptrs := make([]any, len(types))
			for i := range row {
				ptrs[i] = &row[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				yield(nil, fmt.Errorf("scan row: %w", err))
				return
			}
			if !yield(normalize(types, row), nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, fmt.Errorf("iterate rows: %w", err))
		}
	}
}
