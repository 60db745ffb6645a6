package executor

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/askdb/pkg/schema"
)

// LibSQLExecutor runs queries against an embedded libSQL database.
type LibSQLExecutor struct {
	db *sql.DB
}

// LibSQLOption configures a LibSQLExecutor.
type LibSQLOption func(*libsqlConfig)

type libsqlConfig struct {
	readWrite bool
}

// WithReadWrite skips the read-only pragma so the connection can run
// schema setup and fixture loading. The serving executor should never
// use it: generated queries must not be able to mutate data.
func WithReadWrite() LibSQLOption {
	return func(c *libsqlConfig) { c.readWrite = true }
}

// NewLibSQLExecutor opens a libSQL database at the given path.
// The path should be a file URI, e.g. "file:/path/to/db.db".
// The connection is read-only unless WithReadWrite is given.
func NewLibSQLExecutor(dbPath string, opts ...LibSQLOption) (*LibSQLExecutor, error) {
	var cfg libsqlConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-20000",
	}
	if !cfg.readWrite {
		pragmas = append(pragmas, "PRAGMA query_only=ON")
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLExecutor{db: db}, nil
}

// DB returns the underlying *sql.DB for schema setup and fixture
// loading on a read-write executor.
func (e *LibSQLExecutor) DB() *sql.DB { return e.db }

// Close closes the database.
func (e *LibSQLExecutor) Close() error { return e.db.Close() }

// Run executes the query and scans up to rowLimit rows into maps keyed
// by column name.
func (e *LibSQLExecutor) Run(ctx context.Context, query string, rowLimit int) ([]schema.Row, error) {
	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return nil, execError(query, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, execError(query, err)
	}

	out := make([]schema.Row, 0)
	for rows.Next() {
		if rowLimit > 0 && len(out) >= rowLimit {
			break
		}
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, execError(query, err)
		}

		row := make(schema.Row, len(cols))
		for i, col := range cols {
			row[col] = normalizeValue(values[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, execError(query, err)
	}
	return out, nil
}

// normalizeValue converts driver byte slices to strings so rows
// serialize cleanly as JSON.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

var _ QueryExecutor = (*LibSQLExecutor)(nil)
