package executor

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rendis/askdb/pkg/schema"
)

// PostgresExecutor runs queries against a PostgreSQL database via a
// pgx connection pool.
type PostgresExecutor struct {
	pool *pgxpool.Pool
}

// NewPostgresExecutor connects to the database described by connString
// (a standard PostgreSQL URI or DSN) and verifies the connection.
func NewPostgresExecutor(ctx context.Context, connString string) (*PostgresExecutor, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresExecutor{pool: pool}, nil
}

// Close releases the connection pool.
func (e *PostgresExecutor) Close() error {
	e.pool.Close()
	return nil
}

// Run executes the query and scans up to rowLimit rows into maps keyed
// by column name.
func (e *PostgresExecutor) Run(ctx context.Context, query string, rowLimit int) ([]schema.Row, error) {
	rows, err := e.pool.Query(ctx, query)
	if err != nil {
		return nil, execError(query, err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	out := make([]schema.Row, 0)
	for rows.Next() {
		if rowLimit > 0 && len(out) >= rowLimit {
			break
		}
		values, err := rows.Values()
		if err != nil {
			return nil, execError(query, err)
		}
		row := make(schema.Row, len(fields))
		for i, fd := range fields {
			row[fd.Name] = normalizeValue(values[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, execError(query, err)
	}
	return out, nil
}

var _ QueryExecutor = (*PostgresExecutor)(nil)
