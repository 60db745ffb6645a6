package executor

import (
	"context"

	"github.com/rendis/askdb/pkg/schema"
)

// QueryExecutor runs a validated SQL statement and returns the result rows.
// Implementations must honor rowLimit as a hard cap on returned rows.
type QueryExecutor interface {
	Run(ctx context.Context, query string, rowLimit int) ([]schema.Row, error)
}

// ExecutorFunc adapts a function to the QueryExecutor interface.
type ExecutorFunc func(ctx context.Context, query string, rowLimit int) ([]schema.Row, error)

func (f ExecutorFunc) Run(ctx context.Context, query string, rowLimit int) ([]schema.Row, error) {
	return f(ctx, query, rowLimit)
}

// execError wraps a driver error as a SQL_EXECUTION_ERROR.
func execError(query string, err error) *schema.QueryError {
	return schema.NewErrorf(schema.ErrCodeSQLExecution, "query execution failed: %s", err.Error()).
		WithCause(err).
		WithDetails(map[string]any{"query": query})
}
