package executor

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/askdb/pkg/schema"
)

func newTestExecutor(t *testing.T) *LibSQLExecutor {
	t.Helper()
	dbPath := "file:" + filepath.Join(t.TempDir(), "test.db")

	// Fixtures go through a read-write connection; queries run against
	// a fresh read-only executor.
	seed, err := NewLibSQLExecutor(dbPath, WithReadWrite())
	require.NoError(t, err)
	_, err = seed.DB().Exec(`CREATE TABLE orders (id INTEGER PRIMARY KEY, customer TEXT, amount REAL)`)
	require.NoError(t, err)
	_, err = seed.DB().Exec(`INSERT INTO orders (id, customer, amount) VALUES
		(1, 'alice', 10.5), (2, 'bob', 20.0), (3, 'carol', 7.25)`)
	require.NoError(t, err)
	require.NoError(t, seed.Close())

	e, err := NewLibSQLExecutor(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestLibSQLExecutorRun(t *testing.T) {
	e := newTestExecutor(t)

	rows, err := e.Run(context.Background(), "SELECT id, customer, amount FROM orders ORDER BY id", 100)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "alice", rows[0]["customer"])
	assert.Equal(t, int64(1), rows[0]["id"])
	assert.InDelta(t, 10.5, rows[0]["amount"], 0.001)
}

func TestLibSQLExecutorRowLimit(t *testing.T) {
	e := newTestExecutor(t)

	rows, err := e.Run(context.Background(), "SELECT id FROM orders ORDER BY id", 2)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestLibSQLExecutorEmptyResult(t *testing.T) {
	e := newTestExecutor(t)

	rows, err := e.Run(context.Background(), "SELECT id FROM orders WHERE id > 100", 100)
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Len(t, rows, 0)
}

func TestLibSQLExecutorRejectsWrites(t *testing.T) {
	e := newTestExecutor(t)

	_, err := e.Run(context.Background(), "INSERT INTO orders (id, customer, amount) VALUES (4, 'dave', 1.0)", 100)
	require.Error(t, err)

	var qerr *schema.QueryError
	require.ErrorAs(t, err, &qerr)
	assert.Equal(t, schema.ErrCodeSQLExecution, qerr.Code)

	rows, err := e.Run(context.Background(), "SELECT id FROM orders", 100)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestLibSQLExecutorBadQuery(t *testing.T) {
	e := newTestExecutor(t)

	_, err := e.Run(context.Background(), "SELECT nope FROM missing_table", 100)
	require.Error(t, err)

	var qerr *schema.QueryError
	require.ErrorAs(t, err, &qerr)
	assert.Equal(t, schema.ErrCodeSQLExecution, qerr.Code)
	assert.Equal(t, "SELECT nope FROM missing_table", qerr.Details["query"])
}
