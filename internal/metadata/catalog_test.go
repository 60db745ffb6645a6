package metadata

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/askdb/pkg/schema"
)

const validCatalog = `{
  "namespace": "analytics",
  "tables": [
    {
      "name": "orders",
      "description": "Customer orders",
      "columns": [
        {"name": "id", "type": "INTEGER", "description": "Primary key"},
        {"name": "amount", "type": "REAL"}
      ],
      "relationships": ["orders.customer_id -> customers.id"]
    },
    {
      "name": "customers",
      "columns": [
        {"name": "id", "type": "INTEGER"},
        {"name": "name", "type": "TEXT"}
      ]
    }
  ]
}`

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFileProviderJSONCatalog(t *testing.T) {
	path := writeTempFile(t, "catalog.json", validCatalog)

	p, err := NewFileProvider(path)
	require.NoError(t, err)

	text, err := p.Load(context.Background())
	require.NoError(t, err)

	assert.Contains(t, text, "Schema namespace: analytics")
	assert.Contains(t, text, "Table: orders")
	assert.Contains(t, text, "- id (INTEGER): Primary key")
	assert.Contains(t, text, "- amount (REAL)")
	assert.Contains(t, text, "Relationship: orders.customer_id -> customers.id")
	assert.Contains(t, text, "Table: customers")
}

func TestFileProviderRawPassthrough(t *testing.T) {
	raw := "Table orders has columns id, amount."
	path := writeTempFile(t, "schema.txt", raw)

	p, err := NewFileProvider(path)
	require.NoError(t, err)

	text, err := p.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, raw, text)
}

func TestFileProviderErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name:    "invalid json",
			file:    "bad.json",
			content: `{"tables": [`,
		},
		{
			name:    "schema violation missing columns",
			file:    "bad.json",
			content: `{"tables": [{"name": "orders"}]}`,
		},
		{
			name:    "schema violation empty tables",
			file:    "bad.json",
			content: `{"tables": []}`,
		},
		{
			name:    "empty file",
			file:    "empty.json",
			content: "   ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTempFile(t, tt.file, tt.content)

			p, err := NewFileProvider(path)
			require.NoError(t, err)

			_, err = p.Load(context.Background())
			require.Error(t, err)

			var qerr *schema.QueryError
			require.ErrorAs(t, err, &qerr)
			assert.Equal(t, schema.ErrCodeMetadataLoad, qerr.Code)
		})
	}
}

func TestFileProviderMissingFile(t *testing.T) {
	p, err := NewFileProvider(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)

	_, err = p.Load(context.Background())
	require.Error(t, err)

	var qerr *schema.QueryError
	require.ErrorAs(t, err, &qerr)
	assert.Equal(t, schema.ErrCodeMetadataLoad, qerr.Code)
}

func TestNewFileProviderEmptyPath(t *testing.T) {
	_, err := NewFileProvider("")
	require.Error(t, err)
}

func TestCachedProviderLazyLoadAndReuse(t *testing.T) {
	calls := 0
	inner := ProviderFunc(func(ctx context.Context) (string, error) {
		calls++
		return "schema text", nil
	})

	p, err := NewCachedProvider(inner, "*/5 * * * *", nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		text, err := p.Load(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "schema text", text)
	}
	assert.Equal(t, 1, calls)
}

func TestCachedProviderPropagatesLoadError(t *testing.T) {
	inner := ProviderFunc(func(ctx context.Context) (string, error) {
		return "", schema.NewError(schema.ErrCodeMetadataLoad, "boom")
	})

	p, err := NewCachedProvider(inner, "0 * * * *", nil)
	require.NoError(t, err)

	_, err = p.Load(context.Background())
	require.Error(t, err)

	var qerr *schema.QueryError
	require.ErrorAs(t, err, &qerr)
	assert.Equal(t, schema.ErrCodeMetadataLoad, qerr.Code)
}

func TestCachedProviderBadCronExpression(t *testing.T) {
	inner := ProviderFunc(func(ctx context.Context) (string, error) { return "", nil })
	_, err := NewCachedProvider(inner, "not a cron", nil)
	require.Error(t, err)
}

func TestCachedProviderStartStop(t *testing.T) {
	inner := ProviderFunc(func(ctx context.Context) (string, error) { return "x", nil })

	p, err := NewCachedProvider(inner, "* * * * *", nil)
	require.NoError(t, err)

	require.NoError(t, p.Start(context.Background()))
	assert.Error(t, p.Start(context.Background()))
	require.NoError(t, p.Stop())
	require.NoError(t, p.Stop())
}
