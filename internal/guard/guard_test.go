package guard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/askdb/internal/expressions"
	"github.com/rendis/askdb/pkg/schema"
)

func newTestGuard(t *testing.T, opts ...Option) *Guard {
	t.Helper()
	cel, err := expressions.NewCELEngine()
	require.NoError(t, err)
	return New(cel, expressions.NewExprEngine(), opts...)
}

func TestClean(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "SELECT 1", "SELECT 1"},
		{"trailing semicolon", "SELECT 1;", "SELECT 1"},
		{"whitespace", "  SELECT 1  \n", "SELECT 1"},
		{"sql fence", "```sql\nSELECT id FROM orders\n```", "SELECT id FROM orders"},
		{"bare fence", "```\nSELECT 1\n```", "SELECT 1"},
		{"fence and semicolon", "```sql\nSELECT 1;\n```", "SELECT 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Clean(tt.in))
		})
	}
}

func TestRewriteLimitEnforcement(t *testing.T) {
	g := newTestGuard(t, WithMaxRows(100))

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"missing limit appended", "SELECT id FROM orders", "SELECT id FROM orders LIMIT 100"},
		{"limit within cap kept", "SELECT id FROM orders LIMIT 10", "SELECT id FROM orders LIMIT 10"},
		{"limit above cap clamped", "SELECT id FROM orders LIMIT 5000", "SELECT id FROM orders LIMIT 100"},
		{"lowercase limit kept", "select id from orders limit 50", "select id from orders limit 50"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, g.Rewrite(tt.in))
		})
	}
}

func TestRewriteNamespaceQualification(t *testing.T) {
	g := newTestGuard(t, WithNamespace("analytics"), WithMaxRows(100))

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			"bare table qualified",
			"SELECT id FROM orders LIMIT 5",
			"SELECT id FROM analytics.orders LIMIT 5",
		},
		{
			"join qualified",
			"SELECT o.id FROM orders o JOIN customers c ON o.customer_id = c.id LIMIT 5",
			"SELECT o.id FROM analytics.orders o JOIN analytics.customers c ON o.customer_id = c.id LIMIT 5",
		},
		{
			"already qualified untouched",
			"SELECT id FROM analytics.orders LIMIT 5",
			"SELECT id FROM analytics.orders LIMIT 5",
		},
		{
			"repeated table qualified each time",
			"SELECT a.id FROM orders a JOIN orders b ON a.id = b.id LIMIT 5",
			"SELECT a.id FROM analytics.orders a JOIN analytics.orders b ON a.id = b.id LIMIT 5",
		},
		{
			"cte name untouched, inner table qualified",
			"WITH recent AS (SELECT id FROM orders) SELECT * FROM recent LIMIT 10",
			"WITH recent AS (SELECT id FROM analytics.orders) SELECT * FROM recent LIMIT 10",
		},
		{
			"multiple ctes untouched",
			"WITH a AS (SELECT id FROM orders), b AS (SELECT id FROM customers) SELECT * FROM a JOIN b ON a.id = b.id LIMIT 10",
			"WITH a AS (SELECT id FROM analytics.orders), b AS (SELECT id FROM analytics.customers) SELECT * FROM a JOIN b ON a.id = b.id LIMIT 10",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, g.Rewrite(tt.in))
		})
	}
}

func TestCheckDefaultRules(t *testing.T) {
	g := newTestGuard(t)
	ctx := context.Background()

	assert.NoError(t, g.Check(ctx, "SELECT id FROM orders LIMIT 10"))
	assert.NoError(t, g.Check(ctx, "WITH t AS (SELECT 1) SELECT * FROM t LIMIT 10"))

	tests := []struct {
		name  string
		query string
		rule  string
	}{
		{"not a select", "EXPLAIN SELECT 1", "select_only"},
		{"drop statement", "SELECT 1 WHERE 'x' = 'drop table'", "no_mutations"},
		{"delete keyword", "SELECT * FROM logs WHERE action = 'delete row'", "no_mutations"},
		{"multiple statements", "SELECT 1; SELECT 2", "single_statement"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.Check(ctx, tt.query)
			require.Error(t, err)

			var qerr *schema.QueryError
			require.ErrorAs(t, err, &qerr)
			assert.Equal(t, schema.ErrCodeSQLValidation, qerr.Code)
			assert.Equal(t, tt.rule, qerr.Details["rule"])
		})
	}
}

func TestCheckCustomRules(t *testing.T) {
	cel, err := expressions.NewCELEngine()
	require.NoError(t, err)

	g := New(cel, expressions.NewExprEngine(), WithRules([]Rule{
		{
			Name:       "no_cross_join",
			Engine:     cel,
			Expression: `!sql.contains("cross join")`,
			Message:    "cross joins are not allowed",
		},
	}))

	assert.NoError(t, g.Check(context.Background(), "SELECT 1"))

	err = g.Check(context.Background(), "SELECT * FROM a CROSS JOIN b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cross joins are not allowed")
}
