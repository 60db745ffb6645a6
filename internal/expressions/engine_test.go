package expressions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCELEngineEvaluate(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)
	assert.Equal(t, "cel", e.Name())

	tests := []struct {
		name string
		expr string
		data map[string]any
		want any
	}{
		{"string prefix", `sql.startsWith("select")`, map[string]any{"sql": "select 1"}, true},
		{"string contains", `sql.contains("drop")`, map[string]any{"sql": "select 1"}, false},
		{"defaults applied", `sql == ""`, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Evaluate(context.Background(), tt.expr, tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCELEngineCompileError(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	_, err = e.Evaluate(context.Background(), `sql.startsWith(`, nil)
	require.Error(t, err)
}

func TestExprEngineEvaluate(t *testing.T) {
	e := NewExprEngine()
	assert.Equal(t, "expr", e.Name())

	got, err := e.Evaluate(context.Background(), `sum(values)`, map[string]any{
		"values": []any{1.0, 2.0, 3.0},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 6.0, got)

	got, err = e.Evaluate(context.Background(), `none(["drop ", "delete "], sql contains #)`, map[string]any{
		"sql": "select * from orders",
	})
	require.NoError(t, err)
	assert.Equal(t, true, got)
}

func TestGoJQEngineEvaluate(t *testing.T) {
	e := NewGoJQEngine()
	assert.Equal(t, "jq", e.Name())

	data := map[string]any{
		"rows": []any{
			map[string]any{"name": "a", "n": 1},
			map[string]any{"name": "b", "n": 2},
		},
	}

	got, err := e.Evaluate(context.Background(), `.rows | map(.name)`, data)
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, got)

	// Multiple outputs collapse into a slice.
	got, err = e.Evaluate(context.Background(), `.rows[].n`, data)
	require.NoError(t, err)
	assert.Equal(t, []any{1, 2}, got)
}

func TestGoJQEngineParseError(t *testing.T) {
	e := NewGoJQEngine()
	_, err := e.Evaluate(context.Background(), `.rows |`, nil)
	require.Error(t, err)
}

func TestEnginesCacheCompiledPrograms(t *testing.T) {
	cel, err := NewCELEngine()
	require.NoError(t, err)
	engines := []Engine{cel, NewExprEngine(), NewGoJQEngine()}

	exprs := map[string]string{
		"cel":  `sql.contains("x")`,
		"expr": `sql contains "x"`,
		"jq":   `.sql | contains("x")`,
	}
	data := map[string]any{"sql": "select x"}

	for _, e := range engines {
		for i := 0; i < 3; i++ {
			got, err := e.Evaluate(context.Background(), exprs[e.Name()], data)
			require.NoError(t, err)
			assert.Equal(t, true, got)
		}
	}
}
