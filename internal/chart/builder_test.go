package chart

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/askdb/internal/expressions"
	"github.com/rendis/askdb/pkg/schema"
)

func newTestBuilder() *Builder {
	return NewBuilder(expressions.NewGoJQEngine())
}

func TestBuildBarChart(t *testing.T) {
	rows := []schema.Row{
		{"customer": "alice", "total": 10.5, "orders": int64(3)},
		{"customer": "bob", "total": 20.0, "orders": int64(5)},
	}

	chart, err := newTestBuilder().Build(context.Background(), rows)
	require.NoError(t, err)
	require.NotNil(t, chart)

	assert.Equal(t, "bar", chart.Type)
	assert.Equal(t, []string{"alice", "bob"}, chart.Labels)

	require.Len(t, chart.Series, 2)
	assert.Equal(t, "orders", chart.Series[0].Name)
	assert.Equal(t, []float64{3, 5}, chart.Series[0].Values)
	assert.Equal(t, "total", chart.Series[1].Name)
	assert.Equal(t, []float64{10.5, 20.0}, chart.Series[1].Values)
}

func TestBuildLineChartForTemporalLabels(t *testing.T) {
	rows := []schema.Row{
		{"order_date": "2026-01-01", "revenue": 100.0},
		{"order_date": "2026-01-02", "revenue": 150.0},
	}

	chart, err := newTestBuilder().Build(context.Background(), rows)
	require.NoError(t, err)
	require.NotNil(t, chart)
	assert.Equal(t, "line", chart.Type)
	assert.Equal(t, []string{"2026-01-01", "2026-01-02"}, chart.Labels)
}

func TestBuildOrdinalLabelsWithoutTextColumn(t *testing.T) {
	rows := []schema.Row{
		{"count": int64(7)},
		{"count": int64(9)},
	}

	chart, err := newTestBuilder().Build(context.Background(), rows)
	require.NoError(t, err)
	require.NotNil(t, chart)
	assert.Equal(t, []string{"1", "2"}, chart.Labels)
	require.Len(t, chart.Series, 1)
	assert.Equal(t, []float64{7, 9}, chart.Series[0].Values)
}

func TestBuildNullNumericTreatedAsZero(t *testing.T) {
	rows := []schema.Row{
		{"customer": "alice", "total": 10.0},
		{"customer": "bob", "total": nil},
	}

	chart, err := newTestBuilder().Build(context.Background(), rows)
	require.NoError(t, err)
	require.NotNil(t, chart)
	assert.Equal(t, []float64{10, 0}, chart.Series[0].Values)
}

func TestBuildNoChart(t *testing.T) {
	b := newTestBuilder()

	chart, err := b.Build(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, chart)

	chart, err = b.Build(context.Background(), []schema.Row{
		{"name": "alice", "email": "a@example.com"},
	})
	require.NoError(t, err)
	assert.Nil(t, chart)
}
