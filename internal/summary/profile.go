package summary

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rendis/askdb/internal/expressions"
	"github.com/rendis/askdb/pkg/schema"
)

// statsExpression computes the aggregate stats for one numeric column
// in a single evaluation.
const statsExpression = `{"min": min(values), "max": max(values), "mean": mean(values), "sum": sum(values)}`

// Profiler renders a deterministic text profile of result rows. The
// profile is embedded in the summarization prompt so the model grounds
// its summary in actual aggregates instead of guessing from raw rows.
type Profiler struct {
	engine expressions.Engine
}

// NewProfiler creates a profiler backed by the given expression engine.
func NewProfiler(engine expressions.Engine) *Profiler {
	return &Profiler{engine: engine}
}

// Profile produces the profile text. Columns appear in alphabetical
// order so identical inputs always produce identical output.
func (p *Profiler) Profile(ctx context.Context, rows []schema.Row) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Rows: %d\n", len(rows))
	if len(rows) == 0 {
		return strings.TrimRight(b.String(), "\n"), nil
	}

	cols := make([]string, 0, len(rows[0]))
	for col := range rows[0] {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	fmt.Fprintf(&b, "Columns: %s\n", strings.Join(cols, ", "))

	for _, col := range cols {
		values := numericValues(rows, col)
		if len(values) == 0 {
			continue
		}
		stats, err := p.columnStats(ctx, values)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "%s: min=%s max=%s mean=%s sum=%s\n",
			col,
			formatNumber(stats["min"]),
			formatNumber(stats["max"]),
			formatNumber(stats["mean"]),
			formatNumber(stats["sum"]),
		)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// columnStats evaluates the stats expression over the column values.
func (p *Profiler) columnStats(ctx context.Context, values []float64) (map[string]any, error) {
	vals := make([]any, len(values))
	for i, v := range values {
		vals[i] = v
	}
	result, err := p.engine.Evaluate(ctx, statsExpression, map[string]any{"values": vals})
	if err != nil {
		return nil, err
	}
	stats, ok := result.(map[string]any)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeInternal, "stats expression returned %T, expected map", result)
	}
	return stats, nil
}

// numericValues collects the numeric values of one column, skipping
// rows where the column is null or non-numeric.
func numericValues(rows []schema.Row, col string) []float64 {
	values := make([]float64, 0, len(rows))
	for _, row := range rows {
		switch x := row[col].(type) {
		case int:
			values = append(values, float64(x))
		case int32:
			values = append(values, float64(x))
		case int64:
			values = append(values, float64(x))
		case float32:
			values = append(values, float64(x))
		case float64:
			values = append(values, x)
		}
	}
	return values
}

func formatNumber(v any) string {
	switch x := v.(type) {
	case float64:
		return fmt.Sprintf("%g", x)
	case int:
		return fmt.Sprintf("%d", x)
	default:
		return fmt.Sprintf("%v", v)
	}
}
