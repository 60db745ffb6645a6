package chart

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rendis/askdb/internal/expressions"
	"github.com/rendis/askdb/pkg/schema"
)

// temporalHints mark label columns that suggest a line chart.
var temporalHints = []string{"date", "time", "month", "year", "day", "week", "hour"}

// Builder derives a chart from query result rows. The first text
// column (alphabetically) becomes the label axis and every numeric
// column becomes a series. Rows with no numeric columns produce no
// chart.
type Builder struct {
	jq expressions.Engine
}

// NewBuilder creates a chart builder backed by the given jq engine.
func NewBuilder(jq expressions.Engine) *Builder {
	return &Builder{jq: jq}
}

// Build projects rows into a chart. Returns (nil, nil) when the rows
// cannot be charted.
func (b *Builder) Build(ctx context.Context, rows []schema.Row) (*schema.Chart, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	labelCol, numericCols := classifyColumns(rows[0])
	if len(numericCols) == 0 {
		return nil, nil
	}

	data := map[string]any{"rows": normalizeRows(rows)}

	labels, err := b.projectLabels(ctx, data, labelCol, len(rows))
	if err != nil {
		return nil, err
	}

	series := make([]schema.Series, 0, len(numericCols))
	for _, col := range numericCols {
		values, err := b.projectValues(ctx, data, col)
		if err != nil {
			return nil, err
		}
		series = append(series, schema.Series{Name: col, Values: values})
	}

	return &schema.Chart{
		Type:   inferType(labelCol),
		Labels: labels,
		Series: series,
	}, nil
}

// projectLabels extracts the label column as strings, falling back to
// row ordinals when no text column exists.
func (b *Builder) projectLabels(ctx context.Context, data map[string]any, labelCol string, n int) ([]string, error) {
	if labelCol == "" {
		labels := make([]string, n)
		for i := range labels {
			labels[i] = fmt.Sprintf("%d", i+1)
		}
		return labels, nil
	}

	result, err := b.jq.Evaluate(ctx, fmt.Sprintf(".rows | map(.%q | tostring)", labelCol), data)
	if err != nil {
		return nil, err
	}
	raw, ok := result.([]any)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeInternal, "label projection returned %T, expected list", result)
	}
	labels := make([]string, 0, len(raw))
	for _, v := range raw {
		labels = append(labels, fmt.Sprintf("%v", v))
	}
	return labels, nil
}

// projectValues extracts one numeric column, treating nulls as zero.
func (b *Builder) projectValues(ctx context.Context, data map[string]any, col string) ([]float64, error) {
	result, err := b.jq.Evaluate(ctx, fmt.Sprintf(".rows | map(.%q // 0)", col), data)
	if err != nil {
		return nil, err
	}
	raw, ok := result.([]any)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeInternal, "series projection returned %T, expected list", result)
	}
	values := make([]float64, 0, len(raw))
	for _, v := range raw {
		f, ok := toFloat(v)
		if !ok {
			f = 0
		}
		values = append(values, f)
	}
	return values, nil
}

// classifyColumns splits the columns of a sample row into the label
// column (first text column alphabetically) and numeric columns
// (alphabetical order, for deterministic output).
func classifyColumns(sample schema.Row) (labelCol string, numericCols []string) {
	cols := make([]string, 0, len(sample))
	for col := range sample {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	for _, col := range cols {
		switch sample[col].(type) {
		case string:
			if labelCol == "" {
				labelCol = col
			}
		case int, int32, int64, float32, float64:
			numericCols = append(numericCols, col)
		}
	}
	return labelCol, numericCols
}

// inferType picks a line chart for temporal label columns, bar otherwise.
func inferType(labelCol string) string {
	lower := strings.ToLower(labelCol)
	for _, hint := range temporalHints {
		if strings.Contains(lower, hint) {
			return "line"
		}
	}
	return "bar"
}

// normalizeRows converts rows into plain JSON values the jq engine
// accepts (int64 and float32 are not valid jq inputs).
func normalizeRows(rows []schema.Row) []any {
	out := make([]any, 0, len(rows))
	for _, row := range rows {
		m := make(map[string]any, len(row))
		for k, v := range row {
			m[k] = normalizeValue(v)
		}
		out = append(out, m)
	}
	return out
}

func normalizeValue(v any) any {
	switch x := v.(type) {
	case int32:
		return int(x)
	case int64:
		return int(x)
	case float32:
		return float64(x)
	default:
		return v
	}
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	default:
		return 0, false
	}
}
