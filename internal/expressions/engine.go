package expressions

import "context"

// Engine evaluates expressions against query-pipeline data.
// Three implementations: CEL and Expr (guard rules), GoJQ (row transforms).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
