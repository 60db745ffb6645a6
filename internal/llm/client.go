package llm

import "context"

// Request is one completion call: a system instruction plus a user prompt.
type Request struct {
	System      string
	User        string
	Model       string
	Temperature float64
	MaxTokens   int
}

// Client is the LLM completion capability consumed by workflow nodes.
// Implementations must be safe for concurrent use by multiple runs.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// ClientFunc adapts an ordinary function to the Client interface.
type ClientFunc func(ctx context.Context, req Request) (string, error)

func (f ClientFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
