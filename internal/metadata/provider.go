package metadata

import "context"

// Provider supplies the schema description text injected into prompts.
// Implementations must be safe for concurrent use by multiple runs.
type Provider interface {
	Load(ctx context.Context) (string, error)
}

// ProviderFunc adapts an ordinary function to the Provider interface.
type ProviderFunc func(ctx context.Context) (string, error)

func (f ProviderFunc) Load(ctx context.Context) (string, error) {
	return f(ctx)
}
