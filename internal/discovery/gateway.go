package discovery

import "context"

// Gateway produces text for a system role and a user prompt. Implementations
// may be slow and may fail; errors are returned to the caller unchanged.
type Gateway interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// GatewayFunc adapts a function to Gateway.
type GatewayFunc func(ctx context.Context, system, user string) (string, error)

func (f GatewayFunc) Generate(ctx context.Context, system, user string) (string, error) {
	return f(ctx, system, user)
}
