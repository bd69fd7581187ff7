package ports

import (
	"context"
	"fetchguard/internal/types"
)

// Transport performs one blocking request. The body returned on success MUST be JSON.
// Expected failures MUST be returned as *types.TransportError; anything else is treated as a programmer error
// and reported as-is.
type Transport interface {
	Perform(ctx context.Context, method types.Method, endpoint string, payload any) ([]byte, error)
}

// TransportFunc adapts a plain function to Transport.
type TransportFunc func(ctx context.Context, method types.Method, endpoint string, payload any) ([]byte, error)

func (f TransportFunc) Perform(ctx context.Context, method types.Method, endpoint string, payload any) ([]byte, error) {
	return f(ctx, method, endpoint, payload)
}

type tokenCtxKey struct{}

// WithToken attaches the bearer token a Transport should present.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenCtxKey{}, token)
}

// TokenFromContext returns the token set by WithToken, if any.
func TokenFromContext(ctx context.Context) (string, bool) {
	t, ok := ctx.Value(tokenCtxKey{}).(string)
	return t, ok && t != ""
}
