// Package arbiter defines the port that decides who may resolve disputed tasks.
package arbiter

import "context"

// Authorizer reports whether caller holds the arbiter capability.
type Authorizer interface {
	IsAuthorizedArbiter(ctx context.Context, caller string) (bool, error)
}

// AuthorizerFunc adapts a plain function to Authorizer.
type AuthorizerFunc func(ctx context.Context, caller string) (bool, error)

// IsAuthorizedArbiter calls f.
func (f AuthorizerFunc) IsAuthorizedArbiter(ctx context.Context, caller string) (bool, error) {
	return f(ctx, caller)
}
