package auth

import (
	"context"
)

type contextKey string

// ContextKeyPrincipal is the context key for the authenticated credential
const ContextKeyPrincipal contextKey = "principal"

// Principal is the resolved credential of a request.
type Principal struct {
	// Identity is the stable credential id rate limits are keyed by.
	Identity string
	Tier     string
	Admin    bool
}

// WithPrincipal adds the principal to the context
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ContextKeyPrincipal, p)
}

// PrincipalFromContext retrieves the principal from the context
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(ContextKeyPrincipal).(*Principal)
	return p, ok && p != nil
}
