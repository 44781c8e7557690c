package auth

import (
	"context"
	"strings"
)

// Guest is the principal of unauthenticated requests.
const Guest = "guest"

type principalKey struct{}

// WithPrincipal returns a context carrying principal.
func WithPrincipal(ctx context.Context, principal string) context.Context {
	return context.WithValue(ctx, principalKey{}, principal)
}

// PrincipalFromContext returns the authenticated principal, or Guest.
func PrincipalFromContext(ctx context.Context) string {
	if p, ok := ctx.Value(principalKey{}).(string); ok && strings.TrimSpace(p) != "" {
		return p
	}
	return Guest
}
