// Package tenant carries the ambient tenant key alongside a request.
package tenant

import (
	"context"
	"strings"

	"github.com/dropDatabas3/uaagate/internal/authn"
)

type ctxKey struct{}

// Normalize returns the canonical form of a tenant key (trimmed, upper-case).
func Normalize(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}

// WithTenant stores the normalized tenant key in ctx.
func WithTenant(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, ctxKey{}, Normalize(key))
}

// FromContext returns the tenant key or ErrTenantNotProvided.
func FromContext(ctx context.Context) (string, error) {
	if v, ok := ctx.Value(ctxKey{}).(string); ok && v != "" {
		return v, nil
	}
	return "", authn.ErrTenantNotProvided
}
