// Package authn holds the types shared by every authentication path: the immutable
// Result, the Provider contract and the error taxonomy.
package authn

import "context"

// Provider validates a credential for a principal. Implementations must return an error
// wrapping ErrAuthenticationFailed for bad credentials.
type Provider interface {
	Authenticate(ctx context.Context, principal, credential string) (*Result, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, principal, credential string) (*Result, error)

func (f ProviderFunc) Authenticate(ctx context.Context, principal, credential string) (*Result, error) {
	return f(ctx, principal, credential)
}
