package authn

import (
	"fmt"
	"maps"
	"slices"
)

// Principal is the authenticated identity handed to token issuance.
type Principal struct {
	Tenant    string
	UserKey   string
	Login     string
	FirstName string
	LastName  string
	RoleKey   string
}

// Result is an authenticated principal plus its granted authorities.
// Authenticity is fixed at construction; there is no way to flip it back on.
type Result struct {
	principal     Principal
	authorities   []string
	details       map[string]string
	authenticated bool
	credentials   string
}

// NewResult builds a trusted result. Authorities and details are copied.
func NewResult(p Principal, authorities []string, details map[string]string) *Result {
	return &Result{
		principal:     p,
		authorities:   slices.Clone(authorities),
		details:       maps.Clone(details),
		authenticated: true,
	}
}

// WithCredentials attaches the raw credential used for the login (erased by EraseCredentials).
func (r *Result) WithCredentials(c string) *Result {
	r.credentials = c
	return r
}

func (r *Result) Principal() Principal { return r.principal }

// Authorities returns a copy of the granted authorities.
func (r *Result) Authorities() []string { return slices.Clone(r.authorities) }

// Details returns a copy of the opaque request details.
func (r *Result) Details() map[string]string { return maps.Clone(r.details) }

func (r *Result) IsAuthenticated() bool { return r.authenticated }

func (r *Result) Credentials() string { return r.credentials }

// EraseCredentials drops the credential once the result left the provider.
func (r *Result) EraseCredentials() { r.credentials = "" }

// SetAuthenticated confirming the state is a no-op; any attempt to revoke it fails.
func (r *Result) SetAuthenticated(v bool) error {
	if v == r.authenticated {
		return nil
	}
	return fmt.Errorf("%w: authenticity is fixed at construction", ErrInvalidState)
}

// Role returns the first granted authority or the persisted role key.
func (r *Result) Role() string {
	if len(r.authorities) > 0 {
		return r.authorities[0]
	}
	return r.principal.RoleKey
}
