// Package localauth es el provider por defecto: valida usuario/password contra el store
// local de usuarios.
package localauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/dropDatabas3/uaagate/internal/authn"
	"github.com/dropDatabas3/uaagate/internal/observability/logger"
	"github.com/dropDatabas3/uaagate/internal/security/password"
	"github.com/dropDatabas3/uaagate/internal/tenant"
	"github.com/dropDatabas3/uaagate/internal/users"
)

// dummyHash se verifica cuando el usuario no existe, para no revelar existencia por timing.
const dummyHash = "$argon2id$v=19$m=65536,t=3,p=1$c2FsdHNhbHRzYWx0c2FsdA$2QzZnNZIvJpfcX+IQwKrnNc1gYLRDR0kHLfGnvAvRfU"

type Provider struct {
	Users users.Store
}

func New(store users.Store) *Provider { return &Provider{Users: store} }

func (p *Provider) Authenticate(ctx context.Context, principal, credential string) (*authn.Result, error) {
	t, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	log := logger.From(ctx).With(logger.Layer("localauth"), logger.TenantID(t))

	u, err := p.Users.FindByLogin(ctx, principal)
	if errors.Is(err, users.ErrNotFound) {
		_ = password.Verify(credential, dummyHash)
		return nil, fmt.Errorf("%w: unknown login", authn.ErrAuthenticationFailed)
	}
	if err != nil {
		return nil, err
	}
	if !u.Activated {
		return nil, fmt.Errorf("%w: user not activated", authn.ErrAuthenticationFailed)
	}
	if u.PasswordHash == "" || !password.Verify(credential, u.PasswordHash) {
		log.Debug("bad credentials", logger.String("user_key", u.Key))
		return nil, fmt.Errorf("%w: bad credentials", authn.ErrAuthenticationFailed)
	}

	return authn.NewResult(authn.Principal{
		Tenant:    t,
		UserKey:   u.Key,
		Login:     u.PrimaryLogin(),
		FirstName: u.FirstName,
		LastName:  u.LastName,
		RoleKey:   u.RoleKey,
	}, []string{u.RoleKey}, nil).WithCredentials(credential), nil
}
