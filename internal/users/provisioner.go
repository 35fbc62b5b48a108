package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/dropDatabas3/uaagate/internal/authn"
	"github.com/dropDatabas3/uaagate/internal/metrics"
	"github.com/dropDatabas3/uaagate/internal/observability/logger"
)

// Provisioner da de alta usuarios en el primer login externo (IDP o LDAP).
type Provisioner struct {
	Store Store
}

// Provision normaliza los logins, verifica que ninguno exista y crea el usuario.
// Cualquier colisión o rechazo del store se devuelve como ErrUserProvisioningFailed.
func (p *Provisioner) Provision(ctx context.Context, source string, draft *LocalUser) (*LocalUser, error) {
	u := cloneUser(draft)
	u.Activated = true
	for i := range u.Logins {
		u.Logins[i].Value = NormalizeLogin(u.Logins[i].Value)
	}

	for _, l := range u.Logins {
		_, err := p.Store.FindByLogin(ctx, l.Value)
		switch {
		case err == nil:
			return nil, fmt.Errorf("%w: %w: %s", authn.ErrUserProvisioningFailed, ErrLoginExists, l.Value)
		case !errors.Is(err, ErrNotFound):
			return nil, fmt.Errorf("%w: %w", authn.ErrUserProvisioningFailed, err)
		}
	}

	created, err := p.Store.Create(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", authn.ErrUserProvisioningFailed, err)
	}
	metrics.UserProvisionedTotal.WithLabelValues(source).Inc()
	logger.From(ctx).Info("local user provisioned",
		logger.Layer("users"),
		logger.Source(source),
		logger.String("user_key", created.Key),
		logger.Role(created.RoleKey),
	)
	return created, nil
}
