// Package idp intercambia un token emitido por un IDP externo por un resultado de
// autenticación local: verifica firma y claims, y recién entonces busca o provisiona
// el usuario.
package idp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dropDatabas3/uaagate/internal/authn"
	"github.com/dropDatabas3/uaagate/internal/claims"
	"github.com/dropDatabas3/uaagate/internal/jwk"
	"github.com/dropDatabas3/uaagate/internal/metrics"
	"github.com/dropDatabas3/uaagate/internal/observability/logger"
	"github.com/dropDatabas3/uaagate/internal/tenant"
	"github.com/dropDatabas3/uaagate/internal/users"
)

// KeyResolver resuelve la clave pública de un kid (implementado por *jwk.Cache).
type KeyResolver interface {
	Resolve(ctx context.Context, tenant, kid string) (*jwk.Entry, error)
}

// VerifierSource devuelve los claim verifiers de tenant+client y la versión de config de
// la que salen (implementado por *claims.Registry).
type VerifierSource interface {
	VerifiersFor(tenant, clientID string) ([]claims.Verifier, uint64, error)
}

type Deps struct {
	Keys       KeyResolver
	Verifiers  VerifierSource
	Users      users.Store
	Roles      RolePolicy
	Attributes Attributes
	Leeway     time.Duration
	Hooks      Hooks
}

type Exchanger struct {
	keys        KeyResolver
	verifiers   VerifierSource
	users       users.Store
	provisioner *users.Provisioner
	leeway      time.Duration
	hooks       Hooks
}

func NewExchanger(d Deps) *Exchanger {
	attrs := d.Attributes
	if attrs.Identity == "" {
		attrs.Identity = DefaultAttributes.Identity
	}
	if attrs.FirstName == "" {
		attrs.FirstName = DefaultAttributes.FirstName
	}
	if attrs.LastName == "" {
		attrs.LastName = DefaultAttributes.LastName
	}
	return &Exchanger{
		keys:        d.Keys,
		verifiers:   d.Verifiers,
		users:       d.Users,
		provisioner: &users.Provisioner{Store: d.Users},
		leeway:      d.Leeway,
		hooks:       d.Hooks.withDefaults(attrs, d.Roles),
	}
}

// Exchange valida rawToken para el tenant y devuelve el resultado autenticado. params
// viajan como details opacos para auditoría.
func (e *Exchanger) Exchange(ctx context.Context, tenantKey, rawToken string, params map[string]string) (*authn.Result, error) {
	tk := tenant.Normalize(tenantKey)
	ctx = tenant.WithTenant(ctx, tk)
	log := logger.From(ctx).With(logger.Layer("idp"), logger.Op("Exchange"), logger.TenantID(tk))

	res, err := e.exchange(ctx, tk, rawToken, params)
	if err != nil {
		metrics.IdpExchangeTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
		if authn.IsAuthFailure(err) {
			log.Warn("idp token rejected", logger.Err(err))
		} else {
			log.Error("idp exchange failed", logger.Err(err))
		}
		return nil, err
	}
	metrics.IdpExchangeTotal.WithLabelValues(metrics.OutcomeOK).Inc()
	log.Info("idp token exchanged",
		logger.String("user_key", res.Principal().UserKey),
		logger.Role(res.Role()),
	)
	return res, nil
}

func (e *Exchanger) exchange(ctx context.Context, tk, rawToken string, params map[string]string) (*authn.Result, error) {
	// 1) parse sin verificar: sólo para sacar el kid
	tok, _, err := jwt.NewParser().ParseUnverified(rawToken, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", authn.ErrTokenInvalid, err)
	}
	kid, _ := tok.Header["kid"].(string)
	if kid == "" {
		return nil, fmt.Errorf("%w: missing kid", authn.ErrTokenInvalid)
	}

	// 2) firma, luego issuer/audience. Todo antes de tocar usuarios.
	c, err := e.verify(ctx, tk, kid, rawToken)
	if err != nil {
		return nil, err
	}

	// 3) identidad
	identity := users.NormalizeLogin(e.hooks.ExtractIdentity(ctx, tk, c))
	if identity == "" {
		return nil, fmt.Errorf("%w: identity claim missing", authn.ErrTokenInvalid)
	}

	// 4) usuario existente o alta
	u, err := e.users.FindByLogin(ctx, identity)
	switch {
	case err == nil:
	case errors.Is(err, users.ErrNotFound):
		if u, err = e.provision(ctx, tk, c, identity); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	// 5) authorities + resultado inmutable
	authorities := e.hooks.MapAuthorities(ctx, tk, []string{u.RoleKey})
	return authn.NewResult(authn.Principal{
		Tenant:    tk,
		UserKey:   u.Key,
		Login:     u.PrimaryLogin(),
		FirstName: u.FirstName,
		LastName:  u.LastName,
		RoleKey:   u.RoleKey,
	}, authorities, params), nil
}

func (e *Exchanger) verify(ctx context.Context, tk, kid, rawToken string) (jwt.MapClaims, error) {
	entry, err := e.keys.Resolve(ctx, tk, kid)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", authn.ErrTokenInvalid, err)
	}
	c, err := entry.Verify(rawToken, e.leeway)
	if err != nil {
		return nil, err
	}

	clientID := ClientID(c)
	if clientID == "" {
		return nil, fmt.Errorf("%w: no azp/aud", authn.ErrTokenInvalid)
	}
	vs, version, err := e.verifiers.VerifiersFor(tk, clientID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", authn.ErrTokenInvalid, err)
	}
	// clave y verifiers tienen que salir del mismo snapshot
	if version != entry.Version {
		return nil, fmt.Errorf("%w: kid %s from config version %d, verifiers from version %d",
			authn.ErrTokenInvalid, kid, entry.Version, version)
	}
	if err := claims.VerifyAll(vs, c); err != nil {
		return nil, err
	}
	if err := e.hooks.ValidateToken(ctx, tk, c); err != nil {
		return nil, fmt.Errorf("%w: %w", authn.ErrTokenInvalid, err)
	}
	return c, nil
}

func (e *Exchanger) provision(ctx context.Context, tk string, c jwt.MapClaims, identity string) (*users.LocalUser, error) {
	draft := e.hooks.ConvertClaims(ctx, tk, c, identity)
	role, err := e.hooks.MapRole(ctx, tk, c)
	if err != nil {
		return nil, err
	}
	draft.RoleKey = role
	return e.provisioner.Provision(ctx, "idp", draft)
}
