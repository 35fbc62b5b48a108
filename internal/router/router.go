// Package router elige qué provider valida una credencial: el directorio LDAP del
// dominio embebido en el login, o el provider por defecto.
package router

import (
	"context"
	"strings"

	"github.com/dropDatabas3/uaagate/internal/authn"
	"github.com/dropDatabas3/uaagate/internal/metrics"
	"github.com/dropDatabas3/uaagate/internal/observability/logger"
	"github.com/dropDatabas3/uaagate/internal/util"
)

// ProviderBuilder construye (o devuelve cacheado) el provider de un dominio para el
// tenant de ctx; false si no hay directorio para ese dominio.
type ProviderBuilder interface {
	Build(ctx context.Context, domain string) (authn.Provider, bool)
}

// Router sólo selecciona: no agrega verificación propia.
type Router struct {
	Default   authn.Provider
	Domains   ProviderBuilder
	Separator string
}

func New(def authn.Provider, domains ProviderBuilder, separator string) *Router {
	if separator == "" {
		separator = "@"
	}
	return &Router{Default: def, Domains: domains, Separator: separator}
}

// Split parte el principal por el separador descartando segmentos vacíos al final,
// así "alice@" no produce un dominio vacío.
func Split(principal, sep string) []string {
	parts := strings.Split(principal, sep)
	for len(parts) > 0 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return parts
}

// Select devuelve el provider elegido y el dominio resuelto ("" => default).
func (r *Router) Select(ctx context.Context, principal string) (authn.Provider, string) {
	parts := Split(principal, r.Separator)
	if len(parts) < 2 || r.Domains == nil {
		return r.Default, ""
	}
	domain := parts[len(parts)-1]
	logger.From(ctx).Info("ldap domain resolved",
		logger.Layer("router"),
		logger.Domain(domain),
		logger.Principal(util.MaskLogin(principal)),
	)
	if p, ok := r.Domains.Build(ctx, domain); ok {
		return p, domain
	}
	return r.Default, ""
}

func (r *Router) Authenticate(ctx context.Context, principal, credential string) (*authn.Result, error) {
	p, domain := r.Select(ctx, principal)
	kind := "default"
	if domain != "" {
		kind = "ldap"
	}
	metrics.RouteTotal.WithLabelValues(kind).Inc()

	res, err := p.Authenticate(ctx, principal, credential)
	if err != nil {
		return nil, err
	}
	logger.From(ctx).Info("authenticated",
		logger.Layer("router"),
		logger.String("provider", kind),
		logger.Bool("authenticated", res.IsAuthenticated()),
		logger.Role(res.Role()),
		logger.Strings("authorities", res.Authorities()),
		logger.Principal(util.MaskLogin(res.Principal().Login)),
	)
	return res, nil
}
