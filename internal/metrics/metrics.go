package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Gateway-level Prometheus metrics. Standalone package so jwk/idp/router can record
// without importing the HTTP layer.

var (
	RouteTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "uaa_route_total",
		Help: "Logins por provider seleccionado (default|ldap)",
	}, []string{"provider"})

	IdpExchangeTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "uaa_idp_exchange_total",
		Help: "Intercambios de token IDP por resultado",
	}, []string{"outcome"})

	JwksRefillTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "uaa_jwks_refill_total",
		Help: "Recargas de JWKS por tipo de fuente y resultado",
	}, []string{"source", "outcome"})

	TenantConfigPushTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "uaa_tenant_config_push_total",
		Help: "Pushes de configuración de tenant por tipo y resultado",
	}, []string{"kind", "outcome"})

	UserProvisionedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "uaa_user_provisioned_total",
		Help: "Usuarios locales creados en el primer login externo",
	}, []string{"source"})
)

// Outcome label values.
const (
	OutcomeOK      = "ok"
	OutcomeFailed  = "failed"
	OutcomeIgnored = "ignored"
)

// Register registers the gateway metrics on the given registry (or default if nil).
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{
		RouteTotal, IdpExchangeTotal, JwksRefillTotal, TenantConfigPushTotal, UserProvisionedTotal,
	} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
