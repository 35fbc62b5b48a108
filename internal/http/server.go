// Package http expone el token endpoint del gateway y los endpoints operativos.
package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dropDatabas3/uaagate/internal/authn"
	"github.com/dropDatabas3/uaagate/internal/observability/logger"
	"github.com/dropDatabas3/uaagate/internal/rate"
)

// Authenticator resuelve grant_type=password (el router de providers).
type Authenticator interface {
	Authenticate(ctx context.Context, principal, credential string) (*authn.Result, error)
}

// Exchanger resuelve grant_type=idp_token.
type Exchanger interface {
	Exchange(ctx context.Context, tenantKey, rawToken string, params map[string]string) (*authn.Result, error)
}

// TokenIssuer firma el access token interno para un resultado autenticado.
type TokenIssuer interface {
	IssueAccess(res *authn.Result) (string, time.Time, error)
}

// Deps agrupa lo que necesita el router HTTP.
type Deps struct {
	Passwords    Authenticator
	Exchanger    Exchanger
	Tokens       TokenIssuer
	TenantHeader string       // default X-Tenant
	JWKS         []byte       // opcional: /.well-known/jwks.json
	Limiter      rate.Limiter // opcional: throttling de /oauth/token

	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
	Ready      func(ctx context.Context) error
}

// NewRouter arma el chi router con la cadena request id -> tenant -> logging -> metrics.
func NewRouter(d Deps) (http.Handler, error) {
	if d.TenantHeader == "" {
		d.TenantHeader = "X-Tenant"
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}
	m, err := newHTTPMetrics(d.Registerer)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(WithRequestID(), WithTenant(d.TenantHeader), WithLogging(), m.middleware)

	th := &tokenHandler{passwords: d.Passwords, exchanger: d.Exchanger, tokens: d.Tokens, limiter: d.Limiter}
	r.Post("/oauth/token", th.ServeHTTP)

	r.Get("/readyz", readyHandler(d.Ready))
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	if len(d.JWKS) > 0 {
		jwks := d.JWKS
		r.Get("/.well-known/jwks.json", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Cache-Control", "public, max-age=300")
			_, _ = w.Write(jwks)
		})
	}
	return r, nil
}

func readyHandler(ready func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			if err := ready(r.Context()); err != nil {
				logger.From(r.Context()).Warn("not ready", logger.Err(err))
				WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// Serve atiende en addr hasta que ctx se cancela; luego hace shutdown ordenado.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	logger.L().Info("http listening", logger.String("addr", addr))
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
