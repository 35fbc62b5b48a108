package jwk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/dropDatabas3/uaagate/internal/authn"
	"github.com/dropDatabas3/uaagate/internal/idpconfig"
	"github.com/dropDatabas3/uaagate/internal/metrics"
	"github.com/dropDatabas3/uaagate/internal/observability/logger"
	"github.com/dropDatabas3/uaagate/internal/tenant"
)

// SnapshotSource expone la config IDP activa (implementado por *idpconfig.Store).
type SnapshotSource interface {
	Snapshot(tenant string) (*idpconfig.Snapshot, bool)
}

// keySet es el mapa kid -> Entry de un tenant, construido desde un snapshot de config.
type keySet struct {
	version uint64
	entries map[string]*Entry
}

type tenantKeys struct {
	mu  sync.Mutex // un refill a la vez por tenant
	cur atomic.Pointer[keySet]
}

// Cache resuelve claves por (tenant, kid).
type Cache struct {
	configs SnapshotSource
	loaders *Loaders

	tenants sync.Map // tenant -> *tenantKeys
}

func NewCache(configs SnapshotSource, loaders *Loaders) *Cache {
	return &Cache{configs: configs, loaders: loaders}
}

func (c *Cache) keysFor(tenantKey string) *tenantKeys {
	if v, ok := c.tenants.Load(tenantKey); ok {
		return v.(*tenantKeys)
	}
	v, _ := c.tenants.LoadOrStore(tenantKey, &tenantKeys{})
	return v.(*tenantKeys)
}

func lookup(ks *keySet, version uint64, kid string) (*Entry, bool) {
	if ks == nil || ks.version != version {
		return nil, false
	}
	e, ok := ks.entries[kid]
	return e, ok
}

// Resolve devuelve la clave kid del tenant. Hit: sin lock. Miss: lock del tenant,
// re-chequeo y, si sigue faltando, refill completo del mapa.
func (c *Cache) Resolve(ctx context.Context, tenantKey, kid string) (*Entry, error) {
	tk := tenant.Normalize(tenantKey)
	snap, ok := c.configs.Snapshot(tk)
	if !ok {
		return nil, fmt.Errorf("%w: %w: tenant %s has no idp config", authn.ErrKeyNotFound, authn.ErrTenantMisconfigured, tk)
	}

	keys := c.keysFor(tk)
	if e, ok := lookup(keys.cur.Load(), snap.Version, kid); ok {
		return e, nil
	}

	keys.mu.Lock()
	defer keys.mu.Unlock()

	// un push pudo haber llegado mientras esperábamos: se recarga siempre desde el
	// snapshot vigente, nunca desde el leído antes del lock
	if latest, ok := c.configs.Snapshot(tk); ok && latest.Version > snap.Version {
		snap = latest
	}
	// otro caller pudo haber recargado mientras esperábamos
	if e, ok := lookup(keys.cur.Load(), snap.Version, kid); ok {
		return e, nil
	}

	ks, err := c.refill(ctx, snap)
	if err != nil {
		return nil, fmt.Errorf("%w: tenant %s kid %s: %w", authn.ErrKeyNotFound, tk, kid, err)
	}
	if cur := keys.cur.Load(); cur == nil || ks.version >= cur.version {
		keys.cur.Store(ks)
	}

	if e, ok := ks.entries[kid]; ok {
		return e, nil
	}
	return nil, fmt.Errorf("%w: tenant %s kid %s", authn.ErrKeyNotFound, tk, kid)
}

// refill arma un mapa nuevo desde todas las fuentes del snapshot. Nunca mergea con el
// mapa anterior.
func (c *Cache) refill(ctx context.Context, snap *idpconfig.Snapshot) (*keySet, error) {
	log := logger.From(ctx).With(
		logger.Layer("jwk"),
		logger.Op("refill"),
		logger.TenantID(snap.Tenant),
	)

	ks := &keySet{version: snap.Version, entries: make(map[string]*Entry)}
	var errs []error
	for source, clients := range snap.BySource() {
		ld, err := c.loaders.For(snap.Tenant, source)
		if err == nil {
			err = c.loadInto(ctx, ld, clients, ks)
		}
		if err != nil {
			metrics.JwksRefillTotal.WithLabelValues(string(source), metrics.OutcomeFailed).Inc()
			log.Warn("jwks refill failed", logger.Source(string(source)), logger.Err(err))
			errs = append(errs, err)
			continue
		}
		metrics.JwksRefillTotal.WithLabelValues(string(source), metrics.OutcomeOK).Inc()
	}
	// con fuentes mixtas alcanza con que una responda
	if len(ks.entries) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	log.Info("jwks refilled", logger.Count(len(ks.entries)), zap.Uint64("version", snap.Version))
	return ks, nil
}

func (c *Cache) loadInto(ctx context.Context, ld Loader, clients []idpconfig.ClientConfig, ks *keySet) error {
	payloads, err := ld.FetchRawKeySets(ctx, clients)
	if err != nil {
		return err
	}
	for _, raw := range payloads {
		entries, err := ParseSet(ctx, raw)
		if err != nil {
			logger.From(ctx).Warn("jwks payload dropped", logger.Layer("jwk"), logger.Err(err))
			continue
		}
		for _, e := range entries {
			e.Version = ks.version
			ks.entries[e.KeyID] = e
		}
	}
	return nil
}
