package idpconfig

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/dropDatabas3/uaagate/internal/observability/logger"
	"github.com/dropDatabas3/uaagate/internal/tenant"
	"github.com/dropDatabas3/uaagate/internal/tenantconfig"
)

// ApplyFunc se invoca dentro de la sección crítica de escritura, con el snapshot
// recién publicado (p.ej. para reconstruir los claim verifiers del tenant).
type ApplyFunc func(ctx context.Context, snap *Snapshot)

// Store guarda la config IDP activa por tenant. Lecturas sin lock sobre el snapshot
// actual; cada push aceptado reemplaza el set completo de clients del tenant.
type Store struct {
	pattern *tenantconfig.Pattern

	version atomic.Uint64
	active  sync.Map // tenant -> *Snapshot

	mu      sync.Mutex // escritores
	onApply []ApplyFunc
}

// NewStore crea el store; pattern debe capturar la variable {tenant}.
func NewStore(pattern *tenantconfig.Pattern, onApply ...ApplyFunc) *Store {
	return &Store{
		pattern: pattern,
		onApply: onApply,
	}
}

// OnApply registra un hook adicional.
func (s *Store) OnApply(fn ApplyFunc) {
	s.mu.Lock()
	s.onApply = append(s.onApply, fn)
	s.mu.Unlock()
}

// Snapshot devuelve la config activa del tenant.
func (s *Store) Snapshot(tenantKey string) (*Snapshot, bool) {
	v, ok := s.active.Load(tenant.Normalize(tenantKey))
	if !ok {
		return nil, false
	}
	return v.(*Snapshot), true
}

// Tenants lista, ordenados, los tenants con config activa.
func (s *Store) Tenants() []string {
	var out []string
	s.active.Range(func(k, _ any) bool {
		out = append(out, k.(string))
		return true
	})
	sort.Strings(out)
	return out
}

// Accept aplica un push de configuración. Un push sin entradas válidas se descarta y
// deja la config previa intacta (devuelve un error que envuelve tenantconfig.ErrIgnored).
func (s *Store) Accept(ctx context.Context, tenantKey string, raw []byte) (*Snapshot, error) {
	tk := tenant.Normalize(tenantKey)
	if tk == "" {
		return nil, fmt.Errorf("idpconfig: empty tenant")
	}
	log := logger.From(ctx).With(
		logger.Layer("idpconfig"),
		logger.Op("Accept"),
		logger.TenantID(tk),
	)

	parsed, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	for _, r := range parsed.Rejected {
		log.Warn("idp client entry dropped",
			zap.Int("index", r.Index),
			logger.ClientID(r.ClientID),
			logger.String("reason", r.Reason),
		)
	}

	staged := parsed.Clients
	if len(staged) == 0 {
		return nil, fmt.Errorf("%w: tenant %s: no valid idp client entries", tenantconfig.ErrIgnored, tk)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// re-push idéntico: se conserva el snapshot (y su versión) para no forzar refills
	if cur, ok := s.Snapshot(tk); ok && cur.SourceType == parsed.SourceType && sameClients(cur, staged) {
		log.Debug("idp config unchanged", zap.Uint64("version", cur.Version))
		return cur, nil
	}

	snap := &Snapshot{
		Tenant:     tk,
		Version:    s.version.Add(1),
		SourceType: parsed.SourceType,
		clients:    make(map[string]ClientConfig, len(staged)),
	}
	for _, c := range staged {
		snap.clients[c.ClientID] = c
	}
	s.active.Store(tk, snap)

	for _, fn := range s.onApply {
		fn(ctx, snap)
	}
	log.Info("idp config applied",
		logger.Count(snap.Len()),
		zap.Uint64("version", snap.Version),
	)
	return snap, nil
}

func sameClients(snap *Snapshot, staged []ClientConfig) bool {
	next := make(map[string]ClientConfig, len(staged))
	for _, c := range staged {
		next[c.ClientID] = c
	}
	if len(next) != len(snap.clients) {
		return false
	}
	for id, c := range next {
		if prev, ok := snap.clients[id]; !ok || prev != c {
			return false
		}
	}
	return true
}

// ---- tenantconfig.Listener ----

func (s *Store) Name() string { return "idp" }

func (s *Store) IsListening(path string) bool {
	_, ok := s.pattern.Match(path)
	return ok
}

func (s *Store) OnRefresh(ctx context.Context, path string, raw []byte) error {
	vars, ok := s.pattern.Match(path)
	if !ok {
		return nil
	}
	_, err := s.Accept(ctx, vars["tenant"], raw)
	return err
}
