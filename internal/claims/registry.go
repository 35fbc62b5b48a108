package claims

import (
	"context"
	"fmt"
	"sync"

	"github.com/dropDatabas3/uaagate/internal/authn"
	"github.com/dropDatabas3/uaagate/internal/idpconfig"
	"github.com/dropDatabas3/uaagate/internal/observability/logger"
	"github.com/dropDatabas3/uaagate/internal/tenant"
)

// Set son los verificadores de un tenant, construidos desde un único snapshot de config.
type Set struct {
	Version  uint64
	byClient map[string][]Verifier
}

// For devuelve una copia de la lista de verificadores del client.
func (s *Set) For(clientID string) ([]Verifier, bool) {
	vs, ok := s.byClient[clientID]
	if !ok {
		return nil, false
	}
	out := make([]Verifier, len(vs))
	copy(out, vs)
	return out, true
}

// Build arma el set de verificadores para un snapshot: issuer y luego audience por client.
func Build(snap *idpconfig.Snapshot) *Set {
	s := &Set{Version: snap.Version, byClient: make(map[string][]Verifier, snap.Len())}
	for _, c := range snap.Clients() {
		s.byClient[c.ClientID] = []Verifier{
			IssuerVerifier{Issuer: c.Issuer},
			AudienceVerifier{Audience: c.ClientID},
		}
	}
	return s
}

// Registry publica el set vigente por tenant. Lecturas sin lock; cada rebuild reemplaza
// el mapa completo del tenant.
type Registry struct {
	mu   sync.Mutex
	sets sync.Map // tenant -> *Set
}

func NewRegistry() *Registry { return &Registry{} }

// Rebuild reconstruye el set del tenant del snapshot. Un snapshot más viejo que el
// publicado se ignora. Firma compatible con idpconfig.ApplyFunc.
func (r *Registry) Rebuild(ctx context.Context, snap *idpconfig.Snapshot) {
	set := Build(snap)

	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sets.Load(snap.Tenant); ok && cur.(*Set).Version > set.Version {
		return
	}
	r.sets.Store(snap.Tenant, set)

	logger.From(ctx).Debug("claim verifiers rebuilt",
		logger.Layer("claims"),
		logger.TenantID(snap.Tenant),
		logger.Count(len(set.byClient)),
	)
}

// Current devuelve el set publicado del tenant.
func (r *Registry) Current(tenantKey string) (*Set, bool) {
	v, ok := r.sets.Load(tenant.Normalize(tenantKey))
	if !ok {
		return nil, false
	}
	return v.(*Set), true
}

// VerifiersFor devuelve la lista ordenada (issuer, audience) para tenant+client junto con
// la versión del snapshot del que sale, o ErrVerifiersNotFound si el tenant no tiene set
// construido o el client no figura.
func (r *Registry) VerifiersFor(tenantKey, clientID string) ([]Verifier, uint64, error) {
	set, ok := r.Current(tenantKey)
	if !ok {
		return nil, 0, fmt.Errorf("%w: tenant %s", authn.ErrVerifiersNotFound, tenant.Normalize(tenantKey))
	}
	vs, ok := set.For(clientID)
	if !ok {
		return nil, 0, fmt.Errorf("%w: tenant %s client %q", authn.ErrVerifiersNotFound, tenant.Normalize(tenantKey), clientID)
	}
	return vs, set.Version, nil
}
