package tenantprops

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/dropDatabas3/uaagate/internal/authn"
	"github.com/dropDatabas3/uaagate/internal/observability/logger"
	"github.com/dropDatabas3/uaagate/internal/tenant"
	"github.com/dropDatabas3/uaagate/internal/tenantconfig"
)

// ChangeFunc se notifica cada vez que cambian (o se borran) las propiedades de un tenant.
type ChangeFunc func(ctx context.Context, tenant string)

// Store guarda las propiedades vigentes por tenant.
type Store struct {
	pattern *tenantconfig.Pattern

	props sync.Map // tenant -> *Properties

	mu   sync.Mutex
	subs []ChangeFunc
}

func NewStore(pattern *tenantconfig.Pattern) *Store {
	return &Store{pattern: pattern}
}

// Subscribe registra un callback de cambios.
func (s *Store) Subscribe(fn ChangeFunc) {
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}

// Get devuelve las propiedades del tenant.
func (s *Store) Get(tenantKey string) (*Properties, bool) {
	v, ok := s.props.Load(tenant.Normalize(tenantKey))
	if !ok {
		return nil, false
	}
	return v.(*Properties), true
}

// DefaultRoleFor es la política de rol por defecto: el rol de security.defaultUserRole
// o ErrTenantMisconfigured si el tenant no lo define.
func (s *Store) DefaultRoleFor(_ context.Context, tenantKey string) (string, error) {
	p, ok := s.Get(tenantKey)
	if !ok {
		return "", fmt.Errorf("%w: tenant %s has no properties", authn.ErrTenantMisconfigured, tenant.Normalize(tenantKey))
	}
	role := strings.TrimSpace(p.Security.DefaultUserRole)
	if role == "" {
		return "", fmt.Errorf("%w: tenant %s has no security.defaultUserRole", authn.ErrTenantMisconfigured, tenant.Normalize(tenantKey))
	}
	return role, nil
}

// LdapConfig devuelve el directorio configurado para domain (case-insensitive).
func (s *Store) LdapConfig(tenantKey, domain string) (LdapConfig, bool) {
	p, ok := s.Get(tenantKey)
	if !ok {
		return LdapConfig{}, false
	}
	d := strings.ToLower(strings.TrimSpace(domain))
	for _, c := range p.LDAP {
		if c.Domain == d {
			return c, true
		}
	}
	return LdapConfig{}, false
}

// Apply reemplaza las propiedades del tenant. Payload en blanco => se borra el tenant.
// Un payload inválido deja las propiedades previas.
func (s *Store) Apply(ctx context.Context, tenantKey string, raw []byte) error {
	tk := tenant.Normalize(tenantKey)
	log := logger.From(ctx).With(logger.Layer("tenantprops"), logger.TenantID(tk))

	if len(strings.TrimSpace(string(raw))) == 0 {
		s.props.Delete(tk)
		log.Info("tenant properties removed")
		s.notify(ctx, tk)
		return nil
	}

	var p Properties
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("tenantprops: tenant %s: %w", tk, err)
	}
	valid := p.LDAP[:0]
	for _, c := range p.LDAP {
		c.applyDefaults()
		if c.Domain == "" || c.URL == "" {
			log.Warn("ldap entry dropped: domain and url required", logger.Domain(c.Domain))
			continue
		}
		valid = append(valid, c)
	}
	p.LDAP = valid

	s.props.Store(tk, &p)
	log.Info("tenant properties updated", logger.Count(len(p.LDAP)))
	s.notify(ctx, tk)
	return nil
}

func (s *Store) notify(ctx context.Context, tk string) {
	s.mu.Lock()
	subs := make([]ChangeFunc, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()
	for _, fn := range subs {
		fn(ctx, tk)
	}
}

// ---- tenantconfig.Listener ----

func (s *Store) Name() string { return "props" }

func (s *Store) IsListening(path string) bool {
	_, ok := s.pattern.Match(path)
	return ok
}

func (s *Store) OnRefresh(ctx context.Context, path string, raw []byte) error {
	vars, ok := s.pattern.Match(path)
	if !ok {
		return nil
	}
	return s.Apply(ctx, vars["tenant"], raw)
}
