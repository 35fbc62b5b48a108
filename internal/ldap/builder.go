package ldap

import (
	"context"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/uaagate/internal/authn"
	"github.com/dropDatabas3/uaagate/internal/observability/logger"
	"github.com/dropDatabas3/uaagate/internal/tenant"
	"github.com/dropDatabas3/uaagate/internal/tenantprops"
	"github.com/dropDatabas3/uaagate/internal/users"
)

// ConfigSource expone los directorios y el rol por defecto de cada tenant.
type ConfigSource interface {
	RolePolicy
	LdapConfig(tenant, domain string) (tenantprops.LdapConfig, bool)
}

// Builder construye (y cachea con TTL) un Provider por (tenant, dominio).
type Builder struct {
	configs     ConfigSource
	dial        Dialer
	users       users.Store
	provisioner *users.Provisioner
	separator   string

	cache *gocache.Cache
	sf    singleflight.Group
}

type BuilderDeps struct {
	Configs   ConfigSource
	Dial      Dialer
	Users     users.Store
	Separator string
	TTL       time.Duration
}

func NewBuilder(d BuilderDeps) *Builder {
	ttl := d.TTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	sep := d.Separator
	if sep == "" {
		sep = "@"
	}
	return &Builder{
		configs:     d.Configs,
		dial:        d.Dial,
		users:       d.Users,
		provisioner: &users.Provisioner{Store: d.Users},
		separator:   sep,
		cache:       gocache.New(ttl, time.Minute),
	}
}

func cacheKey(tenantKey, domain string) string {
	return tenantKey + "|" + strings.ToLower(domain)
}

// Build devuelve el provider del dominio para el tenant de ctx, o false si el tenant no
// tiene un directorio para ese dominio.
func (b *Builder) Build(ctx context.Context, domain string) (authn.Provider, bool) {
	tk, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, false
	}
	key := cacheKey(tk, domain)
	if v, ok := b.cache.Get(key); ok {
		return v.(*Provider), true
	}

	v, _, _ := b.sf.Do(key, func() (interface{}, error) {
		if v, ok := b.cache.Get(key); ok {
			return v, nil
		}
		cfg, ok := b.configs.LdapConfig(tk, domain)
		if !ok {
			return (*Provider)(nil), nil
		}
		p := &Provider{
			Tenant:      tk,
			Config:      cfg,
			Separator:   b.separator,
			Dial:        b.dial,
			Users:       b.users,
			Provisioner: b.provisioner,
			Roles:       b.configs,
		}
		b.cache.SetDefault(key, p)
		logger.From(ctx).Debug("ldap provider built",
			logger.Layer("ldap"), logger.TenantID(tk), logger.Domain(cfg.Domain))
		return p, nil
	})
	p, _ := v.(*Provider)
	if p == nil {
		return nil, false
	}
	return p, true
}

// Invalidate descarta los providers cacheados del tenant. Firma compatible con
// tenantprops.ChangeFunc.
func (b *Builder) Invalidate(_ context.Context, tenantKey string) {
	prefix := tenant.Normalize(tenantKey) + "|"
	for k := range b.cache.Items() {
		if strings.HasPrefix(k, prefix) {
			b.cache.Delete(k)
		}
	}
}
