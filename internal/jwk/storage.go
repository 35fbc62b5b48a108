package jwk

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/uaagate/internal/idpconfig"
	"github.com/dropDatabas3/uaagate/internal/observability/logger"
	"github.com/dropDatabas3/uaagate/internal/util/atomicwrite"
)

// ErrKeySetNotFound: el store no tiene un key set para (tenant, key).
var ErrKeySetNotFound = errors.New("key set not found")

// KeySetStore guarda JWKS crudos por (tenant, storageKey).
type KeySetStore interface {
	Get(ctx context.Context, tenant, key string) ([]byte, error)
	Put(ctx context.Context, tenant, key string, raw []byte) error
}

// StorageLoader lee los key sets de los clients "storage" de un tenant.
type StorageLoader struct {
	Tenant string
	Store  KeySetStore
}

// NewStorageBuilder devuelve un LoaderBuilder sobre store.
func NewStorageBuilder(store KeySetStore) LoaderBuilder {
	return func(tenant string) (Loader, error) {
		if store == nil {
			return nil, errors.New("jwk: key set store not configured")
		}
		return &StorageLoader{Tenant: tenant, Store: store}, nil
	}
}

// FetchRawKeySets saltea keys inexistentes (con warning) y falla ante cualquier otro
// error o si no quedó ningún payload.
func (l *StorageLoader) FetchRawKeySets(ctx context.Context, clients []idpconfig.ClientConfig) ([][]byte, error) {
	log := logger.From(ctx).With(logger.Layer("jwk"), logger.Component("storage_loader"), logger.TenantID(l.Tenant))

	var out [][]byte
	seen := make(map[string]bool, len(clients))
	for _, c := range clients {
		if seen[c.StorageKey] {
			continue
		}
		seen[c.StorageKey] = true

		b, err := l.Store.Get(ctx, l.Tenant, c.StorageKey)
		if errors.Is(err, ErrKeySetNotFound) {
			log.Warn("key set missing", logger.ClientID(c.ClientID), logger.String("storage_key", c.StorageKey))
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("jwk: tenant %s: %w", l.Tenant, ErrKeySetNotFound)
	}
	return out, nil
}

// ---- dir ----

// DirStore: <root>/config/tenants/{TENANT}/uaa/jwks/{key}.json
type DirStore struct {
	Root string
}

func (s *DirStore) path(tenant, key string) (string, error) {
	if tenant == "" || key == "" || strings.ContainsAny(tenant+key, `/\`) || strings.Contains(tenant+key, "..") {
		return "", fmt.Errorf("jwk: invalid key set name %q/%q", tenant, key)
	}
	return filepath.Join(s.Root, "config", "tenants", tenant, "uaa", "jwks", key+".json"), nil
}

func (s *DirStore) Get(_ context.Context, tenant, key string) ([]byte, error) {
	p, err := s.path(tenant, key)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrKeySetNotFound, p)
	}
	return b, err
}

func (s *DirStore) Put(_ context.Context, tenant, key string, raw []byte) error {
	p, err := s.path(tenant, key)
	if err != nil {
		return err
	}
	return atomicwrite.WriteFile(p, raw, 0o644)
}

// ---- redis ----

// RedisStore: key "<prefix>:{TENANT}:{key}".
type RedisStore struct {
	Client redis.UniversalClient
	Prefix string
}

func (s *RedisStore) key(tenant, key string) string {
	return s.Prefix + ":" + tenant + ":" + key
}

func (s *RedisStore) Get(ctx context.Context, tenant, key string) ([]byte, error) {
	b, err := s.Client.Get(ctx, s.key(tenant, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrKeySetNotFound, s.key(tenant, key))
	}
	return b, err
}

func (s *RedisStore) Put(ctx context.Context, tenant, key string, raw []byte) error {
	return s.Client.Set(ctx, s.key(tenant, key), raw, 0).Err()
}
