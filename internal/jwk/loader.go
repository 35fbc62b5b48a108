package jwk

import (
	"context"
	"fmt"
	"sync"

	"github.com/dropDatabas3/uaagate/internal/idpconfig"
)

// Loader trae los payloads JWKS crudos de los clients de un tenant.
type Loader interface {
	FetchRawKeySets(ctx context.Context, clients []idpconfig.ClientConfig) ([][]byte, error)
}

// LoaderBuilder construye el Loader de un tenant para un tipo de fuente.
type LoaderBuilder func(tenant string) (Loader, error)

type loaderKey struct {
	tenant string
	source idpconfig.SourceType
}

// Loaders cachea una instancia de Loader por (tenant, tipo de fuente) para no
// reconstruir clientes HTTP/credenciales en cada miss.
type Loaders struct {
	builders map[idpconfig.SourceType]LoaderBuilder

	mu      sync.Mutex
	loaders map[loaderKey]Loader
}

func NewLoaders(builders map[idpconfig.SourceType]LoaderBuilder) *Loaders {
	return &Loaders{
		builders: builders,
		loaders:  make(map[loaderKey]Loader),
	}
}

// For devuelve (o construye) el Loader del par (tenant, source).
func (l *Loaders) For(tenant string, source idpconfig.SourceType) (Loader, error) {
	k := loaderKey{tenant: tenant, source: source}

	l.mu.Lock()
	defer l.mu.Unlock()
	if ld, ok := l.loaders[k]; ok {
		return ld, nil
	}
	b, ok := l.builders[source]
	if !ok {
		return nil, fmt.Errorf("jwk: no loader for source %q", source)
	}
	ld, err := b(tenant)
	if err != nil {
		return nil, fmt.Errorf("jwk: build %s loader for %s: %w", source, tenant, err)
	}
	l.loaders[k] = ld
	return ld, nil
}
