package jwk

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/uaagate/internal/authn"
	"github.com/dropDatabas3/uaagate/internal/idpconfig"
	"github.com/dropDatabas3/uaagate/internal/tenantconfig"
)

type countingLoader struct {
	fetches atomic.Int32
	delay   time.Duration
	err     error

	mu      sync.Mutex
	payload []byte
}

func (l *countingLoader) set(b []byte) {
	l.mu.Lock()
	l.payload = b
	l.mu.Unlock()
}

func (l *countingLoader) FetchRawKeySets(ctx context.Context, _ []idpconfig.ClientConfig) ([][]byte, error) {
	l.fetches.Add(1)
	if l.delay > 0 {
		time.Sleep(l.delay)
	}
	if l.err != nil {
		return nil, l.err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return [][]byte{l.payload}, nil
}

const remoteDoc = `
idp:
  clients:
    - clientId: acme
      issuer: https://idp.example/
      jwksEndpoint: https://idp.example/jwks
`

func setup(t *testing.T, ld Loader) (*idpconfig.Store, *Cache, *atomic.Int32) {
	t.Helper()
	store := idpconfig.NewStore(tenantconfig.MustPattern("/t/{tenant}.yml"))
	_, err := store.Accept(context.Background(), "XM", []byte(remoteDoc))
	require.NoError(t, err)

	var builds atomic.Int32
	loaders := NewLoaders(map[idpconfig.SourceType]LoaderBuilder{
		idpconfig.SourceRemote: func(string) (Loader, error) {
			builds.Add(1)
			return ld, nil
		},
	})
	return store, NewCache(store, loaders), &builds
}

func TestCache_ConcurrentMissesCoalesce(t *testing.T) {
	key := newRSAKey(t)
	ld := &countingLoader{delay: 50 * time.Millisecond}
	ld.set(jwksJSON(t, rsaJWK("kid-1", &key.PublicKey)))
	_, cache, builds := setup(t, ld)

	const n = 32
	results := make([]*Entry, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = cache.Resolve(context.Background(), "XM", "kid-1")
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), ld.fetches.Load())
	assert.Equal(t, int32(1), builds.Load())
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, results[0], results[i])
	}

	// hit sin refill
	_, err := cache.Resolve(context.Background(), "xm", "kid-1")
	require.NoError(t, err)
	assert.Equal(t, int32(1), ld.fetches.Load())
}

func TestCache_UnknownKidAfterRefill(t *testing.T) {
	key := newRSAKey(t)
	ld := &countingLoader{}
	ld.set(jwksJSON(t, rsaJWK("kid-1", &key.PublicKey)))
	_, cache, _ := setup(t, ld)

	_, err := cache.Resolve(context.Background(), "XM", "kid-9")
	require.ErrorIs(t, err, authn.ErrKeyNotFound)
	assert.Equal(t, int32(1), ld.fetches.Load())
}

func TestCache_RefillReplacesWholeMap(t *testing.T) {
	k1, k2 := newRSAKey(t), newRSAKey(t)
	ld := &countingLoader{}
	ld.set(jwksJSON(t, rsaJWK("kid-1", &k1.PublicKey)))
	_, cache, _ := setup(t, ld)
	ctx := context.Background()

	_, err := cache.Resolve(ctx, "XM", "kid-1")
	require.NoError(t, err)

	// rotación: kid-1 desaparece, aparece kid-2
	ld.set(jwksJSON(t, rsaJWK("kid-2", &k2.PublicKey)))
	_, err = cache.Resolve(ctx, "XM", "kid-2")
	require.NoError(t, err)

	_, err = cache.Resolve(ctx, "XM", "kid-1")
	require.ErrorIs(t, err, authn.ErrKeyNotFound)
}

func TestCache_ConfigPushForcesLazyRefill(t *testing.T) {
	key := newRSAKey(t)
	ld := &countingLoader{}
	ld.set(jwksJSON(t, rsaJWK("kid-1", &key.PublicKey)))
	store, cache, builds := setup(t, ld)
	ctx := context.Background()

	_, err := cache.Resolve(ctx, "XM", "kid-1")
	require.NoError(t, err)
	require.Equal(t, int32(1), ld.fetches.Load())

	_, err = store.Accept(ctx, "XM", []byte(remoteDoc))
	require.NoError(t, err)
	_, err = cache.Resolve(ctx, "XM", "kid-1")
	require.NoError(t, err)
	assert.Equal(t, int32(1), ld.fetches.Load(), "identical push keeps the version")

	_, err = store.Accept(ctx, "XM", []byte(strings.Replace(remoteDoc, "https://idp.example/\n", "https://idp2.example/\n", 1)))
	require.NoError(t, err)
	assert.Equal(t, int32(1), ld.fetches.Load(), "push does not refill eagerly")

	_, err = cache.Resolve(ctx, "XM", "kid-1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), ld.fetches.Load())
	assert.Equal(t, int32(1), builds.Load(), "loader instance reused")
}

func TestCache_LoaderFailure(t *testing.T) {
	ld := &countingLoader{err: errors.New("connection refused")}
	_, cache, _ := setup(t, ld)

	_, err := cache.Resolve(context.Background(), "XM", "kid-1")
	require.ErrorIs(t, err, authn.ErrKeyNotFound)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestCache_NoConfig(t *testing.T) {
	_, cache, _ := setup(t, &countingLoader{})
	_, err := cache.Resolve(context.Background(), "OTHER", "kid-1")
	require.ErrorIs(t, err, authn.ErrKeyNotFound)
	require.ErrorIs(t, err, authn.ErrTenantMisconfigured)
}

// clientLoader devuelve el JWKS de cada client pedido.
type clientLoader struct {
	fetches  atomic.Int32
	byClient map[string][]byte
}

func (l *clientLoader) FetchRawKeySets(_ context.Context, clients []idpconfig.ClientConfig) ([][]byte, error) {
	l.fetches.Add(1)
	var out [][]byte
	for _, c := range clients {
		if b, ok := l.byClient[c.ClientID]; ok {
			out = append(out, b)
		}
	}
	return out, nil
}

// pinnedSource entrega una vez el snapshot fijado, como un caller que lo leyó antes de
// un push; después delega en el store real.
type pinnedSource struct {
	SnapshotSource
	pinned atomic.Pointer[idpconfig.Snapshot]
}

func (s *pinnedSource) Snapshot(tk string) (*idpconfig.Snapshot, bool) {
	if p := s.pinned.Swap(nil); p != nil {
		return p, true
	}
	return s.SnapshotSource.Snapshot(tk)
}

const betaDoc = `
idp:
  clients:
    - clientId: beta
      issuer: https://beta.example/
      jwksEndpoint: https://beta.example/jwks
`

func TestCache_StaleSnapshotDoesNotRegressKeys(t *testing.T) {
	k1, k2 := newRSAKey(t), newRSAKey(t)
	ld := &clientLoader{byClient: map[string][]byte{
		"acme": jwksJSON(t, rsaJWK("kid-1", &k1.PublicKey)),
		"beta": jwksJSON(t, rsaJWK("kid-2", &k2.PublicKey)),
	}}
	store, _, _ := setup(t, ld)
	ctx := context.Background()

	v1, ok := store.Snapshot("XM")
	require.True(t, ok)
	v2, err := store.Accept(ctx, "XM", []byte(betaDoc))
	require.NoError(t, err)
	require.Greater(t, v2.Version, v1.Version)

	src := &pinnedSource{SnapshotSource: store}
	cache := NewCache(src, NewLoaders(map[idpconfig.SourceType]LoaderBuilder{
		idpconfig.SourceRemote: func(string) (Loader, error) { return ld, nil },
	}))

	e, err := cache.Resolve(ctx, "XM", "kid-2")
	require.NoError(t, err)
	assert.Equal(t, v2.Version, e.Version)
	require.Equal(t, int32(1), ld.fetches.Load())

	// caller que todavía tiene v1: no puede ver la clave del client removido
	src.pinned.Store(v1)
	_, err = cache.Resolve(ctx, "XM", "kid-1")
	require.ErrorIs(t, err, authn.ErrKeyNotFound)
	assert.Equal(t, v2.Version, cache.keysFor("XM").cur.Load().version)

	fetches := ld.fetches.Load()
	e, err = cache.Resolve(ctx, "XM", "kid-2")
	require.NoError(t, err)
	assert.Equal(t, v2.Version, e.Version)
	assert.Equal(t, fetches, ld.fetches.Load(), "published map still serves the active version")
}
