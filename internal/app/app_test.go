package app

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/uaagate/internal/config"
	"github.com/dropDatabas3/uaagate/internal/jwk"
	"github.com/dropDatabas3/uaagate/internal/security/password"
	"github.com/dropDatabas3/uaagate/internal/tenant"
	"github.com/dropDatabas3/uaagate/internal/users"
)

type gateway struct {
	app     *App
	srv     *httptest.Server
	key     *rsa.PrivateKey
	fetches *atomic.Int32
}

func writeFile(t *testing.T, root, rel, body string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
}

func jwksOf(key *rsa.PrivateKey) []byte {
	b, _ := json.Marshal(map[string]any{"keys": []map[string]string{{
		"kty": "RSA", "kid": "kid-1", "alg": "RS256", "use": "sig",
		"n": base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
		"e": base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
	}}})
	return b
}

func newGateway(t *testing.T) *gateway {
	t.Helper()
	return newGatewayWith(t, func(idpURL string) string {
		return `
idp:
  jwksSourceType: remote
  clients:
    - clientId: acme
      issuer: https://idp.example/
      jwksEndpoint: ` + idpURL + `/jwks
`
	}, nil)
}

func newGatewayWith(t *testing.T, idpDoc func(idpURL string) string, mut func(*config.Config, *Deps)) *gateway {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	fetches := &atomic.Int32{}
	idp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fetches.Add(1)
		_, _ = w.Write(jwksOf(key))
	}))
	t.Cleanup(idp.Close)

	root := t.TempDir()
	writeFile(t, root, "config/tenants/XM/uaa/idp-config-public.yml", idpDoc(idp.URL))
	writeFile(t, root, "config/tenants/XM/uaa/uaa.yml", `
security:
  defaultUserRole: ROLE-USER
`)
	writeFile(t, root, "config/tenants/XM/other/ignored.yml", "irrelevant: true\n")

	cfg := config.Default()
	cfg.TenantConfig.Root = root
	cfg.Token.Issuer = "http://uaa.test"

	d := Deps{Users: users.NewMemoryStore()}
	if mut != nil {
		mut(cfg, &d)
	}
	a, err := New(context.Background(), cfg, d)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	require.NoError(t, a.LoadTenantConfig(context.Background()))
	require.Equal(t, []string{"XM"}, a.IdpConfigs.Tenants())

	srv := httptest.NewServer(a.Handler)
	t.Cleanup(srv.Close)
	return &gateway{app: a, srv: srv, key: key, fetches: fetches}
}

func (g *gateway) sign(t *testing.T, claims jwtv5.MapClaims) string {
	t.Helper()
	tok := jwtv5.NewWithClaims(jwtv5.SigningMethodRS256, claims)
	tok.Header["kid"] = "kid-1"
	s, err := tok.SignedString(g.key)
	require.NoError(t, err)
	return s
}

func (g *gateway) token(t *testing.T, form url.Values) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, g.srv.URL+"/oauth/token", strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Tenant", "xm")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body := map[string]any{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func idpClaims(iss string) jwtv5.MapClaims {
	return jwtv5.MapClaims{
		"iss":   iss,
		"aud":   "acme",
		"email": "Alice@Corp.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
}

func TestGateway_IdpExchangeProvisionsOnce(t *testing.T) {
	g := newGateway(t)

	snap, ok := g.app.IdpConfigs.Snapshot("XM")
	require.True(t, ok)
	assert.Equal(t, 1, snap.Len())

	status, body := g.token(t, url.Values{"grant_type": {"idp_token"}, "token": {g.sign(t, idpClaims("https://idp.example/"))}})
	require.Equal(t, http.StatusOK, status, body)
	claims, err := g.app.Issuer.Parse(body["access_token"].(string))
	require.NoError(t, err)
	assert.Equal(t, "XM", claims["tenant"])
	assert.Equal(t, "ROLE-USER", claims["role"])
	assert.Equal(t, "alice@corp.com", claims["user_name"])

	status, body = g.token(t, url.Values{"grant_type": {"idp_token"}, "token": {g.sign(t, idpClaims("https://idp.example/"))}})
	require.Equal(t, http.StatusOK, status, body)
	again, err := g.app.Issuer.Parse(body["access_token"].(string))
	require.NoError(t, err)
	assert.Equal(t, claims["sub"], again["sub"], "second exchange must reuse the user")
	assert.Equal(t, int32(1), g.fetches.Load(), "keys are cached after the first refill")
}

func TestGateway_EvilIssuerRejected(t *testing.T) {
	g := newGateway(t)

	status, body := g.token(t, url.Values{"grant_type": {"idp_token"}, "token": {g.sign(t, idpClaims("https://evil.example/"))}})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "authentication failed", body["error_description"])

	ctx := tenant.WithTenant(context.Background(), "XM")
	_, err := g.app.Users.FindByLogin(ctx, "alice@corp.com")
	assert.ErrorIs(t, err, users.ErrNotFound)
}

func TestGateway_PasswordFallsBackToLocalUsers(t *testing.T) {
	g := newGateway(t)

	hash, err := password.Hash(password.Default, "s3cret")
	require.NoError(t, err)
	ctx := tenant.WithTenant(context.Background(), "XM")
	_, err = g.app.Users.Create(ctx, &users.LocalUser{
		RoleKey:      "ROLE-ADMIN",
		Logins:       []users.Login{{Type: users.LoginEmail, Value: "bob@corp.com"}},
		PasswordHash: hash,
		Activated:    true,
	})
	require.NoError(t, err)

	// corp.com no tiene directorio LDAP configurado: va al provider local
	status, body := g.token(t, url.Values{"grant_type": {"password"}, "username": {"bob@corp.com"}, "password": {"s3cret"}})
	require.Equal(t, http.StatusOK, status, body)

	status, body = g.token(t, url.Values{"grant_type": {"password"}, "username": {"bob@corp.com"}, "password": {"nope"}})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "invalid_grant", body["error"])
}

func TestGateway_StorageKeysAndRedisLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })

	g := newGatewayWith(t, func(string) string {
		return `
idp:
  jwksSourceType: storage
  clients:
    - clientId: acme
      issuer: https://idp.example/
`
	}, func(cfg *config.Config, d *Deps) {
		cfg.JWKS.Storage.Driver = "redis"
		cfg.RateLimit.Enabled = true
		cfg.RateLimit.Driver = "redis"
		cfg.RateLimit.Max = 1
		d.Redis = rc
	})

	store := &jwk.RedisStore{Client: rc, Prefix: g.app.Config.JWKS.Storage.Prefix}
	require.NoError(t, store.Put(context.Background(), "XM", "acme", jwksOf(g.key)))

	status, body := g.token(t, url.Values{"grant_type": {"idp_token"}, "token": {g.sign(t, idpClaims("https://idp.example/"))}})
	require.Equal(t, http.StatusOK, status, body)
	assert.Zero(t, g.fetches.Load(), "storage clients never hit the network")

	status, body = g.token(t, url.Values{"grant_type": {"idp_token"}, "token": {g.sign(t, idpClaims("https://idp.example/"))}})
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "too_many_requests", body["error"])
}

func TestNew_RejectsUnknownDrivers(t *testing.T) {
	cfg := config.Default()
	cfg.JWKS.Storage.Driver = "s3"
	_, err := New(context.Background(), cfg, Deps{Users: users.NewMemoryStore()})
	require.Error(t, err)

	cfg = config.Default()
	cfg.Storage.Driver = "mongo"
	_, err = New(context.Background(), cfg, Deps{})
	require.Error(t, err)
}
