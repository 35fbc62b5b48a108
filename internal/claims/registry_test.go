package claims

import (
	"context"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/uaagate/internal/authn"
	"github.com/dropDatabas3/uaagate/internal/idpconfig"
	"github.com/dropDatabas3/uaagate/internal/tenantconfig"
)

func applyConfig(t *testing.T, reg *Registry, tenantKey, doc string) *idpconfig.Snapshot {
	t.Helper()
	s := idpconfig.NewStore(tenantconfig.MustPattern("/t/{tenant}.yml"), reg.Rebuild)
	snap, err := s.Accept(context.Background(), tenantKey, []byte(doc))
	require.NoError(t, err)
	return snap
}

const acmeDoc = `
idp:
  clients:
    - clientId: acme
      issuer: https://idp.example/
      jwksEndpoint: https://idp.example/jwks
`

func TestRegistry_VerifiersFor(t *testing.T) {
	reg := NewRegistry()
	_, _, err := reg.VerifiersFor("XM", "acme")
	require.ErrorIs(t, err, authn.ErrVerifiersNotFound)

	snap := applyConfig(t, reg, "XM", acmeDoc)

	vs, version, err := reg.VerifiersFor("xm", "acme")
	require.NoError(t, err)
	require.Len(t, vs, 2)
	assert.Equal(t, snap.Version, version)
	assert.Equal(t, "issuer", vs[0].Name())
	assert.Equal(t, "audience", vs[1].Name())

	set, ok := reg.Current("XM")
	require.True(t, ok)
	assert.Equal(t, snap.Version, set.Version)

	_, _, err = reg.VerifiersFor("XM", "other")
	require.ErrorIs(t, err, authn.ErrVerifiersNotFound)
}

func TestRegistry_IgnoresOlderSnapshot(t *testing.T) {
	reg := NewRegistry()
	snap := applyConfig(t, reg, "XM", acmeDoc)

	newer := Build(snap)
	newer.Version = snap.Version + 10
	reg.sets.Store("XM", newer)
	reg.Rebuild(context.Background(), snap)

	set, _ := reg.Current("XM")
	assert.Equal(t, snap.Version+10, set.Version)
}

func TestVerifyAll(t *testing.T) {
	vs := []Verifier{IssuerVerifier{Issuer: "https://idp.example/"}, AudienceVerifier{Audience: "acme"}}

	tests := []struct {
		name   string
		claims jwt.MapClaims
		ok     bool
	}{
		{"match", jwt.MapClaims{"iss": "https://idp.example/", "aud": "acme"}, true},
		{"aud array", jwt.MapClaims{"iss": "https://idp.example/", "aud": []any{"x", "acme"}}, true},
		{"evil issuer", jwt.MapClaims{"iss": "https://evil.example/", "aud": "acme"}, false},
		{"issuer prefix", jwt.MapClaims{"iss": "https://idp.example", "aud": "acme"}, false},
		{"audience mismatch", jwt.MapClaims{"iss": "https://idp.example/", "aud": "other"}, false},
		{"no claims", jwt.MapClaims{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifyAll(vs, tt.claims)
			if tt.ok {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, authn.ErrTokenInvalid)
		})
	}

	require.ErrorIs(t, VerifyAll(nil, jwt.MapClaims{}), authn.ErrVerifiersNotFound)
}
