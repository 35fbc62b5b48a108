package router

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/uaagate/internal/authn"
)

func named(name string) authn.Provider {
	return authn.ProviderFunc(func(_ context.Context, principal, _ string) (*authn.Result, error) {
		return authn.NewResult(authn.Principal{Login: principal}, []string{name}, nil), nil
	})
}

type domains map[string]authn.Provider

func (d domains) Build(_ context.Context, domain string) (authn.Provider, bool) {
	p, ok := d[domain]
	return p, ok
}

func TestSplit(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"alice", []string{"alice"}},
		{"alice@corp.com", []string{"alice", "corp.com"}},
		{"alice@", []string{"alice"}},
		{"alice@@", []string{"alice"}},
		{"a@b@corp.com", []string{"a", "b", "corp.com"}},
		{"@corp.com", []string{"", "corp.com"}},
		{"", []string{}},
	}
	for _, tt := range tests {
		got := Split(tt.in, "@")
		if len(tt.want) == 0 {
			assert.Empty(t, got, tt.in)
			continue
		}
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestRouter_Selection(t *testing.T) {
	r := New(named("DEFAULT"), domains{"corp.com": named("LDAP-CORP")}, "@")
	ctx := context.Background()

	tests := []struct {
		principal string
		want      string
	}{
		{"alice", "DEFAULT"},
		{"alice@corp.com", "LDAP-CORP"},
		{"alice@other.com", "DEFAULT"},
		{"alice@", "DEFAULT"},
		{"a@b@corp.com", "LDAP-CORP"},
		{"alice@corp.com@other.com", "DEFAULT"},
	}
	for _, tt := range tests {
		res, err := r.Authenticate(ctx, tt.principal, "pw")
		require.NoError(t, err, tt.principal)
		assert.Equal(t, tt.want, res.Role(), tt.principal)
		assert.Equal(t, tt.principal, res.Principal().Login, "principal passed through unchanged")
	}
}

func TestRouter_PropagatesFailure(t *testing.T) {
	boom := authn.ProviderFunc(func(context.Context, string, string) (*authn.Result, error) {
		return nil, fmt.Errorf("%w: bad password", authn.ErrAuthenticationFailed)
	})
	r := New(named("DEFAULT"), domains{"corp.com": boom}, "@")

	_, err := r.Authenticate(context.Background(), "alice@corp.com", "x")
	require.True(t, errors.Is(err, authn.ErrAuthenticationFailed))
}

func TestRouter_CustomSeparator(t *testing.T) {
	r := New(named("DEFAULT"), domains{"corp": named("LDAP")}, "\\")
	res, err := r.Authenticate(context.Background(), `alice\corp`, "pw")
	require.NoError(t, err)
	assert.Equal(t, "LDAP", res.Role())
}
