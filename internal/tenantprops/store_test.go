package tenantprops

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/uaagate/internal/authn"
	"github.com/dropDatabas3/uaagate/internal/tenantconfig"
)

const xmProps = `
security:
  defaultUserRole: ROLE-USER
ldap:
  - domain: Corp.com
    url: ldap://ldap.corp.com:389
    rootDn: dc=corp,dc=com
    userDnPattern: uid={0},ou=people
    groupSearchBase: ou=groups
    roleMapping:
      cn=admins,ou=groups,dc=corp,dc=com: ROLE-ADMIN
  - domain: broken.com
`

func newStore() *Store {
	return NewStore(tenantconfig.MustPattern("/config/tenants/{tenant}/uaa/uaa.yml"))
}

func TestStore_DefaultRoleFor(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	_, err := s.DefaultRoleFor(ctx, "XM")
	require.ErrorIs(t, err, authn.ErrTenantMisconfigured)

	require.NoError(t, s.Apply(ctx, "xm", []byte(xmProps)))
	role, err := s.DefaultRoleFor(ctx, "XM")
	require.NoError(t, err)
	assert.Equal(t, "ROLE-USER", role)

	require.NoError(t, s.Apply(ctx, "AB", []byte("ldap: []\n")))
	_, err = s.DefaultRoleFor(ctx, "AB")
	require.ErrorIs(t, err, authn.ErrTenantMisconfigured)
}

func TestStore_LdapConfig(t *testing.T) {
	s := newStore()
	require.NoError(t, s.Apply(context.Background(), "XM", []byte(xmProps)))

	c, ok := s.LdapConfig("XM", "CORP.COM")
	require.True(t, ok)
	assert.Equal(t, "uid=alice,ou=people,dc=corp,dc=com", c.UserDN("alice"))
	assert.Equal(t, "ou=groups,dc=corp,dc=com", c.GroupBase())
	assert.Equal(t, "(member={0})", c.GroupSearchFilter)

	_, ok = s.LdapConfig("XM", "broken.com")
	assert.False(t, ok, "entry without url is dropped")
	_, ok = s.LdapConfig("AB", "corp.com")
	assert.False(t, ok)
}

func TestStore_RemoveAndBadPayload(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	var changed []string
	s.Subscribe(func(_ context.Context, tenant string) { changed = append(changed, tenant) })

	require.NoError(t, s.Apply(ctx, "XM", []byte(xmProps)))
	require.Error(t, s.Apply(ctx, "XM", []byte("security: [")))
	_, ok := s.Get("XM")
	assert.True(t, ok, "bad payload keeps previous")

	d := tenantconfig.NewDispatcher(s)
	assert.Equal(t, 1, d.Push(ctx, "/config/tenants/XM/uaa/uaa.yml", []byte("  \n")))
	_, ok = s.Get("XM")
	assert.False(t, ok)
	assert.Equal(t, []string{"XM", "XM"}, changed)
}
