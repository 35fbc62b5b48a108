package ldap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goldap "github.com/go-ldap/ldap/v3"

	"github.com/dropDatabas3/uaagate/internal/authn"
	"github.com/dropDatabas3/uaagate/internal/observability/logger"
	"github.com/dropDatabas3/uaagate/internal/tenantprops"
	"github.com/dropDatabas3/uaagate/internal/users"
)

// RolePolicy resuelve el rol por defecto del tenant.
type RolePolicy interface {
	DefaultRoleFor(ctx context.Context, tenant string) (string, error)
}

// Provider autentica contra un directorio concreto (tenant, dominio).
type Provider struct {
	Tenant    string
	Config    tenantprops.LdapConfig
	Separator string

	Dial        Dialer
	Users       users.Store
	Provisioner *users.Provisioner
	Roles       RolePolicy
}

type entry struct {
	dn        string
	firstName string
	lastName  string
	groups    []string
}

func (p *Provider) localPart(principal string) string {
	if i := strings.LastIndex(principal, p.Separator); i > 0 {
		return principal[:i]
	}
	return principal
}

func (p *Provider) Authenticate(ctx context.Context, principal, credential string) (*authn.Result, error) {
	log := logger.From(ctx).With(
		logger.Layer("ldap"),
		logger.TenantID(p.Tenant),
		logger.Domain(p.Config.Domain),
	)
	// bind con password vacía es un "unauthenticated bind" que muchos servidores aceptan
	if credential == "" {
		return nil, fmt.Errorf("%w: empty credential", authn.ErrAuthenticationFailed)
	}

	e, err := p.lookup(ctx, p.localPart(principal), credential)
	if err != nil {
		if !errors.Is(err, authn.ErrAuthenticationFailed) {
			log.Error("ldap directory error", logger.Err(err))
			err = fmt.Errorf("%w: %w", authn.ErrAuthenticationFailed, err)
		}
		return nil, err
	}

	role, err := p.mapRole(ctx, e.groups)
	if err != nil {
		return nil, err
	}

	u, err := p.ensureUser(ctx, users.NormalizeLogin(principal), e, role)
	if err != nil {
		return nil, err
	}

	return authn.NewResult(authn.Principal{
		Tenant:    p.Tenant,
		UserKey:   u.Key,
		Login:     u.PrimaryLogin(),
		FirstName: u.FirstName,
		LastName:  u.LastName,
		RoleKey:   u.RoleKey,
	}, []string{u.RoleKey}, map[string]string{"ldap_dn": e.dn}).WithCredentials(credential), nil
}

func (p *Provider) lookup(ctx context.Context, local, credential string) (*entry, error) {
	conn, err := p.Dial(ctx, p.Config)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", p.Config.URL, err)
	}
	defer conn.Close()

	dn := p.Config.UserDN(goldap.EscapeDN(local))
	if err := conn.Bind(dn, credential); err != nil {
		if goldap.IsErrorWithCode(err, goldap.LDAPResultInvalidCredentials) {
			return nil, fmt.Errorf("%w: ldap bind rejected", authn.ErrAuthenticationFailed)
		}
		return nil, fmt.Errorf("bind: %w", err)
	}

	e := &entry{dn: dn}
	res, err := conn.Search(goldap.NewSearchRequest(
		dn, goldap.ScopeBaseObject, goldap.NeverDerefAliases, 1, 0, false,
		"(objectClass=*)",
		[]string{p.Config.FirstNameAttribute, p.Config.LastNameAttribute},
		nil,
	))
	if err != nil {
		return nil, fmt.Errorf("read user entry: %w", err)
	}
	if len(res.Entries) > 0 {
		e.firstName = res.Entries[0].GetAttributeValue(p.Config.FirstNameAttribute)
		e.lastName = res.Entries[0].GetAttributeValue(p.Config.LastNameAttribute)
	}

	if base := p.Config.GroupBase(); base != "" {
		filter := strings.ReplaceAll(p.Config.GroupSearchFilter, "{0}", goldap.EscapeFilter(dn))
		res, err := conn.Search(goldap.NewSearchRequest(
			base, goldap.ScopeWholeSubtree, goldap.NeverDerefAliases, 0, 0, false,
			filter, []string{"dn"}, nil,
		))
		if err != nil {
			return nil, fmt.Errorf("search groups: %w", err)
		}
		for _, g := range res.Entries {
			e.groups = append(e.groups, g.DN)
		}
	}
	return e, nil
}

// mapRole: el último grupo mapeado gana; si no hay, el default del directorio y si no
// el default del tenant.
func (p *Provider) mapRole(ctx context.Context, groups []string) (string, error) {
	mapping := make(map[string]string, len(p.Config.RoleMapping))
	for g, r := range p.Config.RoleMapping {
		mapping[strings.ToLower(g)] = r
	}
	role := ""
	for _, g := range groups {
		if r, ok := mapping[strings.ToLower(g)]; ok {
			role = r
		}
	}
	if role == "" {
		role = p.Config.DefaultRole
	}
	if role == "" {
		return p.Roles.DefaultRoleFor(ctx, p.Tenant)
	}
	return role, nil
}

func (p *Provider) ensureUser(ctx context.Context, login string, e *entry, role string) (*users.LocalUser, error) {
	u, err := p.Users.FindByLogin(ctx, login)
	switch {
	case err == nil:
		if u.RoleKey != role {
			u.RoleKey = role
			if err := p.Users.Save(ctx, u); err != nil {
				return nil, fmt.Errorf("%w: %w", authn.ErrUserProvisioningFailed, err)
			}
		}
		return u, nil
	case errors.Is(err, users.ErrNotFound):
		return p.Provisioner.Provision(ctx, "ldap", &users.LocalUser{
			FirstName: e.firstName,
			LastName:  e.lastName,
			RoleKey:   role,
			Logins:    []users.Login{{Type: users.LoginEmail, Value: login}},
		})
	default:
		return nil, err
	}
}
