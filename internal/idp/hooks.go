package idp

import (
	"context"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dropDatabas3/uaagate/internal/users"
)

// RolePolicy resuelve el rol por defecto del tenant (ErrTenantMisconfigured si falta).
type RolePolicy interface {
	DefaultRoleFor(ctx context.Context, tenant string) (string, error)
}

// Attributes son los nombres de claims usados para identidad y nombre.
type Attributes struct {
	Identity  string
	FirstName string
	LastName  string
}

// DefaultAttributes: email / given_name / family_name.
var DefaultAttributes = Attributes{Identity: "email", FirstName: "given_name", LastName: "family_name"}

// Hooks son los puntos de extensión del intercambio. Cualquier campo nil usa el default;
// el intercambio es correcto usando sólo los defaults.
type Hooks struct {
	// ExtractIdentity devuelve el valor estable de identidad ("" => token inválido).
	ExtractIdentity func(ctx context.Context, tenant string, c jwt.MapClaims) string
	// ValidateToken corre después de firma/issuer/audience; sólo puede rechazar.
	ValidateToken func(ctx context.Context, tenant string, c jwt.MapClaims) error
	// ConvertClaims arma el borrador del usuario a provisionar.
	ConvertClaims func(ctx context.Context, tenant string, c jwt.MapClaims, identity string) *users.LocalUser
	// MapRole resuelve el rol de un usuario nuevo.
	MapRole func(ctx context.Context, tenant string, c jwt.MapClaims) (string, error)
	// MapAuthorities transforma las authorities otorgadas.
	MapAuthorities func(ctx context.Context, tenant string, authorities []string) []string
}

func (h Hooks) withDefaults(attrs Attributes, roles RolePolicy) Hooks {
	if h.ExtractIdentity == nil {
		h.ExtractIdentity = func(_ context.Context, _ string, c jwt.MapClaims) string {
			return claimString(c, attrs.Identity)
		}
	}
	if h.ValidateToken == nil {
		h.ValidateToken = func(context.Context, string, jwt.MapClaims) error { return nil }
	}
	if h.ConvertClaims == nil {
		h.ConvertClaims = func(_ context.Context, _ string, c jwt.MapClaims, identity string) *users.LocalUser {
			return &users.LocalUser{
				FirstName: claimString(c, attrs.FirstName),
				LastName:  claimString(c, attrs.LastName),
				Logins:    []users.Login{{Type: users.LoginEmail, Value: identity}},
			}
		}
	}
	if h.MapRole == nil {
		h.MapRole = func(ctx context.Context, tenant string, _ jwt.MapClaims) (string, error) {
			return roles.DefaultRoleFor(ctx, tenant)
		}
	}
	if h.MapAuthorities == nil {
		h.MapAuthorities = func(_ context.Context, _ string, a []string) []string { return a }
	}
	return h
}

func claimString(c jwt.MapClaims, name string) string {
	if name == "" {
		return ""
	}
	s, _ := c[name].(string)
	return strings.TrimSpace(s)
}

// ClientID es azp si viene, si no el primer valor de aud.
func ClientID(c jwt.MapClaims) string {
	if azp := claimString(c, "azp"); azp != "" {
		return azp
	}
	aud, err := c.GetAudience()
	if err != nil || len(aud) == 0 {
		return ""
	}
	return aud[0]
}
