package jwt

import (
	"errors"
	"fmt"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/dropDatabas3/uaagate/internal/authn"
)

var ErrNotAuthenticated = errors.New("result is not authenticated")

// Issuer firma access tokens para resultados autenticados.
type Issuer struct {
	Iss       string        // "iss"
	Keys      *KeySet       // clave activa
	AccessTTL time.Duration // TTL de access (ej: 15m)
}

func NewIssuer(iss string, ks *KeySet, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Issuer{Iss: iss, Keys: ks, AccessTTL: ttl}
}

// IssueAccess emite el access token de res: sub = user key, más tenant, role y authorities.
func (i *Issuer) IssueAccess(res *authn.Result) (string, time.Time, error) {
	if res == nil || !res.IsAuthenticated() {
		return "", time.Time{}, ErrNotAuthenticated
	}
	p := res.Principal()
	now := time.Now().UTC()
	exp := now.Add(i.AccessTTL)

	claims := jwtv5.MapClaims{
		"iss":         i.Iss,
		"sub":         p.UserKey,
		"tenant":      p.Tenant,
		"role":        res.Role(),
		"authorities": res.Authorities(),
		"iat":         now.Unix(),
		"nbf":         now.Unix(),
		"exp":         exp.Unix(),
	}
	if p.Login != "" {
		claims["user_name"] = p.Login
	}
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodEdDSA, claims)
	tk.Header["kid"] = i.Keys.KID
	tk.Header["typ"] = "JWT"

	signed, err := tk.SignedString(i.Keys.Priv)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("jwt: sign: %w", err)
	}
	return signed, exp, nil
}

// Parse valida un access token propio (firma EdDSA, iss, exp/nbf con 30s de tolerancia).
func (i *Issuer) Parse(token string) (jwtv5.MapClaims, error) {
	claims := jwtv5.MapClaims{}
	_, err := jwtv5.ParseWithClaims(token, claims, func(t *jwtv5.Token) (any, error) {
		if kid, _ := t.Header["kid"].(string); kid != i.Keys.KID {
			return nil, fmt.Errorf("unknown kid %q", kid)
		}
		return i.Keys.Pub, nil
	},
		jwtv5.WithValidMethods([]string{"EdDSA"}),
		jwtv5.WithIssuer(i.Iss),
		jwtv5.WithLeeway(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", authn.ErrTokenInvalid, err)
	}
	return claims, nil
}
