// Package jwk resuelve las claves públicas de los IDP externos por tenant: carga lazy,
// refill completo por tenant bajo lock y lookups sin lock sobre el snapshot vigente.
package jwk

import (
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dropDatabas3/uaagate/internal/authn"
)

// Entry es una clave RSA usable para verificar firmas.
type Entry struct {
	KeyID     string
	KeyType   string
	Algorithm string // vacío si la JWK no declara "alg"
	PublicKey *rsa.PublicKey
	// Version del snapshot de config con el que se cargó la clave.
	Version   uint64
}

var defaultRSAMethods = []string{"RS256", "RS384", "RS512"}

// Methods devuelve los algoritmos aceptados para esta clave.
func (e *Entry) Methods() []string {
	if e.Algorithm != "" {
		return []string{e.Algorithm}
	}
	return defaultRSAMethods
}

// Verify chequea la firma del token con esta clave y valida exp/nbf con leeway.
func (e *Entry) Verify(raw string, leeway time.Duration) (jwt.MapClaims, error) {
	p := jwt.NewParser(
		jwt.WithValidMethods(e.Methods()),
		jwt.WithLeeway(leeway),
	)
	claims := jwt.MapClaims{}
	_, err := p.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return e.PublicKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: kid %s: %w", authn.ErrTokenInvalid, e.KeyID, err)
	}
	return claims, nil
}
