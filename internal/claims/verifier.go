// Package claims construye y aplica los verificadores de issuer/audience por tenant y client.
package claims

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dropDatabas3/uaagate/internal/authn"
)

// Verifier chequea un claim de un token ya verificado en firma.
type Verifier interface {
	Name() string
	Verify(c jwt.MapClaims) error
}

// IssuerVerifier exige iss == Issuer (comparación exacta).
type IssuerVerifier struct {
	Issuer string
}

func (v IssuerVerifier) Name() string { return "issuer" }

func (v IssuerVerifier) Verify(c jwt.MapClaims) error {
	iss, err := c.GetIssuer()
	if err != nil {
		return fmt.Errorf("%w: iss: %w", authn.ErrTokenInvalid, err)
	}
	if iss == "" || iss != v.Issuer {
		return fmt.Errorf("%w: issuer %q not accepted", authn.ErrTokenInvalid, iss)
	}
	return nil
}

// AudienceVerifier exige que Audience figure en aud.
type AudienceVerifier struct {
	Audience string
}

func (v AudienceVerifier) Name() string { return "audience" }

func (v AudienceVerifier) Verify(c jwt.MapClaims) error {
	aud, err := c.GetAudience()
	if err != nil {
		return fmt.Errorf("%w: aud: %w", authn.ErrTokenInvalid, err)
	}
	for _, a := range aud {
		if a == v.Audience {
			return nil
		}
	}
	return fmt.Errorf("%w: audience %v does not contain %q", authn.ErrTokenInvalid, []string(aud), v.Audience)
}

// VerifyAll aplica los verificadores en orden; el primero que falla corta.
// Una lista vacía nunca se trata como permitir todo.
func VerifyAll(vs []Verifier, c jwt.MapClaims) error {
	if len(vs) == 0 {
		return fmt.Errorf("%w: %w", authn.ErrTokenInvalid, authn.ErrVerifiersNotFound)
	}
	for _, v := range vs {
		if err := v.Verify(c); err != nil {
			return err
		}
	}
	return nil
}
