package authn

import "errors"

var (
	// ErrAuthenticationFailed indica credenciales inválidas (recuperable, sin retry).
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrTokenInvalid indica un token IDP malformado, sin firma válida o con claims que no coinciden.
	ErrTokenInvalid = errors.New("token invalid")

	// ErrTenantMisconfigured indica que falta configuración del tenant (default role, IDP config).
	ErrTenantMisconfigured = errors.New("tenant misconfigured")

	// ErrKeyNotFound indica que el kid no existe aun después de recargar el JWKS del tenant.
	ErrKeyNotFound = errors.New("jwk not found")

	// ErrVerifiersNotFound indica que no hay claim verifiers construidos para el tenant/client.
	ErrVerifiersNotFound = errors.New("claim verifiers not found")

	// ErrUserProvisioningFailed indica colisión de login o rechazo de la persistencia.
	ErrUserProvisioningFailed = errors.New("user provisioning failed")

	// ErrTenantNotProvided indica que el contexto no trae tenant.
	ErrTenantNotProvided = errors.New("tenant not provided")

	// ErrInvalidState indica un intento de mutar un resultado de autenticación inmutable.
	ErrInvalidState = errors.New("invalid state")
)

// PublicMessage is what a caller outside the trust boundary gets to see for err.
// Credential and token problems collapse into one signal so they cannot be used for probing.
func PublicMessage(err error) string {
	if IsAuthFailure(err) {
		return ErrAuthenticationFailed.Error()
	}
	return "server error"
}

// IsAuthFailure reports whether err belongs to the credential/token family.
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrAuthenticationFailed) ||
		errors.Is(err, ErrTokenInvalid) ||
		errors.Is(err, ErrKeyNotFound) ||
		errors.Is(err, ErrVerifiersNotFound)
}
