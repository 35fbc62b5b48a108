package logger

import (
	"go.uber.org/zap"
)

// ---- request ----

func RequestID(v string) zap.Field { return zap.String("request_id", v) }
func Method(v string) zap.Field    { return zap.String("method", v) }
func Path(v string) zap.Field      { return zap.String("path", v) }
func Status(v int) zap.Field       { return zap.Int("status", v) }
func Bytes(v int) zap.Field        { return zap.Int("bytes", v) }
func DurationMs(v int64) zap.Field { return zap.Int64("duration_ms", v) }

// ---- dominio ----

// TenantID crea un campo para el tenant key.
func TenantID(v string) zap.Field { return zap.String("tenant_id", v) }

// ClientID crea un campo para el client id del IDP.
func ClientID(v string) zap.Field { return zap.String("client_id", v) }

// KeyID crea un campo para el "kid" de una JWK.
func KeyID(v string) zap.Field { return zap.String("kid", v) }

// Domain crea un campo para el dominio LDAP resuelto.
func Domain(v string) zap.Field { return zap.String("domain", v) }

// Principal crea un campo para el username/login (usar con cuidado en prod).
func Principal(v string) zap.Field { return zap.String("principal", v) }

// Role crea un campo para el role key otorgado.
func Role(v string) zap.Field { return zap.String("role", v) }

// Source crea un campo para el tipo de fuente JWKS.
func Source(v string) zap.Field { return zap.String("source", v) }

// ConfigPath crea un campo para el path de una config de tenant.
func ConfigPath(v string) zap.Field { return zap.String("config_path", v) }

// ---- sistema ----

func Component(v string) zap.Field { return zap.String("component", v) }
func Op(v string) zap.Field        { return zap.String("op", v) }
func Layer(v string) zap.Field     { return zap.String("layer", v) }
func Err(err error) zap.Field      { return zap.Error(err) }
func Count(v int) zap.Field        { return zap.Int("count", v) }

func String(key, v string) zap.Field           { return zap.String(key, v) }
func Strings(key string, v []string) zap.Field { return zap.Strings(key, v) }
func Bool(key string, v bool) zap.Field        { return zap.Bool(key, v) }
