package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env      string `yaml:"env"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"app"`

	Server struct {
		Addr         string `yaml:"addr"`
		TenantHeader string `yaml:"tenant_header"`
	} `yaml:"server"`

	Auth struct {
		// Separador entre username y dominio LDAP ("alice@corp.com").
		DomainSeparator string `yaml:"domain_separator"`
	} `yaml:"auth"`

	IDP struct {
		IdentityAttribute  string        `yaml:"identity_attribute"`
		FirstNameAttribute string        `yaml:"first_name_attribute"`
		LastNameAttribute  string        `yaml:"last_name_attribute"`
		FetchTimeout       time.Duration `yaml:"fetch_timeout"`
		Leeway             time.Duration `yaml:"leeway"`
	} `yaml:"idp"`

	TenantConfig struct {
		Root              string `yaml:"root"`
		IdpPathPattern    string `yaml:"idp_path_pattern"`
		PropertiesPattern string `yaml:"properties_path_pattern"`
		Watch             bool   `yaml:"watch"`
	} `yaml:"tenant_config"`

	// Conexión compartida por jwks.storage=redis y rate_limit.driver=redis.
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	JWKS struct {
		Storage struct {
			Driver string `yaml:"driver"` // dir | redis
			Prefix string `yaml:"prefix"`
		} `yaml:"storage"`
	} `yaml:"jwks"`

	RateLimit struct {
		Enabled bool          `yaml:"enabled"`
		Driver  string        `yaml:"driver"` // memory | redis
		Max     int           `yaml:"max"`
		Window  time.Duration `yaml:"window"`
		Prefix  string        `yaml:"prefix"`
	} `yaml:"rate_limit"`

	Storage struct {
		Driver string `yaml:"driver"` // memory | postgres
		DSN    string `yaml:"dsn"`
	} `yaml:"storage"`

	LDAP struct {
		ProviderTTL time.Duration `yaml:"provider_ttl"`
		DialTimeout time.Duration `yaml:"dial_timeout"`
	} `yaml:"ldap"`

	Token struct {
		Issuer      string        `yaml:"issuer"`
		TTL         time.Duration `yaml:"access_ttl"`
		// base64(32 bytes) seed Ed25519; vacío => clave efímera por proceso.
		SigningSeed string        `yaml:"signing_seed"`
	} `yaml:"token"`
}

// Default devuelve la config con todos los defaults aplicados (sin archivo).
func Default() *Config {
	var c Config
	c.applyDefaults()
	return &c
}

// FromEnv arma la config sólo con defaults y overrides UAA_* (sin YAML).
func FromEnv() (*Config, error) {
	var c Config
	c.applyEnvOverrides()
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	c.applyEnvOverrides()
	c.applyDefaults()

	// Normalizar root (si relativa) respecto al directorio del YAML
	if p := strings.TrimSpace(c.TenantConfig.Root); p != "" && !filepath.IsAbs(p) {
		c.TenantConfig.Root = filepath.Clean(filepath.Join(filepath.Dir(path), p))
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.TenantHeader == "" {
		c.Server.TenantHeader = "X-Tenant"
	}
	if c.Auth.DomainSeparator == "" {
		c.Auth.DomainSeparator = "@"
	}
	if c.IDP.IdentityAttribute == "" {
		c.IDP.IdentityAttribute = "email"
	}
	if c.IDP.FirstNameAttribute == "" {
		c.IDP.FirstNameAttribute = "given_name"
	}
	if c.IDP.LastNameAttribute == "" {
		c.IDP.LastNameAttribute = "family_name"
	}
	if c.IDP.FetchTimeout == 0 {
		c.IDP.FetchTimeout = 5 * time.Second
	}
	if c.IDP.Leeway == 0 {
		c.IDP.Leeway = 30 * time.Second
	}
	if c.TenantConfig.Root == "" {
		c.TenantConfig.Root = "./data/uaa"
	}
	if c.TenantConfig.IdpPathPattern == "" {
		c.TenantConfig.IdpPathPattern = "/config/tenants/{tenant}/uaa/idp-config-public.yml"
	}
	if c.TenantConfig.PropertiesPattern == "" {
		c.TenantConfig.PropertiesPattern = "/config/tenants/{tenant}/uaa/uaa.yml"
	}
	if c.JWKS.Storage.Driver == "" {
		c.JWKS.Storage.Driver = "dir"
	}
	if c.JWKS.Storage.Prefix == "" {
		c.JWKS.Storage.Prefix = "uaa:jwks"
	}
	if c.RateLimit.Driver == "" {
		c.RateLimit.Driver = "memory"
	}
	if c.RateLimit.Max == 0 {
		c.RateLimit.Max = 10
	}
	if c.RateLimit.Window == 0 {
		c.RateLimit.Window = time.Minute
	}
	if c.RateLimit.Prefix == "" {
		c.RateLimit.Prefix = "uaa:rl:"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.LDAP.ProviderTTL == 0 {
		c.LDAP.ProviderTTL = 10 * time.Minute
	}
	if c.LDAP.DialTimeout == 0 {
		c.LDAP.DialTimeout = 5 * time.Second
	}
	if c.Token.Issuer == "" {
		c.Token.Issuer = "http://localhost:8080"
	}
	if c.Token.TTL == 0 {
		c.Token.TTL = 15 * time.Minute
	}
}

// Validate chequea combinaciones que no tienen sentido en runtime.
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case "memory":
	case "postgres":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			errs = append(errs, errors.New("storage.dsn required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q not supported", c.Storage.Driver))
	}
	switch c.JWKS.Storage.Driver {
	case "dir":
	case "redis":
		if strings.TrimSpace(c.Redis.Addr) == "" {
			errs = append(errs, errors.New("redis.addr required for jwks.storage.driver=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("jwks.storage.driver %q not supported", c.JWKS.Storage.Driver))
	}
	if c.RateLimit.Enabled {
		switch c.RateLimit.Driver {
		case "memory":
		case "redis":
			if strings.TrimSpace(c.Redis.Addr) == "" {
				errs = append(errs, errors.New("redis.addr required for rate_limit.driver=redis"))
			}
		default:
			errs = append(errs, fmt.Errorf("rate_limit.driver %q not supported", c.RateLimit.Driver))
		}
		if c.RateLimit.Max < 0 || c.RateLimit.Window < time.Second {
			errs = append(errs, errors.New("rate_limit: max must be >= 0 and window >= 1s"))
		}
	}
	if strings.ContainsAny(c.Auth.DomainSeparator, " \t") {
		errs = append(errs, errors.New("auth.domain_separator must not contain whitespace"))
	}
	if !strings.Contains(c.TenantConfig.IdpPathPattern, "{tenant}") {
		errs = append(errs, errors.New("tenant_config.idp_path_pattern must contain {tenant}"))
	}
	if !strings.Contains(c.TenantConfig.PropertiesPattern, "{tenant}") {
		errs = append(errs, errors.New("tenant_config.properties_path_pattern must contain {tenant}"))
	}
	return errors.Join(errs...)
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}

func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}

func getEnvDur(key string) (time.Duration, bool) {
	if s, ok := getEnvStr(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return d, true
		}
	}
	return 0, false
}

// applyEnvOverrides: pisa el YAML con variables UAA_*.
func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("UAA_APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("UAA_LOG_LEVEL"); ok {
		c.App.LogLevel = v
	}
	if v, ok := getEnvStr("UAA_SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvStr("UAA_TENANT_CONFIG_ROOT"); ok {
		c.TenantConfig.Root = v
	}
	if v, ok := getEnvBool("UAA_TENANT_CONFIG_WATCH"); ok {
		c.TenantConfig.Watch = v
	}
	if v, ok := getEnvDur("UAA_IDP_FETCH_TIMEOUT"); ok {
		c.IDP.FetchTimeout = v
	}
	if v, ok := getEnvStr("UAA_IDP_IDENTITY_ATTRIBUTE"); ok {
		c.IDP.IdentityAttribute = v
	}
	if v, ok := getEnvStr("UAA_STORAGE_DRIVER"); ok {
		c.Storage.Driver = v
	}
	if v, ok := getEnvStr("UAA_STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvStr("UAA_JWKS_STORAGE_DRIVER"); ok {
		c.JWKS.Storage.Driver = v
	}
	if v, ok := getEnvStr("UAA_REDIS_ADDR"); ok {
		c.Redis.Addr = v
	}
	if v, ok := getEnvStr("UAA_REDIS_PASSWORD"); ok {
		c.Redis.Password = v
	}
	if v, ok := getEnvInt("UAA_REDIS_DB"); ok {
		c.Redis.DB = v
	}
	if v, ok := getEnvBool("UAA_RATE_LIMIT_ENABLED"); ok {
		c.RateLimit.Enabled = v
	}
	if v, ok := getEnvStr("UAA_RATE_LIMIT_DRIVER"); ok {
		c.RateLimit.Driver = v
	}
	if v, ok := getEnvStr("UAA_TOKEN_ISSUER"); ok {
		c.Token.Issuer = v
	}
	if v, ok := getEnvDur("UAA_TOKEN_ACCESS_TTL"); ok {
		c.Token.TTL = v
	}
	if v, ok := getEnvStr("UAA_TOKEN_SIGNING_SEED"); ok {
		c.Token.SigningSeed = v
	}
}
