// Package app arma el gateway a partir de la config: stores de tenant, caches de
// claves/verifiers, providers de credenciales y el router HTTP.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dropDatabas3/uaagate/internal/claims"
	"github.com/dropDatabas3/uaagate/internal/config"
	httpapi "github.com/dropDatabas3/uaagate/internal/http"
	"github.com/dropDatabas3/uaagate/internal/idp"
	"github.com/dropDatabas3/uaagate/internal/idpconfig"
	"github.com/dropDatabas3/uaagate/internal/jwk"
	"github.com/dropDatabas3/uaagate/internal/jwt"
	"github.com/dropDatabas3/uaagate/internal/ldap"
	"github.com/dropDatabas3/uaagate/internal/localauth"
	"github.com/dropDatabas3/uaagate/internal/metrics"
	"github.com/dropDatabas3/uaagate/internal/observability/logger"
	"github.com/dropDatabas3/uaagate/internal/rate"
	"github.com/dropDatabas3/uaagate/internal/router"
	"github.com/dropDatabas3/uaagate/internal/tenantconfig"
	"github.com/dropDatabas3/uaagate/internal/tenantprops"
	"github.com/dropDatabas3/uaagate/internal/users"
	"github.com/dropDatabas3/uaagate/internal/users/pg"
)

// Deps permite reemplazar colaboradores externos (tests, embebidos). Todo es opcional.
type Deps struct {
	Registry *prometheus.Registry
	Users    users.Store
	Dial     ldap.Dialer
	KeySets  jwk.KeySetStore
	Redis    redis.UniversalClient
}

// App es el gateway cableado.
type App struct {
	Config     *config.Config
	Handler    http.Handler
	Dispatcher *tenantconfig.Dispatcher
	IdpConfigs *idpconfig.Store
	Props      *tenantprops.Store
	Claims     *claims.Registry
	Keys       *jwk.Cache
	Users      users.Store
	Router     *router.Router
	Exchanger  *idp.Exchanger
	Issuer     *jwt.Issuer

	watcher *tenantconfig.Watcher
	redis   redis.UniversalClient
	closers []func()
}

// New construye el grafo de dependencias. No toca la red salvo para abrir postgres.
func New(ctx context.Context, cfg *config.Config, d Deps) (*App, error) {
	log := logger.With(logger.Layer("app"), logger.Op("New"))
	a := &App{Config: cfg}

	a.redis = d.Redis
	reg := d.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	if err := metrics.Register(reg); err != nil {
		return nil, fmt.Errorf("app: metrics: %w", err)
	}

	// config de tenant: patterns -> stores -> dispatcher
	idpPattern, err := tenantconfig.CompilePattern(cfg.TenantConfig.IdpPathPattern)
	if err != nil {
		return nil, fmt.Errorf("app: idp path pattern: %w", err)
	}
	propsPattern, err := tenantconfig.CompilePattern(cfg.TenantConfig.PropertiesPattern)
	if err != nil {
		return nil, fmt.Errorf("app: properties path pattern: %w", err)
	}
	a.Claims = claims.NewRegistry()
	a.IdpConfigs = idpconfig.NewStore(idpPattern, a.Claims.Rebuild)
	a.Props = tenantprops.NewStore(propsPattern)
	a.Dispatcher = tenantconfig.NewDispatcher(a.IdpConfigs, a.Props)

	// claves IDP: remote + storage, refill lazy
	keySets := d.KeySets
	if keySets == nil {
		if keySets, err = a.keySetStore(cfg); err != nil {
			return nil, err
		}
	}
	a.Keys = jwk.NewCache(a.IdpConfigs, jwk.NewLoaders(map[idpconfig.SourceType]jwk.LoaderBuilder{
		idpconfig.SourceRemote:  jwk.NewRemoteBuilder(cfg.IDP.FetchTimeout),
		idpconfig.SourceStorage: jwk.NewStorageBuilder(keySets),
	}))

	// usuarios locales
	a.Users = d.Users
	if a.Users == nil {
		if a.Users, err = a.userStore(ctx, cfg); err != nil {
			a.Close()
			return nil, err
		}
	}

	// providers de credenciales
	dial := d.Dial
	if dial == nil {
		dial = ldap.NetDialer(cfg.LDAP.DialTimeout)
	}
	ldapBuilder := ldap.NewBuilder(ldap.BuilderDeps{
		Configs:   a.Props,
		Dial:      dial,
		Users:     a.Users,
		Separator: cfg.Auth.DomainSeparator,
		TTL:       cfg.LDAP.ProviderTTL,
	})
	a.Props.Subscribe(ldapBuilder.Invalidate)
	a.Router = router.New(localauth.New(a.Users), ldapBuilder, cfg.Auth.DomainSeparator)

	a.Exchanger = idp.NewExchanger(idp.Deps{
		Keys:      a.Keys,
		Verifiers: a.Claims,
		Users:     a.Users,
		Roles:     a.Props,
		Attributes: idp.Attributes{
			Identity:  cfg.IDP.IdentityAttribute,
			FirstName: cfg.IDP.FirstNameAttribute,
			LastName:  cfg.IDP.LastNameAttribute,
		},
		Leeway: cfg.IDP.Leeway,
	})

	ks, err := jwt.NewKeySet(cfg.Token.SigningSeed)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("app: token keys: %w", err)
	}
	if cfg.Token.SigningSeed == "" {
		log.Warn("token signing seed not set, using ephemeral key")
	}
	a.Issuer = jwt.NewIssuer(cfg.Token.Issuer, ks, cfg.Token.TTL)

	limiter, err := a.limiter(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Handler, err = httpapi.NewRouter(httpapi.Deps{
		Passwords:    a.Router,
		Exchanger:    a.Exchanger,
		Tokens:       a.Issuer,
		TenantHeader: cfg.Server.TenantHeader,
		JWKS:         ks.JWKSJSON(),
		Limiter:      limiter,
		Registerer:   reg,
		Gatherer:     reg,
		Ready:        a.ready,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("app: http: %w", err)
	}

	log.Info("app wired",
		logger.String("storage", cfg.Storage.Driver),
		logger.String("jwks_storage", cfg.JWKS.Storage.Driver),
		logger.Bool("watch", cfg.TenantConfig.Watch),
	)
	return a, nil
}

// redisClient abre (una vez) la conexión compartida por jwks y rate limit.
func (a *App) redisClient(cfg *config.Config) redis.UniversalClient {
	if a.redis == nil {
		rc := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.closers = append(a.closers, func() { _ = rc.Close() })
		a.redis = rc
	}
	return a.redis
}

func (a *App) limiter(cfg *config.Config) (rate.Limiter, error) {
	if !cfg.RateLimit.Enabled {
		return nil, nil
	}
	switch cfg.RateLimit.Driver {
	case "redis":
		return rate.NewRedisLimiter(a.redisClient(cfg), cfg.RateLimit.Prefix, cfg.RateLimit.Max, cfg.RateLimit.Window), nil
	case "memory", "":
		return rate.NewMemoryLimiter(cfg.RateLimit.Max, cfg.RateLimit.Window), nil
	default:
		return nil, fmt.Errorf("app: unknown rate limit driver %q", cfg.RateLimit.Driver)
	}
}

// OpenKeySetStore abre el store de key sets configurado sin armar el gateway (CLI).
// closeFn libera la conexión redis si se abrió una.
func OpenKeySetStore(cfg *config.Config) (store jwk.KeySetStore, closeFn func(), err error) {
	a := &App{Config: cfg}
	if store, err = a.keySetStore(cfg); err != nil {
		a.Close()
		return nil, nil, err
	}
	return store, a.Close, nil
}

func (a *App) keySetStore(cfg *config.Config) (jwk.KeySetStore, error) {
	switch cfg.JWKS.Storage.Driver {
	case "redis":
		return &jwk.RedisStore{Client: a.redisClient(cfg), Prefix: cfg.JWKS.Storage.Prefix}, nil
	case "dir", "":
		return &jwk.DirStore{Root: cfg.TenantConfig.Root}, nil
	default:
		return nil, fmt.Errorf("app: unknown jwks storage driver %q", cfg.JWKS.Storage.Driver)
	}
}

func (a *App) userStore(ctx context.Context, cfg *config.Config) (users.Store, error) {
	switch cfg.Storage.Driver {
	case "postgres":
		s, err := pg.Open(ctx, cfg.Storage.DSN)
		if err != nil {
			return nil, fmt.Errorf("app: postgres: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		n, err := pg.Migrate(ctx, s.Pool())
		if err != nil {
			return nil, fmt.Errorf("app: migrate: %w", err)
		}
		logger.L().Info("migrations applied", logger.Layer("app"), logger.Count(n))
		return s, nil
	case "memory", "":
		return users.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("app: unknown storage driver %q", cfg.Storage.Driver)
	}
}

type pinger interface {
	Ping(ctx context.Context) error
}

func (a *App) ready(ctx context.Context) error {
	if p, ok := a.Users.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("users store: %w", err)
		}
	}
	return nil
}

// LoadTenantConfig empuja el árbol de config una vez o, con watch, lo observa hasta Close.
func (a *App) LoadTenantConfig(ctx context.Context) error {
	root := a.Config.TenantConfig.Root
	if !a.Config.TenantConfig.Watch {
		n, err := tenantconfig.PushTree(ctx, root, a.Dispatcher)
		if err != nil {
			return fmt.Errorf("app: tenant config: %w", err)
		}
		logger.L().Info("tenant config loaded",
			logger.ConfigPath(root),
			logger.Count(n),
			zap.Strings("idp_tenants", a.IdpConfigs.Tenants()),
		)
		return nil
	}
	w, err := tenantconfig.NewWatcher(root, a.Dispatcher)
	if err != nil {
		return fmt.Errorf("app: tenant config watcher: %w", err)
	}
	if err := w.Start(ctx); err != nil {
		_ = w.Stop()
		return fmt.Errorf("app: tenant config watcher: %w", err)
	}
	a.watcher = w
	return nil
}

// Run carga la config de tenants y sirve HTTP hasta que ctx se cancela.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()
	if err := a.LoadTenantConfig(ctx); err != nil {
		return err
	}
	err := httpapi.Serve(ctx, a.Config.Server.Addr, a.Handler)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close libera watcher y conexiones. Idempotente.
func (a *App) Close() {
	if a.watcher != nil {
		_ = a.watcher.Stop()
		a.watcher = nil
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
