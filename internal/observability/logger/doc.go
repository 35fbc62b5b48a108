// Package logger provides a singleton Zap logger with context-based scoping.
//
// Inicialización (una vez en cmd):
//
//	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel})
//	defer logger.Sync()
//
// En services (con contexto):
//
//	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("idp.exchange"))
//	log.Info("user provisioned", logger.TenantID(tenant), logger.Principal(login))
package logger
