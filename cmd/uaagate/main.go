// Command uaagate sirve el token endpoint multi-tenant y trae utilidades de operación.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/uaagate/internal/app"
	"github.com/dropDatabas3/uaagate/internal/config"
	"github.com/dropDatabas3/uaagate/internal/observability/logger"
	"github.com/dropDatabas3/uaagate/internal/security/password"
)

func main() {
	_ = godotenv.Load(".env")     // base
	_ = godotenv.Load(".env.dev") // dev overrides

	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "uaagate",
		Short:         "Gateway de autenticación multi-tenant (password + intercambio de tokens IDP)",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newCheckConfigCmd(), newHashPasswordCmd(), newPutJwksCmd())
	return root
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.FromEnv()
	}
	return config.Load(path)
}

func newServeCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Levanta el servidor HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}
			logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel, ServiceName: "uaagate"})
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg, app.Deps{})
			if err != nil {
				logger.S().Errorw("startup failed", "config", cfgPath, "err", err)
				return err
			}
			return a.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", envOr("UAA_CONFIG", ""), "Ruta al YAML de configuración (env UAA_CONFIG); vacío usa defaults + env")
	return cmd
}

func newHashPasswordCmd() *cobra.Command {
	var plain string
	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Genera el hash argon2id (PHC) de una contraseña; sin --password la lee de stdin",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if plain == "" {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return errors.New("password requerida (--password o stdin)")
				}
				plain = strings.TrimRight(line, "\r\n")
			}
			if plain == "" {
				return errors.New("password vacía")
			}
			phc, err := password.Hash(password.Default, plain)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), phc)
			return nil
		},
	}
	cmd.Flags().StringVar(&plain, "password", "", "Contraseña en claro")
	return cmd
}

func envOr(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}
