package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/uaagate/internal/app"
	"github.com/dropDatabas3/uaagate/internal/jwk"
	"github.com/dropDatabas3/uaagate/internal/tenant"
)

// newPutJwksCmd carga el JWKS de un client "storage" en el store configurado (dir | redis).
func newPutJwksCmd() *cobra.Command {
	var cfgPath, tenantKey, key, file string
	cmd := &cobra.Command{
		Use:   "put-jwks",
		Short: "Guarda un JWKS en el store de key sets (clients con jwksSourceType=storage)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tk := tenant.Normalize(tenantKey)
			if tk == "" || key == "" {
				return errors.New("--tenant y --key son obligatorios")
			}
			raw, err := readPayload(cmd, file)
			if err != nil {
				return err
			}
			entries, err := jwk.ParseSet(cmd.Context(), raw)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				return errors.New("el JWKS no trae ninguna clave RSA utilizable")
			}

			cfg, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}
			store, closeFn, err := app.OpenKeySetStore(cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			if err := store.Put(cmd.Context(), tk, key, raw); err != nil {
				return fmt.Errorf("put %s/%s: %w", tk, key, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored %d key(s) for %s/%s (%s)\n", len(entries), tk, key, cfg.JWKS.Storage.Driver)
			return nil
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", envOr("UAA_CONFIG", ""), "Ruta al YAML de configuración (env UAA_CONFIG)")
	cmd.Flags().StringVar(&tenantKey, "tenant", "", "Tenant dueño del key set")
	cmd.Flags().StringVar(&key, "key", "", "storageKey del client (default del client: su clientId)")
	cmd.Flags().StringVar(&file, "file", "-", "Archivo JWKS; - lee de stdin")
	return cmd
}

func readPayload(cmd *cobra.Command, file string) ([]byte, error) {
	if file == "" || file == "-" {
		return io.ReadAll(io.LimitReader(cmd.InOrStdin(), 1<<20))
	}
	return os.ReadFile(file)
}
