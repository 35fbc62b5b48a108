package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/uaagate/internal/config"
	"github.com/dropDatabas3/uaagate/internal/idpconfig"
	"github.com/dropDatabas3/uaagate/internal/tenant"
	"github.com/dropDatabas3/uaagate/internal/tenantconfig"
)

// checker implementa tenantconfig.Pusher: valida cada documento IDP del árbol sin
// aplicarlo y reporta entradas válidas y rechazadas.
type checker struct {
	pattern *tenantconfig.Pattern
	out     io.Writer

	files  int
	failed int
}

func (c *checker) Push(_ context.Context, path string, raw []byte) int {
	vars, ok := c.pattern.Match(path)
	if !ok {
		return 0
	}
	c.files++
	tk := tenant.Normalize(vars["tenant"])

	p, err := idpconfig.Parse(raw)
	if err != nil {
		c.failed++
		fmt.Fprintf(c.out, "FAIL %s %s: %v\n", tk, path, err)
		return 0
	}
	status := "OK  "
	if len(p.Clients) == 0 {
		c.failed++
		status = "FAIL"
	}
	fmt.Fprintf(c.out, "%s %s %s: %d valid, %d rejected (source %s)\n",
		status, tk, path, len(p.Clients), len(p.Rejected), p.SourceType)
	for _, r := range p.Rejected {
		fmt.Fprintf(c.out, "     - #%d %q: %s\n", r.Index, r.ClientID, r.Reason)
	}
	return 1
}

func newCheckConfigCmd() *cobra.Command {
	var dir, pattern string
	cmd := &cobra.Command{
		Use:   "check-config",
		Short: "Valida los documentos de config IDP de cada tenant bajo --dir",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := tenantconfig.CompilePattern(pattern)
			if err != nil {
				return err
			}
			c := &checker{pattern: p, out: cmd.OutOrStdout()}
			if _, err := tenantconfig.PushTree(cmd.Context(), dir, c); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "%d file(s), %d with errors\n", c.files, c.failed)
			if c.failed > 0 {
				return fmt.Errorf("check-config: %d invalid file(s)", c.failed)
			}
			return nil
		},
	}
	def := config.Default()
	cmd.Flags().StringVar(&dir, "dir", def.TenantConfig.Root, "Raíz del árbol de config de tenants")
	cmd.Flags().StringVar(&pattern, "pattern", def.TenantConfig.IdpPathPattern, "Pattern del documento IDP ({tenant} obligatorio)")
	return cmd
}
