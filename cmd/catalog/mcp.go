package main

import (
	"github.com/rendis/catalog/pkg/mcp"
	"github.com/spf13/cobra"
)

func (a *app) mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve catalog tools over MCP (stdio)",
		Long: `Mcp serves the catalog.list, catalog.get, catalog.validate and catalog.history
tools over the Model Context Protocol on stdin and stdout. Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			v, err := a.newValidator()
			if err != nil {
				return err
			}
			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			deps := mcp.CatalogServerDeps{
				RegistryPath: a.cfg.Registry,
				Validator:    v,
				Version:      version,
				Logger:       a.logger,
			}
			if st != nil {
				defer st.Close()
				deps.Store = st
			}
			a.logger.InfoContext(ctx, "mcp server listening on stdio", "registry", a.cfg.Registry)
			return mcp.NewCatalogServer(deps).Serve(ctx)
		},
	}
}
