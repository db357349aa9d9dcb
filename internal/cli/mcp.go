package cli

import (
	"github.com/spf13/cobra"
	"github.com/tripgenie/tripgenie-backend/internal/mcpserver"
)

// NewMCPCmd creates the mcp command
func NewMCPCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the tools over MCP on stdin/stdout",
		Long: `Run a Model Context Protocol server on stdin/stdout exposing every
registered tool. Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			gw, logger, err := env.gateway()
			if err != nil {
				return err
			}
			srv, err := mcpserver.New(gw, version, logger)
			if err != nil {
				return err
			}
			return srv.Serve(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}
