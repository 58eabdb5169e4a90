package main

import (
	"github.com/spf13/cobra"
)

func newMCPCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the tools over MCP on stdin and stdout",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			srv, err := a.container.MCPServer()
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()
			return srv.ServeStdio(ctx)
		},
	}
}
