package main

import (
	"github.com/spf13/cobra"

	"github.com/aretw0/arbor/internal/cli"
	"github.com/aretw0/arbor/internal/config"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp <template>",
	Short: "Start the MCP server",
	Long: `Serves the workflow as a Model Context Protocol server, so agents can
start runs, answer their intervene nodes and inspect the graph.

Transports:
  stdio  speak the protocol on stdin/stdout (default)
  sse    serve Server-Sent Events on --addr`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		binds, err := bindings(cmd)
		if err != nil {
			return err
		}
		cfg, err := config.Load(cmd.Flags())
		if err != nil {
			return err
		}
		transport, _ := cmd.Flags().GetString("transport")
		return cli.ServeMCP(cmd.Context(), cli.MCPOptions{
			Template:  args[0],
			Bindings:  binds,
			Config:    cfg,
			Transport: transport,
			In:        cmd.InOrStdin(),
			Out:       cmd.OutOrStdout(),
		})
	},
}

func init() {
	mcpCmd.Flags().StringP("transport", "t", "stdio", "Transport to use (stdio, sse)")
	rootCmd.AddCommand(mcpCmd)
}
