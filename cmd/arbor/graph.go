package main

import (
	"github.com/spf13/cobra"

	"github.com/aretw0/arbor/internal/cli"
	"github.com/aretw0/arbor/internal/config"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph <template>",
	Short: "Export the flow graph visualization",
	Long: `Compiles the template and outputs a Mermaid diagram (graph TD) of the
flow. With --session the nodes that session visited are highlighted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		binds, err := bindings(cmd)
		if err != nil {
			return err
		}
		sessionID, _ := cmd.Flags().GetString("session")
		if sessionID == "" {
			return cli.RenderGraph(cmd.Context(), args[0], binds, nil, "", cmd.OutOrStdout())
		}

		cfg, err := config.Load(cmd.Flags())
		if err != nil {
			return err
		}
		backend, err := cli.OpenStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer backend.Close()
		return cli.RenderGraph(cmd.Context(), args[0], binds, backend.Store, sessionID, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().StringP("session", "s", "", "Highlight the path of this session")
}
