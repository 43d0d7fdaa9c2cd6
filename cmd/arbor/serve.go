package main

import (
	"github.com/spf13/cobra"

	"github.com/aretw0/arbor/internal/cli"
	"github.com/aretw0/arbor/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve <template>",
	Short: "Start the HTTP server",
	Long: `Serves the workflow over HTTP, one run per session. Sessions live in the
configured store; a redis:// store also locks sessions across replicas.`,
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
		return cli.Serve(cmd.Context(), cli.ServeOptions{
			Template: args[0],
			Bindings: binds,
			Config:   cfg,
			Out:      cmd.OutOrStdout(),
		})
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
