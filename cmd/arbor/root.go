package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/arbor/internal/cli"
	"github.com/aretw0/arbor/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "arbor",
	Short: "Arbor compiles and runs human-in-the-loop workflow templates",
	Long: `Arbor compiles declarative workflow templates into execution graphs and
drives them, suspending at intervene points until input arrives.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	config.RegisterFlags(rootCmd.PersistentFlags())
	rootCmd.PersistentFlags().StringArray("bind", nil, "Template binding key=value substituted for ${key}")
}

// bindings reads the --bind flags of cmd.
func bindings(cmd *cobra.Command) (map[string]any, error) {
	pairs, _ := cmd.Flags().GetStringArray("bind")
	return cli.ParseVars(pairs)
}
