package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/arbor/internal/cli"
	"github.com/aretw0/arbor/internal/config"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run <template>",
	Short: "Run a workflow in the terminal",
	Long: `Runs the workflow interactively, reading input at every intervene point.
With --session the run is recorded in the store and picked up where it
stopped the next time the same session runs.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		headless, _ := cmd.Flags().GetBool("headless")
		jsonMode, _ := cmd.Flags().GetBool("json")
		sessionID, _ := cmd.Flags().GetString("session")
		fresh, _ := cmd.Flags().GetBool("fresh")
		markdown, _ := cmd.Flags().GetBool("markdown")
		pairs, _ := cmd.Flags().GetStringArray("var")

		if fresh && sessionID == "" {
			return fmt.Errorf("--fresh needs --session")
		}
		vars, err := cli.ParseVars(pairs)
		if err != nil {
			return err
		}
		binds, err := bindings(cmd)
		if err != nil {
			return err
		}
		cfg, err := config.Load(cmd.Flags())
		if err != nil {
			return err
		}

		return cli.RunSession(cmd.Context(), cli.RunOptions{
			Template:  args[0],
			Vars:      vars,
			Bindings:  binds,
			SessionID: sessionID,
			Headless:  headless,
			JSON:      jsonMode,
			Fresh:     fresh,
			Markdown:  markdown,
			Config:    cfg,
			In:        cmd.InOrStdin(),
			Out:       cmd.OutOrStdout(),
		})
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringArray("var", nil, "Initial state value key=value (repeatable)")
	runCmd.Flags().StringP("session", "s", "", "Record the run under this session ID and resume it later")
	runCmd.Flags().Bool("fresh", false, "Discard what the session recorded before running")
	runCmd.Flags().Bool("headless", false, "Run in headless mode (no banner or system messages)")
	runCmd.Flags().Bool("json", false, "Run in JSON mode (NDJSON output, JSON string input)")
	runCmd.Flags().Bool("markdown", true, "Render assistant output as markdown")
}
