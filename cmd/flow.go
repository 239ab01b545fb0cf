package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var flowCmd = &cobra.Command{
	Use:   "flow",
	Short: "Work with flow files",
}

var flowCheckCmd = &cobra.Command{
	Use:   "check [path]",
	Short: "Validate a flow file",
	Long:  "Loads a flow file (or the configured one, or the builtin flow) and checks that every step it references exists.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		path := cfg.Flow.Path
		if len(args) == 1 {
			path = args[0]
		}

		steps, source, err := loadFlow(path, cfg.Session.EntryStep)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d steps, entry %q ok\n", source, len(steps), cfg.Session.EntryStep)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(flowCmd)
	flowCmd.AddCommand(flowCheckCmd)
}
