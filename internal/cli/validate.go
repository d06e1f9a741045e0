package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gustload/gust/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate <config.yaml>",
	Short: "Validate a test configuration without running it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		cfg, err := config.LoadConfig(args[0])
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s is valid: %d scenario(s)\n", args[0], len(cfg.Scenarios))
		for name, sc := range cfg.Scenarios {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s: %s, %d request(s)\n", name, sc.Executor, len(sc.Requests))
		}
		return nil
	},
}
