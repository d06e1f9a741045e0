// Package cli wires the gust commands.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

// RootCmd is the base command.
var RootCmd = &cobra.Command{
	Use:     "gust",
	Short:   "Scenario-driven HTTP load testing",
	Version: version,
	Long: `Gust runs HTTP load tests described in YAML: scenarios with
virtual users, ramping profiles and arrival rates, with response checks,
pass/fail thresholds, a live dashboard and HTML reports.`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the CLI. Called by main.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	RootCmd.AddCommand(runCmd)
	RootCmd.AddCommand(validateCmd)
	RootCmd.AddCommand(reportCmd)
}
