package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gustload/gust/internal/config"
	"github.com/gustload/gust/internal/output"
	"github.com/gustload/gust/internal/report"
	"github.com/gustload/gust/internal/summary"
)

var (
	reportOut   string
	reportTitle string
	reportLogo  string
)

var reportCmd = &cobra.Command{
	Use:   "report <results file>",
	Short: "Render a report from a saved run",
	Long: `Report reads a results file written by a previous run (either an
NDJSON stream from --out json=... or a summary from --summary-export)
and renders it again: the console summary by default, or an HTML report
with --output.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		result, err := output.ReadResult(args[0])
		if err != nil {
			return err
		}

		if reportOut == "" {
			console := summary.New(summary.Options{})
			console.PrintResult(result)
			return nil
		}

		reportCfg := &config.ReportConfig{Title: reportTitle, Logo: reportLogo}
		if err := report.WriteHTML(result, reportCfg, reportOut); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "report written to %s\n", reportOut)
		return nil
	},
}

func init() {
	reportCmd.Flags().StringVarP(&reportOut, "output", "O", "",
		"write an HTML report to this file instead of printing the summary")
	reportCmd.Flags().StringVar(&reportTitle, "title", "",
		"override the report title")
	reportCmd.Flags().StringVar(&reportLogo, "logo", "",
		"logo image URL for the report header")
}
