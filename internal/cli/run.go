package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gustload/gust/internal/config"
	"github.com/gustload/gust/internal/loadtest/runner"
	"github.com/gustload/gust/internal/logging"
	"github.com/gustload/gust/internal/output"
	"github.com/gustload/gust/internal/output/dashboard"
	"github.com/gustload/gust/internal/report"
	"github.com/gustload/gust/internal/summary"
)

var (
	runOuts          []string
	runSummaryExport string
	runReportPath    string
	runVUs           int
	runDuration      string
	runSequential    bool
	runInsecure      bool
	runQuiet         bool
	runNoColor       bool
	runVerbose       bool
)

var runCmd = &cobra.Command{
	Use:   "run <config.yaml>",
	Short: "Run a load test",
	Long: `Run executes the load test described by a YAML configuration file.

Outputs can be attached with --out:

  gust run test.yaml --out dashboard
  gust run test.yaml --out dashboard=0.0.0.0:8080
  gust run test.yaml --out json=results.ndjson --out sqlite=results.db

The command exits non-zero when any configured threshold fails.`,
	Args: cobra.ExactArgs(1),
	RunE: runLoadTest,
}

func init() {
	runCmd.Flags().StringArrayVarP(&runOuts, "out", "o", nil,
		"output sink: dashboard[=host:port], json=path, sqlite=path (repeatable)")
	runCmd.Flags().StringVar(&runSummaryExport, "summary-export", "",
		"write the end-of-test summary as JSON to this file")
	runCmd.Flags().StringVar(&runReportPath, "report", "",
		"write an HTML report to this file")
	runCmd.Flags().IntVar(&runVUs, "vus", 0,
		"override the VU count of every scenario")
	runCmd.Flags().StringVar(&runDuration, "duration", "",
		"override the duration of every scenario")
	runCmd.Flags().BoolVar(&runSequential, "sequential", false,
		"run scenarios one at a time")
	runCmd.Flags().BoolVar(&runInsecure, "insecure-skip-verify", false,
		"skip TLS certificate verification")
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false,
		"only print the final pass/fail status")
	runCmd.Flags().BoolVar(&runNoColor, "no-color", false,
		"disable colored output")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false,
		"enable debug logging")
}

func runLoadTest(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	cfg, err := config.LoadConfig(args[0])
	if err != nil {
		return err
	}
	applyOverrides(cfg)

	logger, err := logging.NewLogger(runVerbose)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	r := runner.New(cfg, logger)

	manager, dash, err := buildOutputs(cfg, r, logger)
	if err != nil {
		return err
	}
	if err := manager.Start(); err != nil {
		return err
	}
	r.Collector().OnEmit(manager.AddBucket)

	console := summary.New(summary.Options{Quiet: runQuiet, NoColor: runNoColor})

	descriptions := make([]string, 0, len(manager.Outputs()))
	for _, o := range manager.Outputs() {
		descriptions = append(descriptions, o.Description())
	}
	console.PrintBanner(cfg.Name, len(cfg.Scenarios), descriptions)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		logger.Warn("interrupt received, stopping test")
		r.Stop(context.Background())
		cancel()
	}()

	progressDone := make(chan struct{})
	go func() {
		defer close(progressDone)
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				console.Progress(r.Collector().Snapshot(), r.Progress())
			}
		}
	}()

	result, runErr := r.Run(ctx)
	cancel()
	<-progressDone

	if result == nil {
		return runErr
	}
	if runErr != nil {
		logger.Error("run finished with error", zap.Error(runErr))
	}

	if err := manager.Finish(result); err != nil {
		logger.Warn("output finish", zap.Error(err))
	}

	console.PrintResult(result)

	if runSummaryExport != "" {
		if err := writeSummaryExport(result, runSummaryExport); err != nil {
			return err
		}
	}
	if runReportPath != "" {
		if err := report.WriteHTML(result, cfg.Report, runReportPath); err != nil {
			return err
		}
		if !runQuiet {
			fmt.Fprintf(cmd.OutOrStdout(), "report written to %s\n", runReportPath)
		}
	}

	if dash != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer shutdownCancel()
		_ = dash.Close(shutdownCtx)
	}

	if runErr != nil {
		return runErr
	}
	if !result.Passed {
		os.Exit(1)
	}
	return nil
}

// applyOverrides applies --vus and --duration to every scenario that
// uses those fields.
func applyOverrides(cfg *config.TestConfig) {
	for _, sc := range cfg.Scenarios {
		if runVUs > 0 && sc.VUs > 0 {
			sc.VUs = runVUs
		}
		if runDuration != "" && sc.Duration != "" {
			sc.Duration = runDuration
		}
	}
	if runSequential {
		if cfg.Options == nil {
			cfg.Options = &config.ExecutionOptions{}
		}
		cfg.Options.Sequential = true
	}
	if runInsecure {
		cfg.Settings.InsecureSkipVerify = true
	}
}

func buildOutputs(cfg *config.TestConfig, r *runner.Runner, logger *zap.Logger) (*output.Manager, *dashboard.Server, error) {
	manager := output.NewManager()
	var dash *dashboard.Server

	for _, raw := range runOuts {
		spec, err := output.ParseSpec(raw)
		if err != nil {
			return nil, nil, err
		}

		switch spec.Kind {
		case "dashboard":
			dash = dashboard.NewServer(spec.Arg, cfg.Name, r.Collector(), logger)
			manager.Add(dash)
		case "json":
			manager.Add(output.NewNDJSON(spec.Arg))
		case "sqlite":
			manager.Add(output.NewSQLite(spec.Arg))
		}
	}

	return manager, dash, nil
}

func writeSummaryExport(result *runner.Result, path string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write summary export: %w", err)
	}
	return nil
}
