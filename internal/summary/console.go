// Package summary renders live progress and the end-of-run summary to
// the terminal.
package summary

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"github.com/gustload/gust/internal/loadtest/metrics"
	"github.com/gustload/gust/internal/loadtest/runner"
)

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	okColor     = color.New(color.FgGreen)
	warnColor   = color.New(color.FgYellow)
	failColor   = color.New(color.FgRed)
	dimColor    = color.New(color.Faint)
)

// Icons render at call time so NoColor set in New is respected.
func passIcon() string { return okColor.Sprint("✓") }
func failIcon() string { return failColor.Sprint("✗") }

// Console renders run progress and the final summary.
type Console struct {
	w     io.Writer
	isTTY bool
	quiet bool

	mu       sync.Mutex
	liveLine bool
}

// Options configures the console.
type Options struct {
	Writer  io.Writer
	Quiet   bool
	NoColor bool
}

// New creates a console renderer. Colors are disabled automatically when
// the writer is not a terminal.
func New(opts Options) *Console {
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}

	tty := false
	if f, ok := w.(*os.File); ok {
		tty = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	if opts.NoColor || !tty {
		color.NoColor = true
	}

	return &Console{w: w, isTTY: tty, quiet: opts.Quiet}
}

// PrintBanner prints the header before the run starts.
func (c *Console) PrintBanner(testName string, scenarios int, outputs []string) {
	if c.quiet {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	rule := strings.Repeat("━", 56)
	fmt.Fprintln(c.w, headerColor.Sprint(rule))
	fmt.Fprintf(c.w, "%s  %s\n", headerColor.Sprint("gust"), color.New(color.Bold).Sprint(testName))
	if len(outputs) > 0 {
		fmt.Fprintf(c.w, "%s\n", dimColor.Sprintf("outputs: %s", strings.Join(outputs, ", ")))
	}
	fmt.Fprintf(c.w, "%s\n", dimColor.Sprintf("scenarios: %d", scenarios))
	fmt.Fprintln(c.w, headerColor.Sprint(rule))
	fmt.Fprintln(c.w)
}

// Progress renders a progress update from a snapshot. On a TTY the line
// updates in place; otherwise one line is appended per call.
func (c *Console) Progress(snapshot *metrics.Snapshot, progress float64) {
	if c.quiet {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	line := fmt.Sprintf("[%s] %s %3.0f%% | VUs %d | reqs %d | rps %.1f | err %.1f%% | p95 %s",
		formatDuration(snapshot.Elapsed),
		progressBar(progress, 24),
		progress*100,
		snapshot.ActiveVUs,
		snapshot.TotalRequests,
		snapshot.RPS,
		snapshot.ErrorRate*100,
		formatDuration(snapshot.Latency.P95),
	)

	if c.isTTY {
		fmt.Fprintf(c.w, "\r\033[2K%s", line)
		c.liveLine = true
	} else {
		fmt.Fprintln(c.w, line)
	}
}

func progressBar(progress float64, width int) string {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	filled := int(progress * float64(width))
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "]"
}

// PrintResult renders the final summary.
func (c *Console) PrintResult(result *runner.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.liveLine {
		fmt.Fprint(c.w, "\r\033[2K")
		c.liveLine = false
	}

	if c.quiet {
		if result.Passed {
			fmt.Fprintln(c.w, okColor.Sprint("PASSED"))
		} else {
			fmt.Fprintln(c.w, failColor.Sprint("FAILED"))
		}
		return
	}

	rule := strings.Repeat("━", 56)
	status := okColor.Sprint("completed ✓")
	if !result.Passed {
		status = failColor.Sprint("failed ✗")
	}

	fmt.Fprintln(c.w)
	fmt.Fprintln(c.w, headerColor.Sprint(rule))
	fmt.Fprintf(c.w, "%s - %s\n", color.New(color.Bold).Sprint(result.TestName), status)
	fmt.Fprintln(c.w, headerColor.Sprint(rule))
	fmt.Fprintln(c.w)

	snap := result.Snapshot
	fmt.Fprintf(c.w, "duration:      %s\n", formatDuration(result.Duration))
	fmt.Fprintf(c.w, "requests:      %s (%.1f/s)\n", formatNumber(snap.TotalRequests), snap.RPS)
	fmt.Fprintf(c.w, "data received: %s\n", formatBytes(snap.TotalBytes))

	successRate := 1.0 - snap.ErrorRate
	rateColor := okColor
	if successRate < 0.99 {
		rateColor = warnColor
	}
	if successRate < 0.95 {
		rateColor = failColor
	}
	fmt.Fprintf(c.w, "success rate:  %s\n", rateColor.Sprintf("%.2f%%", successRate*100))
	fmt.Fprintln(c.w)

	c.printLatency(snap.Latency)
	c.printRequests(result.Requests)
	c.printChecks(result.Checks)
	c.printThresholds(result.Thresholds)
}

func (c *Console) printLatency(latency metrics.LatencyStats) {
	fmt.Fprintln(c.w, color.New(color.Bold).Sprint("http_req_duration"))
	fmt.Fprintf(c.w, "  avg=%s  min=%s  med=%s  p90=%s  p95=%s  p99=%s  max=%s\n",
		formatDuration(latency.Mean),
		formatDuration(latency.Min),
		formatDuration(latency.P50),
		formatDuration(latency.P90),
		formatDuration(latency.P95),
		formatDuration(latency.P99),
		formatDuration(latency.Max),
	)
	fmt.Fprintln(c.w)
}

func (c *Console) printRequests(requests map[string]metrics.LatencyStats) {
	if len(requests) == 0 {
		return
	}

	names := make([]string, 0, len(requests))
	for name := range requests {
		names = append(names, name)
	}
	sort.Strings(names)

	t := table.NewWriter()
	t.SetOutputMirror(c.w)
	t.SetStyle(table.StyleLight)
	t.Style().Format.Header = text.FormatDefault
	t.AppendHeader(table.Row{"request", "count", "avg", "p95", "p99", "max"})
	for _, name := range names {
		stats := requests[name]
		t.AppendRow(table.Row{
			name,
			stats.Count,
			formatDuration(stats.Mean),
			formatDuration(stats.P95),
			formatDuration(stats.P99),
			formatDuration(stats.Max),
		})
	}
	t.Render()
	fmt.Fprintln(c.w)
}

func (c *Console) printChecks(checks []metrics.CheckStats) {
	if len(checks) == 0 {
		return
	}

	fmt.Fprintln(c.w, color.New(color.Bold).Sprint("checks"))
	for _, check := range checks {
		icon := passIcon()
		if check.Failed > 0 {
			icon = failIcon()
		}
		fmt.Fprintf(c.w, "  %s %s: %d passed, %d failed (%.1f%%)\n",
			icon, check.Name, check.Passed, check.Failed, check.Rate()*100)
	}
	fmt.Fprintln(c.w)
}

func (c *Console) printThresholds(thresholds []runner.ThresholdResult) {
	if len(thresholds) == 0 {
		return
	}

	fmt.Fprintln(c.w, color.New(color.Bold).Sprint("thresholds"))
	for _, t := range thresholds {
		icon := passIcon()
		if !t.Passed {
			icon = failIcon()
		}
		fmt.Fprintf(c.w, "  %s %s: %s (actual: %s)\n", icon, t.Metric, t.Expression, t.ValueText)
	}
	fmt.Fprintln(c.w)
}

func formatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "0ms"
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.2fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

func formatNumber(n int64) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	offset := len(s) % 3
	if offset > 0 {
		b.WriteString(s[:offset])
	}
	for i := offset; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteString(",")
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
