// Package report renders a standalone HTML report for a completed run.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"sort"
	"time"

	"github.com/gustload/gust/internal/config"
	"github.com/gustload/gust/internal/loadtest/metrics"
	"github.com/gustload/gust/internal/loadtest/runner"
)

// Data is everything the report template renders.
type Data struct {
	*runner.Result

	// Title and Logo come from the report configuration; Title falls
	// back to the test name.
	Title string
	Logo  string

	// GeneratedAt is when the report was rendered
	GeneratedAt time.Time

	// RequestRows is Requests flattened into sorted rows
	RequestRows []RequestRow

	// SeriesJSON is the time series marshalled for the charts
	SeriesJSON template.JS
}

// RequestRow is one per-request line in the report table.
type RequestRow struct {
	Name  string
	Stats metrics.LatencyStats
}

// seriesPoint is one chart sample; latencies are milliseconds.
type seriesPoint struct {
	Timestamp  string  `json:"timestamp"`
	RPS        float64 `json:"rps"`
	ErrorRate  float64 `json:"errorRate"`
	P50        float64 `json:"p50"`
	P95        float64 `json:"p95"`
	P99        float64 `json:"p99"`
	ActiveVUs  int     `json:"activeVUs"`
	Phase      string  `json:"phase"`
	TotalReqs  int64   `json:"totalReqs"`
	TotalBytes int64   `json:"totalBytes"`
}

// WriteHTML renders the report for a result and writes it to path.
func WriteHTML(result *runner.Result, reportCfg *config.ReportConfig, path string) error {
	html, err := RenderHTML(result, reportCfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(html), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// RenderHTML renders the report to a string.
func RenderHTML(result *runner.Result, reportCfg *config.ReportConfig) (string, error) {
	if result == nil {
		return "", fmt.Errorf("result cannot be nil")
	}

	tmpl, err := template.New("report").Funcs(templateFuncs()).Parse(reportTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse report template: %w", err)
	}

	data := Data{
		Result:      result,
		Title:       result.TestName,
		GeneratedAt: time.Now(),
	}
	if reportCfg != nil {
		if reportCfg.Title != "" {
			data.Title = reportCfg.Title
		}
		data.Logo = reportCfg.Logo
	}

	names := make([]string, 0, len(result.Requests))
	for name := range result.Requests {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		data.RequestRows = append(data.RequestRows, RequestRow{Name: name, Stats: result.Requests[name]})
	}

	seriesJSON, err := marshalSeries(result.Series)
	if err != nil {
		return "", fmt.Errorf("failed to marshal time series: %w", err)
	}
	data.SeriesJSON = template.JS(seriesJSON)

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render report: %w", err)
	}
	return buf.String(), nil
}

func marshalSeries(series []*metrics.Bucket) (string, error) {
	if len(series) == 0 {
		return "[]", nil
	}

	points := make([]seriesPoint, len(series))
	for i, bucket := range series {
		points[i] = seriesPoint{
			Timestamp:  bucket.Timestamp.Format("15:04:05"),
			RPS:        bucket.IntervalRPS,
			ErrorRate:  bucket.IntervalErrorRate,
			P50:        float64(bucket.LatencyP50.Microseconds()) / 1000,
			P95:        float64(bucket.LatencyP95.Microseconds()) / 1000,
			P99:        float64(bucket.LatencyP99.Microseconds()) / 1000,
			ActiveVUs:  bucket.ActiveVUs,
			Phase:      string(bucket.Phase),
			TotalReqs:  bucket.TotalRequests,
			TotalBytes: bucket.TotalBytes,
		}
	}

	data, err := json.Marshal(points)
	if err != nil {
		return "[]", err
	}
	return string(data), nil
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"formatDuration": formatDuration,
		"formatNumber":   formatNumber,
		"formatBytes":    formatBytes,
		"percent":        func(f float64) string { return fmt.Sprintf("%.2f%%", f*100) },
	}
}

func formatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "0ms"
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		ms := float64(d.Microseconds()) / 1000
		if ms < 10 {
			return fmt.Sprintf("%.2fms", ms)
		}
		return fmt.Sprintf("%.0fms", ms)
	case d < time.Minute:
		return fmt.Sprintf("%.2fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%dm %02ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh %02dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

func formatNumber(n int64) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	str := fmt.Sprintf("%d", n)
	result := ""
	for i, c := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result += ","
		}
		result += string(c)
	}
	return result
}

func formatBytes(n int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case n >= gb:
		return fmt.Sprintf("%.2f GB", float64(n)/gb)
	case n >= mb:
		return fmt.Sprintf("%.2f MB", float64(n)/mb)
	case n >= kb:
		return fmt.Sprintf("%.2f KB", float64(n)/kb)
	default:
		return fmt.Sprintf("%d B", n)
	}
}
