package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gustload/gust/internal/config"
	"github.com/gustload/gust/internal/loadtest/metrics"
	"github.com/gustload/gust/internal/loadtest/runner"
)

func sampleResult() *runner.Result {
	return &runner.Result{
		TestName:  "Report Test",
		StartTime: time.Now().Add(-2 * time.Minute),
		EndTime:   time.Now(),
		Duration:  2 * time.Minute,
		Snapshot: &metrics.Snapshot{
			TotalRequests:   5000,
			SuccessRequests: 4980,
			FailedRequests:  20,
			ErrorRate:       0.004,
			TotalBytes:      3 * 1024 * 1024,
			RPS:             41.6,
			Latency: metrics.LatencyStats{
				Count: 5000,
				Min:   8 * time.Millisecond,
				Max:   1200 * time.Millisecond,
				Mean:  95 * time.Millisecond,
				P50:   80 * time.Millisecond,
				P90:   180 * time.Millisecond,
				P95:   260 * time.Millisecond,
				P99:   600 * time.Millisecond,
			},
		},
		Requests: map[string]metrics.LatencyStats{
			"browse":   {Count: 4000, Mean: 85 * time.Millisecond, P95: 240 * time.Millisecond},
			"checkout": {Count: 1000, Mean: 135 * time.Millisecond, P95: 380 * time.Millisecond},
		},
		Checks: []metrics.CheckStats{
			{Name: "login succeeded", Passed: 50, Failed: 0},
			{Name: "status is 200", Passed: 4980, Failed: 20},
		},
		Series: []*metrics.Bucket{
			{
				Timestamp:        time.Now().Add(-time.Minute),
				IntervalRPS:      40,
				IntervalRequests: 40,
				LatencyP50:       80 * time.Millisecond,
				LatencyP95:       250 * time.Millisecond,
				LatencyP99:       500 * time.Millisecond,
				ActiveVUs:        10,
				Phase:            metrics.PhaseSteady,
				TotalRequests:    2400,
			},
		},
		Thresholds: []runner.ThresholdResult{
			{Metric: "http_req_duration", Expression: "p95 < 500ms", ValueText: "260ms", Passed: true},
		},
		Passed: true,
	}
}

func TestRenderHTML(t *testing.T) {
	html, err := RenderHTML(sampleResult(), &config.ReportConfig{
		Title: "Acme Storefront Load Test",
		Logo:  "https://example.com/logo.png",
	})
	if err != nil {
		t.Fatalf("RenderHTML() error = %v", err)
	}

	for _, want := range []string{
		"<title>Acme Storefront Load Test</title>",
		"https://example.com/logo.png",
		"browse",
		"checkout",
		"login succeeded",
		"status is 200",
		"p95 &lt; 500ms",
		"const series =",
		`"rps":40`,
	} {
		if !strings.Contains(html, want) {
			t.Errorf("report missing %q", want)
		}
	}
}

func TestRenderHTML_TitleFallsBackToTestName(t *testing.T) {
	html, err := RenderHTML(sampleResult(), nil)
	if err != nil {
		t.Fatalf("RenderHTML() error = %v", err)
	}
	if !strings.Contains(html, "<title>Report Test</title>") {
		t.Error("title did not fall back to the test name")
	}
	if strings.Contains(html, "<img") {
		t.Error("logo image rendered without a configured logo")
	}
}

func TestRenderHTML_NilResult(t *testing.T) {
	if _, err := RenderHTML(nil, nil); err == nil {
		t.Error("RenderHTML(nil) should fail")
	}
}

func TestWriteHTML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.html")

	if err := WriteHTML(sampleResult(), nil, path); err != nil {
		t.Fatalf("WriteHTML() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "Report Test") {
		t.Error("written report missing the test name")
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0ms"},
		{250 * time.Microsecond, "250µs"},
		{2500 * time.Microsecond, "2.50ms"},
		{42 * time.Millisecond, "42ms"},
		{3 * time.Second, "3.00s"},
		{75 * time.Second, "1m 15s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestMarshalSeries_Empty(t *testing.T) {
	data, err := marshalSeries(nil)
	if err != nil {
		t.Fatal(err)
	}
	if data != "[]" {
		t.Errorf("marshalSeries(nil) = %q, want []", data)
	}
}
