package runner

import (
	"testing"
	"time"

	"github.com/gustload/gust/internal/config"
	"github.com/gustload/gust/internal/loadtest/metrics"
)

func TestParseThreshold(t *testing.T) {
	tests := []struct {
		expr      string
		aggregate string
		op        string
		value     float64
		isTime    bool
		wantErr   bool
	}{
		{expr: "p95 < 500ms", aggregate: "p95", op: "<", value: float64(500 * time.Millisecond), isTime: true},
		{expr: "avg<=1s", aggregate: "avg", op: "<=", value: float64(time.Second), isTime: true},
		{expr: "rate < 0.01", aggregate: "rate", op: "<", value: 0.01},
		{expr: "count > 1000", aggregate: "count", op: ">", value: 1000},
		{expr: "p99.9 < 2s", aggregate: "p99.9", op: "<", value: float64(2 * time.Second), isTime: true},
		{expr: "med == 100ms", aggregate: "med", op: "==", value: float64(100 * time.Millisecond), isTime: true},
		{expr: "p95 < fast", wantErr: true},
		{expr: "stddev < 10ms", wantErr: true},
		{expr: "p95 ~ 500ms", wantErr: true},
		{expr: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			parsed, err := parseThreshold(tt.expr)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseThreshold(%q) succeeded, want error", tt.expr)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseThreshold(%q) error = %v", tt.expr, err)
			}
			if parsed.aggregate != tt.aggregate || parsed.op != tt.op {
				t.Errorf("got %s %s, want %s %s", parsed.aggregate, parsed.op, tt.aggregate, tt.op)
			}
			if parsed.value != tt.value {
				t.Errorf("value = %v, want %v", parsed.value, tt.value)
			}
			if parsed.isTime != tt.isTime {
				t.Errorf("isTime = %v, want %v", parsed.isTime, tt.isTime)
			}
		})
	}
}

func testSnapshot() *metrics.Snapshot {
	return &metrics.Snapshot{
		TotalRequests:   1000,
		SuccessRequests: 995,
		FailedRequests:  5,
		ErrorRate:       0.005,
		ChecksPassed:    98,
		ChecksFailed:    2,
		Latency: metrics.LatencyStats{
			Count: 1000,
			Min:   10 * time.Millisecond,
			Max:   900 * time.Millisecond,
			Mean:  120 * time.Millisecond,
			P50:   100 * time.Millisecond,
			P90:   250 * time.Millisecond,
			P95:   400 * time.Millisecond,
			P99:   800 * time.Millisecond,
		},
	}
}

func TestEvaluateThresholds(t *testing.T) {
	cfg := &config.ThresholdsConfig{
		HTTPReqDuration: []string{"p95 < 500ms", "avg < 100ms"},
		HTTPReqFailed:   []string{"rate < 0.01"},
		HTTPReqs:        []string{"count > 500", "rate > 50"},
		Checks:          []string{"rate > 0.99"},
	}

	results, err := EvaluateThresholds(cfg, testSnapshot(), 10*time.Second)
	if err != nil {
		t.Fatalf("EvaluateThresholds() error = %v", err)
	}
	if len(results) != 6 {
		t.Fatalf("got %d results, want 6", len(results))
	}

	byExpr := make(map[string]ThresholdResult)
	for _, r := range results {
		byExpr[r.Expression] = r
	}

	if !byExpr["p95 < 500ms"].Passed {
		t.Error("p95 < 500ms should pass with p95 = 400ms")
	}
	if byExpr["avg < 100ms"].Passed {
		t.Error("avg < 100ms should fail with avg = 120ms")
	}
	if !byExpr["rate < 0.01"].Passed {
		t.Error("rate < 0.01 should pass with error rate 0.005")
	}
	if !byExpr["count > 500"].Passed {
		t.Error("count > 500 should pass with 1000 requests")
	}
	// 1000 requests over 10s = 100/s
	if !byExpr["rate > 50"].Passed {
		t.Error("rate > 50 should pass at 100 req/s")
	}
	// 98/100 checks = 0.98
	if byExpr["rate > 0.99"].Passed {
		t.Error("checks rate > 0.99 should fail at 0.98")
	}

	if AllPassed(results) {
		t.Error("AllPassed() = true with failing thresholds")
	}
}

func TestEvaluateThresholds_NoConfig(t *testing.T) {
	results, err := EvaluateThresholds(nil, testSnapshot(), time.Second)
	if err != nil {
		t.Fatalf("EvaluateThresholds(nil) error = %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results, want none", len(results))
	}
	if !AllPassed(results) {
		t.Error("AllPassed() should be true with no thresholds")
	}
}

func TestEvaluateThresholds_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.ThresholdsConfig
	}{
		{
			name: "invalid expression",
			cfg:  &config.ThresholdsConfig{HTTPReqDuration: []string{"p95 around 500ms"}},
		},
		{
			name: "count on duration metric",
			cfg:  &config.ThresholdsConfig{HTTPReqDuration: []string{"count > 10"}},
		},
		{
			name: "avg on failure rate metric",
			cfg:  &config.ThresholdsConfig{HTTPReqFailed: []string{"avg < 0.1"}},
		},
		{
			name: "med on request count metric",
			cfg:  &config.ThresholdsConfig{HTTPReqs: []string{"med > 10"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := EvaluateThresholds(tt.cfg, testSnapshot(), time.Second); err == nil {
				t.Error("EvaluateThresholds() succeeded, want error")
			}
		})
	}
}
