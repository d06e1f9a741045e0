package runner

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gustload/gust/internal/config"
	"github.com/gustload/gust/internal/loadtest/metrics"
)

// ThresholdResult is the evaluated outcome of one threshold expression.
type ThresholdResult struct {
	// Metric the threshold applies to (http_req_duration, http_req_failed,
	// http_reqs, checks)
	Metric string `json:"metric"`

	// Expression as written in the configuration
	Expression string `json:"expression"`

	// Value the metric actually had
	Value float64 `json:"value"`

	// ValueText is the value formatted in the metric's natural unit
	ValueText string `json:"valueText"`

	// Passed reports whether the threshold held
	Passed bool `json:"passed"`
}

// thresholdExpr is a parsed "aggregate op value" expression, e.g.
// "p95 < 500ms" or "rate > 0.99".
type thresholdExpr struct {
	aggregate string
	op        string
	value     float64
	isTime    bool
}

var thresholdPattern = regexp.MustCompile(`^\s*(avg|min|max|med|p\d{1,2}(?:\.\d+)?|rate|count)\s*(<=|>=|<|>|==)\s*(\S+)\s*$`)

// parseThreshold parses a threshold expression string.
func parseThreshold(expr string) (*thresholdExpr, error) {
	m := thresholdPattern.FindStringSubmatch(expr)
	if m == nil {
		return nil, fmt.Errorf("invalid threshold expression: %q", expr)
	}

	parsed := &thresholdExpr{aggregate: m[1], op: m[2]}

	raw := m[3]
	if d, err := time.ParseDuration(raw); err == nil && hasTimeUnit(raw) {
		parsed.value = float64(d)
		parsed.isTime = true
		return parsed, nil
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid threshold value %q in %q", raw, expr)
	}
	parsed.value = v
	return parsed, nil
}

func hasTimeUnit(s string) bool {
	for _, unit := range []string{"ns", "us", "µs", "ms", "s", "m", "h"} {
		if strings.HasSuffix(s, unit) {
			return true
		}
	}
	return false
}

func (t *thresholdExpr) compare(actual float64) bool {
	switch t.op {
	case "<":
		return actual < t.value
	case "<=":
		return actual <= t.value
	case ">":
		return actual > t.value
	case ">=":
		return actual >= t.value
	case "==":
		return actual == t.value
	default:
		return false
	}
}

// EvaluateThresholds evaluates all configured thresholds against the
// final metrics. An empty result means no thresholds were configured.
func EvaluateThresholds(cfg *config.ThresholdsConfig, snapshot *metrics.Snapshot, elapsed time.Duration) ([]ThresholdResult, error) {
	if cfg == nil {
		return nil, nil
	}

	var results []ThresholdResult

	for _, expr := range cfg.HTTPReqDuration {
		r, err := evaluateDurationThreshold(expr, snapshot.Latency)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}

	for _, expr := range cfg.HTTPReqFailed {
		r, err := evaluateRateThreshold("http_req_failed", expr, snapshot.ErrorRate)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}

	for _, expr := range cfg.HTTPReqs {
		r, err := evaluateCountThreshold(expr, snapshot.TotalRequests, elapsed)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}

	for _, expr := range cfg.Checks {
		r, err := evaluateRateThreshold("checks", expr, snapshot.CheckRate())
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}

	return results, nil
}

func evaluateDurationThreshold(expr string, latency metrics.LatencyStats) (ThresholdResult, error) {
	parsed, err := parseThreshold(expr)
	if err != nil {
		return ThresholdResult{}, err
	}

	var actual time.Duration
	switch parsed.aggregate {
	case "avg":
		actual = latency.Mean
	case "min":
		actual = latency.Min
	case "max":
		actual = latency.Max
	case "med", "p50":
		actual = latency.P50
	case "p90":
		actual = latency.P90
	case "p95":
		actual = latency.P95
	case "p99":
		actual = latency.P99
	default:
		return ThresholdResult{}, fmt.Errorf("unsupported aggregate %q for http_req_duration", parsed.aggregate)
	}

	return ThresholdResult{
		Metric:     "http_req_duration",
		Expression: expr,
		Value:      float64(actual),
		ValueText:  actual.Round(time.Millisecond).String(),
		Passed:     parsed.compare(float64(actual)),
	}, nil
}

func evaluateRateThreshold(metric, expr string, actual float64) (ThresholdResult, error) {
	parsed, err := parseThreshold(expr)
	if err != nil {
		return ThresholdResult{}, err
	}
	if parsed.aggregate != "rate" {
		return ThresholdResult{}, fmt.Errorf("unsupported aggregate %q for %s", parsed.aggregate, metric)
	}

	return ThresholdResult{
		Metric:     metric,
		Expression: expr,
		Value:      actual,
		ValueText:  fmt.Sprintf("%.2f%%", actual*100),
		Passed:     parsed.compare(actual),
	}, nil
}

func evaluateCountThreshold(expr string, total int64, elapsed time.Duration) (ThresholdResult, error) {
	parsed, err := parseThreshold(expr)
	if err != nil {
		return ThresholdResult{}, err
	}

	var actual float64
	var text string
	switch parsed.aggregate {
	case "count":
		actual = float64(total)
		text = strconv.FormatInt(total, 10)
	case "rate":
		if elapsed.Seconds() > 0 {
			actual = float64(total) / elapsed.Seconds()
		}
		text = fmt.Sprintf("%.1f/s", actual)
	default:
		return ThresholdResult{}, fmt.Errorf("unsupported aggregate %q for http_reqs", parsed.aggregate)
	}

	return ThresholdResult{
		Metric:     "http_reqs",
		Expression: expr,
		Value:      actual,
		ValueText:  text,
		Passed:     parsed.compare(actual),
	}, nil
}

// AllPassed reports whether every threshold held.
func AllPassed(results []ThresholdResult) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}
