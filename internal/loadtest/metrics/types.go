package metrics

import "time"

// Phase represents a phase of the load test.
type Phase string

const (
	// PhaseInit is the initialization phase before any load is generated
	PhaseInit Phase = "init"

	// PhaseRampUp is the ramp-up phase when load is increasing
	PhaseRampUp Phase = "ramp-up"

	// PhaseSteady is the steady-state phase at target load
	PhaseSteady Phase = "steady"

	// PhaseRampDown is the ramp-down phase when load is decreasing
	PhaseRampDown Phase = "ramp-down"

	// PhaseDone indicates the test has completed
	PhaseDone Phase = "done"
)

// Snapshot contains a point-in-time view of all metrics.
type Snapshot struct {
	// TotalRequests is the total number of requests made
	TotalRequests int64 `json:"totalRequests"`

	// SuccessRequests is the number of successful requests (status < 400)
	SuccessRequests int64 `json:"successRequests"`

	// FailedRequests is the number of failed requests
	FailedRequests int64 `json:"failedRequests"`

	// TotalBytes is the total bytes received
	TotalBytes int64 `json:"totalBytes"`

	// Latency contains latency statistics
	Latency LatencyStats `json:"latency"`

	// RPS is the current requests per second
	RPS float64 `json:"rps"`

	// ErrorRate is the fraction of failed requests (0.0 to 1.0)
	ErrorRate float64 `json:"errorRate"`

	// ChecksPassed and ChecksFailed count check outcomes across all requests
	ChecksPassed int64 `json:"checksPassed"`
	ChecksFailed int64 `json:"checksFailed"`

	// ActiveVUs is the current number of active virtual users
	ActiveVUs int `json:"activeVUs"`

	// CurrentPhase is the current test phase
	CurrentPhase Phase `json:"currentPhase"`

	// Elapsed is the time elapsed since collection started
	Elapsed time.Duration `json:"elapsed"`

	// StartTime is when collection started
	StartTime time.Time `json:"startTime"`

	// Timestamp is when this snapshot was taken
	Timestamp time.Time `json:"timestamp"`
}

// CheckRate returns the fraction of passing checks (1.0 when none ran).
func (s *Snapshot) CheckRate() float64 {
	total := s.ChecksPassed + s.ChecksFailed
	if total == 0 {
		return 1.0
	}
	return float64(s.ChecksPassed) / float64(total)
}

// LatencyStats contains latency statistics from the HDR histogram.
type LatencyStats struct {
	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`
	Mean   time.Duration `json:"mean"`
	StdDev time.Duration `json:"stdDev"`
	P50    time.Duration `json:"p50"`
	P90    time.Duration `json:"p90"`
	P95    time.Duration `json:"p95"`
	P99    time.Duration `json:"p99"`
	Count  int64         `json:"count"`
}

// CheckStats contains pass/fail counts for a single named check.
type CheckStats struct {
	Name   string `json:"name"`
	Passed int64  `json:"passed"`
	Failed int64  `json:"failed"`
}

// Rate returns the pass rate for this check.
func (c CheckStats) Rate() float64 {
	total := c.Passed + c.Failed
	if total == 0 {
		return 1.0
	}
	return float64(c.Passed) / float64(total)
}

// Bucket represents metrics for one emission interval (default 1s).
//
// Each bucket captures both cumulative totals and interval deltas, which
// is what the streaming outputs (dashboard, NDJSON, SQLite) consume.
type Bucket struct {
	// Timestamp when this bucket was emitted
	Timestamp time.Time `json:"timestamp"`

	// Cumulative counters since test start
	TotalRequests  int64 `json:"totalRequests"`
	TotalSuccesses int64 `json:"totalSuccesses"`
	TotalFailures  int64 `json:"totalFailures"`
	TotalBytes     int64 `json:"totalBytes"`

	// Interval metrics for this bucket only
	IntervalRequests  int64   `json:"intervalRequests"`
	IntervalRPS       float64 `json:"intervalRPS"`
	IntervalErrorRate float64 `json:"intervalErrorRate"`

	// Latency percentiles at emission time (cumulative histogram)
	LatencyMin time.Duration `json:"latencyMin"`
	LatencyMax time.Duration `json:"latencyMax"`
	LatencyP50 time.Duration `json:"latencyP50"`
	LatencyP90 time.Duration `json:"latencyP90"`
	LatencyP95 time.Duration `json:"latencyP95"`
	LatencyP99 time.Duration `json:"latencyP99"`

	// Active state
	ActiveVUs int   `json:"activeVUs"`
	Phase     Phase `json:"phase"`
}

// CollectorConfig contains configuration for the metrics collector.
type CollectorConfig struct {
	// BucketInterval is the interval for time-series buckets (default: 1s)
	BucketInterval time.Duration

	// MaxBuckets is the maximum number of buckets to retain (default: 3600)
	MaxBuckets int

	// HistogramMin is the minimum recordable latency in microseconds
	HistogramMin int64

	// HistogramMax is the maximum recordable latency in microseconds
	HistogramMax int64

	// HistogramSigFigs is the number of significant figures
	HistogramSigFigs int
}

// DefaultCollectorConfig returns the default configuration: 1s buckets,
// one hour of retained series, 1µs..1h histogram at 3 significant figures.
func DefaultCollectorConfig() CollectorConfig {
	return CollectorConfig{
		BucketInterval:   time.Second,
		MaxBuckets:       3600,
		HistogramMin:     1,
		HistogramMax:     3600000000,
		HistogramSigFigs: 3,
	}
}
