// Package executor provides the load generation strategies: VU-based
// closed-model executors, arrival-rate open-model executors and
// iteration-count executors.
package executor

import (
	"context"
	"time"

	"github.com/gustload/gust/internal/loadtest"
	"github.com/gustload/gust/internal/loadtest/metrics"
)

// Type identifies the type of executor.
type Type string

const (
	// TypeConstantVUs runs a fixed number of VUs for a duration.
	TypeConstantVUs Type = "constant-vus"

	// TypeRampingVUs ramps VU count up and down according to stages.
	TypeRampingVUs Type = "ramping-vus"

	// TypePerVUIterations runs a fixed number of iterations on each VU.
	TypePerVUIterations Type = "per-vu-iterations"

	// TypeSharedIterations shares a total iteration count across VUs.
	TypeSharedIterations Type = "shared-iterations"

	// TypeConstantArrivalRate maintains a fixed iteration start rate.
	TypeConstantArrivalRate Type = "constant-arrival-rate"

	// TypeRampingArrivalRate ramps the iteration start rate through stages.
	TypeRampingArrivalRate Type = "ramping-arrival-rate"
)

// Executor is a load generation strategy.
//
// VU executors (constant-vus, ramping-vus, the iteration executors) run
// a closed model: throughput follows response time. Arrival-rate
// executors run an open model: iterations start on schedule regardless
// of how long they take.
type Executor interface {
	// Type returns the executor type.
	Type() Type

	// Init validates and stores the configuration. Called once before Run.
	Init(ctx context.Context, config *Config) error

	// Run generates load and blocks until the executor completes. It
	// respects context cancellation for early shutdown.
	Run(ctx context.Context, scheduler *loadtest.VUScheduler, collector *metrics.Collector) error

	// Progress returns completion from 0.0 to 1.0.
	Progress() float64

	// ActiveVUs returns the current active VU count.
	ActiveVUs() int

	// Stats returns executor-specific statistics.
	Stats() *Stats

	// Stop ends the executor early, waiting out the graceful-stop window.
	Stop(ctx context.Context) error
}

// Config configures an executor.
type Config struct {
	// Name of the scenario this executor drives
	Name string

	// Type of executor
	Type Type

	// VUs is the VU count for VU-based and iteration executors
	VUs int

	// Duration for constant-vus and constant-arrival-rate
	Duration time.Duration

	// Iterations per VU (per-vu-iterations) or in total (shared-iterations)
	Iterations int64

	// MaxDuration caps the iteration executors
	MaxDuration time.Duration

	// Rate is iterations per second for constant-arrival-rate
	Rate float64

	// PreAllocatedVUs is the initial pool size for arrival-rate executors
	PreAllocatedVUs int

	// MaxVUs caps the pool for arrival-rate executors
	MaxVUs int

	// Stages for the ramping executors
	Stages []Stage

	// GracefulStop is how long to wait for in-flight iterations on stop
	GracefulStop time.Duration
}

// Stage is one segment of a ramping executor: over Duration, ramp
// linearly to Target (VUs for ramping-vus, iterations/s for
// ramping-arrival-rate).
type Stage struct {
	Duration time.Duration
	Target   int
	Name     string
}

// Stats is a point-in-time view of executor state.
type Stats struct {
	StartTime     time.Time     `json:"startTime"`
	Elapsed       time.Duration `json:"elapsed"`
	TotalDuration time.Duration `json:"totalDuration"`

	ActiveVUs int `json:"activeVUs"`
	TargetVUs int `json:"targetVUs"`

	Iterations      int64 `json:"iterations"`
	TotalIterations int64 `json:"totalIterations"`

	CurrentStage     int    `json:"currentStage"`
	CurrentStageName string `json:"currentStageName,omitempty"`
	TotalStages      int    `json:"totalStages"`

	CurrentRate float64 `json:"currentRate"`
	TargetRate  float64 `json:"targetRate"`
}

// Validate checks the configuration for the configured type.
func (c *Config) Validate() error {
	if c.Type == "" {
		return &ValidationError{Field: "type", Message: "executor type is required"}
	}

	switch c.Type {
	case TypeConstantVUs:
		if c.VUs <= 0 {
			return &ValidationError{Field: "vus", Message: "vus must be > 0"}
		}
		if c.Duration <= 0 {
			return &ValidationError{Field: "duration", Message: "duration must be > 0"}
		}

	case TypeRampingVUs, TypeRampingArrivalRate:
		if len(c.Stages) == 0 {
			return &ValidationError{Field: "stages", Message: "at least one stage is required"}
		}
		for _, stage := range c.Stages {
			if stage.Duration <= 0 {
				return &ValidationError{Field: "stages", Message: "stage duration must be > 0"}
			}
			if stage.Target < 0 {
				return &ValidationError{Field: "stages", Message: "stage target must be >= 0"}
			}
		}

	case TypePerVUIterations, TypeSharedIterations:
		if c.VUs <= 0 {
			return &ValidationError{Field: "vus", Message: "vus must be > 0"}
		}
		if c.Iterations <= 0 {
			return &ValidationError{Field: "iterations", Message: "iterations must be > 0"}
		}

	case TypeConstantArrivalRate:
		if c.Rate <= 0 {
			return &ValidationError{Field: "rate", Message: "rate must be > 0"}
		}
		if c.Duration <= 0 {
			return &ValidationError{Field: "duration", Message: "duration must be > 0"}
		}

	default:
		return &ValidationError{Field: "type", Message: "unknown executor type: " + string(c.Type)}
	}

	return nil
}

// TotalDuration returns the scheduled duration, or the max-duration cap
// for the iteration executors.
func (c *Config) TotalDuration() time.Duration {
	switch c.Type {
	case TypeConstantVUs, TypeConstantArrivalRate:
		return c.Duration

	case TypeRampingVUs, TypeRampingArrivalRate:
		var total time.Duration
		for _, stage := range c.Stages {
			total += stage.Duration
		}
		return total

	case TypePerVUIterations, TypeSharedIterations:
		return c.MaxDuration

	default:
		return 0
	}
}

// ValidationError is a configuration validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "validation error on field '" + e.Field + "': " + e.Message
}
