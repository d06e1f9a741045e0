package executor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gustload/gust/internal/loadtest"
	"github.com/gustload/gust/internal/loadtest/metrics"
)

// SharedIterations divides a total iteration count among the VUs.
//
// VUs claim iterations from a shared counter, so fast VUs do more work
// than slow ones and the run ends as soon as the total is reached.
// Exactly Iterations iterations run in total regardless of VU count,
// which makes it the right executor for "process this batch as fast as
// N workers can" style tests.
type SharedIterations struct {
	config    *Config
	scheduler *loadtest.VUScheduler
	collector *metrics.Collector

	startTime time.Time
	activeVUs atomic.Int32
	claimed   atomic.Int64
	completed atomic.Int64
	running   atomic.Bool

	cancelMu   sync.Mutex
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// NewSharedIterations creates a shared iterations executor.
func NewSharedIterations() *SharedIterations {
	return &SharedIterations{}
}

// Type returns the executor type.
func (e *SharedIterations) Type() Type {
	return TypeSharedIterations
}

// Init validates and stores the configuration.
func (e *SharedIterations) Init(ctx context.Context, config *Config) error {
	if config.Type != TypeSharedIterations {
		return fmt.Errorf("invalid config type: expected %s, got %s", TypeSharedIterations, config.Type)
	}
	if err := config.Validate(); err != nil {
		return err
	}
	if config.MaxDuration <= 0 {
		config.MaxDuration = 10 * time.Minute
	}
	e.config = config
	return nil
}

// Run spawns the VUs and blocks until the shared counter is exhausted
// or MaxDuration expires.
func (e *SharedIterations) Run(ctx context.Context, scheduler *loadtest.VUScheduler, collector *metrics.Collector) error {
	e.scheduler = scheduler
	e.collector = collector
	e.running.Store(true)
	e.startTime = time.Now()

	runCtx, cancel := context.WithTimeout(ctx, e.config.MaxDuration)
	e.cancelMu.Lock()
	e.cancelFunc = cancel
	e.cancelMu.Unlock()
	defer cancel()

	collector.SetPhase(metrics.PhaseSteady)

	vus := e.config.VUs
	if int64(vus) > e.config.Iterations {
		// No point spawning VUs that could never claim an iteration.
		vus = int(e.config.Iterations)
	}

	for i := 0; i < vus; i++ {
		vu, err := scheduler.SpawnVU()
		if err != nil {
			cancel()
			return fmt.Errorf("failed to spawn vu: %w", err)
		}
		e.wg.Add(1)
		go e.runVU(runCtx, vu)
	}

	e.wg.Wait()

	collector.SetPhase(metrics.PhaseDone)
	e.running.Store(false)

	return nil
}

// runVU claims iterations from the shared counter until none are left.
func (e *SharedIterations) runVU(ctx context.Context, vu *loadtest.VirtualUser) {
	defer e.wg.Done()
	defer e.scheduler.ReleaseVU(vu)

	e.activeVUs.Add(1)
	defer e.activeVUs.Add(-1)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if state := vu.State(); state == loadtest.VUStateStopping || state == loadtest.VUStateStopped {
			return
		}

		// Claim before running so two VUs never run the same iteration.
		if e.claimed.Add(1) > e.config.Iterations {
			return
		}

		if err := vu.RunIteration(ctx); err != nil {
			if ctx.Err() != nil || vu.State() == loadtest.VUStateStopping {
				return
			}
		}

		e.completed.Add(1)
		vu.ApplySleep(ctx)
	}
}

// Progress returns completed iterations over the total.
func (e *SharedIterations) Progress() float64 {
	if e.config.Iterations == 0 {
		return 0.0
	}
	progress := float64(e.completed.Load()) / float64(e.config.Iterations)
	if progress > 1.0 {
		progress = 1.0
	}
	return progress
}

// ActiveVUs returns the current active VU count.
func (e *SharedIterations) ActiveVUs() int {
	return int(e.activeVUs.Load())
}

// Stats returns executor statistics.
func (e *SharedIterations) Stats() *Stats {
	var elapsed time.Duration
	if !e.startTime.IsZero() {
		elapsed = time.Since(e.startTime)
	}
	return &Stats{
		StartTime:       e.startTime,
		Elapsed:         elapsed,
		TotalDuration:   e.config.MaxDuration,
		ActiveVUs:       int(e.activeVUs.Load()),
		TargetVUs:       e.config.VUs,
		Iterations:      e.completed.Load(),
		TotalIterations: e.config.Iterations,
	}
}

// Stop ends the executor early.
func (e *SharedIterations) Stop(ctx context.Context) error {
	e.cancelMu.Lock()
	if e.cancelFunc != nil {
		e.cancelFunc()
	}
	e.cancelMu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	graceful := e.config.GracefulStop
	if graceful == 0 {
		graceful = 30 * time.Second
	}

	select {
	case <-done:
		return nil
	case <-time.After(graceful):
		return fmt.Errorf("graceful stop timeout after %v", graceful)
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ Executor = (*SharedIterations)(nil)
