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

// ConstantVUs runs a fixed number of VUs for a duration.
//
// Each VU loops iterations as fast as the target allows (closed model),
// with the scenario's sleep between iterations. The simplest executor;
// good for soak tests and finding the throughput of N concurrent users.
type ConstantVUs struct {
	config    *Config
	scheduler *loadtest.VUScheduler
	collector *metrics.Collector

	startTime  time.Time
	activeVUs  atomic.Int32
	iterations atomic.Int64
	running    atomic.Bool

	cancelMu   sync.Mutex
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// NewConstantVUs creates a constant VUs executor.
func NewConstantVUs() *ConstantVUs {
	return &ConstantVUs{}
}

// Type returns the executor type.
func (e *ConstantVUs) Type() Type {
	return TypeConstantVUs
}

// Init validates and stores the configuration.
func (e *ConstantVUs) Init(ctx context.Context, config *Config) error {
	if config.Type != TypeConstantVUs {
		return fmt.Errorf("invalid config type: expected %s, got %s", TypeConstantVUs, config.Type)
	}
	if err := config.Validate(); err != nil {
		return err
	}
	e.config = config
	return nil
}

// Run spawns the VUs and blocks until the duration expires.
func (e *ConstantVUs) Run(ctx context.Context, scheduler *loadtest.VUScheduler, collector *metrics.Collector) error {
	e.scheduler = scheduler
	e.collector = collector
	e.running.Store(true)
	e.startTime = time.Now()

	runCtx, cancel := context.WithTimeout(ctx, e.config.Duration)
	e.cancelMu.Lock()
	e.cancelFunc = cancel
	e.cancelMu.Unlock()
	defer cancel()

	collector.SetPhase(metrics.PhaseSteady)

	for i := 0; i < e.config.VUs; i++ {
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

// runVU loops iterations on one VU until the context ends.
func (e *ConstantVUs) runVU(ctx context.Context, vu *loadtest.VirtualUser) {
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

		if err := vu.RunIteration(ctx); err != nil {
			if ctx.Err() != nil || vu.State() == loadtest.VUStateStopping {
				return
			}
			// Iteration errors are recorded in metrics; keep going.
		}

		e.iterations.Add(1)
		vu.ApplySleep(ctx)
	}
}

// Progress returns completion from 0.0 to 1.0.
func (e *ConstantVUs) Progress() float64 {
	if !e.running.Load() {
		if e.startTime.IsZero() {
			return 0.0
		}
		return 1.0
	}
	progress := float64(time.Since(e.startTime)) / float64(e.config.Duration)
	if progress > 1.0 {
		progress = 1.0
	}
	return progress
}

// ActiveVUs returns the current active VU count.
func (e *ConstantVUs) ActiveVUs() int {
	return int(e.activeVUs.Load())
}

// Stats returns executor statistics.
func (e *ConstantVUs) Stats() *Stats {
	var elapsed time.Duration
	if !e.startTime.IsZero() {
		elapsed = time.Since(e.startTime)
	}
	return &Stats{
		StartTime:     e.startTime,
		Elapsed:       elapsed,
		TotalDuration: e.config.Duration,
		ActiveVUs:     int(e.activeVUs.Load()),
		TargetVUs:     e.config.VUs,
		Iterations:    e.iterations.Load(),
	}
}

// Stop ends the executor early.
func (e *ConstantVUs) Stop(ctx context.Context) error {
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

var _ Executor = (*ConstantVUs)(nil)
