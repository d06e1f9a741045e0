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

// PerVUIterations runs exactly N iterations on each of M VUs.
//
// Every VU gets the same amount of work, so the total is always
// VUs * Iterations. MaxDuration caps the run in case the target is too
// slow to ever finish. Useful when each VU carries per-user state (a
// session, uploaded fixtures) that each iteration builds on.
type PerVUIterations struct {
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

// NewPerVUIterations creates a per-VU iterations executor.
func NewPerVUIterations() *PerVUIterations {
	return &PerVUIterations{}
}

// Type returns the executor type.
func (e *PerVUIterations) Type() Type {
	return TypePerVUIterations
}

// Init validates and stores the configuration.
func (e *PerVUIterations) Init(ctx context.Context, config *Config) error {
	if config.Type != TypePerVUIterations {
		return fmt.Errorf("invalid config type: expected %s, got %s", TypePerVUIterations, config.Type)
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

// Run spawns the VUs and blocks until every VU has finished its share
// or MaxDuration expires.
func (e *PerVUIterations) Run(ctx context.Context, scheduler *loadtest.VUScheduler, collector *metrics.Collector) error {
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

// runVU runs exactly Iterations iterations, then exits.
func (e *PerVUIterations) runVU(ctx context.Context, vu *loadtest.VirtualUser) {
	defer e.wg.Done()
	defer e.scheduler.ReleaseVU(vu)

	e.activeVUs.Add(1)
	defer e.activeVUs.Add(-1)

	for i := int64(0); i < e.config.Iterations; i++ {
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
		}

		e.iterations.Add(1)

		if i < e.config.Iterations-1 {
			vu.ApplySleep(ctx)
		}
	}
}

// Progress returns completed iterations over the total.
func (e *PerVUIterations) Progress() float64 {
	total := int64(e.config.VUs) * e.config.Iterations
	if total == 0 {
		return 0.0
	}
	progress := float64(e.iterations.Load()) / float64(total)
	if progress > 1.0 {
		progress = 1.0
	}
	return progress
}

// ActiveVUs returns the current active VU count.
func (e *PerVUIterations) ActiveVUs() int {
	return int(e.activeVUs.Load())
}

// Stats returns executor statistics.
func (e *PerVUIterations) Stats() *Stats {
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
		Iterations:      e.iterations.Load(),
		TotalIterations: int64(e.config.VUs) * e.config.Iterations,
	}
}

// Stop ends the executor early.
func (e *PerVUIterations) Stop(ctx context.Context) error {
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

var _ Executor = (*PerVUIterations)(nil)
