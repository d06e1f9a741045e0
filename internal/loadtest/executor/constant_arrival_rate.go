package executor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gustload/gust/internal/loadtest"
	"github.com/gustload/gust/internal/loadtest/metrics"
	"github.com/gustload/gust/internal/loadtest/rate"
)

// ConstantArrivalRate starts iterations at a fixed rate (open model).
//
// Throughput does not follow response time: iterations start on
// schedule whether or not earlier ones have finished. A pool of VUs
// executes them; when the pool runs dry and iterations back up, the
// executor grows the pool up to MaxVUs. If MaxVUs is also exhausted the
// scheduler falls behind target, which is itself a finding about the
// system under test.
type ConstantArrivalRate struct {
	config    *Config
	scheduler *loadtest.VUScheduler
	collector *metrics.Collector

	bucket *rate.LeakyBucket

	vuPool     chan *loadtest.VirtualUser
	allVUs     []*loadtest.VirtualUser
	currentVUs atomic.Int32
	vuPoolMu   sync.Mutex

	startTime  time.Time
	iterations atomic.Int64
	running    atomic.Bool

	cancelMu   sync.Mutex
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// NewConstantArrivalRate creates a constant arrival rate executor.
func NewConstantArrivalRate() *ConstantArrivalRate {
	return &ConstantArrivalRate{}
}

// Type returns the executor type.
func (e *ConstantArrivalRate) Type() Type {
	return TypeConstantArrivalRate
}

// Init validates the configuration and applies pool defaults.
func (e *ConstantArrivalRate) Init(ctx context.Context, config *Config) error {
	if config.Type != TypeConstantArrivalRate {
		return fmt.Errorf("invalid config type: expected %s, got %s", TypeConstantArrivalRate, config.Type)
	}
	if err := config.Validate(); err != nil {
		return err
	}

	if config.PreAllocatedVUs <= 0 {
		config.PreAllocatedVUs = 1
	}
	if config.MaxVUs < config.PreAllocatedVUs {
		config.MaxVUs = config.PreAllocatedVUs
	}

	e.config = config
	return nil
}

// Run schedules iterations for the configured duration.
func (e *ConstantArrivalRate) Run(ctx context.Context, scheduler *loadtest.VUScheduler, collector *metrics.Collector) error {
	e.scheduler = scheduler
	e.collector = collector
	e.running.Store(true)
	e.startTime = time.Now()

	e.bucket = rate.NewLeakyBucket(e.config.Rate)
	e.vuPool = make(chan *loadtest.VirtualUser, e.config.MaxVUs)
	e.allVUs = make([]*loadtest.VirtualUser, 0, e.config.MaxVUs)

	runCtx, cancel := context.WithTimeout(ctx, e.config.Duration)
	e.cancelMu.Lock()
	e.cancelFunc = cancel
	e.cancelMu.Unlock()
	defer cancel()

	for i := 0; i < e.config.PreAllocatedVUs; i++ {
		vu, err := scheduler.SpawnVU()
		if err != nil {
			cancel()
			return fmt.Errorf("failed to pre-allocate vu: %w", err)
		}
		e.allVUs = append(e.allVUs, vu)
		e.vuPool <- vu
		e.currentVUs.Add(1)
	}

	collector.SetPhase(metrics.PhaseSteady)
	collector.SetActiveVUs(e.config.PreAllocatedVUs)

	e.wg.Add(1)
	go e.iterationScheduler(runCtx)

	<-runCtx.Done()
	e.wg.Wait()

	e.gracefulShutdown()

	collector.SetPhase(metrics.PhaseDone)
	e.running.Store(false)

	return nil
}

// iterationScheduler starts one iteration per leaky-bucket slot.
func (e *ConstantArrivalRate) iterationScheduler(ctx context.Context) {
	defer e.wg.Done()

	for {
		if err := e.bucket.Wait(ctx); err != nil {
			return
		}

		vu := e.acquireVU(ctx)
		if vu == nil {
			return
		}

		e.wg.Add(1)
		go e.runIteration(ctx, vu)
	}
}

// acquireVU takes a pooled VU, growing the pool up to MaxVUs when dry.
func (e *ConstantArrivalRate) acquireVU(ctx context.Context) *loadtest.VirtualUser {
	select {
	case vu := <-e.vuPool:
		return vu
	default:
	}

	e.vuPoolMu.Lock()
	if int(e.currentVUs.Load()) < e.config.MaxVUs {
		vu, err := e.scheduler.SpawnVU()
		if err == nil {
			e.allVUs = append(e.allVUs, vu)
			e.currentVUs.Add(1)
			e.collector.SetActiveVUs(int(e.currentVUs.Load()))
			e.vuPoolMu.Unlock()
			return vu
		}
	}
	e.vuPoolMu.Unlock()

	// At MaxVUs; wait for an in-flight iteration to return one.
	select {
	case <-ctx.Done():
		return nil
	case vu := <-e.vuPool:
		return vu
	}
}

// releaseVU puts a VU back into the pool.
func (e *ConstantArrivalRate) releaseVU(vu *loadtest.VirtualUser) {
	if state := vu.State(); state == loadtest.VUStateStopping || state == loadtest.VUStateStopped {
		return
	}
	select {
	case e.vuPool <- vu:
	default:
	}
}

func (e *ConstantArrivalRate) runIteration(ctx context.Context, vu *loadtest.VirtualUser) {
	defer e.wg.Done()
	defer e.releaseVU(vu)

	_ = vu.RunIteration(ctx)
	e.iterations.Add(1)
}

// gracefulShutdown stops all VUs and waits out the graceful window.
func (e *ConstantArrivalRate) gracefulShutdown() {
	e.vuPoolMu.Lock()
	for _, vu := range e.allVUs {
		vu.RequestStop()
		e.scheduler.ReleaseVU(vu)
	}
	e.vuPoolMu.Unlock()

	graceful := e.config.GracefulStop
	if graceful == 0 {
		graceful = 30 * time.Second
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(graceful):
	}
}

// Progress returns completion from 0.0 to 1.0.
func (e *ConstantArrivalRate) Progress() float64 {
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

// ActiveVUs returns the current pool size.
func (e *ConstantArrivalRate) ActiveVUs() int {
	return int(e.currentVUs.Load())
}

// Stats returns executor statistics.
func (e *ConstantArrivalRate) Stats() *Stats {
	var elapsed time.Duration
	if !e.startTime.IsZero() {
		elapsed = time.Since(e.startTime)
	}
	return &Stats{
		StartTime:     e.startTime,
		Elapsed:       elapsed,
		TotalDuration: e.config.Duration,
		ActiveVUs:     int(e.currentVUs.Load()),
		TargetVUs:     e.config.MaxVUs,
		Iterations:    e.iterations.Load(),
		CurrentRate:   e.config.Rate,
		TargetRate:    e.config.Rate,
	}
}

// Stop ends the executor early.
func (e *ConstantArrivalRate) Stop(ctx context.Context) error {
	e.cancelMu.Lock()
	if e.cancelFunc != nil {
		e.cancelFunc()
	}
	e.cancelMu.Unlock()

	e.gracefulShutdown()
	return nil
}

var _ Executor = (*ConstantArrivalRate)(nil)
