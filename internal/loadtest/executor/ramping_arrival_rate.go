package executor

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gustload/gust/internal/loadtest"
	"github.com/gustload/gust/internal/loadtest/metrics"
	"github.com/gustload/gust/internal/loadtest/rate"
)

// RampingArrivalRate ramps the iteration start rate through stages
// (open model).
//
// A controller recomputes the interpolated target rate every tick and
// pushes it into the leaky bucket, so the rate moves smoothly rather
// than jumping at stage boundaries. The VU pool grows on demand up to
// MaxVUs, same as ConstantArrivalRate.
type RampingArrivalRate struct {
	config    *Config
	scheduler *loadtest.VUScheduler
	collector *metrics.Collector

	bucket *rate.LeakyBucket

	vuPool     chan *loadtest.VirtualUser
	allVUs     []*loadtest.VirtualUser
	currentVUs atomic.Int32
	vuPoolMu   sync.Mutex

	startTime    time.Time
	iterations   atomic.Int64
	currentStage atomic.Int32
	currentRate  atomic.Uint64 // float64 bits
	running      atomic.Bool

	cancelMu   sync.Mutex
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// NewRampingArrivalRate creates a ramping arrival rate executor.
func NewRampingArrivalRate() *RampingArrivalRate {
	return &RampingArrivalRate{}
}

// Type returns the executor type.
func (e *RampingArrivalRate) Type() Type {
	return TypeRampingArrivalRate
}

// Init validates the configuration and applies pool defaults.
func (e *RampingArrivalRate) Init(ctx context.Context, config *Config) error {
	if config.Type != TypeRampingArrivalRate {
		return fmt.Errorf("invalid config type: expected %s, got %s", TypeRampingArrivalRate, config.Type)
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

// Run drives the rate stages and blocks until all of them complete.
func (e *RampingArrivalRate) Run(ctx context.Context, scheduler *loadtest.VUScheduler, collector *metrics.Collector) error {
	e.scheduler = scheduler
	e.collector = collector
	e.running.Store(true)
	e.startTime = time.Now()

	startRate := e.rateAt(0)
	if startRate <= 0 {
		startRate = 0.001 // bucket clamps 0; start effectively idle
	}
	e.bucket = rate.NewLeakyBucket(startRate)
	e.storeRate(startRate)

	e.vuPool = make(chan *loadtest.VirtualUser, e.config.MaxVUs)
	e.allVUs = make([]*loadtest.VirtualUser, 0, e.config.MaxVUs)

	runCtx, cancel := context.WithTimeout(ctx, e.config.TotalDuration())
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

	collector.SetActiveVUs(e.config.PreAllocatedVUs)

	e.wg.Add(1)
	go e.rateController(runCtx)

	e.wg.Add(1)
	go e.iterationScheduler(runCtx)

	<-runCtx.Done()
	e.wg.Wait()

	e.gracefulShutdown()

	collector.SetPhase(metrics.PhaseDone)
	e.running.Store(false)

	return nil
}

// rateController re-targets the bucket rate every tick.
func (e *RampingArrivalRate) rateController(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(rampTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			target := e.rateAt(time.Since(e.startTime))
			if target <= 0 {
				target = 0.001
			}
			if target != e.loadRate() {
				e.bucket.SetRate(target)
				e.storeRate(target)
			}
			e.updatePhase()
		}
	}
}

// rateAt computes the interpolated target rate for an elapsed time.
func (e *RampingArrivalRate) rateAt(elapsed time.Duration) float64 {
	var stageStart time.Duration
	prevTarget := 0.0

	for i, stage := range e.config.Stages {
		stageEnd := stageStart + stage.Duration

		if elapsed < stageEnd {
			e.currentStage.Store(int32(i))

			stageProgress := float64(elapsed-stageStart) / float64(stage.Duration)
			if stageProgress < 0 {
				stageProgress = 0
			}
			if stageProgress > 1 {
				stageProgress = 1
			}

			return prevTarget + (float64(stage.Target)-prevTarget)*stageProgress
		}

		prevTarget = float64(stage.Target)
		stageStart = stageEnd
	}

	return float64(e.config.Stages[len(e.config.Stages)-1].Target)
}

// updatePhase stamps the metrics phase from the current ramp direction.
func (e *RampingArrivalRate) updatePhase() {
	stageIdx := int(e.currentStage.Load())
	if stageIdx >= len(e.config.Stages) {
		return
	}

	stage := e.config.Stages[stageIdx]
	prevTarget := 0
	if stageIdx > 0 {
		prevTarget = e.config.Stages[stageIdx-1].Target
	}

	switch {
	case stage.Target > prevTarget:
		e.collector.SetPhase(metrics.PhaseRampUp)
	case stage.Target < prevTarget:
		e.collector.SetPhase(metrics.PhaseRampDown)
	default:
		e.collector.SetPhase(metrics.PhaseSteady)
	}
}

// iterationScheduler starts one iteration per leaky-bucket slot.
func (e *RampingArrivalRate) iterationScheduler(ctx context.Context) {
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
func (e *RampingArrivalRate) acquireVU(ctx context.Context) *loadtest.VirtualUser {
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

	select {
	case <-ctx.Done():
		return nil
	case vu := <-e.vuPool:
		return vu
	}
}

func (e *RampingArrivalRate) releaseVU(vu *loadtest.VirtualUser) {
	if state := vu.State(); state == loadtest.VUStateStopping || state == loadtest.VUStateStopped {
		return
	}
	select {
	case e.vuPool <- vu:
	default:
	}
}

func (e *RampingArrivalRate) runIteration(ctx context.Context, vu *loadtest.VirtualUser) {
	defer e.wg.Done()
	defer e.releaseVU(vu)

	_ = vu.RunIteration(ctx)
	e.iterations.Add(1)
}

// gracefulShutdown stops all VUs and waits out the graceful window.
func (e *RampingArrivalRate) gracefulShutdown() {
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

func (e *RampingArrivalRate) storeRate(r float64) {
	e.currentRate.Store(math.Float64bits(r))
}

func (e *RampingArrivalRate) loadRate() float64 {
	return math.Float64frombits(e.currentRate.Load())
}

// Progress returns completion from 0.0 to 1.0.
func (e *RampingArrivalRate) Progress() float64 {
	if !e.running.Load() {
		if e.startTime.IsZero() {
			return 0.0
		}
		return 1.0
	}

	total := e.config.TotalDuration()
	if total == 0 {
		return 1.0
	}
	progress := float64(time.Since(e.startTime)) / float64(total)
	if progress > 1.0 {
		progress = 1.0
	}
	return progress
}

// ActiveVUs returns the current pool size.
func (e *RampingArrivalRate) ActiveVUs() int {
	return int(e.currentVUs.Load())
}

// Stats returns executor statistics.
func (e *RampingArrivalRate) Stats() *Stats {
	var elapsed time.Duration
	if !e.startTime.IsZero() {
		elapsed = time.Since(e.startTime)
	}

	stageIdx := int(e.currentStage.Load())
	stageName := ""
	targetRate := 0.0
	if stageIdx < len(e.config.Stages) {
		stageName = e.config.Stages[stageIdx].Name
		targetRate = float64(e.config.Stages[stageIdx].Target)
	}

	return &Stats{
		StartTime:        e.startTime,
		Elapsed:          elapsed,
		TotalDuration:    e.config.TotalDuration(),
		ActiveVUs:        int(e.currentVUs.Load()),
		TargetVUs:        e.config.MaxVUs,
		Iterations:       e.iterations.Load(),
		CurrentStage:     stageIdx,
		CurrentStageName: stageName,
		TotalStages:      len(e.config.Stages),
		CurrentRate:      e.loadRate(),
		TargetRate:       targetRate,
	}
}

// Stop ends the executor early.
func (e *RampingArrivalRate) Stop(ctx context.Context) error {
	e.cancelMu.Lock()
	if e.cancelFunc != nil {
		e.cancelFunc()
	}
	e.cancelMu.Unlock()

	e.gracefulShutdown()
	return nil
}

var _ Executor = (*RampingArrivalRate)(nil)
