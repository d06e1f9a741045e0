package executor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/gustload/gust/internal/loadtest"
	"github.com/gustload/gust/internal/loadtest/metrics"
)

// rampTick is how often the controller re-evaluates the VU target.
const rampTick = 100 * time.Millisecond

// RampingVUs adjusts the VU count through stages, interpolating linearly
// within each stage so the ramp is smooth rather than step-wise.
//
// Typical shape: ramp up over 30s to N, hold for a few minutes, ramp
// back down to 0. The metrics phase follows the ramp direction so
// time-series consumers can tell warm-up samples from steady state.
type RampingVUs struct {
	config    *Config
	scheduler *loadtest.VUScheduler
	collector *metrics.Collector
	logger    *zap.Logger

	startTime    time.Time
	activeVUs    atomic.Int32
	targetVUs    atomic.Int32
	iterations   atomic.Int64
	currentStage atomic.Int32
	running      atomic.Bool

	cancelMu   sync.Mutex
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup

	vus   []*loadtest.VirtualUser
	vusMu sync.Mutex
}

// NewRampingVUs creates a ramping VUs executor.
func NewRampingVUs() *RampingVUs {
	return &RampingVUs{logger: zap.NewNop()}
}

// SetLogger replaces the executor's logger.
func (e *RampingVUs) SetLogger(logger *zap.Logger) {
	if logger != nil {
		e.logger = logger
	}
}

// Type returns the executor type.
func (e *RampingVUs) Type() Type {
	return TypeRampingVUs
}

// Init validates and stores the configuration.
func (e *RampingVUs) Init(ctx context.Context, config *Config) error {
	if config.Type != TypeRampingVUs {
		return fmt.Errorf("invalid config type: expected %s, got %s", TypeRampingVUs, config.Type)
	}
	if err := config.Validate(); err != nil {
		return err
	}
	e.config = config
	return nil
}

// Run drives the stages and blocks until all of them complete.
func (e *RampingVUs) Run(ctx context.Context, scheduler *loadtest.VUScheduler, collector *metrics.Collector) error {
	e.scheduler = scheduler
	e.collector = collector
	e.running.Store(true)
	e.startTime = time.Now()

	runCtx, cancel := context.WithTimeout(ctx, e.config.TotalDuration())
	e.cancelMu.Lock()
	e.cancelFunc = cancel
	e.cancelMu.Unlock()
	defer cancel()

	controllerDone := make(chan struct{})
	go func() {
		e.vuController(runCtx)
		close(controllerDone)
	}()

	<-runCtx.Done()
	<-controllerDone

	e.gracefulShutdown()

	collector.SetPhase(metrics.PhaseDone)
	e.running.Store(false)

	return nil
}

// vuController re-targets the VU count every tick.
func (e *RampingVUs) vuController(ctx context.Context) {
	ticker := time.NewTicker(rampTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			target := e.targetAt(time.Since(e.startTime))
			e.targetVUs.Store(int32(target))
			e.adjustVUs(ctx, target)
			e.updatePhase()
		}
	}
}

// targetAt computes the interpolated VU target for an elapsed time.
func (e *RampingVUs) targetAt(elapsed time.Duration) int {
	var stageStart time.Duration
	prevTarget := 0

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

			target := float64(prevTarget) + float64(stage.Target-prevTarget)*stageProgress
			return int(target + 0.5)
		}

		prevTarget = stage.Target
		stageStart = stageEnd
	}

	// Past all stages
	return e.config.Stages[len(e.config.Stages)-1].Target
}

// adjustVUs spawns or stops VUs to hit the target.
func (e *RampingVUs) adjustVUs(ctx context.Context, target int) {
	e.vusMu.Lock()
	defer e.vusMu.Unlock()

	current := len(e.vus)

	switch {
	case target > current:
		for i := current; i < target; i++ {
			vu, err := e.scheduler.SpawnVU()
			if err != nil {
				e.logger.Warn("failed to spawn vu during ramp", zap.Error(err))
				return
			}
			e.vus = append(e.vus, vu)
			e.wg.Add(1)
			go e.runVU(ctx, vu)
		}
	case target < current:
		// Stop from the end so long-lived VUs keep their sessions warm.
		for i := current - 1; i >= target; i-- {
			e.vus[i].RequestStop()
		}
		e.vus = e.vus[:target]
	}

	e.collector.SetActiveVUs(target)
}

// updatePhase stamps the metrics phase from the current ramp direction.
func (e *RampingVUs) updatePhase() {
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

// runVU loops iterations on one VU until it is stopped.
func (e *RampingVUs) runVU(ctx context.Context, vu *loadtest.VirtualUser) {
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
		}

		e.iterations.Add(1)
		vu.ApplySleep(ctx)
	}
}

// gracefulShutdown stops all VUs and waits out the graceful window.
func (e *RampingVUs) gracefulShutdown() {
	e.vusMu.Lock()
	for _, vu := range e.vus {
		vu.RequestStop()
	}
	e.vusMu.Unlock()

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
func (e *RampingVUs) Progress() float64 {
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

// ActiveVUs returns the current active VU count.
func (e *RampingVUs) ActiveVUs() int {
	return int(e.activeVUs.Load())
}

// Stats returns executor statistics.
func (e *RampingVUs) Stats() *Stats {
	var elapsed time.Duration
	if !e.startTime.IsZero() {
		elapsed = time.Since(e.startTime)
	}

	stageIdx := int(e.currentStage.Load())
	stageName := ""
	if stageIdx < len(e.config.Stages) {
		stageName = e.config.Stages[stageIdx].Name
	}

	return &Stats{
		StartTime:        e.startTime,
		Elapsed:          elapsed,
		TotalDuration:    e.config.TotalDuration(),
		ActiveVUs:        int(e.activeVUs.Load()),
		TargetVUs:        int(e.targetVUs.Load()),
		Iterations:       e.iterations.Load(),
		CurrentStage:     stageIdx,
		CurrentStageName: stageName,
		TotalStages:      len(e.config.Stages),
	}
}

// Stop ends the executor early.
func (e *RampingVUs) Stop(ctx context.Context) error {
	e.cancelMu.Lock()
	if e.cancelFunc != nil {
		e.cancelFunc()
	}
	e.cancelMu.Unlock()

	e.gracefulShutdown()
	return nil
}

var _ Executor = (*RampingVUs)(nil)
