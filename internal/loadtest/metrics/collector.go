// Package metrics collects latency, throughput and check results for a
// running load test using HDR histograms and 1-second time buckets.
package metrics

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Collector aggregates load-test measurements.
//
// Latency goes into HDR histograms (overall and per request name) for
// O(1) percentile queries; request and check totals use atomic counters;
// a background emitter turns the current state into a Bucket every
// interval so outputs can stream a continuous time series even when no
// requests complete.
//
// Collector is safe for concurrent use from all VU goroutines.
type Collector struct {
	latencyHist   *hdrhistogram.Histogram
	latencyHistMu sync.Mutex

	requestHists   map[string]*hdrhistogram.Histogram
	requestHistsMu sync.RWMutex

	checks   map[string]*checkCounter
	checksMu sync.RWMutex

	totalRequests   atomic.Int64
	successRequests atomic.Int64
	failedRequests  atomic.Int64
	totalBytes      atomic.Int64
	checksPassed    atomic.Int64
	checksFailed    atomic.Int64

	activeVUs atomic.Int32

	store *bucketStore

	currentPhase Phase
	phaseMu      sync.RWMutex

	// onEmit is invoked with every emitted bucket (outputs subscribe here)
	onEmit   func(*Bucket)
	onEmitMu sync.RWMutex

	startTime time.Time

	emitterCtx    context.Context
	emitterCancel context.CancelFunc
	emitterWg     sync.WaitGroup

	config CollectorConfig
}

type checkCounter struct {
	passed atomic.Int64
	failed atomic.Int64
}

// NewCollector creates a collector with default configuration and starts
// its background bucket emitter. Call Stop when the run ends.
func NewCollector() *Collector {
	return NewCollectorWithConfig(DefaultCollectorConfig())
}

// NewCollectorWithConfig creates a collector with custom configuration.
func NewCollectorWithConfig(config CollectorConfig) *Collector {
	ctx, cancel := context.WithCancel(context.Background())

	c := &Collector{
		latencyHist:   hdrhistogram.New(config.HistogramMin, config.HistogramMax, config.HistogramSigFigs),
		requestHists:  make(map[string]*hdrhistogram.Histogram),
		checks:        make(map[string]*checkCounter),
		store:         newBucketStore(config.MaxBuckets),
		currentPhase:  PhaseInit,
		startTime:     time.Now(),
		emitterCtx:    ctx,
		emitterCancel: cancel,
		config:        config,
	}

	c.emitterWg.Add(1)
	go c.runEmitter()

	return c
}

// RecordRequest records one completed HTTP request.
//
// success means no transport error and status < 400. bytes is the
// response body size.
func (c *Collector) RecordRequest(duration time.Duration, requestName string, success bool, bytes int64) {
	micros := duration.Microseconds()
	if micros < c.config.HistogramMin {
		micros = c.config.HistogramMin
	}
	if micros > c.config.HistogramMax {
		micros = c.config.HistogramMax
	}

	// hdrhistogram.RecordValue is not thread-safe
	c.latencyHistMu.Lock()
	c.latencyHist.RecordValue(micros)
	c.latencyHistMu.Unlock()

	if requestName != "" {
		c.requestHistsMu.Lock()
		hist, ok := c.requestHists[requestName]
		if !ok {
			hist = hdrhistogram.New(c.config.HistogramMin, c.config.HistogramMax, c.config.HistogramSigFigs)
			c.requestHists[requestName] = hist
		}
		hist.RecordValue(micros)
		c.requestHistsMu.Unlock()
	}

	c.totalRequests.Add(1)
	c.totalBytes.Add(bytes)
	if success {
		c.successRequests.Add(1)
	} else {
		c.failedRequests.Add(1)
	}

	c.store.record(success)
}

// RecordCheck records the outcome of a named check.
func (c *Collector) RecordCheck(name string, passed bool) {
	c.checksMu.RLock()
	counter, ok := c.checks[name]
	c.checksMu.RUnlock()

	if !ok {
		c.checksMu.Lock()
		counter, ok = c.checks[name]
		if !ok {
			counter = &checkCounter{}
			c.checks[name] = counter
		}
		c.checksMu.Unlock()
	}

	if passed {
		counter.passed.Add(1)
		c.checksPassed.Add(1)
	} else {
		counter.failed.Add(1)
		c.checksFailed.Add(1)
	}
}

// SetPhase updates the current test phase. Executors call this on phase
// transitions; the phase is stamped into every emitted bucket.
func (c *Collector) SetPhase(phase Phase) {
	c.phaseMu.Lock()
	c.currentPhase = phase
	c.phaseMu.Unlock()
}

// GetPhase returns the current test phase.
func (c *Collector) GetPhase() Phase {
	c.phaseMu.RLock()
	defer c.phaseMu.RUnlock()
	return c.currentPhase
}

// SetActiveVUs updates the active VU count.
func (c *Collector) SetActiveVUs(count int) {
	c.activeVUs.Store(int32(count))
}

// GetActiveVUs returns the current active VU count.
func (c *Collector) GetActiveVUs() int {
	return int(c.activeVUs.Load())
}

// OnEmit registers a callback invoked with every emitted bucket. The
// callback runs on the emitter goroutine and must not block.
func (c *Collector) OnEmit(fn func(*Bucket)) {
	c.onEmitMu.Lock()
	c.onEmit = fn
	c.onEmitMu.Unlock()
}

func (c *Collector) runEmitter() {
	defer c.emitterWg.Done()

	ticker := time.NewTicker(c.config.BucketInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.emitterCtx.Done():
			return
		case <-ticker.C:
			c.emitBucket()
		}
	}
}

func (c *Collector) emitBucket() {
	bucket := c.store.emit(
		c.totalRequests.Load(),
		c.successRequests.Load(),
		c.failedRequests.Load(),
		c.totalBytes.Load(),
		c.latencyStats(),
		c.GetActiveVUs(),
		c.GetPhase(),
	)

	c.onEmitMu.RLock()
	fn := c.onEmit
	c.onEmitMu.RUnlock()
	if fn != nil {
		fn(bucket)
	}
}

func (c *Collector) latencyStats() LatencyStats {
	c.latencyHistMu.Lock()
	defer c.latencyHistMu.Unlock()
	return statsFromHistogram(c.latencyHist)
}

func statsFromHistogram(hist *hdrhistogram.Histogram) LatencyStats {
	return LatencyStats{
		Min:    time.Duration(hist.Min()) * time.Microsecond,
		Max:    time.Duration(hist.Max()) * time.Microsecond,
		Mean:   time.Duration(hist.Mean()) * time.Microsecond,
		StdDev: time.Duration(hist.StdDev()) * time.Microsecond,
		P50:    time.Duration(hist.ValueAtQuantile(50)) * time.Microsecond,
		P90:    time.Duration(hist.ValueAtQuantile(90)) * time.Microsecond,
		P95:    time.Duration(hist.ValueAtQuantile(95)) * time.Microsecond,
		P99:    time.Duration(hist.ValueAtQuantile(99)) * time.Microsecond,
		Count:  hist.TotalCount(),
	}
}

// Snapshot returns a point-in-time view of all metrics.
func (c *Collector) Snapshot() *Snapshot {
	elapsed := time.Since(c.startTime)
	totalReqs := c.totalRequests.Load()
	failedReqs := c.failedRequests.Load()

	// Total/elapsed understates the rate on ramping profiles, where much
	// of the elapsed time was spent below the target load. Prefer the
	// rate measured during steady-phase intervals when any exist.
	rps := 0.0
	if steady, ok := c.store.steadyRPS(); ok {
		rps = steady
	} else if elapsed.Seconds() > 0 {
		rps = float64(totalReqs) / elapsed.Seconds()
	}

	errorRate := 0.0
	if totalReqs > 0 {
		errorRate = float64(failedReqs) / float64(totalReqs)
	}

	return &Snapshot{
		TotalRequests:   totalReqs,
		SuccessRequests: c.successRequests.Load(),
		FailedRequests:  failedReqs,
		TotalBytes:      c.totalBytes.Load(),
		Latency:         c.latencyStats(),
		RPS:             rps,
		ErrorRate:       errorRate,
		ChecksPassed:    c.checksPassed.Load(),
		ChecksFailed:    c.checksFailed.Load(),
		ActiveVUs:       c.GetActiveVUs(),
		CurrentPhase:    c.GetPhase(),
		Elapsed:         elapsed,
		StartTime:       c.startTime,
		Timestamp:       time.Now(),
	}
}

// Series returns the retained time-series buckets in order.
func (c *Collector) Series() []*Bucket {
	return c.store.all()
}

// RequestStats returns per-request latency statistics.
func (c *Collector) RequestStats() map[string]LatencyStats {
	c.requestHistsMu.RLock()
	defer c.requestHistsMu.RUnlock()

	result := make(map[string]LatencyStats, len(c.requestHists))
	for name, hist := range c.requestHists {
		result[name] = statsFromHistogram(hist)
	}
	return result
}

// CheckStats returns per-check pass/fail counts sorted by name.
func (c *Collector) CheckStats() []CheckStats {
	c.checksMu.RLock()
	defer c.checksMu.RUnlock()

	result := make([]CheckStats, 0, len(c.checks))
	for name, counter := range c.checks {
		result = append(result, CheckStats{
			Name:   name,
			Passed: counter.passed.Load(),
			Failed: counter.failed.Load(),
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Stop stops the background emitter and emits one final bucket.
func (c *Collector) Stop() {
	c.emitterCancel()
	c.emitterWg.Wait()
	c.emitBucket()
}

// Reset clears all recorded metrics.
func (c *Collector) Reset() {
	c.latencyHistMu.Lock()
	c.latencyHist.Reset()
	c.latencyHistMu.Unlock()

	c.requestHistsMu.Lock()
	c.requestHists = make(map[string]*hdrhistogram.Histogram)
	c.requestHistsMu.Unlock()

	c.checksMu.Lock()
	c.checks = make(map[string]*checkCounter)
	c.checksMu.Unlock()

	c.totalRequests.Store(0)
	c.successRequests.Store(0)
	c.failedRequests.Store(0)
	c.totalBytes.Store(0)
	c.checksPassed.Store(0)
	c.checksFailed.Store(0)
	c.activeVUs.Store(0)

	c.phaseMu.Lock()
	c.currentPhase = PhaseInit
	c.phaseMu.Unlock()

	c.store.reset()
	c.startTime = time.Now()
}
