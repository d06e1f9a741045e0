package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// bucketStore keeps emitted buckets in a ring buffer so long soak tests
// have bounded memory, and accumulates interval counters between
// emissions with lock-free updates.
type bucketStore struct {
	buckets    []*Bucket
	head       int
	count      int
	maxBuckets int
	mu         sync.RWMutex

	lastEmit time.Time

	// requests and elapsed time observed during steady-phase intervals,
	// so the overall rate is not diluted by ramps and idle tails
	steadyRequests int64
	steadySeconds  float64

	intervalRequests atomic.Int64
	intervalFailures atomic.Int64
}

func newBucketStore(maxBuckets int) *bucketStore {
	if maxBuckets <= 0 {
		maxBuckets = 3600
	}
	return &bucketStore{
		buckets:    make([]*Bucket, maxBuckets),
		maxBuckets: maxBuckets,
		lastEmit:   time.Now(),
	}
}

// record adds one request to the current interval accumulator.
func (bs *bucketStore) record(success bool) {
	bs.intervalRequests.Add(1)
	if !success {
		bs.intervalFailures.Add(1)
	}
}

// emit captures the current interval into a bucket and resets the
// accumulators. Totals and latencies are supplied by the collector.
func (bs *bucketStore) emit(
	totalRequests, totalSuccesses, totalFailures, totalBytes int64,
	latency LatencyStats,
	activeVUs int,
	phase Phase,
) *Bucket {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	now := time.Now()
	intervalRequests := bs.intervalRequests.Swap(0)
	intervalFailures := bs.intervalFailures.Swap(0)

	intervalSeconds := now.Sub(bs.lastEmit).Seconds()
	if intervalSeconds <= 0 {
		intervalSeconds = 1.0
	}
	bs.lastEmit = now

	intervalErrorRate := 0.0
	if intervalRequests > 0 {
		intervalErrorRate = float64(intervalFailures) / float64(intervalRequests)
	}

	if phase == PhaseSteady {
		bs.steadyRequests += intervalRequests
		bs.steadySeconds += intervalSeconds
	}

	bucket := &Bucket{
		Timestamp:         now,
		TotalRequests:     totalRequests,
		TotalSuccesses:    totalSuccesses,
		TotalFailures:     totalFailures,
		TotalBytes:        totalBytes,
		IntervalRequests:  intervalRequests,
		IntervalRPS:       float64(intervalRequests) / intervalSeconds,
		IntervalErrorRate: intervalErrorRate,
		LatencyMin:        latency.Min,
		LatencyMax:        latency.Max,
		LatencyP50:        latency.P50,
		LatencyP90:        latency.P90,
		LatencyP95:        latency.P95,
		LatencyP99:        latency.P99,
		ActiveVUs:         activeVUs,
		Phase:             phase,
	}

	bs.buckets[bs.head] = bucket
	bs.head = (bs.head + 1) % bs.maxBuckets
	if bs.count < bs.maxBuckets {
		bs.count++
	}

	return bucket
}

// steadyRPS returns the request rate measured across steady-phase
// intervals only, and whether any steady interval has been observed.
func (bs *bucketStore) steadyRPS() (float64, bool) {
	bs.mu.RLock()
	defer bs.mu.RUnlock()

	if bs.steadySeconds <= 0 {
		return 0, false
	}
	return float64(bs.steadyRequests) / bs.steadySeconds, true
}

// all returns the retained buckets in chronological order.
func (bs *bucketStore) all() []*Bucket {
	bs.mu.RLock()
	defer bs.mu.RUnlock()

	result := make([]*Bucket, 0, bs.count)
	start := bs.head - bs.count
	if start < 0 {
		start += bs.maxBuckets
	}
	for i := 0; i < bs.count; i++ {
		result = append(result, bs.buckets[(start+i)%bs.maxBuckets])
	}
	return result
}

func (bs *bucketStore) reset() {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	bs.buckets = make([]*Bucket, bs.maxBuckets)
	bs.head = 0
	bs.count = 0
	bs.lastEmit = time.Now()
	bs.steadyRequests = 0
	bs.steadySeconds = 0
	bs.intervalRequests.Store(0)
	bs.intervalFailures.Store(0)
}
