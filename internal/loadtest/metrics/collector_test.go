package metrics

import (
	"sync"
	"testing"
	"time"
)

func testConfig() CollectorConfig {
	cfg := DefaultCollectorConfig()
	cfg.BucketInterval = 20 * time.Millisecond
	cfg.MaxBuckets = 100
	return cfg
}

func TestCollector_RecordRequest(t *testing.T) {
	c := NewCollectorWithConfig(testConfig())
	defer c.Stop()

	c.RecordRequest(10*time.Millisecond, "list", true, 512)
	c.RecordRequest(20*time.Millisecond, "list", true, 256)
	c.RecordRequest(30*time.Millisecond, "create", false, 0)

	snap := c.Snapshot()

	if snap.TotalRequests != 3 {
		t.Errorf("TotalRequests = %d, want 3", snap.TotalRequests)
	}
	if snap.SuccessRequests != 2 {
		t.Errorf("SuccessRequests = %d, want 2", snap.SuccessRequests)
	}
	if snap.FailedRequests != 1 {
		t.Errorf("FailedRequests = %d, want 1", snap.FailedRequests)
	}
	if snap.TotalBytes != 768 {
		t.Errorf("TotalBytes = %d, want 768", snap.TotalBytes)
	}
	if snap.ErrorRate < 0.3 || snap.ErrorRate > 0.4 {
		t.Errorf("ErrorRate = %v, want ~1/3", snap.ErrorRate)
	}
	if snap.Latency.Count != 3 {
		t.Errorf("Latency.Count = %d, want 3", snap.Latency.Count)
	}
	if snap.Latency.Max < 29*time.Millisecond {
		t.Errorf("Latency.Max = %v, want >= ~30ms", snap.Latency.Max)
	}
}

func TestCollector_RequestStats(t *testing.T) {
	c := NewCollectorWithConfig(testConfig())
	defer c.Stop()

	c.RecordRequest(5*time.Millisecond, "login", true, 0)
	c.RecordRequest(10*time.Millisecond, "browse", true, 0)
	c.RecordRequest(15*time.Millisecond, "browse", true, 0)

	stats := c.RequestStats()
	if len(stats) != 2 {
		t.Fatalf("got %d request stats, want 2", len(stats))
	}
	if stats["browse"].Count != 2 {
		t.Errorf("browse count = %d, want 2", stats["browse"].Count)
	}
	if stats["login"].Count != 1 {
		t.Errorf("login count = %d, want 1", stats["login"].Count)
	}
}

func TestCollector_Checks(t *testing.T) {
	c := NewCollectorWithConfig(testConfig())
	defer c.Stop()

	c.RecordCheck("status is 200", true)
	c.RecordCheck("status is 200", true)
	c.RecordCheck("status is 200", false)
	c.RecordCheck("body has token", true)

	stats := c.CheckStats()
	if len(stats) != 2 {
		t.Fatalf("got %d checks, want 2", len(stats))
	}
	// Sorted by name
	if stats[0].Name != "body has token" || stats[1].Name != "status is 200" {
		t.Errorf("checks not sorted: %v, %v", stats[0].Name, stats[1].Name)
	}
	if stats[1].Passed != 2 || stats[1].Failed != 1 {
		t.Errorf("status check = %d/%d, want 2 passed 1 failed", stats[1].Passed, stats[1].Failed)
	}

	snap := c.Snapshot()
	if snap.ChecksPassed != 3 || snap.ChecksFailed != 1 {
		t.Errorf("snapshot checks = %d/%d, want 3/1", snap.ChecksPassed, snap.ChecksFailed)
	}
	if rate := snap.CheckRate(); rate != 0.75 {
		t.Errorf("CheckRate() = %v, want 0.75", rate)
	}
}

func TestCollector_OnEmit(t *testing.T) {
	c := NewCollectorWithConfig(testConfig())

	var mu sync.Mutex
	var emitted []*Bucket
	c.OnEmit(func(b *Bucket) {
		mu.Lock()
		emitted = append(emitted, b)
		mu.Unlock()
	})

	c.RecordRequest(time.Millisecond, "ping", true, 1)
	time.Sleep(60 * time.Millisecond)
	c.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(emitted) < 2 {
		t.Fatalf("got %d emitted buckets, want >= 2", len(emitted))
	}
	last := emitted[len(emitted)-1]
	if last.TotalRequests != 1 {
		t.Errorf("final bucket TotalRequests = %d, want 1", last.TotalRequests)
	}
}

func TestCollector_SeriesIsChronological(t *testing.T) {
	c := NewCollectorWithConfig(testConfig())

	time.Sleep(90 * time.Millisecond)
	c.Stop()

	series := c.Series()
	if len(series) < 3 {
		t.Fatalf("got %d buckets, want >= 3", len(series))
	}
	for i := 1; i < len(series); i++ {
		if series[i].Timestamp.Before(series[i-1].Timestamp) {
			t.Fatalf("series out of order at %d", i)
		}
	}
}

func TestCollector_PhaseAndVUs(t *testing.T) {
	c := NewCollectorWithConfig(testConfig())
	defer c.Stop()

	c.SetPhase(PhaseRampUp)
	c.SetActiveVUs(25)

	if c.GetPhase() != PhaseRampUp {
		t.Errorf("GetPhase() = %v, want ramp-up", c.GetPhase())
	}
	if c.GetActiveVUs() != 25 {
		t.Errorf("GetActiveVUs() = %d, want 25", c.GetActiveVUs())
	}

	snap := c.Snapshot()
	if snap.CurrentPhase != PhaseRampUp || snap.ActiveVUs != 25 {
		t.Errorf("snapshot phase/vus = %v/%d", snap.CurrentPhase, snap.ActiveVUs)
	}
}

func TestCollector_Reset(t *testing.T) {
	c := NewCollectorWithConfig(testConfig())
	defer c.Stop()

	c.RecordRequest(time.Millisecond, "x", true, 10)
	c.RecordCheck("c", true)
	c.SetActiveVUs(5)
	c.Reset()

	snap := c.Snapshot()
	if snap.TotalRequests != 0 || snap.ChecksPassed != 0 || snap.ActiveVUs != 0 {
		t.Errorf("reset left state behind: %+v", snap)
	}
	if len(c.Series()) != 0 {
		t.Errorf("reset left %d buckets", len(c.Series()))
	}
}

func TestCollector_SnapshotPrefersSteadyRPS(t *testing.T) {
	c := NewCollectorWithConfig(testConfig())
	t.Cleanup(c.Stop)

	c.SetPhase(PhaseSteady)
	for i := 0; i < 100; i++ {
		c.RecordRequest(time.Millisecond, "browse", true, 10)
	}
	time.Sleep(60 * time.Millisecond)

	// Idle ramp-down tail; no requests arrive.
	c.SetPhase(PhaseRampDown)
	time.Sleep(150 * time.Millisecond)

	snap := c.Snapshot()
	overall := float64(snap.TotalRequests) / snap.Elapsed.Seconds()
	if snap.RPS <= overall {
		t.Errorf("RPS = %.1f, want above the idle-diluted overall rate %.1f", snap.RPS, overall)
	}
}

func TestBucketStore_SteadyRPS(t *testing.T) {
	bs := newBucketStore(10)

	if _, ok := bs.steadyRPS(); ok {
		t.Fatal("steadyRPS() reported steady intervals before any emit")
	}

	// Ramp-up interval: its requests must not count towards the rate.
	for i := 0; i < 5; i++ {
		bs.record(true)
	}
	bs.lastEmit = time.Now().Add(-time.Second)
	bs.emit(5, 5, 0, 0, LatencyStats{}, 1, PhaseRampUp)

	// Steady interval: 100 requests over ~1s.
	for i := 0; i < 100; i++ {
		bs.record(true)
	}
	bs.lastEmit = time.Now().Add(-time.Second)
	bs.emit(105, 105, 0, 0, LatencyStats{}, 1, PhaseSteady)

	// Idle ramp-down interval must not dilute the steady rate.
	bs.lastEmit = time.Now().Add(-time.Second)
	bs.emit(105, 105, 0, 0, LatencyStats{}, 1, PhaseRampDown)

	rps, ok := bs.steadyRPS()
	if !ok {
		t.Fatal("steadyRPS() reported no steady intervals")
	}
	if rps < 90 || rps > 110 {
		t.Errorf("steadyRPS() = %.1f, want ~100", rps)
	}

	bs.reset()
	if _, ok := bs.steadyRPS(); ok {
		t.Error("steadyRPS() survived reset")
	}
}

func TestBucketStore_RingBuffer(t *testing.T) {
	bs := newBucketStore(3)

	for i := 0; i < 5; i++ {
		bs.record(true)
		bs.emit(int64(i+1), int64(i+1), 0, 0, LatencyStats{}, 0, PhaseSteady)
	}

	all := bs.all()
	if len(all) != 3 {
		t.Fatalf("got %d buckets, want 3 (ring capacity)", len(all))
	}
	// Oldest two were evicted; totals should be 3, 4, 5.
	if all[0].TotalRequests != 3 || all[2].TotalRequests != 5 {
		t.Errorf("ring kept wrong buckets: first=%d last=%d", all[0].TotalRequests, all[2].TotalRequests)
	}
}

func TestBucketStore_IntervalCounters(t *testing.T) {
	bs := newBucketStore(10)

	bs.record(true)
	bs.record(false)
	bs.record(true)

	b := bs.emit(3, 2, 1, 0, LatencyStats{}, 0, PhaseSteady)
	if b.IntervalRequests != 3 {
		t.Errorf("IntervalRequests = %d, want 3", b.IntervalRequests)
	}
	if b.IntervalErrorRate < 0.3 || b.IntervalErrorRate > 0.4 {
		t.Errorf("IntervalErrorRate = %v, want ~1/3", b.IntervalErrorRate)
	}

	// Accumulators reset after emit
	b2 := bs.emit(3, 2, 1, 0, LatencyStats{}, 0, PhaseSteady)
	if b2.IntervalRequests != 0 {
		t.Errorf("second emit IntervalRequests = %d, want 0", b2.IntervalRequests)
	}
}
