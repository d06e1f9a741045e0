// Package rate provides iteration pacing for the arrival-rate executors.
package rate

import (
	"context"
	"sync"
	"time"
)

// LeakyBucket schedules iterations at a target rate.
//
// Rather than handing out tokens, it answers "when should the next
// iteration start". If the caller is behind schedule the answer is in
// the past and the iteration runs immediately, which gives smooth pacing
// across rate changes during ramps without bursting.
//
// Safe for concurrent use.
type LeakyBucket struct {
	rate        float64 // iterations per second
	lastDrip    time.Time
	accumulated float64 // fractional iterations earned since lastDrip
	mu          sync.Mutex
}

// NewLeakyBucket creates a leaky bucket for the given rate (iterations
// per second). Rates <= 0 are clamped to 1. The first call to Next
// returns immediately.
func NewLeakyBucket(rate float64) *LeakyBucket {
	if rate <= 0 {
		rate = 1.0
	}
	return &LeakyBucket{
		rate:     rate,
		lastDrip: time.Now(),
	}
}

// Next returns when the next iteration should start. A time in the past
// means "now".
func (lb *LeakyBucket) Next() time.Time {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(lb.lastDrip).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}

	lb.accumulated += elapsed * lb.rate

	// Never bank more than one iteration, so a stalled consumer does
	// not burst when it catches up.
	if lb.accumulated > 1.0 {
		lb.accumulated = 1.0
	}

	if lb.accumulated >= 1.0 {
		lb.accumulated -= 1.0
		lb.lastDrip = now
		return now
	}

	deficit := 1.0 - lb.accumulated
	next := now.Add(time.Duration(deficit / lb.rate * float64(time.Second)))
	lb.accumulated = 0

	// Advance lastDrip to the scheduled time; anchoring it at now would
	// double-count the sleep and fire an extra iteration on wake-up.
	lb.lastDrip = next

	return next
}

// Wait blocks until the next iteration should start, or the context is
// cancelled.
func (lb *LeakyBucket) Wait(ctx context.Context) error {
	wait := time.Until(lb.Next())
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SetRate changes the target rate. Accumulated credit is discarded so a
// ramp-down never bursts.
func (lb *LeakyBucket) SetRate(rate float64) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	if rate <= 0 {
		rate = 1.0
	}
	lb.rate = rate
	lb.accumulated = 0
	lb.lastDrip = time.Now()
}

// Rate returns the current target rate.
func (lb *LeakyBucket) Rate() float64 {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.rate
}
