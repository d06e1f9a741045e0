package rate

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestNewLeakyBucket(t *testing.T) {
	tests := []struct {
		name     string
		rate     float64
		expected float64
	}{
		{"positive rate", 100.0, 100.0},
		{"zero rate defaults to 1", 0.0, 1.0},
		{"negative rate defaults to 1", -10.0, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lb := NewLeakyBucket(tt.rate)
			if lb.Rate() != tt.expected {
				t.Errorf("Rate() = %v, want %v", lb.Rate(), tt.expected)
			}
		})
	}
}

func TestLeakyBucket_Next_ImmediateFirst(t *testing.T) {
	lb := NewLeakyBucket(100.0)

	now := time.Now()
	next := lb.Next()

	if diff := next.Sub(now); diff > 10*time.Millisecond {
		t.Errorf("first Next() should be immediate, got delay of %v", diff)
	}
}

func TestLeakyBucket_Next_CorrectSpacing(t *testing.T) {
	rate := 100.0 // 10ms apart
	lb := NewLeakyBucket(rate)

	_ = lb.Next()
	next := lb.Next()

	expected := time.Duration(float64(time.Second) / rate)
	actual := time.Until(next)

	if actual < expected-5*time.Millisecond || actual > expected+5*time.Millisecond {
		t.Errorf("spacing = %v, want ~%v", actual, expected)
	}
}

func TestLeakyBucket_NoBurstAfterStall(t *testing.T) {
	lb := NewLeakyBucket(1000.0)

	_ = lb.Next()
	time.Sleep(50 * time.Millisecond) // bank time for ~50 iterations

	// Credit is capped at one iteration, so at most two immediate slots.
	immediate := 0
	for i := 0; i < 5; i++ {
		if time.Until(lb.Next()) <= 0 {
			immediate++
		}
	}
	if immediate > 2 {
		t.Errorf("got %d immediate slots after stall, want <= 2", immediate)
	}
}

func TestLeakyBucket_Wait_ContextCancel(t *testing.T) {
	lb := NewLeakyBucket(0.1) // one per 10s

	_ = lb.Next()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := lb.Wait(ctx)
	if err == nil {
		t.Fatal("Wait() should return the context error")
	}
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Errorf("Wait() took %v after cancellation", elapsed)
	}
}

func TestLeakyBucket_SetRate_DiscardsCredit(t *testing.T) {
	lb := NewLeakyBucket(1000.0)

	_ = lb.Next()
	time.Sleep(20 * time.Millisecond)

	lb.SetRate(10.0)
	if lb.Rate() != 10.0 {
		t.Fatalf("Rate() = %v, want 10", lb.Rate())
	}

	// After the rate change the next slot respects the new rate, not
	// credit accumulated at the old one.
	next := lb.Next()
	if wait := time.Until(next); wait < 50*time.Millisecond {
		t.Errorf("next slot only %v away, wanted ~100ms at 10/s", wait)
	}
}

func TestLeakyBucket_ConcurrentNext(t *testing.T) {
	lb := NewLeakyBucket(10000.0)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = lb.Next()
			}
		}()
	}
	wg.Wait()
}
