package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// testClock is a manually advanced clock
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestTokenBucket_Allow(t *testing.T) {
	clock := newTestClock()
	// Create a bucket with capacity 3, refill rate 1 per second
	bucket := newTokenBucket(3, 1, clock.Now)

	// Should allow first 3 requests immediately
	for i := 0; i < 3; i++ {
		if !bucket.Allow() {
			t.Errorf("Request %d should be allowed", i+1)
		}
	}

	// 4th request should be denied
	if bucket.Allow() {
		t.Error("4th request should be denied")
	}

	clock.Advance(1100 * time.Millisecond)

	// Should allow one more request after refill
	if !bucket.Allow() {
		t.Error("Request after refill should be allowed")
	}

	// Next request should be denied
	if bucket.Allow() {
		t.Error("Request immediately after refill should be denied")
	}
}

func TestTokenBucket_Refill(t *testing.T) {
	clock := newTestClock()
	bucket := newTokenBucket(5, 2, clock.Now) // 5 capacity, 2 per second

	// Consume all tokens
	for i := 0; i < 5; i++ {
		bucket.Allow()
	}

	// Should be empty
	if bucket.Allow() {
		t.Error("Bucket should be empty")
	}

	// One second adds 2 tokens
	clock.Advance(time.Second)

	if !bucket.Allow() {
		t.Error("First request after refill should be allowed")
	}
	if !bucket.Allow() {
		t.Error("Second request after refill should be allowed")
	}
	if bucket.Allow() {
		t.Error("Third request after refill should be denied")
	}
}

func TestTokenBucket_RefillCapsAtCapacity(t *testing.T) {
	clock := newTestClock()
	bucket := newTokenBucket(2, 10, clock.Now)

	bucket.Allow()
	clock.Advance(time.Hour)

	allowed := 0
	for i := 0; i < 10; i++ {
		if bucket.Allow() {
			allowed++
		}
	}
	if allowed != 2 {
		t.Errorf("Expected 2 requests after a long idle period, got %d", allowed)
	}
}

func TestTokenBucket_RefundNeverExceedsCapacity(t *testing.T) {
	clock := newTestClock()
	bucket := newTokenBucket(1, 1, clock.Now)

	bucket.refund()
	bucket.refund()

	if !bucket.Allow() {
		t.Error("First request should be allowed")
	}
	if bucket.Allow() {
		t.Error("Refunds beyond capacity should not add tokens")
	}
}

func TestLimiter_PerKeyBudget(t *testing.T) {
	clock := newTestClock()
	limiter := newLimiter(100, 100, 2, 1, clock.Now)

	for i := 0; i < 2; i++ {
		if !limiter.Allow("192.168.1.1") {
			t.Errorf("Request %d for first key should be allowed", i+1)
		}
	}
	if limiter.Allow("192.168.1.1") {
		t.Error("Third request for first key should be denied")
	}

	// Another key has its own budget
	if !limiter.Allow("192.168.1.2") {
		t.Error("First request for second key should be allowed")
	}
}

func TestLimiter_GlobalBudget(t *testing.T) {
	clock := newTestClock()
	limiter := newLimiter(3, 1, 10, 10, clock.Now)

	for i := 0; i < 3; i++ {
		if !limiter.Allow(fmt.Sprintf("client-%d", i)) {
			t.Errorf("Request %d should be allowed", i+1)
		}
	}
	if limiter.Allow("client-99") {
		t.Error("Global budget should deny a fresh key")
	}
}

func TestLimiter_PerKeyDenialRefundsGlobalToken(t *testing.T) {
	clock := newTestClock()
	limiter := newLimiter(3, 1, 1, 1, clock.Now)

	if !limiter.Allow("noisy") {
		t.Fatal("First request should be allowed")
	}
	for i := 0; i < 5; i++ {
		if limiter.Allow("noisy") {
			t.Fatal("Noisy key should be over its budget")
		}
	}

	// The noisy key's denials must not drain the shared budget
	if !limiter.Allow("quiet-1") || !limiter.Allow("quiet-2") {
		t.Error("Other keys should still get the remaining global tokens")
	}
}

func TestLimiter_WaitReturnsWhenAllowed(t *testing.T) {
	limiter := newLimiter(10, 10, 10, 10, time.Now)

	if err := limiter.Wait(context.Background(), "host"); err != nil {
		t.Errorf("Expected immediate success, got %v", err)
	}
}

func TestLimiter_WaitHonoursContext(t *testing.T) {
	clock := newTestClock()
	limiter := newLimiter(1, 1, 1, 1, clock.Now)
	limiter.Allow("host")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := limiter.Wait(ctx, "host")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

func TestLimiter_WaitUnblocksAfterRefill(t *testing.T) {
	clock := newTestClock()
	limiter := newLimiter(1, 1, 1, 1, clock.Now)
	limiter.Allow("host")

	done := make(chan error, 1)
	go func() {
		done <- limiter.Wait(context.Background(), "host")
	}()

	clock.Advance(2 * time.Second)

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected nil error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("Wait did not return after the bucket refilled")
	}
}

func TestLimiter_SweepDropsIdleBuckets(t *testing.T) {
	clock := newTestClock()
	limiter := newLimiter(100, 100, 1, 1, clock.Now)

	limiter.Allow("stale")
	clock.Advance(time.Hour)
	limiter.Allow("fresh")

	limiter.sweep(clock.Now().Add(-30 * time.Minute))

	count := 0
	limiter.buckets.Range(func(key, _ interface{}) bool {
		count++
		if key != "fresh" {
			t.Errorf("Unexpected bucket %v survived the sweep", key)
		}
		return true
	})
	if count != 1 {
		t.Errorf("Expected 1 bucket after sweep, got %d", count)
	}

	// A swept key starts over with a full bucket
	if !limiter.Allow("stale") {
		t.Error("Swept key should be allowed again")
	}
}

func TestLimiter_ConcurrentAllow(t *testing.T) {
	clock := newTestClock()
	limiter := newLimiter(1000, 1, 50, 1, clock.Now)

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.Allow("shared") {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := allowed.Load(); got != 50 {
		t.Errorf("Expected exactly 50 allowed requests, got %d", got)
	}
}

func TestLimiter_CloseIsIdempotent(t *testing.T) {
	limiter := NewLimiter(10, 10, 10, 10)
	limiter.Close()
	limiter.Close()
}
