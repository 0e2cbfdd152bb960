package ratelimit

import (
	"context"
	"sync"
	"time"
)

// TokenBucket implements a token bucket rate limiter
type TokenBucket struct {
	capacity   int64
	tokens     int64
	refillRate int64 // tokens per second
	lastRefill time.Time
	now        func() time.Time
	mutex      sync.Mutex
}

// NewTokenBucket creates a full bucket with the specified capacity and refill rate
func NewTokenBucket(capacity, refillRate int64) *TokenBucket {
	return newTokenBucket(capacity, refillRate, time.Now)
}

func newTokenBucket(capacity, refillRate int64, now func() time.Time) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: refillRate,
		lastRefill: now(),
		now:        now,
	}
}

// Allow consumes a token if one is available
func (tb *TokenBucket) Allow() bool {
	tb.mutex.Lock()
	defer tb.mutex.Unlock()

	tb.refill()

	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	return false
}

// refund returns a token taken by Allow, never exceeding capacity
func (tb *TokenBucket) refund() {
	tb.mutex.Lock()
	defer tb.mutex.Unlock()

	if tb.tokens < tb.capacity {
		tb.tokens++
	}
}

func (tb *TokenBucket) idleSince() time.Time {
	tb.mutex.Lock()
	defer tb.mutex.Unlock()
	return tb.lastRefill
}

// refill adds tokens based on time elapsed since last refill
func (tb *TokenBucket) refill() {
	now := tb.now()
	elapsed := now.Sub(tb.lastRefill).Seconds()

	tokensToAdd := int64(elapsed * float64(tb.refillRate))
	if tokensToAdd > 0 {
		tb.tokens = min(tb.capacity, tb.tokens+tokensToAdd)
		tb.lastRefill = now
	}
}

// Limiter enforces a global budget plus a budget per key
type Limiter struct {
	global         *TokenBucket
	buckets        sync.Map // map[string]*TokenBucket
	perKeyCapacity int64
	perKeyRate     int64
	now            func() time.Time
	done           chan struct{}
	closeOnce      sync.Once
}

// NewLimiter creates a limiter and starts the idle-bucket janitor.
// Call Close to stop the janitor.
func NewLimiter(globalCapacity, globalRate, perKeyCapacity, perKeyRate int64) *Limiter {
	l := newLimiter(globalCapacity, globalRate, perKeyCapacity, perKeyRate, time.Now)
	go l.cleanupBuckets(10*time.Minute, 30*time.Minute)
	return l
}

func newLimiter(globalCapacity, globalRate, perKeyCapacity, perKeyRate int64, now func() time.Time) *Limiter {
	return &Limiter{
		global:         newTokenBucket(globalCapacity, globalRate, now),
		perKeyCapacity: perKeyCapacity,
		perKeyRate:     perKeyRate,
		now:            now,
		done:           make(chan struct{}),
	}
}

// Allow checks the global budget and then the budget for key
func (l *Limiter) Allow(key string) bool {
	if !l.global.Allow() {
		return false
	}

	if !l.bucket(key).Allow() {
		// The global token was taken but the request does not proceed
		l.global.refund()
		return false
	}
	return true
}

// Wait blocks until key is allowed or ctx is done
func (l *Limiter) Wait(ctx context.Context, key string) error {
	if l.Allow(key) {
		return nil
	}

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if l.Allow(key) {
				return nil
			}
		}
	}
}

// Close stops the janitor
func (l *Limiter) Close() {
	l.closeOnce.Do(func() { close(l.done) })
}

func (l *Limiter) bucket(key string) *TokenBucket {
	if b, ok := l.buckets.Load(key); ok {
		return b.(*TokenBucket)
	}

	actual, _ := l.buckets.LoadOrStore(key, newTokenBucket(l.perKeyCapacity, l.perKeyRate, l.now))
	return actual.(*TokenBucket)
}

// sweep drops buckets idle since before cutoff
func (l *Limiter) sweep(cutoff time.Time) {
	l.buckets.Range(func(key, value interface{}) bool {
		if value.(*TokenBucket).idleSince().Before(cutoff) {
			l.buckets.Delete(key)
		}
		return true
	})
}

func (l *Limiter) cleanupBuckets(every, maxIdle time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.sweep(l.now().Add(-maxIdle))
		}
	}
}
