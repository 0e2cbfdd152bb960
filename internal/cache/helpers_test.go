package cache

import (
	"context"
	"sync"
	"time"

	"tieredcache/internal/models"
)

// fakeClock is a manually advanced clock shared by tiers and the engine
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// faultyTier is a memory tier whose operations can be made to fail
type faultyTier struct {
	*MemoryCache[string]
	getErr    error
	setErr    error
	deleteErr error
	listErr   error
}

func newFaultyTier(opts ...Option) *faultyTier {
	return &faultyTier{MemoryCache: NewMemoryCache[string](opts...)}
}

func (f *faultyTier) Get(ctx context.Context, key string) (models.CacheEntry[string], error) {
	if f.getErr != nil {
		return models.CacheEntry[string]{}, f.getErr
	}
	return f.MemoryCache.Get(ctx, key)
}

func (f *faultyTier) Set(ctx context.Context, key string, value string) error {
	if f.setErr != nil {
		return f.setErr
	}
	return f.MemoryCache.Set(ctx, key, value)
}

func (f *faultyTier) Delete(ctx context.Context, key string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.MemoryCache.Delete(ctx, key)
}

func (f *faultyTier) KeyValues(ctx context.Context) ([]models.KeyValue[string], error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.MemoryCache.KeyValues(ctx)
}

func keysOf[V any](kvs []models.KeyValue[V]) []string {
	keys := make([]string, 0, len(kvs))
	for _, kv := range kvs {
		keys = append(keys, kv.Key)
	}
	return keys
}
