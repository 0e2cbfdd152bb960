package cache

import (
	"context"
	"sync"
	"time"

	"tieredcache/internal/models"
)

// MemoryCache implements Service using a process-local map
type MemoryCache[V any] struct {
	data  map[string]models.CacheEntry[V]
	mutex sync.RWMutex
	now   func() time.Time
}

// NewMemoryCache creates a new in-memory tier
func NewMemoryCache[V any](opts ...Option) *MemoryCache[V] {
	o := buildOptions(opts)
	return &MemoryCache[V]{
		data: make(map[string]models.CacheEntry[V]),
		now:  o.now,
	}
}

// Get retrieves the entry for the given key
func (m *MemoryCache[V]) Get(ctx context.Context, key string) (models.CacheEntry[V], error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	entry, exists := m.data[key]
	if !exists {
		return models.CacheEntry[V]{}, models.ErrNotFound
	}
	return entry, nil
}

// Set stores the value under key with a fresh modify date
func (m *MemoryCache[V]) Set(ctx context.Context, key string, value V) error {
	entry := models.NewCacheEntry(value, m.now())

	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.data[key] = entry
	return nil
}

// Delete removes an entry; absent keys are not an error
func (m *MemoryCache[V]) Delete(ctx context.Context, key string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	delete(m.data, key)
	return nil
}

// Clear empties the map
func (m *MemoryCache[V]) Clear(ctx context.Context) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	clear(m.data)
	return nil
}

// KeyValues returns every stored pair in no particular order
func (m *MemoryCache[V]) KeyValues(ctx context.Context) ([]models.KeyValue[V], error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	kvs := make([]models.KeyValue[V], 0, len(m.data))
	for key, entry := range m.data {
		kvs = append(kvs, models.KeyValue[V]{Key: key, Entry: entry})
	}
	return kvs, nil
}

// Size returns the current number of cached entries (for monitoring)
func (m *MemoryCache[V]) Size() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.data)
}
