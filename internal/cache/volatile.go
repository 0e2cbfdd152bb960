package cache

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"tieredcache/internal/logger"
	"tieredcache/internal/models"
)

/*
Volatile is the orchestration engine over a memory -> disk [-> network] chain.

It owns only cross-tier policy; each tier owns its storage.

  - Reads cascade through every tier, then entries older than Policy.Expiry are
    purged from memory and disk and reported as models.ErrNotFound.
  - Writes, deletes and clears cascade through memory and disk only. The network
    tier is a read-only fallback.
  - After every successful Set the disk tier is trimmed to Policy.MaximumSize,
    oldest modify date first, and memory is made to hold no key disk lacks.
  - KeyValues and Len report the disk tier, which may hold entries written by
    earlier processes that memory has never seen.

Errors other than models.ErrNotFound from any tier are returned unchanged.
There is no locking across tiers; concurrent calls on one key may interleave.
Concurrent Sets may list disk at the same moment and each evict the same number
of oldest keys, leaving fewer than Policy.MaximumSize entries until later writes
refill the tier.
*/
type Volatile[V any] struct {
	memory Service[V]
	disk   Service[V]
	reads  *Chain[V]
	writes *Chain[V]
	policy Policy
	now    func() time.Time
	logger logger.Service
}

func newVolatile[V any](policy Policy, memory, disk, network Service[V], opts ...Option) (*Volatile[V], error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if memory == nil || disk == nil {
		return nil, fmt.Errorf("%w: memory and disk tiers are required", models.ErrInvalidConfig)
	}

	o := buildOptions(opts)
	v := &Volatile[V]{
		memory: memory,
		disk:   disk,
		writes: NewChain(memory, disk),
		policy: policy,
		now:    o.now,
		logger: o.logger,
	}
	if network != nil {
		v.reads = NewChain(memory, disk, network)
	} else {
		v.reads = v.writes
	}
	return v, nil
}

// Get resolves key through the chain and hides entries older than the expiry
func (v *Volatile[V]) Get(ctx context.Context, key string) (models.CacheEntry[V], error) {
	entry, err := v.reads.Get(ctx, key)
	if err != nil {
		if models.IsNotFound(err) {
			v.logger.LogSuccess(ctx, logger.OpCacheMiss, key, "Cache miss", nil)
		} else {
			v.logger.LogError(ctx, logger.OpCacheMiss, key, "Cache read failed", err, models.LogSeverityMedium, nil)
		}
		return models.CacheEntry[V]{}, err
	}

	if v.expired(entry) {
		if err := v.writes.Delete(ctx, key); err != nil {
			v.logger.LogError(ctx, logger.OpCacheExpired, key, "Failed to remove expired entry", err, models.LogSeverityMedium, nil)
			return models.CacheEntry[V]{}, err
		}
		v.logger.LogSuccess(ctx, logger.OpCacheExpired, key, "Expired entry removed", map[string]interface{}{
			"age_seconds": entry.Age(v.now()).Seconds(),
		})
		return models.CacheEntry[V]{}, models.ErrNotFound
	}

	v.logger.LogSuccess(ctx, logger.OpCacheHit, key, "Cache hit", nil)
	return entry, nil
}

// Set writes through memory and disk, then evicts the oldest disk entries beyond the maximum size.
// Eviction has finished when Set returns.
func (v *Volatile[V]) Set(ctx context.Context, key string, value V) error {
	if err := v.writes.Set(ctx, key, value); err != nil {
		v.logger.LogError(ctx, logger.OpCacheSet, key, "Cache write failed", err, models.LogSeverityMedium, nil)
		return err
	}
	v.logger.LogSuccess(ctx, logger.OpCacheSet, key, "Cache write", nil)

	return v.evict(ctx)
}

// Delete removes key from memory and disk
func (v *Volatile[V]) Delete(ctx context.Context, key string) error {
	if err := v.writes.Delete(ctx, key); err != nil {
		v.logger.LogError(ctx, logger.OpCacheDelete, key, "Cache delete failed", err, models.LogSeverityMedium, nil)
		return err
	}
	v.logger.LogSuccess(ctx, logger.OpCacheDelete, key, "Cache delete", nil)
	return nil
}

// Clear empties memory and then disk
func (v *Volatile[V]) Clear(ctx context.Context) error {
	if err := v.writes.Clear(ctx); err != nil {
		v.logger.LogError(ctx, logger.OpCacheClear, "", "Cache clear failed", err, models.LogSeverityHigh, nil)
		return err
	}
	v.logger.LogInfo(ctx, logger.OpCacheClear, "Cache cleared", nil)
	return nil
}

// KeyValues lists the disk tier, the authoritative holder of the key set
func (v *Volatile[V]) KeyValues(ctx context.Context) ([]models.KeyValue[V], error) {
	return v.disk.KeyValues(ctx)
}

// Len returns the number of keys visible through KeyValues
func (v *Volatile[V]) Len(ctx context.Context) (int, error) {
	kvs, err := v.KeyValues(ctx)
	if err != nil {
		return 0, err
	}
	return len(kvs), nil
}

// Purge removes every expired entry held by disk from both memory and disk
// and returns how many were removed
func (v *Volatile[V]) Purge(ctx context.Context) (int, error) {
	kvs, err := v.disk.KeyValues(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, kv := range kvs {
		if !v.expired(kv.Entry) {
			continue
		}
		if err := v.writes.Delete(ctx, kv.Key); err != nil {
			v.logger.LogError(ctx, logger.OpCachePurge, kv.Key, "Failed to purge expired entry", err, models.LogSeverityMedium, nil)
			return removed, err
		}
		removed++
	}

	if removed > 0 {
		v.logger.LogInfo(ctx, logger.OpCachePurge, "Purged expired entries", map[string]interface{}{
			"removed": removed,
		})
	}
	return removed, nil
}

// Policy returns the policy the engine enforces
func (v *Volatile[V]) Policy() Policy {
	return v.policy
}

// expired reports whether entry has reached the end of its lifetime
func (v *Volatile[V]) expired(entry models.CacheEntry[V]) bool {
	return !v.now().Before(entry.ModifyDate.Add(v.policy.Expiry))
}

// evict trims disk to the maximum size and mirrors the surviving key set onto memory
func (v *Volatile[V]) evict(ctx context.Context) error {
	kvs, err := v.disk.KeyValues(ctx)
	if err != nil {
		return err
	}

	excess := len(kvs) - v.policy.MaximumSize
	if excess <= 0 {
		return nil
	}

	sortOldestFirst(kvs)
	for _, kv := range kvs[:excess] {
		if err := v.writes.Delete(ctx, kv.Key); err != nil {
			v.logger.LogError(ctx, logger.OpCacheEvict, kv.Key, "Eviction failed", err, models.LogSeverityMedium, nil)
			return err
		}
		v.logger.LogSuccess(ctx, logger.OpCacheEvict, kv.Key, "Evicted oldest entry", map[string]interface{}{
			"modify_date": kv.Entry.ModifyDate,
		})
	}

	return v.mirror(ctx, kvs[excess:])
}

// mirror drops memory keys that are not among the retained disk keys
func (v *Volatile[V]) mirror(ctx context.Context, retained []models.KeyValue[V]) error {
	keep := make(map[string]struct{}, len(retained))
	for _, kv := range retained {
		keep[kv.Key] = struct{}{}
	}

	held, err := v.memory.KeyValues(ctx)
	if err != nil {
		return err
	}
	for _, kv := range held {
		if _, ok := keep[kv.Key]; ok {
			continue
		}
		if err := v.memory.Delete(ctx, kv.Key); err != nil {
			return err
		}
	}
	return nil
}

// sortOldestFirst orders by ascending modify date, ties broken by key
func sortOldestFirst[V any](kvs []models.KeyValue[V]) {
	slices.SortFunc(kvs, func(a, b models.KeyValue[V]) int {
		if c := a.Entry.ModifyDate.Compare(b.Entry.ModifyDate); c != 0 {
			return c
		}
		return strings.Compare(a.Key, b.Key)
	})
}
