package cache

import (
	"context"

	"tieredcache/internal/models"
)

// Service defines the contract every cache tier and every composition of tiers satisfies.
// External packages should use this interface, not the concrete implementations.
//
// Get fails with models.ErrNotFound when the key is absent; that is the only
// error a Chain falls through on. Set stamps a fresh modify date on the entry.
// Delete of an absent key succeeds.
type Service[V any] interface {
	Get(ctx context.Context, key string) (models.CacheEntry[V], error)
	Set(ctx context.Context, key string, value V) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	KeyValues(ctx context.Context) ([]models.KeyValue[V], error)
}

// Null is the default tier: reads miss, writes and deletes are no-ops, and it lists nothing.
// Concrete tiers embed it and override only the operations they support.
//
// A tier that overrides KeyValues and Delete should implement Clear with ClearKeys,
// because the embedded Clear only sees Null's own empty listing.
type Null[V any] struct{}

// Get always fails with models.ErrNotFound
func (Null[V]) Get(ctx context.Context, key string) (models.CacheEntry[V], error) {
	return models.CacheEntry[V]{}, models.ErrNotFound
}

// Set accepts and discards the value
func (Null[V]) Set(ctx context.Context, key string, value V) error {
	return nil
}

// Delete succeeds without doing anything
func (Null[V]) Delete(ctx context.Context, key string) error {
	return nil
}

// Clear deletes every listed key
func (n Null[V]) Clear(ctx context.Context) error {
	return ClearKeys[V](ctx, n)
}

// KeyValues returns an empty listing
func (Null[V]) KeyValues(ctx context.Context) ([]models.KeyValue[V], error) {
	return nil, nil
}

// ClearKeys enumerates c's keys and deletes each one, stopping at the first failure
func ClearKeys[V any](ctx context.Context, c Service[V]) error {
	kvs, err := c.KeyValues(ctx)
	if err != nil {
		return err
	}
	for _, kv := range kvs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.Delete(ctx, kv.Key); err != nil {
			return err
		}
	}
	return nil
}
