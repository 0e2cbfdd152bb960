package cache

import (
	"context"

	"tieredcache/internal/models"
)

// Chain composes tiers in order, fastest first.
//
// Get tries tiers left to right and falls through only on models.ErrNotFound;
// any other error is returned as is and later tiers are not consulted.
// Set, Delete and Clear run forward while each tier succeeds and stop at the first failure.
// KeyValues lists only the head tier.
type Chain[V any] struct {
	tiers []Service[V]
}

// NewChain composes the given tiers. Nested chains are flattened so that
// NewChain(NewChain(a, b), c) and NewChain(a, NewChain(b, c)) behave identically.
func NewChain[V any](tiers ...Service[V]) *Chain[V] {
	flat := make([]Service[V], 0, len(tiers))
	for _, t := range tiers {
		if t == nil {
			continue
		}
		if nested, ok := t.(*Chain[V]); ok {
			flat = append(flat, nested.tiers...)
			continue
		}
		flat = append(flat, t)
	}
	return &Chain[V]{tiers: flat}
}

// Compose puts primary in front of secondary
func Compose[V any](primary, secondary Service[V]) *Chain[V] {
	return NewChain(primary, secondary)
}

// Get returns the first hit, or the outcome of the last tier when every earlier one missed
func (c *Chain[V]) Get(ctx context.Context, key string) (models.CacheEntry[V], error) {
	err := error(models.ErrNotFound)
	for _, tier := range c.tiers {
		var entry models.CacheEntry[V]
		entry, err = tier.Get(ctx, key)
		if err == nil {
			return entry, nil
		}
		if !models.IsNotFound(err) {
			return models.CacheEntry[V]{}, err
		}
	}
	return models.CacheEntry[V]{}, err
}

// Set writes through every tier until one fails
func (c *Chain[V]) Set(ctx context.Context, key string, value V) error {
	for _, tier := range c.tiers {
		if err := tier.Set(ctx, key, value); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes key from every tier until one fails
func (c *Chain[V]) Delete(ctx context.Context, key string) error {
	for _, tier := range c.tiers {
		if err := tier.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// Clear clears every tier until one fails
func (c *Chain[V]) Clear(ctx context.Context) error {
	for _, tier := range c.tiers {
		if err := tier.Clear(ctx); err != nil {
			return err
		}
	}
	return nil
}

// KeyValues lists the head tier only
func (c *Chain[V]) KeyValues(ctx context.Context) ([]models.KeyValue[V], error) {
	if len(c.tiers) == 0 {
		return nil, nil
	}
	return c.tiers[0].KeyValues(ctx)
}

// Len returns the number of tiers
func (c *Chain[V]) Len() int {
	return len(c.tiers)
}
