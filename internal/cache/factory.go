package cache

import (
	"fmt"

	"tieredcache/internal/models"
)

// NewTwoTier builds a memory -> disk engine
func NewTwoTier[V any](memory, disk Service[V], policy Policy, opts ...Option) (*Volatile[V], error) {
	return newVolatile(policy, memory, disk, nil, opts...)
}

// NewThreeTier builds a memory -> disk -> network engine. The network tier is only read from.
func NewThreeTier[V any](memory, disk, network Service[V], policy Policy, opts ...Option) (*Volatile[V], error) {
	if network == nil {
		return nil, fmt.Errorf("%w: network tier is required for a three-tier cache", models.ErrInvalidConfig)
	}
	return newVolatile(policy, memory, disk, network, opts...)
}
