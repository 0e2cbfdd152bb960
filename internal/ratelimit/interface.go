package ratelimit

import "context"

// Service defines the interface for rate limiting
// External packages should use this interface, not the concrete implementations.
// key identifies the caller being limited: a client IP or an upstream host.
type Service interface {
	Allow(key string) bool
	Wait(ctx context.Context, key string) error
}
