package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates that the key is absent from a tier.
	// It is the only error that lets a read fall through to the next tier.
	ErrNotFound = errors.New("cache entry not found")

	// ErrExpired indicates that the storage layer itself judged the entry stale
	ErrExpired = errors.New("cache entry expired")

	// ErrInvalid indicates that a write or delete failed for storage-specific reasons
	ErrInvalid = errors.New("invalid cache operation")

	// ErrAccessDenied indicates that the store is unusable (closed or never initialized)
	ErrAccessDenied = errors.New("cache store access denied")

	// ErrInvalidConfig indicates that the cache policy or wiring is invalid
	ErrInvalidConfig = errors.New("invalid cache configuration")

	// ErrRateLimitExceeded indicates that a client exceeded its request budget
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)

// TransportError wraps an arbitrary failure of the transport or platform under a tier.
// It never matches ErrNotFound, so it always halts a cascade.
type TransportError struct {
	Op  string
	Key string
	Err error
}

func (e *TransportError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError creates a new transport error
func NewTransportError(op, key string, err error) *TransportError {
	return &TransportError{
		Op:  op,
		Key: key,
		Err: err,
	}
}

// IsNotFound reports whether err should trigger a read cascade
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
