package cache

import (
	"fmt"
	"time"

	"tieredcache/internal/models"
)

// Policy holds the cross-tier rules the orchestration engine enforces
type Policy struct {
	// Expiry is how long after its write an entry stays readable
	Expiry time.Duration
	// MaximumSize bounds the number of keys held by the disk tier
	MaximumSize int
}

// Validate checks that both limits are positive
func (p Policy) Validate() error {
	if p.Expiry <= 0 {
		return fmt.Errorf("%w: expiry must be positive, got: %v", models.ErrInvalidConfig, p.Expiry)
	}
	if p.MaximumSize <= 0 {
		return fmt.Errorf("%w: maximum size must be positive, got: %d", models.ErrInvalidConfig, p.MaximumSize)
	}
	return nil
}
