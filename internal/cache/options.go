package cache

import (
	"time"

	"tieredcache/internal/logger"
)

type options struct {
	now    func() time.Time
	logger logger.Service
}

// Option configures tiers and the orchestration engine
type Option func(*options)

// WithClock replaces time.Now for modify-date stamping and expiry checks
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the logger used to record hits, misses, expiries and evictions
func WithLogger(l logger.Service) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		now:    time.Now,
		logger: logger.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
