package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Config controls exponential backoff when connecting to external services
type Config struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
	Multiplier      float64
}

// DefaultConfig returns the backoff used when none is configured
func DefaultConfig() Config {
	return Config{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		MaxElapsedTime:  time.Minute,
		Multiplier:      2.0,
	}
}

// Permanent wraps err so that Do stops retrying immediately
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs op until it succeeds, returns a permanent error, the backoff is
// exhausted or ctx is done. notify is called before every wait and may be nil.
func Do(ctx context.Context, cfg Config, op func() error, notify func(err error, wait time.Duration)) error {
	b := backoff.NewExponentialBackOff()
	if cfg.InitialInterval > 0 {
		b.InitialInterval = cfg.InitialInterval
	}
	if cfg.MaxInterval > 0 {
		b.MaxInterval = cfg.MaxInterval
	}
	if cfg.Multiplier > 0 {
		b.Multiplier = cfg.Multiplier
	}
	b.MaxElapsedTime = cfg.MaxElapsedTime
	b.RandomizationFactor = 0.5

	return backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify)
}
