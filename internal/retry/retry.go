// Package retry provides the bounded-retry helper shared by the persistence
// and socket-receive code paths.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"
)

// Config bounds a retry loop.
type Config struct {
	MaxAttempts int           // Total attempts, including the first
	BaseBackoff time.Duration // Wait before the second attempt
	MaxBackoff  time.Duration // Backoff ceiling
}

// DefaultConfig matches the persistence policy: three attempts with a short
// backoff between them.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseBackoff: time.Second,
		MaxBackoff:  30 * time.Second,
	}
}

// permanentError marks an error that must not be retried.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps an error so Do returns it immediately without further
// attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do runs fn up to cfg.MaxAttempts times with jittered exponential backoff
// between attempts. It stops early on success, on context cancellation, or
// when fn returns an error wrapped with Permanent.
func Do(ctx context.Context, cfg Config, logger *slog.Logger, op string, fn func(context.Context) error) error {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	backoff := cfg.BaseBackoff

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			// Add jitter: backoff * (0.5 to 1.5)
			jitter := backoff/2 + time.Duration(rand.Int63n(int64(backoff)))
			logger.Debug("retrying",
				"op", op,
				"attempt", attempt,
				"backoff", jitter,
			)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(jitter):
			}

			backoff *= 2
			if cfg.MaxBackoff > 0 && backoff > cfg.MaxBackoff {
				backoff = cfg.MaxBackoff
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}

		lastErr = err
	}

	return fmt.Errorf("%s: max retries exceeded: %w", op, lastErr)
}
