package retry

import (
	"context"
	"errors"
	"time"

	"contractaid/internal/contextutil"
)

const (
	// DefaultMaxRetries is the number of retries after the first attempt.
	DefaultMaxRetries = 3
	// DefaultBaseDelay is the wait before the first retry; it doubles each time.
	DefaultBaseDelay = time.Second
	// DefaultMaxDelay caps a single wait.
	DefaultMaxDelay = 30 * time.Second
)

// Policy configures exponential backoff.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultPolicy returns the default policy: 3 retries starting at one second.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultBaseDelay,
		MaxDelay:   DefaultMaxDelay,
	}
}

// temporary is implemented by errors that may succeed on retry.
type temporary interface {
	Temporary() bool
}

// Retryable reports whether err, or any error it wraps, is temporary.
func Retryable(err error) bool {
	var t temporary
	return errors.As(err, &t) && t.Temporary()
}

// Delay returns the wait before retry number attempt (0-based).
func (p Policy) Delay(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	d := p.BaseDelay << uint(attempt)
	if d <= 0 || (p.MaxDelay > 0 && d > p.MaxDelay) {
		return p.MaxDelay
	}
	return d
}

// Do calls fn until it succeeds, returns a non-retryable error, or the
// retries are used up. Only errors reporting Temporary() == true are retried.
// The last error is returned unchanged so callers can still classify it.
func Do(ctx context.Context, p Policy, op string, fn func(ctx context.Context) error) error {
	logger := contextutil.LoggerFromContext(ctx)

	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if !Retryable(lastErr) {
			return lastErr
		}

		if attempt < p.MaxRetries {
			backoff := p.Delay(attempt)
			logger.WarnContext(ctx, "transient error, retrying",
				"op", op,
				"attempt", attempt+1,
				"backoff", backoff,
				"error", lastErr,
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	logger.ErrorContext(ctx, "retries exhausted", "op", op, "attempts", p.MaxRetries+1, "error", lastErr)
	return lastErr
}
