package submit

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/ternarybob/arbor"
)

// RetryPolicy defines submission retry behavior with exponential backoff
type RetryPolicy struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	BackoffMultiplier float64
}

// NewRetryPolicy creates the default submission retry policy: up to three
// attempts, 1s base delay, doubling each attempt
func NewRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:       3,
		InitialBackoff:    time.Second,
		BackoffMultiplier: 2.0,
	}
}

// Backoff returns the delay before the attempt after the given zero-based
// attempt number
func (p *RetryPolicy) Backoff(attempt int) time.Duration {
	backoff := float64(p.InitialBackoff)
	for i := 0; i < attempt; i++ {
		backoff *= p.BackoffMultiplier
	}
	return time.Duration(backoff)
}

// Execute wraps fn with the retry loop. A non-nil error triggers the next
// attempt after the backoff delay unless attempts are exhausted or the
// context is cancelled.
func (p *RetryPolicy) Execute(ctx context.Context, logger arbor.ILogger, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if attempt < p.MaxAttempts-1 {
			backoff := p.Backoff(attempt)
			logger.Debug().
				Int("attempt", attempt+1).
				Err(lastErr).
				Dur("backoff", backoff).
				Msg("Submission attempt failed, retrying after backoff")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	logger.Warn().
		Int("max_attempts", p.MaxAttempts).
		Err(lastErr).
		Msg("All submission attempts exhausted")

	return lastErr
}

// isTransientError reports whether an error is worth logging as transient
// (timeouts and connection errors) rather than a backend rejection
func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
