package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Retry policy for out-of-band code delivery: up to three attempts, the
// first immediate, then waits of 1s and 2s before the remaining attempts.
const (
	DefaultMaxAttempts       = 3
	DefaultInitialRetryDelay = 1000 * time.Millisecond
	DefaultBackoffMultiplier = 2.0
)

// Retrier wraps an unreliable side effect, typically an email send, with
// bounded retries and exponential backoff. The waits honor context
// cancellation so a caller-level request timeout cuts the retry loop short.
type Retrier struct {
	MaxAttempts       int
	InitialRetryDelay time.Duration
	BackoffMultiplier float64
}

// NewRetrier returns a Retrier with the default policy
func NewRetrier() *Retrier {
	return &Retrier{
		MaxAttempts:       DefaultMaxAttempts,
		InitialRetryDelay: DefaultInitialRetryDelay,
		BackoffMultiplier: DefaultBackoffMultiplier,
	}
}

// Do runs the action until it succeeds or attempts are exhausted, returning
// nil on the first success. On exhaustion the last failure is surfaced.
func (r *Retrier) Do(ctx context.Context, action func() error) error {
	var lastErr error
	delay := r.InitialRetryDelay

	for attempt := 1; attempt <= r.MaxAttempts; attempt++ {
		if attempt > 1 {
			slog.Info("Retrying delivery", "attempt", attempt, "wait", delay)
			select {
			case <-ctx.Done():
				return fmt.Errorf("delivery cancelled: %w", ctx.Err())
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * r.BackoffMultiplier)
		}

		if err := action(); err != nil {
			lastErr = err
			slog.Warn("Delivery attempt failed", "attempt", attempt, "err", err)
			continue
		}
		return nil
	}

	slog.Error("All delivery attempts failed", "attempts", r.MaxAttempts, "err", lastErr)
	return fmt.Errorf("delivery failed after %d attempts: %w", r.MaxAttempts, lastErr)
}

// SendWithRetry reports the outcome as a plain boolean for callers that must
// not escalate a delivery failure, such as the diagnostic test-email path.
func (r *Retrier) SendWithRetry(ctx context.Context, action func() error) bool {
	return r.Do(ctx, action) == nil
}
