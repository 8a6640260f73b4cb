package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fastRetrier keeps the default attempt count and backoff shape but shrinks
// the delays so the suite stays quick.
func fastRetrier() *Retrier {
	return &Retrier{
		MaxAttempts:       DefaultMaxAttempts,
		InitialRetryDelay: 40 * time.Millisecond,
		BackoffMultiplier: DefaultBackoffMultiplier,
	}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	r := fastRetrier()

	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesThenSucceeds(t *testing.T) {
	r := fastRetrier()

	calls := 0
	var stamps []time.Time
	err := r.Do(context.Background(), func() error {
		calls++
		stamps = append(stamps, time.Now())
		if calls < 3 {
			return errors.New("smtp unavailable")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls, "fails twice then succeeds on the third attempt")

	// backoff doubles: second wait is at least twice the initial delay
	require.Len(t, stamps, 3)
	assert.GreaterOrEqual(t, stamps[1].Sub(stamps[0]), r.InitialRetryDelay)
	assert.GreaterOrEqual(t, stamps[2].Sub(stamps[1]), 2*r.InitialRetryDelay)
}

func TestDoExhaustsAttempts(t *testing.T) {
	r := fastRetrier()

	calls := 0
	sendErr := errors.New("connection refused")
	err := r.Do(context.Background(), func() error {
		calls++
		return sendErr
	})

	require.Error(t, err)
	assert.Equal(t, DefaultMaxAttempts, calls)
	assert.ErrorIs(t, err, sendErr, "the last failure is surfaced")
}

func TestDoHonorsContextCancellation(t *testing.T) {
	r := fastRetrier()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	calls := 0
	err := r.Do(ctx, func() error {
		calls++
		return errors.New("down")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, calls, "cancellation during the first wait stops further attempts")
}

func TestSendWithRetry(t *testing.T) {
	r := fastRetrier()

	ok := r.SendWithRetry(context.Background(), func() error { return nil })
	assert.True(t, ok)

	ok = r.SendWithRetry(context.Background(), func() error { return errors.New("down") })
	assert.False(t, ok)
}

func TestNewRetrierDefaults(t *testing.T) {
	r := NewRetrier()
	assert.Equal(t, 3, r.MaxAttempts)
	assert.Equal(t, time.Second, r.InitialRetryDelay)
	assert.Equal(t, 2.0, r.BackoffMultiplier)
}
