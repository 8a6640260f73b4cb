package maildiag

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepauth/stepauth/pkg/delivery"
	"github.com/stepauth/stepauth/pkg/notification"
)

func newDiagEnv(t *testing.T, mock *notification.MockNotifier) *Service {
	t.Helper()
	nm, err := notification.NewNotificationManager(
		notification.WithNotifier(notification.EmailSystem, mock),
		notification.WithTestEmailTemplate(),
	)
	require.NoError(t, err)
	return NewService(nm, WithRetrier(&delivery.Retrier{
		MaxAttempts:       3,
		InitialRetryDelay: time.Millisecond,
		BackoffMultiplier: 2.0,
	}))
}

func TestSendTestEmailSucceeds(t *testing.T) {
	mock := &notification.MockNotifier{}
	svc := newDiagEnv(t, mock)

	ok := svc.SendTestEmail(context.Background(), "ops@example.com")
	assert.True(t, ok)
	require.Len(t, mock.SentNotifications, 1)
	assert.Equal(t, "ops@example.com", mock.SentNotifications[0].To)
	assert.Equal(t, "1", mock.SentNotifications[0].Data["Attempt"])
}

func TestSendTestEmailRecoversAfterTransientFailure(t *testing.T) {
	mock := &notification.MockNotifier{FailuresRemaining: 2}
	svc := newDiagEnv(t, mock)

	ok := svc.SendTestEmail(context.Background(), "ops@example.com")
	assert.True(t, ok)
	require.Len(t, mock.SentNotifications, 1)
	assert.Equal(t, "3", mock.SentNotifications[0].Data["Attempt"])
}

func TestSendTestEmailExhaustsRetries(t *testing.T) {
	mock := &notification.MockNotifier{FailuresRemaining: 3}
	svc := newDiagEnv(t, mock)

	ok := svc.SendTestEmail(context.Background(), "ops@example.com")
	assert.False(t, ok)
	assert.Empty(t, mock.SentNotifications)
}
