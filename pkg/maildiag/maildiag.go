package maildiag

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/stepauth/stepauth/pkg/delivery"
	"github.com/stepauth/stepauth/pkg/notification"
)

// Service sends diagnostic test emails through the same delivery path used
// for real notices, so operators can probe SMTP health end to end.
type Service struct {
	notifier *notification.NotificationManager
	retrier  *delivery.Retrier
}

// NewService creates a mail diagnostic service
func NewService(notifier *notification.NotificationManager, opts ...ServiceOption) *Service {
	s := &Service{
		notifier: notifier,
		retrier:  delivery.NewRetrier(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ServiceOption configures a maildiag Service
type ServiceOption func(*Service)

// WithRetrier overrides the delivery retry policy
func WithRetrier(r *delivery.Retrier) ServiceOption {
	return func(s *Service) {
		s.retrier = r
	}
}

// SendTestEmail sends a diagnostic email with the standard retry policy.
// The outcome is a plain boolean; delivery problems are an operational
// signal here, never an application error.
func (s *Service) SendTestEmail(ctx context.Context, to string) bool {
	attempt := 0
	ok := s.retrier.SendWithRetry(ctx, func() error {
		attempt++
		return s.notifier.Send(notification.TestEmailNotice, notification.NotificationData{
			To:   to,
			Data: map[string]string{"Attempt": strconv.Itoa(attempt)},
		})
	})
	if !ok {
		slog.Error("test email delivery exhausted all attempts", "to", to)
	}
	return ok
}
