package notification

import (
	"errors"
	"sync"
)

// MockNotifier records sent notifications for tests. FailuresRemaining makes
// the first N sends fail, which exercises the delivery retry path. Safe for
// concurrent sends.
type MockNotifier struct {
	mu                sync.Mutex
	SentNotifications []NotificationData
	FailuresRemaining int
	Attempts          int
}

func (m *MockNotifier) Send(noticeType NoticeType, notification NotificationData, template NoticeTemplate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Attempts++
	if m.FailuresRemaining > 0 {
		m.FailuresRemaining--
		return errors.New("mock notifier: send failed")
	}
	m.SentNotifications = append(m.SentNotifications, notification)
	return nil
}
