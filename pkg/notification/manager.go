package notification

import (
	"fmt"
)

// NotificationSystem represents a delivery system (e.g., email).
type NotificationSystem string

const (
	EmailSystem NotificationSystem = "email"
)

// NotificationManager routes notices to registered notifiers using the
// templates registered per notice type and system.
type NotificationManager struct {
	notifiers map[NotificationSystem]Notifier
	registry  map[NoticeType]map[NotificationSystem]NoticeTemplate
}

// NewNotificationManager creates a manager and applies the given options.
func NewNotificationManager(opts ...NotificationManagerOption) (*NotificationManager, error) {
	nm := &NotificationManager{
		notifiers: make(map[NotificationSystem]Notifier),
		registry:  make(map[NoticeType]map[NotificationSystem]NoticeTemplate),
	}
	for _, opt := range opts {
		if err := opt(nm); err != nil {
			return nil, err
		}
	}
	return nm, nil
}

// RegisterNotifier registers a notifier for a delivery system.
func (nm *NotificationManager) RegisterNotifier(system NotificationSystem, notifier Notifier) {
	nm.notifiers[system] = notifier
}

// RegisterNotification adds a notice template to the registry.
func (nm *NotificationManager) RegisterNotification(notifType NoticeType, system NotificationSystem, template NoticeTemplate) error {
	if notifType == "" || system == "" {
		return fmt.Errorf("invalid input: notification type and system cannot be empty")
	}
	if _, exists := nm.registry[notifType]; !exists {
		nm.registry[notifType] = make(map[NotificationSystem]NoticeTemplate)
	}
	nm.registry[notifType][system] = template
	return nil
}

// Send delivers the notice over every system registered for its type.
func (nm *NotificationManager) Send(notifType NoticeType, notification NotificationData) error {
	systemTemplates, exists := nm.registry[notifType]
	if !exists {
		return fmt.Errorf("no templates registered for notification type: %s", notifType)
	}

	for system, template := range systemTemplates {
		notifier, exists := nm.notifiers[system]
		if !exists {
			return fmt.Errorf("no notifier registered for system: %s", system)
		}
		if err := notifier.Send(notifType, notification, template); err != nil {
			return err
		}
	}
	return nil
}
