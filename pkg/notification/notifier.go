package notification

// NotificationData carries one outbound message. Data feeds the registered
// template for the notice type.
type NotificationData struct {
	To      string            // Recipient identifier (e.g., email address)
	Subject string            // Optional: overrides the template subject
	Body    string            // Optional: literal body when no template applies
	Data    map[string]string // Template values (e.g., the one-time code)
}

// NoticeType identifies a kind of notice (e.g., 2FA code, password reset).
type NoticeType string

const (
	TwofaCodeNotice     NoticeType = "twofa_code"
	PasswordResetNotice NoticeType = "password_reset_init"
	TestEmailNotice     NoticeType = "test_email"
)

// NoticeTemplate holds the subject and body templates for a notice type.
type NoticeTemplate struct {
	Subject string
	Text    string
	Html    string
}

// Notifier sends a rendered notice over one delivery system.
type Notifier interface {
	Send(noticeType NoticeType, notification NotificationData, template NoticeTemplate) error
}
