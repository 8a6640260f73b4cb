package reset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/stepauth/stepauth/pkg/login"
	"github.com/stepauth/stepauth/pkg/notification"
	"github.com/stepauth/stepauth/pkg/tokenstore"
	"github.com/stepauth/stepauth/pkg/user"
)

var (
	// ErrInvalidToken is returned for an unknown, expired, or already-used
	// reset token.
	ErrInvalidToken = errors.New("invalid or expired reset token")

	// ErrDeliveryFailed is returned when the reset email could not be
	// sent on a flow that is allowed to surface the failure.
	ErrDeliveryFailed = errors.New("failed to send password reset email")
)

const (
	// DefaultTokenTTL bounds how long a reset link stays usable
	DefaultTokenTTL = 30 * time.Minute

	// DefaultBaseURL prefixes the token in the emailed reset link
	DefaultBaseURL = "http://localhost:3000/reset-password"
)

// Service drives the forgot-password flow: issue a single-use expiring
// token, email the reset link, and on consumption rehash the password.
type Service struct {
	users    user.Repository
	tokens   *tokenstore.Store
	notifier *notification.NotificationManager
	hasher   login.PasswordHasher
	baseURL  string
	tokenTTL time.Duration
}

// ServiceOption configures a reset Service
type ServiceOption func(*Service)

// WithBaseURL sets the link prefix used in reset emails
func WithBaseURL(baseURL string) ServiceOption {
	return func(s *Service) {
		s.baseURL = baseURL
	}
}

// WithTokenTTL sets the reset token lifetime
func WithTokenTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		s.tokenTTL = ttl
	}
}

// NewService creates a new password reset service. The token store is
// owned by the service so reset tokens never mix with other token spaces.
func NewService(users user.Repository, notifier *notification.NotificationManager, hasher login.PasswordHasher, opts ...ServiceOption) *Service {
	s := &Service{
		users:    users,
		notifier: notifier,
		hasher:   hasher,
		baseURL:  DefaultBaseURL,
		tokenTTL: DefaultTokenTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.tokens = tokenstore.NewStore(tokenstore.WithTTL(s.tokenTTL))
	return s
}

// Tokens exposes the underlying store so callers can run its sweeper.
func (s *Service) Tokens() *tokenstore.Store {
	return s.tokens
}

// InitiateReset issues a reset token and emails the link. It never reports
// whether the identity exists, and a failed email send is logged but still
// reported as success, so the endpoint cannot be used for enumeration.
func (s *Service) InitiateReset(ctx context.Context, usernameOrEmail string) error {
	u, err := s.users.FindByUsernameOrEmail(ctx, usernameOrEmail)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			slog.Info("password reset requested for unknown identity", "identifier", usernameOrEmail)
			return nil
		}
		return fmt.Errorf("failed to find user: %w", err)
	}

	if err := s.sendResetLink(u); err != nil {
		slog.Error("failed to send password reset email", "username", u.Username, "err", err)
	}
	return nil
}

// RequestReset sends a reset link for an already-authenticated user. The
// identity is known to the caller, so unlike InitiateReset a delivery
// failure is reported instead of swallowed.
func (s *Service) RequestReset(ctx context.Context, username string) error {
	u, err := s.users.FindByUsernameOrEmail(ctx, username)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}

	if err := s.sendResetLink(u); err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	return nil
}

func (s *Service) sendResetLink(u user.User) error {
	token := s.tokens.Issue(u.Username)
	link := fmt.Sprintf("%s?token=%s", s.baseURL, token)

	return s.notifier.Send(notification.PasswordResetNotice, notification.NotificationData{
		To: u.Email,
		Data: map[string]string{
			"Link":          link,
			"ExpireMinutes": strconv.Itoa(int(s.tokenTTL.Minutes())),
		},
	})
}

// ValidateToken reports the username behind a live token without consuming
// it, so the reset page can check the link before the user types anything.
func (s *Service) ValidateToken(token string) (string, error) {
	username, err := s.tokens.Validate(token)
	if err != nil {
		return "", ErrInvalidToken
	}
	return username, nil
}

// ResetPassword consumes the token and replaces the user's password hash.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	username, err := s.tokens.Consume(token)
	if err != nil {
		return ErrInvalidToken
	}

	u, err := s.users.FindByUsernameOrEmail(ctx, username)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}

	hashed, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	u.Password = hashed
	if _, err := s.users.Save(ctx, u); err != nil {
		return fmt.Errorf("failed to save password: %w", err)
	}

	slog.Info("password reset completed", "username", username)
	return nil
}
