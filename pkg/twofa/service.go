package twofa

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stepauth/stepauth/pkg/delivery"
	"github.com/stepauth/stepauth/pkg/notification"
	"github.com/stepauth/stepauth/pkg/secrets"
	"github.com/stepauth/stepauth/pkg/totp"
	"github.com/stepauth/stepauth/pkg/user"
)

var (
	// ErrInvalidTFAType is returned for an unknown 2FA type string
	ErrInvalidTFAType = errors.New("invalid 2FA type")

	// ErrDeliveryFailed is returned when the code email exhausted all
	// delivery attempts during setup
	ErrDeliveryFailed = errors.New("failed to send verification code after multiple attempts")

	// ErrWrongMode is returned when an operation does not apply to the
	// configured 2FA mode
	ErrWrongMode = errors.New("operation not supported for configured 2FA mode")
)

const (
	// DefaultIssuer names this service in authenticator-app entries
	DefaultIssuer = "stepauth"

	// DefaultCodeTTL bounds how long an outstanding emailed code stays
	// valid. The pre-existing behavior kept codes alive until consumed or
	// overwritten; the TTL closes that window.
	DefaultCodeTTL = 10 * time.Minute
)

// TwoFaService owns the per-user 2FA configuration lifecycle: setup and
// mode switches, QR provisioning for APP mode, code delivery and
// verification for EMAIL mode.
type TwoFaService struct {
	users    user.Repository
	configs  Repository
	notifier *notification.NotificationManager
	retrier  *delivery.Retrier
	issuer   string
	codeTTL  time.Duration
	now      func() time.Time

	// Setup is serialized per user so two racing setup calls cannot each
	// deliver a different code with only the last write surviving. The
	// locks are striped so the set stays fixed-size regardless of how
	// many users the service ever sees.
	setupLocks [64]sync.Mutex
}

// TwoFaServiceOption configures a TwoFaService
type TwoFaServiceOption func(*TwoFaService)

// WithIssuer sets the issuer name used in provisioning URIs
func WithIssuer(issuer string) TwoFaServiceOption {
	return func(s *TwoFaService) {
		s.issuer = issuer
	}
}

// WithCodeTTL sets the lifetime of outstanding emailed codes. Zero
// preserves the unbounded behavior.
func WithCodeTTL(ttl time.Duration) TwoFaServiceOption {
	return func(s *TwoFaService) {
		s.codeTTL = ttl
	}
}

// WithRetrier overrides the delivery retry policy
func WithRetrier(r *delivery.Retrier) TwoFaServiceOption {
	return func(s *TwoFaService) {
		s.retrier = r
	}
}

// WithClock overrides the time source, used by tests
func WithClock(now func() time.Time) TwoFaServiceOption {
	return func(s *TwoFaService) {
		s.now = now
	}
}

// NewTwoFaService creates a new 2FA service
func NewTwoFaService(users user.Repository, configs Repository, notifier *notification.NotificationManager, opts ...TwoFaServiceOption) *TwoFaService {
	s := &TwoFaService{
		users:    users,
		configs:  configs,
		notifier: notifier,
		retrier:  delivery.NewRetrier(),
		issuer:   DefaultIssuer,
		codeTTL:  DefaultCodeTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *TwoFaService) userLock(userID uuid.UUID) *sync.Mutex {
	// Random UUIDs spread evenly over the stripes; a collision only costs
	// contention, never correctness.
	return &s.setupLocks[int(userID[0])%len(s.setupLocks)]
}

// Setup creates or updates the user's 2FA configuration for the requested
// type. Re-running setup for APP mode with a cached QR URI is idempotent;
// every other combination regenerates the secret, and EMAIL mode generates
// and delivers a fresh code. A delivery failure aborts the whole setup.
func (s *TwoFaService) Setup(ctx context.Context, username string, tfaType TFAType) (Config, error) {
	if tfaType != TFATypeApp && tfaType != TFATypeEmail {
		return Config{}, fmt.Errorf("%w: %s", ErrInvalidTFAType, tfaType)
	}

	// Reload the user so the decision is made against the latest state.
	u, err := s.users.FindByUsernameOrEmail(ctx, username)
	if err != nil {
		return Config{}, fmt.Errorf("failed to load user %q: %w", username, err)
	}

	mu := s.userLock(u.ID)
	mu.Lock()
	defer mu.Unlock()

	cfg, err := s.configs.GetByUserID(ctx, u.ID)
	switch {
	case err == nil:
		if app, ok := cfg.Mode.(AppMode); ok && tfaType == TFATypeApp && app.QRCodeURI != "" {
			// Idempotent re-setup: keep the secret and cached QR rather
			// than churning the authenticator entry.
			slog.Info("Returning existing APP config", "username", username)
			return cfg, nil
		}
	case errors.Is(err, ErrConfigNotFound):
		cfg = Config{UserID: u.ID}
	default:
		return Config{}, fmt.Errorf("failed to load 2FA config: %w", err)
	}

	secret, err := secrets.GenerateSecret()
	if err != nil {
		return Config{}, err
	}

	switch tfaType {
	case TFATypeApp:
		// QR URI is derived lazily on first request; any stale pending
		// code goes away with the mode switch.
		cfg.Mode = AppMode{SecretKey: secret}
	case TFATypeEmail:
		code, err := secrets.GenerateNumericCode(secrets.DefaultCodeLength)
		if err != nil {
			return Config{}, err
		}
		if err := s.sendCodeEmail(ctx, u.Email, code); err != nil {
			return Config{}, err
		}
		cfg.Mode = EmailMode{SecretKey: secret, PendingCode: code, CodeIssuedAt: s.now().UTC()}
	}

	saved, err := s.configs.Save(ctx, cfg)
	if err != nil {
		return Config{}, fmt.Errorf("failed to save 2FA config: %w", err)
	}
	slog.Info("2FA setup complete", "username", username, "type", tfaType)
	return saved, nil
}

// QRCodeURI returns the otpauth provisioning URI for an APP config,
// deriving and caching it on first request.
func (s *TwoFaService) QRCodeURI(ctx context.Context, username string, cfg Config) (string, error) {
	app, ok := cfg.Mode.(AppMode)
	if !ok {
		return "", ErrWrongMode
	}
	if app.QRCodeURI != "" {
		slog.Info("Returning existing QR code URI", "username", username)
		return app.QRCodeURI, nil
	}

	app.QRCodeURI = totp.ProvisioningURI(s.issuer, username, app.SecretKey)
	cfg.Mode = app
	if _, err := s.configs.Save(ctx, cfg); err != nil {
		return "", fmt.Errorf("failed to cache QR code URI: %w", err)
	}
	slog.Info("Generated and stored new QR code URI", "username", username)
	return app.QRCodeURI, nil
}

// Get returns the user's 2FA configuration.
func (s *TwoFaService) Get(ctx context.Context, userID uuid.UUID) (Config, error) {
	return s.configs.GetByUserID(ctx, userID)
}

// Verify checks a submitted second-factor code for the user. A missing
// configuration or a wrong code yields false, never an error; only a
// missing user or storage failure is reported as an error.
func (s *TwoFaService) Verify(ctx context.Context, username, code string) (bool, error) {
	u, err := s.users.FindByUsernameOrEmail(ctx, username)
	if err != nil {
		return false, fmt.Errorf("failed to load user %q: %w", username, err)
	}

	mu := s.userLock(u.ID)
	mu.Lock()
	defer mu.Unlock()

	cfg, err := s.configs.GetByUserID(ctx, u.ID)
	if err != nil {
		if errors.Is(err, ErrConfigNotFound) {
			slog.Warn("No 2FA configuration found for user", "username", username)
			return false, nil
		}
		return false, fmt.Errorf("failed to load 2FA config: %w", err)
	}

	switch m := cfg.Mode.(type) {
	case EmailMode:
		return s.verifyEmailCode(ctx, username, cfg, m, code)
	case AppMode:
		valid := totp.Verify(m.SecretKey, code, s.now())
		if valid {
			slog.Info("Valid TOTP code provided", "username", username)
		} else {
			slog.Warn("Invalid TOTP code provided", "username", username)
		}
		return valid, nil
	}
	return false, fmt.Errorf("unknown 2FA mode")
}

func (s *TwoFaService) verifyEmailCode(ctx context.Context, username string, cfg Config, m EmailMode, code string) (bool, error) {
	if m.PendingCode == "" {
		slog.Warn("No outstanding email code", "username", username)
		return false, nil
	}

	if s.codeTTL > 0 && s.now().Sub(m.CodeIssuedAt) > s.codeTTL {
		slog.Warn("Outstanding email code expired", "username", username)
		m.PendingCode = ""
		m.CodeIssuedAt = time.Time{}
		cfg.Mode = m
		if _, err := s.configs.Save(ctx, cfg); err != nil {
			return false, fmt.Errorf("failed to clear expired code: %w", err)
		}
		return false, nil
	}

	if subtle.ConstantTimeCompare([]byte(code), []byte(m.PendingCode)) != 1 {
		// The code stays outstanding so the user can retry.
		slog.Warn("Invalid email code provided", "username", username)
		return false, nil
	}

	// Single use: consuming the code clears it.
	m.PendingCode = ""
	m.CodeIssuedAt = time.Time{}
	cfg.Mode = m
	if _, err := s.configs.Save(ctx, cfg); err != nil {
		return false, fmt.Errorf("failed to consume code: %w", err)
	}
	slog.Info("Valid email code provided", "username", username)
	return true, nil
}

func (s *TwoFaService) sendCodeEmail(ctx context.Context, email, code string) error {
	err := s.retrier.Do(ctx, func() error {
		return s.notifier.Send(notification.TwofaCodeNotice, notification.NotificationData{
			To:   email,
			Data: map[string]string{"Code": code},
		})
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	return nil
}
