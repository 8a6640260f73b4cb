package login

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stepauth/stepauth/pkg/session"
	"github.com/stepauth/stepauth/pkg/twofa"
	"github.com/stepauth/stepauth/pkg/user"
)

var (
	// ErrInvalidCredentials is the single failure for unknown-user and
	// wrong-password so responses never reveal which one it was
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrInvalidCode is returned when a 2FA verification code is rejected
	ErrInvalidCode = errors.New("invalid verification code")
)

// LoginResult is the outcome of a credential or 2FA check. Either Token is
// set (terminal success) or RequiresTwoFactor is true and the caller must
// follow up with VerifyTwoFactor.
type LoginResult struct {
	Token             string
	ExpiresAt         time.Time
	RequiresTwoFactor bool
	TFAType           twofa.TFAType
	User              user.User
}

// Service orchestrates the credential check, the optional 2FA step, and
// session token issuance.
type Service struct {
	users  user.Repository
	hasher PasswordHasher
	twofa  *twofa.TwoFaService
	issuer *session.Issuer
}

// NewService creates a new login service
func NewService(users user.Repository, hasher PasswordHasher, tfa *twofa.TwoFaService, issuer *session.Issuer) *Service {
	return &Service{
		users:  users,
		hasher: hasher,
		twofa:  tfa,
		issuer: issuer,
	}
}

// Login checks the password for the user identified by username or email.
// With 2FA disabled it issues a session token; with 2FA enabled it reports
// the configured type and withholds the token until VerifyTwoFactor.
func (s *Service) Login(ctx context.Context, username, password string) (LoginResult, error) {
	u, err := s.users.FindByUsernameOrEmail(ctx, username)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			slog.Info("login rejected, unknown user", "username", username)
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, fmt.Errorf("failed to find user: %w", err)
	}

	match, err := s.hasher.Verify(password, u.Password)
	if err != nil {
		return LoginResult{}, fmt.Errorf("failed to verify password: %w", err)
	}
	if !match {
		slog.Info("login rejected, wrong password", "username", u.Username)
		return LoginResult{}, ErrInvalidCredentials
	}

	if u.TfaEnabled {
		cfg, err := s.twofa.Get(ctx, u.ID)
		if err != nil {
			return LoginResult{}, fmt.Errorf("failed to load 2FA config: %w", err)
		}
		slog.Info("login requires 2FA", "username", u.Username, "type", cfg.Mode.TFAType())
		return LoginResult{
			RequiresTwoFactor: true,
			TFAType:           cfg.Mode.TFAType(),
			User:              u,
		}, nil
	}

	return s.issueToken(u)
}

// VerifyTwoFactor checks the submitted 2FA code and completes the login.
// With firstTimeSetup set, a successful check also enables 2FA on the
// account, finishing the enrollment started by Setup.
func (s *Service) VerifyTwoFactor(ctx context.Context, username, code string, firstTimeSetup bool) (LoginResult, error) {
	ok, err := s.twofa.Verify(ctx, username, code)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, fmt.Errorf("failed to verify 2FA code: %w", err)
	}
	if !ok {
		slog.Info("2FA code rejected", "username", username)
		return LoginResult{}, ErrInvalidCode
	}

	u, err := s.users.FindByUsernameOrEmail(ctx, username)
	if err != nil {
		return LoginResult{}, fmt.Errorf("failed to find user: %w", err)
	}

	if firstTimeSetup && !u.TfaEnabled {
		u.TfaEnabled = true
		u, err = s.users.Save(ctx, u)
		if err != nil {
			return LoginResult{}, fmt.Errorf("failed to enable 2FA: %w", err)
		}
		slog.Info("2FA enabled", "username", u.Username)
	}

	return s.issueToken(u)
}

// Register creates a new account with a hashed password and 2FA disabled.
func (s *Service) Register(ctx context.Context, params user.CreateUserParams) (user.User, error) {
	hashed, err := s.hasher.Hash(params.Password)
	if err != nil {
		return user.User{}, fmt.Errorf("failed to hash password: %w", err)
	}
	params.Password = hashed

	u, err := s.users.Create(ctx, params)
	if err != nil {
		return user.User{}, err
	}
	slog.Info("user registered", "username", u.Username)
	return u, nil
}

func (s *Service) issueToken(u user.User) (LoginResult, error) {
	token, expiresAt, err := s.issuer.Issue(u.Username)
	if err != nil {
		return LoginResult{}, fmt.Errorf("failed to issue session token: %w", err)
	}
	return LoginResult{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      u,
	}, nil
}
