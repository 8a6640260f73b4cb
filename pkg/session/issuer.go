package session

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrTokenMalformed is returned when the token is not a parseable JWT
	ErrTokenMalformed = errors.New("session token is malformed")

	// ErrTokenExpired is returned when the token is past its expiry
	ErrTokenExpired = errors.New("session token has expired")

	// ErrBadSignature is returned when the signature does not verify
	ErrBadSignature = errors.New("session token signature is invalid")

	// ErrTokenUnsupported is returned for tokens this issuer cannot verify
	// (e.g. a foreign signing algorithm)
	ErrTokenUnsupported = errors.New("session token is unsupported")
)

// DefaultTTL is the lifetime of an issued session token
const DefaultTTL = 24 * time.Hour

const signingKeyBytes = 64

// Issuer mints and validates self-contained bearer session tokens. The
// HMAC signing key is owned by the issuer and generated once at
// construction when not injected, so tokens do not survive a restart
// unless a key is provided.
type Issuer struct {
	key    []byte
	issuer string
	ttl    time.Duration
}

// IssuerOption configures an Issuer
type IssuerOption func(*Issuer)

// WithKey injects the signing key; all issuers sharing a key accept each
// other's tokens.
func WithKey(key []byte) IssuerOption {
	return func(i *Issuer) {
		i.key = key
	}
}

// WithTTL sets the token lifetime
func WithTTL(ttl time.Duration) IssuerOption {
	return func(i *Issuer) {
		i.ttl = ttl
	}
}

// WithIssuerName sets the iss claim
func WithIssuerName(name string) IssuerOption {
	return func(i *Issuer) {
		i.issuer = name
	}
}

// NewIssuer creates a session token issuer
func NewIssuer(opts ...IssuerOption) (*Issuer, error) {
	i := &Issuer{
		issuer: "stepauth",
		ttl:    DefaultTTL,
	}
	for _, opt := range opts {
		opt(i)
	}
	if len(i.key) == 0 {
		key := make([]byte, signingKeyBytes)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("failed to generate signing key: %w", err)
		}
		i.key = key
		slog.Info("Generated new session signing key")
	}
	return i, nil
}

// Key returns the signing key for verifier middleware sharing this issuer.
func (i *Issuer) Key() []byte {
	return i.key
}

// Issue mints a signed token for the subject, valid for the configured TTL.
func (i *Issuer) Issue(subject string) (string, time.Time, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(i.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    i.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		ID:        uuid.New().String(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	signed, err := token.SignedString(i.key)
	if err != nil {
		slog.Error("Failed to sign session token", "err", err)
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ParseSubject verifies the token and returns its subject. Failures are
// reported as one of the package sentinels depending on the defect.
func (i *Issuer) ParseSubject(tokenStr string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != jwt.SigningMethodHS512.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.key, nil
	})
	if err != nil {
		return "", classifyError(err)
	}
	return claims.Subject, nil
}

// Validate reports whether the token is well formed, signed by this
// issuer, and unexpired. It never returns an error.
func (i *Issuer) Validate(tokenStr string) bool {
	_, err := i.ParseSubject(tokenStr)
	return err == nil
}

func classifyError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrTokenMalformed
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrBadSignature
	default:
		return ErrTokenUnsupported
	}
}
