package twofa

import (
	"time"

	"github.com/google/uuid"
)

// TFAType selects the second-factor mode for a user.
type TFAType string

const (
	TFATypeApp   TFAType = "APP"
	TFATypeEmail TFAType = "EMAIL"
)

// ParseTFAType validates a client-supplied type string.
func ParseTFAType(s string) (TFAType, bool) {
	switch TFAType(s) {
	case TFATypeApp:
		return TFATypeApp, true
	case TFATypeEmail:
		return TFATypeEmail, true
	}
	return "", false
}

// Mode is the per-type 2FA state. The two implementations are the only
// ones; the sealed marker keeps verification dispatch exhaustive.
type Mode interface {
	TFAType() TFAType
	// Secret returns the shared secret. Sensitive: never logged.
	Secret() string
	sealedMode()
}

// AppMode holds the state for authenticator-app verification. QRCodeURI is
// a cached derivation of secret+issuer, populated lazily on first request.
type AppMode struct {
	SecretKey string
	QRCodeURI string
}

func (m AppMode) TFAType() TFAType { return TFATypeApp }
func (m AppMode) Secret() string   { return m.SecretKey }
func (m AppMode) sealedMode()      {}

// EmailMode holds the state for emailed one-time codes. PendingCode is
// non-empty only while a code is outstanding and unconsumed.
type EmailMode struct {
	SecretKey    string
	PendingCode  string
	CodeIssuedAt time.Time
}

func (m EmailMode) TFAType() TFAType { return TFATypeEmail }
func (m EmailMode) Secret() string   { return m.SecretKey }
func (m EmailMode) sealedMode()      {}

// Config is the 2FA configuration, one per user at most.
type Config struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Mode      Mode
	CreatedAt time.Time
	UpdatedAt time.Time
}
