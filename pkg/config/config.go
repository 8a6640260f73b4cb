package config

import (
	"time"

	dbutils "github.com/tendant/db-utils/db"

	"github.com/stepauth/stepauth/pkg/notification"
)

// DatabaseConfig selects the Postgres instance backing the user and 2FA
// repositories when persistence type is "postgres".
type DatabaseConfig struct {
	Host     string `env:"AUTH_PG_HOST" env-default:"localhost"`
	Port     uint16 `env:"AUTH_PG_PORT" env-default:"5432"`
	Database string `env:"AUTH_PG_DATABASE" env-default:"auth_db"`
	User     string `env:"AUTH_PG_USER" env-default:"auth"`
	Password string `env:"AUTH_PG_PASSWORD" env-default:"pwd"`
}

// ToDbConfig converts to the db-utils pool config
func (d DatabaseConfig) ToDbConfig() dbutils.DbConfig {
	return dbutils.DbConfig{
		Host:     d.Host,
		Port:     d.Port,
		Database: d.Database,
		User:     d.User,
		Password: d.Password,
	}
}

// EmailConfig holds the SMTP settings for outbound notices
type EmailConfig struct {
	Host     string `env:"EMAIL_HOST" env-default:"localhost"`
	Port     int    `env:"EMAIL_PORT" env-default:"1025"`
	TLS      bool   `env:"EMAIL_TLS" env-default:"false"`
	Username string `env:"EMAIL_USERNAME"`
	Password string `env:"EMAIL_PASSWORD"`
	From     string `env:"EMAIL_FROM" env-default:"noreply@example.com"`
}

// ToSMTPConfig converts to the notification package's SMTP config
func (e EmailConfig) ToSMTPConfig() notification.SMTPConfig {
	return notification.SMTPConfig{
		Host:     e.Host,
		Port:     e.Port,
		TLS:      e.TLS,
		Username: e.Username,
		Password: e.Password,
		From:     e.From,
	}
}

// SessionConfig controls session token issuance. An empty secret means the
// server generates a fresh signing key at startup, invalidating sessions
// across restarts.
type SessionConfig struct {
	Secret   string `env:"SESSION_JWT_SECRET"`
	TTLHours int    `env:"SESSION_TTL_HOURS" env-default:"24"`
	Issuer   string `env:"SESSION_ISSUER" env-default:"stepauth"`
}

// TTL returns the session lifetime as a duration
func (s SessionConfig) TTL() time.Duration {
	return time.Duration(s.TTLHours) * time.Hour
}

// TwoFaConfig controls 2FA enrollment and emailed-code lifetime
type TwoFaConfig struct {
	Issuer         string `env:"TWOFA_ISSUER" env-default:"stepauth"`
	CodeTTLMinutes int    `env:"TWOFA_CODE_TTL_MINUTES" env-default:"10"`
}

// CodeTTL returns the emailed-code lifetime as a duration
func (t TwoFaConfig) CodeTTL() time.Duration {
	return time.Duration(t.CodeTTLMinutes) * time.Minute
}

// ResetConfig controls the password reset flow
type ResetConfig struct {
	BaseURL         string `env:"RESET_BASE_URL" env-default:"http://localhost:3000/reset-password"`
	TokenTTLMinutes int    `env:"RESET_TOKEN_TTL_MINUTES" env-default:"30"`
}

// TokenTTL returns the reset token lifetime as a duration
func (r ResetConfig) TokenTTL() time.Duration {
	return time.Duration(r.TokenTTLMinutes) * time.Minute
}

// CaptchaConfig controls the CAPTCHA check on credential endpoints. An
// empty secret disables the check.
type CaptchaConfig struct {
	Secret    string `env:"CAPTCHA_SECRET"`
	SiteKey   string `env:"CAPTCHA_SITE_KEY"`
	VerifyURL string `env:"CAPTCHA_VERIFY_URL"`
}

// PersistenceConfig selects the repository backend
type PersistenceConfig struct {
	Type string `env:"PERSISTENCE_TYPE" env-default:"inmem"`
}

// Config is the full server configuration, populated from the environment
type Config struct {
	Database    DatabaseConfig
	Email       EmailConfig
	Session     SessionConfig
	TwoFa       TwoFaConfig
	Reset       ResetConfig
	Captcha     CaptchaConfig
	Persistence PersistenceConfig
}
