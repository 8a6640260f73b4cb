package captcha

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultVerifyURL is the Google reCAPTCHA verification endpoint
const DefaultVerifyURL = "https://www.google.com/recaptcha/api/siteverify"

// Validator verifies CAPTCHA response tokens against an external verifier
// over HTTPS. An empty secret disables verification, for local development
// and tests.
type Validator struct {
	verifyURL string
	secret    string
	siteKey   string
	client    *http.Client
}

// ValidatorOption configures a Validator
type ValidatorOption func(*Validator)

// WithVerifyURL overrides the verification endpoint
func WithVerifyURL(u string) ValidatorOption {
	return func(v *Validator) {
		v.verifyURL = u
	}
}

// WithHTTPClient overrides the HTTP client
func WithHTTPClient(c *http.Client) ValidatorOption {
	return func(v *Validator) {
		v.client = c
	}
}

// NewValidator creates a CAPTCHA validator. The secret is provisioned out
// of band; the site key is only echoed to clients for widget rendering.
func NewValidator(secret, siteKey string, opts ...ValidatorOption) *Validator {
	v := &Validator{
		verifyURL: DefaultVerifyURL,
		secret:    secret,
		siteKey:   siteKey,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Enabled reports whether CAPTCHA verification is configured.
func (v *Validator) Enabled() bool {
	return v.secret != ""
}

// SiteKey returns the public site key for clients.
func (v *Validator) SiteKey() string {
	return v.siteKey
}

// Verify checks the client's CAPTCHA response token with the external
// verifier. Any transport or decode failure counts as a failed check.
func (v *Validator) Verify(ctx context.Context, responseToken string) bool {
	if !v.Enabled() {
		return true
	}

	form := url.Values{}
	form.Set("secret", v.secret)
	form.Set("response", responseToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		slog.Error("Failed to build captcha request", "err", err)
		return false
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		slog.Warn("Captcha verification request failed", "err", err)
		return false
	}
	defer resp.Body.Close()

	var result struct {
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Warn("Failed to decode captcha response", "err", err)
		return false
	}
	return result.Success
}
