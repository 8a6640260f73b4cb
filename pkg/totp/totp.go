package totp

import (
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// Canonical authenticator-app parameters. Codes are six SHA-1 digits over a
// 30 second step; verification tolerates one step of clock skew, so a code
// minted two or more steps away is rejected.
const (
	Period = 30
	Digits = 6
	Skew   = 1
)

var validateOpts = totp.ValidateOpts{
	Period:    Period,
	Skew:      Skew,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// Verify checks a submitted passcode against the shared secret at the given
// time. A malformed secret or passcode counts as an invalid code, never an
// error: wrong input from a client must not look like a system failure.
func Verify(secret, passcode string, at time.Time) bool {
	valid, err := totp.ValidateCustom(passcode, secret, at.UTC(), validateOpts)
	if err != nil {
		slog.Warn("Failed to validate totp passcode", "err", err)
		return false
	}
	return valid
}

// GenerateCode computes the passcode for the secret at the given time.
func GenerateCode(secret string, at time.Time) (string, error) {
	code, err := totp.GenerateCodeCustom(secret, at.UTC(), validateOpts)
	if err != nil {
		return "", fmt.Errorf("failed to generate totp passcode: %w", err)
	}
	return code, nil
}

// ProvisioningURI returns the canonical otpauth:// URI for enrolling the
// secret in an authenticator app. The caller renders it as a QR code; the
// core only ever deals in the URI string.
func ProvisioningURI(issuer, accountName, secret string) string {
	v := url.Values{}
	v.Set("secret", secret)
	v.Set("issuer", issuer)
	v.Set("algorithm", otp.AlgorithmSHA1.String())
	v.Set("digits", strconv.Itoa(Digits))
	v.Set("period", strconv.Itoa(Period))

	u := url.URL{
		Scheme:   "otpauth",
		Host:     "totp",
		Path:     "/" + issuer + ":" + accountName,
		RawQuery: v.Encode(),
	}
	return u.String()
}
