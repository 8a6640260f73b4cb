package secrets

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"math/big"
)

// secretBytes is the raw entropy of a generated shared secret. 20 bytes
// (160 bits) matches the RFC 4226 recommendation for HMAC-SHA1 secrets.
const secretBytes = 20

// DefaultCodeLength is the length of generated numeric one-time codes.
const DefaultCodeLength = 6

var b32NoPadding = base32.StdEncoding.WithPadding(base32.NoPadding)

// GenerateSecret returns a new random shared secret encoded as unpadded
// upper-case base32, the format authenticator apps expect.
func GenerateSecret() (string, error) {
	b := make([]byte, secretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return b32NoPadding.EncodeToString(b), nil
}

// GenerateNumericCode returns a random code of the given length made of
// decimal digits, suitable for delivery over email or SMS.
func GenerateNumericCode(length int) (string, error) {
	if length <= 0 {
		length = DefaultCodeLength
	}
	code := make([]byte, length)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("failed to generate code: %w", err)
		}
		code[i] = byte('0' + n.Int64())
	}
	return string(code), nil
}
