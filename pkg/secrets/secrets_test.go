package secrets

import (
	"encoding/base32"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSecret(t *testing.T) {
	secret, err := GenerateSecret()
	require.NoError(t, err)

	// 20 bytes of entropy encode to 32 base32 characters without padding
	assert.Len(t, secret, 32)

	decoded, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(secret)
	require.NoError(t, err)
	assert.Len(t, decoded, secretBytes)

	other, err := GenerateSecret()
	require.NoError(t, err)
	assert.NotEqual(t, secret, other, "two generated secrets should differ")
}

func TestGenerateNumericCode(t *testing.T) {
	t.Run("DefaultLength", func(t *testing.T) {
		code, err := GenerateNumericCode(0)
		require.NoError(t, err)
		assert.Len(t, code, DefaultCodeLength)
	})

	t.Run("DigitsOnly", func(t *testing.T) {
		code, err := GenerateNumericCode(8)
		require.NoError(t, err)
		assert.Len(t, code, 8)
		for _, c := range code {
			assert.True(t, c >= '0' && c <= '9', "code must contain only digits, got %q", code)
		}
	})
}
