package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndParse(t *testing.T) {
	secret := []byte("test-secret")

	tok, err := SignHS256(secret, "jane", true, time.Hour)
	require.NoError(t, err)

	claims, err := ParseHS256(secret, tok)
	require.NoError(t, err)
	assert.Equal(t, "jane", claims.Username)
	assert.True(t, claims.Admin)
	assert.Equal(t, DefaultIssuer, claims.Issuer)
}

func TestParseWrongSecret(t *testing.T) {
	tok, err := SignHS256([]byte("one"), "jane", false, time.Hour)
	require.NoError(t, err)

	_, err = ParseHS256([]byte("two"), tok)
	assert.Error(t, err)
}

func TestParseExpired(t *testing.T) {
	secret := []byte("test-secret")
	// Past the 30s verification leeway.
	tok, err := SignHS256(secret, "jane", false, -2*time.Minute)
	require.NoError(t, err)

	_, err = ParseHS256(secret, tok)
	assert.Error(t, err)
}

func TestNewRandomSecretB64(t *testing.T) {
	a, err := NewRandomSecretB64(32)
	require.NoError(t, err)
	b, err := NewRandomSecretB64(32)
	require.NoError(t, err)
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
