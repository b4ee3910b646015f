package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyRoundTrip(t *testing.T) {
	token, err := GenerateToken("test-secret", "user-123", time.Hour)
	require.NoError(t, err)

	v := NewVerifier("test-secret")
	userID, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-123", userID)
}

func TestVerifyWrongSecret(t *testing.T) {
	token, err := GenerateToken("secret-a", "user-123", time.Hour)
	require.NoError(t, err)

	v := NewVerifier("secret-b")
	_, err = v.Verify(token)
	assert.Error(t, err)
}

func TestVerifyExpired(t *testing.T) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": "user-123",
		"iat": now.Add(-2 * time.Hour).Unix(),
		"exp": now.Add(-time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	v := NewVerifier("test-secret")
	_, err = v.Verify(token)
	assert.Error(t, err)
}

func TestVerifyMissingSubject(t *testing.T) {
	claims := jwt.MapClaims{
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	v := NewVerifier("test-secret")
	_, err = v.Verify(token)
	assert.ErrorIs(t, err, ErrNoSubject)
}

func TestVerifyRejectsUnsignedToken(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "user-123"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	v := NewVerifier("test-secret")
	_, err = v.Verify(token)
	assert.Error(t, err)
}

func TestVerifyGarbage(t *testing.T) {
	v := NewVerifier("test-secret")
	for _, tok := range []string{"", "not-a-token", "a.b.c"} {
		_, err := v.Verify(tok)
		assert.Error(t, err, "token %q should be rejected", tok)
	}
}
