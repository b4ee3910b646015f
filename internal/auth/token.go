// Package auth verifies and mints the bearer tokens clients present
// during the realtime handshake.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenExpiry is the default lifetime for minted tokens.
const TokenExpiry = 24 * time.Hour

var ErrNoSubject = errors.New("token has no subject")

// Verifier validates HS256-signed bearer tokens.
type Verifier struct {
	secret string
}

// NewVerifier creates a Verifier for the given shared secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: secret}
}

// Verify parses and validates a token, returning the user ID from the
// subject claim. Any parse, signature, or expiry failure is returned as
// an error; the caller must refuse the connection.
func (v *Verifier) Verify(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(v.secret), nil
	})
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid token claims")
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", ErrNoSubject
	}
	return sub, nil
}

// GenerateToken mints a signed token for the given user ID. Used by the
// CLI for development tokens and by tests.
func GenerateToken(secret, userID string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = TokenExpiry
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": userID,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
		"iss": "chatlite",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
