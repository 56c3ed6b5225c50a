// internal/auth/session.go

// Package auth authenticates moderators on the HTTP surface: Argon2id
// verification of the operator password and short-lived EdDSA session
// tokens. Chat-side privilege comes from the gateway's role data and
// never touches this package.
package auth

import (
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Sessions issues and verifies moderator session tokens. The signing
// key pair is generated fresh at startup; a restart invalidates all
// outstanding sessions, which is acceptable for a moderation surface.
type Sessions struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	ttl        time.Duration
}

// NewSessions creates a Sessions signer with a fresh key pair. A zero
// ttl means tokens never expire.
func NewSessions(ttl time.Duration) (*Sessions, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ed25519 key pair: %w", err)
	}
	return &Sessions{privateKey: priv, publicKey: pub, ttl: ttl}, nil
}

// Issue signs a session token for the named moderator.
func (s *Sessions) Issue(moderator string) (string, error) {
	claims := jwt.MapClaims{
		"sub": moderator,
		"mod": true,
	}
	if s.ttl > 0 {
		claims["exp"] = time.Now().Add(s.ttl).Unix()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(s.privateKey)
}

// Verify checks a session token and returns the moderator name.
func (s *Sessions) Verify(tokenString string) (string, error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.publicKey, nil
	})
	if err != nil {
		return "", fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return "", fmt.Errorf("invalid token")
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid jwt claims")
	}
	if isMod, _ := claims["mod"].(bool); !isMod {
		return "", fmt.Errorf("not a moderator token")
	}
	moderator, ok := claims["sub"].(string)
	if !ok {
		return "", fmt.Errorf("missing sub in jwt")
	}
	return moderator, nil
}
