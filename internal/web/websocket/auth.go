package websocket

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer is stamped on every token minted by TokenAuth
const Issuer = "declwidgets"

// ErrMissingToken is returned when a connection carries no token and auth is required
var ErrMissingToken = errors.New("missing token")

// AuthHandler authenticates a connection token and returns the subject
type AuthHandler func(ctx context.Context, token string) (subject string, err error)

// TokenAuth mints and verifies HS256 tokens for browser connections
type TokenAuth struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenAuth creates a TokenAuth signing with secret
func NewTokenAuth(secret string, ttl time.Duration) *TokenAuth {
	return &TokenAuth{secret: []byte(secret), ttl: ttl}
}

// Issue returns a signed token for subject
func (a *TokenAuth) Issue(subject string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:  subject,
		Issuer:   Issuer,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if a.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(a.ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// Verify validates token and returns its subject
func (a *TokenAuth) Verify(_ context.Context, token string) (string, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return "", ErrMissingToken
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		// Only HS256 is accepted
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithIssuer(Issuer))
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	if !parsed.Valid {
		return "", fmt.Errorf("invalid token")
	}

	return claims.Subject, nil
}

// Handler adapts Verify to an AuthHandler
func (a *TokenAuth) Handler() AuthHandler {
	return a.Verify
}
