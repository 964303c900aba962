package websocket

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenAuthIssueVerify(t *testing.T) {
	auth := NewTokenAuth("test-secret", time.Hour)

	token, err := auth.Issue("notebook-user")
	require.NoError(t, err)

	subject, err := auth.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "notebook-user", subject)

	subject, err = auth.Handler()(context.Background(), "Bearer "+token)
	require.NoError(t, err)
	assert.Equal(t, "notebook-user", subject)
}

func TestTokenAuthRejects(t *testing.T) {
	auth := NewTokenAuth("test-secret", time.Hour)
	ctx := context.Background()

	sign := func(method jwt.SigningMethod, secret string, claims jwt.RegisteredClaims) string {
		token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
		require.NoError(t, err)
		return token
	}

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"wrong secret", sign(jwt.SigningMethodHS256, "other", jwt.RegisteredClaims{Subject: "u", Issuer: Issuer})},
		{"wrong method", sign(jwt.SigningMethodHS512, "test-secret", jwt.RegisteredClaims{Subject: "u", Issuer: Issuer})},
		{"wrong issuer", sign(jwt.SigningMethodHS256, "test-secret", jwt.RegisteredClaims{Subject: "u", Issuer: "elsewhere"})},
		{"expired", sign(jwt.SigningMethodHS256, "test-secret", jwt.RegisteredClaims{
			Subject:   "u",
			Issuer:    Issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := auth.Verify(ctx, tt.token)
			assert.Error(t, err)
		})
	}

	_, err := auth.Verify(ctx, "  ")
	assert.ErrorIs(t, err, ErrMissingToken)
}
