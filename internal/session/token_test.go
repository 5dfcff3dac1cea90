package session

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signed(t *testing.T, claims jwt.StandardClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("k"))
	require.NoError(t, err)
	return token
}

func TestTokenExpired(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	tests := []struct {
		name  string
		token string
		want  bool
	}{
		{"future exp", signed(t, jwt.StandardClaims{ExpiresAt: now.Add(time.Minute).Unix()}), false},
		{"past exp", signed(t, jwt.StandardClaims{ExpiresAt: now.Add(-time.Minute).Unix()}), true},
		{"exp equal to now", signed(t, jwt.StandardClaims{ExpiresAt: now.Unix()}), true},
		{"no exp", signed(t, jwt.StandardClaims{Subject: "x"}), false},
		{"opaque token", "not-a-jwt", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tokenExpired(tt.token, now))
		})
	}
}
