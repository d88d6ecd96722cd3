package testutil

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessTokenClaims(t *testing.T) {
	raw := AccessToken(t, "secret", "u1", TokenOptions{Email: "u1@studio.test", Name: "Uma", Audience: "authenticated"})

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) { return []byte("secret"), nil },
		jwt.WithValidMethods([]string{"HS256"}), jwt.WithAudience("authenticated"))
	require.NoError(t, err)
	assert.Equal(t, "u1", claims["sub"])
	assert.Equal(t, "u1@studio.test", claims["email"])
}

func TestAccessTokenExpired(t *testing.T) {
	raw := AccessToken(t, "secret", "u1", TokenOptions{TTL: -time.Minute})
	_, err := jwt.Parse(raw, func(*jwt.Token) (any, error) { return []byte("secret"), nil })
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}
