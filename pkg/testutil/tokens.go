// Package testutil provides helpers shared by package tests.
package testutil

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenOptions tweaks a test access token.
type TokenOptions struct {
	Email    string
	Name     string
	Issuer   string
	Audience string
	// TTL defaults to one hour; a negative TTL yields an expired token.
	TTL time.Duration
}

// AccessToken signs an HS256 token shaped like a Supabase access token for
// userID. It fails the test on signing errors.
func AccessToken(t testing.TB, secret, userID string, opts TokenOptions) string {
	t.Helper()
	ttl := opts.TTL
	if ttl == 0 {
		ttl = time.Hour
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  userID,
		"role": "authenticated",
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}
	if opts.Email != "" {
		claims["email"] = opts.Email
	}
	if opts.Name != "" {
		claims["user_metadata"] = map[string]any{"full_name": opts.Name}
	}
	if opts.Issuer != "" {
		claims["iss"] = opts.Issuer
	}
	if opts.Audience != "" {
		claims["aud"] = opts.Audience
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}
