package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/agency_layer/internal/app/actor"
	"github.com/R3E-Network/agency_layer/pkg/logger"
)

const testSecret = "super-secret-jwt-token-with-at-least-32-characters"

func signToken(t *testing.T, method jwt.SigningMethod, key any, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func validClaims(sub string) Claims {
	return Claims{
		Email:        "owner@studio.test",
		UserMetadata: UserMetadata{FullName: "Olive Owner"},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
}

func serveAuth(m *AuthMiddleware, req *http.Request) (*httptest.ResponseRecorder, actor.Actor) {
	var seen actor.Actor
	h := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = actor.From(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, seen
}

func TestAuthAcceptsValidToken(t *testing.T) {
	m := NewAuthMiddleware(AuthConfig{Secret: testSecret}, logger.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/agencies", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims("u1")))

	rec, who := serveAuth(m, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", who.UserID)
	assert.Equal(t, "owner@studio.test", who.Email)
	assert.Equal(t, "Olive Owner", who.Name)
}

func TestAuthRejects(t *testing.T) {
	m := NewAuthMiddleware(AuthConfig{Secret: testSecret, Issuer: "supabase"}, logger.NewNop())

	expired := validClaims("u1")
	expired.Issuer = "supabase"
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	wrongIssuer := validClaims("u1")
	wrongIssuer.Issuer = "someone-else"

	noSubject := validClaims("")
	noSubject.Issuer = "supabase"

	cases := map[string]string{
		"missing header": "",
		"bad scheme":     "Basic abc",
		"garbage":        "Bearer not-a-token",
		"expired":        "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), expired),
		"wrong secret":   "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte("other-secret"), validClaims("u1")),
		"wrong issuer":   "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), wrongIssuer),
		"no subject":     "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), noSubject),
		"alg none":       "Bearer " + signToken(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, validClaims("u1")),
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/agencies", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec, who := serveAuth(m, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Empty(t, who.UserID)
		})
	}
}

func TestAuthSkipsPublicRoutes(t *testing.T) {
	m := NewAuthMiddleware(AuthConfig{Secret: testSecret}, logger.NewNop())
	for _, path := range []string{"/healthz", "/metrics", "/system/status", "/auth/signin"} {
		rec, _ := serveAuth(m, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestRequireUser(t *testing.T) {
	h := RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/agencies", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/agencies", nil)
	req = req.WithContext(actor.With(req.Context(), actor.Actor{UserID: "u1"}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
