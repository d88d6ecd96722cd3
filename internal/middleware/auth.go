// Package middleware provides the HTTP middleware chain of the agency API.
package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/R3E-Network/agency_layer/internal/app/actor"
	apperrors "github.com/R3E-Network/agency_layer/internal/errors"
	"github.com/R3E-Network/agency_layer/internal/httputil"
	"github.com/R3E-Network/agency_layer/pkg/logger"
)

// Claims are the fields read from a Supabase access token.
type Claims struct {
	Email        string       `json:"email,omitempty"`
	Role         string       `json:"role,omitempty"`
	UserMetadata UserMetadata `json:"user_metadata,omitempty"`
	jwt.RegisteredClaims
}

type UserMetadata struct {
	Name     string `json:"name,omitempty"`
	FullName string `json:"full_name,omitempty"`
}

// AuthConfig configures token verification.
type AuthConfig struct {
	Secret   string
	Issuer   string
	Audience string
	// SkipPrefixes are path prefixes served without a token.
	SkipPrefixes []string
}

// DefaultSkipPrefixes are the unauthenticated routes.
var DefaultSkipPrefixes = []string{"/healthz", "/metrics", "/system/status", "/auth/"}

// AuthMiddleware verifies HS256 bearer tokens and stores the caller in the
// request context.
type AuthMiddleware struct {
	secret []byte
	opts   []jwt.ParserOption
	skip   []string
	log    *logger.Logger
}

func NewAuthMiddleware(cfg AuthConfig, log *logger.Logger) *AuthMiddleware {
	if log == nil {
		log = logger.NewDefault("auth")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	skip := cfg.SkipPrefixes
	if skip == nil {
		skip = DefaultSkipPrefixes
	}
	return &AuthMiddleware{secret: []byte(cfg.Secret), opts: opts, skip: skip, log: log}
}

func (m *AuthMiddleware) skipped(path string) bool {
	for _, p := range m.skip {
		if path == p || strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// Handler returns the middleware handler.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || m.skipped(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		if header == "" {
			m.respondError(w, r, apperrors.Unauthorized("missing Authorization header"))
			return
		}
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			m.respondError(w, r, apperrors.Unauthorized("invalid Authorization header format"))
			return
		}

		claims, err := m.Verify(strings.TrimSpace(token))
		if err != nil {
			m.respondError(w, r, err)
			return
		}

		a := actor.Actor{UserID: claims.Subject, Email: claims.Email, Name: claims.UserMetadata.displayName()}
		next.ServeHTTP(w, r.WithContext(actor.With(r.Context(), a)))
	})
}

// Verify parses and validates a token.
func (m *AuthMiddleware) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	}, m.opts...)
	if err != nil {
		return nil, apperrors.InvalidToken(err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, apperrors.InvalidToken(nil).WithDetails("reason", "missing subject")
	}
	return claims, nil
}

func (m *AuthMiddleware) respondError(w http.ResponseWriter, r *http.Request, err error) {
	m.log.WithError(err).WithFields(map[string]any{
		"path":   r.URL.Path,
		"method": r.Method,
	}).Warn("authentication failed")
	httputil.WriteError(w, err)
}

func (u UserMetadata) displayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.FullName
}

// RequireUser rejects requests without an authenticated caller.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actor.UserID(r.Context()) == "" {
			httputil.WriteError(w, apperrors.Unauthorized(""))
			return
		}
		next.ServeHTTP(w, r)
	})
}
