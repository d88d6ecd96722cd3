package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/agency_layer/internal/app/actor"
	"github.com/R3E-Network/agency_layer/internal/httputil"
	"github.com/R3E-Network/agency_layer/pkg/logger"
	sbclient "github.com/R3E-Network/agency_layer/supabase/client"
)

const RequestIDHeader = "X-Request-ID"

// RequestLogger assigns every request an ID, forwards it to outgoing
// Supabase calls and writes one access log line per request.
type RequestLogger struct {
	log *logger.Logger
}

func NewRequestLogger(log *logger.Logger) *RequestLogger {
	if log == nil {
		log = logger.NewDefault("http")
	}
	return &RequestLogger{log: log}
}

func (m *RequestLogger) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		ctx := sbclient.WithRequestID(r.Context(), id)

		rec := httputil.NewStatusRecorder(w)
		start := time.Now()
		r = r.WithContext(ctx)
		next.ServeHTTP(rec, r)

		entry := m.log.WithFields(map[string]any{
			"request_id":  id,
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rec.Code(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
		switch {
		case rec.Code() >= http.StatusInternalServerError:
			entry.Error("request failed")
		case r.URL.Path == "/healthz" || r.URL.Path == "/metrics":
			entry.Debug("request")
		default:
			entry.Info("request")
		}
	})
}

// RequestID returns the request ID of ctx, empty outside a request.
func RequestID(r *http.Request) string {
	return sbclient.RequestID(r.Context())
}

// Recover turns handler panics into 500 responses.
func Recover(log *logger.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = logger.NewDefault("http")
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if v := recover(); v != nil {
					log.WithFields(map[string]any{
						"request_id": RequestID(r),
						"user_id":    actor.UserID(r.Context()),
						"panic":      v,
					}).Error("handler panic")
					httputil.WriteErrorResponse(w, http.StatusInternalServerError, "internal", "internal error", nil)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
