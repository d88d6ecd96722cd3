package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/R3E-Network/agency_layer/internal/app/actor"
	"github.com/R3E-Network/agency_layer/internal/httputil"
	"github.com/R3E-Network/agency_layer/internal/middleware"
)

type auditEntry struct {
	Time       time.Time `json:"time"`
	RequestID  string    `json:"request_id,omitempty"`
	User       string    `json:"user"`
	Role       string    `json:"role,omitempty"`
	Agency     string    `json:"agency,omitempty"`
	Route      string    `json:"route"`
	Path       string    `json:"path"`
	Method     string    `json:"method"`
	Status     int       `json:"status"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
}

type auditLog struct {
	mu      sync.Mutex
	entries []auditEntry
	max     int
	sink    auditSink
}

type auditSink interface {
	Write(entry auditEntry) error
	Close() error
}

func newAuditLog(max int, sink auditSink) *auditLog {
	if max <= 0 {
		max = 500
	}
	return &auditLog{max: max, sink: sink}
}

func (l *auditLog) add(entry auditEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	if len(l.entries) > l.max {
		l.entries = l.entries[len(l.entries)-l.max:]
	}
	if l.sink != nil {
		_ = l.sink.Write(entry)
	}
}

// forAgency returns the newest entries of one agency, newest first.
func (l *auditLog) forAgency(agencyID string, limit int) []auditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limit <= 0 || limit > l.max {
		limit = l.max
	}
	out := make([]auditEntry, 0, limit)
	for i := len(l.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if l.entries[i].Agency == agencyID {
			out = append(out, l.entries[i])
		}
	}
	return out
}

func (l *auditLog) close() error {
	if l.sink == nil {
		return nil
	}
	return l.sink.Close()
}

// fileAuditSink appends audit entries as JSONL.
type fileAuditSink struct {
	mu   sync.Mutex
	file *os.File
}

func newFileAuditSink(path string) (auditSink, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, err
	}
	return &fileAuditSink{file: f}, nil
}

func (s *fileAuditSink) Write(entry auditEntry) error {
	b, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.file.Write(append(b, '\n'))
	return err
}

func (s *fileAuditSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

type auditKey struct{}

// auditMiddleware records every mutating request once it completes. The
// membership middleware fills in the role through the entry in the context.
func (h *handler) auditMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}

		entry := &auditEntry{
			Time:       time.Now().UTC(),
			RequestID:  middleware.RequestID(r),
			User:       actor.UserID(r.Context()),
			Agency:     mux.Vars(r)["agency"],
			Path:       r.URL.Path,
			Method:     r.Method,
			RemoteAddr: r.RemoteAddr,
			UserAgent:  r.UserAgent(),
		}
		if route := mux.CurrentRoute(r); route != nil {
			entry.Route, _ = route.GetPathTemplate()
		}

		rec := httputil.NewStatusRecorder(w)
		next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), auditKey{}, entry)))
		entry.Status = rec.Code()
		h.audit.add(*entry)
	})
}

func noteRole(ctx context.Context, role string) {
	if entry, ok := ctx.Value(auditKey{}).(*auditEntry); ok {
		entry.Role = role
	}
}

func (h *handler) auditTrail(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.audit.forAgency(agencyID(r), limit))
}
