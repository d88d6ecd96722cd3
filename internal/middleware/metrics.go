package middleware

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/R3E-Network/agency_layer/internal/app/metrics"
	"github.com/R3E-Network/agency_layer/internal/httputil"
)

// Metrics records request counts and latencies labelled by the matched mux
// route template, falling back to the canonicalized path.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		done := metrics.TrackInFlight()
		defer done()

		rec := httputil.NewStatusRecorder(w)
		start := time.Now()
		next.ServeHTTP(rec, r)

		path := metrics.CanonicalPath(r.URL.Path)
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				path = tpl
			}
		}
		metrics.ObserveHTTP(r.Method, path, rec.Code(), time.Since(start))
	})
}

var _ mux.MiddlewareFunc = Metrics
