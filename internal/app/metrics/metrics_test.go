package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                      "/",
		"/healthz":                              "/healthz",
		"/agencies":                             "/agencies",
		"/agencies/a1":                          "/agencies/:agency",
		"/agencies/a1/clients":                  "/agencies/:agency/clients",
		"/agencies/a1/clients/c1":               "/agencies/:agency/clients/:id",
		"/agencies/a1/events/e1/publish":        "/agencies/:agency/events/:id/publish",
		"/agencies/a1/portfolio/p1/image/extra": "/agencies/:agency/portfolio/:id/image",
	}
	for in, want := range cases {
		assert.Equal(t, want, CanonicalPath(in), in)
	}
}

func TestHandlerExposesRecordedSeries(t *testing.T) {
	RecordSync("project_deleted", 3*time.Millisecond, nil)
	RecordRepairs("client_name", 2)
	RecordJobRun("reconcile", time.Second, true)
	RecordCacheLookup("dashboard", false)

	wrapped := InstrumentHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/agencies/a1/clients", nil))

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	for _, want := range []string{
		`agency_layer_sync_operations_total{operation="project_deleted",result="ok"}`,
		`agency_layer_sync_reconcile_repairs_total{kind="client_name"} 2`,
		`agency_layer_jobs_runs_total{job="reconcile",success="true"}`,
		`agency_layer_cache_lookups_total{cache="dashboard",outcome="miss"}`,
		`agency_layer_http_requests_total{method="POST",path="/agencies/:agency/clients",status="201"}`,
	} {
		assert.True(t, strings.Contains(body, want), "missing %s", want)
	}
}
