package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Config{URL: srv.URL + "/", APIKey: "service-key"})
	require.NoError(t, err)
	return c
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{APIKey: "k"})
	assert.Error(t, err)
	_, err = New(Config{URL: "http://x"})
	assert.Error(t, err)
}

func TestSelectBuildsPostgRESTQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/projects", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "*", q.Get("select"))
		assert.Equal(t, "eq.a1", q.Get("agency_id"))
		assert.Equal(t, "eq.c1", q.Get("client_id"))
		assert.Equal(t, "created_at.asc,id.asc", q.Get("order"))
		assert.Equal(t, "10", q.Get("limit"))
		assert.Equal(t, "service-key", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer service-key", r.Header.Get("Authorization"))
		assert.Equal(t, "req-1", r.Header.Get("X-Request-ID"))
		w.Header().Set("Content-Range", "0-0/1")
		_, _ = w.Write([]byte(`[{"id":"p1"}]`))
	})

	ctx := WithRequestID(context.Background(), "req-1")
	var rows []map[string]any
	err := c.From("projects").Select("*").
		Eq("agency_id", "a1").
		Eq("client_id", "c1").
		Order("created_at", true).Order("id", true).
		Limit(10).
		Fetch(ctx, &rows)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "p1", rows[0]["id"])
}

func TestSingleMissingRowIsNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/vnd.pgrst.object+json", r.Header.Get("Accept"))
		w.WriteHeader(http.StatusNotAcceptable)
		_, _ = w.Write([]byte(`{"code":"PGRST116","message":"JSON object requested, multiple (or no) rows returned"}`))
	})

	var row map[string]any
	err := c.From("clients").Select("*").Eq("id", "missing").Single().Fetch(context.Background(), &row)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "PGRST116", apiErr.Code)
}

func TestUpsertSetsPreferAndConflict(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "agency_id,user_id", r.URL.Query().Get("on_conflict"))
		assert.Equal(t, "resolution=merge-duplicates,return=representation", r.Header.Get("Prefer"))
		body, _ := io.ReadAll(r.Body)
		var payload map[string]any
		require.NoError(t, json.Unmarshal(body, &payload))
		assert.Equal(t, "u1", payload["user_id"])
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write(body)
	})

	resp, err := c.From("onboarding_progress").Upsert("agency_id,user_id").
		ExecuteInsert(context.Background(), map[string]any{"agency_id": "a1", "user_id": "u1"})
	require.NoError(t, err)
	assert.NoError(t, resp.Error())
}

func TestUnfilteredMutationsAreRejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s %s", r.Method, r.URL)
	})
	_, err := c.From("clients").ExecuteUpdate(context.Background(), map[string]any{"name": "x"})
	assert.Error(t, err)
	_, err = c.From("clients").ExecuteDelete(context.Background())
	assert.Error(t, err)
}

func TestConflictDetection(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"code":"23505","message":"duplicate key value violates unique constraint"}`))
	})
	resp, err := c.From("agency_members").ExecuteInsert(context.Background(), map[string]any{"id": "m1"})
	require.NoError(t, err)
	assert.True(t, IsConflict(resp.Error()))
	assert.False(t, IsNotFound(resp.Error()))
}

func TestAuthSignInDecodesSession(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/token", r.URL.Path)
		assert.Equal(t, "password", r.URL.Query().Get("grant_type"))
		_, _ = w.Write([]byte(`{"access_token":"jwt","refresh_token":"r","expires_in":3600,"user":{"id":"u1","email":"a@b.co"}}`))
	})

	session, err := c.Auth().SignIn(context.Background(), "a@b.co", "secret")
	require.NoError(t, err)
	assert.Equal(t, "jwt", session.AccessToken)
	require.NotNil(t, session.User)
	assert.Equal(t, "u1", session.User.ID)
}

func TestAuthErrorMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid login credentials"}`))
	})

	_, err := c.Auth().SignIn(context.Background(), "a@b.co", "wrong")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "Invalid login credentials", apiErr.Message)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}

func TestBucketUploadAndDelete(t *testing.T) {
	var seen []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Method+" "+r.URL.Path)
		if r.Method == http.MethodPost {
			assert.Equal(t, "true", r.Header.Get("x-upsert"))
			assert.Equal(t, "image/png", r.Header.Get("Content-Type"))
		}
		_, _ = w.Write([]byte(`{}`))
	})

	bucket := c.Storage().From("portfolio")
	require.NoError(t, bucket.Upload(context.Background(), "a1/item.png", []byte("png"), "image/png"))
	require.NoError(t, bucket.Delete(context.Background(), "a1/item.png"))
	require.NoError(t, bucket.Delete(context.Background()))

	assert.Equal(t, []string{
		"POST /storage/v1/object/portfolio/a1/item.png",
		"DELETE /storage/v1/object/portfolio",
	}, seen)
	assert.Equal(t, c.BaseURL()+"/storage/v1/object/public/portfolio/a1/item.png", bucket.PublicURL("/a1/item.png"))
}

func TestResponseTotal(t *testing.T) {
	resp := &Response{Headers: http.Header{"Content-Range": []string{"0-9/42"}}}
	assert.Equal(t, 42, resp.Total())
	assert.Equal(t, -1, (&Response{Headers: http.Header{}}).Total())
}

func TestILikeAcrossColumns(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "ilike.%acme%", q.Get("name"))
		assert.Equal(t, `(company.ilike."%a\"b%",email.ilike."%a\"b%")`, q.Get("or"))
		_, _ = w.Write([]byte(`[]`))
	})

	var rows []map[string]any
	err := c.From("clients").
		ILike("%acme%", "name").
		ILike(`%a"b%`, "company", "email").
		Fetch(context.Background(), &rows)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestCountRequestsExactTotal(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "count=exact", r.Header.Get("Prefer"))
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		w.Header().Set("Content-Range", "0-0/7")
		_, _ = w.Write([]byte(`[{"id":"n1"}]`))
	})

	resp, err := c.From("notifications").Select("id").Count("exact").Limit(1).Execute(context.Background())
	require.NoError(t, err)
	require.NoError(t, resp.Error())
	assert.Equal(t, 7, resp.Total())
}

func TestAuthRefreshAndGetUser(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/v1/token":
			assert.Equal(t, "refresh_token", r.URL.Query().Get("grant_type"))
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "r1", body["refresh_token"])
			_, _ = w.Write([]byte(`{"access_token":"jwt2","refresh_token":"r2"}`))
		case "/auth/v1/user":
			assert.Equal(t, "Bearer user-jwt", r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(`{"id":"u1","email":"a@b.co","email_confirmed_at":"2026-01-02T00:00:00Z"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	session, err := c.Auth().Refresh(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "jwt2", session.AccessToken)
	assert.Equal(t, "r2", session.RefreshToken)

	user, err := c.Auth().GetUser(context.Background(), "user-jwt")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.NotEmpty(t, user.EmailConfirmedAt)
}
