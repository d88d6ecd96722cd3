package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/agency_layer/internal/app/domain/chat"
	"github.com/R3E-Network/agency_layer/internal/app/domain/client"
	"github.com/R3E-Network/agency_layer/internal/app/domain/project"
	"github.com/R3E-Network/agency_layer/internal/app/domain/tenant"
	"github.com/R3E-Network/agency_layer/internal/app/storage"
	sbclient "github.com/R3E-Network/agency_layer/supabase/client"
)

func newTestStore(t *testing.T, h http.HandlerFunc) *Store {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := sbclient.New(sbclient.Config{URL: srv.URL, APIKey: "service-key"})
	require.NoError(t, err)
	return New(c)
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	raw, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	return body
}

func TestCreateClientReturnsRepresentation(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/rest/v1/clients", r.URL.Path)
		body := decodeBody(t, r)
		assert.Equal(t, "Acme", body["name"])
		assert.Equal(t, []any{}, body["tags"])
		assert.NotEmpty(t, body["id"])
		body["stage"] = "lead"
		_ = json.NewEncoder(w).Encode([]map[string]any{body})
	})

	c, err := store.CreateClient(context.Background(), client.Client{AgencyID: "a1", Name: "Acme"})
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, client.StageLead, c.Stage)
}

func TestGetClientNotFound(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "eq.a1", r.URL.Query().Get("agency_id"))
		assert.Equal(t, "eq.c1", r.URL.Query().Get("id"))
		w.WriteHeader(http.StatusNotAcceptable)
		_, _ = w.Write([]byte(`{"code":"PGRST116","message":"JSON object requested, multiple (or no) rows returned"}`))
	})

	_, err := store.GetClient(context.Background(), "a1", "c1")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestUpdateProjectClearsOptionalDates(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		body := decodeBody(t, r)
		v, ok := body["due_date"]
		assert.True(t, ok)
		assert.Nil(t, v)
		_, hasCreated := body["created_at"]
		assert.False(t, hasCreated)
		_ = json.NewEncoder(w).Encode([]map[string]any{body})
	})

	p, err := store.UpdateProject(context.Background(), project.Project{ID: "p1", AgencyID: "a1", Name: "Site"})
	require.NoError(t, err)
	assert.Nil(t, p.DueDate)
}

func TestUpdateMissingRowIsNotFound(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})
	_, err := store.UpdateMember(context.Background(), tenant.Member{ID: "m1", AgencyID: "a1"})
	assert.True(t, errors.Is(err, storage.ErrNotFound))
	err = store.DeleteEvent(context.Background(), "a1", "e1")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestInviteCodeHashRoundTrips(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		assert.Equal(t, "hash", body["code_hash"])
		_ = json.NewEncoder(w).Encode([]map[string]any{body})
	})
	inv, err := store.CreateInvite(context.Background(), tenant.Invite{AgencyID: "a1", Email: "x@y.test", CodeHash: "hash", ExpiresAt: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, "hash", inv.CodeHash)
}

func TestListNotificationsIncludesBroadcasts(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, `(recipient_id.eq."u1",recipient_id.eq."")`, q.Get("or"))
		assert.Equal(t, "eq.false", q.Get("read"))
		assert.Equal(t, "created_at.desc,id.desc", q.Get("order"))
		assert.Equal(t, "5", q.Get("limit"))
		_, _ = w.Write([]byte(`[{"id":"n1","agency_id":"a1","title":"Hi"}]`))
	})
	out, err := store.ListNotifications(context.Background(), "a1", "u1", true, 5)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.True(t, out[0].Broadcast())
}

func TestListMessagesChronological(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":"m3"},{"id":"m2"},{"id":"m1"}]`))
	})
	out, err := store.ListMessages(context.Background(), "a1", "c1", 3)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "m1", out[0].ID)
	assert.Equal(t, "m3", out[2].ID)
}

func TestMarkThreadReadCountsRows(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "eq.false", r.URL.Query().Get("read_by_agency"))
		assert.Equal(t, true, decodeBody(t, r)["read_by_agency"])
		_, _ = w.Write([]byte(`[{"id":"m1"},{"id":"m2"}]`))
	})
	n, err := store.MarkThreadRead(context.Background(), "a1", "c1", chat.SideAgency)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestGetProgressDefaults(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})
	p, err := store.GetProgress(context.Background(), "a1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "a1", p.AgencyID)
	assert.Equal(t, "u1", p.UserID)
}

func TestSearchClientsMatchesAnyContactField(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "eq.a1", q.Get("agency_id"))
		assert.Equal(t, `(name.ilike."%ac\_me%",company.ilike."%ac\_me%",email.ilike."%ac\_me%")`, q.Get("or"))
		_, _ = w.Write([]byte(`[{"id":"c1","agency_id":"a1","name":"Ac_me"}]`))
	})

	out, err := store.SearchClients(context.Background(), "a1", "ac_me")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "Ac_me", out[0].Name)
}

func TestCountUnreadNotificationsUsesContentRange(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "count=exact", r.Header.Get("Prefer"))
		assert.Equal(t, "eq.false", r.URL.Query().Get("read"))
		w.Header().Set("Content-Range", "*/0")
		_, _ = w.Write([]byte(`[]`))
	})

	n, err := store.CountUnreadNotifications(context.Background(), "a1", "u1")
	require.NoError(t, err)
	assert.Zero(t, n)
}
