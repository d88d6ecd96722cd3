package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	app "github.com/R3E-Network/agency_layer/internal/app"
	"github.com/R3E-Network/agency_layer/internal/app/httpapi"
	"github.com/R3E-Network/agency_layer/internal/middleware"
	"github.com/R3E-Network/agency_layer/pkg/logger"
	"github.com/R3E-Network/agency_layer/pkg/testutil"
	sbclient "github.com/R3E-Network/agency_layer/supabase/client"
)

const secret = "test-secret-with-at-least-thirty-two-chars"

type harness struct {
	t   *testing.T
	api *httpapi.API
}

func newHarness(t *testing.T) *harness {
	return newHarnessWith(t, nil)
}

func newHarnessWith(t *testing.T, identity httpapi.Identity) *harness {
	t.Helper()
	application, err := app.New(app.Stores{}, app.Options{}, logger.NewNop())
	require.NoError(t, err)
	api, err := httpapi.NewHandler(application.HTTPServices(), httpapi.Options{
		Auth:      middleware.AuthConfig{Secret: secret},
		RateLimit: 1000,
		RateBurst: 1000,
		Status:    application,
		Identity:  identity,
	}, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = api.Close() })
	return &harness{t: t, api: api}
}

func token(t *testing.T, userID, email string) string {
	return testutil.AccessToken(t, secret, userID, testutil.TokenOptions{Email: email})
}

// do sends a JSON request as user and decodes the response into out when
// out is non-nil.
func (h *harness) do(method, path, user string, body any, out any) int {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+token(h.t, user, user+"@studio.test"))
	}
	rec := httptest.NewRecorder()
	h.api.ServeHTTP(rec, req)
	if out != nil && rec.Code < 300 {
		require.NoError(h.t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

type idName struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	ClientName string `json:"client_name"`
	ClientID   string `json:"client_id"`
}

func (h *harness) seedAgency(owner string) string {
	var agency idName
	require.Equal(h.t, http.StatusCreated, h.do(http.MethodPost, "/agencies", owner, map[string]string{"name": "Pixel Studio"}, &agency))
	return agency.ID
}

func TestPublicRoutes(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/healthz", "", nil, nil))

	var status struct {
		Services []string `json:"services"`
	}
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/system/status", "", nil, &status))
	assert.Contains(t, status.Services, "clients")

	assert.Equal(t, http.StatusNotImplemented, h.do(http.MethodPost, "/auth/signin", "", map[string]string{
		"email": "a@b.test", "password": "secret123",
	}, nil))
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/agencies", "", nil, nil))
}

func TestClientRenamePropagatesToProjects(t *testing.T) {
	h := newHarness(t)
	agency := h.seedAgency("owner")
	base := "/agencies/" + agency

	var c idName
	require.Equal(t, http.StatusCreated, h.do(http.MethodPost, base+"/clients", "owner", map[string]any{
		"name": "Acme", "email": "hello@acme.test",
	}, &c))

	var p idName
	require.Equal(t, http.StatusCreated, h.do(http.MethodPost, base+"/projects", "owner", map[string]any{
		"client_id": c.ID, "name": "Rebrand", "budget_cents": 500000,
	}, &p))
	assert.Equal(t, "Acme", p.ClientName)

	require.Equal(t, http.StatusOK, h.do(http.MethodPatch, base+"/clients/"+c.ID, "owner", map[string]any{"name": "Acme Corp"}, nil))

	var got idName
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, base+"/projects/"+p.ID, "owner", nil, &got))
	assert.Equal(t, "Acme Corp", got.ClientName)

	var client struct {
		ProjectCount     int   `json:"project_count"`
		TotalBudgetCents int64 `json:"total_budget_cents"`
	}
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, base+"/clients/"+c.ID, "owner", nil, &client))
	assert.Equal(t, 1, client.ProjectCount)
	assert.EqualValues(t, 500000, client.TotalBudgetCents)

	var report struct {
		Repairs int `json:"repairs"`
	}
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, base+"/reconcile", "owner", nil, &report))
	assert.Zero(t, report.Repairs)
}

func TestAgencyScopeAndRoles(t *testing.T) {
	h := newHarness(t)
	agency := h.seedAgency("owner")
	base := "/agencies/" + agency

	assert.Equal(t, http.StatusForbidden, h.do(http.MethodGet, base+"/clients", "stranger", nil, nil))
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, base+"/clients/missing", "owner", nil, nil))
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, base+"/clients", "owner", map[string]any{"name": "x", "bogus": 1}, nil))

	other := h.seedAgency("rival")
	var c idName
	require.Equal(t, http.StatusCreated, h.do(http.MethodPost, "/agencies/"+other+"/clients", "rival", map[string]any{"name": "Secret"}, &c))
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodGet, "/agencies/"+other+"/clients/"+c.ID, "owner", nil, nil))
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, base+"/clients/"+c.ID, "owner", nil, nil))
}

func TestPortalFlow(t *testing.T) {
	h := newHarness(t)
	agency := h.seedAgency("owner")
	base := "/agencies/" + agency

	var c idName
	require.Equal(t, http.StatusCreated, h.do(http.MethodPost, base+"/clients", "owner", map[string]any{"name": "Acme"}, &c))
	var other idName
	require.Equal(t, http.StatusCreated, h.do(http.MethodPost, base+"/clients", "owner", map[string]any{"name": "Globex"}, &other))

	var invite struct {
		Invite idName `json:"invite"`
		Code   string `json:"code"`
	}
	require.Equal(t, http.StatusCreated, h.do(http.MethodPost, base+"/invites", "owner", map[string]any{
		"email": "portal@studio.test", "role": "client", "client_id": c.ID,
	}, &invite))
	require.NotEmpty(t, invite.Code)

	require.Equal(t, http.StatusCreated, h.do(http.MethodPost, base+"/invites/"+invite.Invite.ID+"/accept", "portal",
		map[string]string{"code": invite.Code}, nil))

	var post idName
	require.Equal(t, http.StatusCreated, h.do(http.MethodPost, base+"/events", "owner", map[string]any{
		"title": "Launch teaser", "platform": "instagram", "status": "scheduled",
		"scheduled_at": time.Now().Add(48 * time.Hour).UTC(), "client_id": c.ID,
	}, &post))
	var foreign idName
	require.Equal(t, http.StatusCreated, h.do(http.MethodPost, base+"/events", "owner", map[string]any{
		"title": "Globex post", "status": "scheduled",
		"scheduled_at": time.Now().Add(48 * time.Hour).UTC(), "client_id": other.ID,
	}, &foreign))

	// Staff routes are closed to portal users.
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodGet, base+"/clients", "portal", nil, nil))
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodGet, base+"/portal", "owner", nil, nil))

	var view struct {
		Client           idName   `json:"client"`
		Upcoming         []idName `json:"upcoming"`
		AwaitingApproval int      `json:"awaiting_approval"`
	}
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, base+"/portal", "portal", nil, &view))
	assert.Equal(t, c.ID, view.Client.ID)
	require.Len(t, view.Upcoming, 1)
	assert.Equal(t, 1, view.AwaitingApproval)

	assert.Equal(t, http.StatusNotFound, h.do(http.MethodPost, base+"/portal/events/"+foreign.ID+"/approve", "portal", nil, nil))
	var approved struct {
		Status string `json:"status"`
	}
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, base+"/portal/events/"+post.ID+"/approve", "portal", nil, &approved))
	assert.Equal(t, "approved", approved.Status)

	require.Equal(t, http.StatusCreated, h.do(http.MethodPost, base+"/portal/messages", "portal", map[string]string{"body": "Looks great!"}, nil))
	var thread []struct {
		Body       string `json:"body"`
		SenderRole string `json:"sender_role"`
	}
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, base+"/messages/"+c.ID, "owner", nil, &thread))
	require.Len(t, thread, 1)
	assert.Equal(t, "client", thread[0].SenderRole)

	var trail []struct {
		Route string `json:"route"`
		Role  string `json:"role"`
	}
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, base+"/audit", "owner", nil, &trail))
	require.NotEmpty(t, trail)
	assert.Equal(t, "/agencies/{agency}/portal/messages", trail[0].Route)
	assert.Equal(t, "client", trail[0].Role)
}

func TestAdminCannotTouchOwners(t *testing.T) {
	h := newHarness(t)
	agency := h.seedAgency("owner")
	base := "/agencies/" + agency

	join := func(user, role string) idName {
		var invite struct {
			Invite idName `json:"invite"`
			Code   string `json:"code"`
		}
		require.Equal(t, http.StatusCreated, h.do(http.MethodPost, base+"/invites", "owner", map[string]any{
			"email": user + "@studio.test", "role": role,
		}, &invite))
		var m idName
		require.Equal(t, http.StatusCreated, h.do(http.MethodPost, base+"/invites/"+invite.Invite.ID+"/accept", user,
			map[string]string{"code": invite.Code}, &m))
		return m
	}
	coOwner := join("partner", "admin")
	join("manager", "admin")
	require.Equal(t, http.StatusOK, h.do(http.MethodPatch, base+"/members/"+coOwner.ID, "owner", map[string]any{"role": "owner"}, nil))

	assert.Equal(t, http.StatusForbidden, h.do(http.MethodPatch, base+"/members/"+coOwner.ID, "manager", map[string]any{"role": "member"}, nil))
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodPatch, base+"/members/"+coOwner.ID, "manager", map[string]any{"active": false}, nil))
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodDelete, base+"/members/"+coOwner.ID, "manager", nil, nil))

	var members []struct {
		ID     string `json:"id"`
		Role   string `json:"role"`
		Active bool   `json:"active"`
	}
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, base+"/members", "owner", nil, &members))
	for _, m := range members {
		if m.ID == coOwner.ID {
			assert.Equal(t, "owner", m.Role)
			assert.True(t, m.Active)
		}
	}
	assert.Equal(t, http.StatusNoContent, h.do(http.MethodDelete, base+"/members/"+coOwner.ID, "owner", nil, nil))
}

type fakeIdentity struct {
	refreshed []string
	lookups   []string
}

func (f *fakeIdentity) SignUp(context.Context, string, string, map[string]any) (*sbclient.AuthResponse, error) {
	return &sbclient.AuthResponse{AccessToken: "new"}, nil
}

func (f *fakeIdentity) SignIn(context.Context, string, string) (*sbclient.AuthResponse, error) {
	return &sbclient.AuthResponse{AccessToken: "new"}, nil
}

func (f *fakeIdentity) Refresh(_ context.Context, refreshToken string) (*sbclient.AuthResponse, error) {
	f.refreshed = append(f.refreshed, refreshToken)
	if refreshToken == "revoked" {
		return nil, &sbclient.APIError{StatusCode: http.StatusBadRequest, Message: "invalid refresh token"}
	}
	return &sbclient.AuthResponse{AccessToken: "rotated", RefreshToken: "next"}, nil
}

func (f *fakeIdentity) GetUser(_ context.Context, accessToken string) (*sbclient.User, error) {
	f.lookups = append(f.lookups, accessToken)
	return &sbclient.User{ID: "owner", Email: "owner@studio.test", EmailConfirmedAt: "2026-01-02T00:00:00Z"}, nil
}

func TestSessionRefresh(t *testing.T) {
	ident := &fakeIdentity{}
	h := newHarnessWith(t, ident)

	var session sbclient.AuthResponse
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/auth/refresh", "", map[string]string{"refresh_token": " r1 "}, &session))
	assert.Equal(t, "rotated", session.AccessToken)
	assert.Equal(t, []string{"r1"}, ident.refreshed)

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/auth/refresh", "", map[string]string{}, nil))
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodPost, "/auth/refresh", "", map[string]string{"refresh_token": "revoked"}, nil))

	assert.Equal(t, http.StatusNotImplemented, newHarness(t).do(http.MethodPost, "/auth/refresh", "", map[string]string{"refresh_token": "r1"}, nil))
}

func TestMeIncludesDirectoryProfile(t *testing.T) {
	ident := &fakeIdentity{}
	h := newHarnessWith(t, ident)

	var me map[string]any
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/me", "owner", nil, &me))
	assert.Equal(t, true, me["email_confirmed"])
	require.Len(t, ident.lookups, 1)
	assert.NotEmpty(t, ident.lookups[0])

	var bare map[string]any
	require.Equal(t, http.StatusOK, newHarness(t).do(http.MethodGet, "/me", "owner", nil, &bare))
	assert.NotContains(t, bare, "email_confirmed")
}
