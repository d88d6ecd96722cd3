package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/R3E-Network/agency_layer/internal/app/actor"
	"github.com/R3E-Network/agency_layer/internal/app/domain/tenant"
	"github.com/R3E-Network/agency_layer/internal/app/services/members"
	apperrors "github.com/R3E-Network/agency_layer/internal/errors"
	"github.com/R3E-Network/agency_layer/internal/httputil"
	sbclient "github.com/R3E-Network/agency_layer/supabase/client"
)

// Identity is the user directory behind /auth. *sbclient.AuthClient
// satisfies it.
type Identity interface {
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (*sbclient.AuthResponse, error)
	SignIn(ctx context.Context, email, password string) (*sbclient.AuthResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*sbclient.AuthResponse, error)
	GetUser(ctx context.Context, accessToken string) (*sbclient.User, error)
}

var _ Identity = (*sbclient.AuthClient)(nil)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

func (c *credentials) validate() error {
	c.Email = strings.TrimSpace(c.Email)
	if _, err := mail.ParseAddress(c.Email); err != nil {
		return apperrors.InvalidInput("a valid email is required")
	}
	if len(c.Password) < 6 {
		return apperrors.InvalidInput("password must have at least 6 characters")
	}
	return nil
}

// identityError maps GoTrue rejections onto client errors.
func identityError(err error) error {
	var apiErr *sbclient.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
		if apiErr.StatusCode == http.StatusTooManyRequests {
			return apperrors.RateLimitExceeded(0, "auth")
		}
		return apperrors.Unauthorized(apiErr.Message)
	}
	return err
}

func (h *handler) signUp(w http.ResponseWriter, r *http.Request) {
	if h.identity == nil {
		httputil.WriteError(w, apperrors.Unavailable("sign-up requires the Supabase backend"))
		return
	}
	var req credentials
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := req.validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}
	var meta map[string]any
	if name := strings.TrimSpace(req.Name); name != "" {
		meta = map[string]any{"name": name}
	}
	resp, err := h.identity.SignUp(r.Context(), req.Email, req.Password, meta)
	if err != nil {
		httputil.WriteError(w, identityError(err))
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, resp)
}

func (h *handler) signIn(w http.ResponseWriter, r *http.Request) {
	if h.identity == nil {
		httputil.WriteError(w, apperrors.Unavailable("sign-in requires the Supabase backend"))
		return
	}
	var req credentials
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := req.validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}
	resp, err := h.identity.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		httputil.WriteError(w, identityError(err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *handler) refreshSession(w http.ResponseWriter, r *http.Request) {
	if h.identity == nil {
		httputil.WriteError(w, apperrors.Unavailable("session refresh requires the Supabase backend"))
		return
	}
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		httputil.WriteError(w, apperrors.InvalidInput("refresh_token is required"))
		return
	}
	resp, err := h.identity.Refresh(r.Context(), strings.TrimSpace(req.RefreshToken))
	if err != nil {
		httputil.WriteError(w, identityError(err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	who := caller(r)
	memberships, err := h.svc.Agencies.ListForUser(r.Context(), who.UserID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	body := map[string]any{
		"user_id":     who.UserID,
		"email":       who.Email,
		"name":        who.Name,
		"memberships": memberships,
	}
	if user := h.directoryUser(r); user != nil {
		if who.Email == "" {
			body["email"] = user.Email
		}
		body["email_confirmed"] = user.EmailConfirmedAt != ""
	}
	httputil.WriteJSON(w, http.StatusOK, body)
}

// directoryUser looks the caller up in the identity directory. Lookup
// failures only drop the extra profile fields.
func (h *handler) directoryUser(r *http.Request) *sbclient.User {
	if h.identity == nil {
		return nil
	}
	_, token, _ := strings.Cut(r.Header.Get("Authorization"), " ")
	user, err := h.identity.GetUser(r.Context(), strings.TrimSpace(token))
	if err != nil {
		h.log.WithError(err).Warn("identity lookup failed")
		return nil
	}
	return user
}

func (h *handler) listAgencies(w http.ResponseWriter, r *http.Request) {
	memberships, err := h.svc.Agencies.ListForUser(r.Context(), actor.UserID(r.Context()))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, memberships)
}

func (h *handler) createAgency(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	agency, err := h.svc.Agencies.Create(r.Context(), req.Name, caller(r))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, agency)
}

func (h *handler) getAgency(w http.ResponseWriter, r *http.Request) {
	agency, err := h.svc.Agencies.Get(r.Context(), agencyID(r))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, agency)
}

func (h *handler) renameAgency(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	agency, err := h.svc.Agencies.Rename(r.Context(), agencyID(r), req.Name)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, agency)
}

func (h *handler) listMembers(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Members.List(r.Context(), agencyID(r))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *handler) updateMember(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Role     *string `json:"role"`
		ClientID string  `json:"client_id"`
		Active   *bool   `json:"active"`
	}
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if req.Role == nil && req.Active == nil {
		httputil.WriteError(w, apperrors.InvalidInput("role or active is required"))
		return
	}

	ctx, agency, memberID := r.Context(), agencyID(r), pathVar(r, "member")
	var (
		m   tenant.Member
		err error
	)
	if req.Role != nil {
		role := tenant.NormalizeRole(*req.Role)
		if m, err = h.svc.Members.UpdateRole(ctx, agency, memberID, role, req.ClientID); err != nil {
			httputil.WriteError(w, err)
			return
		}
	}
	if req.Active != nil {
		if m, err = h.svc.Members.SetActive(ctx, agency, memberID, *req.Active); err != nil {
			httputil.WriteError(w, err)
			return
		}
	}
	httputil.WriteJSON(w, http.StatusOK, m)
}

func (h *handler) removeMember(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Members.Remove(r.Context(), agencyID(r), pathVar(r, "member")); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) listInvites(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Members.ListInvites(r.Context(), agencyID(r))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *handler) createInvite(w http.ResponseWriter, r *http.Request) {
	var req struct {
		members.InviteRequest
		TTLHours int `json:"ttl_hours"`
	}
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if req.TTLHours > 0 {
		req.TTL = time.Duration(req.TTLHours) * time.Hour
	}
	invite, code, err := h.svc.Members.Invite(r.Context(), agencyID(r), req.InviteRequest)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	// The code is shown once; only its hash is stored.
	httputil.WriteJSON(w, http.StatusCreated, map[string]any{"invite": invite, "code": code})
}

func (h *handler) acceptInvite(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	m, err := h.svc.Members.AcceptInvite(r.Context(), agencyID(r), pathVar(r, "invite"), req.Code, caller(r))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, m)
}
