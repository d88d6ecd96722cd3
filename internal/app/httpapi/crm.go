package httpapi

import (
	"net/http"
	"time"

	"github.com/R3E-Network/agency_layer/internal/app/domain/client"
	"github.com/R3E-Network/agency_layer/internal/app/domain/project"
	"github.com/R3E-Network/agency_layer/internal/app/services/clients"
	"github.com/R3E-Network/agency_layer/internal/app/services/projects"
	"github.com/R3E-Network/agency_layer/internal/httputil"
)

type clientRequest struct {
	Name    string   `json:"name"`
	Company string   `json:"company"`
	Email   string   `json:"email"`
	Phone   string   `json:"phone"`
	Notes   string   `json:"notes"`
	Stage   string   `json:"stage"`
	Tags    []string `json:"tags"`
}

func (h *handler) listClients(w http.ResponseWriter, r *http.Request) {
	q := clients.Query{
		Stage:  client.NormalizeStage(r.URL.Query().Get("stage")),
		Search: r.URL.Query().Get("q"),
	}
	list, err := h.svc.Clients.List(r.Context(), agencyID(r), q)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *handler) createClient(w http.ResponseWriter, r *http.Request) {
	var req clientRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	created, err := h.svc.Clients.Create(r.Context(), client.Client{
		AgencyID: agencyID(r),
		Name:     req.Name,
		Company:  req.Company,
		Email:    req.Email,
		Phone:    req.Phone,
		Notes:    req.Notes,
		Stage:    client.Stage(req.Stage),
		Tags:     req.Tags,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *handler) getClient(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.Clients.Get(r.Context(), agencyID(r), pathVar(r, "client"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *handler) updateClient(w http.ResponseWriter, r *http.Request) {
	var patch clients.Patch
	if err := httputil.DecodeJSON(w, r, &patch); err != nil {
		httputil.WriteError(w, err)
		return
	}
	c, err := h.svc.Clients.Update(r.Context(), agencyID(r), pathVar(r, "client"), patch)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *handler) setClientStage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Stage string `json:"stage"`
	}
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	c, err := h.svc.Clients.SetStage(r.Context(), agencyID(r), pathVar(r, "client"), client.NormalizeStage(req.Stage))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *handler) deleteClient(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Clients.Delete(r.Context(), agencyID(r), pathVar(r, "client")); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type projectRequest struct {
	ClientID    string     `json:"client_id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	BudgetCents int64      `json:"budget_cents"`
	Progress    int        `json:"progress"`
	StartDate   *time.Time `json:"start_date"`
	DueDate     *time.Time `json:"due_date"`
}

func (h *handler) listProjects(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Projects.List(r.Context(), agencyID(r), r.URL.Query().Get("client_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *handler) createProject(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	created, err := h.svc.Projects.Create(r.Context(), project.Project{
		AgencyID:    agencyID(r),
		ClientID:    req.ClientID,
		Name:        req.Name,
		Description: req.Description,
		Status:      project.Status(req.Status),
		BudgetCents: req.BudgetCents,
		Progress:    req.Progress,
		StartDate:   req.StartDate,
		DueDate:     req.DueDate,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *handler) getProject(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Projects.Get(r.Context(), agencyID(r), pathVar(r, "project"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *handler) updateProject(w http.ResponseWriter, r *http.Request) {
	var patch projects.Patch
	if err := httputil.DecodeJSON(w, r, &patch); err != nil {
		httputil.WriteError(w, err)
		return
	}
	p, err := h.svc.Projects.Update(r.Context(), agencyID(r), pathVar(r, "project"), patch)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *handler) deleteProject(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Projects.Delete(r.Context(), agencyID(r), pathVar(r, "project")); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
