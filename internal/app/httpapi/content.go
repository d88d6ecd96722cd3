package httpapi

import (
	"io"
	"net/http"
	"time"

	"github.com/R3E-Network/agency_layer/internal/app/domain/calendar"
	"github.com/R3E-Network/agency_layer/internal/app/domain/finance"
	"github.com/R3E-Network/agency_layer/internal/app/domain/portfolio"
	calendarsvc "github.com/R3E-Network/agency_layer/internal/app/services/calendar"
	financesvc "github.com/R3E-Network/agency_layer/internal/app/services/finance"
	portfoliosvc "github.com/R3E-Network/agency_layer/internal/app/services/portfolio"
	apperrors "github.com/R3E-Network/agency_layer/internal/errors"
	"github.com/R3E-Network/agency_layer/internal/httputil"
)

type eventRequest struct {
	Title       string    `json:"title"`
	Caption     string    `json:"caption"`
	Platform    string    `json:"platform"`
	Status      string    `json:"status"`
	ScheduledAt time.Time `json:"scheduled_at"`
	ClientID    string    `json:"client_id"`
	ProjectID   string    `json:"project_id"`
	MediaURLs   []string  `json:"media_urls"`
}

func (h *handler) listEvents(w http.ResponseWriter, r *http.Request) {
	from, err := queryTime(r, "from")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	to, err := queryTime(r, "to")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	q := r.URL.Query()
	list, err := h.svc.Calendar.List(r.Context(), agencyID(r), calendar.Filter{
		ClientID:  q.Get("client_id"),
		ProjectID: q.Get("project_id"),
		Status:    calendar.NormalizeStatus(q.Get("status")),
		From:      from,
		To:        to,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *handler) createEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	created, err := h.svc.Calendar.Schedule(r.Context(), calendar.Event{
		AgencyID:    agencyID(r),
		Title:       req.Title,
		Caption:     req.Caption,
		Platform:    calendar.Platform(req.Platform),
		Status:      calendar.Status(req.Status),
		ScheduledAt: req.ScheduledAt,
		ClientID:    req.ClientID,
		ProjectID:   req.ProjectID,
		MediaURLs:   req.MediaURLs,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *handler) getEvent(w http.ResponseWriter, r *http.Request) {
	e, err := h.svc.Calendar.Get(r.Context(), agencyID(r), pathVar(r, "event"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, e)
}

func (h *handler) updateEvent(w http.ResponseWriter, r *http.Request) {
	var patch calendarsvc.Patch
	if err := httputil.DecodeJSON(w, r, &patch); err != nil {
		httputil.WriteError(w, err)
		return
	}
	e, err := h.svc.Calendar.Update(r.Context(), agencyID(r), pathVar(r, "event"), patch)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, e)
}

func (h *handler) publishEvent(w http.ResponseWriter, r *http.Request) {
	e, err := h.svc.Calendar.Publish(r.Context(), agencyID(r), pathVar(r, "event"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, e)
}

func (h *handler) cancelEvent(w http.ResponseWriter, r *http.Request) {
	e, err := h.svc.Calendar.Cancel(r.Context(), agencyID(r), pathVar(r, "event"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, e)
}

func (h *handler) deleteEvent(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Calendar.Delete(r.Context(), agencyID(r), pathVar(r, "event")); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type transactionRequest struct {
	Kind        string     `json:"kind"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	AmountCents int64      `json:"amount_cents"`
	Status      string     `json:"status"`
	DueDate     *time.Time `json:"due_date"`
	ClientID    string     `json:"client_id"`
	ProjectID   string     `json:"project_id"`
}

func (h *handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := h.svc.Finance.List(r.Context(), agencyID(r), finance.Filter{
		ClientID:  q.Get("client_id"),
		ProjectID: q.Get("project_id"),
		Kind:      finance.NormalizeKind(q.Get("kind")),
		Status:    finance.NormalizeStatus(q.Get("status")),
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *handler) recordTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	created, err := h.svc.Finance.Record(r.Context(), finance.Transaction{
		AgencyID:    agencyID(r),
		Kind:        finance.Kind(req.Kind),
		Description: req.Description,
		Category:    req.Category,
		AmountCents: req.AmountCents,
		Status:      finance.Status(req.Status),
		DueDate:     req.DueDate,
		ClientID:    req.ClientID,
		ProjectID:   req.ProjectID,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *handler) getTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := h.svc.Finance.Get(r.Context(), agencyID(r), pathVar(r, "tx"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tx)
}

func (h *handler) updateTransaction(w http.ResponseWriter, r *http.Request) {
	var patch financesvc.Patch
	if err := httputil.DecodeJSON(w, r, &patch); err != nil {
		httputil.WriteError(w, err)
		return
	}
	tx, err := h.svc.Finance.Update(r.Context(), agencyID(r), pathVar(r, "tx"), patch)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tx)
}

func (h *handler) payTransaction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PaidAt *time.Time `json:"paid_at"`
	}
	if r.ContentLength > 0 {
		if err := httputil.DecodeJSON(w, r, &req); err != nil {
			httputil.WriteError(w, err)
			return
		}
	}
	at := time.Now().UTC()
	if req.PaidAt != nil {
		at = *req.PaidAt
	}
	tx, err := h.svc.Finance.MarkPaid(r.Context(), agencyID(r), pathVar(r, "tx"), at)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tx)
}

func (h *handler) cancelTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := h.svc.Finance.Cancel(r.Context(), agencyID(r), pathVar(r, "tx"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tx)
}

func (h *handler) deleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Finance.Delete(r.Context(), agencyID(r), pathVar(r, "tx")); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) financeSummary(w http.ResponseWriter, r *http.Request) {
	from, err := queryTime(r, "from")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	to, err := queryTime(r, "to")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	summary, err := h.svc.Finance.Summary(r.Context(), agencyID(r), from, to)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summary)
}

type portfolioRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags"`
	Featured    bool     `json:"featured"`
	Published   bool     `json:"published"`
	ClientID    string   `json:"client_id"`
	ProjectID   string   `json:"project_id"`
}

func (h *handler) listPortfolio(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := h.svc.Portfolio.List(r.Context(), agencyID(r), portfolio.Filter{
		ClientID:      q.Get("client_id"),
		ProjectID:     q.Get("project_id"),
		PublishedOnly: queryBool(r, "published"),
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *handler) createPortfolio(w http.ResponseWriter, r *http.Request) {
	var req portfolioRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	created, err := h.svc.Portfolio.Create(r.Context(), portfolio.Item{
		AgencyID:    agencyID(r),
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Tags:        req.Tags,
		Featured:    req.Featured,
		Published:   req.Published,
		ClientID:    req.ClientID,
		ProjectID:   req.ProjectID,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *handler) getPortfolio(w http.ResponseWriter, r *http.Request) {
	it, err := h.svc.Portfolio.Get(r.Context(), agencyID(r), pathVar(r, "item"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, it)
}

func (h *handler) updatePortfolio(w http.ResponseWriter, r *http.Request) {
	var patch portfoliosvc.Patch
	if err := httputil.DecodeJSON(w, r, &patch); err != nil {
		httputil.WriteError(w, err)
		return
	}
	it, err := h.svc.Portfolio.Update(r.Context(), agencyID(r), pathVar(r, "item"), patch)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, it)
}

// setPortfolioImage takes the raw image as the request body.
func (h *handler) setPortfolioImage(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, portfoliosvc.MaxImageBytes+1)
	data, err := io.ReadAll(body)
	if err != nil {
		httputil.WriteError(w, apperrors.InvalidInput("image exceeds %d bytes", portfoliosvc.MaxImageBytes))
		return
	}
	it, err := h.svc.Portfolio.SetImage(r.Context(), agencyID(r), pathVar(r, "item"), data, r.Header.Get("Content-Type"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, it)
}

func (h *handler) deletePortfolio(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Portfolio.Delete(r.Context(), agencyID(r), pathVar(r, "item")); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
