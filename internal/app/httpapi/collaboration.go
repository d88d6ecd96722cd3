package httpapi

import (
	"net/http"

	"github.com/R3E-Network/agency_layer/internal/app/domain/notification"
	"github.com/R3E-Network/agency_layer/internal/app/domain/onboarding"
	"github.com/R3E-Network/agency_layer/internal/app/domain/tenant"
	chatsvc "github.com/R3E-Network/agency_layer/internal/app/services/chat"
	"github.com/R3E-Network/agency_layer/internal/httputil"
)

// visible drops staff broadcasts from a portal user's feed.
func visible(role tenant.Role, list []notification.Notification) []notification.Notification {
	if role.IsStaff() {
		return list
	}
	out := make([]notification.Notification, 0, len(list))
	for _, n := range list {
		if n.RecipientID != "" {
			out = append(out, n)
		}
	}
	return out
}

func (h *handler) listNotifications(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	who := caller(r)
	list, err := h.svc.Notifications.List(r.Context(), agencyID(r), who.UserID, queryBool(r, "unread"), limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, visible(who.Role, list))
}

func (h *handler) readNotification(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Notifications.MarkRead(r.Context(), agencyID(r), pathVar(r, "id")); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) readAllNotifications(w http.ResponseWriter, r *http.Request) {
	ctx, agency, who := r.Context(), agencyID(r), caller(r)
	if who.Role.IsStaff() {
		n, err := h.svc.Notifications.MarkAllRead(ctx, agency, who.UserID)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]int{"updated": n})
		return
	}

	// Portal users must not flip staff broadcasts.
	unread, err := h.svc.Notifications.List(ctx, agency, who.UserID, true, 0)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	n := 0
	for _, item := range visible(who.Role, unread) {
		if err := h.svc.Notifications.MarkRead(ctx, agency, item.ID); err != nil {
			httputil.WriteError(w, err)
			return
		}
		n++
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int{"updated": n})
}

type messageRequest struct {
	Body string `json:"body"`
}

func (h *handler) writeThread(w http.ResponseWriter, r *http.Request, clientID string) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	list, err := h.svc.Chat.Thread(r.Context(), agencyID(r), clientID, limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *handler) writePost(w http.ResponseWriter, r *http.Request, clientID string) {
	var req messageRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	msg, err := h.svc.Chat.Post(r.Context(), agencyID(r), clientID, req.Body)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, msg)
}

func (h *handler) thread(w http.ResponseWriter, r *http.Request) {
	h.writeThread(w, r, pathVar(r, "client"))
}

func (h *handler) postMessage(w http.ResponseWriter, r *http.Request) {
	h.writePost(w, r, pathVar(r, "client"))
}

func (h *handler) readThread(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.Chat.MarkRead(r.Context(), agencyID(r), pathVar(r, "client"), chatsvc.SideOf(caller(r).Role))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int{"updated": n})
}

func (h *handler) onboarding(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Onboarding.Get(r.Context(), agencyID(r), caller(r).UserID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *handler) completeStep(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Onboarding.Complete(r.Context(), agencyID(r), caller(r).UserID, onboarding.Step(pathVar(r, "step")))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *handler) dismissOnboarding(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Onboarding.Dismiss(r.Context(), agencyID(r), caller(r).UserID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *handler) resetOnboarding(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Onboarding.Reset(r.Context(), agencyID(r), caller(r).UserID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *handler) dashboard(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.Dashboard.Summary(r.Context(), agencyID(r))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summary)
}

// reconcile runs a full repair pass. Per-record failures are reported with
// the partial report rather than as a 500.
func (h *handler) reconcile(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.Syncer.Reconcile(r.Context(), agencyID(r))
	body := map[string]any{"report": report, "repairs": report.Repairs()}
	if err != nil {
		h.log.WithError(err).WithField("agency_id", agencyID(r)).Warn("reconcile finished with errors")
		body["error"] = err.Error()
	}
	httputil.WriteJSON(w, http.StatusOK, body)
}

func (h *handler) portalView(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Portal.View(r.Context(), agencyID(r), caller(r).ClientID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *handler) portalThread(w http.ResponseWriter, r *http.Request) {
	h.writeThread(w, r, caller(r).ClientID)
}

func (h *handler) portalPost(w http.ResponseWriter, r *http.Request) {
	h.writePost(w, r, caller(r).ClientID)
}

func (h *handler) portalApprove(w http.ResponseWriter, r *http.Request) {
	e, err := h.svc.Portal.ApproveEvent(r.Context(), agencyID(r), caller(r).ClientID, pathVar(r, "event"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, e)
}
