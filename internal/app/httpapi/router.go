// Package httpapi exposes the agency services over a JSON REST API.
package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/R3E-Network/agency_layer/internal/app/actor"
	"github.com/R3E-Network/agency_layer/internal/app/domain/tenant"
	"github.com/R3E-Network/agency_layer/internal/app/integration"
	"github.com/R3E-Network/agency_layer/internal/app/metrics"
	"github.com/R3E-Network/agency_layer/internal/app/services/agencies"
	calendarsvc "github.com/R3E-Network/agency_layer/internal/app/services/calendar"
	chatsvc "github.com/R3E-Network/agency_layer/internal/app/services/chat"
	"github.com/R3E-Network/agency_layer/internal/app/services/clients"
	"github.com/R3E-Network/agency_layer/internal/app/services/dashboard"
	financesvc "github.com/R3E-Network/agency_layer/internal/app/services/finance"
	"github.com/R3E-Network/agency_layer/internal/app/services/members"
	"github.com/R3E-Network/agency_layer/internal/app/services/notifications"
	onboardingsvc "github.com/R3E-Network/agency_layer/internal/app/services/onboarding"
	"github.com/R3E-Network/agency_layer/internal/app/services/portal"
	portfoliosvc "github.com/R3E-Network/agency_layer/internal/app/services/portfolio"
	"github.com/R3E-Network/agency_layer/internal/app/services/projects"
	apperrors "github.com/R3E-Network/agency_layer/internal/errors"
	"github.com/R3E-Network/agency_layer/internal/httputil"
	"github.com/R3E-Network/agency_layer/internal/middleware"
	"github.com/R3E-Network/agency_layer/pkg/logger"
)

// Services are the application services served by the API.
type Services struct {
	Agencies      *agencies.Service
	Members       *members.Service
	Clients       *clients.Service
	Projects      *projects.Service
	Calendar      *calendarsvc.Service
	Finance       *financesvc.Service
	Portfolio     *portfoliosvc.Service
	Notifications *notifications.Service
	Chat          *chatsvc.Service
	Onboarding    *onboardingsvc.Service
	Dashboard     *dashboard.Service
	Portal        *portal.Service
	Syncer        *integration.Syncer
}

// Options configure the middleware chain and the operational endpoints.
type Options struct {
	Auth        middleware.AuthConfig
	CORSOrigins []string
	RateLimit   float64
	RateBurst   int
	// AuditLogPath appends mutating requests as JSONL when set.
	AuditLogPath string
	// Identity proxies /auth/*; nil answers 501.
	Identity Identity
	// Status reports the lifecycle state for /system/status.
	Status StatusSource
}

type handler struct {
	svc      Services
	identity Identity
	audit    *auditLog
	status   *statusReporter
	limiter  *middleware.RateLimiter
	log      *logger.Logger
}

// API is the assembled HTTP surface.
type API struct {
	http.Handler
	limiter *middleware.RateLimiter
	audit   *auditLog
}

// RunLimiterCleanup evicts idle rate-limit buckets until ctx is done.
func (a *API) RunLimiterCleanup(ctx context.Context, interval time.Duration) {
	a.limiter.Run(ctx, interval)
}

// Close releases the audit sink.
func (a *API) Close() error {
	return a.audit.close()
}

// NewHandler builds the router and its middleware chain.
func NewHandler(svc Services, opts Options, log *logger.Logger) (*API, error) {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	sink, err := newFileAuditSink(opts.AuditLogPath)
	if err != nil {
		return nil, err
	}
	h := &handler{
		svc:      svc,
		identity: opts.Identity,
		audit:    newAuditLog(0, sink),
		status:   newStatusReporter(opts.Status),
		limiter:  middleware.NewRateLimiter(opts.RateLimit, opts.RateBurst, log.Named("ratelimit")),
		log:      log,
	}

	root := mux.NewRouter()
	root.Use(
		middleware.NewRequestLogger(log.Named("http")).Handler,
		middleware.Recover(log),
		middleware.Metrics,
		middleware.NewCORSMiddleware(opts.CORSOrigins).Handler,
		middleware.NewAuthMiddleware(opts.Auth, log.Named("auth")).Handler,
		h.limiter.Handler,
		h.auditMiddleware,
	)
	root.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorResponse(w, http.StatusNotFound, string(apperrors.CodeNotFound), "route not found", nil)
	})
	root.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorResponse(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed", nil)
	})
	h.routes(root)

	return &API{Handler: root, limiter: h.limiter, audit: h.audit}, nil
}

func (h *handler) routes(r *mux.Router) {
	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/system/status", h.systemStatus).Methods(http.MethodGet)
	r.HandleFunc("/auth/signup", h.signUp).Methods(http.MethodPost)
	r.HandleFunc("/auth/signin", h.signIn).Methods(http.MethodPost)
	r.HandleFunc("/auth/refresh", h.refreshSession).Methods(http.MethodPost)
	r.HandleFunc("/me", h.me).Methods(http.MethodGet)
	r.HandleFunc("/agencies", h.listAgencies).Methods(http.MethodGet)
	r.HandleFunc("/agencies", h.createAgency).Methods(http.MethodPost)
	// Accepting an invite happens before the caller is a member.
	r.HandleFunc("/agencies/{agency}/invites/{invite}/accept", h.acceptInvite).Methods(http.MethodPost)

	a := r.PathPrefix("/agencies/{agency}").Subrouter()
	a.Use(h.membership)

	staff := tenant.RoleMember
	admin := tenant.RoleAdmin
	everyone := tenant.RoleClient

	a.Handle("", h.role(everyone, h.getAgency)).Methods(http.MethodGet)
	a.Handle("", h.role(admin, h.renameAgency)).Methods(http.MethodPatch)

	a.Handle("/members", h.role(staff, h.listMembers)).Methods(http.MethodGet)
	a.Handle("/members/{member}", h.role(admin, h.updateMember)).Methods(http.MethodPatch)
	a.Handle("/members/{member}", h.role(admin, h.removeMember)).Methods(http.MethodDelete)
	a.Handle("/invites", h.role(admin, h.listInvites)).Methods(http.MethodGet)
	a.Handle("/invites", h.role(admin, h.createInvite)).Methods(http.MethodPost)

	a.Handle("/clients", h.role(staff, h.listClients)).Methods(http.MethodGet)
	a.Handle("/clients", h.role(staff, h.createClient)).Methods(http.MethodPost)
	a.Handle("/clients/{client}", h.role(staff, h.getClient)).Methods(http.MethodGet)
	a.Handle("/clients/{client}", h.role(staff, h.updateClient)).Methods(http.MethodPatch)
	a.Handle("/clients/{client}", h.role(admin, h.deleteClient)).Methods(http.MethodDelete)
	a.Handle("/clients/{client}/stage", h.role(staff, h.setClientStage)).Methods(http.MethodPut)

	a.Handle("/projects", h.role(staff, h.listProjects)).Methods(http.MethodGet)
	a.Handle("/projects", h.role(staff, h.createProject)).Methods(http.MethodPost)
	a.Handle("/projects/{project}", h.role(staff, h.getProject)).Methods(http.MethodGet)
	a.Handle("/projects/{project}", h.role(staff, h.updateProject)).Methods(http.MethodPatch)
	a.Handle("/projects/{project}", h.role(admin, h.deleteProject)).Methods(http.MethodDelete)

	a.Handle("/events", h.role(staff, h.listEvents)).Methods(http.MethodGet)
	a.Handle("/events", h.role(staff, h.createEvent)).Methods(http.MethodPost)
	a.Handle("/events/{event}", h.role(staff, h.getEvent)).Methods(http.MethodGet)
	a.Handle("/events/{event}", h.role(staff, h.updateEvent)).Methods(http.MethodPatch)
	a.Handle("/events/{event}", h.role(staff, h.deleteEvent)).Methods(http.MethodDelete)
	a.Handle("/events/{event}/publish", h.role(staff, h.publishEvent)).Methods(http.MethodPost)
	a.Handle("/events/{event}/cancel", h.role(staff, h.cancelEvent)).Methods(http.MethodPost)

	a.Handle("/transactions", h.role(staff, h.listTransactions)).Methods(http.MethodGet)
	a.Handle("/transactions", h.role(staff, h.recordTransaction)).Methods(http.MethodPost)
	a.Handle("/transactions/{tx}", h.role(staff, h.getTransaction)).Methods(http.MethodGet)
	a.Handle("/transactions/{tx}", h.role(staff, h.updateTransaction)).Methods(http.MethodPatch)
	a.Handle("/transactions/{tx}", h.role(admin, h.deleteTransaction)).Methods(http.MethodDelete)
	a.Handle("/transactions/{tx}/pay", h.role(staff, h.payTransaction)).Methods(http.MethodPost)
	a.Handle("/transactions/{tx}/cancel", h.role(staff, h.cancelTransaction)).Methods(http.MethodPost)
	a.Handle("/finance/summary", h.role(staff, h.financeSummary)).Methods(http.MethodGet)

	a.Handle("/portfolio", h.role(staff, h.listPortfolio)).Methods(http.MethodGet)
	a.Handle("/portfolio", h.role(staff, h.createPortfolio)).Methods(http.MethodPost)
	a.Handle("/portfolio/{item}", h.role(staff, h.getPortfolio)).Methods(http.MethodGet)
	a.Handle("/portfolio/{item}", h.role(staff, h.updatePortfolio)).Methods(http.MethodPatch)
	a.Handle("/portfolio/{item}", h.role(staff, h.deletePortfolio)).Methods(http.MethodDelete)
	a.Handle("/portfolio/{item}/image", h.role(staff, h.setPortfolioImage)).Methods(http.MethodPut)

	a.Handle("/notifications", h.role(everyone, h.listNotifications)).Methods(http.MethodGet)
	a.Handle("/notifications/read-all", h.role(everyone, h.readAllNotifications)).Methods(http.MethodPost)
	a.Handle("/notifications/{id}/read", h.role(everyone, h.readNotification)).Methods(http.MethodPost)

	a.Handle("/messages/{client}", h.role(staff, h.thread)).Methods(http.MethodGet)
	a.Handle("/messages/{client}", h.role(staff, h.postMessage)).Methods(http.MethodPost)
	a.Handle("/messages/{client}/read", h.role(staff, h.readThread)).Methods(http.MethodPost)

	a.Handle("/onboarding", h.role(everyone, h.onboarding)).Methods(http.MethodGet)
	a.Handle("/onboarding/steps/{step}", h.role(everyone, h.completeStep)).Methods(http.MethodPost)
	a.Handle("/onboarding/dismiss", h.role(everyone, h.dismissOnboarding)).Methods(http.MethodPost)
	a.Handle("/onboarding/reset", h.role(everyone, h.resetOnboarding)).Methods(http.MethodPost)

	a.Handle("/dashboard", h.role(staff, h.dashboard)).Methods(http.MethodGet)
	a.Handle("/reconcile", h.role(admin, h.reconcile)).Methods(http.MethodPost)
	a.Handle("/audit", h.role(admin, h.auditTrail)).Methods(http.MethodGet)

	a.Handle("/portal", h.portalOnly(h.portalView)).Methods(http.MethodGet)
	a.Handle("/portal/messages", h.portalOnly(h.portalThread)).Methods(http.MethodGet)
	a.Handle("/portal/messages", h.portalOnly(h.portalPost)).Methods(http.MethodPost)
	a.Handle("/portal/events/{event}/approve", h.portalOnly(h.portalApprove)).Methods(http.MethodPost)
}

// membership resolves the caller's member record for the agency in the path
// and replaces the token-only actor with the membership-backed one.
func (h *handler) membership(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m, err := h.svc.Members.Authorize(r.Context(), agencyID(r), actor.UserID(r.Context()), tenant.RoleClient)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		who := actor.FromMember(m)
		noteRole(r.Context(), string(m.Role))
		if token, ok := actor.From(r.Context()); ok {
			if who.Email == "" {
				who.Email = token.Email
			}
			if who.Name == "" {
				who.Name = token.Name
			}
		}
		next.ServeHTTP(w, r.WithContext(actor.With(r.Context(), who)))
	})
}

func (h *handler) role(min tenant.Role, fn http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a, _ := actor.From(r.Context())
		if !a.Role.AtLeast(min) {
			httputil.WriteError(w, apperrors.Forbidden("requires "+string(min)+" role"))
			return
		}
		fn(w, r)
	})
}

// portalOnly admits client-role members bound to a client.
func (h *handler) portalOnly(fn http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a, _ := actor.From(r.Context())
		if a.Role != tenant.RoleClient || a.ClientID == "" {
			httputil.WriteError(w, apperrors.Forbidden("portal is reserved for client accounts"))
			return
		}
		fn(w, r)
	})
}

func agencyID(r *http.Request) string {
	return mux.Vars(r)["agency"]
}

func pathVar(r *http.Request, name string) string {
	return mux.Vars(r)[name]
}

func caller(r *http.Request) actor.Actor {
	a, _ := actor.From(r.Context())
	return a
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperrors.InvalidInput("%s must be a non-negative integer", key)
	}
	return n, nil
}

// queryTime accepts RFC 3339 timestamps and plain dates.
func queryTime(r *http.Request, key string) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, apperrors.InvalidInput("%s must be RFC 3339 or YYYY-MM-DD", key)
	}
	return t, nil
}

func queryBool(r *http.Request, key string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return v
}
