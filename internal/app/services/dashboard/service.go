package dashboard

import (
	"context"
	"time"

	"github.com/R3E-Network/agency_layer/internal/app/domain/calendar"
	"github.com/R3E-Network/agency_layer/internal/app/domain/client"
	"github.com/R3E-Network/agency_layer/internal/app/domain/finance"
	"github.com/R3E-Network/agency_layer/internal/app/domain/project"
	"github.com/R3E-Network/agency_layer/internal/app/metrics"
	"github.com/R3E-Network/agency_layer/internal/app/storage"
	"github.com/R3E-Network/agency_layer/internal/cache"
	"github.com/R3E-Network/agency_layer/pkg/logger"
)

const (
	// DefaultTTL bounds how stale a cached summary may get between
	// invalidations.
	DefaultTTL      = time.Minute
	upcomingWindow  = 7 * 24 * time.Hour
	upcomingPreview = 10
	cacheName       = "dashboard"
)

// Summary is the agency overview shown on the staff home screen.
type Summary struct {
	AgencyID           string           `json:"agency_id"`
	Clients            int              `json:"clients"`
	ClientsByStage     map[string]int   `json:"clients_by_stage"`
	PipelineValueCents int64            `json:"pipeline_value_cents"`
	Projects           int              `json:"projects"`
	ProjectsByStatus   map[string]int   `json:"projects_by_status"`
	ActiveProjects     int              `json:"active_projects"`
	OverdueProjects    int              `json:"overdue_projects"`
	MonthRevenueCents  int64            `json:"month_revenue_cents"`
	MonthExpenseCents  int64            `json:"month_expense_cents"`
	ReceivableCents    int64            `json:"receivable_cents"`
	OverdueCents       int64            `json:"overdue_cents"`
	UpcomingPosts      int              `json:"upcoming_posts"`
	Upcoming           []calendar.Event `json:"upcoming"`
	GeneratedAt        time.Time        `json:"generated_at"`
}

// Stores groups the collections a summary is computed from.
type Stores struct {
	Clients      storage.ClientStore
	Projects     storage.ProjectStore
	Events       storage.EventStore
	Transactions storage.TransactionStore
}

// Service computes and caches agency summaries.
type Service struct {
	stores Stores
	cache  cache.Cache
	ttl    time.Duration
	log    *logger.Logger
	now    func() time.Time
}

// New constructs a dashboard service. A nil cache computes every request.
func New(stores Stores, c cache.Cache, ttl time.Duration, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("dashboard")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{stores: stores, cache: c, ttl: ttl, log: log, now: storage.Now}
}

func cacheKey(agencyID string) string {
	return "dashboard:" + agencyID
}

// Summary returns the agency overview, served from cache when fresh.
func (s *Service) Summary(ctx context.Context, agencyID string) (Summary, error) {
	if s.cache != nil {
		var cached Summary
		hit, err := cache.GetJSON(ctx, s.cache, cacheKey(agencyID), &cached)
		if err != nil {
			s.log.WithError(err).WithField("agency_id", agencyID).Warn("read dashboard cache")
		}
		metrics.RecordCacheLookup(cacheName, hit)
		if hit {
			return cached, nil
		}
	}

	sum, err := s.compute(ctx, agencyID, s.now())
	if err != nil {
		return Summary{}, err
	}
	if s.cache != nil {
		if err := cache.SetJSON(ctx, s.cache, cacheKey(agencyID), sum, s.ttl); err != nil {
			s.log.WithError(err).WithField("agency_id", agencyID).Warn("write dashboard cache")
		}
	}
	return sum, nil
}

// Invalidate drops the cached summary. Its signature matches the syncer's
// change listener.
func (s *Service) Invalidate(ctx context.Context, agencyID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, cacheKey(agencyID)); err != nil {
		s.log.WithError(err).WithField("agency_id", agencyID).Warn("invalidate dashboard cache")
	}
}

func (s *Service) compute(ctx context.Context, agencyID string, now time.Time) (Summary, error) {
	clients, err := s.stores.Clients.ListClients(ctx, agencyID)
	if err != nil {
		return Summary{}, err
	}
	projects, err := s.stores.Projects.ListProjects(ctx, agencyID)
	if err != nil {
		return Summary{}, err
	}
	upcoming, err := s.stores.Events.ListEvents(ctx, agencyID, calendar.Filter{From: now, To: now.Add(upcomingWindow)})
	if err != nil {
		return Summary{}, err
	}
	txs, err := s.stores.Transactions.ListTransactions(ctx, agencyID, finance.Filter{})
	if err != nil {
		return Summary{}, err
	}

	sum := Summary{
		AgencyID:         agencyID,
		Clients:          len(clients),
		ClientsByStage:   make(map[string]int, len(client.Stages)),
		Projects:         len(projects),
		ProjectsByStatus: make(map[string]int),
		Upcoming:         []calendar.Event{},
		GeneratedAt:      now,
	}
	for _, st := range client.Stages {
		sum.ClientsByStage[string(st)] = 0
	}
	for _, c := range clients {
		sum.ClientsByStage[string(c.Stage)]++
		if c.Stage.Open() {
			sum.PipelineValueCents += c.TotalBudgetCents
		}
	}
	for _, st := range project.Statuses() {
		sum.ProjectsByStatus[string(st)] = 0
	}
	for _, p := range projects {
		sum.ProjectsByStatus[string(p.Status)]++
		if p.Status.Active() {
			sum.ActiveProjects++
		}
		if p.Overdue(now) {
			sum.OverdueProjects++
		}
	}

	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	fin := finance.Summarize(txs, monthStart, monthStart.AddDate(0, 1, 0))
	sum.MonthRevenueCents = fin.IncomeCents
	sum.MonthExpenseCents = fin.ExpenseCents
	sum.ReceivableCents = fin.ReceivableCents
	sum.OverdueCents = fin.OverdueCents

	for _, e := range upcoming {
		if !e.Status.Pending() {
			continue
		}
		sum.UpcomingPosts++
		if len(sum.Upcoming) < upcomingPreview {
			sum.Upcoming = append(sum.Upcoming, e)
		}
	}
	return sum, nil
}
