// Package portal assembles the client-facing view of an agency. Every
// method is scoped to one client; records of other clients are reported as
// missing.
package portal

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/R3E-Network/agency_layer/internal/app/domain/calendar"
	"github.com/R3E-Network/agency_layer/internal/app/domain/client"
	"github.com/R3E-Network/agency_layer/internal/app/domain/finance"
	"github.com/R3E-Network/agency_layer/internal/app/domain/portfolio"
	"github.com/R3E-Network/agency_layer/internal/app/domain/project"
	"github.com/R3E-Network/agency_layer/internal/app/storage"
	apperrors "github.com/R3E-Network/agency_layer/internal/errors"
	"github.com/R3E-Network/agency_layer/pkg/logger"
)

const upcomingHorizon = 60 * 24 * time.Hour

// Approver performs post approvals on behalf of the portal.
type Approver interface {
	Approve(ctx context.Context, agencyID, id string) (calendar.Event, error)
}

// View is everything a portal user sees on their home screen.
type View struct {
	Client           client.Client         `json:"client"`
	Projects         []project.Project     `json:"projects"`
	Upcoming         []calendar.Event      `json:"upcoming"`
	AwaitingApproval int                   `json:"awaiting_approval"`
	Portfolio        []portfolio.Item      `json:"portfolio"`
	Invoices         []finance.Transaction `json:"invoices"`
	OutstandingCents int64                 `json:"outstanding_cents"`
}

// Stores groups the collections the portal reads.
type Stores struct {
	Clients      storage.ClientStore
	Projects     storage.ProjectStore
	Events       storage.EventStore
	Transactions storage.TransactionStore
	Portfolio    storage.PortfolioStore
}

// Service serves the client portal.
type Service struct {
	stores   Stores
	approver Approver
	log      *logger.Logger
	now      func() time.Time
}

// New constructs a portal service.
func New(stores Stores, approver Approver, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("portal")
	}
	return &Service{stores: stores, approver: approver, log: log, now: storage.Now}
}

// View returns the client's portal home.
func (s *Service) View(ctx context.Context, agencyID, clientID string) (View, error) {
	if strings.TrimSpace(clientID) == "" {
		return View{}, apperrors.Forbidden("portal access requires a client binding")
	}
	c, err := s.stores.Clients.GetClient(ctx, agencyID, clientID)
	if errors.Is(err, storage.ErrNotFound) {
		return View{}, apperrors.NotFound("client", clientID)
	}
	if err != nil {
		return View{}, err
	}
	// Internal CRM notes stay with the agency.
	c.Notes = ""

	projects, err := s.stores.Projects.ListProjectsByClient(ctx, agencyID, clientID)
	if err != nil {
		return View{}, err
	}
	now := s.now()
	events, err := s.stores.Events.ListEvents(ctx, agencyID, calendar.Filter{ClientID: clientID, From: now, To: now.Add(upcomingHorizon)})
	if err != nil {
		return View{}, err
	}
	items, err := s.stores.Portfolio.ListPortfolioItems(ctx, agencyID, portfolio.Filter{ClientID: clientID, PublishedOnly: true})
	if err != nil {
		return View{}, err
	}
	txs, err := s.stores.Transactions.ListTransactions(ctx, agencyID, finance.Filter{ClientID: clientID, Kind: finance.KindIncome})
	if err != nil {
		return View{}, err
	}

	v := View{
		Client:    c,
		Projects:  nonNil(projects),
		Upcoming:  []calendar.Event{},
		Portfolio: nonNil(items),
		Invoices:  []finance.Transaction{},
	}
	for _, e := range events {
		if e.Status == calendar.StatusDraft || e.Status == calendar.StatusCancelled {
			continue
		}
		if e.Status == calendar.StatusScheduled {
			v.AwaitingApproval++
		}
		v.Upcoming = append(v.Upcoming, e)
	}
	for _, tx := range txs {
		if !tx.Status.Open() {
			continue
		}
		v.Invoices = append(v.Invoices, tx)
		v.OutstandingCents += tx.AmountCents
	}
	return v, nil
}

// ApproveEvent approves a scheduled post that belongs to the client.
func (s *Service) ApproveEvent(ctx context.Context, agencyID, clientID, eventID string) (calendar.Event, error) {
	e, err := s.stores.Events.GetEvent(ctx, agencyID, eventID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && (clientID == "" || e.ClientID != clientID)) {
		return calendar.Event{}, apperrors.NotFound("event", eventID)
	}
	if err != nil {
		return calendar.Event{}, err
	}
	approved, err := s.approver.Approve(ctx, agencyID, eventID)
	if err != nil {
		return calendar.Event{}, err
	}
	s.log.WithField("agency_id", agencyID).
		WithField("client_id", clientID).
		WithField("event_id", eventID).
		Info("post approved from portal")
	return approved, nil
}

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
