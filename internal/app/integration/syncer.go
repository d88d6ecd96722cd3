// Package integration keeps denormalized names and aggregate totals
// consistent across clients, projects, calendar events, transactions and
// portfolio items.
package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/R3E-Network/agency_layer/internal/app/domain/calendar"
	"github.com/R3E-Network/agency_layer/internal/app/domain/client"
	"github.com/R3E-Network/agency_layer/internal/app/domain/finance"
	"github.com/R3E-Network/agency_layer/internal/app/domain/portfolio"
	"github.com/R3E-Network/agency_layer/internal/app/domain/project"
	"github.com/R3E-Network/agency_layer/internal/app/domain/tenant"
	"github.com/R3E-Network/agency_layer/internal/app/metrics"
	"github.com/R3E-Network/agency_layer/internal/app/storage"
	apperrors "github.com/R3E-Network/agency_layer/internal/errors"
	"github.com/R3E-Network/agency_layer/pkg/logger"
)

// Stores groups the collections the syncer reads and rewrites.
type Stores struct {
	Clients      storage.ClientStore
	Projects     storage.ProjectStore
	Events       storage.EventStore
	Transactions storage.TransactionStore
	Portfolio    storage.PortfolioStore
	Members      storage.MemberStore
}

// StoresFrom uses one backend for every collection.
func StoresFrom(s storage.Store) Stores {
	return Stores{Clients: s, Projects: s, Events: s, Transactions: s, Portfolio: s, Members: s}
}

// Listener is notified after every sync operation touching an agency.
type Listener func(ctx context.Context, agencyID string)

// Link is the set of reference fields a linked record carries.
type Link struct {
	ClientID    string `json:"client_id"`
	ClientName  string `json:"client_name"`
	ProjectID   string `json:"project_id"`
	ProjectName string `json:"project_name"`
}

// Syncer propagates changes of one record into every record that copies its
// fields. Operations for the same agency are serialized.
type Syncer struct {
	stores Stores
	log    *logger.Logger
	locks  *keyedMutex

	mu        sync.RWMutex
	listeners []Listener
}

// New constructs a syncer.
func New(stores Stores, log *logger.Logger) *Syncer {
	if log == nil {
		log = logger.NewDefault("sync")
	}
	return &Syncer{stores: stores, log: log, locks: newKeyedMutex()}
}

// OnChange registers a listener. Listeners run synchronously after the agency
// lock is released.
func (s *Syncer) OnChange(fn Listener) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

func (s *Syncer) notify(ctx context.Context, agencyID string) {
	s.mu.RLock()
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.RUnlock()
	for _, fn := range listeners {
		fn(ctx, agencyID)
	}
}

func (s *Syncer) run(ctx context.Context, op, agencyID string, fn func() error) error {
	start := time.Now()
	unlock := s.locks.Lock(agencyID)
	err := fn()
	unlock()

	metrics.RecordSync(op, time.Since(start), err)
	if err != nil {
		s.log.WithError(err).
			WithField("agency_id", agencyID).
			WithField("operation", op).
			Warn("sync incomplete")
	}
	s.notify(ctx, agencyID)
	return err
}

// Resolve validates a client/project reference pair and returns the names to
// copy into the referencing record. A project alone implies its client.
func (s *Syncer) Resolve(ctx context.Context, agencyID, clientID, projectID string) (Link, error) {
	clientID = strings.TrimSpace(clientID)
	projectID = strings.TrimSpace(projectID)

	var link Link
	if projectID != "" {
		p, err := s.stores.Projects.GetProject(ctx, agencyID, projectID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return Link{}, apperrors.InvalidInput("project %s does not exist", projectID)
			}
			return Link{}, fmt.Errorf("resolve project %s: %w", projectID, err)
		}
		if clientID == "" {
			clientID = p.ClientID
		} else if p.ClientID != "" && p.ClientID != clientID {
			return Link{}, apperrors.InvalidInput("project %s does not belong to client %s", projectID, clientID)
		}
		link.ProjectID = p.ID
		link.ProjectName = p.Name
	}
	if clientID != "" {
		c, err := s.stores.Clients.GetClient(ctx, agencyID, clientID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return Link{}, apperrors.InvalidInput("client %s does not exist", clientID)
			}
			return Link{}, fmt.Errorf("resolve client %s: %w", clientID, err)
		}
		link.ClientID = c.ID
		link.ClientName = c.Name
	}
	return link, nil
}

// ClientChanged copies a renamed client's name into its projects and every
// linked event, transaction and portfolio item.
func (s *Syncer) ClientChanged(ctx context.Context, before, after client.Client) error {
	if before.Name == after.Name {
		return nil
	}
	return s.run(ctx, "client_changed", after.AgencyID, func() error {
		var errs []error
		projects, err := s.stores.Projects.ListProjectsByClient(ctx, after.AgencyID, after.ID)
		if err != nil {
			return fmt.Errorf("list projects of client %s: %w", after.ID, err)
		}
		for _, p := range projects {
			if p.ClientName == after.Name {
				continue
			}
			p.ClientName = after.Name
			if _, err := s.stores.Projects.UpdateProject(ctx, p); err != nil {
				errs = append(errs, fmt.Errorf("project %s: %w", p.ID, err))
			}
		}
		if _, err := s.relink(ctx, after.AgencyID, selector{clientID: after.ID}, func(l *Link) bool {
			if l.ClientName == after.Name {
				return false
			}
			l.ClientName = after.Name
			return true
		}); err != nil {
			errs = append(errs, err)
		}
		s.log.WithField("agency_id", after.AgencyID).
			WithField("client_id", after.ID).
			Info("client name propagated")
		return errors.Join(errs...)
	})
}

// ClientDeleted removes the client's projects, detaches every other record
// from the client and deactivates portal members bound to it. The client row
// itself is expected to be gone already.
func (s *Syncer) ClientDeleted(ctx context.Context, c client.Client) error {
	return s.run(ctx, "client_deleted", c.AgencyID, func() error {
		var errs []error
		projects, err := s.stores.Projects.ListProjectsByClient(ctx, c.AgencyID, c.ID)
		if err != nil {
			return fmt.Errorf("list projects of client %s: %w", c.ID, err)
		}
		for _, p := range projects {
			if err := s.stores.Projects.DeleteProject(ctx, p.AgencyID, p.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
				errs = append(errs, fmt.Errorf("delete project %s: %w", p.ID, err))
				continue
			}
			if _, err := s.relink(ctx, c.AgencyID, selector{projectID: p.ID}, clearProject); err != nil {
				errs = append(errs, err)
			}
			s.log.WithField("agency_id", c.AgencyID).
				WithField("project_id", p.ID).
				Info("project removed with client")
		}
		if _, err := s.relink(ctx, c.AgencyID, selector{clientID: c.ID}, clearClient); err != nil {
			errs = append(errs, err)
		}
		if err := s.deactivatePortalMembers(ctx, c); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	})
}

func (s *Syncer) deactivatePortalMembers(ctx context.Context, c client.Client) error {
	if s.stores.Members == nil {
		return nil
	}
	members, err := s.stores.Members.ListMembers(ctx, c.AgencyID)
	if err != nil {
		return fmt.Errorf("list members: %w", err)
	}
	var errs []error
	for _, m := range members {
		if m.Role != tenant.RoleClient || m.ClientID != c.ID || !m.Active {
			continue
		}
		m.Active = false
		if _, err := s.stores.Members.UpdateMember(ctx, m); err != nil {
			errs = append(errs, fmt.Errorf("member %s: %w", m.ID, err))
			continue
		}
		s.log.WithField("agency_id", c.AgencyID).
			WithField("member_id", m.ID).
			Info("portal member deactivated")
	}
	return errors.Join(errs...)
}

// ProjectCreated refreshes the owning client's aggregates.
func (s *Syncer) ProjectCreated(ctx context.Context, p project.Project) error {
	return s.run(ctx, "project_created", p.AgencyID, func() error {
		_, err := s.recomputeClient(ctx, p.AgencyID, p.ClientID)
		return err
	})
}

// ProjectChanged propagates renames and client reassignment to linked
// records and refreshes the aggregates of every client involved.
func (s *Syncer) ProjectChanged(ctx context.Context, before, after project.Project) error {
	renamed := before.Name != after.Name
	moved := before.ClientID != after.ClientID || before.ClientName != after.ClientName
	totals := before.BudgetCents != after.BudgetCents || before.Status != after.Status
	if !renamed && !moved && !totals {
		return nil
	}
	return s.run(ctx, "project_changed", after.AgencyID, func() error {
		var errs []error
		if renamed || moved {
			if _, err := s.relink(ctx, after.AgencyID, selector{projectID: after.ID}, func(l *Link) bool {
				next := Link{ClientID: after.ClientID, ClientName: after.ClientName, ProjectID: after.ID, ProjectName: after.Name}
				if *l == next {
					return false
				}
				*l = next
				return true
			}); err != nil {
				errs = append(errs, err)
			}
		}
		if _, err := s.recomputeClient(ctx, after.AgencyID, after.ClientID); err != nil {
			errs = append(errs, err)
		}
		if before.ClientID != after.ClientID {
			if _, err := s.recomputeClient(ctx, after.AgencyID, before.ClientID); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}

// ProjectDeleted detaches linked records from the project, keeping their
// client link, and refreshes the client's aggregates.
func (s *Syncer) ProjectDeleted(ctx context.Context, p project.Project) error {
	return s.run(ctx, "project_deleted", p.AgencyID, func() error {
		var errs []error
		if _, err := s.relink(ctx, p.AgencyID, selector{projectID: p.ID}, clearProject); err != nil {
			errs = append(errs, err)
		}
		if _, err := s.recomputeClient(ctx, p.AgencyID, p.ClientID); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	})
}

// EventChanged refreshes counters affected by an event write. A nil before
// means the event was created, a nil after that it was deleted.
func (s *Syncer) EventChanged(ctx context.Context, before, after *calendar.Event) error {
	if before == nil && after == nil {
		return nil
	}
	if before != nil && after != nil &&
		before.Status == after.Status && before.ClientID == after.ClientID && before.ProjectID == after.ProjectID {
		return nil
	}
	var clients, projects []string
	agencyID := ""
	for _, e := range []*calendar.Event{before, after} {
		if e == nil {
			continue
		}
		agencyID = e.AgencyID
		clients = appendUnique(clients, e.ClientID)
		projects = appendUnique(projects, e.ProjectID)
	}
	return s.run(ctx, "event_changed", agencyID, func() error {
		return s.recomputeAll(ctx, agencyID, clients, projects)
	})
}

// TransactionChanged refreshes totals affected by a transaction write. A nil
// before means creation, a nil after deletion.
func (s *Syncer) TransactionChanged(ctx context.Context, before, after *finance.Transaction) error {
	if before == nil && after == nil {
		return nil
	}
	if before != nil && after != nil &&
		before.Kind == after.Kind && before.Status == after.Status && before.AmountCents == after.AmountCents &&
		before.ClientID == after.ClientID && before.ProjectID == after.ProjectID {
		return nil
	}
	var clients, projects []string
	agencyID := ""
	for _, tx := range []*finance.Transaction{before, after} {
		if tx == nil {
			continue
		}
		agencyID = tx.AgencyID
		clients = appendUnique(clients, tx.ClientID)
		projects = appendUnique(projects, tx.ProjectID)
	}
	return s.run(ctx, "transaction_changed", agencyID, func() error {
		return s.recomputeAll(ctx, agencyID, clients, projects)
	})
}

// RecomputeClient rewrites a client's aggregates from source collections.
func (s *Syncer) RecomputeClient(ctx context.Context, agencyID, clientID string) error {
	return s.run(ctx, "recompute_client", agencyID, func() error {
		_, err := s.recomputeClient(ctx, agencyID, clientID)
		return err
	})
}

// RecomputeProject rewrites a project's totals from source collections.
func (s *Syncer) RecomputeProject(ctx context.Context, agencyID, projectID string) error {
	return s.run(ctx, "recompute_project", agencyID, func() error {
		_, err := s.recomputeProject(ctx, agencyID, projectID)
		return err
	})
}

func (s *Syncer) recomputeAll(ctx context.Context, agencyID string, clients, projects []string) error {
	var errs []error
	for _, id := range projects {
		if _, err := s.recomputeProject(ctx, agencyID, id); err != nil {
			errs = append(errs, err)
		}
	}
	for _, id := range clients {
		if _, err := s.recomputeClient(ctx, agencyID, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// recomputeClient reports whether the stored aggregates changed. A missing
// client is not an error: there is nothing left to keep consistent.
func (s *Syncer) recomputeClient(ctx context.Context, agencyID, clientID string) (bool, error) {
	if clientID == "" {
		return false, nil
	}
	c, err := s.stores.Clients.GetClient(ctx, agencyID, clientID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("load client %s: %w", clientID, err)
	}
	projects, err := s.stores.Projects.ListProjectsByClient(ctx, agencyID, clientID)
	if err != nil {
		return false, fmt.Errorf("list projects of client %s: %w", clientID, err)
	}
	events, err := s.stores.Events.ListEvents(ctx, agencyID, calendar.Filter{ClientID: clientID})
	if err != nil {
		return false, fmt.Errorf("list events of client %s: %w", clientID, err)
	}
	txs, err := s.stores.Transactions.ListTransactions(ctx, agencyID, finance.Filter{ClientID: clientID, Kind: finance.KindIncome})
	if err != nil {
		return false, fmt.Errorf("list transactions of client %s: %w", clientID, err)
	}

	agg := ClientTotals(clientID, projects, events, txs)
	if agg == c.Aggregates() {
		return false, nil
	}
	c.ApplyAggregates(agg)
	if _, err := s.stores.Clients.UpdateClient(ctx, c); err != nil {
		return false, fmt.Errorf("update client %s: %w", clientID, err)
	}
	return true, nil
}

func (s *Syncer) recomputeProject(ctx context.Context, agencyID, projectID string) (bool, error) {
	if projectID == "" {
		return false, nil
	}
	p, err := s.stores.Projects.GetProject(ctx, agencyID, projectID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("load project %s: %w", projectID, err)
	}
	events, err := s.stores.Events.ListEvents(ctx, agencyID, calendar.Filter{ProjectID: projectID})
	if err != nil {
		return false, fmt.Errorf("list events of project %s: %w", projectID, err)
	}
	txs, err := s.stores.Transactions.ListTransactions(ctx, agencyID, finance.Filter{ProjectID: projectID, Kind: finance.KindIncome})
	if err != nil {
		return false, fmt.Errorf("list transactions of project %s: %w", projectID, err)
	}

	totals := ProjectTotalsFor(projectID, events, txs)
	if totals == projectTotals(p) {
		return false, nil
	}
	p.PaidCents = totals.PaidCents
	p.EventCount = totals.EventCount
	if _, err := s.stores.Projects.UpdateProject(ctx, p); err != nil {
		return false, fmt.Errorf("update project %s: %w", projectID, err)
	}
	return true, nil
}

// selector picks linked records by client or project.
type selector struct {
	clientID  string
	projectID string
}

func clearProject(l *Link) bool {
	if l.ProjectID == "" && l.ProjectName == "" {
		return false
	}
	l.ProjectID, l.ProjectName = "", ""
	return true
}

func clearClient(l *Link) bool {
	if *l == (Link{}) {
		return false
	}
	*l = Link{}
	return true
}

// relink applies edit to the links of every event, transaction and portfolio
// item matched by sel and persists the ones edit changed. Every record is
// attempted; failures are joined.
func (s *Syncer) relink(ctx context.Context, agencyID string, sel selector, edit func(*Link) bool) (int, error) {
	var errs []error
	changed := 0

	events, err := s.stores.Events.ListEvents(ctx, agencyID, calendar.Filter{ClientID: sel.clientID, ProjectID: sel.projectID})
	if err != nil {
		errs = append(errs, fmt.Errorf("list events: %w", err))
	}
	for _, e := range events {
		l := Link{e.ClientID, e.ClientName, e.ProjectID, e.ProjectName}
		if !edit(&l) {
			continue
		}
		e.ClientID, e.ClientName, e.ProjectID, e.ProjectName = l.ClientID, l.ClientName, l.ProjectID, l.ProjectName
		if _, err := s.stores.Events.UpdateEvent(ctx, e); err != nil {
			errs = append(errs, fmt.Errorf("event %s: %w", e.ID, err))
			continue
		}
		changed++
	}

	txs, err := s.stores.Transactions.ListTransactions(ctx, agencyID, finance.Filter{ClientID: sel.clientID, ProjectID: sel.projectID})
	if err != nil {
		errs = append(errs, fmt.Errorf("list transactions: %w", err))
	}
	for _, tx := range txs {
		l := Link{tx.ClientID, tx.ClientName, tx.ProjectID, tx.ProjectName}
		if !edit(&l) {
			continue
		}
		tx.ClientID, tx.ClientName, tx.ProjectID, tx.ProjectName = l.ClientID, l.ClientName, l.ProjectID, l.ProjectName
		if _, err := s.stores.Transactions.UpdateTransaction(ctx, tx); err != nil {
			errs = append(errs, fmt.Errorf("transaction %s: %w", tx.ID, err))
			continue
		}
		changed++
	}

	items, err := s.stores.Portfolio.ListPortfolioItems(ctx, agencyID, portfolio.Filter{ClientID: sel.clientID, ProjectID: sel.projectID})
	if err != nil {
		errs = append(errs, fmt.Errorf("list portfolio items: %w", err))
	}
	for _, it := range items {
		l := Link{it.ClientID, it.ClientName, it.ProjectID, it.ProjectName}
		if !edit(&l) {
			continue
		}
		it.ClientID, it.ClientName, it.ProjectID, it.ProjectName = l.ClientID, l.ClientName, l.ProjectID, l.ProjectName
		if _, err := s.stores.Portfolio.UpdatePortfolioItem(ctx, it); err != nil {
			errs = append(errs, fmt.Errorf("portfolio item %s: %w", it.ID, err))
			continue
		}
		changed++
	}

	return changed, errors.Join(errs...)
}

func appendUnique(list []string, id string) []string {
	if id == "" {
		return list
	}
	for _, existing := range list {
		if existing == id {
			return list
		}
	}
	return append(list, id)
}
