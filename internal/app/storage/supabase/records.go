package supabase

import (
	"context"

	"github.com/R3E-Network/agency_layer/internal/app/domain/calendar"
	"github.com/R3E-Network/agency_layer/internal/app/domain/client"
	"github.com/R3E-Network/agency_layer/internal/app/domain/finance"
	"github.com/R3E-Network/agency_layer/internal/app/domain/portfolio"
	"github.com/R3E-Network/agency_layer/internal/app/domain/project"
	"github.com/R3E-Network/agency_layer/internal/app/storage"
)

const (
	tableClients      = "clients"
	tableProjects     = "projects"
	tableEvents       = "calendar_events"
	tableTransactions = "transactions"
	tablePortfolio    = "portfolio_items"
)

// --- ClientStore -------------------------------------------------------------

func (s *Store) CreateClient(ctx context.Context, c client.Client) (client.Client, error) {
	c.ID = newID(c.ID)
	now := storage.Now()
	c.CreatedAt, c.UpdatedAt = now, now
	if c.Tags == nil {
		c.Tags = []string{}
	}
	return insert[client.Client](ctx, s, tableClients, c)
}

func (s *Store) UpdateClient(ctx context.Context, c client.Client) (client.Client, error) {
	c.UpdatedAt = storage.Now()
	if c.Tags == nil {
		c.Tags = []string{}
	}
	body, err := patch(c, nil)
	if err != nil {
		return client.Client{}, err
	}
	return update[client.Client](ctx, s.scoped(tableClients, c.AgencyID, c.ID), "client", c.ID, body)
}

func (s *Store) GetClient(ctx context.Context, agencyID, id string) (client.Client, error) {
	var c client.Client
	err := s.one(ctx, s.scoped(tableClients, agencyID, id), &c, "client", id)
	return c, err
}

func (s *Store) ListClients(ctx context.Context, agencyID string) ([]client.Client, error) {
	var out []client.Client
	err := s.from(tableClients).Eq("agency_id", agencyID).
		Order("created_at", true).Order("id", true).Fetch(ctx, &out)
	return out, err
}

func (s *Store) SearchClients(ctx context.Context, agencyID, term string) ([]client.Client, error) {
	var out []client.Client
	err := s.from(tableClients).Eq("agency_id", agencyID).
		ILike(storage.ContainsPattern(term), "name", "company", "email").
		Order("created_at", true).Order("id", true).Fetch(ctx, &out)
	return out, err
}

func (s *Store) DeleteClient(ctx context.Context, agencyID, id string) error {
	return remove(ctx, s.scoped(tableClients, agencyID, id), "client", id)
}

// --- ProjectStore ------------------------------------------------------------

var projectOptional = map[string]any{"start_date": nil, "due_date": nil}

func (s *Store) CreateProject(ctx context.Context, p project.Project) (project.Project, error) {
	p.ID = newID(p.ID)
	now := storage.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	return insert[project.Project](ctx, s, tableProjects, p)
}

func (s *Store) UpdateProject(ctx context.Context, p project.Project) (project.Project, error) {
	p.UpdatedAt = storage.Now()
	body, err := patch(p, projectOptional)
	if err != nil {
		return project.Project{}, err
	}
	return update[project.Project](ctx, s.scoped(tableProjects, p.AgencyID, p.ID), "project", p.ID, body)
}

func (s *Store) GetProject(ctx context.Context, agencyID, id string) (project.Project, error) {
	var p project.Project
	err := s.one(ctx, s.scoped(tableProjects, agencyID, id), &p, "project", id)
	return p, err
}

func (s *Store) ListProjects(ctx context.Context, agencyID string) ([]project.Project, error) {
	var out []project.Project
	err := s.from(tableProjects).Eq("agency_id", agencyID).
		Order("created_at", true).Order("id", true).Fetch(ctx, &out)
	return out, err
}

func (s *Store) ListProjectsByClient(ctx context.Context, agencyID, clientID string) ([]project.Project, error) {
	var out []project.Project
	err := s.from(tableProjects).Eq("agency_id", agencyID).Eq("client_id", clientID).
		Order("created_at", true).Order("id", true).Fetch(ctx, &out)
	return out, err
}

func (s *Store) DeleteProject(ctx context.Context, agencyID, id string) error {
	return remove(ctx, s.scoped(tableProjects, agencyID, id), "project", id)
}

// --- EventStore --------------------------------------------------------------

func (s *Store) CreateEvent(ctx context.Context, e calendar.Event) (calendar.Event, error) {
	e.ID = newID(e.ID)
	now := storage.Now()
	e.CreatedAt, e.UpdatedAt = now, now
	if e.MediaURLs == nil {
		e.MediaURLs = []string{}
	}
	return insert[calendar.Event](ctx, s, tableEvents, e)
}

func (s *Store) UpdateEvent(ctx context.Context, e calendar.Event) (calendar.Event, error) {
	e.UpdatedAt = storage.Now()
	if e.MediaURLs == nil {
		e.MediaURLs = []string{}
	}
	body, err := patch(e, map[string]any{"reminder_sent_at": nil})
	if err != nil {
		return calendar.Event{}, err
	}
	return update[calendar.Event](ctx, s.scoped(tableEvents, e.AgencyID, e.ID), "event", e.ID, body)
}

func (s *Store) GetEvent(ctx context.Context, agencyID, id string) (calendar.Event, error) {
	var e calendar.Event
	err := s.one(ctx, s.scoped(tableEvents, agencyID, id), &e, "event", id)
	return e, err
}

func (s *Store) ListEvents(ctx context.Context, agencyID string, filter calendar.Filter) ([]calendar.Event, error) {
	q := s.from(tableEvents).Eq("agency_id", agencyID)
	if filter.ClientID != "" {
		q = q.Eq("client_id", filter.ClientID)
	}
	if filter.ProjectID != "" {
		q = q.Eq("project_id", filter.ProjectID)
	}
	if filter.Status != "" {
		q = q.Eq("status", string(filter.Status))
	}
	if !filter.From.IsZero() {
		q = q.Gte("scheduled_at", filter.From)
	}
	if !filter.To.IsZero() {
		q = q.Lt("scheduled_at", filter.To)
	}
	var out []calendar.Event
	err := q.Order("scheduled_at", true).Order("id", true).Fetch(ctx, &out)
	return out, err
}

func (s *Store) DeleteEvent(ctx context.Context, agencyID, id string) error {
	return remove(ctx, s.scoped(tableEvents, agencyID, id), "event", id)
}

// --- TransactionStore --------------------------------------------------------

var transactionOptional = map[string]any{"due_date": nil, "paid_at": nil}

func (s *Store) CreateTransaction(ctx context.Context, tx finance.Transaction) (finance.Transaction, error) {
	tx.ID = newID(tx.ID)
	now := storage.Now()
	tx.CreatedAt, tx.UpdatedAt = now, now
	return insert[finance.Transaction](ctx, s, tableTransactions, tx)
}

func (s *Store) UpdateTransaction(ctx context.Context, tx finance.Transaction) (finance.Transaction, error) {
	tx.UpdatedAt = storage.Now()
	body, err := patch(tx, transactionOptional)
	if err != nil {
		return finance.Transaction{}, err
	}
	return update[finance.Transaction](ctx, s.scoped(tableTransactions, tx.AgencyID, tx.ID), "transaction", tx.ID, body)
}

func (s *Store) GetTransaction(ctx context.Context, agencyID, id string) (finance.Transaction, error) {
	var tx finance.Transaction
	err := s.one(ctx, s.scoped(tableTransactions, agencyID, id), &tx, "transaction", id)
	return tx, err
}

func (s *Store) ListTransactions(ctx context.Context, agencyID string, filter finance.Filter) ([]finance.Transaction, error) {
	q := s.from(tableTransactions).Eq("agency_id", agencyID)
	if filter.ClientID != "" {
		q = q.Eq("client_id", filter.ClientID)
	}
	if filter.ProjectID != "" {
		q = q.Eq("project_id", filter.ProjectID)
	}
	if filter.Kind != "" {
		q = q.Eq("kind", string(filter.Kind))
	}
	if filter.Status != "" {
		q = q.Eq("status", string(filter.Status))
	}
	var out []finance.Transaction
	err := q.Order("created_at", true).Order("id", true).Fetch(ctx, &out)
	return out, err
}

func (s *Store) DeleteTransaction(ctx context.Context, agencyID, id string) error {
	return remove(ctx, s.scoped(tableTransactions, agencyID, id), "transaction", id)
}

// --- PortfolioStore ----------------------------------------------------------

func (s *Store) CreatePortfolioItem(ctx context.Context, it portfolio.Item) (portfolio.Item, error) {
	it.ID = newID(it.ID)
	now := storage.Now()
	it.CreatedAt, it.UpdatedAt = now, now
	if it.Tags == nil {
		it.Tags = []string{}
	}
	return insert[portfolio.Item](ctx, s, tablePortfolio, it)
}

func (s *Store) UpdatePortfolioItem(ctx context.Context, it portfolio.Item) (portfolio.Item, error) {
	it.UpdatedAt = storage.Now()
	if it.Tags == nil {
		it.Tags = []string{}
	}
	body, err := patch(it, nil)
	if err != nil {
		return portfolio.Item{}, err
	}
	return update[portfolio.Item](ctx, s.scoped(tablePortfolio, it.AgencyID, it.ID), "portfolio item", it.ID, body)
}

func (s *Store) GetPortfolioItem(ctx context.Context, agencyID, id string) (portfolio.Item, error) {
	var it portfolio.Item
	err := s.one(ctx, s.scoped(tablePortfolio, agencyID, id), &it, "portfolio item", id)
	return it, err
}

func (s *Store) ListPortfolioItems(ctx context.Context, agencyID string, filter portfolio.Filter) ([]portfolio.Item, error) {
	q := s.from(tablePortfolio).Eq("agency_id", agencyID)
	if filter.ClientID != "" {
		q = q.Eq("client_id", filter.ClientID)
	}
	if filter.ProjectID != "" {
		q = q.Eq("project_id", filter.ProjectID)
	}
	if filter.PublishedOnly {
		q = q.Eq("published", true)
	}
	var out []portfolio.Item
	err := q.Order("created_at", true).Order("id", true).Fetch(ctx, &out)
	return out, err
}

func (s *Store) DeletePortfolioItem(ctx context.Context, agencyID, id string) error {
	return remove(ctx, s.scoped(tablePortfolio, agencyID, id), "portfolio item", id)
}
