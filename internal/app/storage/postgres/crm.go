package postgres

import (
	"context"

	"github.com/lib/pq"

	"github.com/R3E-Network/agency_layer/internal/app/domain/client"
	"github.com/R3E-Network/agency_layer/internal/app/domain/finance"
	"github.com/R3E-Network/agency_layer/internal/app/domain/project"
	"github.com/R3E-Network/agency_layer/internal/app/storage"
)

const (
	clientColumns = `id, agency_id, name, company, email, phone, notes, stage, tags,
		project_count, active_projects, total_budget_cents, revenue_cents, outstanding_cents,
		scheduled_posts, created_at, updated_at`
	projectColumns = `id, agency_id, client_id, client_name, name, description, status,
		budget_cents, paid_cents, progress, start_date, due_date, event_count, created_at, updated_at`
	transactionColumns = `id, agency_id, kind, description, category, amount_cents, status,
		due_date, paid_at, client_id, client_name, project_id, project_name, created_at, updated_at`
)

type clientRow struct {
	client.Client
	Tags pq.StringArray `db:"tags"`
}

func (r clientRow) model() client.Client {
	c := r.Client
	c.Tags = fromArray(r.Tags)
	return c
}

// --- ClientStore -------------------------------------------------------------

func (s *Store) CreateClient(ctx context.Context, c client.Client) (client.Client, error) {
	c.ID = newID(c.ID)
	now := storage.Now()
	c.CreatedAt, c.UpdatedAt = now, now
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO clients (`+clientColumns+`)
		VALUES (:id, :agency_id, :name, :company, :email, :phone, :notes, :stage, :tags,
		        :project_count, :active_projects, :total_budget_cents, :revenue_cents,
		        :outstanding_cents, :scheduled_posts, :created_at, :updated_at)`,
		clientRow{Client: c, Tags: array(c.Tags)})
	if err != nil {
		return client.Client{}, err
	}
	return c, nil
}

func (s *Store) UpdateClient(ctx context.Context, c client.Client) (client.Client, error) {
	existing, err := s.GetClient(ctx, c.AgencyID, c.ID)
	if err != nil {
		return client.Client{}, err
	}
	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = storage.Now()
	err = s.exec(ctx, "client", c.ID, `
		UPDATE clients
		SET name = :name, company = :company, email = :email, phone = :phone, notes = :notes,
		    stage = :stage, tags = :tags, project_count = :project_count,
		    active_projects = :active_projects, total_budget_cents = :total_budget_cents,
		    revenue_cents = :revenue_cents, outstanding_cents = :outstanding_cents,
		    scheduled_posts = :scheduled_posts, updated_at = :updated_at
		WHERE agency_id = :agency_id AND id = :id`, clientRow{Client: c, Tags: array(c.Tags)})
	if err != nil {
		return client.Client{}, err
	}
	return c, nil
}

func (s *Store) GetClient(ctx context.Context, agencyID, id string) (client.Client, error) {
	var row clientRow
	if err := s.get(ctx, &row, "client", id,
		`SELECT `+clientColumns+` FROM clients WHERE agency_id = $1 AND id = $2`, agencyID, id); err != nil {
		return client.Client{}, err
	}
	return row.model(), nil
}

func (s *Store) ListClients(ctx context.Context, agencyID string) ([]client.Client, error) {
	var rows []clientRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT `+clientColumns+` FROM clients WHERE agency_id = $1 ORDER BY created_at, id`, agencyID); err != nil {
		return nil, err
	}
	out := make([]client.Client, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

func (s *Store) SearchClients(ctx context.Context, agencyID, term string) ([]client.Client, error) {
	var rows []clientRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT `+clientColumns+` FROM clients
		WHERE agency_id = $1 AND (name ILIKE $2 OR company ILIKE $2 OR email ILIKE $2)
		ORDER BY created_at, id`, agencyID, storage.ContainsPattern(term)); err != nil {
		return nil, err
	}
	out := make([]client.Client, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

func (s *Store) DeleteClient(ctx context.Context, agencyID, id string) error {
	return s.delete(ctx, "clients", "client", agencyID, id)
}

// --- ProjectStore ------------------------------------------------------------

func (s *Store) CreateProject(ctx context.Context, p project.Project) (project.Project, error) {
	p.ID = newID(p.ID)
	now := storage.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO projects (`+projectColumns+`)
		VALUES (:id, :agency_id, :client_id, :client_name, :name, :description, :status,
		        :budget_cents, :paid_cents, :progress, :start_date, :due_date, :event_count,
		        :created_at, :updated_at)`, p)
	if err != nil {
		return project.Project{}, err
	}
	return p, nil
}

func (s *Store) UpdateProject(ctx context.Context, p project.Project) (project.Project, error) {
	existing, err := s.GetProject(ctx, p.AgencyID, p.ID)
	if err != nil {
		return project.Project{}, err
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = storage.Now()
	err = s.exec(ctx, "project", p.ID, `
		UPDATE projects
		SET client_id = :client_id, client_name = :client_name, name = :name,
		    description = :description, status = :status, budget_cents = :budget_cents,
		    paid_cents = :paid_cents, progress = :progress, start_date = :start_date,
		    due_date = :due_date, event_count = :event_count, updated_at = :updated_at
		WHERE agency_id = :agency_id AND id = :id`, p)
	if err != nil {
		return project.Project{}, err
	}
	return p, nil
}

func (s *Store) GetProject(ctx context.Context, agencyID, id string) (project.Project, error) {
	var p project.Project
	err := s.get(ctx, &p, "project", id,
		`SELECT `+projectColumns+` FROM projects WHERE agency_id = $1 AND id = $2`, agencyID, id)
	return p, err
}

func (s *Store) ListProjects(ctx context.Context, agencyID string) ([]project.Project, error) {
	var out []project.Project
	err := s.db.SelectContext(ctx, &out,
		`SELECT `+projectColumns+` FROM projects WHERE agency_id = $1 ORDER BY created_at, id`, agencyID)
	return out, err
}

func (s *Store) ListProjectsByClient(ctx context.Context, agencyID, clientID string) ([]project.Project, error) {
	var out []project.Project
	err := s.db.SelectContext(ctx, &out,
		`SELECT `+projectColumns+` FROM projects WHERE agency_id = $1 AND client_id = $2 ORDER BY created_at, id`,
		agencyID, clientID)
	return out, err
}

func (s *Store) DeleteProject(ctx context.Context, agencyID, id string) error {
	return s.delete(ctx, "projects", "project", agencyID, id)
}

// --- TransactionStore --------------------------------------------------------

func (s *Store) CreateTransaction(ctx context.Context, tx finance.Transaction) (finance.Transaction, error) {
	tx.ID = newID(tx.ID)
	now := storage.Now()
	tx.CreatedAt, tx.UpdatedAt = now, now
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES (:id, :agency_id, :kind, :description, :category, :amount_cents, :status,
		        :due_date, :paid_at, :client_id, :client_name, :project_id, :project_name,
		        :created_at, :updated_at)`, tx)
	if err != nil {
		return finance.Transaction{}, err
	}
	return tx, nil
}

func (s *Store) UpdateTransaction(ctx context.Context, tx finance.Transaction) (finance.Transaction, error) {
	existing, err := s.GetTransaction(ctx, tx.AgencyID, tx.ID)
	if err != nil {
		return finance.Transaction{}, err
	}
	tx.CreatedAt = existing.CreatedAt
	tx.UpdatedAt = storage.Now()
	err = s.exec(ctx, "transaction", tx.ID, `
		UPDATE transactions
		SET kind = :kind, description = :description, category = :category,
		    amount_cents = :amount_cents, status = :status, due_date = :due_date,
		    paid_at = :paid_at, client_id = :client_id, client_name = :client_name,
		    project_id = :project_id, project_name = :project_name, updated_at = :updated_at
		WHERE agency_id = :agency_id AND id = :id`, tx)
	if err != nil {
		return finance.Transaction{}, err
	}
	return tx, nil
}

func (s *Store) GetTransaction(ctx context.Context, agencyID, id string) (finance.Transaction, error) {
	var tx finance.Transaction
	err := s.get(ctx, &tx, "transaction", id,
		`SELECT `+transactionColumns+` FROM transactions WHERE agency_id = $1 AND id = $2`, agencyID, id)
	return tx, err
}

func (s *Store) ListTransactions(ctx context.Context, agencyID string, filter finance.Filter) ([]finance.Transaction, error) {
	w := &where{}
	w.add("agency_id = ?", agencyID)
	if filter.ClientID != "" {
		w.add("client_id = ?", filter.ClientID)
	}
	if filter.ProjectID != "" {
		w.add("project_id = ?", filter.ProjectID)
	}
	if filter.Kind != "" {
		w.add("kind = ?", string(filter.Kind))
	}
	if filter.Status != "" {
		w.add("status = ?", string(filter.Status))
	}
	var out []finance.Transaction
	err := s.db.SelectContext(ctx, &out,
		`SELECT `+transactionColumns+` FROM transactions`+w.String()+` ORDER BY created_at, id`, w.args...)
	return out, err
}

func (s *Store) DeleteTransaction(ctx context.Context, agencyID, id string) error {
	return s.delete(ctx, "transactions", "transaction", agencyID, id)
}
