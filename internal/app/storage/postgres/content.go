package postgres

import (
	"context"

	"github.com/lib/pq"

	"github.com/R3E-Network/agency_layer/internal/app/domain/calendar"
	"github.com/R3E-Network/agency_layer/internal/app/domain/portfolio"
	"github.com/R3E-Network/agency_layer/internal/app/storage"
)

const (
	eventColumns = `id, agency_id, title, caption, platform, status, scheduled_at, client_id,
		client_name, project_id, project_name, media_urls, reminder_sent_at, created_at, updated_at`
	itemColumns = `id, agency_id, title, description, category, image_path, image_url, client_id,
		client_name, project_id, project_name, tags, featured, published, created_at, updated_at`
)

type eventRow struct {
	calendar.Event
	MediaURLs pq.StringArray `db:"media_urls"`
}

func (r eventRow) model() calendar.Event {
	e := r.Event
	e.MediaURLs = fromArray(r.MediaURLs)
	return e
}

type itemRow struct {
	portfolio.Item
	Tags pq.StringArray `db:"tags"`
}

func (r itemRow) model() portfolio.Item {
	it := r.Item
	it.Tags = fromArray(r.Tags)
	return it
}

// --- EventStore --------------------------------------------------------------

func (s *Store) CreateEvent(ctx context.Context, e calendar.Event) (calendar.Event, error) {
	e.ID = newID(e.ID)
	now := storage.Now()
	e.CreatedAt, e.UpdatedAt = now, now
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO calendar_events (`+eventColumns+`)
		VALUES (:id, :agency_id, :title, :caption, :platform, :status, :scheduled_at, :client_id,
		        :client_name, :project_id, :project_name, :media_urls, :reminder_sent_at,
		        :created_at, :updated_at)`, eventRow{Event: e, MediaURLs: array(e.MediaURLs)})
	if err != nil {
		return calendar.Event{}, err
	}
	return e, nil
}

func (s *Store) UpdateEvent(ctx context.Context, e calendar.Event) (calendar.Event, error) {
	existing, err := s.GetEvent(ctx, e.AgencyID, e.ID)
	if err != nil {
		return calendar.Event{}, err
	}
	e.CreatedAt = existing.CreatedAt
	e.UpdatedAt = storage.Now()
	err = s.exec(ctx, "event", e.ID, `
		UPDATE calendar_events
		SET title = :title, caption = :caption, platform = :platform, status = :status,
		    scheduled_at = :scheduled_at, client_id = :client_id, client_name = :client_name,
		    project_id = :project_id, project_name = :project_name, media_urls = :media_urls,
		    reminder_sent_at = :reminder_sent_at, updated_at = :updated_at
		WHERE agency_id = :agency_id AND id = :id`, eventRow{Event: e, MediaURLs: array(e.MediaURLs)})
	if err != nil {
		return calendar.Event{}, err
	}
	return e, nil
}

func (s *Store) GetEvent(ctx context.Context, agencyID, id string) (calendar.Event, error) {
	var row eventRow
	if err := s.get(ctx, &row, "event", id,
		`SELECT `+eventColumns+` FROM calendar_events WHERE agency_id = $1 AND id = $2`, agencyID, id); err != nil {
		return calendar.Event{}, err
	}
	return row.model(), nil
}

func (s *Store) ListEvents(ctx context.Context, agencyID string, filter calendar.Filter) ([]calendar.Event, error) {
	w := &where{}
	w.add("agency_id = ?", agencyID)
	if filter.ClientID != "" {
		w.add("client_id = ?", filter.ClientID)
	}
	if filter.ProjectID != "" {
		w.add("project_id = ?", filter.ProjectID)
	}
	if filter.Status != "" {
		w.add("status = ?", string(filter.Status))
	}
	if !filter.From.IsZero() {
		w.add("scheduled_at >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		w.add("scheduled_at < ?", filter.To)
	}
	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT `+eventColumns+` FROM calendar_events`+w.String()+` ORDER BY scheduled_at, id`, w.args...); err != nil {
		return nil, err
	}
	out := make([]calendar.Event, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

func (s *Store) DeleteEvent(ctx context.Context, agencyID, id string) error {
	return s.delete(ctx, "calendar_events", "event", agencyID, id)
}

// --- PortfolioStore ----------------------------------------------------------

func (s *Store) CreatePortfolioItem(ctx context.Context, it portfolio.Item) (portfolio.Item, error) {
	it.ID = newID(it.ID)
	now := storage.Now()
	it.CreatedAt, it.UpdatedAt = now, now
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO portfolio_items (`+itemColumns+`)
		VALUES (:id, :agency_id, :title, :description, :category, :image_path, :image_url,
		        :client_id, :client_name, :project_id, :project_name, :tags, :featured,
		        :published, :created_at, :updated_at)`, itemRow{Item: it, Tags: array(it.Tags)})
	if err != nil {
		return portfolio.Item{}, err
	}
	return it, nil
}

func (s *Store) UpdatePortfolioItem(ctx context.Context, it portfolio.Item) (portfolio.Item, error) {
	existing, err := s.GetPortfolioItem(ctx, it.AgencyID, it.ID)
	if err != nil {
		return portfolio.Item{}, err
	}
	it.CreatedAt = existing.CreatedAt
	it.UpdatedAt = storage.Now()
	err = s.exec(ctx, "portfolio item", it.ID, `
		UPDATE portfolio_items
		SET title = :title, description = :description, category = :category,
		    image_path = :image_path, image_url = :image_url, client_id = :client_id,
		    client_name = :client_name, project_id = :project_id, project_name = :project_name,
		    tags = :tags, featured = :featured, published = :published, updated_at = :updated_at
		WHERE agency_id = :agency_id AND id = :id`, itemRow{Item: it, Tags: array(it.Tags)})
	if err != nil {
		return portfolio.Item{}, err
	}
	return it, nil
}

func (s *Store) GetPortfolioItem(ctx context.Context, agencyID, id string) (portfolio.Item, error) {
	var row itemRow
	if err := s.get(ctx, &row, "portfolio item", id,
		`SELECT `+itemColumns+` FROM portfolio_items WHERE agency_id = $1 AND id = $2`, agencyID, id); err != nil {
		return portfolio.Item{}, err
	}
	return row.model(), nil
}

func (s *Store) ListPortfolioItems(ctx context.Context, agencyID string, filter portfolio.Filter) ([]portfolio.Item, error) {
	w := &where{}
	w.add("agency_id = ?", agencyID)
	if filter.ClientID != "" {
		w.add("client_id = ?", filter.ClientID)
	}
	if filter.ProjectID != "" {
		w.add("project_id = ?", filter.ProjectID)
	}
	if filter.PublishedOnly {
		w.add("published = ?", true)
	}
	var rows []itemRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT `+itemColumns+` FROM portfolio_items`+w.String()+` ORDER BY created_at, id`, w.args...); err != nil {
		return nil, err
	}
	out := make([]portfolio.Item, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

func (s *Store) DeletePortfolioItem(ctx context.Context, agencyID, id string) error {
	return s.delete(ctx, "portfolio_items", "portfolio item", agencyID, id)
}
