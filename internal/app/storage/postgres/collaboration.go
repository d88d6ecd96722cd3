package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/R3E-Network/agency_layer/internal/app/domain/chat"
	"github.com/R3E-Network/agency_layer/internal/app/domain/notification"
	"github.com/R3E-Network/agency_layer/internal/app/domain/onboarding"
	"github.com/R3E-Network/agency_layer/internal/app/storage"
)

const (
	notificationColumns = `id, agency_id, recipient_id, kind, title, body, resource_type, resource_id, read, created_at`
	messageColumns      = `id, agency_id, client_id, sender_id, sender_name, sender_role, body, read_by_agency, read_by_client, created_at`
)

// --- NotificationStore -------------------------------------------------------

func (s *Store) CreateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error) {
	n.ID = newID(n.ID)
	if n.CreatedAt.IsZero() {
		n.CreatedAt = storage.Now()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES (:id, :agency_id, :recipient_id, :kind, :title, :body, :resource_type,
		        :resource_id, :read, :created_at)`, n)
	if err != nil {
		return notification.Notification{}, err
	}
	return n, nil
}

func (s *Store) ListNotifications(ctx context.Context, agencyID, recipientID string, unreadOnly bool, limit int) ([]notification.Notification, error) {
	w := &where{}
	w.add("agency_id = ?", agencyID)
	w.add("(recipient_id = ? OR recipient_id = '')", recipientID)
	if unreadOnly {
		w.add("read = ?", false)
	}
	query := `SELECT ` + notificationColumns + ` FROM notifications` + w.String() + ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	var out []notification.Notification
	err := s.db.SelectContext(ctx, &out, query, w.args...)
	return out, err
}

func (s *Store) CountUnreadNotifications(ctx context.Context, agencyID, recipientID string) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM notifications
		WHERE agency_id = $1 AND (recipient_id = $2 OR recipient_id = '') AND NOT read`, agencyID, recipientID)
	return n, err
}

func (s *Store) MarkNotificationRead(ctx context.Context, agencyID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET read = TRUE WHERE agency_id = $1 AND id = $2`, agencyID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("notification", id)
	}
	return nil
}

func (s *Store) MarkAllNotificationsRead(ctx context.Context, agencyID, recipientID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET read = TRUE
		WHERE agency_id = $1 AND (recipient_id = $2 OR recipient_id = '') AND NOT read`, agencyID, recipientID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// --- MessageStore ------------------------------------------------------------

func (s *Store) CreateMessage(ctx context.Context, m chat.Message) (chat.Message, error) {
	m.ID = newID(m.ID)
	if m.CreatedAt.IsZero() {
		m.CreatedAt = storage.Now()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO messages (`+messageColumns+`)
		VALUES (:id, :agency_id, :client_id, :sender_id, :sender_name, :sender_role, :body,
		        :read_by_agency, :read_by_client, :created_at)`, m)
	if err != nil {
		return chat.Message{}, err
	}
	return m, nil
}

func (s *Store) ListMessages(ctx context.Context, agencyID, clientID string, limit int) ([]chat.Message, error) {
	inner := `SELECT ` + messageColumns + ` FROM messages WHERE agency_id = $1 AND client_id = $2 ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		inner += fmt.Sprintf(" LIMIT %d", limit)
	}
	var out []chat.Message
	err := s.db.SelectContext(ctx, &out,
		`SELECT `+messageColumns+` FROM (`+inner+`) AS recent ORDER BY created_at, id`, agencyID, clientID)
	return out, err
}

func (s *Store) MarkThreadRead(ctx context.Context, agencyID, clientID string, side chat.Side) (int, error) {
	var column string
	switch side {
	case chat.SideAgency:
		column = "read_by_agency"
	case chat.SideClient:
		column = "read_by_client"
	default:
		return 0, fmt.Errorf("unknown side %q", side)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET `+column+` = TRUE WHERE agency_id = $1 AND client_id = $2 AND NOT `+column,
		agencyID, clientID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// --- OnboardingStore ---------------------------------------------------------

type progressRow struct {
	onboarding.Progress
	CompletedSteps pq.StringArray `db:"completed_steps"`
}

// GetProgress returns an empty progress record when none was saved.
func (s *Store) GetProgress(ctx context.Context, agencyID, userID string) (onboarding.Progress, error) {
	var row progressRow
	err := s.get(ctx, &row, "progress", userID, `
		SELECT agency_id, user_id, completed_steps, dismissed, updated_at
		FROM onboarding_progress WHERE agency_id = $1 AND user_id = $2`, agencyID, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return onboarding.Progress{AgencyID: agencyID, UserID: userID}, nil
	}
	if err != nil {
		return onboarding.Progress{}, err
	}
	p := row.Progress
	p.CompletedSteps = fromArray(row.CompletedSteps)
	return p, nil
}

func (s *Store) SaveProgress(ctx context.Context, p onboarding.Progress) (onboarding.Progress, error) {
	p.UpdatedAt = storage.Now()
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO onboarding_progress (agency_id, user_id, completed_steps, dismissed, updated_at)
		VALUES (:agency_id, :user_id, :completed_steps, :dismissed, :updated_at)
		ON CONFLICT (agency_id, user_id) DO UPDATE
		SET completed_steps = EXCLUDED.completed_steps, dismissed = EXCLUDED.dismissed,
		    updated_at = EXCLUDED.updated_at`,
		progressRow{Progress: p, CompletedSteps: array(p.CompletedSteps)})
	if err != nil {
		return onboarding.Progress{}, err
	}
	return p, nil
}
