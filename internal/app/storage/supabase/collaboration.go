package supabase

import (
	"context"
	"fmt"

	"github.com/R3E-Network/agency_layer/internal/app/domain/chat"
	"github.com/R3E-Network/agency_layer/internal/app/domain/notification"
	"github.com/R3E-Network/agency_layer/internal/app/domain/onboarding"
	"github.com/R3E-Network/agency_layer/internal/app/storage"
)

const (
	tableNotifications = "notifications"
	tableMessages      = "messages"
	tableProgress      = "onboarding_progress"
)

// addressedTo matches rows for recipientID plus broadcasts.
func addressedTo(recipientID string) []string {
	return []string{"recipient_id.eq." + quoted(recipientID), `recipient_id.eq.""`}
}

func (s *Store) CreateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error) {
	n.ID = newID(n.ID)
	if n.CreatedAt.IsZero() {
		n.CreatedAt = storage.Now()
	}
	return insert[notification.Notification](ctx, s, tableNotifications, n)
}

func (s *Store) ListNotifications(ctx context.Context, agencyID, recipientID string, unreadOnly bool, limit int) ([]notification.Notification, error) {
	q := s.from(tableNotifications).Eq("agency_id", agencyID).Or(addressedTo(recipientID)...)
	if unreadOnly {
		q = q.Eq("read", false)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []notification.Notification
	err := q.Order("created_at", false).Order("id", false).Fetch(ctx, &out)
	return out, err
}

func (s *Store) CountUnreadNotifications(ctx context.Context, agencyID, recipientID string) (int, error) {
	resp, err := s.from(tableNotifications).Select("id").
		Eq("agency_id", agencyID).Or(addressedTo(recipientID)...).Eq("read", false).
		Count("exact").Limit(1).Execute(ctx)
	if err != nil {
		return 0, err
	}
	if err := resp.Error(); err != nil {
		return 0, err
	}
	n := resp.Total()
	if n < 0 {
		return 0, fmt.Errorf("count notifications: missing Content-Range")
	}
	return n, nil
}

func (s *Store) MarkNotificationRead(ctx context.Context, agencyID, id string) error {
	_, err := update[notification.Notification](ctx, s.scoped(tableNotifications, agencyID, id),
		"notification", id, map[string]any{"read": true})
	return err
}

func (s *Store) MarkAllNotificationsRead(ctx context.Context, agencyID, recipientID string) (int, error) {
	q := s.from(tableNotifications).Eq("agency_id", agencyID).Eq("read", false).Or(addressedTo(recipientID)...)
	out, err := rows[notification.Notification](q.ExecuteUpdate(ctx, map[string]any{"read": true}))
	return len(out), err
}

func (s *Store) CreateMessage(ctx context.Context, m chat.Message) (chat.Message, error) {
	m.ID = newID(m.ID)
	if m.CreatedAt.IsZero() {
		m.CreatedAt = storage.Now()
	}
	return insert[chat.Message](ctx, s, tableMessages, m)
}

// ListMessages fetches newest first and reverses into chronological order.
func (s *Store) ListMessages(ctx context.Context, agencyID, clientID string, limit int) ([]chat.Message, error) {
	q := s.from(tableMessages).Eq("agency_id", agencyID).Eq("client_id", clientID).
		Order("created_at", false).Order("id", false)
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []chat.Message
	if err := q.Fetch(ctx, &out); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
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
	q := s.from(tableMessages).Eq("agency_id", agencyID).Eq("client_id", clientID).Eq(column, false)
	out, err := rows[chat.Message](q.ExecuteUpdate(ctx, map[string]any{column: true}))
	return len(out), err
}

// GetProgress returns an empty progress record when none was saved.
func (s *Store) GetProgress(ctx context.Context, agencyID, userID string) (onboarding.Progress, error) {
	var out []onboarding.Progress
	err := s.from(tableProgress).Eq("agency_id", agencyID).Eq("user_id", userID).Limit(1).Fetch(ctx, &out)
	if err != nil {
		return onboarding.Progress{}, err
	}
	if len(out) == 0 {
		return onboarding.Progress{AgencyID: agencyID, UserID: userID}, nil
	}
	return out[0], nil
}

func (s *Store) SaveProgress(ctx context.Context, p onboarding.Progress) (onboarding.Progress, error) {
	p.UpdatedAt = storage.Now()
	if p.CompletedSteps == nil {
		p.CompletedSteps = []string{}
	}
	out, err := rows[onboarding.Progress](s.client.From(tableProgress).Upsert("agency_id,user_id").ExecuteInsert(ctx, p))
	if err != nil {
		return onboarding.Progress{}, err
	}
	if len(out) == 0 {
		return p, nil
	}
	return out[0], nil
}
