package notifications

import (
	"context"
	"strings"

	"github.com/R3E-Network/agency_layer/internal/app/domain/notification"
	"github.com/R3E-Network/agency_layer/internal/app/storage"
	apperrors "github.com/R3E-Network/agency_layer/internal/errors"
	"github.com/R3E-Network/agency_layer/pkg/logger"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// Service delivers in-app notifications to agency staff.
type Service struct {
	store storage.NotificationStore
	log   *logger.Logger
}

// New constructs a notification service.
func New(store storage.NotificationStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("notifications")
	}
	return &Service{store: store, log: log}
}

// Notify stores a notification. An empty RecipientID broadcasts to all staff.
func (s *Service) Notify(ctx context.Context, n notification.Notification) (notification.Notification, error) {
	n.AgencyID = strings.TrimSpace(n.AgencyID)
	n.Title = strings.TrimSpace(n.Title)
	n.Body = strings.TrimSpace(n.Body)
	if n.AgencyID == "" {
		return notification.Notification{}, apperrors.InvalidInput("agency_id is required")
	}
	if n.Title == "" {
		return notification.Notification{}, apperrors.InvalidInput("title is required")
	}
	if n.Kind == "" {
		n.Kind = notification.KindSystem
	}
	n.Read = false

	created, err := s.store.CreateNotification(ctx, n)
	if err != nil {
		return notification.Notification{}, err
	}
	s.log.WithField("agency_id", created.AgencyID).
		WithField("notification_id", created.ID).
		WithField("kind", created.Kind).
		Debug("notification created")
	return created, nil
}

// Broadcast notifies every staff member of the agency.
func (s *Service) Broadcast(ctx context.Context, agencyID string, kind notification.Kind, title, body, resourceType, resourceID string) (notification.Notification, error) {
	return s.Notify(ctx, notification.Notification{
		AgencyID:     agencyID,
		Kind:         kind,
		Title:        title,
		Body:         body,
		ResourceType: resourceType,
		ResourceID:   resourceID,
	})
}

// List returns the recipient's notifications and broadcasts, newest first.
func (s *Service) List(ctx context.Context, agencyID, recipientID string, unreadOnly bool, limit int) ([]notification.Notification, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return s.store.ListNotifications(ctx, agencyID, recipientID, unreadOnly, limit)
}

// MarkRead flags one notification as read.
func (s *Service) MarkRead(ctx context.Context, agencyID, id string) error {
	return s.store.MarkNotificationRead(ctx, agencyID, id)
}

// MarkAllRead flags every unread notification visible to recipientID and
// reports how many changed.
func (s *Service) MarkAllRead(ctx context.Context, agencyID, recipientID string) (int, error) {
	n, err := s.store.MarkAllNotificationsRead(ctx, agencyID, recipientID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.WithField("agency_id", agencyID).WithField("count", n).Debug("notifications marked read")
	}
	return n, nil
}

// UnreadCount counts unread notifications visible to recipientID.
func (s *Service) UnreadCount(ctx context.Context, agencyID, recipientID string) (int, error) {
	return s.store.CountUnreadNotifications(ctx, agencyID, recipientID)
}
