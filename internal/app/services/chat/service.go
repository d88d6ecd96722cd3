package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/R3E-Network/agency_layer/internal/app/actor"
	"github.com/R3E-Network/agency_layer/internal/app/domain/chat"
	"github.com/R3E-Network/agency_layer/internal/app/domain/notification"
	"github.com/R3E-Network/agency_layer/internal/app/domain/tenant"
	"github.com/R3E-Network/agency_layer/internal/app/storage"
	apperrors "github.com/R3E-Network/agency_layer/internal/errors"
	"github.com/R3E-Network/agency_layer/pkg/logger"
)

const (
	MaxBodyLength = 4000
	defaultLimit  = 100
	maxLimit      = 500
)

// Notifier delivers in-app notifications.
type Notifier interface {
	Notify(ctx context.Context, n notification.Notification) (notification.Notification, error)
}

// Service runs the per-client message threads between staff and the
// client's portal users.
type Service struct {
	messages storage.MessageStore
	clients  storage.ClientStore
	members  storage.MemberStore
	notifier Notifier
	log      *logger.Logger
}

// New constructs a chat service.
func New(messages storage.MessageStore, clients storage.ClientStore, members storage.MemberStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("chat")
	}
	return &Service{messages: messages, clients: clients, members: members, log: log}
}

// AttachDependencies wires optional collaborators.
func (s *Service) AttachDependencies(notifier Notifier) {
	s.notifier = notifier
}

// SideOf maps a role to its side of a thread.
func SideOf(role tenant.Role) chat.Side {
	if role == tenant.RoleClient {
		return chat.SideClient
	}
	return chat.SideAgency
}

// Post appends a message from the caller to the client's thread. Portal
// users may only write into their own client's thread.
func (s *Service) Post(ctx context.Context, agencyID, clientID, body string) (chat.Message, error) {
	sender, ok := actor.From(ctx)
	if !ok {
		return chat.Message{}, apperrors.Unauthorized("")
	}
	if err := s.checkAccess(sender, clientID); err != nil {
		return chat.Message{}, err
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return chat.Message{}, apperrors.InvalidInput("message body is required")
	}
	if utf8.RuneCountInString(body) > MaxBodyLength {
		return chat.Message{}, apperrors.InvalidInput("message body exceeds %d characters", MaxBodyLength)
	}
	c, err := s.clients.GetClient(ctx, agencyID, clientID)
	if errors.Is(err, storage.ErrNotFound) {
		return chat.Message{}, apperrors.NotFound("client", clientID)
	}
	if err != nil {
		return chat.Message{}, err
	}

	side := SideOf(sender.Role)
	msg, err := s.messages.CreateMessage(ctx, chat.Message{
		AgencyID:     agencyID,
		ClientID:     clientID,
		SenderID:     sender.UserID,
		SenderName:   sender.DisplayName(),
		SenderRole:   string(sender.Role),
		Body:         body,
		ReadByAgency: side == chat.SideAgency,
		ReadByClient: side == chat.SideClient,
	})
	if err != nil {
		return chat.Message{}, err
	}

	s.notifyOtherSide(ctx, c.Name, msg, side)
	s.log.WithField("agency_id", agencyID).
		WithField("client_id", clientID).
		WithField("side", side).
		Debug("message posted")
	return msg, nil
}

// Thread returns the newest messages of a thread in chronological order.
func (s *Service) Thread(ctx context.Context, agencyID, clientID string, limit int) ([]chat.Message, error) {
	if a, ok := actor.From(ctx); ok {
		if err := s.checkAccess(a, clientID); err != nil {
			return nil, err
		}
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return s.messages.ListMessages(ctx, agencyID, clientID, limit)
}

// MarkRead flags the thread as read for one side and reports how many
// messages changed.
func (s *Service) MarkRead(ctx context.Context, agencyID, clientID string, side chat.Side) (int, error) {
	if side != chat.SideAgency && side != chat.SideClient {
		return 0, apperrors.InvalidInput("invalid side %q", side)
	}
	if a, ok := actor.From(ctx); ok {
		if err := s.checkAccess(a, clientID); err != nil {
			return 0, err
		}
		if SideOf(a.Role) != side {
			return 0, apperrors.Forbidden("cannot mark the other side as read")
		}
	}
	return s.messages.MarkThreadRead(ctx, agencyID, clientID, side)
}

func (s *Service) checkAccess(a actor.Actor, clientID string) error {
	if strings.TrimSpace(clientID) == "" {
		return apperrors.InvalidInput("client_id is required")
	}
	if a.Role == tenant.RoleClient && a.ClientID != clientID {
		// Other clients' threads do not exist from a portal user's view.
		return apperrors.NotFound("thread", clientID)
	}
	return nil
}

func (s *Service) notifyOtherSide(ctx context.Context, clientName string, msg chat.Message, from chat.Side) {
	if s.notifier == nil {
		return
	}
	n := notification.Notification{
		AgencyID:     msg.AgencyID,
		Kind:         notification.KindMessage,
		ResourceType: "thread",
		ResourceID:   msg.ClientID,
		Body:         preview(msg.Body),
	}
	if from == chat.SideClient {
		n.Title = fmt.Sprintf("New message from %s", clientName)
		if _, err := s.notifier.Notify(ctx, n); err != nil {
			s.log.WithError(err).Warn("notify staff of message")
		}
		return
	}

	members, err := s.members.ListMembers(ctx, msg.AgencyID)
	if err != nil {
		s.log.WithError(err).Warn("list portal members")
		return
	}
	n.Title = fmt.Sprintf("New message from %s", msg.SenderName)
	for _, m := range members {
		if m.Role != tenant.RoleClient || m.ClientID != msg.ClientID || !m.Active {
			continue
		}
		n.RecipientID = m.UserID
		if _, err := s.notifier.Notify(ctx, n); err != nil {
			s.log.WithError(err).WithField("member_id", m.ID).Warn("notify portal member of message")
		}
	}
}

func preview(body string) string {
	const max = 140
	if utf8.RuneCountInString(body) <= max {
		return body
	}
	return string([]rune(body)[:max-1]) + "…"
}
