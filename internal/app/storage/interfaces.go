package storage

import (
	"context"
	"errors"
	"time"

	"github.com/R3E-Network/agency_layer/internal/app/domain/calendar"
	"github.com/R3E-Network/agency_layer/internal/app/domain/chat"
	"github.com/R3E-Network/agency_layer/internal/app/domain/client"
	"github.com/R3E-Network/agency_layer/internal/app/domain/finance"
	"github.com/R3E-Network/agency_layer/internal/app/domain/notification"
	"github.com/R3E-Network/agency_layer/internal/app/domain/onboarding"
	"github.com/R3E-Network/agency_layer/internal/app/domain/portfolio"
	"github.com/R3E-Network/agency_layer/internal/app/domain/project"
	"github.com/R3E-Network/agency_layer/internal/app/domain/tenant"
)

// ErrNotFound is wrapped by every store when a record does not exist in the
// requested agency.
var ErrNotFound = errors.New("not found")

// AgencyStore persists tenants.
type AgencyStore interface {
	CreateAgency(ctx context.Context, a tenant.Agency) (tenant.Agency, error)
	UpdateAgency(ctx context.Context, a tenant.Agency) (tenant.Agency, error)
	GetAgency(ctx context.Context, id string) (tenant.Agency, error)
	ListAgencies(ctx context.Context) ([]tenant.Agency, error)
}

// MemberStore persists agency memberships.
type MemberStore interface {
	CreateMember(ctx context.Context, m tenant.Member) (tenant.Member, error)
	UpdateMember(ctx context.Context, m tenant.Member) (tenant.Member, error)
	GetMember(ctx context.Context, agencyID, id string) (tenant.Member, error)
	GetMemberByUser(ctx context.Context, agencyID, userID string) (tenant.Member, error)
	ListMembers(ctx context.Context, agencyID string) ([]tenant.Member, error)
	ListMembershipsByUser(ctx context.Context, userID string) ([]tenant.Member, error)
	DeleteMember(ctx context.Context, agencyID, id string) error
}

// InviteStore persists pending invitations.
type InviteStore interface {
	CreateInvite(ctx context.Context, inv tenant.Invite) (tenant.Invite, error)
	UpdateInvite(ctx context.Context, inv tenant.Invite) (tenant.Invite, error)
	GetInvite(ctx context.Context, agencyID, id string) (tenant.Invite, error)
	ListInvites(ctx context.Context, agencyID string) ([]tenant.Invite, error)
}

// ClientStore persists CRM clients.
type ClientStore interface {
	CreateClient(ctx context.Context, c client.Client) (client.Client, error)
	UpdateClient(ctx context.Context, c client.Client) (client.Client, error)
	GetClient(ctx context.Context, agencyID, id string) (client.Client, error)
	ListClients(ctx context.Context, agencyID string) ([]client.Client, error)
	// SearchClients returns clients whose name, company or email contains
	// term, ignoring case.
	SearchClients(ctx context.Context, agencyID, term string) ([]client.Client, error)
	DeleteClient(ctx context.Context, agencyID, id string) error
}

// ProjectStore persists projects.
type ProjectStore interface {
	CreateProject(ctx context.Context, p project.Project) (project.Project, error)
	UpdateProject(ctx context.Context, p project.Project) (project.Project, error)
	GetProject(ctx context.Context, agencyID, id string) (project.Project, error)
	ListProjects(ctx context.Context, agencyID string) ([]project.Project, error)
	ListProjectsByClient(ctx context.Context, agencyID, clientID string) ([]project.Project, error)
	DeleteProject(ctx context.Context, agencyID, id string) error
}

// EventStore persists calendar posts.
type EventStore interface {
	CreateEvent(ctx context.Context, e calendar.Event) (calendar.Event, error)
	UpdateEvent(ctx context.Context, e calendar.Event) (calendar.Event, error)
	GetEvent(ctx context.Context, agencyID, id string) (calendar.Event, error)
	ListEvents(ctx context.Context, agencyID string, filter calendar.Filter) ([]calendar.Event, error)
	DeleteEvent(ctx context.Context, agencyID, id string) error
}

// TransactionStore persists financial records.
type TransactionStore interface {
	CreateTransaction(ctx context.Context, tx finance.Transaction) (finance.Transaction, error)
	UpdateTransaction(ctx context.Context, tx finance.Transaction) (finance.Transaction, error)
	GetTransaction(ctx context.Context, agencyID, id string) (finance.Transaction, error)
	ListTransactions(ctx context.Context, agencyID string, filter finance.Filter) ([]finance.Transaction, error)
	DeleteTransaction(ctx context.Context, agencyID, id string) error
}

// PortfolioStore persists portfolio items.
type PortfolioStore interface {
	CreatePortfolioItem(ctx context.Context, it portfolio.Item) (portfolio.Item, error)
	UpdatePortfolioItem(ctx context.Context, it portfolio.Item) (portfolio.Item, error)
	GetPortfolioItem(ctx context.Context, agencyID, id string) (portfolio.Item, error)
	ListPortfolioItems(ctx context.Context, agencyID string, filter portfolio.Filter) ([]portfolio.Item, error)
	DeletePortfolioItem(ctx context.Context, agencyID, id string) error
}

// NotificationStore persists notifications.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error)
	// ListNotifications returns notifications addressed to recipientID plus
	// broadcasts, newest first.
	ListNotifications(ctx context.Context, agencyID, recipientID string, unreadOnly bool, limit int) ([]notification.Notification, error)
	MarkNotificationRead(ctx context.Context, agencyID, id string) error
	CountUnreadNotifications(ctx context.Context, agencyID, recipientID string) (int, error)
	MarkAllNotificationsRead(ctx context.Context, agencyID, recipientID string) (int, error)
}

// MessageStore persists chat threads.
type MessageStore interface {
	CreateMessage(ctx context.Context, m chat.Message) (chat.Message, error)
	// ListMessages returns the newest limit messages of a thread in
	// chronological order.
	ListMessages(ctx context.Context, agencyID, clientID string, limit int) ([]chat.Message, error)
	MarkThreadRead(ctx context.Context, agencyID, clientID string, side chat.Side) (int, error)
}

// OnboardingStore persists tutorial progress.
type OnboardingStore interface {
	GetProgress(ctx context.Context, agencyID, userID string) (onboarding.Progress, error)
	SaveProgress(ctx context.Context, p onboarding.Progress) (onboarding.Progress, error)
}

// Store is the union implemented by every backend.
type Store interface {
	AgencyStore
	MemberStore
	InviteStore
	ClientStore
	ProjectStore
	EventStore
	TransactionStore
	PortfolioStore
	NotificationStore
	MessageStore
	OnboardingStore
}

// Now is the clock used by stores for timestamps.
var Now = func() time.Time { return time.Now().UTC() }
