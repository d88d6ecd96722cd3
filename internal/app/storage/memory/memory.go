package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/agency_layer/internal/app/domain/calendar"
	"github.com/R3E-Network/agency_layer/internal/app/domain/chat"
	"github.com/R3E-Network/agency_layer/internal/app/domain/client"
	"github.com/R3E-Network/agency_layer/internal/app/domain/finance"
	"github.com/R3E-Network/agency_layer/internal/app/domain/notification"
	"github.com/R3E-Network/agency_layer/internal/app/domain/onboarding"
	"github.com/R3E-Network/agency_layer/internal/app/domain/portfolio"
	"github.com/R3E-Network/agency_layer/internal/app/domain/project"
	"github.com/R3E-Network/agency_layer/internal/app/domain/tenant"
	"github.com/R3E-Network/agency_layer/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local development.
type Store struct {
	mu            sync.RWMutex
	agencies      map[string]tenant.Agency
	members       map[string]tenant.Member
	invites       map[string]tenant.Invite
	clients       map[string]client.Client
	projects      map[string]project.Project
	events        map[string]calendar.Event
	transactions  map[string]finance.Transaction
	portfolio     map[string]portfolio.Item
	notifications map[string]notification.Notification
	messages      map[string]chat.Message
	progress      map[string]onboarding.Progress
}

var _ storage.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		agencies:      make(map[string]tenant.Agency),
		members:       make(map[string]tenant.Member),
		invites:       make(map[string]tenant.Invite),
		clients:       make(map[string]client.Client),
		projects:      make(map[string]project.Project),
		events:        make(map[string]calendar.Event),
		transactions:  make(map[string]finance.Transaction),
		portfolio:     make(map[string]portfolio.Item),
		notifications: make(map[string]notification.Notification),
		messages:      make(map[string]chat.Message),
		progress:      make(map[string]onboarding.Progress),
	}
}

func newID(id string) string {
	if strings.TrimSpace(id) != "" {
		return id
	}
	return uuid.NewString()
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, storage.ErrNotFound)
}

// byCreated orders records by creation time, then id.
func byCreated[T any](items []T, created func(T) time.Time, id func(T) string) {
	sort.Slice(items, func(i, j int) bool {
		ci, cj := created(items[i]), created(items[j])
		if !ci.Equal(cj) {
			return ci.Before(cj)
		}
		return id(items[i]) < id(items[j])
	})
}

// AgencyStore implementation -------------------------------------------------

func (s *Store) CreateAgency(_ context.Context, a tenant.Agency) (tenant.Agency, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a.ID = newID(a.ID)
	if _, exists := s.agencies[a.ID]; exists {
		return tenant.Agency{}, fmt.Errorf("agency %s already exists", a.ID)
	}
	now := storage.Now()
	a.CreatedAt, a.UpdatedAt = now, now
	s.agencies[a.ID] = a
	return a, nil
}

func (s *Store) UpdateAgency(_ context.Context, a tenant.Agency) (tenant.Agency, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.agencies[a.ID]
	if !ok {
		return tenant.Agency{}, notFound("agency", a.ID)
	}
	a.CreatedAt = original.CreatedAt
	a.UpdatedAt = storage.Now()
	s.agencies[a.ID] = a
	return a, nil
}

func (s *Store) GetAgency(_ context.Context, id string) (tenant.Agency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.agencies[id]
	if !ok {
		return tenant.Agency{}, notFound("agency", id)
	}
	return a, nil
}

func (s *Store) ListAgencies(_ context.Context) ([]tenant.Agency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]tenant.Agency, 0, len(s.agencies))
	for _, a := range s.agencies {
		out = append(out, a)
	}
	byCreated(out, func(a tenant.Agency) time.Time { return a.CreatedAt }, func(a tenant.Agency) string { return a.ID })
	return out, nil
}

// MemberStore implementation -------------------------------------------------

func (s *Store) CreateMember(_ context.Context, m tenant.Member) (tenant.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m.ID = newID(m.ID)
	if _, exists := s.members[m.ID]; exists {
		return tenant.Member{}, fmt.Errorf("member %s already exists", m.ID)
	}
	for _, existing := range s.members {
		if existing.AgencyID == m.AgencyID && existing.UserID == m.UserID {
			return tenant.Member{}, fmt.Errorf("user %s is already a member of agency %s", m.UserID, m.AgencyID)
		}
	}
	now := storage.Now()
	m.CreatedAt, m.UpdatedAt = now, now
	s.members[m.ID] = m
	return m, nil
}

func (s *Store) UpdateMember(_ context.Context, m tenant.Member) (tenant.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.members[m.ID]
	if !ok || original.AgencyID != m.AgencyID {
		return tenant.Member{}, notFound("member", m.ID)
	}
	m.CreatedAt = original.CreatedAt
	m.UpdatedAt = storage.Now()
	s.members[m.ID] = m
	return m, nil
}

func (s *Store) GetMember(_ context.Context, agencyID, id string) (tenant.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.members[id]
	if !ok || m.AgencyID != agencyID {
		return tenant.Member{}, notFound("member", id)
	}
	return m, nil
}

func (s *Store) GetMemberByUser(_ context.Context, agencyID, userID string) (tenant.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.members {
		if m.AgencyID == agencyID && m.UserID == userID {
			return m, nil
		}
	}
	return tenant.Member{}, notFound("member for user", userID)
}

func (s *Store) ListMembers(_ context.Context, agencyID string) ([]tenant.Member, error) {
	return s.filterMembers(func(m tenant.Member) bool { return m.AgencyID == agencyID }), nil
}

func (s *Store) ListMembershipsByUser(_ context.Context, userID string) ([]tenant.Member, error) {
	return s.filterMembers(func(m tenant.Member) bool { return m.UserID == userID }), nil
}

func (s *Store) filterMembers(keep func(tenant.Member) bool) []tenant.Member {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []tenant.Member
	for _, m := range s.members {
		if keep(m) {
			out = append(out, m)
		}
	}
	byCreated(out, func(m tenant.Member) time.Time { return m.CreatedAt }, func(m tenant.Member) string { return m.ID })
	return out
}

func (s *Store) DeleteMember(_ context.Context, agencyID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.members[id]
	if !ok || m.AgencyID != agencyID {
		return notFound("member", id)
	}
	delete(s.members, id)
	return nil
}

// InviteStore implementation -------------------------------------------------

func (s *Store) CreateInvite(_ context.Context, inv tenant.Invite) (tenant.Invite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv.ID = newID(inv.ID)
	if _, exists := s.invites[inv.ID]; exists {
		return tenant.Invite{}, fmt.Errorf("invite %s already exists", inv.ID)
	}
	inv.CreatedAt = storage.Now()
	s.invites[inv.ID] = inv
	return cloneInvite(inv), nil
}

func (s *Store) UpdateInvite(_ context.Context, inv tenant.Invite) (tenant.Invite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.invites[inv.ID]
	if !ok || original.AgencyID != inv.AgencyID {
		return tenant.Invite{}, notFound("invite", inv.ID)
	}
	inv.CreatedAt = original.CreatedAt
	s.invites[inv.ID] = cloneInvite(inv)
	return cloneInvite(inv), nil
}

func (s *Store) GetInvite(_ context.Context, agencyID, id string) (tenant.Invite, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, ok := s.invites[id]
	if !ok || inv.AgencyID != agencyID {
		return tenant.Invite{}, notFound("invite", id)
	}
	return cloneInvite(inv), nil
}

func (s *Store) ListInvites(_ context.Context, agencyID string) ([]tenant.Invite, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []tenant.Invite
	for _, inv := range s.invites {
		if inv.AgencyID == agencyID {
			out = append(out, cloneInvite(inv))
		}
	}
	byCreated(out, func(i tenant.Invite) time.Time { return i.CreatedAt }, func(i tenant.Invite) string { return i.ID })
	return out, nil
}

// ClientStore implementation -------------------------------------------------

func (s *Store) CreateClient(_ context.Context, c client.Client) (client.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c.ID = newID(c.ID)
	if _, exists := s.clients[c.ID]; exists {
		return client.Client{}, fmt.Errorf("client %s already exists", c.ID)
	}
	now := storage.Now()
	c.CreatedAt, c.UpdatedAt = now, now
	s.clients[c.ID] = cloneClient(c)
	return cloneClient(c), nil
}

func (s *Store) UpdateClient(_ context.Context, c client.Client) (client.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.clients[c.ID]
	if !ok || original.AgencyID != c.AgencyID {
		return client.Client{}, notFound("client", c.ID)
	}
	c.CreatedAt = original.CreatedAt
	c.UpdatedAt = storage.Now()
	s.clients[c.ID] = cloneClient(c)
	return cloneClient(c), nil
}

func (s *Store) GetClient(_ context.Context, agencyID, id string) (client.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.clients[id]
	if !ok || c.AgencyID != agencyID {
		return client.Client{}, notFound("client", id)
	}
	return cloneClient(c), nil
}

func (s *Store) ListClients(_ context.Context, agencyID string) ([]client.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []client.Client
	for _, c := range s.clients {
		if c.AgencyID == agencyID {
			out = append(out, cloneClient(c))
		}
	}
	byCreated(out, func(c client.Client) time.Time { return c.CreatedAt }, func(c client.Client) string { return c.ID })
	return out, nil
}

func (s *Store) SearchClients(_ context.Context, agencyID, term string) ([]client.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(term)
	var out []client.Client
	for _, c := range s.clients {
		if c.AgencyID != agencyID {
			continue
		}
		for _, field := range []string{c.Name, c.Company, c.Email} {
			if strings.Contains(strings.ToLower(field), needle) {
				out = append(out, cloneClient(c))
				break
			}
		}
	}
	byCreated(out, func(c client.Client) time.Time { return c.CreatedAt }, func(c client.Client) string { return c.ID })
	return out, nil
}

func (s *Store) DeleteClient(_ context.Context, agencyID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.clients[id]
	if !ok || c.AgencyID != agencyID {
		return notFound("client", id)
	}
	delete(s.clients, id)
	return nil
}

// ProjectStore implementation ------------------------------------------------

func (s *Store) CreateProject(_ context.Context, p project.Project) (project.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p.ID = newID(p.ID)
	if _, exists := s.projects[p.ID]; exists {
		return project.Project{}, fmt.Errorf("project %s already exists", p.ID)
	}
	now := storage.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	s.projects[p.ID] = cloneProject(p)
	return cloneProject(p), nil
}

func (s *Store) UpdateProject(_ context.Context, p project.Project) (project.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.projects[p.ID]
	if !ok || original.AgencyID != p.AgencyID {
		return project.Project{}, notFound("project", p.ID)
	}
	p.CreatedAt = original.CreatedAt
	p.UpdatedAt = storage.Now()
	s.projects[p.ID] = cloneProject(p)
	return cloneProject(p), nil
}

func (s *Store) GetProject(_ context.Context, agencyID, id string) (project.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.projects[id]
	if !ok || p.AgencyID != agencyID {
		return project.Project{}, notFound("project", id)
	}
	return cloneProject(p), nil
}

func (s *Store) ListProjects(_ context.Context, agencyID string) ([]project.Project, error) {
	return s.filterProjects(func(p project.Project) bool { return p.AgencyID == agencyID }), nil
}

func (s *Store) ListProjectsByClient(_ context.Context, agencyID, clientID string) ([]project.Project, error) {
	return s.filterProjects(func(p project.Project) bool {
		return p.AgencyID == agencyID && p.ClientID == clientID
	}), nil
}

func (s *Store) filterProjects(keep func(project.Project) bool) []project.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []project.Project
	for _, p := range s.projects {
		if keep(p) {
			out = append(out, cloneProject(p))
		}
	}
	byCreated(out, func(p project.Project) time.Time { return p.CreatedAt }, func(p project.Project) string { return p.ID })
	return out
}

func (s *Store) DeleteProject(_ context.Context, agencyID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[id]
	if !ok || p.AgencyID != agencyID {
		return notFound("project", id)
	}
	delete(s.projects, id)
	return nil
}

// EventStore implementation --------------------------------------------------

func (s *Store) CreateEvent(_ context.Context, e calendar.Event) (calendar.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e.ID = newID(e.ID)
	if _, exists := s.events[e.ID]; exists {
		return calendar.Event{}, fmt.Errorf("event %s already exists", e.ID)
	}
	now := storage.Now()
	e.CreatedAt, e.UpdatedAt = now, now
	s.events[e.ID] = cloneEvent(e)
	return cloneEvent(e), nil
}

func (s *Store) UpdateEvent(_ context.Context, e calendar.Event) (calendar.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.events[e.ID]
	if !ok || original.AgencyID != e.AgencyID {
		return calendar.Event{}, notFound("event", e.ID)
	}
	e.CreatedAt = original.CreatedAt
	e.UpdatedAt = storage.Now()
	s.events[e.ID] = cloneEvent(e)
	return cloneEvent(e), nil
}

func (s *Store) GetEvent(_ context.Context, agencyID, id string) (calendar.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.events[id]
	if !ok || e.AgencyID != agencyID {
		return calendar.Event{}, notFound("event", id)
	}
	return cloneEvent(e), nil
}

// ListEvents orders by scheduled time, then id.
func (s *Store) ListEvents(_ context.Context, agencyID string, filter calendar.Filter) ([]calendar.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []calendar.Event
	for _, e := range s.events {
		if e.AgencyID == agencyID && filter.Match(e) {
			out = append(out, cloneEvent(e))
		}
	}
	byCreated(out, func(e calendar.Event) time.Time { return e.ScheduledAt }, func(e calendar.Event) string { return e.ID })
	return out, nil
}

func (s *Store) DeleteEvent(_ context.Context, agencyID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[id]
	if !ok || e.AgencyID != agencyID {
		return notFound("event", id)
	}
	delete(s.events, id)
	return nil
}

// TransactionStore implementation --------------------------------------------

func (s *Store) CreateTransaction(_ context.Context, tx finance.Transaction) (finance.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx.ID = newID(tx.ID)
	if _, exists := s.transactions[tx.ID]; exists {
		return finance.Transaction{}, fmt.Errorf("transaction %s already exists", tx.ID)
	}
	now := storage.Now()
	tx.CreatedAt, tx.UpdatedAt = now, now
	s.transactions[tx.ID] = cloneTransaction(tx)
	return cloneTransaction(tx), nil
}

func (s *Store) UpdateTransaction(_ context.Context, tx finance.Transaction) (finance.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.transactions[tx.ID]
	if !ok || original.AgencyID != tx.AgencyID {
		return finance.Transaction{}, notFound("transaction", tx.ID)
	}
	tx.CreatedAt = original.CreatedAt
	tx.UpdatedAt = storage.Now()
	s.transactions[tx.ID] = cloneTransaction(tx)
	return cloneTransaction(tx), nil
}

func (s *Store) GetTransaction(_ context.Context, agencyID, id string) (finance.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactions[id]
	if !ok || tx.AgencyID != agencyID {
		return finance.Transaction{}, notFound("transaction", id)
	}
	return cloneTransaction(tx), nil
}

func (s *Store) ListTransactions(_ context.Context, agencyID string, filter finance.Filter) ([]finance.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []finance.Transaction
	for _, tx := range s.transactions {
		if tx.AgencyID == agencyID && filter.Match(tx) {
			out = append(out, cloneTransaction(tx))
		}
	}
	byCreated(out, func(t finance.Transaction) time.Time { return t.CreatedAt }, func(t finance.Transaction) string { return t.ID })
	return out, nil
}

func (s *Store) DeleteTransaction(_ context.Context, agencyID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[id]
	if !ok || tx.AgencyID != agencyID {
		return notFound("transaction", id)
	}
	delete(s.transactions, id)
	return nil
}

// PortfolioStore implementation ----------------------------------------------

func (s *Store) CreatePortfolioItem(_ context.Context, it portfolio.Item) (portfolio.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it.ID = newID(it.ID)
	if _, exists := s.portfolio[it.ID]; exists {
		return portfolio.Item{}, fmt.Errorf("portfolio item %s already exists", it.ID)
	}
	now := storage.Now()
	it.CreatedAt, it.UpdatedAt = now, now
	s.portfolio[it.ID] = cloneItem(it)
	return cloneItem(it), nil
}

func (s *Store) UpdatePortfolioItem(_ context.Context, it portfolio.Item) (portfolio.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.portfolio[it.ID]
	if !ok || original.AgencyID != it.AgencyID {
		return portfolio.Item{}, notFound("portfolio item", it.ID)
	}
	it.CreatedAt = original.CreatedAt
	it.UpdatedAt = storage.Now()
	s.portfolio[it.ID] = cloneItem(it)
	return cloneItem(it), nil
}

func (s *Store) GetPortfolioItem(_ context.Context, agencyID, id string) (portfolio.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	it, ok := s.portfolio[id]
	if !ok || it.AgencyID != agencyID {
		return portfolio.Item{}, notFound("portfolio item", id)
	}
	return cloneItem(it), nil
}

func (s *Store) ListPortfolioItems(_ context.Context, agencyID string, filter portfolio.Filter) ([]portfolio.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []portfolio.Item
	for _, it := range s.portfolio {
		if it.AgencyID == agencyID && filter.Match(it) {
			out = append(out, cloneItem(it))
		}
	}
	byCreated(out, func(i portfolio.Item) time.Time { return i.CreatedAt }, func(i portfolio.Item) string { return i.ID })
	return out, nil
}

func (s *Store) DeletePortfolioItem(_ context.Context, agencyID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.portfolio[id]
	if !ok || it.AgencyID != agencyID {
		return notFound("portfolio item", id)
	}
	delete(s.portfolio, id)
	return nil
}

// NotificationStore implementation -------------------------------------------

func (s *Store) CreateNotification(_ context.Context, n notification.Notification) (notification.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n.ID = newID(n.ID)
	if n.CreatedAt.IsZero() {
		n.CreatedAt = storage.Now()
	}
	s.notifications[n.ID] = n
	return n, nil
}

func (s *Store) ListNotifications(_ context.Context, agencyID, recipientID string, unreadOnly bool, limit int) ([]notification.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []notification.Notification
	for _, n := range s.notifications {
		if n.AgencyID != agencyID {
			continue
		}
		if n.RecipientID != recipientID && !n.Broadcast() {
			continue
		}
		if unreadOnly && n.Read {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) MarkNotificationRead(_ context.Context, agencyID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok || n.AgencyID != agencyID {
		return notFound("notification", id)
	}
	n.Read = true
	s.notifications[id] = n
	return nil
}

func (s *Store) CountUnreadNotifications(_ context.Context, agencyID, recipientID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, n := range s.notifications {
		if n.AgencyID == agencyID && !n.Read && (n.RecipientID == recipientID || n.Broadcast()) {
			count++
		}
	}
	return count, nil
}

func (s *Store) MarkAllNotificationsRead(_ context.Context, agencyID, recipientID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, n := range s.notifications {
		if n.AgencyID != agencyID || n.Read {
			continue
		}
		if n.RecipientID != recipientID && !n.Broadcast() {
			continue
		}
		n.Read = true
		s.notifications[id] = n
		count++
	}
	return count, nil
}

// MessageStore implementation ------------------------------------------------

func (s *Store) CreateMessage(_ context.Context, m chat.Message) (chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m.ID = newID(m.ID)
	if m.CreatedAt.IsZero() {
		m.CreatedAt = storage.Now()
	}
	s.messages[m.ID] = m
	return m, nil
}

func (s *Store) ListMessages(_ context.Context, agencyID, clientID string, limit int) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []chat.Message
	for _, m := range s.messages {
		if m.AgencyID == agencyID && m.ClientID == clientID {
			out = append(out, m)
		}
	}
	byCreated(out, func(m chat.Message) time.Time { return m.CreatedAt }, func(m chat.Message) string { return m.ID })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *Store) MarkThreadRead(_ context.Context, agencyID, clientID string, side chat.Side) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, m := range s.messages {
		if m.AgencyID != agencyID || m.ClientID != clientID {
			continue
		}
		switch side {
		case chat.SideAgency:
			if m.ReadByAgency {
				continue
			}
			m.ReadByAgency = true
		case chat.SideClient:
			if m.ReadByClient {
				continue
			}
			m.ReadByClient = true
		default:
			return 0, fmt.Errorf("unknown side %q", side)
		}
		s.messages[id] = m
		count++
	}
	return count, nil
}

// OnboardingStore implementation ---------------------------------------------

func progressKey(agencyID, userID string) string {
	return agencyID + "/" + userID
}

// GetProgress returns an empty progress record when none was saved.
func (s *Store) GetProgress(_ context.Context, agencyID, userID string) (onboarding.Progress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.progress[progressKey(agencyID, userID)]
	if !ok {
		return onboarding.Progress{AgencyID: agencyID, UserID: userID}, nil
	}
	return cloneProgress(p), nil
}

func (s *Store) SaveProgress(_ context.Context, p onboarding.Progress) (onboarding.Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p.UpdatedAt = storage.Now()
	s.progress[progressKey(p.AgencyID, p.UserID)] = cloneProgress(p)
	return cloneProgress(p), nil
}

// clone helpers ---------------------------------------------------------------

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneInvite(inv tenant.Invite) tenant.Invite {
	inv.AcceptedAt = cloneTime(inv.AcceptedAt)
	return inv
}

func cloneClient(c client.Client) client.Client {
	c.Tags = cloneStrings(c.Tags)
	return c
}

func cloneProject(p project.Project) project.Project {
	p.StartDate = cloneTime(p.StartDate)
	p.DueDate = cloneTime(p.DueDate)
	return p
}

func cloneEvent(e calendar.Event) calendar.Event {
	e.MediaURLs = cloneStrings(e.MediaURLs)
	e.ReminderSentAt = cloneTime(e.ReminderSentAt)
	return e
}

func cloneTransaction(tx finance.Transaction) finance.Transaction {
	tx.DueDate = cloneTime(tx.DueDate)
	tx.PaidAt = cloneTime(tx.PaidAt)
	return tx
}

func cloneItem(it portfolio.Item) portfolio.Item {
	it.Tags = cloneStrings(it.Tags)
	return it
}

func cloneProgress(p onboarding.Progress) onboarding.Progress {
	p.CompletedSteps = cloneStrings(p.CompletedSteps)
	return p
}
