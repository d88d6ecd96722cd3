package members

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/R3E-Network/agency_layer/internal/app/actor"
	"github.com/R3E-Network/agency_layer/internal/app/domain/notification"
	"github.com/R3E-Network/agency_layer/internal/app/domain/onboarding"
	"github.com/R3E-Network/agency_layer/internal/app/domain/tenant"
	"github.com/R3E-Network/agency_layer/internal/app/storage"
	apperrors "github.com/R3E-Network/agency_layer/internal/errors"
	"github.com/R3E-Network/agency_layer/pkg/logger"
)

// DefaultInviteTTL is used when Invite is called without an expiry.
const DefaultInviteTTL = 7 * 24 * time.Hour

// Notifier delivers in-app notifications.
type Notifier interface {
	Notify(ctx context.Context, n notification.Notification) (notification.Notification, error)
}

// Tracker records onboarding progress for the caller.
type Tracker interface {
	Track(ctx context.Context, agencyID string, step onboarding.Step)
}

// Service manages memberships, roles and invitations.
type Service struct {
	members  storage.MemberStore
	invites  storage.InviteStore
	clients  storage.ClientStore
	notifier Notifier
	tracker  Tracker
	log      *logger.Logger
	now      func() time.Time
	cost     int
}

// New constructs a membership service.
func New(members storage.MemberStore, invites storage.InviteStore, clients storage.ClientStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("members")
	}
	return &Service{
		members: members,
		invites: invites,
		clients: clients,
		log:     log,
		now:     storage.Now,
		cost:    bcrypt.DefaultCost,
	}
}

// AttachDependencies wires optional collaborators.
func (s *Service) AttachDependencies(notifier Notifier, tracker Tracker) {
	s.notifier = notifier
	s.tracker = tracker
}

// Authorize returns the caller's active membership when its role is at
// least min.
func (s *Service) Authorize(ctx context.Context, agencyID, userID string, min tenant.Role) (tenant.Member, error) {
	if strings.TrimSpace(userID) == "" {
		return tenant.Member{}, apperrors.Unauthorized("")
	}
	m, err := s.members.GetMemberByUser(ctx, agencyID, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return tenant.Member{}, apperrors.Forbidden("not a member of this agency")
	}
	if err != nil {
		return tenant.Member{}, err
	}
	if !m.Active {
		return tenant.Member{}, apperrors.Forbidden("membership is inactive")
	}
	if !m.Role.AtLeast(min) {
		return tenant.Member{}, apperrors.Forbidden(fmt.Sprintf("requires %s role", min))
	}
	return m, nil
}

// List returns the agency's members.
func (s *Service) List(ctx context.Context, agencyID string) ([]tenant.Member, error) {
	return s.members.ListMembers(ctx, agencyID)
}

func (s *Service) get(ctx context.Context, agencyID, id string) (tenant.Member, error) {
	m, err := s.members.GetMember(ctx, agencyID, id)
	if errors.Is(err, storage.ErrNotFound) {
		return tenant.Member{}, apperrors.NotFound("member", id)
	}
	return m, err
}

// otherActiveOwners counts active owners of the agency other than exclude.
func (s *Service) otherActiveOwners(ctx context.Context, agencyID, exclude string) (int, error) {
	list, err := s.members.ListMembers(ctx, agencyID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, m := range list {
		if m.ID != exclude && m.Active && m.Role == tenant.RoleOwner {
			n++
		}
	}
	return n, nil
}

func (s *Service) guardLastOwner(ctx context.Context, m tenant.Member) error {
	if m.Role != tenant.RoleOwner || !m.Active {
		return nil
	}
	others, err := s.otherActiveOwners(ctx, m.AgencyID, m.ID)
	if err != nil {
		return err
	}
	if others == 0 {
		return apperrors.Conflict("agency must keep at least one active owner")
	}
	return nil
}

// guardOwnerChange rejects changes to owner memberships, and grants of the
// owner role, unless the caller in ctx is an owner. Calls without a caller
// come from trusted tooling and pass.
func guardOwnerChange(ctx context.Context, m tenant.Member, grant bool) error {
	if m.Role != tenant.RoleOwner && !grant {
		return nil
	}
	if a, ok := actor.From(ctx); ok && a.Role != tenant.RoleOwner {
		if grant {
			return apperrors.Forbidden("only owners can grant the owner role")
		}
		return apperrors.Forbidden("only owners can change an owner membership")
	}
	return nil
}

// validateClientBinding checks that a client-role membership points at an
// existing client and that staff roles carry none.
func (s *Service) validateClientBinding(ctx context.Context, agencyID string, role tenant.Role, clientID string) (string, error) {
	clientID = strings.TrimSpace(clientID)
	if role != tenant.RoleClient {
		return "", nil
	}
	if clientID == "" {
		return "", apperrors.InvalidInput("client_id is required for the client role")
	}
	if _, err := s.clients.GetClient(ctx, agencyID, clientID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", apperrors.InvalidInput("client %s does not exist", clientID)
		}
		return "", err
	}
	return clientID, nil
}

// UpdateRole changes a member's role. Only owners may change an owner or
// grant the owner role, and the last active owner cannot be demoted.
func (s *Service) UpdateRole(ctx context.Context, agencyID, memberID string, role tenant.Role, clientID string) (tenant.Member, error) {
	role = tenant.NormalizeRole(string(role))
	if !role.Valid() {
		return tenant.Member{}, apperrors.InvalidInput("invalid role %q", role)
	}
	m, err := s.get(ctx, agencyID, memberID)
	if err != nil {
		return tenant.Member{}, err
	}
	if err := guardOwnerChange(ctx, m, role == tenant.RoleOwner && m.Role != tenant.RoleOwner); err != nil {
		return tenant.Member{}, err
	}
	if role != tenant.RoleOwner {
		if err := s.guardLastOwner(ctx, m); err != nil {
			return tenant.Member{}, err
		}
	}
	bound, err := s.validateClientBinding(ctx, agencyID, role, clientID)
	if err != nil {
		return tenant.Member{}, err
	}
	if m.Role == role && m.ClientID == bound {
		return m, nil
	}
	m.Role, m.ClientID = role, bound
	updated, err := s.members.UpdateMember(ctx, m)
	if err != nil {
		return tenant.Member{}, err
	}
	s.log.WithField("agency_id", agencyID).
		WithField("member_id", memberID).
		WithField("role", role).
		Info("member role updated")
	return updated, nil
}

// SetActive enables or disables a membership.
func (s *Service) SetActive(ctx context.Context, agencyID, memberID string, active bool) (tenant.Member, error) {
	m, err := s.get(ctx, agencyID, memberID)
	if err != nil {
		return tenant.Member{}, err
	}
	if m.Active == active {
		return m, nil
	}
	if err := guardOwnerChange(ctx, m, false); err != nil {
		return tenant.Member{}, err
	}
	if !active {
		if err := s.guardLastOwner(ctx, m); err != nil {
			return tenant.Member{}, err
		}
	}
	m.Active = active
	updated, err := s.members.UpdateMember(ctx, m)
	if err != nil {
		return tenant.Member{}, err
	}
	s.log.WithField("agency_id", agencyID).
		WithField("member_id", memberID).
		WithField("active", active).
		Info("member activation changed")
	return updated, nil
}

// Remove deletes a membership. Only owners may remove an owner, and the
// last active owner cannot be removed.
func (s *Service) Remove(ctx context.Context, agencyID, memberID string) error {
	m, err := s.get(ctx, agencyID, memberID)
	if err != nil {
		return err
	}
	if err := guardOwnerChange(ctx, m, false); err != nil {
		return err
	}
	if err := s.guardLastOwner(ctx, m); err != nil {
		return err
	}
	if err := s.members.DeleteMember(ctx, agencyID, memberID); err != nil {
		return err
	}
	s.log.WithField("agency_id", agencyID).WithField("member_id", memberID).Info("member removed")
	return nil
}

// InviteRequest describes a new invitation.
type InviteRequest struct {
	Email    string        `json:"email"`
	Role     tenant.Role   `json:"role"`
	ClientID string        `json:"client_id"`
	TTL      time.Duration `json:"-"`
}

// Invite creates an invitation and returns it with the one-time code. Only
// a bcrypt hash of the code is stored.
func (s *Service) Invite(ctx context.Context, agencyID string, req InviteRequest) (tenant.Invite, string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(req.Email))
	if err != nil {
		return tenant.Invite{}, "", apperrors.InvalidInput("invalid email %q", req.Email)
	}
	role := tenant.NormalizeRole(string(req.Role))
	if role == "" {
		role = tenant.RoleMember
	}
	if !role.Valid() || role == tenant.RoleOwner {
		return tenant.Invite{}, "", apperrors.InvalidInput("cannot invite with role %q", role)
	}
	clientID, err := s.validateClientBinding(ctx, agencyID, role, req.ClientID)
	if err != nil {
		return tenant.Invite{}, "", err
	}
	ttl := req.TTL
	if ttl <= 0 {
		ttl = DefaultInviteTTL
	}

	code := strings.ReplaceAll(uuid.NewString(), "-", "")
	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.cost)
	if err != nil {
		return tenant.Invite{}, "", apperrors.Internal("hash invite code", err)
	}

	inv, err := s.invites.CreateInvite(ctx, tenant.Invite{
		AgencyID:  agencyID,
		Email:     strings.ToLower(addr.Address),
		Role:      role,
		ClientID:  clientID,
		CodeHash:  string(hash),
		ExpiresAt: s.now().Add(ttl),
		CreatedBy: actor.UserID(ctx),
	})
	if err != nil {
		return tenant.Invite{}, "", err
	}

	if s.tracker != nil && role.IsStaff() {
		s.tracker.Track(ctx, agencyID, onboarding.StepInviteMember)
	}
	s.log.WithField("agency_id", agencyID).
		WithField("invite_id", inv.ID).
		WithField("role", role).
		Info("invite created")
	return inv, code, nil
}

// ListInvites returns every invitation of the agency.
func (s *Service) ListInvites(ctx context.Context, agencyID string) ([]tenant.Invite, error) {
	return s.invites.ListInvites(ctx, agencyID)
}

// AcceptInvite turns a pending invitation into a membership for user. The
// code must match, the invite must be unexpired and unused, and when the
// user has a known email it must match the invited address.
func (s *Service) AcceptInvite(ctx context.Context, agencyID, inviteID, code string, user actor.Actor) (tenant.Member, error) {
	if strings.TrimSpace(user.UserID) == "" {
		return tenant.Member{}, apperrors.Unauthorized("")
	}
	inv, err := s.invites.GetInvite(ctx, agencyID, inviteID)
	if errors.Is(err, storage.ErrNotFound) {
		return tenant.Member{}, apperrors.NotFound("invite", inviteID)
	}
	if err != nil {
		return tenant.Member{}, err
	}
	now := s.now()
	if inv.AcceptedAt != nil {
		return tenant.Member{}, apperrors.Conflict("invite was already accepted")
	}
	if !inv.Pending(now) {
		return tenant.Member{}, apperrors.Conflict("invite has expired")
	}
	if bcrypt.CompareHashAndPassword([]byte(inv.CodeHash), []byte(strings.TrimSpace(code))) != nil {
		return tenant.Member{}, apperrors.Forbidden("invalid invite code")
	}
	email := strings.ToLower(strings.TrimSpace(user.Email))
	if email != "" && email != inv.Email {
		return tenant.Member{}, apperrors.Forbidden("invite was issued for another email")
	}
	if inv.Role == tenant.RoleClient {
		if _, err := s.validateClientBinding(ctx, agencyID, inv.Role, inv.ClientID); err != nil {
			if apperrors.IsCode(err, apperrors.CodeInvalidInput) {
				return tenant.Member{}, apperrors.Conflict("invited client no longer exists")
			}
			return tenant.Member{}, err
		}
	}
	if _, err := s.members.GetMemberByUser(ctx, agencyID, user.UserID); err == nil {
		return tenant.Member{}, apperrors.Conflict("user is already a member of this agency")
	} else if !errors.Is(err, storage.ErrNotFound) {
		return tenant.Member{}, err
	}

	m, err := s.members.CreateMember(ctx, tenant.Member{
		AgencyID: agencyID,
		UserID:   user.UserID,
		Email:    inv.Email,
		Name:     strings.TrimSpace(user.Name),
		Role:     inv.Role,
		ClientID: inv.ClientID,
		Active:   true,
	})
	if err != nil {
		return tenant.Member{}, err
	}
	inv.AcceptedAt = &now
	inv.AcceptedBy = user.UserID
	if _, err := s.invites.UpdateInvite(ctx, inv); err != nil {
		return tenant.Member{}, fmt.Errorf("mark invite accepted: %w", err)
	}

	if s.notifier != nil {
		if _, err := s.notifier.Notify(ctx, notification.Notification{
			AgencyID:     agencyID,
			Kind:         notification.KindMembership,
			Title:        "New team member",
			Body:         fmt.Sprintf("%s joined as %s", inv.Email, inv.Role),
			ResourceType: "member",
			ResourceID:   m.ID,
		}); err != nil {
			s.log.WithError(err).Warn("notify invite accepted")
		}
	}
	s.log.WithField("agency_id", agencyID).
		WithField("member_id", m.ID).
		WithField("invite_id", inv.ID).
		Info("invite accepted")
	return m, nil
}
