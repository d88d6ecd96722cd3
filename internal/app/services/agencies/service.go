package agencies

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/R3E-Network/agency_layer/internal/app/actor"
	"github.com/R3E-Network/agency_layer/internal/app/domain/tenant"
	"github.com/R3E-Network/agency_layer/internal/app/storage"
	apperrors "github.com/R3E-Network/agency_layer/internal/errors"
	"github.com/R3E-Network/agency_layer/pkg/logger"
)

const maxNameLength = 120

// Membership pairs an agency with the caller's role inside it.
type Membership struct {
	Agency   tenant.Agency `json:"agency"`
	MemberID string        `json:"member_id"`
	Role     tenant.Role   `json:"role"`
	ClientID string        `json:"client_id,omitempty"`
}

// Service manages agencies (tenants).
type Service struct {
	agencies storage.AgencyStore
	members  storage.MemberStore
	log      *logger.Logger
}

// New constructs an agency service.
func New(agencies storage.AgencyStore, members storage.MemberStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("agencies")
	}
	return &Service{agencies: agencies, members: members, log: log}
}

func normalizeName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", apperrors.InvalidInput("name is required")
	}
	if len([]rune(name)) > maxNameLength {
		return "", apperrors.InvalidInput("name must be at most %d characters", maxNameLength)
	}
	return name, nil
}

// Create registers an agency and makes owner its first owner member.
func (s *Service) Create(ctx context.Context, name string, owner actor.Actor) (tenant.Agency, error) {
	name, err := normalizeName(name)
	if err != nil {
		return tenant.Agency{}, err
	}
	if strings.TrimSpace(owner.UserID) == "" {
		return tenant.Agency{}, apperrors.InvalidInput("owner user is required")
	}

	agency, err := s.agencies.CreateAgency(ctx, tenant.Agency{Name: name, OwnerID: owner.UserID})
	if err != nil {
		return tenant.Agency{}, err
	}
	if _, err := s.members.CreateMember(ctx, tenant.Member{
		AgencyID: agency.ID,
		UserID:   owner.UserID,
		Email:    strings.ToLower(strings.TrimSpace(owner.Email)),
		Name:     strings.TrimSpace(owner.Name),
		Role:     tenant.RoleOwner,
		Active:   true,
	}); err != nil {
		return tenant.Agency{}, fmt.Errorf("create owner membership: %w", err)
	}

	s.log.WithField("agency_id", agency.ID).WithField("owner_id", owner.UserID).Info("agency created")
	return agency, nil
}

// Get retrieves an agency.
func (s *Service) Get(ctx context.Context, id string) (tenant.Agency, error) {
	a, err := s.agencies.GetAgency(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return tenant.Agency{}, apperrors.NotFound("agency", id)
	}
	return a, err
}

// Rename changes the agency display name.
func (s *Service) Rename(ctx context.Context, id, name string) (tenant.Agency, error) {
	name, err := normalizeName(name)
	if err != nil {
		return tenant.Agency{}, err
	}
	a, err := s.Get(ctx, id)
	if err != nil {
		return tenant.Agency{}, err
	}
	if a.Name == name {
		return a, nil
	}
	a.Name = name
	updated, err := s.agencies.UpdateAgency(ctx, a)
	if err != nil {
		return tenant.Agency{}, err
	}
	s.log.WithField("agency_id", id).Info("agency renamed")
	return updated, nil
}

// ListForUser returns every agency the user is an active member of.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]Membership, error) {
	memberships, err := s.members.ListMembershipsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]Membership, 0, len(memberships))
	for _, m := range memberships {
		if !m.Active {
			continue
		}
		a, err := s.agencies.GetAgency(ctx, m.AgencyID)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, Membership{Agency: a, MemberID: m.ID, Role: m.Role, ClientID: m.ClientID})
	}
	return out, nil
}

// IDs lists every agency ID. Used by background jobs that sweep all tenants.
func (s *Service) IDs(ctx context.Context) ([]string, error) {
	list, err := s.agencies.ListAgencies(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(list))
	for i, a := range list {
		ids[i] = a.ID
	}
	return ids, nil
}
