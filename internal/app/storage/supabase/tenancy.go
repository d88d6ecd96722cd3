package supabase

import (
	"context"

	"github.com/R3E-Network/agency_layer/internal/app/domain/tenant"
	"github.com/R3E-Network/agency_layer/internal/app/storage"
)

const (
	tableAgencies = "agencies"
	tableMembers  = "agency_members"
	tableInvites  = "invites"
)

// inviteRow exposes the code hash, which the domain type hides from JSON.
type inviteRow struct {
	tenant.Invite
	CodeHash string `json:"code_hash"`
}

func (r inviteRow) model() tenant.Invite {
	inv := r.Invite
	inv.CodeHash = r.CodeHash
	return inv
}

func (s *Store) CreateAgency(ctx context.Context, a tenant.Agency) (tenant.Agency, error) {
	a.ID = newID(a.ID)
	now := storage.Now()
	a.CreatedAt, a.UpdatedAt = now, now
	return insert[tenant.Agency](ctx, s, tableAgencies, a)
}

func (s *Store) UpdateAgency(ctx context.Context, a tenant.Agency) (tenant.Agency, error) {
	a.UpdatedAt = storage.Now()
	body, err := patch(a, nil)
	if err != nil {
		return tenant.Agency{}, err
	}
	return update[tenant.Agency](ctx, s.from(tableAgencies).Eq("id", a.ID), "agency", a.ID, body)
}

func (s *Store) GetAgency(ctx context.Context, id string) (tenant.Agency, error) {
	var a tenant.Agency
	err := s.one(ctx, s.from(tableAgencies).Eq("id", id), &a, "agency", id)
	return a, err
}

func (s *Store) ListAgencies(ctx context.Context) ([]tenant.Agency, error) {
	var out []tenant.Agency
	err := s.from(tableAgencies).Order("created_at", true).Order("id", true).Fetch(ctx, &out)
	return out, err
}

func (s *Store) CreateMember(ctx context.Context, m tenant.Member) (tenant.Member, error) {
	m.ID = newID(m.ID)
	now := storage.Now()
	m.CreatedAt, m.UpdatedAt = now, now
	return insert[tenant.Member](ctx, s, tableMembers, m)
}

func (s *Store) UpdateMember(ctx context.Context, m tenant.Member) (tenant.Member, error) {
	m.UpdatedAt = storage.Now()
	body, err := patch(m, map[string]any{"client_id": ""})
	if err != nil {
		return tenant.Member{}, err
	}
	return update[tenant.Member](ctx, s.scoped(tableMembers, m.AgencyID, m.ID), "member", m.ID, body)
}

func (s *Store) GetMember(ctx context.Context, agencyID, id string) (tenant.Member, error) {
	var m tenant.Member
	err := s.one(ctx, s.scoped(tableMembers, agencyID, id), &m, "member", id)
	return m, err
}

func (s *Store) GetMemberByUser(ctx context.Context, agencyID, userID string) (tenant.Member, error) {
	var m tenant.Member
	q := s.from(tableMembers).Eq("agency_id", agencyID).Eq("user_id", userID)
	err := s.one(ctx, q, &m, "member for user", userID)
	return m, err
}

func (s *Store) ListMembers(ctx context.Context, agencyID string) ([]tenant.Member, error) {
	var out []tenant.Member
	err := s.from(tableMembers).Eq("agency_id", agencyID).
		Order("created_at", true).Order("id", true).Fetch(ctx, &out)
	return out, err
}

func (s *Store) ListMembershipsByUser(ctx context.Context, userID string) ([]tenant.Member, error) {
	var out []tenant.Member
	err := s.from(tableMembers).Eq("user_id", userID).
		Order("created_at", true).Order("id", true).Fetch(ctx, &out)
	return out, err
}

func (s *Store) DeleteMember(ctx context.Context, agencyID, id string) error {
	return remove(ctx, s.scoped(tableMembers, agencyID, id), "member", id)
}

func (s *Store) CreateInvite(ctx context.Context, inv tenant.Invite) (tenant.Invite, error) {
	inv.ID = newID(inv.ID)
	inv.CreatedAt = storage.Now()
	row, err := insert[inviteRow](ctx, s, tableInvites, inviteRow{Invite: inv, CodeHash: inv.CodeHash})
	if err != nil {
		return tenant.Invite{}, err
	}
	return row.model(), nil
}

func (s *Store) UpdateInvite(ctx context.Context, inv tenant.Invite) (tenant.Invite, error) {
	body, err := patch(inviteRow{Invite: inv, CodeHash: inv.CodeHash}, map[string]any{
		"client_id":   "",
		"accepted_at": nil,
		"accepted_by": "",
	})
	if err != nil {
		return tenant.Invite{}, err
	}
	row, err := update[inviteRow](ctx, s.scoped(tableInvites, inv.AgencyID, inv.ID), "invite", inv.ID, body)
	if err != nil {
		return tenant.Invite{}, err
	}
	return row.model(), nil
}

func (s *Store) GetInvite(ctx context.Context, agencyID, id string) (tenant.Invite, error) {
	var row inviteRow
	if err := s.one(ctx, s.scoped(tableInvites, agencyID, id), &row, "invite", id); err != nil {
		return tenant.Invite{}, err
	}
	return row.model(), nil
}

func (s *Store) ListInvites(ctx context.Context, agencyID string) ([]tenant.Invite, error) {
	var rows []inviteRow
	if err := s.from(tableInvites).Eq("agency_id", agencyID).
		Order("created_at", true).Order("id", true).Fetch(ctx, &rows); err != nil {
		return nil, err
	}
	out := make([]tenant.Invite, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}
