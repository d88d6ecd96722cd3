package postgres

import (
	"context"

	"github.com/R3E-Network/agency_layer/internal/app/domain/tenant"
	"github.com/R3E-Network/agency_layer/internal/app/storage"
)

const (
	agencyColumns = `id, name, owner_id, created_at, updated_at`
	memberColumns = `id, agency_id, user_id, email, name, role, client_id, active, created_at, updated_at`
	inviteColumns = `id, agency_id, email, role, client_id, code_hash, expires_at, accepted_at, accepted_by, created_by, created_at`
)

// --- AgencyStore -------------------------------------------------------------

func (s *Store) CreateAgency(ctx context.Context, a tenant.Agency) (tenant.Agency, error) {
	a.ID = newID(a.ID)
	now := storage.Now()
	a.CreatedAt, a.UpdatedAt = now, now
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO agencies (`+agencyColumns+`)
		VALUES (:id, :name, :owner_id, :created_at, :updated_at)`, a)
	if err != nil {
		return tenant.Agency{}, err
	}
	return a, nil
}

func (s *Store) UpdateAgency(ctx context.Context, a tenant.Agency) (tenant.Agency, error) {
	existing, err := s.GetAgency(ctx, a.ID)
	if err != nil {
		return tenant.Agency{}, err
	}
	a.CreatedAt = existing.CreatedAt
	a.UpdatedAt = storage.Now()
	err = s.exec(ctx, "agency", a.ID, `
		UPDATE agencies SET name = :name, owner_id = :owner_id, updated_at = :updated_at
		WHERE id = :id`, a)
	if err != nil {
		return tenant.Agency{}, err
	}
	return a, nil
}

func (s *Store) GetAgency(ctx context.Context, id string) (tenant.Agency, error) {
	var a tenant.Agency
	err := s.get(ctx, &a, "agency", id, `SELECT `+agencyColumns+` FROM agencies WHERE id = $1`, id)
	return a, err
}

func (s *Store) ListAgencies(ctx context.Context) ([]tenant.Agency, error) {
	var out []tenant.Agency
	err := s.db.SelectContext(ctx, &out, `SELECT `+agencyColumns+` FROM agencies ORDER BY created_at, id`)
	return out, err
}

// --- MemberStore -------------------------------------------------------------

func (s *Store) CreateMember(ctx context.Context, m tenant.Member) (tenant.Member, error) {
	m.ID = newID(m.ID)
	now := storage.Now()
	m.CreatedAt, m.UpdatedAt = now, now
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO agency_members (`+memberColumns+`)
		VALUES (:id, :agency_id, :user_id, :email, :name, :role, :client_id, :active, :created_at, :updated_at)`, m)
	if err != nil {
		return tenant.Member{}, err
	}
	return m, nil
}

func (s *Store) UpdateMember(ctx context.Context, m tenant.Member) (tenant.Member, error) {
	existing, err := s.GetMember(ctx, m.AgencyID, m.ID)
	if err != nil {
		return tenant.Member{}, err
	}
	m.CreatedAt = existing.CreatedAt
	m.UpdatedAt = storage.Now()
	err = s.exec(ctx, "member", m.ID, `
		UPDATE agency_members
		SET email = :email, name = :name, role = :role, client_id = :client_id,
		    active = :active, updated_at = :updated_at
		WHERE agency_id = :agency_id AND id = :id`, m)
	if err != nil {
		return tenant.Member{}, err
	}
	return m, nil
}

func (s *Store) GetMember(ctx context.Context, agencyID, id string) (tenant.Member, error) {
	var m tenant.Member
	err := s.get(ctx, &m, "member", id,
		`SELECT `+memberColumns+` FROM agency_members WHERE agency_id = $1 AND id = $2`, agencyID, id)
	return m, err
}

func (s *Store) GetMemberByUser(ctx context.Context, agencyID, userID string) (tenant.Member, error) {
	var m tenant.Member
	err := s.get(ctx, &m, "member for user", userID,
		`SELECT `+memberColumns+` FROM agency_members WHERE agency_id = $1 AND user_id = $2`, agencyID, userID)
	return m, err
}

func (s *Store) ListMembers(ctx context.Context, agencyID string) ([]tenant.Member, error) {
	var out []tenant.Member
	err := s.db.SelectContext(ctx, &out,
		`SELECT `+memberColumns+` FROM agency_members WHERE agency_id = $1 ORDER BY created_at, id`, agencyID)
	return out, err
}

func (s *Store) ListMembershipsByUser(ctx context.Context, userID string) ([]tenant.Member, error) {
	var out []tenant.Member
	err := s.db.SelectContext(ctx, &out,
		`SELECT `+memberColumns+` FROM agency_members WHERE user_id = $1 ORDER BY created_at, id`, userID)
	return out, err
}

func (s *Store) DeleteMember(ctx context.Context, agencyID, id string) error {
	return s.delete(ctx, "agency_members", "member", agencyID, id)
}

// --- InviteStore -------------------------------------------------------------

func (s *Store) CreateInvite(ctx context.Context, inv tenant.Invite) (tenant.Invite, error) {
	inv.ID = newID(inv.ID)
	inv.CreatedAt = storage.Now()
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO invites (`+inviteColumns+`)
		VALUES (:id, :agency_id, :email, :role, :client_id, :code_hash, :expires_at,
		        :accepted_at, :accepted_by, :created_by, :created_at)`, inv)
	if err != nil {
		return tenant.Invite{}, err
	}
	return inv, nil
}

func (s *Store) UpdateInvite(ctx context.Context, inv tenant.Invite) (tenant.Invite, error) {
	err := s.exec(ctx, "invite", inv.ID, `
		UPDATE invites
		SET role = :role, client_id = :client_id, expires_at = :expires_at,
		    accepted_at = :accepted_at, accepted_by = :accepted_by
		WHERE agency_id = :agency_id AND id = :id`, inv)
	if err != nil {
		return tenant.Invite{}, err
	}
	return s.GetInvite(ctx, inv.AgencyID, inv.ID)
}

func (s *Store) GetInvite(ctx context.Context, agencyID, id string) (tenant.Invite, error) {
	var inv tenant.Invite
	err := s.get(ctx, &inv, "invite", id,
		`SELECT `+inviteColumns+` FROM invites WHERE agency_id = $1 AND id = $2`, agencyID, id)
	return inv, err
}

func (s *Store) ListInvites(ctx context.Context, agencyID string) ([]tenant.Invite, error) {
	var out []tenant.Invite
	err := s.db.SelectContext(ctx, &out,
		`SELECT `+inviteColumns+` FROM invites WHERE agency_id = $1 ORDER BY created_at, id`, agencyID)
	return out, err
}
