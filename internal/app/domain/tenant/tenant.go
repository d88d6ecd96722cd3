// Package tenant holds agency (tenant) and membership models.
package tenant

import (
	"strings"
	"time"
)

// Agency is the tenant boundary. Every business record carries its ID.
type Agency struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	OwnerID   string    `json:"owner_id" db:"owner_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Role is a member's permission level inside an agency.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleClient Role = "client"
)

var roleRank = map[Role]int{
	RoleClient: 1,
	RoleMember: 2,
	RoleAdmin:  3,
	RoleOwner:  4,
}

// NormalizeRole lower-cases and trims a role string.
func NormalizeRole(raw string) Role {
	return Role(strings.ToLower(strings.TrimSpace(raw)))
}

func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// IsStaff reports whether the role belongs to agency staff rather than a client.
func (r Role) IsStaff() bool {
	return r == RoleMember || r == RoleAdmin || r == RoleOwner
}

// AtLeast reports whether r grants at least the permissions of min.
func (r Role) AtLeast(min Role) bool {
	return roleRank[r] >= roleRank[min] && roleRank[r] > 0
}

// Member binds an authenticated user to an agency.
type Member struct {
	ID        string    `json:"id" db:"id"`
	AgencyID  string    `json:"agency_id" db:"agency_id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Email     string    `json:"email" db:"email"`
	Name      string    `json:"name" db:"name"`
	Role      Role      `json:"role" db:"role"`
	ClientID  string    `json:"client_id,omitempty" db:"client_id"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Invite is a pending membership. CodeHash is never serialized.
type Invite struct {
	ID         string     `json:"id" db:"id"`
	AgencyID   string     `json:"agency_id" db:"agency_id"`
	Email      string     `json:"email" db:"email"`
	Role       Role       `json:"role" db:"role"`
	ClientID   string     `json:"client_id,omitempty" db:"client_id"`
	CodeHash   string     `json:"-" db:"code_hash"`
	ExpiresAt  time.Time  `json:"expires_at" db:"expires_at"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty" db:"accepted_at"`
	AcceptedBy string     `json:"accepted_by,omitempty" db:"accepted_by"`
	CreatedBy  string     `json:"created_by" db:"created_by"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// Pending reports whether the invite can still be accepted at now.
func (i Invite) Pending(now time.Time) bool {
	return i.AcceptedAt == nil && now.Before(i.ExpiresAt)
}
