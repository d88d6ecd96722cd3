// Package actor carries the authenticated caller through request contexts.
package actor

import (
	"context"

	"github.com/R3E-Network/agency_layer/internal/app/domain/tenant"
)

type ctxKey struct{}

// Actor is the caller of a service operation. Role, MemberID and ClientID
// are only set once the caller's membership in an agency was resolved.
type Actor struct {
	UserID   string
	Email    string
	Name     string
	MemberID string
	Role     tenant.Role
	ClientID string
}

// FromMember builds the actor for a resolved membership.
func FromMember(m tenant.Member) Actor {
	return Actor{
		UserID:   m.UserID,
		Email:    m.Email,
		Name:     m.Name,
		MemberID: m.ID,
		Role:     m.Role,
		ClientID: m.ClientID,
	}
}

// DisplayName prefers the member name, then the email, then the user ID.
func (a Actor) DisplayName() string {
	switch {
	case a.Name != "":
		return a.Name
	case a.Email != "":
		return a.Email
	default:
		return a.UserID
	}
}

// With returns a context carrying a.
func With(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

// From returns the actor stored in ctx.
func From(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(ctxKey{}).(Actor)
	return a, ok && a.UserID != ""
}

// UserID is a shortcut for From(ctx).UserID.
func UserID(ctx context.Context) string {
	a, _ := From(ctx)
	return a.UserID
}
