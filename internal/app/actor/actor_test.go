package actor

import (
	"context"
	"testing"

	"github.com/R3E-Network/agency_layer/internal/app/domain/tenant"
)

func TestContextRoundTrip(t *testing.T) {
	if _, ok := From(context.Background()); ok {
		t.Fatal("empty context should carry no actor")
	}
	m := tenant.Member{ID: "m1", UserID: "u1", Email: "a@b.co", Role: tenant.RoleAdmin}
	ctx := With(context.Background(), FromMember(m))

	a, ok := From(ctx)
	if !ok || a.MemberID != "m1" || a.Role != tenant.RoleAdmin {
		t.Fatalf("unexpected actor %+v", a)
	}
	if a.DisplayName() != "a@b.co" {
		t.Fatalf("display name = %q", a.DisplayName())
	}
	if UserID(ctx) != "u1" {
		t.Fatal("user id shortcut failed")
	}
}
