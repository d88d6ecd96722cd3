package tenant

import (
	"testing"
	"time"
)

func TestRoleOrdering(t *testing.T) {
	cases := []struct {
		role Role
		min  Role
		want bool
	}{
		{RoleOwner, RoleAdmin, true},
		{RoleAdmin, RoleAdmin, true},
		{RoleMember, RoleAdmin, false},
		{RoleClient, RoleMember, false},
		{RoleClient, RoleClient, true},
		{Role("ghost"), RoleClient, false},
	}
	for _, tc := range cases {
		if got := tc.role.AtLeast(tc.min); got != tc.want {
			t.Errorf("%s.AtLeast(%s) = %v, want %v", tc.role, tc.min, got, tc.want)
		}
	}
	if RoleClient.IsStaff() || !RoleMember.IsStaff() {
		t.Fatal("unexpected staff classification")
	}
	if NormalizeRole(" Admin ") != RoleAdmin {
		t.Fatal("normalize failed")
	}
}

func TestInvitePending(t *testing.T) {
	now := time.Now()
	inv := Invite{ExpiresAt: now.Add(time.Hour)}
	if !inv.Pending(now) {
		t.Fatal("expected pending")
	}
	accepted := now
	inv.AcceptedAt = &accepted
	if inv.Pending(now) {
		t.Fatal("accepted invite must not be pending")
	}
	if (Invite{ExpiresAt: now.Add(-time.Minute)}).Pending(now) {
		t.Fatal("expired invite must not be pending")
	}
}
