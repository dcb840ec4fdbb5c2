package identity

import (
	"testing"
	"time"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		raw  string
		want Role
		ok   bool
	}{
		{"admin", RoleAdmin, true},
		{"Administrator", RoleAdmin, true},
		{"SUPER_ADMIN", RoleAdmin, true},
		{"staff", RoleStaff, true},
		{"tenant_staff", RoleTenantStaff, true},
		{"tenant-staff", RoleTenantStaff, true},
		{"end_user", RoleEndUser, true},
		{"member", RoleEndUser, true},
		{"  student  ", RoleEndUser, true},
		{"", RoleUnknown, false},
		{"root", RoleUnknown, false},
		{"superuser", RoleUnknown, false},
	}

	for _, tt := range tests {
		got, ok := ParseRole(tt.raw)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseRole(%q) = (%q, %v), want (%q, %v)", tt.raw, got, ok, tt.want, tt.ok)
		}
	}
}

func TestClaimsUsable(t *testing.T) {
	now := time.Now()
	valid := &Claims{SubjectID: "user-1", Role: RoleEndUser, ExpiresAt: now.Add(time.Hour)}

	if !valid.Usable(now) {
		t.Error("complete claims reported unusable")
	}
	if (&Claims{Role: RoleEndUser, ExpiresAt: now.Add(time.Hour)}).Usable(now) {
		t.Error("claims without a subject reported usable")
	}
	if (&Claims{SubjectID: "user-1", ExpiresAt: now.Add(time.Hour)}).Usable(now) {
		t.Error("claims with an unrecognized role reported usable")
	}
	if (&Claims{SubjectID: "user-1", Role: RoleEndUser, ExpiresAt: now.Add(-time.Second)}).Usable(now) {
		t.Error("expired claims reported usable")
	}
	var nilClaims *Claims
	if nilClaims.Usable(now) {
		t.Error("nil claims reported usable")
	}
}
