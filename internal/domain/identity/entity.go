// internal/domain/identity/entity.go
package identity

import (
	"strings"
	"time"
)

// Role is the closed set of roles an identity can carry.
// Anything outside the set parses to RoleUnknown, which is never
// authorized for protected routes.
type Role string

const (
	RoleUnknown     Role = ""
	RoleAdmin       Role = "admin"
	RoleStaff       Role = "staff"
	RoleTenantStaff Role = "tenant_staff"
	RoleEndUser     Role = "end_user"
)

// ParseRole maps a raw stored role string into the closed enumeration.
// Unrecognized values return (RoleUnknown, false), never a privileged
// default.
func ParseRole(raw string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "admin", "administrator", "super_admin":
		return RoleAdmin, true
	case "staff":
		return RoleStaff, true
	case "tenant_staff", "tenant-staff":
		return RoleTenantStaff, true
	case "end_user", "enduser", "member", "student":
		return RoleEndUser, true
	default:
		return RoleUnknown, false
	}
}

// IsTenantScoped reports whether the role requires a tenant ID.
func (r Role) IsTenantScoped() bool {
	return r == RoleTenantStaff || r == RoleEndUser
}

// Source tags where a set of claims was derived from, so callers can
// distinguish confidence levels.
type Source string

const (
	SourceCache             Source = "cache"
	SourceLocalVerification Source = "local-verification"
	SourceAuthorityFallback Source = "authority-fallback"
)

// EndUserAttributes carries the tier/level fields that only apply to
// the end-user role.
type EndUserAttributes struct {
	Tier   string `json:"tier,omitempty"`
	Level  int    `json:"level,omitempty"`
	Active bool   `json:"active"`
}

// Claims are the verified attributes derived from a credential.
type Claims struct {
	SubjectID string             `json:"subject_id"`
	Role      Role               `json:"role"`
	TenantID  string             `json:"tenant_id,omitempty"`
	Active    bool               `json:"active"`
	IssuedAt  time.Time          `json:"issued_at"`
	ExpiresAt time.Time          `json:"expires_at"`
	EndUser   *EndUserAttributes `json:"end_user,omitempty"`
}

// Usable reports whether the claims can back an authorization decision:
// a subject, a recognized role, and a future expiry.
func (c *Claims) Usable(now time.Time) bool {
	if c == nil || c.SubjectID == "" || c.Role == RoleUnknown {
		return false
	}
	return c.ExpiresAt.After(now)
}

// VerificationResult is the outcome of verifying a bearer token.
// When Valid is false, Claims is always nil.
type VerificationResult struct {
	Valid  bool    `json:"valid"`
	Claims *Claims `json:"claims,omitempty"`
	Source Source  `json:"source,omitempty"`
}

// AuthData is the cached authorization view of an identity, populated
// from the primary store and kept in the distributed cache.
type AuthData struct {
	SubjectID string             `json:"subject_id"`
	Role      Role               `json:"role"`
	TenantID  string             `json:"tenant_id,omitempty"`
	Active    bool               `json:"active"`
	EndUser   *EndUserAttributes `json:"end_user,omitempty"`
	CachedAt  time.Time          `json:"cached_at"`
}

// EndUserRecord is the primary-store row for an end-user identity.
type EndUserRecord struct {
	SubjectID string
	TenantID  string
	Active    bool
	Tier      string
	Level     int
}

// StaffRecord is the primary-store row for a staff-profile identity.
type StaffRecord struct {
	SubjectID string
	Role      string
	TenantID  string
	Active    bool
}
