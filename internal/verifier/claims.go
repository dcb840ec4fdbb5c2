// internal/verifier/claims.go
package verifier

import (
	"accessgate-service/internal/domain/identity"

	"github.com/golang-jwt/jwt/v5"
)

// tokenClaims is the wire shape of the authority's JWT payload.
type tokenClaims struct {
	Role     string         `json:"role"`
	TenantID string         `json:"tenant_id,omitempty"`
	Active   bool           `json:"active"`
	EndUser  *endUserClaims `json:"end_user,omitempty"`
	jwt.RegisteredClaims
}

type endUserClaims struct {
	Tier   string `json:"tier,omitempty"`
	Level  int    `json:"level,omitempty"`
	Active bool   `json:"active"`
}

// toIdentity maps raw token claims into the closed claim enumeration.
// An unrecognized role stays RoleUnknown, never a privileged default.
func (tc *tokenClaims) toIdentity() *identity.Claims {
	role, _ := identity.ParseRole(tc.Role)

	claims := &identity.Claims{
		SubjectID: tc.Subject,
		Role:      role,
		TenantID:  tc.TenantID,
		Active:    tc.Active,
	}
	if tc.IssuedAt != nil {
		claims.IssuedAt = tc.IssuedAt.Time
	}
	if tc.ExpiresAt != nil {
		claims.ExpiresAt = tc.ExpiresAt.Time
	}
	if tc.EndUser != nil {
		claims.EndUser = &identity.EndUserAttributes{
			Tier:   tc.EndUser.Tier,
			Level:  tc.EndUser.Level,
			Active: tc.EndUser.Active,
		}
	}

	return claims
}

// hasAudience checks if the expected audience is listed in the claims.
func (tc *tokenClaims) hasAudience(audience string) bool {
	for _, aud := range tc.Audience {
		if aud == audience {
			return true
		}
	}
	return false
}
