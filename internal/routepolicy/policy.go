// internal/routepolicy/policy.go
package routepolicy

import (
	"time"

	"accessgate-service/internal/domain/identity"
)

// Decision is the outcome of an access check. Reason is a
// machine-readable code for audit logging, never shown to the caller.
type Decision struct {
	Allowed  bool
	Category Category
	Reason   string
}

// Deny reason codes.
const (
	ReasonNoClaims        = "no-claims"
	ReasonRoleUnknown     = "role-unknown"
	ReasonAdminOnly       = "admin-only"
	ReasonAdminOrStaff    = "admin-or-staff-only"
	ReasonEndUserOnly     = "end-user-only"
	ReasonEndUserInactive = "end-user-inactive"
)

// Policy decides whether an identity's attributes grant access to a
// route category. Classification and decision are pure functions of
// their inputs.
type Policy struct {
	classifier *Classifier
}

func NewPolicy(classifier *Classifier) *Policy {
	return &Policy{classifier: classifier}
}

func (p *Policy) Classify(path string) Category {
	return p.classifier.Classify(path)
}

func (p *Policy) EvictIdlePatterns(olderThan time.Duration) int {
	return p.classifier.EvictIdlePatterns(olderThan)
}

// CheckAccess classifies the path and decides access for the given
// attributes. Unmatched paths default to allowed: the rule table is an
// allow-list of sensitive prefixes, not a deny-list.
func (p *Policy) CheckAccess(path string, data *identity.AuthData) Decision {
	category := p.classifier.Classify(path)
	return p.Decide(category, data)
}

// Decide applies the access rules for an already-classified category.
func (p *Policy) Decide(category Category, data *identity.AuthData) Decision {
	if category == CategoryPublic {
		return Decision{Allowed: true, Category: category}
	}

	if data == nil {
		return Decision{Allowed: false, Category: category, Reason: ReasonNoClaims}
	}
	if data.Role == identity.RoleUnknown {
		return Decision{Allowed: false, Category: category, Reason: ReasonRoleUnknown}
	}

	switch category {
	case CategoryEndUserApp, CategoryEndUserAPI:
		if data.Role != identity.RoleEndUser {
			return Decision{Allowed: false, Category: category, Reason: ReasonEndUserOnly}
		}
		if data.EndUser == nil || !data.EndUser.Active {
			return Decision{Allowed: false, Category: category, Reason: ReasonEndUserInactive}
		}
		return Decision{Allowed: true, Category: category}

	case CategoryAdminOnly:
		if data.Role != identity.RoleAdmin {
			return Decision{Allowed: false, Category: category, Reason: ReasonAdminOnly}
		}
		return Decision{Allowed: true, Category: category}

	case CategoryAdminOrStaff:
		if data.Role != identity.RoleAdmin && data.Role != identity.RoleStaff {
			return Decision{Allowed: false, Category: category, Reason: ReasonAdminOrStaff}
		}
		return Decision{Allowed: true, Category: category}

	default:
		// CategoryProtected is default-allow: the rule table is an
		// allow-list of sensitive prefixes, so an unclassified path
		// admits any authenticated identity with a recognized role.
		return Decision{Allowed: true, Category: category}
	}
}
