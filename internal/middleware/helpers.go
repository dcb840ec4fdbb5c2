// internal/middleware/helpers.go
package middleware

import (
	"accessgate-service/internal/domain/identity"

	"github.com/gin-gonic/gin"
)

// Context keys set by the gateway after a request is allowed through.
const (
	ctxSubjectID   = "subject_id"
	ctxRole        = "role"
	ctxTenantID    = "tenant_id"
	ctxAuthData    = "auth_data"
	ctxAuthSource  = "auth_source"
	ctxBearerToken = "bearer_token"
)

// GetSubjectID gets the authenticated identity key from context.
func GetSubjectID(c *gin.Context) (string, bool) {
	v, exists := c.Get(ctxSubjectID)
	if !exists {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}

// GetRole gets the authenticated identity's role from context.
func GetRole(c *gin.Context) (identity.Role, bool) {
	v, exists := c.Get(ctxRole)
	if !exists {
		return identity.RoleUnknown, false
	}
	role, ok := v.(identity.Role)
	return role, ok
}

// GetTenantID gets the tenant scope from context, empty for
// tenant-unscoped roles.
func GetTenantID(c *gin.Context) string {
	v, exists := c.Get(ctxTenantID)
	if !exists {
		return ""
	}
	tenant, _ := v.(string)
	return tenant
}

// GetAuthData gets the full cached authorization attributes.
func GetAuthData(c *gin.Context) (*identity.AuthData, bool) {
	v, exists := c.Get(ctxAuthData)
	if !exists {
		return nil, false
	}
	data, ok := v.(*identity.AuthData)
	return data, ok
}

// GetAuthSource reports which path produced the identity claims.
func GetAuthSource(c *gin.Context) identity.Source {
	v, exists := c.Get(ctxAuthSource)
	if !exists {
		return ""
	}
	source, _ := v.(identity.Source)
	return source
}

// GetBearerToken gets the raw presented token, used by sign-out to
// drop the verifier's cached result.
func GetBearerToken(c *gin.Context) (string, bool) {
	v, exists := c.Get(ctxBearerToken)
	if !exists {
		return "", false
	}
	token, ok := v.(string)
	return token, ok
}

// IsAuthenticated checks if the gateway attached an identity.
func IsAuthenticated(c *gin.Context) bool {
	_, exists := c.Get(ctxSubjectID)
	return exists
}

// IsAdmin checks if the request carries the administrator role.
func IsAdmin(c *gin.Context) bool {
	role, ok := GetRole(c)
	return ok && role == identity.RoleAdmin
}
