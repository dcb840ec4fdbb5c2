// internal/handlers/lockout/lockout_handler.go
package lockout

import (
	"net/http"

	lockoutsvc "accessgate-service/internal/lockout"
	"accessgate-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

type LockoutHandler struct {
	manager *lockoutsvc.Manager
}

func NewLockoutHandler(manager *lockoutsvc.Manager) *LockoutHandler {
	return &LockoutHandler{manager: manager}
}

// Status reports the attempt record for one tracked identifier.
// Routed admin-only.
func (h *LockoutHandler) Status(c *gin.Context) {
	lockCtx, idType, identifier, ok := h.params(c)
	if !ok {
		return
	}

	rec, err := h.manager.Status(c.Request.Context(), lockCtx, idType, identifier)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to read attempt record", err)
		return
	}
	if rec == nil {
		response.Success(c, http.StatusOK, "identifier is clean", gin.H{"locked": false})
		return
	}

	response.Success(c, http.StatusOK, "attempt record", rec)
}

// Reset is the privileged override that clears an identifier's attempt
// state entirely.
func (h *LockoutHandler) Reset(c *gin.Context) {
	lockCtx, idType, identifier, ok := h.params(c)
	if !ok {
		return
	}

	if err := h.manager.ResetAttempts(c.Request.Context(), lockCtx, idType, identifier); err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to reset attempts", err)
		return
	}

	response.Success(c, http.StatusOK, "attempts reset", nil)
}

func (h *LockoutHandler) params(c *gin.Context) (lockoutsvc.Context, lockoutsvc.IdentifierType, string, bool) {
	lockCtx := lockoutsvc.Context(c.Param("context"))
	switch lockCtx {
	case lockoutsvc.ContextInteractive, lockoutsvc.ContextAPI, lockoutsvc.ContextAdminPanel:
	default:
		response.ValidationError(c, "unknown lockout context", nil)
		return "", "", "", false
	}

	idType := lockoutsvc.IdentifierType(c.Param("type"))
	switch idType {
	case lockoutsvc.IdentifierAccount, lockoutsvc.IdentifierOrigin, lockoutsvc.IdentifierCredential:
	default:
		response.ValidationError(c, "unknown identifier type", nil)
		return "", "", "", false
	}

	identifier := c.Param("identifier")
	if identifier == "" {
		response.ValidationError(c, "identifier is required", nil)
		return "", "", "", false
	}

	return lockCtx, idType, identifier, true
}
