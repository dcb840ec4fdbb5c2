// internal/handlers/lockout/report_handler.go
package lockout

import (
	"net/http"

	lockoutsvc "accessgate-service/internal/lockout"
	"accessgate-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

// ReportRequest is posted by the sign-in flow after each credential
// check so lockout state accumulates per identifier.
type ReportRequest struct {
	Identifier     string `json:"identifier" binding:"required"`
	IdentifierType string `json:"identifier_type" binding:"required"`
	Context        string `json:"context" binding:"required"`
	Success        bool   `json:"success"`
}

// Report records the outcome of an authentication attempt. A
// successful attempt clears the identifier's counter; a failure
// advances the lockout state machine.
func (h *LockoutHandler) Report(c *gin.Context) {
	var req ReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid attempt report", err)
		return
	}

	lockCtx := lockoutsvc.Context(req.Context)
	switch lockCtx {
	case lockoutsvc.ContextInteractive, lockoutsvc.ContextAPI, lockoutsvc.ContextAdminPanel:
	default:
		response.ValidationError(c, "unknown lockout context", nil)
		return
	}

	idType := lockoutsvc.IdentifierType(req.IdentifierType)
	switch idType {
	case lockoutsvc.IdentifierAccount, lockoutsvc.IdentifierOrigin, lockoutsvc.IdentifierCredential:
	default:
		response.ValidationError(c, "unknown identifier type", nil)
		return
	}

	if req.Success {
		if err := h.manager.RecordSuccess(c.Request.Context(), lockCtx, idType, req.Identifier); err != nil {
			response.Error(c, http.StatusInternalServerError, "failed to clear attempts", err)
			return
		}
		response.Success(c, http.StatusOK, "attempts cleared", gin.H{"locked": false})
		return
	}

	rec, err := h.manager.RecordFailure(c.Request.Context(), lockCtx, idType, req.Identifier)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to record attempt", err)
		return
	}

	response.Success(c, http.StatusOK, "attempt recorded", gin.H{
		"locked":             rec.Locked,
		"count":              rec.Count,
		"lockout_expires_at": rec.LockoutExpiresAt,
	})
}
