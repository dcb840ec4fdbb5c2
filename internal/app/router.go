// internal/app/router.go
package app

import (
	healthHandler "accessgate-service/internal/handlers/health"
	lockoutHandler "accessgate-service/internal/handlers/lockout"
	sessionHandler "accessgate-service/internal/handlers/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handlers struct {
	HealthHandler  *healthHandler.HealthHandler
	SessionHandler *sessionHandler.SessionHandler
	LockoutHandler *lockoutHandler.LockoutHandler
}

// SetupRouter registers the service's own endpoints. The gateway
// middleware has already run by the time any of these execute, so the
// route groups below mirror the policy table: /api/public is open,
// /api/admin is administrator-only, everything else requires a
// verified identity.
func SetupRouter(r *gin.Engine, logger *zap.Logger, h *Handlers) {
	// ==================== Public ====================
	r.GET("/health", h.HealthHandler.Check)

	public := r.Group("/api/public")
	{
		// Attempt reports come from the sign-in flow before any
		// credential exists, so this lives on the public surface.
		public.POST("/attempts", h.LockoutHandler.Report)
	}

	// ==================== Authenticated ====================
	auth := r.Group("/api/auth")
	{
		auth.GET("/me", h.SessionHandler.Me)
		auth.POST("/signout", h.SessionHandler.SignOut)
	}

	// ==================== Administrator ====================
	admin := r.Group("/api/admin")
	{
		admin.GET("/lockouts/:context/:type/:identifier", h.LockoutHandler.Status)
		admin.DELETE("/lockouts/:context/:type/:identifier", h.LockoutHandler.Reset)
	}
}
