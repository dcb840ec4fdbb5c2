// internal/handlers/session/session_handler.go
package session

import (
	"net/http"

	"accessgate-service/internal/audit"
	"accessgate-service/internal/authcache"
	"accessgate-service/internal/middleware"
	"accessgate-service/internal/pkg/response"
	"accessgate-service/internal/verifier"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type SessionHandler struct {
	cache    *authcache.Cache
	verifier verifier.Strategy
	recorder *audit.Recorder
	logger   *zap.Logger
}

func NewSessionHandler(cache *authcache.Cache, v verifier.Strategy, recorder *audit.Recorder, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		cache:    cache,
		verifier: v,
		recorder: recorder,
		logger:   logger,
	}
}

// Me returns the caller's cached authorization attributes.
func (h *SessionHandler) Me(c *gin.Context) {
	data, ok := middleware.GetAuthData(c)
	if !ok {
		response.Unauthorized(c, "not authenticated")
		return
	}
	response.Success(c, http.StatusOK, "current identity", data)
}

// SignOut invalidates the caller's cached state. Invalidation is
// fire-and-forget relative to the sign-out itself: a cache cleanup
// failure is logged, never surfaced.
func (h *SessionHandler) SignOut(c *gin.Context) {
	subjectID, ok := middleware.GetSubjectID(c)
	if !ok {
		response.Unauthorized(c, "not authenticated")
		return
	}

	if err := h.cache.Invalidate(c.Request.Context(), subjectID); err != nil {
		h.logger.Warn("cache invalidation on sign-out failed",
			zap.String("subject", subjectID), zap.Error(err))
	}
	if token, ok := middleware.GetBearerToken(c); ok {
		h.verifier.Forget(token)
	}

	h.recorder.Record(audit.Event{
		Type:        audit.EventSignOut,
		Severity:    audit.SeverityInfo,
		IdentityKey: subjectID,
		Endpoint:    c.Request.URL.Path,
		Reason:      "user-sign-out",
	})

	response.Success(c, http.StatusOK, "signed out", nil)
}
