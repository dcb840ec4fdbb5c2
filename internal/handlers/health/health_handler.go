// internal/handlers/health/health_handler.go
package health

import (
	"net/http"

	"accessgate-service/internal/authcache"
	"accessgate-service/internal/verifier"

	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	cache    *authcache.Cache
	verifier *verifier.Service
}

func NewHealthHandler(cache *authcache.Cache, v *verifier.Service) *HealthHandler {
	return &HealthHandler{cache: cache, verifier: v}
}

// Check reports liveness plus the degradation counters: how often reads
// bypassed an unreachable distributed cache, and the token-cache size.
func (h *HealthHandler) Check(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":             "ok",
		"cache_healthy":      h.cache.Healthy(c.Request.Context()),
		"cache_fallthroughs": h.cache.Fallthroughs(),
		"token_cache_size":   h.verifier.CachedResults(),
	})
}
