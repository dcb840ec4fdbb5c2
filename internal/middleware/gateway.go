// internal/middleware/gateway.go
package middleware

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"accessgate-service/internal/audit"
	"accessgate-service/internal/authcache"
	"accessgate-service/internal/lockout"
	xerrors "accessgate-service/internal/pkg/errors"
	"accessgate-service/internal/pkg/response"
	"accessgate-service/internal/routepolicy"
	"accessgate-service/internal/sessiontimeout"
	"accessgate-service/internal/verifier"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Config holds the gateway's request-shape and redirect policy.
type Config struct {
	BearerCookie   string
	ActivityHeader string
	ActivityCookie string
	LoginPath      string
	AdminLoginPath string
}

// Gateway composes the per-request decision pipeline:
// classify -> authenticate -> check timeout -> load auth data ->
// check access -> forward; any failing stage redirects or denies, and
// every terminal branch other than forward emits one audit event.
type Gateway struct {
	verifier verifier.Strategy
	cache    *authcache.Cache
	policy   *routepolicy.Policy
	timeouts *sessiontimeout.Tracker
	lockouts *lockout.Manager
	recorder *audit.Recorder
	logger   *zap.Logger
	cfg      Config
}

func NewGateway(
	v verifier.Strategy,
	cache *authcache.Cache,
	policy *routepolicy.Policy,
	timeouts *sessiontimeout.Tracker,
	lockouts *lockout.Manager,
	recorder *audit.Recorder,
	logger *zap.Logger,
	cfg Config,
) *Gateway {
	return &Gateway{
		verifier: v,
		cache:    cache,
		policy:   policy,
		timeouts: timeouts,
		lockouts: lockouts,
		recorder: recorder,
		logger:   logger.Named("gateway"),
		cfg:      cfg,
	}
}

// Handle is the gateway middleware. Public routes short-circuit before
// any credential work; the primary-store fallback runs last.
func (g *Gateway) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path

		category := g.policy.Classify(path)
		if category == routepolicy.CategoryPublic {
			c.Next()
			return
		}

		origin := c.ClientIP()
		lockCtx := lockoutContextFor(category, path)

		locked, err := g.lockouts.IsLocked(c.Request.Context(), lockCtx, lockout.IdentifierOrigin, origin)
		if err != nil {
			g.logger.Warn("lockout check failed", zap.Error(err))
		}
		if locked {
			g.recorder.Record(audit.Event{
				Type:     audit.EventAccessDenied,
				Severity: audit.SeverityWarning,
				Endpoint: path,
				Reason:   "identifier-locked",
			})
			response.APIError(c, http.StatusTooManyRequests, "too many requests")
			return
		}

		token := extractToken(c, g.cfg.BearerCookie)
		if token == "" {
			g.recorder.Record(audit.Event{
				Type:     audit.EventAuthFailure,
				Severity: audit.SeverityInfo,
				Endpoint: path,
				Reason:   "missing-credential",
			})
			g.deny(c, category, http.StatusUnauthorized, false)
			return
		}

		result, err := g.verifier.Verify(c.Request.Context(), token)
		if err != nil || !result.Valid {
			if _, recErr := g.lockouts.RecordFailure(c.Request.Context(), lockCtx, lockout.IdentifierOrigin, origin); recErr != nil {
				g.logger.Warn("failed to record attempt", zap.Error(recErr))
			}
			g.recorder.Record(audit.Event{
				Type:     audit.EventAuthFailure,
				Severity: audit.SeverityWarning,
				Endpoint: path,
				Reason:   "invalid-credential",
			})
			g.deny(c, category, http.StatusUnauthorized, false)
			return
		}
		claims := result.Claims

		if lastActivity, ok := g.lastActivity(c); ok {
			status := g.timeouts.CheckTimeout(claims.SubjectID, lastActivity)
			if status.Expired {
				// Hard boundary: drop cached state and force
				// re-authentication. Cleanup failures must not block the
				// denial itself.
				if invErr := g.cache.Invalidate(c.Request.Context(), claims.SubjectID); invErr != nil {
					g.logger.Warn("cache invalidation on timeout failed", zap.Error(invErr))
				}
				g.verifier.Forget(token)
				g.recorder.Record(audit.Event{
					Type:        audit.EventSessionExpired,
					Severity:    audit.SeverityInfo,
					IdentityKey: claims.SubjectID,
					Endpoint:    path,
					Reason:      "inactivity-window-exceeded",
				})
				g.deny(c, category, http.StatusUnauthorized, true)
				return
			}
			if status.ExpiringSoon {
				c.Header("X-Session-Expires-In", strconv.Itoa(int(status.Remaining.Seconds())))
			}
		}

		data, err := g.cache.GetAuthData(c.Request.Context(), claims.SubjectID)
		if err != nil {
			if xerrors.Is(err, xerrors.ErrNotFound) {
				g.recorder.Record(audit.Event{
					Type:        audit.EventAuthFailure,
					Severity:    audit.SeverityWarning,
					IdentityKey: claims.SubjectID,
					Endpoint:    path,
					Reason:      "auth-data-absent",
				})
				g.deny(c, category, http.StatusUnauthorized, false)
				return
			}
			g.recorder.Record(audit.Event{
				Type:        audit.EventInternalError,
				Severity:    audit.SeverityCritical,
				IdentityKey: claims.SubjectID,
				Endpoint:    path,
				Reason:      "primary-store-unavailable",
			})
			response.APIError(c, http.StatusInternalServerError, "internal error")
			return
		}

		decision := g.policy.Decide(category, data)
		if !decision.Allowed {
			g.recorder.Record(audit.Event{
				Type:        audit.EventAccessDenied,
				Severity:    audit.SeverityWarning,
				IdentityKey: claims.SubjectID,
				Endpoint:    path,
				Reason:      decision.Reason,
			})
			g.deny(c, category, http.StatusForbidden, false)
			return
		}

		c.Set(ctxSubjectID, claims.SubjectID)
		c.Set(ctxRole, data.Role)
		c.Set(ctxTenantID, data.TenantID)
		c.Set(ctxAuthData, data)
		c.Set(ctxAuthSource, result.Source)
		c.Set(ctxBearerToken, token)
		c.Next()
	}
}

// deny closes the request: JSON for API-style routes, a redirect to the
// category's login destination otherwise. Messages stay generic; the
// audit log already carries the internal distinction.
func (g *Gateway) deny(c *gin.Context, category routepolicy.Category, status int, sessionExpired bool) {
	path := c.Request.URL.Path

	if category.IsAPI() || strings.HasPrefix(path, "/api/") {
		switch status {
		case http.StatusUnauthorized:
			response.APIError(c, status, "unauthorized")
		case http.StatusForbidden:
			response.APIError(c, status, "forbidden")
		default:
			response.APIError(c, status, "request denied")
		}
		return
	}

	target := g.cfg.LoginPath
	if category == routepolicy.CategoryAdminOnly || category == routepolicy.CategoryAdminOrStaff {
		target = g.cfg.AdminLoginPath
	}

	query := url.Values{}
	query.Set("redirectedFrom", path)
	if sessionExpired {
		query.Set("sessionExpired", "true")
	}

	c.Redirect(http.StatusFound, target+"?"+query.Encode())
	c.Abort()
}

// lastActivity reads the optional last-activity signal from the request
// (header first, then cookie) as unix seconds or RFC 3339.
func (g *Gateway) lastActivity(c *gin.Context) (time.Time, bool) {
	raw := c.GetHeader(g.cfg.ActivityHeader)
	if raw == "" {
		if cookie, err := c.Cookie(g.cfg.ActivityCookie); err == nil {
			raw = cookie
		}
	}
	if raw == "" {
		return time.Time{}, false
	}

	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(secs, 0), true
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts, true
	}

	g.logger.Debug("unparseable last-activity signal", zap.String("raw", raw))
	return time.Time{}, false
}

// lockoutContextFor maps a route category to the lockout policy context.
func lockoutContextFor(category routepolicy.Category, path string) lockout.Context {
	switch {
	case category == routepolicy.CategoryAdminOnly || category == routepolicy.CategoryAdminOrStaff:
		return lockout.ContextAdminPanel
	case category.IsAPI() || strings.HasPrefix(path, "/api/"):
		return lockout.ContextAPI
	default:
		return lockout.ContextInteractive
	}
}

// extractToken pulls the bearer token from the Authorization header or
// the named cookie.
func extractToken(c *gin.Context, cookieName string) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}

	if cookieName != "" {
		if token, err := c.Cookie(cookieName); err == nil && token != "" {
			return token
		}
	}

	return ""
}
