// internal/lockout/types.go
package lockout

import "time"

// Context distinguishes the surface the failed attempts came through.
// Each context carries its own thresholds; the admin panel is strictest.
type Context string

const (
	ContextInteractive Context = "interactive"
	ContextAPI         Context = "api"
	ContextAdminPanel  Context = "admin_panel"
)

// IdentifierType says what kind of identifier is being tracked.
type IdentifierType string

const (
	IdentifierAccount    IdentifierType = "account"
	IdentifierOrigin     IdentifierType = "origin"
	IdentifierCredential IdentifierType = "credential"
)

// Record is the attempt state for one tracked identifier.
type Record struct {
	Identifier       string         `json:"identifier"`
	Type             IdentifierType `json:"type"`
	Context          Context        `json:"context"`
	Count            int            `json:"count"`
	FirstAttemptAt   time.Time      `json:"first_attempt_at"`
	LastAttemptAt    time.Time      `json:"last_attempt_at"`
	LockoutCount     int            `json:"lockout_count"`
	Locked           bool           `json:"locked"`
	LockoutExpiresAt time.Time      `json:"lockout_expires_at,omitempty"`
}

// Policy is the per-context threshold configuration.
type Policy struct {
	MaxAttempts int
	Window      time.Duration
	BaseLockout time.Duration
}

// maxLockout caps the progressive penalty so a shared identifier can
// never be denied permanently.
const maxLockout = 24 * time.Hour

// progressiveFactor bounds how far repeat offenses scale the duration.
const progressiveFactor = 10

// lockoutDuration scales the base duration with the cumulative lockout
// count, capped at maxLockout.
func (p Policy) lockoutDuration(lockoutCount int) time.Duration {
	factor := lockoutCount
	if factor < 1 {
		factor = 1
	}
	if factor > progressiveFactor {
		factor = progressiveFactor
	}
	d := p.BaseLockout * time.Duration(factor)
	if d > maxLockout {
		d = maxLockout
	}
	return d
}
