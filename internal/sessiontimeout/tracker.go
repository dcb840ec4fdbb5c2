// internal/sessiontimeout/tracker.go
package sessiontimeout

import (
	"fmt"
	"sync"
	"time"
)

// Status is the derived expiry determination for a last-activity value.
type Status struct {
	Expired       bool
	SinceActivity time.Duration
	// ExpiringSoon is set inside the final warning window before the
	// hard boundary, so callers can surface a client warning.
	ExpiringSoon bool
	// Remaining is the time until the hard boundary; zero when expired.
	Remaining time.Duration
}

// Tracker computes session expiry against a fixed inactivity window.
// A last-activity value exactly at the window edge is NOT yet expired;
// expiry requires strictly more than the window to have elapsed.
//
// Determinations are memoized for a few seconds keyed by
// (identity, last-activity) purely to avoid recomputation within one
// request; the memo must never be relied on across requests.
type Tracker struct {
	window     time.Duration
	warnWindow time.Duration
	memoTTL    time.Duration
	now        func() time.Time

	mu   sync.Mutex
	memo map[string]memoEntry
}

type memoEntry struct {
	status   Status
	storedAt time.Time
}

func NewTracker(window, warnWindow, memoTTL time.Duration) *Tracker {
	return &Tracker{
		window:     window,
		warnWindow: warnWindow,
		memoTTL:    memoTTL,
		now:        time.Now,
		memo:       make(map[string]memoEntry),
	}
}

// CheckTimeout reports whether the identity's session has passed the
// inactivity window.
func (t *Tracker) CheckTimeout(identityKey string, lastActivity time.Time) Status {
	now := t.now()
	key := fmt.Sprintf("%s:%d", identityKey, lastActivity.Unix())

	t.mu.Lock()
	if entry, ok := t.memo[key]; ok && now.Sub(entry.storedAt) < t.memoTTL {
		t.mu.Unlock()
		return entry.status
	}
	t.mu.Unlock()

	since := now.Sub(lastActivity)
	status := Status{SinceActivity: since}
	if since > t.window {
		status.Expired = true
	} else {
		status.Remaining = t.window - since
		status.ExpiringSoon = status.Remaining <= t.warnWindow
	}

	t.mu.Lock()
	t.memo[key] = memoEntry{status: status, storedAt: now}
	// Opportunistic cleanup keeps the memo from accumulating dead keys.
	for k, e := range t.memo {
		if now.Sub(e.storedAt) >= t.memoTTL {
			delete(t.memo, k)
		}
	}
	t.mu.Unlock()

	return status
}

// Window returns the configured inactivity window.
func (t *Tracker) Window() time.Duration {
	return t.window
}
