// internal/verifier/cache.go
package verifier

import (
	"sync"
	"time"

	"accessgate-service/internal/domain/identity"
)

// tokenExpiryMargin keeps a cache entry from outliving its token.
const tokenExpiryMargin = 30 * time.Second

type cacheEntry struct {
	claims    *identity.Claims
	source    identity.Source
	cachedAt  time.Time
	expiresAt time.Time
}

// resultCache remembers successful verifications keyed by the raw token
// value. Entries expire at min(token expiry - 30s, fixed TTL) and the
// cache is size-bounded with oldest-first eviction.
type resultCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	maxSize int
	ttl     time.Duration
}

func newResultCache(maxSize int, ttl time.Duration) *resultCache {
	return &resultCache{
		entries: make(map[string]*cacheEntry),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

func (c *resultCache) get(token string, now time.Time) (*identity.Claims, identity.Source, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[token]
	if !ok {
		return nil, "", false
	}
	if !now.Before(entry.expiresAt) {
		delete(c.entries, token)
		return nil, "", false
	}

	return entry.claims, entry.source, true
}

func (c *resultCache) put(token string, claims *identity.Claims, source identity.Source, now time.Time) {
	expiresAt := now.Add(c.ttl)
	if tokenBound := claims.ExpiresAt.Add(-tokenExpiryMargin); tokenBound.Before(expiresAt) {
		expiresAt = tokenBound
	}
	if !expiresAt.After(now) {
		return // nothing worth caching
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[token] = &cacheEntry{
		claims:    claims,
		source:    source,
		cachedAt:  now,
		expiresAt: expiresAt,
	}

	for len(c.entries) > c.maxSize {
		c.evictOldestLocked()
	}
}

func (c *resultCache) forget(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, token)
}

// sweep removes expired entries and returns how many were dropped.
func (c *resultCache) sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for token, entry := range c.entries {
		if !now.Before(entry.expiresAt) {
			delete(c.entries, token)
			removed++
		}
	}
	return removed
}

func (c *resultCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *resultCache) evictOldestLocked() {
	var oldestToken string
	var oldestAt time.Time
	for token, entry := range c.entries {
		if oldestToken == "" || entry.cachedAt.Before(oldestAt) {
			oldestToken = token
			oldestAt = entry.cachedAt
		}
	}
	if oldestToken != "" {
		delete(c.entries, oldestToken)
	}
}
