// internal/routepolicy/classifier.go
package routepolicy

import (
	"strings"
	"sync"
	"time"
)

// Category is a route class, listed in evaluation precedence order.
type Category int

const (
	CategoryPublic Category = iota
	CategoryEndUserApp
	CategoryEndUserAPI
	CategoryAdminOnly
	CategoryAdminOrStaff
	CategoryProtected
)

func (c Category) String() string {
	switch c {
	case CategoryPublic:
		return "public"
	case CategoryEndUserApp:
		return "end-user-app"
	case CategoryEndUserAPI:
		return "end-user-api"
	case CategoryAdminOnly:
		return "admin-only"
	case CategoryAdminOrStaff:
		return "admin-or-staff"
	default:
		return "protected"
	}
}

// IsAPI reports whether denials on this category get a JSON body
// instead of a redirect.
func (c Category) IsAPI() bool {
	return c == CategoryEndUserAPI
}

// RuleGroup binds a category to the path patterns that select it.
//
// Patterns match by exact prefix: "/admin" covers "/admin" and
// everything below it. A "*" segment matches exactly one path segment.
// The root pattern "/" matches only the root itself.
type RuleGroup struct {
	Category Category
	Patterns []string
}

// DefaultRuleGroups is the ordered policy table: most specific and most
// restrictive groups first. The first matching group wins; unmatched
// paths fall into the default CategoryProtected.
func DefaultRuleGroups() []RuleGroup {
	return []RuleGroup{
		{Category: CategoryPublic, Patterns: []string{
			"/", "/login", "/admin/login", "/signup", "/health",
			"/static", "/favicon.ico", "/api/public",
		}},
		{Category: CategoryEndUserAPI, Patterns: []string{"/api/app"}},
		{Category: CategoryEndUserApp, Patterns: []string{"/app"}},
		{Category: CategoryAdminOnly, Patterns: []string{"/admin", "/api/admin"}},
		{Category: CategoryAdminOrStaff, Patterns: []string{"/staff", "/api/staff"}},
	}
}

// Classifier matches request paths against the ordered rule groups.
// Compiled patterns are cached; entries idle past the eviction window
// are dropped by the periodic task.
type Classifier struct {
	groups []RuleGroup

	mu       sync.Mutex
	compiled map[string]*compiledPattern
}

type compiledPattern struct {
	segments []string
	lastUsed time.Time
}

func NewClassifier(groups []RuleGroup) *Classifier {
	return &Classifier{
		groups:   groups,
		compiled: make(map[string]*compiledPattern),
	}
}

// Classify returns the category of the first matching rule group.
func (c *Classifier) Classify(path string) Category {
	for _, group := range c.groups {
		for _, pattern := range group.Patterns {
			if c.match(pattern, path) {
				return group.Category
			}
		}
	}
	return CategoryProtected
}

// EvictIdlePatterns drops compiled patterns unused since the cutoff and
// returns how many were removed.
func (c *Classifier) EvictIdlePatterns(olderThan time.Duration) int {
	cutoff := time.Now().Add(-olderThan)

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for pattern, cp := range c.compiled {
		if cp.lastUsed.Before(cutoff) {
			delete(c.compiled, pattern)
			removed++
		}
	}
	return removed
}

func (c *Classifier) match(pattern, path string) bool {
	cp := c.compile(pattern)
	pathSegments := splitPath(path)

	// Root pattern matches only the root path.
	if len(cp.segments) == 0 {
		return len(pathSegments) == 0
	}

	if len(pathSegments) < len(cp.segments) {
		return false
	}

	for i, seg := range cp.segments {
		if seg == "*" {
			continue // wildcard matches exactly one segment
		}
		if pathSegments[i] != seg {
			return false
		}
	}
	return true
}

func (c *Classifier) compile(pattern string) *compiledPattern {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cp, ok := c.compiled[pattern]; ok {
		cp.lastUsed = time.Now()
		return cp
	}

	cp := &compiledPattern{
		segments: splitPath(pattern),
		lastUsed: time.Now(),
	}
	c.compiled[pattern] = cp
	return cp
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}
