// internal/authcache/cache.go
package authcache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"accessgate-service/internal/domain/identity"
	xerrors "accessgate-service/internal/pkg/errors"

	"go.uber.org/zap"
)

const keyPrefix = "authdata:"

// Repository is the primary-store contract: exactly one of the two
// record kinds must exist per identity, checked end-user first.
type Repository interface {
	FindEndUserByKey(ctx context.Context, subjectID string) (*identity.EndUserRecord, error)
	FindStaffProfileByKey(ctx context.Context, subjectID string) (*identity.StaffRecord, error)
}

// Cache is the tiered identity cache: a short-TTL process-local tier,
// the distributed cache, and finally the primary store. A distributed
// cache outage degrades to the store; it never fails the request.
type Cache struct {
	kv       KV
	repo     Repository
	ttl      time.Duration
	localTTL time.Duration
	logger   *zap.Logger
	now      func() time.Time

	mu    sync.Mutex
	local map[string]localEntry

	fallthroughs atomic.Int64
}

type localEntry struct {
	data     *identity.AuthData
	cachedAt time.Time
}

func New(kv KV, repo Repository, ttl time.Duration, logger *zap.Logger) *Cache {
	return &Cache{
		kv:       kv,
		repo:     repo,
		ttl:      ttl,
		localTTL: 10 * time.Second,
		logger:   logger.Named("authcache"),
		now:      time.Now,
		local:    make(map[string]localEntry),
	}
}

// GetAuthData resolves the authorization attributes for an identity.
// Returns xerrors.ErrNotFound when neither record kind exists, and
// xerrors.ErrInternal when the primary store itself is unreachable.
func (c *Cache) GetAuthData(ctx context.Context, subjectID string) (*identity.AuthData, error) {
	now := c.now()

	c.mu.Lock()
	if entry, ok := c.local[subjectID]; ok {
		if now.Sub(entry.cachedAt) < c.localTTL {
			c.mu.Unlock()
			return entry.data, nil
		}
		delete(c.local, subjectID)
	}
	c.mu.Unlock()

	raw, err := c.kv.Get(ctx, keyPrefix+subjectID)
	if err == nil {
		var data identity.AuthData
		if jsonErr := json.Unmarshal([]byte(raw), &data); jsonErr == nil {
			// An entry older than its TTL is absent, not stale-but-usable.
			if now.Sub(data.CachedAt) < c.ttl {
				c.storeLocal(subjectID, &data, now)
				return &data, nil
			}
		} else {
			c.logger.Warn("failed to decode cached auth data", zap.Error(jsonErr))
		}
	} else if !xerrors.Is(err, xerrors.ErrNotFound) {
		c.fallthroughs.Add(1)
		c.logger.Warn("distributed cache unavailable, falling through to primary store", zap.Error(err))
	}

	data, err := c.loadFromStore(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	c.SetAuthData(ctx, subjectID, data)
	return data, nil
}

// SetAuthData writes the entry into both tiers. A distributed-cache
// write failure is logged and ignored; the caller already has the data.
func (c *Cache) SetAuthData(ctx context.Context, subjectID string, data *identity.AuthData) {
	now := c.now()
	data.CachedAt = now
	c.storeLocal(subjectID, data, now)

	payload, err := json.Marshal(data)
	if err != nil {
		c.logger.Warn("failed to encode auth data", zap.Error(err))
		return
	}
	if err := c.kv.Set(ctx, keyPrefix+subjectID, string(payload), c.ttl); err != nil {
		c.logger.Warn("failed to populate distributed cache", zap.Error(err))
	}
}

// Invalidate drops the entry from both tiers. Triggered on sign-out,
// attribute mutation, and session-timeout expiry.
func (c *Cache) Invalidate(ctx context.Context, subjectID string) error {
	c.mu.Lock()
	delete(c.local, subjectID)
	c.mu.Unlock()

	if err := c.kv.Del(ctx, keyPrefix+subjectID); err != nil {
		return fmt.Errorf("failed to invalidate cache entry: %w", err)
	}
	return nil
}

// InvalidateAll purges every cached entry, both tiers.
func (c *Cache) InvalidateAll(ctx context.Context) error {
	c.mu.Lock()
	c.local = make(map[string]localEntry)
	c.mu.Unlock()

	keys, err := c.kv.ScanKeys(ctx, keyPrefix)
	if err != nil {
		return fmt.Errorf("failed to scan cache entries: %w", err)
	}
	if err := c.kv.Del(ctx, keys...); err != nil {
		return fmt.Errorf("failed to purge cache entries: %w", err)
	}
	return nil
}

// Fallthroughs reports how many reads bypassed an unreachable
// distributed cache.
func (c *Cache) Fallthroughs() int64 {
	return c.fallthroughs.Load()
}

// Healthy pings the distributed cache.
func (c *Cache) Healthy(ctx context.Context) bool {
	return c.kv.Ping(ctx) == nil
}

// loadFromStore queries the primary store: end-user record first, then
// staff profile. Raw role strings are cast through the closed enum.
func (c *Cache) loadFromStore(ctx context.Context, subjectID string) (*identity.AuthData, error) {
	endUser, err := c.repo.FindEndUserByKey(ctx, subjectID)
	if err == nil {
		return &identity.AuthData{
			SubjectID: subjectID,
			Role:      identity.RoleEndUser,
			TenantID:  endUser.TenantID,
			Active:    endUser.Active,
			EndUser: &identity.EndUserAttributes{
				Tier:   endUser.Tier,
				Level:  endUser.Level,
				Active: endUser.Active,
			},
		}, nil
	}
	if !xerrors.Is(err, xerrors.ErrNotFound) {
		return nil, fmt.Errorf("%w: end-user lookup failed: %v", xerrors.ErrInternal, err)
	}

	staff, err := c.repo.FindStaffProfileByKey(ctx, subjectID)
	if err != nil {
		if xerrors.Is(err, xerrors.ErrNotFound) {
			return nil, xerrors.ErrNotFound
		}
		return nil, fmt.Errorf("%w: staff lookup failed: %v", xerrors.ErrInternal, err)
	}

	role, _ := identity.ParseRole(staff.Role)
	return &identity.AuthData{
		SubjectID: subjectID,
		Role:      role,
		TenantID:  staff.TenantID,
		Active:    staff.Active,
	}, nil
}

func (c *Cache) storeLocal(subjectID string, data *identity.AuthData, now time.Time) {
	c.mu.Lock()
	c.local[subjectID] = localEntry{data: data, cachedAt: now}
	c.mu.Unlock()
}
