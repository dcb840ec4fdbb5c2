// internal/lockout/store.go
package lockout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	xerrors "accessgate-service/internal/pkg/errors"

	"github.com/redis/go-redis/v9"
)

const storePrefix = "lockout:"

// Store persists attempt records. Put with a TTL doubles as the idle
// garbage collection: a record untouched past its TTL disappears.
type Store interface {
	Get(ctx context.Context, key string) (*Record, error)
	Put(ctx context.Context, key string, rec *Record, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]*Record, error)
}

// RedisStore keeps attempt records in Redis as JSON values.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Record, error) {
	raw, err := s.client.Get(ctx, storePrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read attempt record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode attempt record: %w", err)
	}
	return &rec, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, rec *Record, ttl time.Duration) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode attempt record: %w", err)
	}
	if err := s.client.Set(ctx, storePrefix+key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store attempt record: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, storePrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete attempt record: %w", err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context) ([]*Record, error) {
	var records []*Record
	iter := s.client.Scan(ctx, 0, storePrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		raw, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue // key expired between scan and get
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			continue
		}
		records = append(records, &rec)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan attempt records: %w", err)
	}
	return records, nil
}

// MemoryStore is an in-process Store used when no Redis is configured
// and by tests. TTLs are honored lazily on read.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	rec       *Record
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok || s.now().After(entry.expiresAt) {
		delete(s.entries, key)
		return nil, xerrors.ErrNotFound
	}
	copied := *entry.rec
	return &copied, nil
}

func (s *MemoryStore) Put(_ context.Context, key string, rec *Record, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *rec
	s.entries[key] = memoryEntry{rec: &copied, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var records []*Record
	for key, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, key)
			continue
		}
		copied := *entry.rec
		records = append(records, &copied)
	}
	return records, nil
}

// recordKey builds the store key for a tracked identifier.
func recordKey(c Context, t IdentifierType, identifier string) string {
	return strings.Join([]string{string(c), string(t), identifier}, ":")
}
