package authcache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"accessgate-service/internal/domain/identity"
	xerrors "accessgate-service/internal/pkg/errors"

	"go.uber.org/zap"
)

// fakeKV is an in-memory KV that can simulate an outage.
type fakeKV struct {
	mu     sync.Mutex
	data   map[string]string
	broken bool
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: make(map[string]string)}
}

func (f *fakeKV) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.broken {
		return "", errors.New("connection refused")
	}
	v, ok := f.data[key]
	if !ok {
		return "", xerrors.ErrNotFound
	}
	return v, nil
}

func (f *fakeKV) Set(_ context.Context, key, value string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.broken {
		return errors.New("connection refused")
	}
	f.data[key] = value
	return nil
}

func (f *fakeKV) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.broken {
		return errors.New("connection refused")
	}
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func (f *fakeKV) Ping(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.broken {
		return errors.New("connection refused")
	}
	return nil
}

func (f *fakeKV) ScanKeys(_ context.Context, prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.broken {
		return nil, errors.New("connection refused")
	}
	var keys []string
	for k := range f.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// fakeRepo serves one end-user and one staff record and counts lookups.
type fakeRepo struct {
	mu         sync.Mutex
	endUsers   map[string]*identity.EndUserRecord
	staff      map[string]*identity.StaffRecord
	lookups    int
	failLookup bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		endUsers: map[string]*identity.EndUserRecord{
			"eu-1": {SubjectID: "eu-1", TenantID: "tenant-a", Active: true, Tier: "basic", Level: 2},
		},
		staff: map[string]*identity.StaffRecord{
			"staff-1": {SubjectID: "staff-1", Role: "staff", TenantID: "tenant-a", Active: true},
			"admin-1": {SubjectID: "admin-1", Role: "admin", Active: true},
			"odd-1":   {SubjectID: "odd-1", Role: "wizard", Active: true},
		},
	}
}

func (f *fakeRepo) FindEndUserByKey(_ context.Context, subjectID string) (*identity.EndUserRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.failLookup {
		return nil, errors.New("db down")
	}
	if rec, ok := f.endUsers[subjectID]; ok {
		return rec, nil
	}
	return nil, xerrors.ErrNotFound
}

func (f *fakeRepo) FindStaffProfileByKey(_ context.Context, subjectID string) (*identity.StaffRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failLookup {
		return nil, errors.New("db down")
	}
	if rec, ok := f.staff[subjectID]; ok {
		return rec, nil
	}
	return nil, xerrors.ErrNotFound
}

func (f *fakeRepo) lookupCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookups
}

func newTestCache(kv KV, repo Repository) *Cache {
	return New(kv, repo, 30*time.Minute, zap.NewNop())
}

func TestGetAuthData_EndUserRecord(t *testing.T) {
	repo := newFakeRepo()
	cache := newTestCache(newFakeKV(), repo)

	data, err := cache.GetAuthData(context.Background(), "eu-1")
	if err != nil {
		t.Fatalf("GetAuthData: %v", err)
	}
	if data.Role != identity.RoleEndUser {
		t.Errorf("role = %q, want %q", data.Role, identity.RoleEndUser)
	}
	if data.EndUser == nil || data.EndUser.Tier != "basic" || !data.EndUser.Active {
		t.Errorf("end-user attributes not populated: %+v", data.EndUser)
	}
	if data.TenantID != "tenant-a" {
		t.Errorf("tenant = %q, want tenant-a", data.TenantID)
	}
}

func TestGetAuthData_StaffRecordCheckedSecond(t *testing.T) {
	repo := newFakeRepo()
	cache := newTestCache(newFakeKV(), repo)

	data, err := cache.GetAuthData(context.Background(), "admin-1")
	if err != nil {
		t.Fatalf("GetAuthData: %v", err)
	}
	if data.Role != identity.RoleAdmin {
		t.Errorf("role = %q, want %q", data.Role, identity.RoleAdmin)
	}
	if data.EndUser != nil {
		t.Error("staff record carries end-user attributes")
	}
}

func TestGetAuthData_SecondCallServedFromCache(t *testing.T) {
	repo := newFakeRepo()
	cache := newTestCache(newFakeKV(), repo)

	first, err := cache.GetAuthData(context.Background(), "eu-1")
	if err != nil {
		t.Fatal(err)
	}
	lookupsAfterFirst := repo.lookupCount()

	second, err := cache.GetAuthData(context.Background(), "eu-1")
	if err != nil {
		t.Fatal(err)
	}
	if repo.lookupCount() != lookupsAfterFirst {
		t.Error("second call hit the primary store")
	}
	if second.Role != first.Role || second.TenantID != first.TenantID {
		t.Error("cached data differs from original")
	}
}

func TestInvalidate_ForcesPrimaryStoreRead(t *testing.T) {
	repo := newFakeRepo()
	cache := newTestCache(newFakeKV(), repo)

	if _, err := cache.GetAuthData(context.Background(), "eu-1"); err != nil {
		t.Fatal(err)
	}
	before := repo.lookupCount()

	if err := cache.Invalidate(context.Background(), "eu-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := cache.GetAuthData(context.Background(), "eu-1"); err != nil {
		t.Fatal(err)
	}
	if repo.lookupCount() != before+1 {
		t.Error("invalidate did not force a primary-store read")
	}
}

func TestGetAuthData_DegradesWhenCacheUnreachable(t *testing.T) {
	repo := newFakeRepo()
	kv := newFakeKV()
	kv.broken = true
	cache := newTestCache(kv, repo)

	data, err := cache.GetAuthData(context.Background(), "staff-1")
	if err != nil {
		t.Fatalf("read failed despite reachable primary store: %v", err)
	}
	if data.Role != identity.RoleStaff {
		t.Errorf("role = %q, want %q", data.Role, identity.RoleStaff)
	}
	if cache.Fallthroughs() == 0 {
		t.Error("fallthrough not counted")
	}
}

func TestGetAuthData_UnknownIdentity(t *testing.T) {
	cache := newTestCache(newFakeKV(), newFakeRepo())

	_, err := cache.GetAuthData(context.Background(), "nobody")
	if !xerrors.Is(err, xerrors.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestGetAuthData_StoreFailureIsInternal(t *testing.T) {
	repo := newFakeRepo()
	repo.failLookup = true
	cache := newTestCache(newFakeKV(), repo)

	_, err := cache.GetAuthData(context.Background(), "eu-1")
	if !xerrors.Is(err, xerrors.ErrInternal) {
		t.Fatalf("error = %v, want ErrInternal", err)
	}
}

func TestGetAuthData_UnrecognizedRoleStaysUnknown(t *testing.T) {
	cache := newTestCache(newFakeKV(), newFakeRepo())

	data, err := cache.GetAuthData(context.Background(), "odd-1")
	if err != nil {
		t.Fatal(err)
	}
	if data.Role != identity.RoleUnknown {
		t.Errorf("role = %q, want RoleUnknown", data.Role)
	}
}

func TestInvalidateAll_PurgesEveryEntry(t *testing.T) {
	repo := newFakeRepo()
	kv := newFakeKV()
	cache := newTestCache(kv, repo)

	for _, id := range []string{"eu-1", "staff-1", "admin-1"} {
		if _, err := cache.GetAuthData(context.Background(), id); err != nil {
			t.Fatal(err)
		}
	}
	if err := cache.InvalidateAll(context.Background()); err != nil {
		t.Fatal(err)
	}

	before := repo.lookupCount()
	if _, err := cache.GetAuthData(context.Background(), "eu-1"); err != nil {
		t.Fatal(err)
	}
	if repo.lookupCount() != before+1 {
		t.Error("purged entry still served from cache")
	}
}
