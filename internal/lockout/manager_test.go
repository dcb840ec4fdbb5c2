package lockout

import (
	"context"
	"fmt"
	"testing"
	"time"

	"accessgate-service/internal/audit"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newTestManager(t *testing.T) (*Manager, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)
	m := NewManager(NewMemoryStore(), DefaultPolicies(), 24*time.Hour, audit.NewRecorder(logger), logger)
	return m, logs
}

func auditEventCount(logs *observer.ObservedLogs, eventType audit.EventType) int {
	count := 0
	for _, entry := range logs.All() {
		for _, field := range entry.Context {
			if field.Key == "event_type" && field.String == string(eventType) {
				count++
			}
		}
	}
	return count
}

func TestRecordFailure_LocksAtThresholdWithSingleAuditEvent(t *testing.T) {
	m, logs := newTestManager(t)
	ctx := context.Background()

	var rec *Record
	var err error
	for i := 0; i < 6; i++ {
		rec, err = m.RecordFailure(ctx, ContextInteractive, IdentifierAccount, "user@example.com")
		if err != nil {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
	}

	if !rec.Locked {
		t.Fatal("6th attempt did not report locked")
	}
	if rec.Count != 6 {
		t.Errorf("count = %d, want 6", rec.Count)
	}
	if got := auditEventCount(logs, audit.EventLockout); got != 1 {
		t.Errorf("lockout events = %d, want exactly 1 (on the threshold-crossing attempt)", got)
	}

	locked, err := m.IsLocked(ctx, ContextInteractive, IdentifierAccount, "user@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if !locked {
		t.Error("IsLocked = false while under active lockout")
	}
}

func TestRecordFailure_NotLockedBelowThreshold(t *testing.T) {
	m, logs := newTestManager(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		rec, err := m.RecordFailure(ctx, ContextInteractive, IdentifierAccount, "user@example.com")
		if err != nil {
			t.Fatal(err)
		}
		if rec.Locked {
			t.Fatalf("locked after %d attempts", i+1)
		}
	}
	if got := auditEventCount(logs, audit.EventLockout); got != 0 {
		t.Errorf("lockout events = %d before threshold", got)
	}
}

func TestIsLocked_ExpiryResetsCounter(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return start }

	for i := 0; i < 5; i++ {
		if _, err := m.RecordFailure(ctx, ContextInteractive, IdentifierAccount, "acct"); err != nil {
			t.Fatal(err)
		}
	}

	// First lockout runs base duration (15m). Just before expiry the
	// identifier is still locked.
	m.now = func() time.Time { return start.Add(15*time.Minute - time.Second) }
	locked, err := m.IsLocked(ctx, ContextInteractive, IdentifierAccount, "acct")
	if err != nil || !locked {
		t.Fatalf("locked = %v, %v before expiry", locked, err)
	}

	// After expiry the lock clears and the counter resets to zero.
	m.now = func() time.Time { return start.Add(15*time.Minute + time.Second) }
	locked, err = m.IsLocked(ctx, ContextInteractive, IdentifierAccount, "acct")
	if err != nil || locked {
		t.Fatalf("locked = %v, %v after expiry", locked, err)
	}

	rec, err := m.Status(ctx, ContextInteractive, IdentifierAccount, "acct")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Count != 0 {
		t.Errorf("count = %d after expiry, want 0", rec.Count)
	}
	if rec.LockoutCount != 1 {
		t.Errorf("cumulative lockout count = %d, want 1", rec.LockoutCount)
	}
}

func TestRecordFailure_ProgressivePenalty(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return start }

	for i := 0; i < 5; i++ {
		if _, err := m.RecordFailure(ctx, ContextInteractive, IdentifierAccount, "acct"); err != nil {
			t.Fatal(err)
		}
	}

	// Second offense, after the first lockout has run out.
	second := start.Add(time.Hour)
	m.now = func() time.Time { return second }

	var rec *Record
	var err error
	for i := 0; i < 5; i++ {
		rec, err = m.RecordFailure(ctx, ContextInteractive, IdentifierAccount, "acct")
		if err != nil {
			t.Fatal(err)
		}
	}

	if !rec.Locked {
		t.Fatal("second offense did not lock")
	}
	if rec.LockoutCount != 2 {
		t.Fatalf("lockout count = %d, want 2", rec.LockoutCount)
	}
	if got := rec.LockoutExpiresAt.Sub(second); got != 30*time.Minute {
		t.Errorf("second lockout duration = %v, want 30m (base x 2)", got)
	}
}

func TestRecordFailure_WindowResetsAccumulation(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return start }

	for i := 0; i < 3; i++ {
		if _, err := m.RecordFailure(ctx, ContextInteractive, IdentifierAccount, "acct"); err != nil {
			t.Fatal(err)
		}
	}

	// Past the accumulation window the count starts over.
	m.now = func() time.Time { return start.Add(16 * time.Minute) }
	rec, err := m.RecordFailure(ctx, ContextInteractive, IdentifierAccount, "acct")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Count != 1 {
		t.Errorf("count = %d after window reset, want 1", rec.Count)
	}
	if rec.Locked {
		t.Error("locked after window reset")
	}
}

func TestRecordSuccess_ClearsState(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := m.RecordFailure(ctx, ContextInteractive, IdentifierAccount, "acct"); err != nil {
			t.Fatal(err)
		}
	}
	if err := m.RecordSuccess(ctx, ContextInteractive, IdentifierAccount, "acct"); err != nil {
		t.Fatal(err)
	}

	rec, err := m.Status(ctx, ContextInteractive, IdentifierAccount, "acct")
	if err != nil {
		t.Fatal(err)
	}
	if rec != nil {
		t.Errorf("record survived successful authentication: %+v", rec)
	}
}

func TestResetAttempts_PrivilegedOverride(t *testing.T) {
	m, logs := newTestManager(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := m.RecordFailure(ctx, ContextAdminPanel, IdentifierAccount, "root"); err != nil {
			t.Fatal(err)
		}
	}
	if err := m.ResetAttempts(ctx, ContextAdminPanel, IdentifierAccount, "root"); err != nil {
		t.Fatal(err)
	}

	locked, err := m.IsLocked(ctx, ContextAdminPanel, IdentifierAccount, "root")
	if err != nil || locked {
		t.Fatalf("locked = %v, %v after privileged reset", locked, err)
	}
	if got := auditEventCount(logs, audit.EventLockoutReset); got != 1 {
		t.Errorf("reset events = %d, want 1", got)
	}
}

func TestAdminPanelPolicyIsStrictest(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	var rec *Record
	var err error
	for i := 0; i < 3; i++ {
		rec, err = m.RecordFailure(ctx, ContextAdminPanel, IdentifierAccount, "root")
		if err != nil {
			t.Fatal(err)
		}
	}
	if !rec.Locked {
		t.Error("admin panel identifier not locked at 3 attempts")
	}

	for i := 0; i < 3; i++ {
		rec, err = m.RecordFailure(ctx, ContextInteractive, IdentifierAccount, "root")
		if err != nil {
			t.Fatal(err)
		}
	}
	if rec.Locked {
		t.Error("interactive identifier locked at 3 attempts")
	}
}

func TestContextsTrackIndependently(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := m.RecordFailure(ctx, ContextInteractive, IdentifierAccount, "acct"); err != nil {
			t.Fatal(err)
		}
	}

	locked, err := m.IsLocked(ctx, ContextAPI, IdentifierAccount, "acct")
	if err != nil || locked {
		t.Fatalf("API context locked by interactive failures: %v, %v", locked, err)
	}
}

func TestLockoutDurationCap(t *testing.T) {
	p := Policy{BaseLockout: 3 * time.Hour}

	if got := p.lockoutDuration(1); got != 3*time.Hour {
		t.Errorf("first lockout = %v, want 3h", got)
	}
	if got := p.lockoutDuration(5); got != 15*time.Hour {
		t.Errorf("fifth lockout = %v, want 15h", got)
	}
	// Factor caps at 10 and the result caps at 24h.
	if got := p.lockoutDuration(50); got != maxLockout {
		t.Errorf("repeat lockout = %v, want %v", got, maxLockout)
	}
}

func TestScanAnomalies_CredentialStuffing(t *testing.T) {
	m, logs := newTestManager(t)
	ctx := context.Background()

	for i := 0; i < 30; i++ {
		if _, err := m.RecordFailure(ctx, ContextAPI, IdentifierOrigin, "10.0.0.99"); err != nil {
			t.Fatal(err)
		}
	}

	alerts, err := m.ScanAnomalies(ctx)
	if err != nil {
		t.Fatal(err)
	}

	found := false
	for _, alert := range alerts {
		if alert.Kind == AlertCredentialStuffing {
			found = true
		}
	}
	if !found {
		t.Fatal("high-volume origin produced no stuffing alert")
	}
	if got := auditEventCount(logs, audit.EventAnomaly); got == 0 {
		t.Error("no anomaly audit event emitted")
	}
}

func TestScanAnomalies_DistributedAttack(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	// Many distinct origins, each below every per-identifier threshold.
	for i := 0; i < 25; i++ {
		origin := fmt.Sprintf("10.1.0.%d", i)
		for j := 0; j < 2; j++ {
			if _, err := m.RecordFailure(ctx, ContextInteractive, IdentifierOrigin, origin); err != nil {
				t.Fatal(err)
			}
		}
	}

	alerts, err := m.ScanAnomalies(ctx)
	if err != nil {
		t.Fatal(err)
	}

	found := false
	for _, alert := range alerts {
		if alert.Kind == AlertDistributedAttack {
			found = true
			if alert.Identifiers != 25 || alert.Attempts != 50 {
				t.Errorf("alert aggregates = %d origins / %d attempts, want 25/50", alert.Identifiers, alert.Attempts)
			}
		}
	}
	if !found {
		t.Fatal("distributed pattern produced no alert")
	}

	// Blocking stays per-identifier: no origin is locked.
	locked, err := m.IsLocked(ctx, ContextInteractive, IdentifierOrigin, "10.1.0.0")
	if err != nil || locked {
		t.Fatalf("anomaly scan changed blocking state: %v, %v", locked, err)
	}
}
