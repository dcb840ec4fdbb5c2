// internal/lockout/manager.go
package lockout

import (
	"context"
	"fmt"
	"time"

	"accessgate-service/internal/audit"
	xerrors "accessgate-service/internal/pkg/errors"

	"go.uber.org/zap"
)

// Manager tracks failed-attempt counters per identifier and applies
// progressive lockouts. The state machine per identifier is
// Clean -> Accumulating -> Locked -> Clean: transitions move forward on
// failures and reset only via lockout expiry, successful
// authentication, or privileged override.
type Manager struct {
	store     Store
	policies  map[Context]Policy
	idleTTL   time.Duration
	recorder  *audit.Recorder
	logger    *zap.Logger
	now       func() time.Time
}

// DefaultPolicies returns the per-context thresholds. The admin panel
// is strictest: fewest attempts, longest base duration.
func DefaultPolicies() map[Context]Policy {
	return map[Context]Policy{
		ContextInteractive: {MaxAttempts: 5, Window: 15 * time.Minute, BaseLockout: 15 * time.Minute},
		ContextAPI:         {MaxAttempts: 10, Window: 5 * time.Minute, BaseLockout: 5 * time.Minute},
		ContextAdminPanel:  {MaxAttempts: 3, Window: 15 * time.Minute, BaseLockout: time.Hour},
	}
}

func NewManager(store Store, policies map[Context]Policy, idleTTL time.Duration, recorder *audit.Recorder, logger *zap.Logger) *Manager {
	return &Manager{
		store:    store,
		policies: policies,
		idleTTL:  idleTTL,
		recorder: recorder,
		logger:   logger.Named("lockout"),
		now:      time.Now,
	}
}

// RecordFailure registers one failed attempt and returns the updated
// record. Crossing the threshold locks the identifier and emits exactly
// one lockout audit event; further failures while locked only count.
func (m *Manager) RecordFailure(ctx context.Context, c Context, t IdentifierType, identifier string) (*Record, error) {
	policy, ok := m.policies[c]
	if !ok {
		return nil, fmt.Errorf("no lockout policy for context %q", c)
	}

	now := m.now()
	key := recordKey(c, t, identifier)

	rec, err := m.store.Get(ctx, key)
	if err != nil {
		if !xerrors.Is(err, xerrors.ErrNotFound) {
			return nil, err
		}
		rec = &Record{Identifier: identifier, Type: t, Context: c, FirstAttemptAt: now}
	}

	// A lockout that has run out resets the counter before the new
	// attempt is applied; the cumulative lockout count survives.
	if rec.Locked && now.After(rec.LockoutExpiresAt) {
		rec.Locked = false
		rec.Count = 0
		rec.FirstAttemptAt = now
		rec.LockoutExpiresAt = time.Time{}
	}

	// Outside the accumulation window the count starts over.
	if !rec.Locked && rec.Count > 0 && now.Sub(rec.FirstAttemptAt) > policy.Window {
		rec.Count = 0
		rec.FirstAttemptAt = now
	}

	rec.Count++
	rec.LastAttemptAt = now

	if !rec.Locked && rec.Count >= policy.MaxAttempts {
		rec.Locked = true
		rec.LockoutCount++
		duration := policy.lockoutDuration(rec.LockoutCount)
		rec.LockoutExpiresAt = now.Add(duration)

		m.recorder.Record(audit.Event{
			Type:        audit.EventLockout,
			Severity:    audit.SeverityWarning,
			IdentityKey: identifier,
			Reason:      fmt.Sprintf("threshold-crossed:%s:%s", c, t),
		})
		m.logger.Warn("identifier locked out",
			zap.String("context", string(c)),
			zap.String("identifier_type", string(t)),
			zap.Int("attempts", rec.Count),
			zap.Int("lockout_count", rec.LockoutCount),
			zap.Duration("duration", duration),
		)
	}

	if err := m.store.Put(ctx, key, rec, m.recordTTL(rec, now)); err != nil {
		return nil, err
	}
	return rec, nil
}

// IsLocked reports whether the identifier is under an active lockout.
// A lockout whose expiry has passed resets the record to clean on this
// check: the counter returns to zero, the cumulative count survives.
func (m *Manager) IsLocked(ctx context.Context, c Context, t IdentifierType, identifier string) (bool, error) {
	now := m.now()
	key := recordKey(c, t, identifier)

	rec, err := m.store.Get(ctx, key)
	if err != nil {
		if xerrors.Is(err, xerrors.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	if !rec.Locked {
		return false, nil
	}
	if now.Before(rec.LockoutExpiresAt) {
		return true, nil
	}

	rec.Locked = false
	rec.Count = 0
	rec.FirstAttemptAt = now
	rec.LockoutExpiresAt = time.Time{}
	if err := m.store.Put(ctx, key, rec, m.recordTTL(rec, now)); err != nil {
		m.logger.Warn("failed to reset expired lockout", zap.Error(err))
	}
	return false, nil
}

// Status returns the raw record, or nil when the identifier is clean.
func (m *Manager) Status(ctx context.Context, c Context, t IdentifierType, identifier string) (*Record, error) {
	rec, err := m.store.Get(ctx, recordKey(c, t, identifier))
	if xerrors.Is(err, xerrors.ErrNotFound) {
		return nil, nil
	}
	return rec, err
}

// RecordSuccess clears the attempt state after a successful
// authentication.
func (m *Manager) RecordSuccess(ctx context.Context, c Context, t IdentifierType, identifier string) error {
	return m.store.Delete(ctx, recordKey(c, t, identifier))
}

// ResetAttempts is the privileged override: it wipes the record
// entirely, cumulative lockout count included, and emits an audit event.
func (m *Manager) ResetAttempts(ctx context.Context, c Context, t IdentifierType, identifier string) error {
	if err := m.store.Delete(ctx, recordKey(c, t, identifier)); err != nil {
		return err
	}
	m.recorder.Record(audit.Event{
		Type:        audit.EventLockoutReset,
		Severity:    audit.SeverityInfo,
		IdentityKey: identifier,
		Reason:      fmt.Sprintf("privileged-reset:%s:%s", c, t),
	})
	return nil
}

// recordTTL keeps locked records until well past their lockout expiry
// and lets never-locked records fall to idle garbage collection.
func (m *Manager) recordTTL(rec *Record, now time.Time) time.Duration {
	if rec.Locked {
		until := rec.LockoutExpiresAt.Sub(now) + m.idleTTL
		return until
	}
	return m.idleTTL
}
