// internal/audit/audit.go
package audit

import (
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// EventType identifies the kind of security event being recorded.
type EventType string

const (
	EventAuthFailure    EventType = "auth_failure"
	EventAccessDenied   EventType = "access_denied"
	EventSessionExpired EventType = "session_expired"
	EventLockout        EventType = "lockout"
	EventAnomaly        EventType = "anomaly"
	EventSignOut        EventType = "sign_out"
	EventLockoutReset   EventType = "lockout_reset"
	EventInternalError  EventType = "internal_error"
)

// Severity levels for security events.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event is a single structured security audit event. Reason is a
// machine-readable code, never user-facing text.
type Event struct {
	ID          string
	Type        EventType
	Severity    Severity
	IdentityKey string
	Endpoint    string
	Reason      string
	At          time.Time
}

// Recorder emits security audit events through the structured logger.
type Recorder struct {
	logger *zap.Logger
}

func NewRecorder(logger *zap.Logger) *Recorder {
	return &Recorder{logger: logger.Named("audit")}
}

// Record emits exactly one structured log entry for the event,
// assigning an event ID and timestamp if unset.
func (r *Recorder) Record(ev Event) {
	if ev.ID == "" {
		ev.ID = ulid.Make().String()
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	fields := []zap.Field{
		zap.String("event_id", ev.ID),
		zap.String("event_type", string(ev.Type)),
		zap.String("severity", string(ev.Severity)),
		zap.String("endpoint", ev.Endpoint),
		zap.String("reason", ev.Reason),
		zap.Time("at", ev.At),
	}
	if ev.IdentityKey != "" {
		fields = append(fields, zap.String("identity", ev.IdentityKey))
	}

	switch ev.Severity {
	case SeverityCritical:
		r.logger.Error("security event", fields...)
	case SeverityWarning:
		r.logger.Warn("security event", fields...)
	default:
		r.logger.Info("security event", fields...)
	}
}
