// internal/lockout/anomaly.go
package lockout

import (
	"context"
	"fmt"
	"time"

	"accessgate-service/internal/audit"

	"go.uber.org/zap"
)

// Alert describes a suspicious pattern found across tracked
// identifiers. Alerts inform; blocking remains per-identifier.
type Alert struct {
	Kind        string
	Detail      string
	Identifiers int
	Attempts    int
}

const (
	AlertDistributedAttack  = "distributed-attack"
	AlertCredentialStuffing = "credential-stuffing"
)

// Detection thresholds for the periodic scan.
const (
	distributedMinOrigins  = 20
	distributedMinAttempts = 50
	distributedMaxPerItem  = 3
	stuffingMinAttempts    = 25
)

// ScanAnomalies looks across all tracked identifiers for distributed
// attacks (many origins, few attempts each, large total) and credential
// stuffing (one origin driving a large attempt volume). Each finding
// emits one audit event.
func (m *Manager) ScanAnomalies(ctx context.Context) ([]Alert, error) {
	records, err := m.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("anomaly scan failed: %w", err)
	}

	var (
		alerts       []Alert
		originCount  int
		originTotal  int
		quietOrigins int
	)

	for _, rec := range records {
		if rec.Type != IdentifierOrigin {
			continue
		}
		originCount++
		originTotal += rec.Count
		if rec.Count <= distributedMaxPerItem {
			quietOrigins++
		}

		if rec.Count >= stuffingMinAttempts {
			alerts = append(alerts, Alert{
				Kind:        AlertCredentialStuffing,
				Detail:      fmt.Sprintf("origin %s drove %d attempts", rec.Identifier, rec.Count),
				Identifiers: 1,
				Attempts:    rec.Count,
			})
		}
	}

	if originCount >= distributedMinOrigins &&
		originTotal >= distributedMinAttempts &&
		quietOrigins*2 > originCount {
		alerts = append(alerts, Alert{
			Kind:        AlertDistributedAttack,
			Detail:      fmt.Sprintf("%d distinct origins, %d attempts total", originCount, originTotal),
			Identifiers: originCount,
			Attempts:    originTotal,
		})
	}

	for _, alert := range alerts {
		m.recorder.Record(audit.Event{
			Type:     audit.EventAnomaly,
			Severity: audit.SeverityCritical,
			Reason:   alert.Kind,
		})
		m.logger.Warn("anomaly detected",
			zap.String("kind", alert.Kind),
			zap.String("detail", alert.Detail),
			zap.Int("identifiers", alert.Identifiers),
			zap.Int("attempts", alert.Attempts),
		)
	}

	return alerts, nil
}

// Run executes the anomaly scan on the given interval until the context
// is cancelled.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.ScanAnomalies(ctx); err != nil {
				m.logger.Warn("anomaly scan error", zap.Error(err))
			}
		}
	}
}
