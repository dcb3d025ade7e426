package anomaly

import (
	"context"
	"sort"
	"time"

	"github.com/savegress/dbpulse/internal/storage"
)

// historyLimit caps how many rows a history query returns
const historyLimit = 100

// Manager tracks an anomaly's lifecycle: detected, optionally
// acknowledged, then resolved. Resolution is terminal and an anomaly
// may be resolved without ever being acknowledged.
type Manager struct {
	store storage.AnomalyStore
}

// NewManager creates a lifecycle manager over an anomaly store
func NewManager(store storage.AnomalyStore) *Manager {
	return &Manager{store: store}
}

// Open returns unresolved anomalies ordered by severity (critical
// first), ties broken by detection time, newest first
func (m *Manager) Open(ctx context.Context, instance string) ([]*Anomaly, error) {
	records, err := m.store.OpenAnomalies(ctx, instance)
	if err != nil {
		return nil, err
	}

	anomalies := make([]*Anomaly, len(records))
	for i, r := range records {
		anomalies[i] = fromRecord(r)
	}

	sort.SliceStable(anomalies, func(i, j int) bool {
		ri, rj := severityRank(anomalies[i].Severity), severityRank(anomalies[j].Severity)
		if ri != rj {
			return ri > rj
		}
		return anomalies[i].DetectedAt.After(anomalies[j].DetectedAt)
	})

	return anomalies, nil
}

// History returns anomalies detected within the lookback window,
// newest first, capped at 100 rows
func (m *Manager) History(ctx context.Context, instance string, hours int) ([]*Anomaly, error) {
	since := time.Now().Add(-time.Duration(hours) * time.Hour)
	records, err := m.store.AnomaliesSince(ctx, instance, since, historyLimit)
	if err != nil {
		return nil, err
	}

	anomalies := make([]*Anomaly, len(records))
	for i, r := range records {
		anomalies[i] = fromRecord(r)
	}
	return anomalies, nil
}

// Acknowledge marks an open anomaly as acknowledged by a user. A
// no-op if the anomaly does not belong to the instance.
func (m *Manager) Acknowledge(ctx context.Context, instance, id, user string) error {
	return m.store.AcknowledgeAnomaly(ctx, instance, id, user)
}

// Resolve marks an anomaly resolved with notes. Terminal: a resolved
// anomaly leaves the open set permanently.
func (m *Manager) Resolve(ctx context.Context, instance, id, notes string) error {
	return m.store.ResolveAnomaly(ctx, instance, id, notes)
}

// Summary returns counts of open anomalies per severity. Every
// severity level is present, zero-filled when empty.
func (m *Manager) Summary(ctx context.Context, instance string) (map[Severity]int, error) {
	counts, err := m.store.OpenCountsBySeverity(ctx, instance)
	if err != nil {
		return nil, err
	}

	summary := map[Severity]int{
		SeverityLow:      0,
		SeverityMedium:   0,
		SeverityHigh:     0,
		SeverityCritical: 0,
	}
	for raw, n := range counts {
		summary[ParseSeverity(raw)] += n
	}
	return summary, nil
}
