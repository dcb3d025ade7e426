package anomaly

import (
	"time"

	"github.com/savegress/dbpulse/internal/storage"
)

// Severity classifies how far a value deviates from its baseline
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AnomalyType classifies the shape of the deviation. Detection
// currently only produces spikes; the type exists so stored records
// stay forward-compatible if other shapes are added.
type AnomalyType string

const (
	AnomalySpike AnomalyType = "spike"
)

// Direction indicates which side of the baseline mean the value fell on
type Direction string

const (
	DirectionAbove Direction = "above"
	DirectionBelow Direction = "below"
)

// ParseSeverity maps a stored severity string to a Severity. Unknown
// or legacy values fall back to low rather than failing the read.
func ParseSeverity(s string) Severity {
	switch Severity(s) {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return Severity(s)
	default:
		return SeverityLow
	}
}

// ParseAnomalyType maps a stored type string, defaulting to spike
func ParseAnomalyType(s string) AnomalyType {
	switch AnomalyType(s) {
	case AnomalySpike:
		return AnomalySpike
	default:
		return AnomalySpike
	}
}

// ParseDirection maps a stored direction string, defaulting to above
func ParseDirection(s string) Direction {
	switch Direction(s) {
	case DirectionAbove, DirectionBelow:
		return Direction(s)
	default:
		return DirectionAbove
	}
}

// severityRank orders severities for display, highest first
func severityRank(s Severity) int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	default:
		return 1
	}
}

// CorrelatedMetric is another catalog metric found anomalous at the
// same moment as the primary anomaly. Co-occurrence only, not causal.
type CorrelatedMetric struct {
	MetricName    string    `json:"metric_name"`
	PercentChange float64   `json:"percent_change"`
	Direction     Direction `json:"direction"`
}

// Anomaly is one deviation event with parsed enums. CorrelatedMetrics
// are computed at detection time and are not persisted.
type Anomaly struct {
	ID                string             `json:"id"`
	Instance          string             `json:"instance"`
	MetricName        string             `json:"metric_name"`
	MetricCategory    string             `json:"metric_category"`
	DetectedAt        time.Time          `json:"detected_at"`
	Value             float64            `json:"value"`
	BaselineMean      float64            `json:"baseline_mean"`
	BaselineStdDev    float64            `json:"baseline_stddev"`
	DeviationSigma    float64            `json:"deviation_sigma"`
	Severity          Severity           `json:"severity"`
	Type              AnomalyType        `json:"type"`
	Direction         Direction          `json:"direction"`
	RootCause         string             `json:"root_cause"`
	AcknowledgedAt    *time.Time         `json:"acknowledged_at,omitempty"`
	AcknowledgedBy    string             `json:"acknowledged_by,omitempty"`
	ResolvedAt        *time.Time         `json:"resolved_at,omitempty"`
	ResolutionNotes   string             `json:"resolution_notes,omitempty"`
	CorrelatedMetrics []CorrelatedMetric `json:"correlated_metrics,omitempty"`
}

// fromRecord parses a stored anomaly, defaulting unknown enum values
func fromRecord(r *storage.Anomaly) *Anomaly {
	return &Anomaly{
		ID:              r.ID,
		Instance:        r.Instance,
		MetricName:      r.MetricName,
		MetricCategory:  r.MetricCategory,
		DetectedAt:      r.DetectedAt,
		Value:           r.Value,
		BaselineMean:    r.BaselineMean,
		BaselineStdDev:  r.BaselineStdDev,
		DeviationSigma:  r.DeviationSigma,
		Severity:        ParseSeverity(r.Severity),
		Type:            ParseAnomalyType(r.AnomalyType),
		Direction:       ParseDirection(r.Direction),
		RootCause:       r.RootCause,
		AcknowledgedAt:  r.AcknowledgedAt,
		AcknowledgedBy:  r.AcknowledgedBy,
		ResolvedAt:      r.ResolvedAt,
		ResolutionNotes: r.ResolutionNotes,
	}
}

// record converts to the storage row. CorrelatedMetrics are dropped
// here on purpose; they are ephemeral detection output.
func (a *Anomaly) record() *storage.Anomaly {
	return &storage.Anomaly{
		ID:             a.ID,
		Instance:       a.Instance,
		MetricName:     a.MetricName,
		MetricCategory: a.MetricCategory,
		DetectedAt:     a.DetectedAt,
		Value:          a.Value,
		BaselineMean:   a.BaselineMean,
		BaselineStdDev: a.BaselineStdDev,
		DeviationSigma: a.DeviationSigma,
		Severity:       string(a.Severity),
		AnomalyType:    string(a.Type),
		Direction:      string(a.Direction),
		RootCause:      a.RootCause,
	}
}
