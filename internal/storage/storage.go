package storage

import (
	"context"
	"time"
)

// Baseline is one stored statistical profile for a metric on an
// instance. HourOfDay and DayOfWeek are nil for the overall profile;
// at most one of the two is set for a seasonal bucket.
type Baseline struct {
	Instance     string    `json:"instance"`
	MetricName   string    `json:"metric_name"`
	Category     string    `json:"category"`
	HourOfDay    *int      `json:"hour_of_day,omitempty"`
	DayOfWeek    *int      `json:"day_of_week,omitempty"`
	Mean         float64   `json:"mean"`
	StdDev       float64   `json:"stddev"`
	Min          float64   `json:"min"`
	Max          float64   `json:"max"`
	Median       float64   `json:"median"`
	P95          float64   `json:"p95"`
	P99          float64   `json:"p99"`
	SampleCount  int64     `json:"sample_count"`
	CalculatedAt time.Time `json:"calculated_at"`
	PeriodStart  time.Time `json:"period_start"`
	PeriodEnd    time.Time `json:"period_end"`
}

// Anomaly is one stored deviation event. Severity, AnomalyType and
// Direction are kept as raw strings at this layer; parsing with safe
// defaults happens in the anomaly package.
type Anomaly struct {
	ID              string     `json:"id"`
	Instance        string     `json:"instance"`
	MetricName      string     `json:"metric_name"`
	MetricCategory  string     `json:"metric_category"`
	DetectedAt      time.Time  `json:"detected_at"`
	Value           float64    `json:"value"`
	BaselineMean    float64    `json:"baseline_mean"`
	BaselineStdDev  float64    `json:"baseline_stddev"`
	DeviationSigma  float64    `json:"deviation_sigma"`
	Severity        string     `json:"severity"`
	AnomalyType     string     `json:"anomaly_type"`
	Direction       string     `json:"direction"`
	RootCause       string     `json:"root_cause"`
	AcknowledgedAt  *time.Time `json:"acknowledged_at,omitempty"`
	AcknowledgedBy  string     `json:"acknowledged_by,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	ResolutionNotes string     `json:"resolution_notes,omitempty"`
}

// SampleStats is an aggregate over a filtered historical window
type SampleStats struct {
	Mean        float64   `json:"mean"`
	StdDev      float64   `json:"stddev"`
	Min         float64   `json:"min"`
	Max         float64   `json:"max"`
	Median      float64   `json:"median"`
	P95         float64   `json:"p95"`
	P99         float64   `json:"p99"`
	Count       int64     `json:"count"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
}

// SampleSource provides historical and latest metric values. The
// samples themselves live outside the engine; the embedded store
// doubles as a local implementation.
type SampleSource interface {
	// SampleStats aggregates samples for a metric over the last
	// sinceDays days. hourOfDay (0-23) and dayOfWeek (0-6, Sunday=0)
	// filter to a seasonal bucket when non-nil. Returns nil when no
	// samples match.
	SampleStats(ctx context.Context, instance, metric string, sinceDays int, hourOfDay, dayOfWeek *int) (*SampleStats, error)

	// LatestValues returns the most recent value per metric for an instance
	LatestValues(ctx context.Context, instance string) (map[string]float64, error)
}

// SampleRecorder accepts metric samples for ingestion
type SampleRecorder interface {
	RecordSample(ctx context.Context, instance, metric string, value float64, ts time.Time) error
}

// BaselineStore persists statistical profiles
type BaselineStore interface {
	// UpsertBaseline inserts or fully replaces the baseline for its
	// (instance, metric, category, hour_of_day, day_of_week) key
	UpsertBaseline(ctx context.Context, b *Baseline) error

	// FindBaseline returns the baseline for an exact key, or nil if absent
	FindBaseline(ctx context.Context, instance, metric string, hourOfDay, dayOfWeek *int) (*Baseline, error)
}

// AnomalyStore persists detected anomalies. Records are append-only;
// only the acknowledgement and resolution fields are ever updated.
type AnomalyStore interface {
	InsertAnomaly(ctx context.Context, a *Anomaly) error

	// OpenAnomalies returns unresolved anomalies, newest first
	OpenAnomalies(ctx context.Context, instance string) ([]*Anomaly, error)

	// AnomaliesSince returns anomalies detected at or after since,
	// newest first, capped at limit
	AnomaliesSince(ctx context.Context, instance string, since time.Time, limit int) ([]*Anomaly, error)

	// AcknowledgeAnomaly sets the acknowledgement fields. A no-op if
	// the anomaly does not belong to the instance.
	AcknowledgeAnomaly(ctx context.Context, instance, id, user string) error

	// ResolveAnomaly sets the resolution fields. Resolution is
	// terminal; resolving an already-resolved anomaly is a no-op.
	ResolveAnomaly(ctx context.Context, instance, id, notes string) error

	// OpenCountsBySeverity returns counts of unresolved anomalies
	// grouped by their stored severity string
	OpenCountsBySeverity(ctx context.Context, instance string) (map[string]int, error)
}

// Store combines everything the engine needs from one backend
type Store interface {
	SampleSource
	SampleRecorder
	BaselineStore
	AnomalyStore

	// PurgeSamples removes samples older than the retention window and
	// returns how many rows were deleted
	PurgeSamples(ctx context.Context, retention time.Duration) (int64, error)

	Close() error
}
