package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// EmbeddedStore is a SQLite-backed store for samples, baselines and
// anomalies. It is the default backend and also serves as the local
// SampleSource for installs without an external metrics pipeline.
type EmbeddedStore struct {
	db     *sql.DB
	dbPath string
}

// NewEmbeddedStore creates the embedded store under dataPath
func NewEmbeddedStore(dataPath string) (*EmbeddedStore, error) {
	if err := os.MkdirAll(dataPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataPath, "dbpulse.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &EmbeddedStore{db: db, dbPath: dbPath}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

func (s *EmbeddedStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS samples (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		instance TEXT NOT NULL,
		metric TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		value REAL NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_samples_lookup ON samples(instance, metric, timestamp);

	CREATE TABLE IF NOT EXISTS baselines (
		instance TEXT NOT NULL,
		metric TEXT NOT NULL,
		category TEXT NOT NULL,
		hour_of_day INTEGER NOT NULL DEFAULT -1,
		day_of_week INTEGER NOT NULL DEFAULT -1,
		mean REAL NOT NULL,
		stddev REAL NOT NULL,
		min_value REAL NOT NULL,
		max_value REAL NOT NULL,
		median REAL NOT NULL,
		p95 REAL NOT NULL,
		p99 REAL NOT NULL,
		sample_count INTEGER NOT NULL,
		calculated_at INTEGER NOT NULL,
		period_start INTEGER NOT NULL,
		period_end INTEGER NOT NULL,
		PRIMARY KEY (instance, metric, category, hour_of_day, day_of_week)
	);

	CREATE TABLE IF NOT EXISTS anomalies (
		id TEXT PRIMARY KEY,
		instance TEXT NOT NULL,
		metric TEXT NOT NULL,
		category TEXT NOT NULL,
		detected_at INTEGER NOT NULL,
		value REAL NOT NULL,
		baseline_mean REAL NOT NULL,
		baseline_stddev REAL NOT NULL,
		deviation_sigma REAL NOT NULL,
		severity TEXT NOT NULL,
		anomaly_type TEXT NOT NULL,
		direction TEXT NOT NULL,
		root_cause TEXT,
		acknowledged_at INTEGER,
		acknowledged_by TEXT,
		resolved_at INTEGER,
		resolution_notes TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_anomalies_instance_detected ON anomalies(instance, detected_at);
	CREATE INDEX IF NOT EXISTS idx_anomalies_open ON anomalies(instance, resolved_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// RecordSample stores one metric sample. Timestamps are kept as Unix
// seconds; seasonal bucketing reads them back in UTC.
func (s *EmbeddedStore) RecordSample(ctx context.Context, instance, metric string, value float64, ts time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO samples (instance, metric, timestamp, value) VALUES (?, ?, ?, ?)`,
		instance, metric, ts.Unix(), value)
	return err
}

// SampleStats aggregates samples over the last sinceDays days,
// optionally filtered to an hour-of-day or day-of-week bucket
func (s *EmbeddedStore) SampleStats(ctx context.Context, instance, metric string, sinceDays int, hourOfDay, dayOfWeek *int) (*SampleStats, error) {
	query := `SELECT value, timestamp FROM samples WHERE instance = ? AND metric = ? AND timestamp >= ?`
	args := []interface{}{instance, metric, time.Now().AddDate(0, 0, -sinceDays).Unix()}

	if hourOfDay != nil {
		query += ` AND CAST(strftime('%H', timestamp, 'unixepoch') AS INTEGER) = ?`
		args = append(args, *hourOfDay)
	}
	if dayOfWeek != nil {
		query += ` AND CAST(strftime('%w', timestamp, 'unixepoch') AS INTEGER) = ?`
		args = append(args, *dayOfWeek)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	var values []float64
	var timestamps []time.Time
	for rows.Next() {
		var v float64
		var ts int64
		if err := rows.Scan(&v, &ts); err != nil {
			return nil, err
		}
		values = append(values, v)
		timestamps = append(timestamps, time.Unix(ts, 0).UTC())
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return statsFromSamples(values, timestamps), nil
}

// LatestValues returns the most recent sample per metric
func (s *EmbeddedStore) LatestValues(ctx context.Context, instance string) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.metric, a.value FROM samples a
		WHERE a.instance = ?
		  AND a.timestamp = (SELECT MAX(b.timestamp) FROM samples b WHERE b.instance = a.instance AND b.metric = a.metric)`,
		instance)
	if err != nil {
		return nil, fmt.Errorf("query latest values: %w", err)
	}
	defer rows.Close()

	values := make(map[string]float64)
	for rows.Next() {
		var metric string
		var value float64
		if err := rows.Scan(&metric, &value); err != nil {
			return nil, err
		}
		values[metric] = value
	}
	return values, rows.Err()
}

// UpsertBaseline inserts or fully replaces the row for the baseline's key
func (s *EmbeddedStore) UpsertBaseline(ctx context.Context, b *Baseline) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO baselines (instance, metric, category, hour_of_day, day_of_week,
			mean, stddev, min_value, max_value, median, p95, p99,
			sample_count, calculated_at, period_start, period_end)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(instance, metric, category, hour_of_day, day_of_week) DO UPDATE SET
			mean = excluded.mean,
			stddev = excluded.stddev,
			min_value = excluded.min_value,
			max_value = excluded.max_value,
			median = excluded.median,
			p95 = excluded.p95,
			p99 = excluded.p99,
			sample_count = excluded.sample_count,
			calculated_at = excluded.calculated_at,
			period_start = excluded.period_start,
			period_end = excluded.period_end`,
		b.Instance, b.MetricName, b.Category, seasonalKey(b.HourOfDay), seasonalKey(b.DayOfWeek),
		b.Mean, b.StdDev, b.Min, b.Max, b.Median, b.P95, b.P99,
		b.SampleCount, b.CalculatedAt.Unix(), b.PeriodStart.Unix(), b.PeriodEnd.Unix())
	if err != nil {
		return fmt.Errorf("upsert baseline: %w", err)
	}
	return nil
}

// FindBaseline returns the baseline for an exact seasonal key, or nil
func (s *EmbeddedStore) FindBaseline(ctx context.Context, instance, metric string, hourOfDay, dayOfWeek *int) (*Baseline, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT instance, metric, category, hour_of_day, day_of_week,
			mean, stddev, min_value, max_value, median, p95, p99,
			sample_count, calculated_at, period_start, period_end
		FROM baselines
		WHERE instance = ? AND metric = ? AND hour_of_day = ? AND day_of_week = ?`,
		instance, metric, seasonalKey(hourOfDay), seasonalKey(dayOfWeek))

	var b Baseline
	var hour, day int
	var calculatedAt, periodStart, periodEnd int64
	err := row.Scan(&b.Instance, &b.MetricName, &b.Category, &hour, &day,
		&b.Mean, &b.StdDev, &b.Min, &b.Max, &b.Median, &b.P95, &b.P99,
		&b.SampleCount, &calculatedAt, &periodStart, &periodEnd)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find baseline: %w", err)
	}

	b.HourOfDay = fromSeasonalKey(hour)
	b.DayOfWeek = fromSeasonalKey(day)
	b.CalculatedAt = time.Unix(calculatedAt, 0).UTC()
	b.PeriodStart = time.Unix(periodStart, 0).UTC()
	b.PeriodEnd = time.Unix(periodEnd, 0).UTC()
	return &b, nil
}

// InsertAnomaly appends a new anomaly record
func (s *EmbeddedStore) InsertAnomaly(ctx context.Context, a *Anomaly) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO anomalies (id, instance, metric, category, detected_at, value,
			baseline_mean, baseline_stddev, deviation_sigma,
			severity, anomaly_type, direction, root_cause)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Instance, a.MetricName, a.MetricCategory, a.DetectedAt.Unix(), a.Value,
		a.BaselineMean, a.BaselineStdDev, a.DeviationSigma,
		a.Severity, a.AnomalyType, a.Direction, a.RootCause)
	if err != nil {
		return fmt.Errorf("insert anomaly: %w", err)
	}
	return nil
}

// OpenAnomalies returns unresolved anomalies, newest first
func (s *EmbeddedStore) OpenAnomalies(ctx context.Context, instance string) ([]*Anomaly, error) {
	return s.queryAnomalies(ctx, `
		SELECT `+anomalyColumns+` FROM anomalies
		WHERE instance = ? AND resolved_at IS NULL
		ORDER BY detected_at DESC`, instance)
}

// AnomaliesSince returns anomalies detected at or after since, capped at limit
func (s *EmbeddedStore) AnomaliesSince(ctx context.Context, instance string, since time.Time, limit int) ([]*Anomaly, error) {
	return s.queryAnomalies(ctx, `
		SELECT `+anomalyColumns+` FROM anomalies
		WHERE instance = ? AND detected_at >= ?
		ORDER BY detected_at DESC
		LIMIT ?`, instance, since.Unix(), limit)
}

// AcknowledgeAnomaly sets the acknowledgement fields
func (s *EmbeddedStore) AcknowledgeAnomaly(ctx context.Context, instance, id, user string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE anomalies SET acknowledged_at = ?, acknowledged_by = ?
		WHERE id = ? AND instance = ?`,
		time.Now().Unix(), user, id, instance)
	if err != nil {
		return fmt.Errorf("acknowledge anomaly: %w", err)
	}
	return nil
}

// ResolveAnomaly sets the resolution fields. Resolution is terminal.
func (s *EmbeddedStore) ResolveAnomaly(ctx context.Context, instance, id, notes string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE anomalies SET resolved_at = ?, resolution_notes = ?
		WHERE id = ? AND instance = ? AND resolved_at IS NULL`,
		time.Now().Unix(), notes, id, instance)
	if err != nil {
		return fmt.Errorf("resolve anomaly: %w", err)
	}
	return nil
}

// OpenCountsBySeverity returns unresolved anomaly counts keyed by the
// stored severity string
func (s *EmbeddedStore) OpenCountsBySeverity(ctx context.Context, instance string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT severity, COUNT(*) FROM anomalies
		WHERE instance = ? AND resolved_at IS NULL
		GROUP BY severity`, instance)
	if err != nil {
		return nil, fmt.Errorf("count anomalies: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var severity string
		var count int
		if err := rows.Scan(&severity, &count); err != nil {
			return nil, err
		}
		counts[severity] = count
	}
	return counts, rows.Err()
}

// PurgeSamples removes samples older than the retention window
func (s *EmbeddedStore) PurgeSamples(ctx context.Context, retention time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM samples WHERE timestamp < ?`,
		time.Now().Add(-retention).Unix())
	if err != nil {
		return 0, fmt.Errorf("purge samples: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the underlying database
func (s *EmbeddedStore) Close() error {
	return s.db.Close()
}

const anomalyColumns = `id, instance, metric, category, detected_at, value,
	baseline_mean, baseline_stddev, deviation_sigma,
	severity, anomaly_type, direction, root_cause,
	acknowledged_at, acknowledged_by, resolved_at, resolution_notes`

func (s *EmbeddedStore) queryAnomalies(ctx context.Context, query string, args ...interface{}) ([]*Anomaly, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query anomalies: %w", err)
	}
	defer rows.Close()

	var anomalies []*Anomaly
	for rows.Next() {
		a, err := scanAnomaly(rows)
		if err != nil {
			return nil, err
		}
		anomalies = append(anomalies, a)
	}
	return anomalies, rows.Err()
}

func scanAnomaly(rows *sql.Rows) (*Anomaly, error) {
	var a Anomaly
	var detectedAt int64
	var rootCause, ackBy, notes sql.NullString
	var ackAt, resolvedAt sql.NullInt64

	err := rows.Scan(&a.ID, &a.Instance, &a.MetricName, &a.MetricCategory, &detectedAt, &a.Value,
		&a.BaselineMean, &a.BaselineStdDev, &a.DeviationSigma,
		&a.Severity, &a.AnomalyType, &a.Direction, &rootCause,
		&ackAt, &ackBy, &resolvedAt, &notes)
	if err != nil {
		return nil, err
	}

	a.DetectedAt = time.Unix(detectedAt, 0).UTC()
	a.RootCause = rootCause.String
	a.AcknowledgedBy = ackBy.String
	a.ResolutionNotes = notes.String
	if ackAt.Valid {
		t := time.Unix(ackAt.Int64, 0).UTC()
		a.AcknowledgedAt = &t
	}
	if resolvedAt.Valid {
		t := time.Unix(resolvedAt.Int64, 0).UTC()
		a.ResolvedAt = &t
	}
	return &a, nil
}
