package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore implements Store on PostgreSQL for deployments that
// keep monitoring state in a shared database instead of a local file.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection pool and ensures the schema
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PostgresStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS samples (
		id BIGSERIAL PRIMARY KEY,
		instance TEXT NOT NULL,
		metric TEXT NOT NULL,
		ts TIMESTAMPTZ NOT NULL,
		value DOUBLE PRECISION NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_samples_lookup ON samples(instance, metric, ts);

	CREATE TABLE IF NOT EXISTS baselines (
		instance TEXT NOT NULL,
		metric TEXT NOT NULL,
		category TEXT NOT NULL,
		hour_of_day INT NOT NULL DEFAULT -1,
		day_of_week INT NOT NULL DEFAULT -1,
		mean DOUBLE PRECISION NOT NULL,
		stddev DOUBLE PRECISION NOT NULL,
		min_value DOUBLE PRECISION NOT NULL,
		max_value DOUBLE PRECISION NOT NULL,
		median DOUBLE PRECISION NOT NULL,
		p95 DOUBLE PRECISION NOT NULL,
		p99 DOUBLE PRECISION NOT NULL,
		sample_count BIGINT NOT NULL,
		calculated_at TIMESTAMPTZ NOT NULL,
		period_start TIMESTAMPTZ NOT NULL,
		period_end TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (instance, metric, category, hour_of_day, day_of_week)
	);

	CREATE TABLE IF NOT EXISTS anomalies (
		id TEXT PRIMARY KEY,
		instance TEXT NOT NULL,
		metric TEXT NOT NULL,
		category TEXT NOT NULL,
		detected_at TIMESTAMPTZ NOT NULL,
		value DOUBLE PRECISION NOT NULL,
		baseline_mean DOUBLE PRECISION NOT NULL,
		baseline_stddev DOUBLE PRECISION NOT NULL,
		deviation_sigma DOUBLE PRECISION NOT NULL,
		severity TEXT NOT NULL,
		anomaly_type TEXT NOT NULL,
		direction TEXT NOT NULL,
		root_cause TEXT,
		acknowledged_at TIMESTAMPTZ,
		acknowledged_by TEXT,
		resolved_at TIMESTAMPTZ,
		resolution_notes TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_anomalies_instance_detected ON anomalies(instance, detected_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RecordSample stores one metric sample
func (s *PostgresStore) RecordSample(ctx context.Context, instance, metric string, value float64, ts time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO samples (instance, metric, ts, value) VALUES ($1, $2, $3, $4)`,
		instance, metric, ts.UTC(), value)
	return err
}

// SampleStats aggregates samples over the last sinceDays days
func (s *PostgresStore) SampleStats(ctx context.Context, instance, metric string, sinceDays int, hourOfDay, dayOfWeek *int) (*SampleStats, error) {
	query := `SELECT value, ts FROM samples WHERE instance = $1 AND metric = $2 AND ts >= $3`
	args := []interface{}{instance, metric, time.Now().AddDate(0, 0, -sinceDays).UTC()}

	if hourOfDay != nil {
		args = append(args, *hourOfDay)
		query += fmt.Sprintf(` AND EXTRACT(HOUR FROM ts AT TIME ZONE 'UTC')::int = $%d`, len(args))
	}
	if dayOfWeek != nil {
		args = append(args, *dayOfWeek)
		query += fmt.Sprintf(` AND EXTRACT(DOW FROM ts AT TIME ZONE 'UTC')::int = $%d`, len(args))
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
		var ts time.Time
		if err := rows.Scan(&v, &ts); err != nil {
			return nil, err
		}
		values = append(values, v)
		timestamps = append(timestamps, ts.UTC())
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return statsFromSamples(values, timestamps), nil
}

// LatestValues returns the most recent sample per metric
func (s *PostgresStore) LatestValues(ctx context.Context, instance string) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT ON (metric) metric, value FROM samples
		WHERE instance = $1
		ORDER BY metric, ts DESC`, instance)
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
func (s *PostgresStore) UpsertBaseline(ctx context.Context, b *Baseline) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO baselines (instance, metric, category, hour_of_day, day_of_week,
			mean, stddev, min_value, max_value, median, p95, p99,
			sample_count, calculated_at, period_start, period_end)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (instance, metric, category, hour_of_day, day_of_week) DO UPDATE SET
			mean = EXCLUDED.mean,
			stddev = EXCLUDED.stddev,
			min_value = EXCLUDED.min_value,
			max_value = EXCLUDED.max_value,
			median = EXCLUDED.median,
			p95 = EXCLUDED.p95,
			p99 = EXCLUDED.p99,
			sample_count = EXCLUDED.sample_count,
			calculated_at = EXCLUDED.calculated_at,
			period_start = EXCLUDED.period_start,
			period_end = EXCLUDED.period_end`,
		b.Instance, b.MetricName, b.Category, seasonalKey(b.HourOfDay), seasonalKey(b.DayOfWeek),
		b.Mean, b.StdDev, b.Min, b.Max, b.Median, b.P95, b.P99,
		b.SampleCount, b.CalculatedAt.UTC(), b.PeriodStart.UTC(), b.PeriodEnd.UTC())
	if err != nil {
		return fmt.Errorf("upsert baseline: %w", err)
	}
	return nil
}

// FindBaseline returns the baseline for an exact seasonal key, or nil
func (s *PostgresStore) FindBaseline(ctx context.Context, instance, metric string, hourOfDay, dayOfWeek *int) (*Baseline, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT instance, metric, category, hour_of_day, day_of_week,
			mean, stddev, min_value, max_value, median, p95, p99,
			sample_count, calculated_at, period_start, period_end
		FROM baselines
		WHERE instance = $1 AND metric = $2 AND hour_of_day = $3 AND day_of_week = $4`,
		instance, metric, seasonalKey(hourOfDay), seasonalKey(dayOfWeek))

	var b Baseline
	var hour, day int
	err := row.Scan(&b.Instance, &b.MetricName, &b.Category, &hour, &day,
		&b.Mean, &b.StdDev, &b.Min, &b.Max, &b.Median, &b.P95, &b.P99,
		&b.SampleCount, &b.CalculatedAt, &b.PeriodStart, &b.PeriodEnd)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find baseline: %w", err)
	}

	b.HourOfDay = fromSeasonalKey(hour)
	b.DayOfWeek = fromSeasonalKey(day)
	return &b, nil
}

// InsertAnomaly appends a new anomaly record
func (s *PostgresStore) InsertAnomaly(ctx context.Context, a *Anomaly) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO anomalies (id, instance, metric, category, detected_at, value,
			baseline_mean, baseline_stddev, deviation_sigma,
			severity, anomaly_type, direction, root_cause)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		a.ID, a.Instance, a.MetricName, a.MetricCategory, a.DetectedAt.UTC(), a.Value,
		a.BaselineMean, a.BaselineStdDev, a.DeviationSigma,
		a.Severity, a.AnomalyType, a.Direction, a.RootCause)
	if err != nil {
		return fmt.Errorf("insert anomaly: %w", err)
	}
	return nil
}

// OpenAnomalies returns unresolved anomalies, newest first
func (s *PostgresStore) OpenAnomalies(ctx context.Context, instance string) ([]*Anomaly, error) {
	return s.queryAnomalies(ctx, `
		SELECT `+anomalyColumns+` FROM anomalies
		WHERE instance = $1 AND resolved_at IS NULL
		ORDER BY detected_at DESC`, instance)
}

// AnomaliesSince returns anomalies detected at or after since, capped at limit
func (s *PostgresStore) AnomaliesSince(ctx context.Context, instance string, since time.Time, limit int) ([]*Anomaly, error) {
	return s.queryAnomalies(ctx, `
		SELECT `+anomalyColumns+` FROM anomalies
		WHERE instance = $1 AND detected_at >= $2
		ORDER BY detected_at DESC
		LIMIT $3`, instance, since.UTC(), limit)
}

// AcknowledgeAnomaly sets the acknowledgement fields
func (s *PostgresStore) AcknowledgeAnomaly(ctx context.Context, instance, id, user string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE anomalies SET acknowledged_at = NOW(), acknowledged_by = $1
		WHERE id = $2 AND instance = $3`, user, id, instance)
	if err != nil {
		return fmt.Errorf("acknowledge anomaly: %w", err)
	}
	return nil
}

// ResolveAnomaly sets the resolution fields. Resolution is terminal.
func (s *PostgresStore) ResolveAnomaly(ctx context.Context, instance, id, notes string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE anomalies SET resolved_at = NOW(), resolution_notes = $1
		WHERE id = $2 AND instance = $3 AND resolved_at IS NULL`, notes, id, instance)
	if err != nil {
		return fmt.Errorf("resolve anomaly: %w", err)
	}
	return nil
}

// OpenCountsBySeverity returns unresolved anomaly counts keyed by the
// stored severity string
func (s *PostgresStore) OpenCountsBySeverity(ctx context.Context, instance string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT severity, COUNT(*) FROM anomalies
		WHERE instance = $1 AND resolved_at IS NULL
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
func (s *PostgresStore) PurgeSamples(ctx context.Context, retention time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM samples WHERE ts < $1`,
		time.Now().Add(-retention).UTC())
	if err != nil {
		return 0, fmt.Errorf("purge samples: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the connection pool
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) queryAnomalies(ctx context.Context, query string, args ...interface{}) ([]*Anomaly, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query anomalies: %w", err)
	}
	defer rows.Close()

	var anomalies []*Anomaly
	for rows.Next() {
		a, err := scanAnomalyPG(rows)
		if err != nil {
			return nil, err
		}
		anomalies = append(anomalies, a)
	}
	return anomalies, rows.Err()
}

func scanAnomalyPG(rows *sql.Rows) (*Anomaly, error) {
	var a Anomaly
	var rootCause, ackBy, notes sql.NullString
	var ackAt, resolvedAt sql.NullTime

	err := rows.Scan(&a.ID, &a.Instance, &a.MetricName, &a.MetricCategory, &a.DetectedAt, &a.Value,
		&a.BaselineMean, &a.BaselineStdDev, &a.DeviationSigma,
		&a.Severity, &a.AnomalyType, &a.Direction, &rootCause,
		&ackAt, &ackBy, &resolvedAt, &notes)
	if err != nil {
		return nil, err
	}

	a.RootCause = rootCause.String
	a.AcknowledgedBy = ackBy.String
	a.ResolutionNotes = notes.String
	if ackAt.Valid {
		t := ackAt.Time.UTC()
		a.AcknowledgedAt = &t
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time.UTC()
		a.ResolvedAt = &t
	}
	return &a, nil
}
