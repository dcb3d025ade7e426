package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *EmbeddedStore {
	t.Helper()
	store, err := NewEmbeddedStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNewEmbeddedStore(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewEmbeddedStore(tmpDir)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer store.Close()

	if store.db == nil {
		t.Error("expected db to be initialized")
	}
	if _, err := os.Stat(filepath.Join(tmpDir, "dbpulse.db")); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestEmbeddedStore_SampleStatsFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().AddDate(0, 0, -2)
	at3 := time.Date(base.Year(), base.Month(), base.Day(), 3, 0, 0, 0, time.UTC)
	at9 := time.Date(base.Year(), base.Month(), base.Day(), 9, 0, 0, 0, time.UTC)

	for i := 0; i < 12; i++ {
		if err := store.RecordSample(ctx, "db1", "m1", 100+float64(i), at3.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("record: %v", err)
		}
		if err := store.RecordSample(ctx, "db1", "m1", 200+float64(i), at9.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	// Another instance's samples must not leak in
	store.RecordSample(ctx, "db2", "m1", 9999, at3)

	overall, err := store.SampleStats(ctx, "db1", "m1", 30, nil, nil)
	if err != nil {
		t.Fatalf("overall stats: %v", err)
	}
	if overall == nil || overall.Count != 24 {
		t.Fatalf("expected 24 samples overall, got %+v", overall)
	}

	hour := 3
	hourly, err := store.SampleStats(ctx, "db1", "m1", 30, &hour, nil)
	if err != nil {
		t.Fatalf("hourly stats: %v", err)
	}
	if hourly == nil || hourly.Count != 12 {
		t.Fatalf("expected 12 samples at hour 3, got %+v", hourly)
	}
	if hourly.Mean < 100 || hourly.Mean > 111 {
		t.Errorf("hourly mean outside expected range: %f", hourly.Mean)
	}
	if hourly.Min != 100 || hourly.Max != 111 {
		t.Errorf("unexpected hourly min/max: %f/%f", hourly.Min, hourly.Max)
	}
	if hourly.PeriodStart.After(hourly.PeriodEnd) {
		t.Error("period start after period end")
	}

	day := int(at3.Weekday())
	daily, err := store.SampleStats(ctx, "db1", "m1", 30, nil, &day)
	if err != nil {
		t.Fatalf("daily stats: %v", err)
	}
	if daily == nil || daily.Count != 24 {
		t.Fatalf("expected 24 samples for the day bucket, got %+v", daily)
	}
}

func TestEmbeddedStore_SampleStatsEmpty(t *testing.T) {
	store := newTestStore(t)
	stats, err := store.SampleStats(context.Background(), "db1", "missing", 30, nil, nil)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats != nil {
		t.Errorf("expected nil stats for unknown metric, got %+v", stats)
	}
}

func TestEmbeddedStore_SampleWindowExcludesOld(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.RecordSample(ctx, "db1", "m1", 1, time.Now().UTC().AddDate(0, 0, -40))
	store.RecordSample(ctx, "db1", "m1", 2, time.Now().UTC().AddDate(0, 0, -1))

	stats, err := store.SampleStats(ctx, "db1", "m1", 30, nil, nil)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats == nil || stats.Count != 1 {
		t.Fatalf("expected only the in-window sample, got %+v", stats)
	}
}

func TestEmbeddedStore_LatestValues(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	store.RecordSample(ctx, "db1", "m1", 10, now.Add(-2*time.Hour))
	store.RecordSample(ctx, "db1", "m1", 20, now.Add(-time.Minute))
	store.RecordSample(ctx, "db1", "m2", 5, now.Add(-time.Minute))

	values, err := store.LatestValues(ctx, "db1")
	if err != nil {
		t.Fatalf("latest values: %v", err)
	}
	if values["m1"] != 20 {
		t.Errorf("expected latest m1 value 20, got %f", values["m1"])
	}
	if values["m2"] != 5 {
		t.Errorf("expected latest m2 value 5, got %f", values["m2"])
	}
}

func TestEmbeddedStore_BaselineUpsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	hour := 14
	b := &Baseline{
		Instance:     "db1",
		MetricName:   "m1",
		Category:     "performance",
		HourOfDay:    &hour,
		Mean:         100,
		StdDev:       10,
		Min:          60,
		Max:          140,
		Median:       99,
		P95:          120,
		P99:          135,
		SampleCount:  50,
		CalculatedAt: now,
		PeriodStart:  now.AddDate(0, 0, -30),
		PeriodEnd:    now,
	}
	if err := store.UpsertBaseline(ctx, b); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// A second upsert for the same key replaces, never appends
	b.Mean = 110
	b.SampleCount = 60
	if err := store.UpsertBaseline(ctx, b); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := store.FindBaseline(ctx, "db1", "m1", &hour, nil)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got == nil {
		t.Fatal("expected baseline to exist")
	}
	if got.Mean != 110 || got.SampleCount != 60 {
		t.Errorf("expected replaced values, got mean %f count %d", got.Mean, got.SampleCount)
	}
	if got.HourOfDay == nil || *got.HourOfDay != 14 || got.DayOfWeek != nil {
		t.Errorf("seasonal key mangled: %+v", got)
	}
	if !got.CalculatedAt.Equal(now) {
		t.Errorf("expected calculated_at %v, got %v", now, got.CalculatedAt)
	}
}

func TestEmbeddedStore_BaselineBucketsDistinct(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	hour := 0
	day := 0
	buckets := []*Baseline{
		{Instance: "db1", MetricName: "m1", Category: "c", Mean: 1, CalculatedAt: now, PeriodStart: now, PeriodEnd: now},
		{Instance: "db1", MetricName: "m1", Category: "c", HourOfDay: &hour, Mean: 2, CalculatedAt: now, PeriodStart: now, PeriodEnd: now},
		{Instance: "db1", MetricName: "m1", Category: "c", DayOfWeek: &day, Mean: 3, CalculatedAt: now, PeriodStart: now, PeriodEnd: now},
	}
	for _, b := range buckets {
		if err := store.UpsertBaseline(ctx, b); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	overall, _ := store.FindBaseline(ctx, "db1", "m1", nil, nil)
	hourly, _ := store.FindBaseline(ctx, "db1", "m1", &hour, nil)
	daily, _ := store.FindBaseline(ctx, "db1", "m1", nil, &day)

	if overall == nil || overall.Mean != 1 {
		t.Errorf("overall bucket wrong: %+v", overall)
	}
	if hourly == nil || hourly.Mean != 2 {
		t.Errorf("hour-0 bucket wrong: %+v", hourly)
	}
	if daily == nil || daily.Mean != 3 {
		t.Errorf("day-0 bucket wrong: %+v", daily)
	}
}

func TestEmbeddedStore_AnomalyLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	a := &Anomaly{
		ID: "a1", Instance: "db1", MetricName: "m1", MetricCategory: "c",
		DetectedAt: now, Value: 150, BaselineMean: 100, BaselineStdDev: 10,
		DeviationSigma: 5, Severity: "critical", AnomalyType: "spike",
		Direction: "above", RootCause: "check things",
	}
	if err := store.InsertAnomaly(ctx, a); err != nil {
		t.Fatalf("insert: %v", err)
	}
	store.InsertAnomaly(ctx, &Anomaly{
		ID: "a2", Instance: "db1", MetricName: "m2", MetricCategory: "c",
		DetectedAt: now.Add(-time.Hour), Severity: "low", AnomalyType: "spike", Direction: "below",
	})

	open, err := store.OpenAnomalies(ctx, "db1")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if len(open) != 2 {
		t.Fatalf("expected 2 open anomalies, got %d", len(open))
	}
	if open[0].ID != "a1" {
		t.Errorf("expected newest first, got %s", open[0].ID)
	}
	if open[0].RootCause != "check things" {
		t.Errorf("root cause lost: %q", open[0].RootCause)
	}

	// Acknowledge keeps it open
	if err := store.AcknowledgeAnomaly(ctx, "db1", "a1", "dba"); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	open, _ = store.OpenAnomalies(ctx, "db1")
	if len(open) != 2 {
		t.Fatalf("acknowledged anomaly left the open set")
	}
	if open[0].AcknowledgedAt == nil || open[0].AcknowledgedBy != "dba" {
		t.Error("acknowledgement fields not set")
	}

	// Resolve removes it from the open set
	if err := store.ResolveAnomaly(ctx, "db1", "a1", "fixed"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	open, _ = store.OpenAnomalies(ctx, "db1")
	if len(open) != 1 || open[0].ID != "a2" {
		t.Fatalf("expected only a2 open, got %d", len(open))
	}

	// Still visible in history
	history, err := store.AnomaliesSince(ctx, "db1", now.Add(-2*time.Hour), 100)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected both anomalies in history, got %d", len(history))
	}

	// Resolution is terminal: a second resolve must not overwrite
	store.ResolveAnomaly(ctx, "db1", "a1", "different notes")
	history, _ = store.AnomaliesSince(ctx, "db1", now.Add(-2*time.Hour), 100)
	for _, h := range history {
		if h.ID == "a1" && h.ResolutionNotes != "fixed" {
			t.Errorf("resolution overwritten: %q", h.ResolutionNotes)
		}
	}
}

func TestEmbeddedStore_AnomalyForeignInstance(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.InsertAnomaly(ctx, &Anomaly{
		ID: "a1", Instance: "db1", MetricName: "m1", DetectedAt: time.Now().UTC(),
		Severity: "high", AnomalyType: "spike", Direction: "above",
	})

	if err := store.AcknowledgeAnomaly(ctx, "db2", "a1", "intruder"); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	if err := store.ResolveAnomaly(ctx, "db2", "a1", "intruder"); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	open, _ := store.OpenAnomalies(ctx, "db1")
	if len(open) != 1 {
		t.Fatal("foreign instance mutated the anomaly")
	}
	if open[0].AcknowledgedAt != nil || open[0].ResolvedAt != nil {
		t.Error("foreign instance set lifecycle fields")
	}
}

func TestEmbeddedStore_OpenCountsBySeverity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	severities := []string{"critical", "critical", "low", "high"}
	for i, sev := range severities {
		store.InsertAnomaly(ctx, &Anomaly{
			ID: string(rune('a' + i)), Instance: "db1", MetricName: "m1",
			DetectedAt: now, Severity: sev, AnomalyType: "spike", Direction: "above",
		})
	}
	store.ResolveAnomaly(ctx, "db1", "a", "done")

	counts, err := store.OpenCountsBySeverity(ctx, "db1")
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts["critical"] != 1 || counts["low"] != 1 || counts["high"] != 1 {
		t.Errorf("unexpected counts: %+v", counts)
	}
}

func TestEmbeddedStore_AnomaliesSinceLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 10; i++ {
		store.InsertAnomaly(ctx, &Anomaly{
			ID: string(rune('a' + i)), Instance: "db1", MetricName: "m1",
			DetectedAt: now.Add(-time.Duration(i) * time.Minute),
			Severity:   "low", AnomalyType: "spike", Direction: "above",
		})
	}

	got, err := store.AnomaliesSince(ctx, "db1", now.Add(-time.Hour), 5)
	if err != nil {
		t.Fatalf("since: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("expected limit of 5, got %d", len(got))
	}
	if got[0].ID != "a" {
		t.Errorf("expected newest first, got %s", got[0].ID)
	}
}

func TestEmbeddedStore_PurgeSamples(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.RecordSample(ctx, "db1", "m1", 1, time.Now().UTC().AddDate(0, 0, -90))
	store.RecordSample(ctx, "db1", "m1", 2, time.Now().UTC())

	purged, err := store.PurgeSamples(ctx, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 1 {
		t.Errorf("expected 1 purged sample, got %d", purged)
	}
}
