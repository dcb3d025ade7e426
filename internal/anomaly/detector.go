package anomaly

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/savegress/dbpulse/internal/alerts"
	"github.com/savegress/dbpulse/internal/baseline"
	"github.com/savegress/dbpulse/internal/catalog"
	"github.com/savegress/dbpulse/internal/storage"
)

// Detector compares current metric values against resolved baselines,
// classifies deviations and persists anomaly records. High-severity
// anomalies additionally fire an alert.
type Detector struct {
	catalog     catalog.Catalog
	samples     storage.SampleSource
	resolver    *baseline.Resolver
	store       storage.AnomalyStore
	dispatcher  alerts.Dispatcher
	suggestions SuggestionTable

	now func() time.Time
}

// NewDetector creates an anomaly detector. A nil suggestions table
// falls back to the built-in one; a nil dispatcher disables alerting.
func NewDetector(cat catalog.Catalog, samples storage.SampleSource, resolver *baseline.Resolver, store storage.AnomalyStore, dispatcher alerts.Dispatcher, suggestions SuggestionTable) *Detector {
	if suggestions == nil {
		suggestions = DefaultSuggestions()
	}
	return &Detector{
		catalog:     cat,
		samples:     samples,
		resolver:    resolver,
		store:       store,
		dispatcher:  dispatcher,
		suggestions: suggestions,
		now:         time.Now,
	}
}

// DetectAnomalies runs one detection pass for an instance and returns
// the anomalies found. The pass never fails as a whole: a metric that
// cannot be scored is skipped and the rest still run, so the result
// may be partial.
func (d *Detector) DetectAnomalies(ctx context.Context, instance string) []*Anomaly {
	values, err := d.samples.LatestValues(ctx, instance)
	if err != nil {
		log.Printf("detect: %s: fetch latest values: %v", instance, err)
		return nil
	}

	now := d.now().UTC()
	hour := now.Hour()
	day := int(now.Weekday())

	var anomalies []*Anomaly
	for _, metric := range d.catalog {
		value, ok := values[metric.Name]
		if !ok {
			continue
		}

		b, err := d.resolver.FindBest(ctx, instance, metric.Name, hour, day)
		if err != nil {
			log.Printf("detect: %s/%s: resolve baseline: %v", instance, metric.Name, err)
			continue
		}
		// No baseline or zero variance means no meaningful z-score
		if b == nil || b.StdDev == 0 {
			continue
		}

		sigma := (value - b.Mean) / b.StdDev
		severity, anomalous := classifySeverity(math.Abs(sigma))
		if !anomalous {
			continue
		}

		direction := DirectionAbove
		if sigma < 0 {
			direction = DirectionBelow
		}

		a := &Anomaly{
			ID:                uuid.New().String(),
			Instance:          instance,
			MetricName:        metric.Name,
			MetricCategory:    metric.Category,
			DetectedAt:        now,
			Value:             value,
			BaselineMean:      b.Mean,
			BaselineStdDev:    b.StdDev,
			DeviationSigma:    sigma,
			Severity:          severity,
			Type:              AnomalySpike,
			Direction:         direction,
			RootCause:         d.suggestions.Suggest(metric.Name, direction),
			CorrelatedMetrics: d.findCorrelated(ctx, instance, metric.Name, values, hour, day),
		}

		if err := d.store.InsertAnomaly(ctx, a.record()); err != nil {
			log.Printf("detect: %s/%s: persist anomaly: %v", instance, metric.Name, err)
			continue
		}

		if severity == SeverityCritical || severity == SeverityHigh {
			d.fireAlert(ctx, a)
		}

		anomalies = append(anomalies, a)
	}

	return anomalies
}

// findCorrelated scans every other catalog metric for a simultaneous
// deviation at the same time context. This is co-occurrence, not
// causal attribution; each metric is scored against its own baseline.
func (d *Detector) findCorrelated(ctx context.Context, instance, primary string, values map[string]float64, hour, day int) []CorrelatedMetric {
	var correlated []CorrelatedMetric
	for _, metric := range d.catalog {
		if metric.Name == primary {
			continue
		}
		value, ok := values[metric.Name]
		if !ok {
			continue
		}

		b, err := d.resolver.FindBest(ctx, instance, metric.Name, hour, day)
		if err != nil {
			log.Printf("detect: %s/%s: resolve correlated baseline: %v", instance, metric.Name, err)
			continue
		}
		if b == nil || b.StdDev == 0 || b.Mean == 0 {
			continue
		}

		sigma := (value - b.Mean) / b.StdDev
		if math.Abs(sigma) < DetectionThreshold {
			continue
		}

		direction := DirectionAbove
		if sigma < 0 {
			direction = DirectionBelow
		}
		correlated = append(correlated, CorrelatedMetric{
			MetricName:    metric.Name,
			PercentChange: (value - b.Mean) / b.Mean * 100,
			Direction:     direction,
		})
	}
	return correlated
}

// fireAlert notifies the dispatcher. Dispatch failures are logged and
// swallowed; the anomaly record already exists.
func (d *Detector) fireAlert(ctx context.Context, a *Anomaly) {
	if d.dispatcher == nil {
		return
	}

	alertKey := fmt.Sprintf("anomaly:%s:%s", a.Instance, a.MetricName)
	title := fmt.Sprintf("[%s] %s anomaly on %s", strings.ToUpper(string(a.Severity)), a.MetricName, a.Instance)
	message := fmt.Sprintf("%s is %.2f, baseline %.2f ± %.2f (%.1f sigma %s). %s",
		a.MetricName, a.Value, a.BaselineMean, a.BaselineStdDev,
		math.Abs(a.DeviationSigma), a.Direction, a.RootCause)

	if err := d.dispatcher.FireAlert(ctx, a.Instance, alertKey, title, message); err != nil {
		log.Printf("detect: %s/%s: dispatch alert: %v", a.Instance, a.MetricName, err)
	}
}
