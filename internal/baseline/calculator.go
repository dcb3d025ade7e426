package baseline

import (
	"context"
	"log"
	"time"

	"github.com/savegress/dbpulse/internal/catalog"
	"github.com/savegress/dbpulse/internal/storage"
)

// MinSamples is the floor below which a bucket is considered
// statistically unreliable. Buckets under the floor are not stored,
// and the resolver will not act on a seasonal bucket under it.
const MinSamples = 10

// Calculator computes statistical baselines from historical samples.
// For every catalog metric it produces one overall profile, 24
// hour-of-day profiles and 7 day-of-week profiles.
type Calculator struct {
	catalog      catalog.Catalog
	samples      storage.SampleSource
	store        storage.BaselineStore
	trainingDays int
}

// NewCalculator creates a baseline calculator over trainingDays of history
func NewCalculator(cat catalog.Catalog, samples storage.SampleSource, store storage.BaselineStore, trainingDays int) *Calculator {
	return &Calculator{
		catalog:      cat,
		samples:      samples,
		store:        store,
		trainingDays: trainingDays,
	}
}

// CalculateBaselines recomputes all baselines for an instance.
// Each accepted bucket is upserted by its composite key, so a re-run
// over identical data replaces rows rather than adding them. Failures
// are logged per bucket and never stop the remaining work. Returns
// how many buckets were stored and how many failed.
func (c *Calculator) CalculateBaselines(ctx context.Context, instance string) (stored, failed int) {
	for _, metric := range c.catalog {
		// Overall bucket
		if ok, err := c.calculateBucket(ctx, instance, metric, nil, nil); err != nil {
			log.Printf("baseline: %s/%s overall: %v", instance, metric.Name, err)
			failed++
		} else if ok {
			stored++
		}

		// Hourly buckets
		for hour := 0; hour < 24; hour++ {
			h := hour
			if ok, err := c.calculateBucket(ctx, instance, metric, &h, nil); err != nil {
				log.Printf("baseline: %s/%s hour %d: %v", instance, metric.Name, hour, err)
				failed++
			} else if ok {
				stored++
			}
		}

		// Daily buckets
		for day := 0; day < 7; day++ {
			d := day
			if ok, err := c.calculateBucket(ctx, instance, metric, nil, &d); err != nil {
				log.Printf("baseline: %s/%s day %d: %v", instance, metric.Name, day, err)
				failed++
			} else if ok {
				stored++
			}
		}
	}

	log.Printf("baseline: %s calculated %d buckets (%d failed)", instance, stored, failed)
	return stored, failed
}

// calculateBucket computes and stores one bucket. Returns false with
// a nil error when the bucket has too few samples to be trustworthy.
func (c *Calculator) calculateBucket(ctx context.Context, instance string, metric catalog.MetricDefinition, hourOfDay, dayOfWeek *int) (bool, error) {
	stats, err := c.samples.SampleStats(ctx, instance, metric.Name, c.trainingDays, hourOfDay, dayOfWeek)
	if err != nil {
		return false, err
	}
	if stats == nil || stats.Count < MinSamples {
		return false, nil
	}

	b := &storage.Baseline{
		Instance:     instance,
		MetricName:   metric.Name,
		Category:     metric.Category,
		HourOfDay:    hourOfDay,
		DayOfWeek:    dayOfWeek,
		Mean:         stats.Mean,
		StdDev:       stats.StdDev,
		Min:          stats.Min,
		Max:          stats.Max,
		Median:       stats.Median,
		P95:          stats.P95,
		P99:          stats.P99,
		SampleCount:  stats.Count,
		CalculatedAt: time.Now().UTC(),
		PeriodStart:  stats.PeriodStart,
		PeriodEnd:    stats.PeriodEnd,
	}

	if err := c.store.UpsertBaseline(ctx, b); err != nil {
		return false, err
	}
	return true, nil
}
