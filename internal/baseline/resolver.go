package baseline

import (
	"context"

	"github.com/savegress/dbpulse/internal/storage"
)

// Resolver selects the most specific trustworthy baseline for a
// metric at a given time context. Seasonal buckets carry more signal
// but are sparser, so an under-sampled seasonal bucket loses to a
// broader one rather than triggering on noise.
type Resolver struct {
	store storage.BaselineStore
}

// NewResolver creates a resolver over a baseline store
func NewResolver(store storage.BaselineStore) *Resolver {
	return &Resolver{store: store}
}

// FindBest returns the best baseline for the given hour-of-day and
// day-of-week, or nil when nothing usable is stored. Preference:
// hourly bucket, then daily bucket (each only with enough samples),
// then the overall bucket regardless of the sample floor.
func (r *Resolver) FindBest(ctx context.Context, instance, metric string, hour, day int) (*storage.Baseline, error) {
	b, err := r.store.FindBaseline(ctx, instance, metric, &hour, nil)
	if err != nil {
		return nil, err
	}
	if b != nil && b.SampleCount >= MinSamples {
		return b, nil
	}

	b, err = r.store.FindBaseline(ctx, instance, metric, nil, &day)
	if err != nil {
		return nil, err
	}
	if b != nil && b.SampleCount >= MinSamples {
		return b, nil
	}

	return r.store.FindBaseline(ctx, instance, metric, nil, nil)
}
