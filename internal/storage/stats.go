package storage

import (
	"math"
	"sort"
	"time"
)

// statsFromSamples computes the aggregate profile for one bucket of
// raw sample values. Both SQL backends fetch values and share this so
// percentile math stays identical across them.
func statsFromSamples(values []float64, timestamps []time.Time) *SampleStats {
	if len(values) == 0 {
		return nil
	}

	s := &SampleStats{
		Count:       int64(len(values)),
		Min:         values[0],
		Max:         values[0],
		PeriodStart: timestamps[0],
		PeriodEnd:   timestamps[0],
	}

	var sum float64
	for i, v := range values {
		sum += v
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
		if timestamps[i].Before(s.PeriodStart) {
			s.PeriodStart = timestamps[i]
		}
		if timestamps[i].After(s.PeriodEnd) {
			s.PeriodEnd = timestamps[i]
		}
	}
	s.Mean = sum / float64(len(values))
	s.StdDev = sampleStdDev(values, s.Mean)

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	s.Median = percentile(sorted, 50)
	s.P95 = percentile(sorted, 95)
	s.P99 = percentile(sorted, 99)

	return s
}

// sampleStdDev is the n-1 sample standard deviation
func sampleStdDev(values []float64, mean float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sumSquares float64
	for _, v := range values {
		diff := v - mean
		sumSquares += diff * diff
	}
	return math.Sqrt(sumSquares / float64(len(values)-1))
}

// percentile interpolates linearly between the two nearest ranks
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	index := (p / 100.0) * float64(len(sorted)-1)
	lower := int(index)
	upper := lower + 1
	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	fraction := index - float64(lower)
	return sorted[lower] + fraction*(sorted[upper]-sorted[lower])
}

// Seasonal key columns use -1 for "not set" so the composite UNIQUE
// constraint treats the overall bucket as a single row.
const noSeasonalKey = -1

func seasonalKey(v *int) int {
	if v == nil {
		return noSeasonalKey
	}
	return *v
}

func fromSeasonalKey(v int) *int {
	if v == noSeasonalKey {
		return nil
	}
	return &v
}
