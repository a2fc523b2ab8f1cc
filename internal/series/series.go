// Package series holds normalized price histories and the statistics derived
// from them: log returns, realized volatility and point lookups.
package series

import (
	"fmt"
	"iter"
	"math"
	"sort"
	"time"

	"foresight/internal/domain"
)

const day = 24 * time.Hour

// Series is an immutable, strictly ascending sequence of positive price
// samples for one asset.
type Series struct {
	assetID string
	samples []domain.PriceSample
}

// New normalizes samples into a Series: they are sorted by time and duplicate
// timestamps collapse to the last one given. Any price <= 0 is rejected.
// The input slice is not retained.
func New(assetID string, samples []domain.PriceSample) (*Series, error) {
	out := make([]domain.PriceSample, len(samples))
	copy(out, samples)

	for _, smp := range out {
		if !(smp.Price > 0) {
			return nil, fmt.Errorf("asset %s at %s: %w", assetID, smp.Time.UTC().Format(time.RFC3339), ErrNonPositivePrice)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })

	dedup := out[:0]
	for _, smp := range out {
		if n := len(dedup); n > 0 && dedup[n-1].Time.Equal(smp.Time) {
			dedup[n-1] = smp
			continue
		}
		dedup = append(dedup, smp)
	}

	return &Series{assetID: assetID, samples: dedup}, nil
}

// AssetID returns the asset the samples belong to.
func (s *Series) AssetID() string { return s.assetID }

// Len returns the number of samples.
func (s *Series) Len() int { return len(s.samples) }

// At returns the i-th sample. It panics if i is out of range.
func (s *Series) At(i int) domain.PriceSample { return s.samples[i] }

// Samples returns a copy of the samples.
func (s *Series) Samples() []domain.PriceSample {
	out := make([]domain.PriceSample, len(s.samples))
	copy(out, s.samples)
	return out
}

// First returns the earliest sample.
func (s *Series) First() (domain.PriceSample, error) {
	if len(s.samples) == 0 {
		return domain.PriceSample{}, &EmptySeriesError{AssetID: s.assetID}
	}
	return s.samples[0], nil
}

// Latest returns the most recent sample.
func (s *Series) Latest() (domain.PriceSample, error) {
	if len(s.samples) == 0 {
		return domain.PriceSample{}, &EmptySeriesError{AssetID: s.assetID}
	}
	return s.samples[len(s.samples)-1], nil
}

// IndexAt returns the index of the last sample at or before ts.
func (s *Series) IndexAt(ts time.Time) (int, error) {
	if len(s.samples) == 0 {
		return 0, &EmptySeriesError{AssetID: s.assetID}
	}
	i := sort.Search(len(s.samples), func(i int) bool { return s.samples[i].Time.After(ts) })
	if i == 0 {
		return 0, &NoDataBeforeDateError{AssetID: s.assetID, Date: ts, Earliest: s.samples[0].Time}
	}
	return i - 1, nil
}

// PriceAt returns the last sample at or before ts.
func (s *Series) PriceAt(ts time.Time) (domain.PriceSample, error) {
	i, err := s.IndexAt(ts)
	if err != nil {
		return domain.PriceSample{}, err
	}
	return s.samples[i], nil
}

// Between returns the samples within [start, end] as a new Series. A zero end
// means no upper bound.
func (s *Series) Between(start, end time.Time) *Series {
	var out []domain.PriceSample
	for _, smp := range s.samples {
		if smp.Time.Before(start) || (!end.IsZero() && smp.Time.After(end)) {
			continue
		}
		out = append(out, smp)
	}
	return &Series{assetID: s.assetID, samples: out}
}

// Returns yields the log return ln(p[i]/p[i-1]) of each consecutive pair.
func (s *Series) Returns() (iter.Seq[float64], error) {
	if len(s.samples) < 2 {
		return nil, &InsufficientDataError{AssetID: s.assetID, Have: len(s.samples), Need: 2}
	}
	samples := s.samples
	return func(yield func(float64) bool) {
		for i := 1; i < len(samples); i++ {
			if !yield(math.Log(samples[i].Price / samples[i-1].Price)) {
				return
			}
		}
	}, nil
}

// AnnualizedVolatility returns the population standard deviation of the log
// returns scaled by sqrt(periodsPerYear), as a percentage.
func (s *Series) AnnualizedVolatility(periodsPerYear float64) (float64, error) {
	rets, err := s.Returns()
	if err != nil {
		return 0, err
	}
	var n, sum, sumSq float64
	for r := range rets {
		n++
		sum += r
		sumSq += r * r
	}
	mean := sum / n
	variance := sumSq/n - mean*mean
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance) * math.Sqrt(periodsPerYear) * 100, nil
}

// PeriodsPerYear infers the sampling frequency from the average spacing of the
// samples. Anything coarser than one observation per day counts as daily.
func (s *Series) PeriodsPerYear() float64 {
	if len(s.samples) < 2 {
		return 365
	}
	span := s.samples[len(s.samples)-1].Time.Sub(s.samples[0].Time)
	days := math.Max(span.Hours()/24, 1e-9)
	perDay := float64(len(s.samples)-1) / days
	return math.Max(perDay, 1) * 365
}

// Daily resamples to one sample per UTC day, keeping the last price seen on
// each day and stamping it at midnight UTC.
func (s *Series) Daily() *Series {
	var out []domain.PriceSample
	for _, smp := range s.samples {
		midnight := smp.Time.UTC().Truncate(day)
		if n := len(out); n > 0 && out[n-1].Time.Equal(midnight) {
			out[n-1].Price = smp.Price
			continue
		}
		out = append(out, domain.PriceSample{Time: midnight, Price: smp.Price})
	}
	return &Series{assetID: s.assetID, samples: out}
}

// Points returns the samples as a value curve with every price multiplied by
// scale.
func (s *Series) Points(scale float64) []domain.Point {
	out := make([]domain.Point, len(s.samples))
	for i, smp := range s.samples {
		out[i] = domain.Point{Time: smp.Time, Value: smp.Price * scale}
	}
	return out
}
