package montecarlo

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"foresight/internal/domain"
)

const (
	// DefaultPaths is the number of simulated paths when none is configured.
	DefaultPaths = 300

	// MaxShortTermHorizon is the longest short-term forecast, in periods.
	MaxShortTermHorizon = 180

	// DefaultSampleEvery is the long-term output cadence, in periods.
	DefaultSampleEvery = 30
)

var (
	ErrInvalidHorizon = errors.New("invalid projection horizon")
	ErrInvalidPrice   = errors.New("current price must be positive")
	// ErrOverflow means a projected value left the float64 range.
	ErrOverflow = errors.New("projection overflowed")
)

// Projector simulates price paths. Every path draws from its own
// NormalSource, so paths are generated concurrently without shared state.
type Projector struct {
	// Paths is the number of simulated paths (DefaultPaths if <= 0).
	Paths int
	// Workers bounds concurrent path generation (GOMAXPROCS if <= 0).
	Workers int
	// SampleEvery is the long-term output cadence (DefaultSampleEvery if <= 0).
	SampleEvery int
	// NewSource returns the random source for one path.
	NewSource func(path int) NormalSource
}

// NewProjector creates a Projector with PCG sources derived from seed.
func NewProjector(paths, workers int, seed uint64) *Projector {
	return &Projector{
		Paths:     paths,
		Workers:   workers,
		NewSource: PCGSources(seed),
	}
}

// WithPaths returns a copy of the projector simulating n paths.
func (p *Projector) WithPaths(n int) *Projector {
	cp := *p
	cp.Paths = n
	return &cp
}

// WithStream returns a copy whose paths draw from the sources offset by
// k*Paths, so projections run side by side do not share draws.
func (p *Projector) WithStream(k int) *Projector {
	cp := *p
	base, n := p.NewSource, p.paths()
	cp.NewSource = func(path int) NormalSource { return base(k*n + path) }
	return &cp
}

func (p *Projector) paths() int {
	if p.Paths <= 0 {
		return DefaultPaths
	}
	return p.Paths
}

func (p *Projector) sampleEvery() int {
	if p.SampleEvery <= 0 {
		return DefaultSampleEvery
	}
	return p.SampleEvery
}

// run fills one row per path, fanning out over at most Workers goroutines.
func (p *Projector) run(cols int, fill func(src NormalSource, row []float64)) [][]float64 {
	workers := p.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	rows := make([][]float64, p.paths())
	var g errgroup.Group
	g.SetLimit(workers)
	for i := range rows {
		g.Go(func() error {
			row := make([]float64, cols)
			fill(p.NewSource(i), row)
			rows[i] = row
			return nil
		})
	}
	_ = g.Wait()
	return rows
}

// Simulate returns, for every path, the simulated price at each step in
// sampleAt. sampleAt must be ascending; step 0 is the start price. Each step
// applies price *= exp((mu - sigma^2/2) + sigma*Z).
func (p *Projector) Simulate(m ReturnModel, start float64, sampleAt []int) [][]float64 {
	drift := m.Mu - m.Sigma*m.Sigma/2
	return p.run(len(sampleAt), func(src NormalSource, row []float64) {
		price := start
		k := 0
		for k < len(row) && sampleAt[k] <= 0 {
			row[k] = price
			k++
		}
		for step := 1; k < len(row); step++ {
			price *= math.Exp(drift + m.Sigma*src.NormFloat64())
			for k < len(row) && sampleAt[k] == step {
				row[k] = price
				k++
			}
		}
	})
}

// ShortTerm forecasts horizon periods ahead of asOf. Every step reports the
// P10/P50/P90 of the simulated prices multiplied by shares.
func (p *Projector) ShortTerm(m ReturnModel, currentPrice, shares float64, asOf time.Time, horizon int, step time.Duration) (*domain.ShortTermResult, error) {
	if horizon < 1 || horizon > MaxShortTermHorizon {
		return nil, fmt.Errorf("%w: %d periods (allowed 1..%d)", ErrInvalidHorizon, horizon, MaxShortTermHorizon)
	}
	if !(currentPrice > 0) {
		return nil, ErrInvalidPrice
	}

	sampleAt := make([]int, horizon)
	for i := range sampleAt {
		sampleAt[i] = i + 1
	}
	lo, mid, hi, err := bands(p.Simulate(m, currentPrice, sampleAt), sampleAt, asOf, step, shares)
	if err != nil {
		return nil, err
	}

	return &domain.ShortTermResult{
		Shares:        shares,
		Paths:         p.paths(),
		CentralSeries: mid,
		LowBand:       lo,
		HighBand:      hi,
	}, nil
}

// LongTerm projects years ahead of asOf at periodsPerYear steps per year,
// reporting P10/P50/P90 values every SampleEvery steps and at the horizon.
func (p *Projector) LongTerm(m ReturnModel, currentPrice, shares float64, asOf time.Time, years, periodsPerYear float64) (*domain.LongTermResult, error) {
	steps := int(math.Round(years * periodsPerYear))
	if steps < 1 {
		return nil, fmt.Errorf("%w: %.2f years at %.0f periods per year", ErrInvalidHorizon, years, periodsPerYear)
	}
	if !(currentPrice > 0) {
		return nil, ErrInvalidPrice
	}

	sampleAt := cadence(steps, p.sampleEvery(), false)
	p10, p50, p90, err := bands(p.Simulate(m, currentPrice, sampleAt), sampleAt, asOf, periodDuration(periodsPerYear), shares)
	if err != nil {
		return nil, err
	}

	return &domain.LongTermResult{
		HorizonYears: years,
		Shares:       shares,
		Paths:        p.paths(),
		P10Series:    p10,
		P50Series:    p50,
		P90Series:    p90,
	}, nil
}

// ContributionForecast projects buying amount every `every` periods for steps
// periods, reporting portfolio value bands at each purchase and at the end.
func (p *Projector) ContributionForecast(m ReturnModel, currentPrice, amount float64, every, steps int, asOf time.Time, step time.Duration) (*domain.ShortTermResult, error) {
	if steps < 1 || steps > MaxShortTermHorizon {
		return nil, fmt.Errorf("%w: %d periods (allowed 1..%d)", ErrInvalidHorizon, steps, MaxShortTermHorizon)
	}
	lo, mid, hi, invested, err := p.contributions(m, currentPrice, amount, every, steps, asOf, step)
	if err != nil {
		return nil, err
	}
	return &domain.ShortTermResult{
		Paths:         p.paths(),
		Invested:      invested,
		CentralSeries: mid,
		LowBand:       lo,
		HighBand:      hi,
	}, nil
}

// ContributionScenario is the multi-year counterpart of ContributionForecast.
func (p *Projector) ContributionScenario(m ReturnModel, currentPrice, amount float64, every int, asOf time.Time, years, periodsPerYear float64) (*domain.LongTermResult, error) {
	steps := int(math.Round(years * periodsPerYear))
	if steps < 1 {
		return nil, fmt.Errorf("%w: %.2f years at %.0f periods per year", ErrInvalidHorizon, years, periodsPerYear)
	}
	p10, p50, p90, invested, err := p.contributions(m, currentPrice, amount, every, steps, asOf, periodDuration(periodsPerYear))
	if err != nil {
		return nil, err
	}
	return &domain.LongTermResult{
		HorizonYears: years,
		Paths:        p.paths(),
		Invested:     invested,
		P10Series:    p10,
		P50Series:    p50,
		P90Series:    p90,
	}, nil
}

func (p *Projector) contributions(m ReturnModel, currentPrice, amount float64, every, steps int, asOf time.Time, step time.Duration) (lo, mid, hi []domain.Point, invested float64, err error) {
	if !(currentPrice > 0) {
		return nil, nil, nil, 0, ErrInvalidPrice
	}
	if every < 1 {
		return nil, nil, nil, 0, fmt.Errorf("%w: contribution interval %d", ErrInvalidHorizon, every)
	}

	sampleAt := cadence(steps, every, true)
	purchases := (steps-1)/every + 1
	drift := m.Mu - m.Sigma*m.Sigma/2

	rows := p.run(len(sampleAt), func(src NormalSource, row []float64) {
		price, shares := currentPrice, 0.0
		k := 0
		for s := 0; s <= steps && k < len(row); s++ {
			if s > 0 {
				price *= math.Exp(drift + m.Sigma*src.NormFloat64())
			}
			if s < steps && s%every == 0 {
				shares += amount / price
			}
			if sampleAt[k] == s {
				row[k] = shares * price
				k++
			}
		}
	})

	lo, mid, hi, err = bands(rows, sampleAt, asOf, step, 1)
	if err != nil {
		return nil, nil, nil, 0, err
	}
	return lo, mid, hi, float64(purchases) * amount, nil
}

// cadence returns every, 2*every, ... below steps (starting at 0 when
// withStart is set), followed by steps itself.
func cadence(steps, every int, withStart bool) []int {
	var out []int
	s := every
	if withStart {
		s = 0
	}
	for ; s < steps; s += every {
		out = append(out, s)
	}
	return append(out, steps)
}

func periodDuration(periodsPerYear float64) time.Duration {
	return time.Duration(float64(365*24*time.Hour) / periodsPerYear)
}

// bands computes the P10/P50/P90 across paths at each sampled step. It fails
// with ErrOverflow as soon as a reported value is not finite.
func bands(rows [][]float64, sampleAt []int, asOf time.Time, step time.Duration, scale float64) (lo, mid, hi []domain.Point, err error) {
	col := make([]float64, len(rows))
	lo = make([]domain.Point, len(sampleAt))
	mid = make([]domain.Point, len(sampleAt))
	hi = make([]domain.Point, len(sampleAt))

	for k, s := range sampleAt {
		for i, row := range rows {
			col[i] = row[k]
		}
		sort.Float64s(col)
		ts := asOf.Add(time.Duration(s) * step)
		lo[k] = domain.Point{Time: ts, Value: Percentile(col, 0.10) * scale}
		mid[k] = domain.Point{Time: ts, Value: Percentile(col, 0.50) * scale}
		hi[k] = domain.Point{Time: ts, Value: Percentile(col, 0.90) * scale}
		for _, v := range [...]float64{lo[k].Value, mid[k].Value, hi[k].Value} {
			if math.IsInf(v, 0) || math.IsNaN(v) {
				return nil, nil, nil, fmt.Errorf("%w: step %d of %d", ErrOverflow, s, sampleAt[len(sampleAt)-1])
			}
		}
	}
	return lo, mid, hi, nil
}

// Percentile returns the nearest-rank percentile of an ascending slice using
// index floor(p*(n-1)). It returns 0 for an empty slice.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
