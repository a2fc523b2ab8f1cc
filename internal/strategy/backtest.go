package strategy

import (
	"errors"
	"fmt"
	"math"
	"time"

	"foresight/internal/domain"
	"foresight/internal/series"
)

var (
	ErrUnknownStrategy = errors.New("unknown strategy")
	ErrInvalidAmount   = errors.New("amount must be positive")
)

// Backtester replays a strategy's purchases over observed history and
// computes realized performance metrics.
type Backtester struct {
	registry *Registry
}

// NewBacktester creates a Backtester that looks up strategies in the provided
// registry.
func NewBacktester(registry *Registry) *Backtester {
	return &Backtester{registry: registry}
}

// Registry returns the registry strategies are looked up in.
func (bt *Backtester) Registry() *Registry { return bt.registry }

// Run executes the named strategy over s, investing amount per purchase from
// start.
func (bt *Backtester) Run(s *series.Series, name string, start time.Time, amount float64) (*domain.BacktestResult, error) {
	strat, ok := bt.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
	if !(amount > 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}

	purchases, err := strat.Schedule(s, start, amount)
	if err != nil {
		return nil, err
	}
	return Replay(s, strat.Name(), start, purchases)
}

// Replay values the purchases against every sample from the first purchase
// date to the end of s. Shares count towards a sample once their purchase date
// is at or before it. ROI and CAGR stay nil when nothing was invested.
func Replay(s *series.Series, name string, start time.Time, purchases []Purchase) (*domain.BacktestResult, error) {
	latest, err := s.Latest()
	if err != nil {
		return nil, err
	}

	res := &domain.BacktestResult{
		AssetID:      s.AssetID(),
		Strategy:     name,
		Start:        start,
		CurrentPrice: latest.Price,
	}
	if len(purchases) == 0 {
		return res, nil
	}

	anchor := purchases[0].Date
	for _, p := range purchases {
		res.Invested += p.Amount
		res.Shares += p.Shares
	}
	res.Contributions = len(purchases)
	res.StartPrice = purchases[0].Price
	res.FinalValue = res.Shares * latest.Price

	held, next := 0.0, 0
	values := make([]float64, 0, s.Len())
	for i := 0; i < s.Len(); i++ {
		smp := s.At(i)
		if smp.Time.Before(anchor) {
			continue
		}
		for next < len(purchases) && !purchases[next].Date.After(smp.Time) {
			held += purchases[next].Shares
			next++
		}
		v := held * smp.Price
		values = append(values, v)
		res.ValueSeries = append(res.ValueSeries, domain.Point{Time: smp.Time, Value: v})
	}
	res.MaxDrawdownPct = MaxDrawdownPct(values)

	if res.Invested > 0 {
		res.ROIPct = domain.Float((res.FinalValue - res.Invested) / res.Invested * 100)
		res.CAGRPct = CAGRPct(res.Invested, res.FinalValue, latest.Time.Sub(anchor))
	}

	if len(purchases) > 1 && res.StartPrice > 0 {
		lumpShares := res.Invested / res.StartPrice
		lumpValue := lumpShares * latest.Price
		res.LumpSum = &domain.Comparison{
			Invested:   res.Invested,
			Shares:     lumpShares,
			FinalValue: lumpValue,
			ROIPct:     domain.Float((lumpValue - res.Invested) / res.Invested * 100),
		}
	}
	return res, nil
}

// CAGRPct returns the compound annual growth rate in percent, or nil when the
// elapsed time or the invested amount is not positive, or when annualizing a
// short window overflows.
func CAGRPct(invested, final float64, elapsed time.Duration) *float64 {
	days := elapsed.Hours() / 24
	if days <= 0 || invested <= 0 {
		return nil
	}
	cagr := (math.Pow(final/invested, 365/days) - 1) * 100
	if math.IsInf(cagr, 0) || math.IsNaN(cagr) {
		return nil
	}
	return domain.Float(cagr)
}

// MaxDrawdownPct returns the worst peak-to-trough decline of values as a
// percentage in [-100, 0]. It is 0 when values never fall below a prior peak.
func MaxDrawdownPct(values []float64) float64 {
	worst, peak := 0.0, 0.0
	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := (v - peak) / peak * 100; dd < worst {
				worst = dd
			}
		}
	}
	return worst
}
