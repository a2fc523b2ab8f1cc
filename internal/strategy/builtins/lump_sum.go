// Package builtins provides the investment strategies that ship with
// foresight.
package builtins

import (
	"time"

	"foresight/internal/series"
	"foresight/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*LumpSum)(nil)

// LumpSumName is the registry name of LumpSum.
const LumpSumName = "lump-sum"

// LumpSum invests the whole amount once, at the price on the start date.
type LumpSum struct{}

// NewLumpSum creates a LumpSum strategy.
func NewLumpSum() *LumpSum { return &LumpSum{} }

// Name returns "lump-sum".
func (l *LumpSum) Name() string { return LumpSumName }

// Schedule buys at the last sample at or before start. It fails with
// NoDataBeforeDateError when start precedes the series.
func (l *LumpSum) Schedule(s *series.Series, start time.Time, amount float64) ([]strategy.Purchase, error) {
	smp, err := s.PriceAt(start)
	if err != nil {
		return nil, err
	}
	return []strategy.Purchase{{
		Date:   start,
		Amount: amount,
		Price:  smp.Price,
		Shares: amount / smp.Price,
	}}, nil
}

// Register adds every builtin strategy to r.
func Register(r *strategy.Registry) {
	r.MustRegister(NewLumpSum())
	r.MustRegister(NewDCA(Weekly))
	r.MustRegister(NewDCA(Monthly))
}

// NewRegistry returns a registry holding every builtin strategy.
func NewRegistry() *strategy.Registry {
	r := strategy.NewRegistry()
	Register(r)
	return r
}
