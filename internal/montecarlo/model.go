// Package montecarlo estimates return models from price history and projects
// them forward as geometric Brownian motion, summarised as percentile bands.
package montecarlo

import (
	"math"

	"foresight/internal/series"
)

// Period is the sampling period a ReturnModel is expressed in.
type Period string

const Daily Period = "daily"

// ReturnModel is the drift and volatility of log returns per period.
type ReturnModel struct {
	Mu     float64
	Sigma  float64
	Period Period
}

// Estimate computes the mean and sample standard deviation of the series' log
// returns over the whole window. A single return yields sigma 0.
func Estimate(s *series.Series) (ReturnModel, error) {
	rets, err := s.Returns()
	if err != nil {
		return ReturnModel{}, err
	}

	var vals []float64
	sum := 0.0
	for r := range rets {
		vals = append(vals, r)
		sum += r
	}
	mu := sum / float64(len(vals))

	ss := 0.0
	for _, r := range vals {
		ss += (r - mu) * (r - mu)
	}
	sigma := math.Sqrt(ss / math.Max(float64(len(vals)-1), 1))

	return ReturnModel{Mu: mu, Sigma: sigma, Period: Daily}, nil
}
