package engine

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidRequest is returned when a request falls outside the configured
// limits.
var ErrInvalidRequest = errors.New("invalid request")

// Limits enforces request bounds before any history is fetched.
type Limits struct {
	DefaultPaths     int
	MinPaths         int
	MaxPaths         int
	MaxHorizon       int     // short-term horizon, in days
	MaxYears         float64 // long-term horizon
	DefaultRangeDays int
	MinRangeDays     int
	MaxRangeDays     int
}

// DefaultLimits returns the stock request bounds.
func DefaultLimits() *Limits {
	return &Limits{
		DefaultPaths:     300,
		MinPaths:         50,
		MaxPaths:         1000,
		MaxHorizon:       180,
		MaxYears:         20,
		DefaultRangeDays: 365,
		MinRangeDays:     2,
		MaxRangeDays:     3650,
	}
}

// CheckAmount requires a positive, finite amount.
func (l *Limits) CheckAmount(amount float64) error {
	if !(amount > 0) || math.IsInf(amount, 0) {
		return fmt.Errorf("%w: amount must be > 0, got %v", ErrInvalidRequest, amount)
	}
	return nil
}

// CheckHorizon requires 1 <= days <= MaxHorizon.
func (l *Limits) CheckHorizon(days int) error {
	if days < 1 || days > l.MaxHorizon {
		return fmt.Errorf("%w: horizon %d outside [1, %d] days", ErrInvalidRequest, days, l.MaxHorizon)
	}
	return nil
}

// CheckYears requires 0 < years <= MaxYears.
func (l *Limits) CheckYears(years float64) error {
	if !(years > 0) || years > l.MaxYears {
		return fmt.Errorf("%w: years %v outside (0, %v]", ErrInvalidRequest, years, l.MaxYears)
	}
	return nil
}

// Paths returns n clamped to [MinPaths, MaxPaths], or DefaultPaths when n is
// not positive.
func (l *Limits) Paths(n int) int {
	if n <= 0 {
		return l.DefaultPaths
	}
	return min(max(n, l.MinPaths), l.MaxPaths)
}

// RangeDays validates a history window, defaulting when days is not positive.
func (l *Limits) RangeDays(days int) (int, error) {
	if days <= 0 {
		return l.DefaultRangeDays, nil
	}
	if days < l.MinRangeDays || days > l.MaxRangeDays {
		return 0, fmt.Errorf("%w: range %d outside [%d, %d] days", ErrInvalidRequest, days, l.MinRangeDays, l.MaxRangeDays)
	}
	return days, nil
}
