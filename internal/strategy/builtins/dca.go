package builtins

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"foresight/internal/series"
	"foresight/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*DCA)(nil)

// Frequency is a fixed purchase interval. Months are approximated as 30 days.
type Frequency string

const (
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
)

// ErrUnknownFrequency is returned by ParseFrequency.
var ErrUnknownFrequency = errors.New("unknown frequency")

// ParseFrequency parses "weekly" or "monthly" (case-insensitive). An empty
// string means weekly.
func ParseFrequency(s string) (Frequency, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "weekly":
		return Weekly, nil
	case "monthly":
		return Monthly, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFrequency, s)
}

// Days returns the interval length in days.
func (f Frequency) Days() int {
	if f == Monthly {
		return 30
	}
	return 7
}

// Interval returns the interval length.
func (f Frequency) Interval() time.Duration {
	return time.Duration(f.Days()) * 24 * time.Hour
}

// DCAName returns the registry name of the DCA strategy for f.
func DCAName(f Frequency) string { return "dca-" + string(f) }

// DCA buys a fixed amount at every interval from the start date.
type DCA struct {
	freq Frequency
}

// NewDCA creates a DCA strategy buying at the given frequency.
func NewDCA(freq Frequency) *DCA {
	return &DCA{freq: freq}
}

// Name returns "dca-weekly" or "dca-monthly".
func (d *DCA) Name() string { return DCAName(d.freq) }

// Schedule buys at start, start+interval, ... up to the latest sample. Dates
// with no sample at or before them are skipped.
func (d *DCA) Schedule(s *series.Series, start time.Time, amount float64) ([]strategy.Purchase, error) {
	latest, err := s.Latest()
	if err != nil {
		return nil, err
	}

	var purchases []strategy.Purchase
	step := d.freq.Interval()
	for date := start; !date.After(latest.Time); date = date.Add(step) {
		smp, err := s.PriceAt(date)
		if err != nil {
			var nde *series.NoDataBeforeDateError
			if errors.As(err, &nde) {
				continue
			}
			return nil, err
		}
		purchases = append(purchases, strategy.Purchase{
			Date:   date,
			Amount: amount,
			Price:  smp.Price,
			Shares: amount / smp.Price,
		})
	}
	return purchases, nil
}
