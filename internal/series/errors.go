package series

import (
	"errors"
	"fmt"
	"time"
)

// ErrData is matched (via errors.Is) by every error describing empty,
// insufficient or out-of-range price history.
var ErrData = errors.New("price data error")

// ErrNonPositivePrice is returned by New for samples with price <= 0.
var ErrNonPositivePrice = fmt.Errorf("%w: non-positive price", ErrData)

// InsufficientDataError means fewer samples are available than an operation
// needs.
type InsufficientDataError struct {
	AssetID string
	Have    int
	Need    int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient price data for %s: have %d samples, need %d", e.AssetID, e.Have, e.Need)
}

func (e *InsufficientDataError) Is(target error) bool { return target == ErrData }

// NoDataBeforeDateError means the series starts after the requested date.
type NoDataBeforeDateError struct {
	AssetID  string
	Date     time.Time
	Earliest time.Time
}

func (e *NoDataBeforeDateError) Error() string {
	return fmt.Sprintf("no price data for %s at or before %s (earliest %s)",
		e.AssetID, e.Date.UTC().Format(time.DateOnly), e.Earliest.UTC().Format(time.DateOnly))
}

func (e *NoDataBeforeDateError) Is(target error) bool { return target == ErrData }

// EmptySeriesError means the series holds no samples at all.
type EmptySeriesError struct {
	AssetID string
}

func (e *EmptySeriesError) Error() string {
	return fmt.Sprintf("no price data for %s", e.AssetID)
}

func (e *EmptySeriesError) Is(target error) bool { return target == ErrData }
