// Package domain defines the core value types shared across foresight:
// price samples, holdings and the simulation result variants.
package domain

import "time"

// ---------------------------------------------------------------------------
// Market data
// ---------------------------------------------------------------------------

// PriceSample is a single observed price for an asset.
type PriceSample struct {
	Time  time.Time
	Price float64
}

// Point is a single (timestamp, value) pair of a value curve.
type Point struct {
	Time  time.Time
	Value float64
}

// ---------------------------------------------------------------------------
// User records
// ---------------------------------------------------------------------------

// Holding is a position a user holds in one asset. BuyPrice is expressed in
// Currency.
type Holding struct {
	ID        string
	UserID    string
	AssetID   string
	Quantity  float64
	BuyPrice  float64
	Currency  string
	CreatedAt time.Time
}

// AlertOp is the comparison an alert applies to the current price.
type AlertOp string

const (
	AlertOpGTE AlertOp = "gte"
	AlertOpLTE AlertOp = "lte"
)

// Valid reports whether op is a known comparison.
func (op AlertOp) Valid() bool {
	return op == AlertOpGTE || op == AlertOpLTE
}

// Alert is a price threshold registered by a user.
type Alert struct {
	ID        string
	UserID    string
	AssetID   string
	Op        AlertOp
	Value     float64
	Currency  string
	CreatedAt time.Time
}

// Goal is a user's target portfolio value by a date (YYYY-MM-DD, may be empty).
type Goal struct {
	UserID   string
	Amount   float64
	Date     string
	Currency string
}
