// Package portfolio combines per-asset value curves into portfolio totals
// weighted by holding quantity.
package portfolio

import "foresight/internal/domain"

// Aggregate sums quantity * curve[asset][i] across holdings. Curves are
// aligned by position against the first holding that has a non-empty curve,
// and the result is truncated to the shortest non-empty curve. A holding
// whose curve is missing or empty contributes 0.
func Aggregate(holdings []domain.Holding, curves map[string][]domain.Point) []domain.Point {
	var ref []domain.Point
	n := -1
	for _, h := range holdings {
		c := curves[h.AssetID]
		if len(c) == 0 {
			continue
		}
		if ref == nil {
			ref = c
		}
		if n < 0 || len(c) < n {
			n = len(c)
		}
	}
	if ref == nil {
		return nil
	}

	out := make([]domain.Point, n)
	for i := range out {
		out[i].Time = ref[i].Time
	}
	for _, h := range holdings {
		c := curves[h.AssetID]
		for i := 0; i < n && i < len(c); i++ {
			out[i].Value += h.Quantity * c[i].Value
		}
	}
	return out
}

// Bands are the low, central and high curves of one asset's projection.
type Bands struct {
	Low     []domain.Point
	Central []domain.Point
	High    []domain.Point
}

// AggregateBands aggregates each band independently.
func AggregateBands(holdings []domain.Holding, bands map[string]Bands) Bands {
	low := make(map[string][]domain.Point, len(bands))
	central := make(map[string][]domain.Point, len(bands))
	high := make(map[string][]domain.Point, len(bands))
	for id, b := range bands {
		low[id], central[id], high[id] = b.Low, b.Central, b.High
	}
	return Bands{
		Low:     Aggregate(holdings, low),
		Central: Aggregate(holdings, central),
		High:    Aggregate(holdings, high),
	}
}

// CostBasis returns the sum of quantity * buy price across holdings.
func CostBasis(holdings []domain.Holding) float64 {
	total := 0.0
	for _, h := range holdings {
		total += h.Quantity * h.BuyPrice
	}
	return total
}
