package portfolio

import (
	"testing"
	"time"

	"foresight/internal/domain"
)

var t0 = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func curve(start time.Time, values ...float64) []domain.Point {
	out := make([]domain.Point, len(values))
	for i, v := range values {
		out[i] = domain.Point{Time: start.AddDate(0, 0, i), Value: v}
	}
	return out
}

func TestAggregateEmptyHoldings(t *testing.T) {
	if got := Aggregate(nil, map[string][]domain.Point{"bitcoin": curve(t0, 1, 2)}); len(got) != 0 {
		t.Errorf("Aggregate(nil) = %v, want empty", got)
	}
}

func TestAggregateMismatchedLengths(t *testing.T) {
	holdings := []domain.Holding{
		{AssetID: "bitcoin", Quantity: 2},
		{AssetID: "ethereum", Quantity: 10},
	}
	curves := map[string][]domain.Point{
		"bitcoin":  curve(t0, 100, 110, 120, 130),
		"ethereum": curve(t0.Add(time.Hour), 5, 6, 7),
	}

	got := Aggregate(holdings, curves)
	want := []float64{250, 280, 310}
	if len(got) != len(want) {
		t.Fatalf("Aggregate length = %d, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].Value != w {
			t.Errorf("Aggregate[%d] = %v, want %v", i, got[i].Value, w)
		}
		// Timestamps come from the first holding's curve.
		if !got[i].Time.Equal(t0.AddDate(0, 0, i)) {
			t.Errorf("Aggregate[%d].Time = %v, want %v", i, got[i].Time, t0.AddDate(0, 0, i))
		}
	}
}

func TestAggregateMissingAssetContributesZero(t *testing.T) {
	holdings := []domain.Holding{
		{AssetID: "dogecoin", Quantity: 1000},
		{AssetID: "bitcoin", Quantity: 1},
		{AssetID: "bitcoin", Quantity: 0.5},
	}
	curves := map[string][]domain.Point{
		"bitcoin": curve(t0, 100, 200),
	}

	got := Aggregate(holdings, curves)
	if len(got) != 2 {
		t.Fatalf("Aggregate length = %d, want 2", len(got))
	}
	if got[0].Value != 150 || got[1].Value != 300 {
		t.Errorf("Aggregate = %v, want values [150 300]", got)
	}
}

func TestAggregateBands(t *testing.T) {
	holdings := []domain.Holding{{AssetID: "bitcoin", Quantity: 3}}
	bands := map[string]Bands{
		"bitcoin": {
			Low:     curve(t0, 1, 2),
			Central: curve(t0, 2, 3),
			High:    curve(t0, 3, 4),
		},
	}
	got := AggregateBands(holdings, bands)
	if got.Low[1].Value != 6 || got.Central[1].Value != 9 || got.High[1].Value != 12 {
		t.Errorf("AggregateBands = %+v, want 6/9/12 at index 1", got)
	}
}

func TestCostBasis(t *testing.T) {
	holdings := []domain.Holding{
		{Quantity: 2, BuyPrice: 100},
		{Quantity: 0.5, BuyPrice: 40},
	}
	if got := CostBasis(holdings); got != 220 {
		t.Errorf("CostBasis = %v, want 220", got)
	}
}
