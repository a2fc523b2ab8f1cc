package series

import (
	"errors"
	"math"
	"testing"
	"time"

	"foresight/internal/domain"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func daily(prices ...float64) []domain.PriceSample {
	out := make([]domain.PriceSample, len(prices))
	for i, p := range prices {
		out[i] = domain.PriceSample{Time: t0.AddDate(0, 0, i), Price: p}
	}
	return out
}

func mustNew(t *testing.T, samples []domain.PriceSample) *Series {
	t.Helper()
	s, err := New("bitcoin", samples)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestNewSortsAndDeduplicates(t *testing.T) {
	s := mustNew(t, []domain.PriceSample{
		{Time: t0.AddDate(0, 0, 2), Price: 3},
		{Time: t0, Price: 1},
		{Time: t0.AddDate(0, 0, 1), Price: 2},
		{Time: t0.AddDate(0, 0, 1), Price: 2.5},
	})
	if s.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", s.Len())
	}
	want := []float64{1, 2.5, 3}
	for i, w := range want {
		if got := s.At(i).Price; got != w {
			t.Errorf("At(%d).Price = %v, want %v", i, got, w)
		}
	}
}

func TestNewRejectsNonPositivePrice(t *testing.T) {
	_, err := New("bitcoin", daily(100, 0, 120))
	if !errors.Is(err, ErrNonPositivePrice) {
		t.Fatalf("New error = %v, want ErrNonPositivePrice", err)
	}
	if !errors.Is(err, ErrData) {
		t.Error("ErrNonPositivePrice should match ErrData")
	}
}

func TestReturnsTelescoping(t *testing.T) {
	prices := []float64{100, 103.5, 98.2, 120.7, 119.9, 140.1}
	s := mustNew(t, daily(prices...))

	rets, err := s.Returns()
	if err != nil {
		t.Fatalf("Returns: %v", err)
	}
	n, sum := 0, 0.0
	for r := range rets {
		n++
		sum += r
	}
	if n != len(prices)-1 {
		t.Errorf("returns length = %d, want %d", n, len(prices)-1)
	}
	got := math.Exp(sum) * prices[0]
	if math.Abs(got-prices[len(prices)-1]) > 1e-9 {
		t.Errorf("exp(sum(returns))*p0 = %v, want %v", got, prices[len(prices)-1])
	}
}

func TestReturnsInsufficientData(t *testing.T) {
	for _, prices := range [][]float64{nil, {100}} {
		s := mustNew(t, daily(prices...))
		_, err := s.Returns()
		var ide *InsufficientDataError
		if !errors.As(err, &ide) {
			t.Fatalf("Returns() on %d samples error = %v, want InsufficientDataError", len(prices), err)
		}
		if ide.Have != len(prices) || ide.Need != 2 {
			t.Errorf("InsufficientDataError = %+v, want Have=%d Need=2", ide, len(prices))
		}
		if !errors.Is(err, ErrData) {
			t.Error("InsufficientDataError should match ErrData")
		}
	}
}

func TestAnnualizedVolatility(t *testing.T) {
	// Alternating +10%/-10% log moves: population stdev is exactly 0.1.
	up := math.Exp(0.1)
	s := mustNew(t, daily(100, 100*up, 100, 100*up, 100))

	got, err := s.AnnualizedVolatility(365)
	if err != nil {
		t.Fatalf("AnnualizedVolatility: %v", err)
	}
	want := 0.1 * math.Sqrt(365) * 100
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("AnnualizedVolatility(365) = %v, want %v", got, want)
	}

	flat := mustNew(t, daily(50, 50, 50))
	if got, _ := flat.AnnualizedVolatility(365); got != 0 {
		t.Errorf("flat AnnualizedVolatility = %v, want 0", got)
	}
}

func TestPriceAt(t *testing.T) {
	s := mustNew(t, daily(100, 150, 120))

	tests := []struct {
		name string
		ts   time.Time
		want float64
	}{
		{"exact first", t0, 100},
		{"between samples", t0.Add(36 * time.Hour), 150},
		{"after last", t0.AddDate(1, 0, 0), 120},
	}
	for _, tt := range tests {
		got, err := s.PriceAt(tt.ts)
		if err != nil {
			t.Fatalf("%s: PriceAt: %v", tt.name, err)
		}
		if got.Price != tt.want {
			t.Errorf("%s: PriceAt = %v, want %v", tt.name, got.Price, tt.want)
		}
	}

	_, err := s.PriceAt(t0.Add(-time.Hour))
	var nde *NoDataBeforeDateError
	if !errors.As(err, &nde) {
		t.Fatalf("PriceAt before start error = %v, want NoDataBeforeDateError", err)
	}
	if !nde.Earliest.Equal(t0) {
		t.Errorf("Earliest = %v, want %v", nde.Earliest, t0)
	}
}

func TestLatestEmpty(t *testing.T) {
	s := mustNew(t, nil)
	_, err := s.Latest()
	var ese *EmptySeriesError
	if !errors.As(err, &ese) {
		t.Fatalf("Latest() error = %v, want EmptySeriesError", err)
	}
	if ese.AssetID != "bitcoin" {
		t.Errorf("AssetID = %q, want %q", ese.AssetID, "bitcoin")
	}
}

func TestDailyKeepsLastPricePerDay(t *testing.T) {
	s := mustNew(t, []domain.PriceSample{
		{Time: t0.Add(1 * time.Hour), Price: 10},
		{Time: t0.Add(23 * time.Hour), Price: 11},
		{Time: t0.Add(25 * time.Hour), Price: 12},
		{Time: t0.Add(47 * time.Hour), Price: 13},
	})
	d := s.Daily()
	if d.Len() != 2 {
		t.Fatalf("Daily().Len() = %d, want 2", d.Len())
	}
	if got := d.At(0); !got.Time.Equal(t0) || got.Price != 11 {
		t.Errorf("day 0 = %+v, want {%v 11}", got, t0)
	}
	if got := d.At(1); !got.Time.Equal(t0.AddDate(0, 0, 1)) || got.Price != 13 {
		t.Errorf("day 1 = %+v, want 13 at midnight", got)
	}
}

func TestPeriodsPerYear(t *testing.T) {
	if got := mustNew(t, daily(1, 2, 3, 4)).PeriodsPerYear(); math.Abs(got-365) > 1e-9 {
		t.Errorf("daily PeriodsPerYear = %v, want 365", got)
	}

	var hourly []domain.PriceSample
	for i := 0; i <= 48; i++ {
		hourly = append(hourly, domain.PriceSample{Time: t0.Add(time.Duration(i) * time.Hour), Price: 1})
	}
	if got := mustNew(t, hourly).PeriodsPerYear(); math.Abs(got-24*365) > 1e-6 {
		t.Errorf("hourly PeriodsPerYear = %v, want %v", got, 24*365)
	}
}

func TestBetween(t *testing.T) {
	s := mustNew(t, daily(1, 2, 3, 4, 5))
	got := s.Between(t0.AddDate(0, 0, 1), t0.AddDate(0, 0, 3))
	if got.Len() != 3 {
		t.Fatalf("Between().Len() = %d, want 3", got.Len())
	}
	if got.At(0).Price != 2 || got.At(2).Price != 4 {
		t.Errorf("Between() = %v, want prices 2..4", got.Samples())
	}
	if open := s.Between(t0.AddDate(0, 0, 3), time.Time{}); open.Len() != 2 {
		t.Errorf("open-ended Between().Len() = %d, want 2", open.Len())
	}
}
