package builtins

import (
	"errors"
	"math"
	"testing"
	"time"

	"foresight/internal/domain"
	"foresight/internal/series"
	"foresight/internal/strategy"
)

var t0 = time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)

func mustSeries(t *testing.T, step time.Duration, prices ...float64) *series.Series {
	t.Helper()
	samples := make([]domain.PriceSample, len(prices))
	for i, p := range prices {
		samples[i] = domain.PriceSample{Time: t0.Add(time.Duration(i) * step), Price: p}
	}
	s, err := series.New("bitcoin", samples)
	if err != nil {
		t.Fatalf("series.New: %v", err)
	}
	return s
}

func near(a, b float64) bool { return math.Abs(a-b) <= 1e-9*math.Max(1, math.Abs(b)) }

func TestRegisterAll(t *testing.T) {
	names := NewRegistry().List()
	want := []string{"dca-monthly", "dca-weekly", "lump-sum"}
	if len(names) != len(want) {
		t.Fatalf("List() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("List()[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestLumpSumEndToEnd(t *testing.T) {
	bt := strategy.NewBacktester(NewRegistry())
	s := mustSeries(t, 24*time.Hour, 100, 150, 120)

	res, err := bt.Run(s, LumpSumName, t0, 100)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Shares != 1 {
		t.Errorf("Shares = %v, want 1", res.Shares)
	}
	if res.FinalValue != 120 {
		t.Errorf("FinalValue = %v, want 120", res.FinalValue)
	}
	if res.ROIPct == nil || !near(*res.ROIPct, 20) {
		t.Errorf("ROIPct = %v, want 20", res.ROIPct)
	}
	if !near(res.MaxDrawdownPct, -20) {
		t.Errorf("MaxDrawdownPct = %v, want -20", res.MaxDrawdownPct)
	}
	if res.CAGRPct == nil {
		t.Error("CAGRPct = nil, want a value for two elapsed days")
	}
	if len(res.ValueSeries) != 3 || res.ValueSeries[0].Value != 100 {
		t.Errorf("ValueSeries = %v, want 3 points starting at 100", res.ValueSeries)
	}
	if res.LumpSum != nil {
		t.Error("LumpSum comparison should be nil for a single purchase")
	}
}

func TestLumpSumIdentity(t *testing.T) {
	bt := strategy.NewBacktester(NewRegistry())
	s := mustSeries(t, 24*time.Hour, 37.5, 41.2, 29.9, 55.0, 48.3)

	amount := 1234.56
	res, err := bt.Run(s, LumpSumName, t0.AddDate(0, 0, 1), amount)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := amount * 48.3 / 41.2; !near(res.FinalValue, want) {
		t.Errorf("FinalValue = %v, want %v", res.FinalValue, want)
	}
	if res.MaxDrawdownPct > 0 || res.MaxDrawdownPct < -100 {
		t.Errorf("MaxDrawdownPct = %v, want within [-100, 0]", res.MaxDrawdownPct)
	}
}

func TestLumpSumBeforeSeries(t *testing.T) {
	bt := strategy.NewBacktester(NewRegistry())
	s := mustSeries(t, 24*time.Hour, 100, 110)

	_, err := bt.Run(s, LumpSumName, t0.AddDate(0, 0, -3), 100)
	var nde *series.NoDataBeforeDateError
	if !errors.As(err, &nde) {
		t.Fatalf("Run error = %v, want NoDataBeforeDateError", err)
	}
}

func TestDCAEqualPrices(t *testing.T) {
	bt := strategy.NewBacktester(NewRegistry())
	// 22 daily samples at a flat 50, then a final jump to 80.
	prices := make([]float64, 22)
	for i := range prices {
		prices[i] = 50
	}
	prices = append(prices, 80)
	s := mustSeries(t, 24*time.Hour, prices...)

	res, err := bt.Run(s, DCAName(Weekly), t0, 25)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// Purchases on days 0, 7, 14 and 21 all pay 50.
	if res.Contributions != 4 {
		t.Fatalf("Contributions = %d, want 4", res.Contributions)
	}
	if res.Invested != 100 {
		t.Errorf("Invested = %v, want 100", res.Invested)
	}
	if want := res.Invested / 50 * 80; !near(res.FinalValue, want) {
		t.Errorf("FinalValue = %v, want %v", res.FinalValue, want)
	}
	if res.LumpSum == nil || !near(res.LumpSum.FinalValue, 160) {
		t.Errorf("LumpSum = %+v, want final value 160", res.LumpSum)
	}
	if last := res.ValueSeries[len(res.ValueSeries)-1].Value; !near(last, res.FinalValue) {
		t.Errorf("last ValueSeries point = %v, want %v", last, res.FinalValue)
	}
}

func TestDCASkipsDatesBeforeSeries(t *testing.T) {
	bt := strategy.NewBacktester(NewRegistry())
	s := mustSeries(t, 24*time.Hour, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100)

	// Start 5 days before the first sample: day -5 is skipped, day 2 and day 9 buy.
	res, err := bt.Run(s, DCAName(Weekly), t0.AddDate(0, 0, -5), 10)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Contributions != 2 {
		t.Fatalf("Contributions = %d, want 2", res.Contributions)
	}
	wantShares := 10.0/30 + 10.0/100
	if !near(res.Shares, wantShares) {
		t.Errorf("Shares = %v, want %v", res.Shares, wantShares)
	}
	if res.StartPrice != 30 {
		t.Errorf("StartPrice = %v, want 30", res.StartPrice)
	}
}

func TestDCANoPurchases(t *testing.T) {
	bt := strategy.NewBacktester(NewRegistry())
	s := mustSeries(t, 24*time.Hour, 10, 20)

	res, err := bt.Run(s, DCAName(Monthly), t0.AddDate(0, 0, 5), 10)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Invested != 0 || res.ROIPct != nil || res.CAGRPct != nil {
		t.Errorf("result = %+v, want zero invested and nil metrics", res)
	}
}

func TestParseFrequency(t *testing.T) {
	tests := []struct {
		in   string
		want Frequency
		days int
	}{
		{"", Weekly, 7},
		{"weekly", Weekly, 7},
		{"Monthly", Monthly, 30},
	}
	for _, tt := range tests {
		got, err := ParseFrequency(tt.in)
		if err != nil {
			t.Fatalf("ParseFrequency(%q): %v", tt.in, err)
		}
		if got != tt.want || got.Days() != tt.days {
			t.Errorf("ParseFrequency(%q) = %q (%d days), want %q (%d days)", tt.in, got, got.Days(), tt.want, tt.days)
		}
	}
	if _, err := ParseFrequency("daily"); !errors.Is(err, ErrUnknownFrequency) {
		t.Errorf("ParseFrequency(daily) error = %v, want ErrUnknownFrequency", err)
	}
}
