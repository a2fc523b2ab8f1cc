package httpapi

import (
	"time"

	"foresight/internal/domain"
	"foresight/internal/fx"
)

// Point is a [unix_ms, value] pair.
type Point [2]float64

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse reports service liveness.
type HealthResponse struct {
	OK    bool   `json:"ok"`
	Time  string `json:"time"`
	Error string `json:"error,omitempty"`
}

// StrategiesResponse lists the registered backtest strategies.
type StrategiesResponse struct {
	Strategies []string `json:"strategies"`
}

// HistoryResponse is the normalized price history of an asset.
type HistoryResponse struct {
	Asset    string  `json:"asset"`
	Days     int     `json:"days"`
	Currency string  `json:"ccy"`
	Prices   []Point `json:"prices"`
}

// VolatilityResponse is the realized volatility of an asset.
type VolatilityResponse struct {
	Asset          string  `json:"asset"`
	Days           int     `json:"days"`
	Samples        int     `json:"samples"`
	PeriodsPerYear float64 `json:"periods_per_year"`
	AnnualizedVol  float64 `json:"annualized_vol"`
}

// ComparisonJSON is the lump-sum comparison of a scheduled backtest.
type ComparisonJSON struct {
	Invested     float64  `json:"invested"`
	Shares       float64  `json:"shares"`
	CurrentValue float64  `json:"current_value"`
	ROIPct       *float64 `json:"roi_pct"`
}

// BacktestResponse is the encoding of a backtest result.
type BacktestResponse struct {
	Kind           domain.ResultKind `json:"kind"`
	Asset          string            `json:"asset"`
	Strategy       string            `json:"strategy"`
	Currency       string            `json:"ccy"`
	StartDate      string            `json:"start_date,omitempty"`
	Invested       float64           `json:"invested_total"`
	Contributions  int               `json:"contributions"`
	Shares         float64           `json:"shares"`
	StartPrice     float64           `json:"start_price"`
	CurrentPrice   float64           `json:"current_price"`
	CurrentValue   float64           `json:"current_value"`
	ROIPct         *float64          `json:"roi_pct"`
	CAGRPct        *float64          `json:"cagr_pct"`
	MaxDrawdownPct float64           `json:"max_drawdown_pct"`
	Series         []Point           `json:"series"`
	LumpSum        *ComparisonJSON   `json:"lump_sum,omitempty"`
}

// Bands are the low and high curves around a central series.
type Bands struct {
	Low  []Point `json:"low"`
	High []Point `json:"high"`
}

// ShortTermResponse is the encoding of a short-term projection.
type ShortTermResponse struct {
	Kind     domain.ResultKind `json:"kind"`
	Asset    string            `json:"asset"`
	Currency string            `json:"ccy"`
	Shares   float64           `json:"shares"`
	Paths    int               `json:"n"`
	Invested float64           `json:"invested_total"`
	Series   []Point           `json:"series"`
	Bands    Bands             `json:"bands"`
}

// LongTermResponse is the encoding of a long-term projection.
type LongTermResponse struct {
	Kind     domain.ResultKind `json:"kind"`
	Asset    string            `json:"asset"`
	Currency string            `json:"ccy"`
	Years    float64           `json:"years"`
	Shares   float64           `json:"shares"`
	Paths    int               `json:"n"`
	Invested float64           `json:"invested_total"`
	P10      []Point           `json:"p10"`
	P50      []Point           `json:"p50"`
	P90      []Point           `json:"p90"`
}

// HoldingJSON is a holding as sent and received by the API. Coin is accepted
// as an alias of Asset on input.
type HoldingJSON struct {
	ID        string  `json:"id,omitempty"`
	Asset     string  `json:"asset"`
	Coin      string  `json:"coin,omitempty"`
	Quantity  float64 `json:"quantity"`
	BuyPrice  float64 `json:"buyPrice"`
	Currency  string  `json:"ccy"`
	CreatedAt int64   `json:"created_at,omitempty"`
}

// AlertJSON is a price alert as sent and received by the API.
type AlertJSON struct {
	ID        string  `json:"id,omitempty"`
	Asset     string  `json:"asset"`
	Coin      string  `json:"coin,omitempty"`
	Op        string  `json:"op"`
	Value     float64 `json:"value"`
	Currency  string  `json:"ccy"`
	CreatedAt int64   `json:"created_at,omitempty"`
}

// GoalJSON is the user's portfolio goal.
type GoalJSON struct {
	Amount   float64 `json:"amount"`
	Date     string  `json:"date"`
	Currency string  `json:"ccy"`
}

// OKResponse acknowledges a mutation without a body.
type OKResponse struct {
	OK bool `json:"ok"`
}

// ---------------------------------------------------------------------------
// Encoding
// ---------------------------------------------------------------------------

// encodeResult converts a simulation result to its response type, with money
// values converted at rate into ccy. It fails with fx.ErrNonFinite when any
// value cannot be represented in JSON.
func encodeResult(res domain.SimulationResult, ccy string, rate float64) (any, error) {
	e := &encoder{rate: rate}
	var out any
	switch r := res.(type) {
	case *domain.BacktestResult:
		out = e.backtest(r, ccy)
	case *domain.ShortTermResult:
		out = ShortTermResponse{
			Kind:     r.Kind(),
			Asset:    r.AssetID,
			Currency: ccy,
			Shares:   e.num(r.Shares),
			Paths:    r.Paths,
			Invested: e.money(r.Invested),
			Series:   e.points(r.CentralSeries),
			Bands:    Bands{Low: e.points(r.LowBand), High: e.points(r.HighBand)},
		}
	case *domain.LongTermResult:
		out = LongTermResponse{
			Kind:     r.Kind(),
			Asset:    r.AssetID,
			Currency: ccy,
			Years:    r.HorizonYears,
			Shares:   e.num(r.Shares),
			Paths:    r.Paths,
			Invested: e.money(r.Invested),
			P10:      e.points(r.P10Series),
			P50:      e.points(r.P50Series),
			P90:      e.points(r.P90Series),
		}
	}
	if e.err != nil {
		return nil, e.err
	}
	return out, nil
}

// encoder converts values at rate and keeps the first conversion error.
type encoder struct {
	rate float64
	err  error
}

func (e *encoder) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

func (e *encoder) backtest(r *domain.BacktestResult, ccy string) BacktestResponse {
	out := BacktestResponse{
		Kind:           r.Kind(),
		Asset:          r.AssetID,
		Strategy:       r.Strategy,
		Currency:       ccy,
		Invested:       e.money(r.Invested),
		Contributions:  r.Contributions,
		Shares:         e.num(r.Shares),
		StartPrice:     e.scale(r.StartPrice),
		CurrentPrice:   e.scale(r.CurrentPrice),
		CurrentValue:   e.money(r.FinalValue),
		ROIPct:         e.pct(r.ROIPct),
		CAGRPct:        e.pct(r.CAGRPct),
		MaxDrawdownPct: e.num(r.MaxDrawdownPct),
		Series:         e.points(r.ValueSeries),
	}
	if !r.Start.IsZero() {
		out.StartDate = r.Start.UTC().Format(time.DateOnly)
	}
	if c := r.LumpSum; c != nil {
		out.LumpSum = &ComparisonJSON{
			Invested:     e.money(c.Invested),
			Shares:       e.num(c.Shares),
			CurrentValue: e.money(c.FinalValue),
			ROIPct:       e.pct(c.ROIPct),
		}
	}
	return out
}

func (e *encoder) money(v float64) float64 {
	d, err := fx.Convert(v, e.rate)
	if err != nil {
		e.fail(err)
		return 0
	}
	return d.InexactFloat64()
}

func (e *encoder) scale(v float64) float64 {
	out, err := fx.Scale(v, e.rate)
	if err != nil {
		e.fail(err)
	}
	return out
}

// num passes through a currency-free value, rejecting NaN and infinities.
func (e *encoder) num(v float64) float64 {
	out, err := fx.Scale(v, 1)
	if err != nil {
		e.fail(err)
	}
	return out
}

func (e *encoder) pct(v *float64) *float64 {
	if v == nil {
		return nil
	}
	out := e.num(*v)
	return &out
}

func (e *encoder) points(in []domain.Point) []Point {
	out := make([]Point, len(in))
	for i, p := range in {
		out[i] = Point{float64(p.Time.UnixMilli()), e.scale(p.Value)}
	}
	return out
}

func samplePoints(in []domain.PriceSample, rate float64) ([]Point, error) {
	e := &encoder{rate: rate}
	out := make([]Point, len(in))
	for i, p := range in {
		out[i] = Point{float64(p.Time.UnixMilli()), e.scale(p.Price)}
	}
	return out, e.err
}

func holdingJSON(h domain.Holding) HoldingJSON {
	return HoldingJSON{
		ID:        h.ID,
		Asset:     h.AssetID,
		Quantity:  h.Quantity,
		BuyPrice:  h.BuyPrice,
		Currency:  h.Currency,
		CreatedAt: h.CreatedAt.Unix(),
	}
}

func alertJSON(a domain.Alert) AlertJSON {
	return AlertJSON{
		ID:        a.ID,
		Asset:     a.AssetID,
		Op:        string(a.Op),
		Value:     a.Value,
		Currency:  a.Currency,
		CreatedAt: a.CreatedAt.Unix(),
	}
}
