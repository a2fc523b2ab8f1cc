// Package engine orchestrates the simulation core. It fetches price history,
// normalizes it into series and dispatches to the backtester or the
// Monte-Carlo projector, fanning out per asset for portfolio requests.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"foresight/internal/domain"
	"foresight/internal/montecarlo"
	"foresight/internal/portfolio"
	"foresight/internal/series"
	"foresight/internal/strategy"
	"foresight/internal/strategy/builtins"
)

// PortfolioID is the asset id reported on aggregated results.
const PortfolioID = "portfolio"

const (
	day         = 24 * time.Hour
	daysPerYear = 365
)

// HistoryProvider returns the price history of an asset over the last days
// days.
type HistoryProvider interface {
	FetchHistory(ctx context.Context, assetID string, days int) ([]domain.PriceSample, error)
}

// Engine runs backtests and projections against fetched history.
type Engine struct {
	history    HistoryProvider
	backtester *strategy.Backtester
	projector  *montecarlo.Projector
	limits     *Limits
	fetchers   int
	now        func() time.Time
	log        *slog.Logger
}

// NewEngine creates a new Engine wired with the given dependencies. A nil
// limits uses DefaultLimits.
func NewEngine(history HistoryProvider, backtester *strategy.Backtester, projector *montecarlo.Projector, limits *Limits) *Engine {
	if limits == nil {
		limits = DefaultLimits()
	}
	return &Engine{
		history:    history,
		backtester: backtester,
		projector:  projector,
		limits:     limits,
		fetchers:   4,
		now:        time.Now,
		log:        slog.Default().With("component", "engine"),
	}
}

// Limits returns the request bounds the engine enforces.
func (e *Engine) Limits() *Limits { return e.limits }

// Strategies lists the registered backtest strategies.
func (e *Engine) Strategies() []string { return e.backtester.Registry().List() }

// ---------------------------------------------------------------------------
// Requests
// ---------------------------------------------------------------------------

// BacktestRequest replays a registered strategy from Start to the latest
// sample. AsOf bounds the history window and defaults to the engine clock.
type BacktestRequest struct {
	AssetID  string
	Strategy string
	Amount   float64 // per purchase
	Start    time.Time
	AsOf     time.Time
}

// ForecastRequest projects a position Horizon days ahead. The position is
// Shares when set, otherwise Amount invested at the current price, otherwise
// one unit.
type ForecastRequest struct {
	AssetID   string
	Amount    float64
	Shares    float64
	Horizon   int
	RangeDays int
	Paths     int
	AsOf      time.Time
}

// ScenarioRequest projects a position Years ahead. The position is chosen as
// in ForecastRequest.
type ScenarioRequest struct {
	AssetID   string
	Amount    float64
	Shares    float64
	Years     float64
	RangeDays int
	Paths     int
	AsOf      time.Time
}

// ContributionRequest projects investing Amount at every Frequency interval.
// Horizon (days) bounds a forecast; Years bounds a scenario.
type ContributionRequest struct {
	AssetID   string
	Amount    float64
	Frequency builtins.Frequency
	Horizon   int
	Years     float64
	RangeDays int
	Paths     int
	AsOf      time.Time
}

// PortfolioRequest projects a set of holdings. Horizon applies to forecasts,
// Years to scenarios.
type PortfolioRequest struct {
	Holdings  []domain.Holding
	Horizon   int
	Years     float64
	RangeDays int
	Paths     int
	AsOf      time.Time
}

// VolatilityResult is the realized volatility of an asset's recent history.
type VolatilityResult struct {
	AssetID        string
	RangeDays      int
	Samples        int
	PeriodsPerYear float64
	AnnualizedPct  float64
}

// ---------------------------------------------------------------------------
// Single-asset operations
// ---------------------------------------------------------------------------

// Backtest fetches enough history to cover req.Start and replays the
// strategy over its daily closes.
func (e *Engine) Backtest(ctx context.Context, req BacktestRequest) (*domain.BacktestResult, error) {
	if _, ok := e.backtester.Registry().Get(req.Strategy); !ok {
		return nil, fmt.Errorf("%w: %q", strategy.ErrUnknownStrategy, req.Strategy)
	}
	if err := e.limits.CheckAmount(req.Amount); err != nil {
		return nil, err
	}
	now := req.AsOf
	if now.IsZero() {
		now = e.now()
	}
	if req.Start.IsZero() || req.Start.After(now) {
		return nil, fmt.Errorf("%w: start date %s is not in the past", ErrInvalidRequest, req.Start.Format(time.DateOnly))
	}

	days := max(int(math.Ceil(now.Sub(req.Start).Hours()/24))+1, e.limits.MinRangeDays)
	s, err := e.load(ctx, req.AssetID, days)
	if err != nil {
		return nil, err
	}

	res, err := e.backtester.Run(s.Daily(), req.Strategy, req.Start, req.Amount)
	if err != nil {
		return nil, err
	}
	e.log.Debug("backtest", "asset", req.AssetID, "strategy", req.Strategy, "purchases", res.Contributions)
	return res, nil
}

// Forecast runs a short-term Monte-Carlo projection.
func (e *Engine) Forecast(ctx context.Context, req ForecastRequest) (*domain.ShortTermResult, error) {
	if err := e.limits.CheckHorizon(req.Horizon); err != nil {
		return nil, err
	}
	in, err := e.prepare(ctx, req.AssetID, req.RangeDays, req.Amount, req.Shares, req.AsOf)
	if err != nil {
		return nil, err
	}

	res, err := e.projector.WithPaths(e.limits.Paths(req.Paths)).
		ShortTerm(in.model, in.price, in.shares, in.asOf, req.Horizon, day)
	if err != nil {
		return nil, err
	}
	res.AssetID = in.assetID
	res.Invested = in.invested
	return res, nil
}

// Scenario runs a long-term Monte-Carlo projection.
func (e *Engine) Scenario(ctx context.Context, req ScenarioRequest) (*domain.LongTermResult, error) {
	if err := e.limits.CheckYears(req.Years); err != nil {
		return nil, err
	}
	in, err := e.prepare(ctx, req.AssetID, req.RangeDays, req.Amount, req.Shares, req.AsOf)
	if err != nil {
		return nil, err
	}

	res, err := e.projector.WithPaths(e.limits.Paths(req.Paths)).
		LongTerm(in.model, in.price, in.shares, in.asOf, req.Years, daysPerYear)
	if err != nil {
		return nil, err
	}
	res.AssetID = in.assetID
	res.Invested = in.invested
	return res, nil
}

// ContributionForecast projects a DCA plan over req.Horizon days.
func (e *Engine) ContributionForecast(ctx context.Context, req ContributionRequest) (*domain.ShortTermResult, error) {
	if err := e.limits.CheckAmount(req.Amount); err != nil {
		return nil, err
	}
	if err := e.limits.CheckHorizon(req.Horizon); err != nil {
		return nil, err
	}
	in, err := e.prepare(ctx, req.AssetID, req.RangeDays, 0, 0, req.AsOf)
	if err != nil {
		return nil, err
	}

	res, err := e.projector.WithPaths(e.limits.Paths(req.Paths)).
		ContributionForecast(in.model, in.price, req.Amount, req.Frequency.Days(), req.Horizon, in.asOf, day)
	if err != nil {
		return nil, err
	}
	res.AssetID = in.assetID
	return res, nil
}

// ContributionScenario projects a DCA plan over req.Years.
func (e *Engine) ContributionScenario(ctx context.Context, req ContributionRequest) (*domain.LongTermResult, error) {
	if err := e.limits.CheckAmount(req.Amount); err != nil {
		return nil, err
	}
	if err := e.limits.CheckYears(req.Years); err != nil {
		return nil, err
	}
	in, err := e.prepare(ctx, req.AssetID, req.RangeDays, 0, 0, req.AsOf)
	if err != nil {
		return nil, err
	}

	res, err := e.projector.WithPaths(e.limits.Paths(req.Paths)).
		ContributionScenario(in.model, in.price, req.Amount, req.Frequency.Days(), in.asOf, req.Years, daysPerYear)
	if err != nil {
		return nil, err
	}
	res.AssetID = in.assetID
	return res, nil
}

// Volatility returns the annualized realized volatility of the raw history,
// scaled by the sampling frequency inferred from it.
func (e *Engine) Volatility(ctx context.Context, assetID string, rangeDays int) (*VolatilityResult, error) {
	days, err := e.limits.RangeDays(rangeDays)
	if err != nil {
		return nil, err
	}
	s, err := e.load(ctx, assetID, days)
	if err != nil {
		return nil, err
	}
	ppy := s.PeriodsPerYear()
	vol, err := s.AnnualizedVolatility(ppy)
	if err != nil {
		return nil, err
	}
	return &VolatilityResult{
		AssetID:        s.AssetID(),
		RangeDays:      days,
		Samples:        s.Len(),
		PeriodsPerYear: ppy,
		AnnualizedPct:  vol,
	}, nil
}

// History returns the normalized price series of an asset.
func (e *Engine) History(ctx context.Context, assetID string, rangeDays int) (*series.Series, error) {
	days, err := e.limits.RangeDays(rangeDays)
	if err != nil {
		return nil, err
	}
	return e.load(ctx, assetID, days)
}

// ---------------------------------------------------------------------------
// Portfolio operations
// ---------------------------------------------------------------------------

// PortfolioHistory values the holdings over the last rangeDays days of daily
// closes. Invested is the cost basis of the holdings in USD.
func (e *Engine) PortfolioHistory(ctx context.Context, holdings []domain.Holding, rangeDays int) (*domain.BacktestResult, error) {
	days, err := e.limits.RangeDays(rangeDays)
	if err != nil {
		return nil, err
	}
	res := &domain.BacktestResult{
		AssetID:       PortfolioID,
		Strategy:      "holdings",
		Invested:      portfolio.CostBasis(holdings),
		Contributions: len(holdings),
	}
	if len(holdings) == 0 {
		return res, nil
	}

	all := e.fetchAll(ctx, holdings, days)
	curves := make(map[string][]domain.Point, len(all))
	for id, s := range all {
		curves[id] = s.Points(1)
	}
	res.ValueSeries = portfolio.Aggregate(holdings, curves)
	if n := len(res.ValueSeries); n > 0 {
		values := make([]float64, n)
		for i, p := range res.ValueSeries {
			values[i] = p.Value
		}
		res.Start = res.ValueSeries[0].Time
		res.FinalValue = values[n-1]
		res.MaxDrawdownPct = strategy.MaxDrawdownPct(values)
		if res.Invested > 0 {
			res.ROIPct = domain.Float((res.FinalValue - res.Invested) / res.Invested * 100)
		}
	}
	return res, ctx.Err()
}

// PortfolioForecast projects every held asset one unit at a time and
// aggregates the bands by quantity.
func (e *Engine) PortfolioForecast(ctx context.Context, req PortfolioRequest) (*domain.ShortTermResult, error) {
	if err := e.limits.CheckHorizon(req.Horizon); err != nil {
		return nil, err
	}
	days, err := e.limits.RangeDays(req.RangeDays)
	if err != nil {
		return nil, err
	}
	paths := e.limits.Paths(req.Paths)

	bands := e.projectAll(ctx, req.Holdings, days, req.AsOf, func(stream int, in *input) (portfolio.Bands, error) {
		r, err := e.projector.WithPaths(paths).WithStream(stream).
			ShortTerm(in.model, in.price, 1, in.asOf, req.Horizon, day)
		if err != nil {
			return portfolio.Bands{}, err
		}
		return portfolio.Bands{Low: r.LowBand, Central: r.CentralSeries, High: r.HighBand}, nil
	})
	agg := portfolio.AggregateBands(req.Holdings, bands)

	return &domain.ShortTermResult{
		AssetID:       PortfolioID,
		Paths:         paths,
		Invested:      portfolio.CostBasis(req.Holdings),
		CentralSeries: agg.Central,
		LowBand:       agg.Low,
		HighBand:      agg.High,
	}, ctx.Err()
}

// PortfolioScenario is the long-term counterpart of PortfolioForecast.
func (e *Engine) PortfolioScenario(ctx context.Context, req PortfolioRequest) (*domain.LongTermResult, error) {
	if err := e.limits.CheckYears(req.Years); err != nil {
		return nil, err
	}
	days, err := e.limits.RangeDays(req.RangeDays)
	if err != nil {
		return nil, err
	}
	paths := e.limits.Paths(req.Paths)

	bands := e.projectAll(ctx, req.Holdings, days, req.AsOf, func(stream int, in *input) (portfolio.Bands, error) {
		r, err := e.projector.WithPaths(paths).WithStream(stream).
			LongTerm(in.model, in.price, 1, in.asOf, req.Years, daysPerYear)
		if err != nil {
			return portfolio.Bands{}, err
		}
		return portfolio.Bands{Low: r.P10Series, Central: r.P50Series, High: r.P90Series}, nil
	})
	agg := portfolio.AggregateBands(req.Holdings, bands)

	return &domain.LongTermResult{
		AssetID:      PortfolioID,
		HorizonYears: req.Years,
		Paths:        paths,
		Invested:     portfolio.CostBasis(req.Holdings),
		P10Series:    agg.Low,
		P50Series:    agg.Central,
		P90Series:    agg.High,
	}, ctx.Err()
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// input is the calibrated starting point of one projection.
type input struct {
	assetID  string
	model    montecarlo.ReturnModel
	price    float64
	shares   float64
	invested float64
	asOf     time.Time
}

func (e *Engine) load(ctx context.Context, assetID string, days int) (*series.Series, error) {
	assetID = strings.TrimSpace(assetID)
	if assetID == "" {
		return nil, fmt.Errorf("%w: missing asset", ErrInvalidRequest)
	}
	samples, err := e.history.FetchHistory(ctx, assetID, days)
	if err != nil {
		return nil, fmt.Errorf("fetching %s history: %w", assetID, err)
	}
	return series.New(assetID, samples)
}

func (e *Engine) prepare(ctx context.Context, assetID string, rangeDays int, amount, shares float64, asOf time.Time) (*input, error) {
	days, err := e.limits.RangeDays(rangeDays)
	if err != nil {
		return nil, err
	}
	if shares < 0 || math.IsNaN(shares) || math.IsInf(shares, 0) {
		return nil, fmt.Errorf("%w: shares must be a finite non-negative number, got %v", ErrInvalidRequest, shares)
	}
	if shares == 0 && amount != 0 {
		if err := e.limits.CheckAmount(amount); err != nil {
			return nil, err
		}
	}

	s, err := e.load(ctx, assetID, days)
	if err != nil {
		return nil, err
	}
	return calibrate(s.Daily(), amount, shares, asOf)
}

// calibrate estimates the return model of s and sizes the position.
func calibrate(s *series.Series, amount, shares float64, asOf time.Time) (*input, error) {
	latest, err := s.Latest()
	if err != nil {
		return nil, err
	}
	m, err := montecarlo.Estimate(s)
	if err != nil {
		return nil, err
	}
	if shares == 0 {
		shares = 1
		if amount > 0 {
			shares = amount / latest.Price
		}
	}
	if asOf.IsZero() {
		asOf = latest.Time
	}
	return &input{
		assetID:  s.AssetID(),
		model:    m,
		price:    latest.Price,
		shares:   shares,
		invested: shares * latest.Price,
		asOf:     asOf,
	}, nil
}

// fetchAll loads the daily series of every held asset concurrently. Assets
// that fail to load are logged and left out, so they contribute nothing to
// the aggregate.
func (e *Engine) fetchAll(ctx context.Context, holdings []domain.Holding, days int) map[string]*series.Series {
	ids := heldAssets(holdings)
	out := make(map[string]*series.Series, len(ids))
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(max(e.fetchers, 1))
	for _, id := range ids {
		g.Go(func() error {
			s, err := e.load(ctx, id, days)
			if err == nil && s.Len() == 0 {
				err = &series.EmptySeriesError{AssetID: id}
			}
			if err != nil {
				e.log.Warn("excluding asset from portfolio", "asset", id, "error", err)
				return nil
			}
			mu.Lock()
			out[id] = s.Daily()
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// projectAll calibrates every fetched asset and runs project on it. Assets are
// visited in sorted order so that each gets a stable random stream.
func (e *Engine) projectAll(ctx context.Context, holdings []domain.Holding, days int, asOf time.Time, project func(stream int, in *input) (portfolio.Bands, error)) map[string]portfolio.Bands {
	all := e.fetchAll(ctx, holdings, days)
	ids := make([]string, 0, len(all))
	for id := range all {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	out := make(map[string]portfolio.Bands, len(ids))
	for i, id := range ids {
		if ctx.Err() != nil {
			break
		}
		in, err := calibrate(all[id], 0, 1, asOf)
		if err == nil {
			out[id], err = project(i, in)
		}
		if err != nil {
			e.log.Warn("excluding asset from projection", "asset", id, "error", err)
			delete(out, id)
		}
	}
	return out
}

// heldAssets returns the distinct asset ids with a positive quantity.
func heldAssets(holdings []domain.Holding) []string {
	var ids []string
	for _, h := range holdings {
		if h.Quantity > 0 && !slices.Contains(ids, h.AssetID) {
			ids = append(ids, h.AssetID)
		}
	}
	return ids
}
