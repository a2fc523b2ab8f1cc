package httpapi

import (
	"fmt"
	"net/http"

	"foresight/internal/domain"
	"foresight/internal/engine"
	"foresight/internal/fx"
	"foresight/internal/strategy/builtins"
)

// Query defaults for the simulation endpoints.
const (
	defaultLumpSum      = 500
	defaultContribution = 50
	defaultStartDate    = "2021-01-01"
	defaultHorizon      = 90
	defaultPortfolioH   = 120
	defaultYears        = 10
	defaultMonths       = 3
	maxMonths           = 6
)

// ---------------------------------------------------------------------------
// Market data
// ---------------------------------------------------------------------------

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	days, err := daysValue(r.PathValue("days"), s.engine.Limits().MaxRangeDays)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ccy, rate, err := s.currency(r.Context(), r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	hist, err := s.engine.History(r.Context(), assetParam(r), days)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	prices, err := samplePoints(hist.Samples(), rate)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, HistoryResponse{
		Asset:    hist.AssetID(),
		Days:     days,
		Currency: ccy,
		Prices:   prices,
	})
}

func (s *Server) handleVolatility(w http.ResponseWriter, r *http.Request) {
	days, err := daysValue(r.PathValue("days"), s.engine.Limits().MaxRangeDays)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	v, err := s.engine.Volatility(r.Context(), assetParam(r), days)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, VolatilityResponse{
		Asset:          v.AssetID,
		Days:           v.RangeDays,
		Samples:        v.Samples,
		PeriodsPerYear: v.PeriodsPerYear,
		AnnualizedVol:  v.AnnualizedPct,
	})
}

// ---------------------------------------------------------------------------
// Backtests
// ---------------------------------------------------------------------------

func (s *Server) handleWhatIf(w http.ResponseWriter, r *http.Request) {
	amount, err := floatParam(r, "amount", defaultLumpSum)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	start, err := dateParam(r, "date", defaultStartDate)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.backtest(w, r, engine.BacktestRequest{
		AssetID:  assetParam(r),
		Strategy: builtins.LumpSumName,
		Amount:   amount,
		Start:    start,
	})
}

func (s *Server) handleDCA(w http.ResponseWriter, r *http.Request) {
	amount, err := floatParam(r, "amount", defaultContribution)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	start, err := dateParam(r, "start", defaultStartDate)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	freq, err := builtins.ParseFrequency(r.URL.Query().Get("freq"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.backtest(w, r, engine.BacktestRequest{
		AssetID:  assetParam(r),
		Strategy: builtins.DCAName(freq),
		Amount:   amount,
		Start:    start,
	})
}

func (s *Server) backtest(w http.ResponseWriter, r *http.Request, req engine.BacktestRequest) {
	ccy, rate, err := s.currency(r.Context(), r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.engine.Backtest(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out, err := encodeResult(res, ccy, rate)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, out)
}

// ---------------------------------------------------------------------------
// Projections
// ---------------------------------------------------------------------------

// projection holds the query parameters shared by projection endpoints.
type projection struct {
	horizon   int
	years     float64
	rangeDays int
	paths     int
}

func (s *Server) projectionParams(r *http.Request, defHorizon int) (projection, error) {
	var p projection
	var err error
	if p.horizon, err = intParam(r, "h", defHorizon); err != nil {
		return p, err
	}
	if p.years, err = floatParam(r, "years", defaultYears); err != nil {
		return p, err
	}
	if p.rangeDays, err = intParam(r, "days", 0); err != nil {
		return p, err
	}
	if p.paths, err = intParam(r, "n", 0); err != nil {
		return p, err
	}
	return p, nil
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	p, err := s.projectionParams(r, defaultHorizon)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	shares, err := floatParam(r, "shares", 0)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := floatParam(r, "amount", 0)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.simulate(w, r, func() (domain.SimulationResult, error) {
		return s.engine.Forecast(r.Context(), engine.ForecastRequest{
			AssetID: assetParam(r), Amount: amount, Shares: shares,
			Horizon: p.horizon, RangeDays: p.rangeDays, Paths: p.paths,
		})
	})
}

func (s *Server) handleScenario(w http.ResponseWriter, r *http.Request) {
	p, err := s.projectionParams(r, defaultHorizon)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	shares, err := floatParam(r, "shares", 0)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := floatParam(r, "amount", 0)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.simulate(w, r, func() (domain.SimulationResult, error) {
		return s.engine.Scenario(r.Context(), engine.ScenarioRequest{
			AssetID: assetParam(r), Amount: amount, Shares: shares,
			Years: p.years, RangeDays: p.rangeDays, Paths: p.paths,
		})
	})
}

func (s *Server) handleWhatIfPredict(w http.ResponseWriter, r *http.Request) {
	p, err := s.projectionParams(r, defaultHorizon)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := floatParam(r, "amount", defaultLumpSum)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.engine.Limits().CheckAmount(amount); err != nil {
		s.fail(w, r, err)
		return
	}
	s.simulate(w, r, func() (domain.SimulationResult, error) {
		return s.engine.Forecast(r.Context(), engine.ForecastRequest{
			AssetID: assetParam(r), Amount: amount,
			Horizon: p.horizon, RangeDays: p.rangeDays, Paths: p.paths,
		})
	})
}

func (s *Server) handleWhatIfScenario(w http.ResponseWriter, r *http.Request) {
	p, err := s.projectionParams(r, defaultHorizon)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := floatParam(r, "amount", defaultLumpSum)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.engine.Limits().CheckAmount(amount); err != nil {
		s.fail(w, r, err)
		return
	}
	s.simulate(w, r, func() (domain.SimulationResult, error) {
		return s.engine.Scenario(r.Context(), engine.ScenarioRequest{
			AssetID: assetParam(r), Amount: amount,
			Years: p.years, RangeDays: p.rangeDays, Paths: p.paths,
		})
	})
}

func (s *Server) handleDCAPredict(w http.ResponseWriter, r *http.Request) {
	p, err := s.projectionParams(r, defaultHorizon)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := floatParam(r, "amount", defaultContribution)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	freq, err := builtins.ParseFrequency(r.URL.Query().Get("freq"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	months, err := intParam(r, "months", defaultMonths)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if months < 1 || months > maxMonths {
		s.fail(w, r, fmt.Errorf("%w: months %d outside [1, %d]", errBadParam, months, maxMonths))
		return
	}
	s.simulate(w, r, func() (domain.SimulationResult, error) {
		return s.engine.ContributionForecast(r.Context(), engine.ContributionRequest{
			AssetID: assetParam(r), Amount: amount, Frequency: freq,
			Horizon: months * 30, RangeDays: p.rangeDays, Paths: p.paths,
		})
	})
}

func (s *Server) handleDCAScenario(w http.ResponseWriter, r *http.Request) {
	p, err := s.projectionParams(r, defaultHorizon)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := floatParam(r, "amount", defaultContribution)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	freq, err := builtins.ParseFrequency(r.URL.Query().Get("freq"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.simulate(w, r, func() (domain.SimulationResult, error) {
		return s.engine.ContributionScenario(r.Context(), engine.ContributionRequest{
			AssetID: assetParam(r), Amount: amount, Frequency: freq,
			Years: p.years, RangeDays: p.rangeDays, Paths: p.paths,
		})
	})
}

// simulate resolves the output currency, runs the simulation and writes the
// encoded result.
func (s *Server) simulate(w http.ResponseWriter, r *http.Request, run func() (domain.SimulationResult, error)) {
	ccy, rate, err := s.currency(r.Context(), r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := run()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out, err := encodeResult(res, ccy, rate)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, out)
}

// ---------------------------------------------------------------------------
// Portfolio
// ---------------------------------------------------------------------------

// holdingsUSD loads the caller's holdings with buy prices converted to USD.
// Holdings in a currency without a known rate keep their quoted price.
func (s *Server) holdingsUSD(r *http.Request) ([]domain.Holding, error) {
	holdings, err := s.records.ListHoldings(r.Context(), userID(r))
	if err != nil {
		return nil, fmt.Errorf("listing holdings: %w", err)
	}
	for i, h := range holdings {
		if h.Currency == "" || h.Currency == fx.Base {
			continue
		}
		rate, err := s.rates.RateOf(r.Context(), h.Currency)
		if err != nil {
			s.log.Warn("no rate for holding currency", "holding", h.ID, "ccy", h.Currency, "error", err)
			continue
		}
		usd, err := fx.ToUSD(h.BuyPrice, rate)
		if err != nil {
			return nil, fmt.Errorf("holding %s: %w", h.ID, err)
		}
		holdings[i].BuyPrice = usd
		holdings[i].Currency = fx.Base
	}
	return holdings, nil
}

func (s *Server) handlePortfolioHistory(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r, "days", 0)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.simulate(w, r, func() (domain.SimulationResult, error) {
		holdings, err := s.holdingsUSD(r)
		if err != nil {
			return nil, err
		}
		return s.engine.PortfolioHistory(r.Context(), holdings, days)
	})
}

func (s *Server) handlePortfolioForecast(w http.ResponseWriter, r *http.Request) {
	p, err := s.projectionParams(r, defaultPortfolioH)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.simulate(w, r, func() (domain.SimulationResult, error) {
		holdings, err := s.holdingsUSD(r)
		if err != nil {
			return nil, err
		}
		return s.engine.PortfolioForecast(r.Context(), engine.PortfolioRequest{
			Holdings: holdings, Horizon: p.horizon, RangeDays: p.rangeDays, Paths: p.paths,
		})
	})
}

func (s *Server) handlePortfolioScenario(w http.ResponseWriter, r *http.Request) {
	p, err := s.projectionParams(r, defaultPortfolioH)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.simulate(w, r, func() (domain.SimulationResult, error) {
		holdings, err := s.holdingsUSD(r)
		if err != nil {
			return nil, err
		}
		return s.engine.PortfolioScenario(r.Context(), engine.PortfolioRequest{
			Holdings: holdings, Years: p.years, RangeDays: p.rangeDays, Paths: p.paths,
		})
	})
}
