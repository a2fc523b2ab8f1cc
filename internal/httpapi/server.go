// Package httpapi exposes the simulation engine and the user records over a
// JSON HTTP API.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"foresight/internal/engine"
	"foresight/internal/fx"
	"foresight/internal/montecarlo"
	"foresight/internal/pricefeed"
	"foresight/internal/series"
	"foresight/internal/store"
	"foresight/internal/strategy"
	"foresight/internal/strategy/builtins"
)

// UserHeader carries the caller's user id. Requests without it act as
// AnonymousUser.
const (
	UserHeader    = "X-User-ID"
	AnonymousUser = "anonymous"
)

// Records is the user-record storage the server needs.
type Records interface {
	store.HoldingStore
	store.AlertStore
	store.GoalStore
}

// RateSource provides USD-based currency rates.
type RateSource interface {
	Rates(ctx context.Context) map[string]float64
	RateOf(ctx context.Context, code string) (float64, error)
}

// Server serves the foresight HTTP API.
type Server struct {
	engine  *engine.Engine
	records Records
	rates   RateSource
	origin  string
	log     *slog.Logger
}

// NewServer creates a new API server. An empty corsOrigin allows any origin.
func NewServer(eng *engine.Engine, records Records, rates RateSource, corsOrigin string) *Server {
	if corsOrigin == "" {
		corsOrigin = "*"
	}
	return &Server{
		engine:  eng,
		records: records,
		rates:   rates,
		origin:  corsOrigin,
		log:     slog.Default().With("component", "httpapi"),
	}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/strategies", s.handleStrategies)
	mux.HandleFunc("GET /api/fx", s.handleFX)
	mux.HandleFunc("GET /api/history/{asset}/{days}", s.handleHistory)
	mux.HandleFunc("GET /api/volatility/{asset}/{days}", s.handleVolatility)

	mux.HandleFunc("GET /api/whatif", s.handleWhatIf)
	mux.HandleFunc("GET /api/dca", s.handleDCA)
	mux.HandleFunc("GET /api/forecast/{asset}", s.handleForecast)
	mux.HandleFunc("GET /api/scenario/{asset}", s.handleScenario)
	mux.HandleFunc("GET /api/whatif_predict", s.handleWhatIfPredict)
	mux.HandleFunc("GET /api/whatif_scenario", s.handleWhatIfScenario)
	mux.HandleFunc("GET /api/dca_predict", s.handleDCAPredict)
	mux.HandleFunc("GET /api/dca_scenario", s.handleDCAScenario)

	mux.HandleFunc("GET /api/portfolio_history", s.handlePortfolioHistory)
	mux.HandleFunc("GET /api/portfolio_forecast", s.handlePortfolioForecast)
	mux.HandleFunc("GET /api/portfolio_scenario", s.handlePortfolioScenario)

	mux.HandleFunc("GET /api/holdings", s.handleListHoldings)
	mux.HandleFunc("POST /api/holdings", s.handleSaveHolding)
	mux.HandleFunc("DELETE /api/holdings/{id}", s.handleDeleteHolding)
	mux.HandleFunc("GET /api/alerts", s.handleListAlerts)
	mux.HandleFunc("POST /api/alerts", s.handleSaveAlert)
	mux.HandleFunc("DELETE /api/alerts/{id}", s.handleDeleteAlert)
	mux.HandleFunc("GET /api/goal", s.handleGetGoal)
	mux.HandleFunc("PUT /api/goal", s.handlePutGoal)
}

// Handler returns an http.Handler with CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(s.origin, mux)
}

func corsMiddleware(origin string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+UserHeader)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

// writeJSONStatus marshals v before writing the header, so an unencodable
// value yields a 500 instead of a truncated success.
func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		slog.Error("encoding JSON response", "error", err)
		writeError(w, http.StatusInternalServerError, "encoding response failed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(body, '\n'))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSONStatus(w, status, ErrorResponse{Error: msg})
}

// fail maps err to a status code and writes it. Server-side failures are
// logged.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	} else {
		s.log.Debug("request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrInvalidRequest),
		errors.Is(err, montecarlo.ErrInvalidHorizon),
		errors.Is(err, strategy.ErrUnknownStrategy),
		errors.Is(err, strategy.ErrInvalidAmount),
		errors.Is(err, builtins.ErrUnknownFrequency),
		errors.Is(err, fx.ErrUnknownCurrency),
		errors.Is(err, errBadParam):
		return http.StatusBadRequest
	case errors.Is(err, pricefeed.ErrUnsupportedAsset), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, series.ErrData),
		errors.Is(err, montecarlo.ErrInvalidPrice),
		errors.Is(err, montecarlo.ErrOverflow),
		errors.Is(err, fx.ErrNonFinite):
		return http.StatusUnprocessableEntity
	case errors.Is(err, pricefeed.ErrNoData):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func userID(r *http.Request) string {
	if u := strings.TrimSpace(r.Header.Get(UserHeader)); u != "" {
		return u
	}
	return AnonymousUser
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{OK: true, Time: time.Now().UTC().Format(time.RFC3339)}
	if p, ok := s.records.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(r.Context()); err != nil {
			s.log.Warn("health check: store unavailable", "error", err)
			resp.OK = false
			resp.Error = err.Error()
			writeJSONStatus(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	writeJSON(w, resp)
}

func (s *Server) handleStrategies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, StrategiesResponse{Strategies: s.engine.Strategies()})
}

func (s *Server) handleFX(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.rates.Rates(r.Context()))
}
