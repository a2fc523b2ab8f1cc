package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"foresight/internal/config"
	"foresight/internal/engine"
	"foresight/internal/fx"
	"foresight/internal/httpapi"
	"foresight/internal/montecarlo"
	"foresight/internal/pricefeed"
	"foresight/internal/scheduler"
	"foresight/internal/store"
	"foresight/internal/strategy"
	"foresight/internal/strategy/builtins"
	"foresight/internal/util"
)

func main() {
	cfg, err := config.LoadOrDefault(config.Path())
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	// Storage: parquet history, sqlite user records.
	history := store.NewParquetStore(cfg.Storage.DataDir)
	records, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("opening sqlite store: %v", err)
	}
	defer records.Close()

	// Price history: provider chain behind a write-through cache.
	p := cfg.Providers
	providers := []pricefeed.Provider{
		pricefeed.NewCoinGecko(p.CoinGecko.BaseURL, p.CoinGecko.APIKey, p.CoinGecko.RateLimitPerMin),
		pricefeed.NewCryptoCompare(p.CryptoCompare.BaseURL, p.CryptoCompare.APIKey),
	}
	if a := pricefeed.NewAlpaca(p.Alpaca.APIKey, p.Alpaca.APISecret, p.Alpaca.DataURL, p.Alpaca.Feed); a != nil {
		providers = append(providers, a)
	} else {
		logger.Info("alpaca credentials not set, equity history disabled")
	}
	feed := pricefeed.NewCache(pricefeed.NewChain(providers...), history, p.CacheTTL, p.StaleOK)

	rates := fx.NewProvider(fx.DefaultSources(), cfg.FX.Currencies, cfg.FX.TTL)

	sim := cfg.Simulation
	seed := sim.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	projector := montecarlo.NewProjector(sim.DefaultPaths, sim.Workers, seed)
	projector.SampleEvery = sim.SampleEvery

	limits := engine.DefaultLimits()
	limits.DefaultPaths = sim.DefaultPaths
	limits.MinPaths = sim.MinPaths
	limits.MaxPaths = sim.MaxPaths
	limits.MaxHorizon = sim.MaxForecastDays
	limits.MaxYears = sim.MaxScenarioYears

	eng := engine.NewEngine(feed, strategy.NewBacktester(builtins.NewRegistry()), projector, limits)
	srv := httpapi.NewServer(eng, records, rates, cfg.Server.CORSOrigin)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Background refresh keeps the history cache warm.
	var refresher *scheduler.Refresher
	if len(cfg.Refresh.Assets) > 0 && cfg.Refresh.Schedule != "" {
		refresher = scheduler.NewRefresher(feed, cfg.Refresh.Assets, cfg.Refresh.RangeDays)
		if err := refresher.Schedule(ctx, cfg.Refresh.Schedule); err != nil {
			log.Fatalf("scheduling refresh: %v", err)
		}
		refresher.Start()
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("foresight server listening", "addr", httpServer.Addr, "seed", seed)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down foresight server")

	if refresher != nil {
		refresher.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}
