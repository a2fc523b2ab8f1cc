package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"

	"foresight/internal/config"
	"foresight/internal/pricefeed"
	"foresight/internal/scheduler"
	"foresight/internal/store"
	"foresight/internal/util"
)

func main() {
	assets := flag.String("assets", "", "comma-separated asset ids (default: refresh.assets from config)")
	days := flag.Int("days", 0, "history window in days (default: refresh.range_days)")
	flag.Parse()

	cfg, err := config.LoadOrDefault(config.Path())
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, "text")
	util.SetDefault(logger)

	list := cfg.Refresh.Assets
	if *assets != "" {
		list = strings.Split(*assets, ",")
	}
	if len(list) == 0 {
		log.Fatal("no assets to gather: set -assets or refresh.assets")
	}
	rangeDays := cfg.Refresh.RangeDays
	if *days > 0 {
		rangeDays = *days
	}

	p := cfg.Providers
	providers := []pricefeed.Provider{
		pricefeed.NewCoinGecko(p.CoinGecko.BaseURL, p.CoinGecko.APIKey, p.CoinGecko.RateLimitPerMin),
		pricefeed.NewCryptoCompare(p.CryptoCompare.BaseURL, p.CryptoCompare.APIKey),
	}
	if a := pricefeed.NewAlpaca(p.Alpaca.APIKey, p.Alpaca.APISecret, p.Alpaca.DataURL, p.Alpaca.Feed); a != nil {
		providers = append(providers, a)
	}
	// Failures must not be masked by stored history here.
	feed := pricefeed.NewCache(pricefeed.NewChain(providers...), store.NewParquetStore(cfg.Storage.DataDir), p.CacheTTL, false)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("gathering history", "assets", len(list), "range_days", rangeDays, "data_dir", cfg.Storage.DataDir)
	rep, err := scheduler.NewRefresher(feed, list, rangeDays).RunOnce(ctx)
	if rep != nil {
		for asset, n := range rep.Refreshed {
			slog.Info("refreshed", "asset", asset, "samples", n)
		}
	}
	if err != nil {
		log.Fatalf("gather failed: %v", err)
	}
}
