// Package pricefeed fetches daily price histories from upstream market-data
// APIs (CoinGecko, CryptoCompare, Alpaca) and caches them in memory and on
// disk.
package pricefeed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"foresight/internal/domain"
)

var (
	// ErrUnsupportedAsset is returned by a provider that cannot serve an asset.
	ErrUnsupportedAsset = errors.New("asset not supported by provider")

	// ErrNoData is returned when no provider produced any samples.
	ErrNoData = errors.New("no price history available")
)

// Provider fetches the price history of an asset over the last days days.
type Provider interface {
	Name() string
	FetchHistory(ctx context.Context, assetID string, days int) ([]domain.PriceSample, error)
}

// Compile-time interface checks.
var (
	_ Provider = (*Chain)(nil)
	_ Provider = (*CoinGecko)(nil)
	_ Provider = (*CryptoCompare)(nil)
	_ Provider = (*Alpaca)(nil)
	_ Provider = (*Cache)(nil)
)

// NormalizeAssetID lower-cases crypto ids and upper-cases equity tickers.
func NormalizeAssetID(assetID string) string {
	assetID = strings.TrimSpace(assetID)
	if sym, ok := EquitySymbol(assetID); ok {
		return equityPrefix + sym
	}
	return strings.ToLower(assetID)
}

// Chain tries providers in order and returns the first non-empty history.
type Chain struct {
	providers []Provider
	log       *slog.Logger
}

// NewChain creates a Chain over the given providers.
func NewChain(providers ...Provider) *Chain {
	c := &Chain{log: slog.Default().With("component", "pricefeed")}
	c.providers = append(c.providers, providers...)
	return c
}

// Name returns the chained provider names.
func (c *Chain) Name() string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return strings.Join(names, ",")
}

// FetchHistory returns the history from the first provider that has data.
// Providers returning ErrUnsupportedAsset are skipped silently.
func (c *Chain) FetchHistory(ctx context.Context, assetID string, days int) ([]domain.PriceSample, error) {
	var errs []error
	supported := false
	for _, p := range c.providers {
		samples, err := p.FetchHistory(ctx, assetID, days)
		if errors.Is(err, ErrUnsupportedAsset) {
			continue
		}
		supported = true
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.log.Warn("provider failed", "provider", p.Name(), "asset", assetID, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			continue
		}
		if len(samples) > 0 {
			return samples, nil
		}
	}
	if !supported {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAsset, assetID)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w for %s: %w", ErrNoData, assetID, errors.Join(errs...))
	}
	return nil, fmt.Errorf("%w for %s", ErrNoData, assetID)
}

func validPrice(p float64) bool {
	return p > 0 && !math.IsInf(p, 0)
}
