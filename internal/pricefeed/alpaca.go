package pricefeed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"foresight/internal/domain"
)

const equityPrefix = "stock:"

// EquitySymbol returns the ticker of an equity asset id such as "stock:AAPL".
func EquitySymbol(assetID string) (string, bool) {
	assetID = strings.TrimSpace(assetID)
	if len(assetID) <= len(equityPrefix) || !strings.EqualFold(assetID[:len(equityPrefix)], equityPrefix) {
		return "", false
	}
	return strings.ToUpper(assetID[len(equityPrefix):]), true
}

// barsClient is the subset of *marketdata.Client used here.
type barsClient interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
}

// Alpaca serves daily closes for US equities via the Alpaca market-data API.
type Alpaca struct {
	client barsClient
	feed   marketdata.Feed
	now    func() time.Time
	log    *slog.Logger
}

// NewAlpaca creates an Alpaca provider. It returns nil when no API key is
// configured.
func NewAlpaca(apiKey, apiSecret, dataURL, feed string) *Alpaca {
	if apiKey == "" {
		return nil
	}
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	if feed == "" {
		feed = "iex"
	}
	return &Alpaca{
		client: marketdata.NewClient(opts),
		feed:   marketdata.Feed(feed),
		now:    time.Now,
		log:    slog.Default().With("provider", "alpaca"),
	}
}

// Name returns the provider identifier.
func (a *Alpaca) Name() string { return "alpaca" }

// FetchHistory returns daily closing prices for a "stock:" asset id.
func (a *Alpaca) FetchHistory(ctx context.Context, assetID string, days int) ([]domain.PriceSample, error) {
	sym, ok := EquitySymbol(assetID)
	if !ok {
		return nil, ErrUnsupportedAsset
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// The free data plan rejects queries touching the last 15 minutes.
	end := a.now().UTC().Add(-15 * time.Minute)
	start := end.AddDate(0, 0, -days)

	bars, err := a.client.GetBars(sym, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     start,
		End:       end,
		Feed:      a.feed,
	})
	if err != nil {
		return nil, fmt.Errorf("alpaca GetBars %s: %w", sym, err)
	}

	samples := make([]domain.PriceSample, 0, len(bars))
	for _, b := range bars {
		if !validPrice(b.Close) {
			continue
		}
		samples = append(samples, domain.PriceSample{Time: b.Timestamp.UTC(), Price: b.Close})
	}
	a.log.Debug("fetched bars", "symbol", sym, "bars", len(samples))
	return samples, nil
}
