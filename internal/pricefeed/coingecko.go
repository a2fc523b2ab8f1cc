package pricefeed

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"foresight/internal/domain"
	"foresight/internal/util"
)

// CoinGecko fetches crypto histories from the CoinGecko market_chart endpoint.
type CoinGecko struct {
	baseURL  string
	apiKey   string
	client   *http.Client
	limiter  *util.RateLimiter
	attempts int
	backoff  time.Duration
	log      *slog.Logger
}

// NewCoinGecko creates a CoinGecko provider. apiKey is optional and sent as a
// demo key header. perMinute <= 0 disables client-side rate limiting.
func NewCoinGecko(baseURL, apiKey string, perMinute int) *CoinGecko {
	if baseURL == "" {
		baseURL = "https://api.coingecko.com"
	}
	return &CoinGecko{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		client:   util.NewHTTPClient(),
		limiter:  util.NewRateLimiter(perMinute, 5),
		attempts: 3,
		backoff:  time.Second,
		log:      slog.Default().With("provider", "coingecko"),
	}
}

// Name returns the provider identifier.
func (c *CoinGecko) Name() string { return "coingecko" }

type marketChart struct {
	Prices [][]float64 `json:"prices"`
}

// FetchHistory returns the last days days of USD prices for a CoinGecko coin
// id. Ranges over a week are requested at daily granularity; if that request
// is rate-limited or empty it is retried once with the API's default
// granularity.
func (c *CoinGecko) FetchHistory(ctx context.Context, assetID string, days int) ([]domain.PriceSample, error) {
	if _, ok := EquitySymbol(assetID); ok {
		return nil, ErrUnsupportedAsset
	}
	id := strings.ToLower(strings.TrimSpace(assetID))
	if id == "" {
		return nil, ErrUnsupportedAsset
	}

	daily := days > 7
	samples, err := c.marketChart(ctx, id, days, daily)
	if err == nil && len(samples) > 0 {
		return samples, nil
	}
	if !daily {
		return samples, err
	}

	c.log.Debug("daily request limited or empty, relaxing interval", "asset", id, "error", err)
	samples, err = c.marketChart(ctx, id, days, false)
	if err != nil {
		return nil, fmt.Errorf("coingecko %s: %w", id, err)
	}
	return samples, nil
}

func (c *CoinGecko) marketChart(ctx context.Context, id string, days int, daily bool) ([]domain.PriceSample, error) {
	q := url.Values{}
	q.Set("vs_currency", "usd")
	q.Set("days", strconv.Itoa(days))
	if daily {
		q.Set("interval", "daily")
	}
	u := fmt.Sprintf("%s/api/v3/coins/%s/market_chart?%s", c.baseURL, url.PathEscape(id), q.Encode())

	header := http.Header{}
	if c.apiKey != "" {
		header.Set("x-cg-demo-api-key", c.apiKey)
	}

	var chart marketChart
	err := util.Retry(ctx, c.attempts, c.backoff, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}
		return util.GetJSON(ctx, c.client, u, header, &chart)
	})
	if err != nil {
		return nil, err
	}

	samples := make([]domain.PriceSample, 0, len(chart.Prices))
	for _, row := range chart.Prices {
		if len(row) < 2 || !validPrice(row[1]) {
			continue
		}
		samples = append(samples, domain.PriceSample{
			Time:  time.UnixMilli(int64(row[0])).UTC(),
			Price: row[1],
		})
	}
	return samples, nil
}
