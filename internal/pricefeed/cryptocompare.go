package pricefeed

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"foresight/internal/domain"
	"foresight/internal/util"
)

// maxHistodayLimit is the most days CryptoCompare returns per request.
const maxHistodayLimit = 2000

// DefaultCryptoCompareSymbols maps coin ids to CryptoCompare tickers.
var DefaultCryptoCompareSymbols = map[string]string{
	"bitcoin":  "BTC",
	"ethereum": "ETH",
	"dogecoin": "DOGE",
}

// CryptoCompare serves deep daily history for a fixed set of coins from the
// histoday endpoint.
type CryptoCompare struct {
	baseURL  string
	apiKey   string
	symbols  map[string]string
	client   *http.Client
	attempts int
	backoff  time.Duration
	now      func() time.Time
	log      *slog.Logger
}

// NewCryptoCompare creates a CryptoCompare provider using
// DefaultCryptoCompareSymbols.
func NewCryptoCompare(baseURL, apiKey string) *CryptoCompare {
	if baseURL == "" {
		baseURL = "https://min-api.cryptocompare.com"
	}
	return &CryptoCompare{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		symbols:  DefaultCryptoCompareSymbols,
		client:   util.NewHTTPClient(),
		attempts: 3,
		backoff:  time.Second,
		now:      time.Now,
		log:      slog.Default().With("provider", "cryptocompare"),
	}
}

// Name returns the provider identifier.
func (c *CryptoCompare) Name() string { return "cryptocompare" }

type histodayResponse struct {
	Response string `json:"Response"`
	Message  string `json:"Message"`
	Data     struct {
		Data []struct {
			Time  int64   `json:"time"`
			Close float64 `json:"close"`
		} `json:"Data"`
	} `json:"Data"`
}

// FetchHistory pages backwards through histoday until the requested range is
// covered. Non-positive closes are dropped.
func (c *CryptoCompare) FetchHistory(ctx context.Context, assetID string, days int) ([]domain.PriceSample, error) {
	sym, ok := c.symbols[strings.ToLower(strings.TrimSpace(assetID))]
	if !ok {
		return nil, ErrUnsupportedAsset
	}

	header := http.Header{}
	if c.apiKey != "" {
		header.Set("authorization", "Apikey "+c.apiKey)
	}

	to := c.now().Unix()
	from := to - int64(days)*86400
	remaining := max(days, 1)
	cursor := to

	var out []domain.PriceSample
	for remaining > 0 {
		q := url.Values{}
		q.Set("fsym", sym)
		q.Set("tsym", "USD")
		q.Set("toTs", strconv.FormatInt(cursor, 10))
		q.Set("limit", strconv.Itoa(min(remaining, maxHistodayLimit)))
		u := c.baseURL + "/data/v2/histoday?" + q.Encode()

		var resp histodayResponse
		err := util.Retry(ctx, c.attempts, c.backoff, func() error {
			return util.GetJSON(ctx, c.client, u, header, &resp)
		})
		if err != nil {
			return nil, fmt.Errorf("cryptocompare %s: %w", sym, err)
		}
		if resp.Response != "Success" {
			if len(out) > 0 {
				break
			}
			return nil, fmt.Errorf("cryptocompare %s: %s", sym, resp.Message)
		}
		rows := resp.Data.Data
		if len(rows) == 0 {
			break
		}
		for _, r := range rows {
			if r.Time < from || r.Time > to || !validPrice(r.Close) {
				continue
			}
			out = append(out, domain.PriceSample{Time: time.Unix(r.Time, 0).UTC(), Price: r.Close})
		}

		cursor = rows[0].Time - 1
		if cursor < from {
			break
		}
		remaining = int((cursor - from) / 86400)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	c.log.Debug("fetched histoday", "symbol", sym, "samples", len(out))
	return out, nil
}
