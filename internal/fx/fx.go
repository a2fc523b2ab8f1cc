// Package fx provides USD-based currency rates with provider fallback and
// helpers for converting monetary outputs.
package fx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"foresight/internal/util"
)

var (
	// ErrUnknownCurrency is returned for a currency with no known rate.
	ErrUnknownCurrency = errors.New("unknown currency")
	// ErrNonFinite is returned when converting NaN or an infinity.
	ErrNonFinite = errors.New("non-finite amount")
)

// Base is the currency all engine values are expressed in.
const Base = "USD"

// Source is one upstream rates endpoint. Every supported endpoint returns a
// JSON object with a "rates" map keyed by currency code.
type Source struct {
	Name string
	URL  func(wanted []string) string
}

// DefaultSources are tried in order until one returns a usable rate set.
func DefaultSources() []Source {
	return []Source{
		{Name: "exchangerate.host", URL: func(wanted []string) string {
			q := url.Values{"base": {Base}, "symbols": {strings.Join(wanted, ",")}}
			return "https://api.exchangerate.host/latest?" + q.Encode()
		}},
		{Name: "open.er-api", URL: func([]string) string {
			return "https://open.er-api.com/v6/latest/USD"
		}},
		{Name: "frankfurter", URL: func([]string) string {
			return "https://api.frankfurter.app/latest?from=USD"
		}},
	}
}

// Provider serves cached USD-based rates.
type Provider struct {
	sources []Source
	wanted  []string
	ttl     time.Duration
	client  *http.Client
	now     func() time.Time
	log     *slog.Logger

	mu      sync.Mutex
	rates   map[string]float64
	fetched time.Time
}

// NewProvider creates a Provider for the wanted currencies.
func NewProvider(sources []Source, wanted []string, ttl time.Duration) *Provider {
	codes := make([]string, 0, len(wanted))
	for _, w := range wanted {
		if w = strings.ToUpper(strings.TrimSpace(w)); w != "" && w != Base {
			codes = append(codes, w)
		}
	}
	return &Provider{
		sources: sources,
		wanted:  codes,
		ttl:     ttl,
		client:  util.NewHTTPClient(),
		now:     time.Now,
		log:     slog.Default().With("component", "fx"),
		rates:   map[string]float64{Base: 1},
	}
}

type ratesResponse struct {
	Rates map[string]float64 `json:"rates"`
}

// Rates returns the USD-based rates. When every source fails the last known
// rates are returned; USD is always present.
func (p *Provider) Rates(ctx context.Context) map[string]float64 {
	now := p.now()

	p.mu.Lock()
	if !p.fetched.IsZero() && now.Sub(p.fetched) < p.ttl {
		out := maps.Clone(p.rates)
		p.mu.Unlock()
		return out
	}
	p.mu.Unlock()

	for _, src := range p.sources {
		var resp ratesResponse
		if err := util.GetJSON(ctx, p.client, src.URL(p.wanted), nil, &resp); err != nil {
			p.log.Debug("rate source failed", "source", src.Name, "error", err)
			continue
		}
		rates := p.normalize(resp.Rates)
		if len(rates) <= 1 {
			continue
		}

		p.mu.Lock()
		p.rates, p.fetched = rates, now
		p.mu.Unlock()
		return maps.Clone(rates)
	}

	p.log.Warn("all rate sources failed, serving last known rates")
	p.mu.Lock()
	defer p.mu.Unlock()
	return maps.Clone(p.rates)
}

// RateOf returns the USD-to-code rate.
func (p *Provider) RateOf(ctx context.Context, code string) (float64, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" || code == Base {
		return 1, nil
	}
	rate, ok := p.Rates(ctx)[code]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownCurrency, code)
	}
	return rate, nil
}

func (p *Provider) normalize(in map[string]float64) map[string]float64 {
	out := map[string]float64{Base: 1}
	for k, v := range in {
		if v > 0 {
			out[strings.ToUpper(k)] = v
		}
	}
	if len(p.wanted) == 0 {
		return out
	}
	kept := map[string]float64{Base: 1}
	for _, w := range p.wanted {
		if v, ok := out[w]; ok {
			kept[w] = v
		}
	}
	return kept
}

// ---------------------------------------------------------------------------
// Conversion
// ---------------------------------------------------------------------------

// Convert converts a USD amount at rate and rounds it to cents.
func Convert(amount, rate float64) (decimal.Decimal, error) {
	if err := finite(amount, rate); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromFloat(amount).Mul(decimal.NewFromFloat(rate)).Round(2), nil
}

// ToUSD converts an amount quoted at rate back to USD. A non-positive rate
// leaves the amount unchanged.
func ToUSD(amount, rate float64) (float64, error) {
	if err := finite(amount, rate); err != nil {
		return 0, err
	}
	if rate <= 0 {
		return amount, nil
	}
	return decimal.NewFromFloat(amount).Div(decimal.NewFromFloat(rate)).InexactFloat64(), nil
}

// Scale multiplies v by rate without rounding, for prices and curve points.
func Scale(v, rate float64) (float64, error) {
	if err := finite(v, rate); err != nil {
		return 0, err
	}
	if rate == 1 {
		return v, nil
	}
	return decimal.NewFromFloat(v).Mul(decimal.NewFromFloat(rate)).InexactFloat64(), nil
}

// finite rejects NaN and infinities, which decimal cannot represent.
func finite(vs ...float64) error {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %v", ErrNonFinite, v)
		}
	}
	return nil
}
