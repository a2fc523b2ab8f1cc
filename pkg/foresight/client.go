// Package foresight is a Go client for the foresight HTTP API.
package foresight

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client provides a Go SDK for interacting with the foresight-server API.
type Client struct {
	baseURL    string
	userID     string
	httpClient *http.Client
}

// NewClient creates a new foresight API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// WithUser returns a copy of the client that acts as userID.
func (c *Client) WithUser(userID string) *Client {
	cp := *c
	cp.userID = userID
	return &cp
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("foresight: %d %s: %s", e.Status, http.StatusText(e.Status), e.Message)
}

// ---------------------------------------------------------------------------
// Response types
// ---------------------------------------------------------------------------

// Point is a [unix_ms, value] pair.
type Point [2]float64

// Time returns the point's timestamp.
func (p Point) Time() time.Time { return time.UnixMilli(int64(p[0])).UTC() }

// Value returns the point's value.
func (p Point) Value() float64 { return p[1] }

// Health is the server liveness report.
type Health struct {
	OK    bool   `json:"ok"`
	Time  string `json:"time"`
	Error string `json:"error,omitempty"`
}

// Comparison is the lump-sum comparison of a scheduled backtest.
type Comparison struct {
	Invested     float64  `json:"invested"`
	Shares       float64  `json:"shares"`
	CurrentValue float64  `json:"current_value"`
	ROIPct       *float64 `json:"roi_pct"`
}

// Backtest is the result of a what-if or DCA backtest.
type Backtest struct {
	Kind           string      `json:"kind"`
	Asset          string      `json:"asset"`
	Strategy       string      `json:"strategy"`
	Currency       string      `json:"ccy"`
	StartDate      string      `json:"start_date"`
	Invested       float64     `json:"invested_total"`
	Contributions  int         `json:"contributions"`
	Shares         float64     `json:"shares"`
	StartPrice     float64     `json:"start_price"`
	CurrentPrice   float64     `json:"current_price"`
	CurrentValue   float64     `json:"current_value"`
	ROIPct         *float64    `json:"roi_pct"`
	CAGRPct        *float64    `json:"cagr_pct"`
	MaxDrawdownPct float64     `json:"max_drawdown_pct"`
	Series         []Point     `json:"series"`
	LumpSum        *Comparison `json:"lump_sum,omitempty"`
}

// Forecast is a short-term projection with low and high bands.
type Forecast struct {
	Kind     string  `json:"kind"`
	Asset    string  `json:"asset"`
	Currency string  `json:"ccy"`
	Shares   float64 `json:"shares"`
	Paths    int     `json:"n"`
	Invested float64 `json:"invested_total"`
	Series   []Point `json:"series"`
	Bands    struct {
		Low  []Point `json:"low"`
		High []Point `json:"high"`
	} `json:"bands"`
}

// Scenario is a long-term P10/P50/P90 projection.
type Scenario struct {
	Kind     string  `json:"kind"`
	Asset    string  `json:"asset"`
	Currency string  `json:"ccy"`
	Years    float64 `json:"years"`
	Shares   float64 `json:"shares"`
	Paths    int     `json:"n"`
	Invested float64 `json:"invested_total"`
	P10      []Point `json:"p10"`
	P50      []Point `json:"p50"`
	P90      []Point `json:"p90"`
}

// Holding is a stored position.
type Holding struct {
	ID        string  `json:"id,omitempty"`
	Asset     string  `json:"asset"`
	Quantity  float64 `json:"quantity"`
	BuyPrice  float64 `json:"buyPrice"`
	Currency  string  `json:"ccy"`
	CreatedAt int64   `json:"created_at,omitempty"`
}

// ---------------------------------------------------------------------------
// Requests
// ---------------------------------------------------------------------------

// WhatIfRequest backtests a single purchase of Amount on Date.
type WhatIfRequest struct {
	Asset    string
	Amount   float64
	Date     time.Time
	Currency string
}

// DCARequest backtests buying Amount every Frequency ("weekly" or
// "monthly") from Start.
type DCARequest struct {
	Asset     string
	Amount    float64
	Start     time.Time
	Frequency string
	Currency  string
}

// ForecastRequest projects one unit of Asset, or Amount invested today,
// Horizon days ahead.
type ForecastRequest struct {
	Asset    string
	Amount   float64
	Horizon  int
	Days     int
	Paths    int
	Currency string
}

// ScenarioRequest projects one unit of Asset, or Amount invested today,
// Years ahead.
type ScenarioRequest struct {
	Asset    string
	Amount   float64
	Years    float64
	Days     int
	Paths    int
	Currency string
}

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var out Health
	if err := c.do(ctx, http.MethodGet, "/healthz", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// WhatIf runs a lump-sum backtest.
func (c *Client) WhatIf(ctx context.Context, req WhatIfRequest) (*Backtest, error) {
	q := url.Values{}
	q.Set("asset", req.Asset)
	setFloat(q, "amount", req.Amount)
	setDate(q, "date", req.Date)
	setString(q, "ccy", req.Currency)

	var out Backtest
	if err := c.do(ctx, http.MethodGet, "/api/whatif", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DCA runs a dollar-cost-averaging backtest.
func (c *Client) DCA(ctx context.Context, req DCARequest) (*Backtest, error) {
	q := url.Values{}
	q.Set("asset", req.Asset)
	setFloat(q, "amount", req.Amount)
	setDate(q, "start", req.Start)
	setString(q, "freq", req.Frequency)
	setString(q, "ccy", req.Currency)

	var out Backtest
	if err := c.do(ctx, http.MethodGet, "/api/dca", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Forecast runs a short-term Monte-Carlo projection.
func (c *Client) Forecast(ctx context.Context, req ForecastRequest) (*Forecast, error) {
	q := url.Values{}
	setFloat(q, "amount", req.Amount)
	setInt(q, "h", req.Horizon)
	setInt(q, "days", req.Days)
	setInt(q, "n", req.Paths)
	setString(q, "ccy", req.Currency)

	var out Forecast
	if err := c.do(ctx, http.MethodGet, "/api/forecast/"+url.PathEscape(req.Asset), q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Scenario runs a long-term Monte-Carlo projection.
func (c *Client) Scenario(ctx context.Context, req ScenarioRequest) (*Scenario, error) {
	q := url.Values{}
	setFloat(q, "amount", req.Amount)
	setFloat(q, "years", req.Years)
	setInt(q, "days", req.Days)
	setInt(q, "n", req.Paths)
	setString(q, "ccy", req.Currency)

	var out Scenario
	if err := c.do(ctx, http.MethodGet, "/api/scenario/"+url.PathEscape(req.Asset), q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Holdings lists the user's holdings.
func (c *Client) Holdings(ctx context.Context) ([]Holding, error) {
	var out []Holding
	if err := c.do(ctx, http.MethodGet, "/api/holdings", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SaveHolding creates or updates a holding and returns the stored record.
func (c *Client) SaveHolding(ctx context.Context, h Holding) (*Holding, error) {
	var out Holding
	if err := c.do(ctx, http.MethodPost, "/api/holdings", nil, h, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteHolding removes a holding.
func (c *Client) DeleteHolding(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/holdings/"+url.PathEscape(id), nil, nil, nil)
}

// ---------------------------------------------------------------------------
// Transport
// ---------------------------------------------------------------------------

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		rdr = strings.NewReader(string(b))
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userID != "" {
		req.Header.Set("X-User-ID", c.userID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(data, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(data))
		}
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

func setString(q url.Values, key, v string) {
	if v != "" {
		q.Set(key, v)
	}
}

func setFloat(q url.Values, key string, v float64) {
	if v != 0 {
		q.Set(key, strconv.FormatFloat(v, 'f', -1, 64))
	}
}

func setInt(q url.Values, key string, v int) {
	if v != 0 {
		q.Set(key, strconv.Itoa(v))
	}
}

func setDate(q url.Values, key string, t time.Time) {
	if !t.IsZero() {
		q.Set(key, t.Format(time.DateOnly))
	}
}
