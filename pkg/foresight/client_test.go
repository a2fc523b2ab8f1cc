package foresight

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewClient(t *testing.T) {
	c := NewClient("http://localhost:8080/")
	if c.baseURL != "http://localhost:8080" {
		t.Errorf("baseURL = %q, want trailing slash trimmed", c.baseURL)
	}
	if c.httpClient == nil {
		t.Fatal("expected non-nil httpClient")
	}
	if u := c.WithUser("alice"); u.userID != "alice" || c.userID != "" {
		t.Errorf("WithUser should copy: %q/%q", u.userID, c.userID)
	}
}

func TestWhatIf(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/whatif" {
			t.Errorf("path = %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("asset") != "bitcoin" || q.Get("amount") != "1000.5" || q.Get("date") != "2021-01-01" || q.Get("ccy") != "EUR" {
			t.Errorf("query = %v", q)
		}
		w.Write([]byte(`{"kind":"backtest","asset":"bitcoin","strategy":"lump-sum","invested_total":1000.5,
			"current_value":2001,"roi_pct":100,"cagr_pct":null,"series":[[1609459200000,1000.5]]}`))
	}))
	defer srv.Close()

	res, err := NewClient(srv.URL).WhatIf(context.Background(), WhatIfRequest{
		Asset:    "bitcoin",
		Amount:   1000.5,
		Date:     time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
		Currency: "EUR",
	})
	if err != nil {
		t.Fatalf("WhatIf: %v", err)
	}
	if res.Kind != "backtest" || res.CurrentValue != 2001 || res.CAGRPct != nil {
		t.Errorf("unexpected result: %+v", res)
	}
	if res.ROIPct == nil || *res.ROIPct != 100 {
		t.Errorf("ROIPct = %v, want 100", res.ROIPct)
	}
	if len(res.Series) != 1 || !res.Series[0].Time().Equal(time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)) || res.Series[0].Value() != 1000.5 {
		t.Errorf("Series = %v", res.Series)
	}
}

func TestForecastAndScenario(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/forecast/stock:AAPL":
			if r.URL.Query().Get("h") != "30" || r.URL.Query().Has("amount") {
				t.Errorf("forecast query = %v", r.URL.Query())
			}
			w.Write([]byte(`{"kind":"short_term","series":[[0,1],[1,2]],"bands":{"low":[[0,0.5]],"high":[[0,1.5]]}}`))
		case "/api/scenario/bitcoin":
			if r.URL.Query().Get("years") != "2.5" || r.URL.Query().Get("n") != "100" {
				t.Errorf("scenario query = %v", r.URL.Query())
			}
			w.Write([]byte(`{"kind":"long_term","years":2.5,"p10":[[0,1]],"p50":[[0,2]],"p90":[[0,3]]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()
	c := NewClient(srv.URL)

	fc, err := c.Forecast(context.Background(), ForecastRequest{Asset: "stock:AAPL", Horizon: 30})
	if err != nil {
		t.Fatalf("Forecast: %v", err)
	}
	if len(fc.Series) != 2 || fc.Bands.Low[0].Value() != 0.5 || fc.Bands.High[0].Value() != 1.5 {
		t.Errorf("unexpected forecast: %+v", fc)
	}

	sc, err := c.Scenario(context.Background(), ScenarioRequest{Asset: "bitcoin", Years: 2.5, Paths: 100})
	if err != nil {
		t.Fatalf("Scenario: %v", err)
	}
	if sc.Years != 2.5 || sc.P90[0].Value() != 3 {
		t.Errorf("unexpected scenario: %+v", sc)
	}
}

func TestHoldingsSendsUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-User-ID"); got != "alice" {
			t.Errorf("X-User-ID = %q, want alice", got)
		}
		switch r.Method {
		case http.MethodGet:
			w.Write([]byte(`[{"id":"h_1","asset":"bitcoin","quantity":1.5,"buyPrice":30000,"ccy":"USD"}]`))
		case http.MethodPost:
			var h Holding
			if err := json.NewDecoder(r.Body).Decode(&h); err != nil {
				t.Errorf("decoding body: %v", err)
			}
			h.ID = "h_2"
			json.NewEncoder(w).Encode(h)
		case http.MethodDelete:
			if r.URL.Path != "/api/holdings/h_2" {
				t.Errorf("delete path = %s", r.URL.Path)
			}
			w.Write([]byte(`{"ok":true}`))
		}
	}))
	defer srv.Close()
	c := NewClient(srv.URL).WithUser("alice")
	ctx := context.Background()

	hs, err := c.Holdings(ctx)
	if err != nil {
		t.Fatalf("Holdings: %v", err)
	}
	if len(hs) != 1 || hs[0].Quantity != 1.5 {
		t.Errorf("Holdings = %+v", hs)
	}

	saved, err := c.SaveHolding(ctx, Holding{Asset: "ethereum", Quantity: 2, BuyPrice: 2000})
	if err != nil {
		t.Fatalf("SaveHolding: %v", err)
	}
	if saved.ID != "h_2" || saved.Asset != "ethereum" {
		t.Errorf("saved = %+v", saved)
	}
	if err := c.DeleteHolding(ctx, "h_2"); err != nil {
		t.Errorf("DeleteHolding: %v", err)
	}
}

func TestAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			http.Error(w, "down for maintenance", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid request: amount must be > 0"}`))
	}))
	defer srv.Close()
	c := NewClient(srv.URL)

	_, err := c.DCA(context.Background(), DCARequest{Asset: "bitcoin", Amount: -1})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Status != http.StatusBadRequest || apiErr.Message != "invalid request: amount must be > 0" {
		t.Errorf("APIError = %+v", apiErr)
	}

	_, err = c.Health(context.Background())
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusServiceUnavailable || apiErr.Message != "down for maintenance" {
		t.Errorf("Health error = %v", err)
	}
}
