package httpapi

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"foresight/internal/fx"
	"foresight/internal/pricefeed"
)

// errBadParam marks a malformed query or body value.
var errBadParam = errors.New("bad parameter")

const defaultAsset = "bitcoin"

// assetParam returns the asset from the path, or from the "asset" or
// "coin_id" query parameters.
func assetParam(r *http.Request) string {
	id := r.PathValue("asset")
	if id == "" {
		id = r.URL.Query().Get("asset")
	}
	if id == "" {
		id = r.URL.Query().Get("coin_id")
	}
	if id == "" {
		id = defaultAsset
	}
	return pricefeed.NormalizeAssetID(id)
}

func floatParam(r *http.Request, key string, def float64) (float64, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %s=%q", errBadParam, key, v)
	}
	return f, nil
}

func intParam(r *http.Request, key string, def int) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", errBadParam, key, v)
	}
	return n, nil
}

// daysValue parses a history window. "max" selects the longest window.
func daysValue(v string, maxDays int) (int, error) {
	if strings.EqualFold(v, "max") {
		return maxDays, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: days=%q", errBadParam, v)
	}
	return n, nil
}

// dateLayouts are the accepted date formats, all read as UTC midnight.
var dateLayouts = []string{time.DateOnly, "02-01-2006"}

// parseDate accepts YYYY-MM-DD or DD-MM-YYYY, with "/" or "." also allowed
// as separators.
func parseDate(v string) (time.Time, error) {
	s := strings.NewReplacer(" ", "", "/", "-", ".", "-").Replace(v)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: invalid date %q, use YYYY-MM-DD or DD-MM-YYYY", errBadParam, v)
}

func dateParam(r *http.Request, key, def string) (time.Time, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		v = def
	}
	return parseDate(v)
}

// currency resolves the "ccy" query parameter to a code and its USD rate.
func (s *Server) currency(ctx context.Context, r *http.Request) (string, float64, error) {
	code := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("ccy")))
	if code == "" || code == fx.Base {
		return fx.Base, 1, nil
	}
	rate, err := s.rates.RateOf(ctx, code)
	if err != nil {
		return "", 0, err
	}
	return code, rate, nil
}
