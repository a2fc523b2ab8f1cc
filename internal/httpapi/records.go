package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"foresight/internal/domain"
	"foresight/internal/pricefeed"
)

// maxBodyBytes bounds record request bodies.
const maxBodyBytes = 1 << 16

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", errBadParam, err)
	}
	return nil
}

// bodyAsset returns asset, falling back to the coin alias.
func bodyAsset(asset, coin string) string {
	if strings.TrimSpace(asset) == "" {
		asset = coin
	}
	return pricefeed.NormalizeAssetID(asset)
}

// ---------------------------------------------------------------------------
// Holdings
// ---------------------------------------------------------------------------

func (s *Server) handleListHoldings(w http.ResponseWriter, r *http.Request) {
	holdings, err := s.records.ListHoldings(r.Context(), userID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]HoldingJSON, len(holdings))
	for i, h := range holdings {
		out[i] = holdingJSON(h)
	}
	writeJSON(w, out)
}

func (s *Server) handleSaveHolding(w http.ResponseWriter, r *http.Request) {
	var in HoldingJSON
	if err := decodeBody(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	h := domain.Holding{
		ID:       strings.TrimSpace(in.ID),
		UserID:   userID(r),
		AssetID:  bodyAsset(in.Asset, in.Coin),
		Quantity: in.Quantity,
		BuyPrice: in.BuyPrice,
		Currency: in.Currency,
	}
	if h.AssetID == "" || !(h.Quantity > 0) || !(h.BuyPrice > 0) {
		writeError(w, http.StatusBadRequest, "invalid holding: asset, quantity > 0 and buyPrice > 0 are required")
		return
	}
	if err := s.records.SaveHolding(r.Context(), &h); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, holdingJSON(h))
}

func (s *Server) handleDeleteHolding(w http.ResponseWriter, r *http.Request) {
	if err := s.records.DeleteHolding(r.Context(), userID(r), r.PathValue("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, OKResponse{OK: true})
}

// ---------------------------------------------------------------------------
// Alerts
// ---------------------------------------------------------------------------

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.records.ListAlerts(r.Context(), userID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]AlertJSON, len(alerts))
	for i, a := range alerts {
		out[i] = alertJSON(a)
	}
	writeJSON(w, out)
}

func (s *Server) handleSaveAlert(w http.ResponseWriter, r *http.Request) {
	var in AlertJSON
	if err := decodeBody(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	a := domain.Alert{
		ID:       strings.TrimSpace(in.ID),
		UserID:   userID(r),
		AssetID:  bodyAsset(in.Asset, in.Coin),
		Op:       domain.AlertOp(strings.ToLower(in.Op)),
		Value:    in.Value,
		Currency: in.Currency,
	}
	if a.AssetID == "" || !a.Op.Valid() || !(a.Value > 0) {
		writeError(w, http.StatusBadRequest, "invalid alert: asset, op (gte|lte) and value > 0 are required")
		return
	}
	if err := s.records.SaveAlert(r.Context(), &a); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, alertJSON(a))
}

func (s *Server) handleDeleteAlert(w http.ResponseWriter, r *http.Request) {
	if err := s.records.DeleteAlert(r.Context(), userID(r), r.PathValue("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, OKResponse{OK: true})
}

// ---------------------------------------------------------------------------
// Goal
// ---------------------------------------------------------------------------

func (s *Server) handleGetGoal(w http.ResponseWriter, r *http.Request) {
	g, err := s.records.GetGoal(r.Context(), userID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, GoalJSON{Amount: g.Amount, Date: g.Date, Currency: g.Currency})
}

func (s *Server) handlePutGoal(w http.ResponseWriter, r *http.Request) {
	var in GoalJSON
	if err := decodeBody(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	if in.Amount < 0 {
		writeError(w, http.StatusBadRequest, "invalid goal: amount must not be negative")
		return
	}
	date := strings.TrimSpace(in.Date)
	if date != "" {
		t, err := parseDate(date)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		date = t.Format("2006-01-02")
	}
	g := domain.Goal{UserID: userID(r), Amount: in.Amount, Date: date, Currency: in.Currency}
	if err := s.records.SaveGoal(r.Context(), &g); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, GoalJSON{Amount: g.Amount, Date: g.Date, Currency: g.Currency})
}
