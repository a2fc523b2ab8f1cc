package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"foresight/internal/domain"
)

func TestParquetStorePath(t *testing.T) {
	ps := NewParquetStore("/data")

	got := ps.samplePath("bitcoin", 2024)
	want := filepath.Join("/data", "history", "bitcoin", "2024.parquet")
	if got != want {
		t.Errorf("samplePath mismatch:\n  got  %s\n  want %s", got, want)
	}

	// Asset ids with a namespace separator stay in a single directory.
	got = ps.samplePath("stock:AAPL", 2023)
	want = filepath.Join("/data", "history", "stock:AAPL", "2023.parquet")
	if got != want {
		t.Errorf("samplePath mismatch:\n  got  %s\n  want %s", got, want)
	}

	got = ps.samplePath("a/b", 2023)
	want = filepath.Join("/data", "history", "a%2Fb", "2023.parquet")
	if got != want {
		t.Errorf("samplePath mismatch:\n  got  %s\n  want %s", got, want)
	}
}

func TestParquetStoreWriteReadSamples(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	samples := []domain.PriceSample{
		{Time: time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC), Price: 42000},
		{Time: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Price: 42500},
		{Time: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Price: 45000},
	}
	if err := ps.WriteSamples(ctx, "bitcoin", samples); err != nil {
		t.Fatalf("WriteSamples: %v", err)
	}

	got, err := ps.ReadSamples(ctx, "bitcoin",
		time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ReadSamples: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 samples across two year files, got %d", len(got))
	}
	for i := range samples {
		if !got[i].Time.Equal(samples[i].Time) || got[i].Price != samples[i].Price {
			t.Errorf("sample %d: got %+v, want %+v", i, got[i], samples[i])
		}
	}

	// Narrow range filters by timestamp.
	got, err = ps.ReadSamples(ctx, "bitcoin",
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ReadSamples: %v", err)
	}
	if len(got) != 1 || got[0].Price != 45000 {
		t.Errorf("expected only the 2024-01-02 sample, got %+v", got)
	}
}

func TestParquetStoreMergeOverwrites(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	if err := ps.WriteSamples(ctx, "eth", []domain.PriceSample{
		{Time: day, Price: 3000},
		{Time: day.AddDate(0, 0, 1), Price: 3100},
	}); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := ps.WriteSamples(ctx, "eth", []domain.PriceSample{
		{Time: day.AddDate(0, 0, 1), Price: 3200},
		{Time: day.AddDate(0, 0, 2), Price: 3300},
	}); err != nil {
		t.Fatalf("second write: %v", err)
	}

	got, err := ps.ReadSamples(ctx, "eth", day, day.AddDate(0, 0, 10))
	if err != nil {
		t.Fatalf("ReadSamples: %v", err)
	}
	want := []float64{3000, 3200, 3300}
	if len(got) != len(want) {
		t.Fatalf("expected %d samples, got %d", len(want), len(got))
	}
	for i, p := range want {
		if got[i].Price != p {
			t.Errorf("sample %d price = %v, want %v", i, got[i].Price, p)
		}
	}
}

func TestParquetStoreMissingAsset(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	got, err := ps.ReadSamples(ctx, "nothing",
		time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ReadSamples on missing asset should not error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no samples, got %d", len(got))
	}

	assets, err := ps.ListAssets(ctx)
	if err != nil {
		t.Fatalf("ListAssets on empty dir: %v", err)
	}
	if len(assets) != 0 {
		t.Errorf("expected no assets, got %v", assets)
	}
}

func TestParquetStoreListAssets(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()
	ts := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	for _, id := range []string{"solana", "bitcoin", "stock:AAPL"} {
		if err := ps.WriteSamples(ctx, id, []domain.PriceSample{{Time: ts, Price: 1}}); err != nil {
			t.Fatalf("WriteSamples(%s): %v", id, err)
		}
	}

	assets, err := ps.ListAssets(ctx)
	if err != nil {
		t.Fatalf("ListAssets: %v", err)
	}
	want := []string{"bitcoin", "solana", "stock:AAPL"}
	if len(assets) != len(want) {
		t.Fatalf("ListAssets = %v, want %v", assets, want)
	}
	for i := range want {
		if assets[i] != want[i] {
			t.Errorf("assets[%d] = %q, want %q", i, assets[i], want[i])
		}
	}
}

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "db", "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteHoldings(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	h := &domain.Holding{UserID: "u1", AssetID: " bitcoin ", Quantity: 0.5, BuyPrice: 30000, Currency: "usd"}
	if err := s.SaveHolding(ctx, h); err != nil {
		t.Fatalf("SaveHolding: %v", err)
	}
	if h.ID == "" {
		t.Fatal("expected an assigned id")
	}
	if h.AssetID != "bitcoin" || h.Currency != "USD" {
		t.Errorf("expected normalized holding, got %+v", h)
	}

	// Update in place.
	h.Quantity = 0.75
	if err := s.SaveHolding(ctx, h); err != nil {
		t.Fatalf("SaveHolding update: %v", err)
	}

	list, err := s.ListHoldings(ctx, "u1")
	if err != nil {
		t.Fatalf("ListHoldings: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 holding, got %d", len(list))
	}
	if list[0].Quantity != 0.75 || list[0].BuyPrice != 30000 {
		t.Errorf("unexpected holding: %+v", list[0])
	}

	// Another user sees nothing and cannot overwrite or delete it.
	other, err := s.ListHoldings(ctx, "u2")
	if err != nil {
		t.Fatalf("ListHoldings(u2): %v", err)
	}
	if len(other) != 0 {
		t.Errorf("expected no holdings for u2, got %d", len(other))
	}
	steal := &domain.Holding{ID: h.ID, UserID: "u2", AssetID: "eth", Quantity: 1, BuyPrice: 1}
	if err := s.SaveHolding(ctx, steal); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for foreign update, got %v", err)
	}
	if err := s.DeleteHolding(ctx, "u2", h.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for foreign delete, got %v", err)
	}

	if err := s.DeleteHolding(ctx, "u1", h.ID); err != nil {
		t.Fatalf("DeleteHolding: %v", err)
	}
	if err := s.DeleteHolding(ctx, "u1", h.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestSQLiteUpdateKeepsCreatedAt(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	created := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	s.now = func() time.Time { return created }

	h := &domain.Holding{UserID: "u1", AssetID: "bitcoin", Quantity: 1, BuyPrice: 60000}
	if err := s.SaveHolding(ctx, h); err != nil {
		t.Fatalf("SaveHolding: %v", err)
	}
	a := &domain.Alert{UserID: "u1", AssetID: "bitcoin", Op: domain.AlertOpLTE, Value: 50000}
	if err := s.SaveAlert(ctx, a); err != nil {
		t.Fatalf("SaveAlert: %v", err)
	}

	// Updates arrive without a creation time and a day later.
	s.now = func() time.Time { return created.AddDate(0, 0, 1) }

	upd := &domain.Holding{ID: h.ID, UserID: "u1", AssetID: "bitcoin", Quantity: 2, BuyPrice: 60000}
	if err := s.SaveHolding(ctx, upd); err != nil {
		t.Fatalf("SaveHolding update: %v", err)
	}
	if !upd.CreatedAt.Equal(created) {
		t.Errorf("holding CreatedAt = %v, want %v", upd.CreatedAt, created)
	}
	list, err := s.ListHoldings(ctx, "u1")
	if err != nil {
		t.Fatalf("ListHoldings: %v", err)
	}
	if len(list) != 1 || !list[0].CreatedAt.Equal(created) || list[0].Quantity != 2 {
		t.Errorf("stored holding = %+v", list)
	}

	updA := &domain.Alert{ID: a.ID, UserID: "u1", AssetID: "bitcoin", Op: domain.AlertOpLTE, Value: 45000}
	if err := s.SaveAlert(ctx, updA); err != nil {
		t.Fatalf("SaveAlert update: %v", err)
	}
	if !updA.CreatedAt.Equal(created) {
		t.Errorf("alert CreatedAt = %v, want %v", updA.CreatedAt, created)
	}

	steal := &domain.Alert{ID: a.ID, UserID: "u2", AssetID: "bitcoin", Op: domain.AlertOpLTE, Value: 1}
	if err := s.SaveAlert(ctx, steal); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for foreign alert update, got %v", err)
	}
}

func TestSQLiteAlerts(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	a := &domain.Alert{UserID: "u1", AssetID: "eth", Op: domain.AlertOpGTE, Value: 4000}
	if err := s.SaveAlert(ctx, a); err != nil {
		t.Fatalf("SaveAlert: %v", err)
	}
	list, err := s.ListAlerts(ctx, "u1")
	if err != nil {
		t.Fatalf("ListAlerts: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(list))
	}
	if list[0].Op != domain.AlertOpGTE || list[0].Value != 4000 || list[0].Currency != "USD" {
		t.Errorf("unexpected alert: %+v", list[0])
	}
	if err := s.DeleteAlert(ctx, "u1", a.ID); err != nil {
		t.Fatalf("DeleteAlert: %v", err)
	}
	if err := s.DeleteAlert(ctx, "u1", a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteGoal(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	g, err := s.GetGoal(ctx, "u1")
	if err != nil {
		t.Fatalf("GetGoal: %v", err)
	}
	if g.Amount != 0 || g.Currency != "USD" || g.Date != "" {
		t.Errorf("expected zero USD goal, got %+v", g)
	}

	if err := s.SaveGoal(ctx, &domain.Goal{UserID: "u1", Amount: 100000, Date: "2030-01-01", Currency: "eur"}); err != nil {
		t.Fatalf("SaveGoal: %v", err)
	}
	if err := s.SaveGoal(ctx, &domain.Goal{UserID: "u1", Amount: 120000, Date: "2031-01-01", Currency: "EUR"}); err != nil {
		t.Fatalf("SaveGoal replace: %v", err)
	}
	g, err = s.GetGoal(ctx, "u1")
	if err != nil {
		t.Fatalf("GetGoal: %v", err)
	}
	if g.Amount != 120000 || g.Date != "2031-01-01" || g.Currency != "EUR" {
		t.Errorf("unexpected goal: %+v", g)
	}
}
