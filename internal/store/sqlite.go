package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"foresight/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ HoldingStore = (*SQLiteStore)(nil)
var _ AlertStore = (*SQLiteStore)(nil)
var _ GoalStore = (*SQLiteStore)(nil)

// SQLiteStore implements HoldingStore, AlertStore, and GoalStore backed by a
// SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS holdings (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	asset_id   TEXT NOT NULL,
	quantity   REAL NOT NULL,
	buy_price  REAL NOT NULL,
	ccy        TEXT NOT NULL DEFAULT 'USD',
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS alerts (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	asset_id   TEXT NOT NULL,
	op         TEXT NOT NULL,
	value      REAL NOT NULL,
	ccy        TEXT NOT NULL DEFAULT 'USD',
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS goals (
	user_id TEXT PRIMARY KEY,
	amount  REAL NOT NULL DEFAULT 0,
	date    TEXT NOT NULL DEFAULT '',
	ccy     TEXT NOT NULL DEFAULT 'USD'
);
CREATE INDEX IF NOT EXISTS idx_holdings_user ON holdings(user_id);
CREATE INDEX IF NOT EXISTS idx_alerts_user ON alerts(user_id);
`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies the
// schema and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func currency(ccy string) string {
	if ccy = strings.ToUpper(strings.TrimSpace(ccy)); ccy == "" {
		return "USD"
	}
	return ccy
}

// ---------------------------------------------------------------------------
// HoldingStore implementation
// ---------------------------------------------------------------------------

// ListHoldings returns the user's holdings, oldest first.
func (s *SQLiteStore) ListHoldings(ctx context.Context, userID string) ([]domain.Holding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, asset_id, quantity, buy_price, ccy, created_at
		FROM holdings WHERE user_id = ? ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing holdings: %w", err)
	}
	defer rows.Close()

	var out []domain.Holding
	for rows.Next() {
		var h domain.Holding
		var created int64
		if err := rows.Scan(&h.ID, &h.UserID, &h.AssetID, &h.Quantity, &h.BuyPrice, &h.Currency, &created); err != nil {
			return nil, fmt.Errorf("scanning holding: %w", err)
		}
		h.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, h)
	}
	return out, rows.Err()
}

// SaveHolding inserts a new holding or updates an existing one owned by the
// same user.
func (s *SQLiteStore) SaveHolding(ctx context.Context, h *domain.Holding) error {
	if h.ID == "" {
		h.ID = "h_" + uuid.NewString()
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = s.now().UTC().Truncate(time.Second)
	}
	h.AssetID = strings.TrimSpace(h.AssetID)
	h.Currency = currency(h.Currency)

	var created int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO holdings (id, user_id, asset_id, quantity, buy_price, ccy, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			asset_id = excluded.asset_id,
			quantity = excluded.quantity,
			buy_price = excluded.buy_price,
			ccy = excluded.ccy
		WHERE holdings.user_id = excluded.user_id
		RETURNING created_at`,
		h.ID, h.UserID, h.AssetID, h.Quantity, h.BuyPrice, h.Currency, h.CreatedAt.Unix(),
	).Scan(&created)
	if err == sql.ErrNoRows {
		// The id exists but belongs to another user.
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("saving holding %s: %w", h.ID, err)
	}
	h.CreatedAt = time.Unix(created, 0).UTC()
	return nil
}

// DeleteHolding removes a holding owned by the user.
func (s *SQLiteStore) DeleteHolding(ctx context.Context, userID, id string) error {
	return s.deleteOwned(ctx, "holdings", userID, id)
}

// ---------------------------------------------------------------------------
// AlertStore implementation
// ---------------------------------------------------------------------------

// ListAlerts returns the user's alerts, oldest first.
func (s *SQLiteStore) ListAlerts(ctx context.Context, userID string) ([]domain.Alert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, asset_id, op, value, ccy, created_at
		FROM alerts WHERE user_id = ? ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing alerts: %w", err)
	}
	defer rows.Close()

	var out []domain.Alert
	for rows.Next() {
		var a domain.Alert
		var op string
		var created int64
		if err := rows.Scan(&a.ID, &a.UserID, &a.AssetID, &op, &a.Value, &a.Currency, &created); err != nil {
			return nil, fmt.Errorf("scanning alert: %w", err)
		}
		a.Op = domain.AlertOp(op)
		a.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

// SaveAlert inserts a new alert or updates an existing one owned by the same
// user.
func (s *SQLiteStore) SaveAlert(ctx context.Context, a *domain.Alert) error {
	if a.ID == "" {
		a.ID = "a_" + uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now().UTC().Truncate(time.Second)
	}
	a.Currency = currency(a.Currency)

	var created int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO alerts (id, user_id, asset_id, op, value, ccy, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			asset_id = excluded.asset_id,
			op = excluded.op,
			value = excluded.value,
			ccy = excluded.ccy
		WHERE alerts.user_id = excluded.user_id
		RETURNING created_at`,
		a.ID, a.UserID, a.AssetID, string(a.Op), a.Value, a.Currency, a.CreatedAt.Unix(),
	).Scan(&created)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("saving alert %s: %w", a.ID, err)
	}
	a.CreatedAt = time.Unix(created, 0).UTC()
	return nil
}

// DeleteAlert removes an alert owned by the user.
func (s *SQLiteStore) DeleteAlert(ctx context.Context, userID, id string) error {
	return s.deleteOwned(ctx, "alerts", userID, id)
}

// ---------------------------------------------------------------------------
// GoalStore implementation
// ---------------------------------------------------------------------------

// GetGoal returns the user's goal, or a zero USD goal when none is set.
func (s *SQLiteStore) GetGoal(ctx context.Context, userID string) (*domain.Goal, error) {
	g := &domain.Goal{UserID: userID, Currency: "USD"}
	err := s.db.QueryRowContext(ctx,
		`SELECT amount, date, ccy FROM goals WHERE user_id = ?`, userID,
	).Scan(&g.Amount, &g.Date, &g.Currency)
	if err == sql.ErrNoRows {
		return g, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading goal: %w", err)
	}
	return g, nil
}

// SaveGoal inserts or replaces the user's goal.
func (s *SQLiteStore) SaveGoal(ctx context.Context, g *domain.Goal) error {
	g.Currency = currency(g.Currency)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO goals (user_id, amount, date, ccy) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			amount = excluded.amount,
			date = excluded.date,
			ccy = excluded.ccy`,
		g.UserID, g.Amount, g.Date, g.Currency)
	if err != nil {
		return fmt.Errorf("saving goal: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (s *SQLiteStore) deleteOwned(ctx context.Context, table, userID, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return fmt.Errorf("deleting from %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting from %s: %w", table, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
