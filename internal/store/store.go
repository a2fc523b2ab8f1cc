// Package store defines storage interfaces for cached price history and user
// records (holdings, alerts, goals), with Parquet and SQLite implementations.
package store

import (
	"context"
	"errors"
	"time"

	"foresight/internal/domain"
)

// ErrNotFound is returned when a record does not exist for the user.
var ErrNotFound = errors.New("record not found")

// HistoryStore persists and retrieves price samples per asset.
type HistoryStore interface {
	// WriteSamples merges samples into the stored history of assetID. Samples
	// with an existing timestamp replace the stored ones.
	WriteSamples(ctx context.Context, assetID string, samples []domain.PriceSample) error

	// ReadSamples returns the samples of assetID within [start, end], ascending.
	ReadSamples(ctx context.Context, assetID string, start, end time.Time) ([]domain.PriceSample, error)

	// ListAssets returns all assets with stored history.
	ListAssets(ctx context.Context) ([]string, error)
}

// HoldingStore persists a user's holdings.
type HoldingStore interface {
	// ListHoldings returns the user's holdings, oldest first.
	ListHoldings(ctx context.Context, userID string) ([]domain.Holding, error)

	// SaveHolding inserts or updates a holding. An empty ID is assigned.
	SaveHolding(ctx context.Context, h *domain.Holding) error

	// DeleteHolding removes a holding owned by the user.
	DeleteHolding(ctx context.Context, userID, id string) error
}

// AlertStore persists a user's price alerts.
type AlertStore interface {
	// ListAlerts returns the user's alerts, oldest first.
	ListAlerts(ctx context.Context, userID string) ([]domain.Alert, error)

	// SaveAlert inserts or updates an alert. An empty ID is assigned.
	SaveAlert(ctx context.Context, a *domain.Alert) error

	// DeleteAlert removes an alert owned by the user.
	DeleteAlert(ctx context.Context, userID, id string) error
}

// GoalStore persists one goal per user.
type GoalStore interface {
	// GetGoal returns the user's goal, or a zero USD goal when none is set.
	GetGoal(ctx context.Context, userID string) (*domain.Goal, error)

	// SaveGoal inserts or replaces the user's goal.
	SaveGoal(ctx context.Context, g *domain.Goal) error
}
