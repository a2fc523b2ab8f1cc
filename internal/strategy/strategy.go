// Package strategy defines investment strategies as purchase schedules and
// provides a Registry and a Backtester that replays them over price history.
package strategy

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"foresight/internal/series"
)

// ErrDuplicateStrategy is returned when a name is registered twice.
var ErrDuplicateStrategy = errors.New("strategy already registered")

// Purchase is one buy executed by a strategy.
type Purchase struct {
	Date   time.Time
	Amount float64
	Price  float64
	Shares float64
}

// Strategy turns an investment plan into dated purchases.
type Strategy interface {
	// Name identifies the strategy in requests and results, e.g. "dca-weekly".
	Name() string

	// Schedule returns the purchases the strategy makes over s when investing
	// amount per purchase from start onwards, in date order.
	Schedule(s *series.Series, start time.Time, amount float64) ([]Purchase, error)
}

// Registry maps strategy names to implementations. It is safe for concurrent
// lookups while strategies are being registered.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Strategy
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Strategy)}
}

// Register adds s under s.Name(). Names are unique.
func (r *Registry) Register(s Strategy) error {
	name := s.Name()
	if name == "" {
		return errors.New("registering strategy: empty name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byName[name]; dup {
		return fmt.Errorf("registering strategy %q: %w", name, ErrDuplicateStrategy)
	}
	r.byName[name] = s
	return nil
}

// MustRegister is Register for package initialisation; it panics on error.
func (r *Registry) MustRegister(s Strategy) {
	if err := r.Register(s); err != nil {
		panic(err)
	}
}

// Get looks a strategy up by name.
func (r *Registry) Get(name string) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byName[name]
	return s, ok
}

// List returns the registered names in ascending order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.byName))
}
