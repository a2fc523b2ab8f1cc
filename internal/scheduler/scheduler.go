// Package scheduler runs the periodic price-history refresh job.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"foresight/internal/domain"
)

// HistoryFetcher is the provider the refresher warms.
type HistoryFetcher interface {
	FetchHistory(ctx context.Context, assetID string, days int) ([]domain.PriceSample, error)
}

// Report summarises one refresh run.
type Report struct {
	Refreshed map[string]int // asset -> samples fetched
	Failed    []string
	Elapsed   time.Duration
}

// Refresher fetches the configured assets on a cron schedule so that the
// history cache stays warm.
type Refresher struct {
	cron      *cron.Cron
	fetcher   HistoryFetcher
	assets    []string
	rangeDays int
	workers   int
	log       *slog.Logger

	mu      sync.Mutex
	baseCtx context.Context
	running bool
}

// NewRefresher creates a Refresher. The schedule uses the six-field cron
// format with seconds.
func NewRefresher(fetcher HistoryFetcher, assets []string, rangeDays int) *Refresher {
	return &Refresher{
		cron:      cron.New(cron.WithSeconds()),
		fetcher:   fetcher,
		assets:    assets,
		rangeDays: rangeDays,
		workers:   4,
		log:       slog.Default().With("component", "refresher"),
		baseCtx:   context.Background(),
	}
}

// Schedule registers the refresh job. Runs use ctx as their parent context.
func (r *Refresher) Schedule(ctx context.Context, spec string) error {
	r.mu.Lock()
	r.baseCtx = ctx
	r.mu.Unlock()

	if _, err := r.cron.AddFunc(spec, r.tick); err != nil {
		return fmt.Errorf("register refresh job %q: %w", spec, err)
	}
	return nil
}

// Start starts the cron scheduler.
func (r *Refresher) Start() {
	r.cron.Start()
	r.log.Info("refresher started", "assets", len(r.assets), "range_days", r.rangeDays)
}

// Stop stops the scheduler and waits for a running job to finish.
func (r *Refresher) Stop() {
	<-r.cron.Stop().Done()
	r.log.Info("refresher stopped")
}

func (r *Refresher) tick() {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		r.log.Warn("previous refresh still running, skipping")
		return
	}
	r.running = true
	ctx := r.baseCtx
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	if _, err := r.RunOnce(ctx); err != nil {
		r.log.Error("refresh run had failures", "error", err)
	}
}

// RunOnce fetches every configured asset once. Failures of individual assets
// are collected; the returned error joins them.
func (r *Refresher) RunOnce(ctx context.Context) (*Report, error) {
	start := time.Now()
	rep := &Report{Refreshed: make(map[string]int, len(r.assets))}

	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(r.workers, 1))
	for _, asset := range r.assets {
		g.Go(func() error {
			samples, err := r.fetcher.FetchHistory(gctx, asset, r.rangeDays)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				rep.Failed = append(rep.Failed, asset)
				errs = append(errs, fmt.Errorf("%s: %w", asset, err))
				return nil
			}
			rep.Refreshed[asset] = len(samples)
			return nil
		})
	}
	_ = g.Wait()

	if p, ok := r.fetcher.(interface{ Purge() }); ok {
		p.Purge()
	}

	rep.Elapsed = time.Since(start)
	r.log.Info("refresh complete",
		"refreshed", len(rep.Refreshed),
		"failed", len(rep.Failed),
		"elapsed", rep.Elapsed.Round(time.Millisecond),
	)
	return rep, errors.Join(errs...)
}
