package pricefeed

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"foresight/internal/domain"
	"foresight/internal/store"
)

// DefaultCacheEntries bounds the in-memory cache. Entries are keyed by asset
// and window length, so distinct windows would otherwise accumulate.
const DefaultCacheEntries = 512

type cacheKey struct {
	assetID string
	days    int
}

type cacheEntry struct {
	fetched time.Time
	samples []domain.PriceSample
}

// Cache wraps a Provider with an in-memory TTL cache and writes successful
// fetches through to a HistoryStore. When the upstream fails, the last
// in-memory copy or, if staleOK, the stored history is served instead.
type Cache struct {
	upstream Provider
	history  store.HistoryStore
	ttl      time.Duration
	staleOK  bool
	now      func() time.Time
	log      *slog.Logger

	mu         sync.Mutex
	entries    map[cacheKey]cacheEntry
	maxEntries int
}

// NewCache creates a Cache. history may be nil to disable write-through.
func NewCache(upstream Provider, history store.HistoryStore, ttl time.Duration, staleOK bool) *Cache {
	return &Cache{
		upstream:   upstream,
		history:    history,
		ttl:        ttl,
		staleOK:    staleOK,
		now:        time.Now,
		log:        slog.Default().With("component", "pricefeed-cache"),
		entries:    make(map[cacheKey]cacheEntry),
		maxEntries: DefaultCacheEntries,
	}
}

// Name returns the upstream provider name.
func (c *Cache) Name() string { return "cache(" + c.upstream.Name() + ")" }

// FetchHistory returns a cached history when fresh, otherwise fetches from
// the upstream provider.
func (c *Cache) FetchHistory(ctx context.Context, assetID string, days int) ([]domain.PriceSample, error) {
	assetID = NormalizeAssetID(assetID)
	key := cacheKey{assetID: assetID, days: days}
	now := c.now()

	c.mu.Lock()
	entry, hit := c.entries[key]
	c.mu.Unlock()
	if hit && now.Sub(entry.fetched) < c.ttl {
		return slices.Clone(entry.samples), nil
	}

	samples, err := c.upstream.FetchHistory(ctx, assetID, days)
	if err == nil && len(samples) > 0 {
		c.mu.Lock()
		c.put(key, cacheEntry{fetched: now, samples: samples}, now)
		c.mu.Unlock()

		if c.history != nil {
			if werr := c.history.WriteSamples(ctx, assetID, samples); werr != nil {
				c.log.Warn("history write-through failed", "asset", assetID, "error", werr)
			}
		}
		return slices.Clone(samples), nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if hit {
		c.log.Warn("serving stale in-memory history", "asset", assetID, "age", now.Sub(entry.fetched).Round(time.Second), "error", err)
		return slices.Clone(entry.samples), nil
	}
	if c.staleOK && c.history != nil {
		stored, rerr := c.history.ReadSamples(ctx, assetID, now.AddDate(0, 0, -days), now)
		if rerr == nil && len(stored) > 0 {
			c.log.Warn("serving stored history", "asset", assetID, "samples", len(stored), "error", err)
			return stored, nil
		}
	}
	if err == nil {
		return samples, nil
	}
	return nil, err
}

// Purge drops expired in-memory entries.
func (c *Cache) Purge() {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purgeLocked(now)
}

// put stores an entry. A new key on a full cache first drops expired entries
// and then, if still full, the least recently fetched one. c.mu must be held.
func (c *Cache) put(key cacheKey, e cacheEntry, now time.Time) {
	if _, ok := c.entries[key]; !ok && len(c.entries) >= c.maxEntries {
		c.purgeLocked(now)
		if len(c.entries) >= c.maxEntries {
			var oldest cacheKey
			first := true
			for k, v := range c.entries {
				if first || v.fetched.Before(c.entries[oldest].fetched) {
					oldest, first = k, false
				}
			}
			delete(c.entries, oldest)
			c.log.Debug("cache full, evicted entry", "asset", oldest.assetID, "days", oldest.days)
		}
	}
	c.entries[key] = e
}

func (c *Cache) purgeLocked(now time.Time) {
	for k, e := range c.entries {
		if now.Sub(e.fetched) >= c.ttl {
			delete(c.entries, k)
		}
	}
}
