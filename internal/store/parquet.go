package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"

	"foresight/internal/domain"
)

// Compile-time interface check.
var _ HistoryStore = (*ParquetStore)(nil)

// ParquetStore implements HistoryStore using Parquet files on disk.
type ParquetStore struct {
	DataDir string

	mu sync.Mutex // serialises read-merge-write of year files
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// SampleRecord is the Parquet schema for one price sample.
type SampleRecord struct {
	AssetID   string  `parquet:"asset_id"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Price     float64 `parquet:"price"`
}

// ---------------------------------------------------------------------------
// HistoryStore implementation
// ---------------------------------------------------------------------------

// WriteSamples writes samples to Parquet files organized by asset and year,
// merging with what is already on disk.
func (s *ParquetStore) WriteSamples(_ context.Context, assetID string, samples []domain.PriceSample) error {
	if len(samples) == 0 {
		return nil
	}

	groups := make(map[int][]SampleRecord)
	for _, smp := range samples {
		year := smp.Time.UTC().Year()
		groups[year] = append(groups[year], SampleRecord{
			AssetID:   assetID,
			Timestamp: smp.Time.UnixMilli(),
			Price:     smp.Price,
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for year, records := range groups {
		path := s.samplePath(assetID, year)

		existing, _ := readParquetFile[SampleRecord](path)
		merged := mergeSampleRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing history for %s/%d: %w", assetID, year, err)
		}
	}
	return nil
}

// ReadSamples reads samples from Parquet files for the given asset and time
// range. A missing year file is treated as empty.
func (s *ParquetStore) ReadSamples(_ context.Context, assetID string, start, end time.Time) ([]domain.PriceSample, error) {
	var samples []domain.PriceSample
	for year := start.UTC().Year(); year <= end.UTC().Year(); year++ {
		path := s.samplePath(assetID, year)
		records, err := readParquetFile[SampleRecord](path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("reading history for %s/%d: %w", assetID, year, err)
		}
		for _, r := range records {
			ts := time.UnixMilli(r.Timestamp).UTC()
			if ts.Before(start) || ts.After(end) {
				continue
			}
			samples = append(samples, domain.PriceSample{Time: ts, Price: r.Price})
		}
	}
	return samples, nil
}

// ListAssets lists all assets that have history on disk.
func (s *ParquetStore) ListAssets(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.DataDir, "history"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var assets []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id, err := url.PathUnescape(e.Name())
		if err != nil {
			continue
		}
		assets = append(assets, id)
	}
	sort.Strings(assets)
	return assets, nil
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

// samplePath returns the filesystem path for a history Parquet file.
// Layout: <dataDir>/history/<asset>/<YYYY>.parquet
func (s *ParquetStore) samplePath(assetID string, year int) string {
	dir := url.PathEscape(strings.TrimSpace(assetID))
	return filepath.Join(s.DataDir, "history", dir, strconv.Itoa(year)+".parquet")
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergeSampleRecords deduplicates records by timestamp, preferring incoming
// records over existing ones. Results are sorted by timestamp.
func mergeSampleRecords(existing, incoming []SampleRecord) []SampleRecord {
	seen := make(map[int64]SampleRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.Timestamp] = r
	}
	for _, r := range incoming {
		seen[r.Timestamp] = r
	}

	merged := make([]SampleRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
