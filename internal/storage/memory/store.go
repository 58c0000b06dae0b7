// Package memory provides an in-memory storage implementation.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/fidde/stattest/pkg/models"
)

type sampleKey struct {
	code string
	size int
}

// Store is an in-memory storage for key-value entries, samples and
// benchmark results. Slices are copied on the way in and out so callers
// cannot mutate stored data.
type Store struct {
	// Key-value storage: key -> value
	values   map[string]models.Value
	valuesmu sync.RWMutex

	// Samples storage: (code, size) -> samples in insertion order
	samples   map[sampleKey][][]float64
	samplesmu sync.RWMutex

	benchmarks   []*models.BenchmarkResult
	benchmarksmu sync.RWMutex
	nextID       int64
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		values:  make(map[string]models.Value),
		samples: make(map[sampleKey][][]float64),
	}
}

// StoreValue creates or overwrites the entry for key.
func (s *Store) StoreValue(ctx context.Context, key string, value models.Value) error {
	if err := models.ValidateKey(key); err != nil {
		return err
	}
	if !value.Valid() {
		return models.ErrUnsupportedValueType
	}

	s.valuesmu.Lock()
	defer s.valuesmu.Unlock()

	s.values[key] = value
	return nil
}

// DeleteValue removes key. A missing key is not an error.
func (s *Store) DeleteValue(ctx context.Context, key string) error {
	s.valuesmu.Lock()
	defer s.valuesmu.Unlock()

	delete(s.values, key)
	return nil
}

// GetValue returns the value stored for key.
func (s *Store) GetValue(ctx context.Context, key string) (models.Value, bool, error) {
	s.valuesmu.RLock()
	defer s.valuesmu.RUnlock()

	v, ok := s.values[key]
	return v, ok, nil
}

func (s *Store) GetStringValue(ctx context.Context, key string) (string, bool, error) {
	v, _, _ := s.GetValue(ctx, key)
	str, ok := v.AsString()
	return str, ok, nil
}

func (s *Store) GetDatetimeValue(ctx context.Context, key string) (time.Time, bool, error) {
	v, _, _ := s.GetValue(ctx, key)
	t, ok := v.AsDatetime()
	return t, ok, nil
}

func (s *Store) GetFloatValue(ctx context.Context, key string) (float64, bool, error) {
	v, _, _ := s.GetValue(ctx, key)
	f, ok := v.AsFloat()
	return f, ok, nil
}

func (s *Store) GetIntValue(ctx context.Context, key string) (int64, bool, error) {
	v, _, _ := s.GetValue(ctx, key)
	i, ok := v.AsInt()
	return i, ok, nil
}

// ListValues returns every entry ordered by key.
func (s *Store) ListValues(ctx context.Context) ([]models.KeyValueEntry, error) {
	s.valuesmu.RLock()
	defer s.valuesmu.RUnlock()

	entries := make([]models.KeyValueEntry, 0, len(s.values))
	for k, v := range s.values {
		entries = append(entries, models.KeyValueEntry{Key: k, Value: v})
	}

	// Sort by key for consistency
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Key < entries[j].Key
	})

	return entries, nil
}

// InsertAllSamples appends samples under (code, size).
func (s *Store) InsertAllSamples(ctx context.Context, code string, size int, samples [][]float64) error {
	if len(samples) == 0 {
		return nil
	}

	s.samplesmu.Lock()
	defer s.samplesmu.Unlock()

	k := sampleKey{code, size}
	for _, sample := range samples {
		s.samples[k] = append(s.samples[k], clone(sample))
	}
	return nil
}

// InsertSample appends one sample under (code, size).
func (s *Store) InsertSample(ctx context.Context, code string, size int, sample []float64) error {
	return s.InsertAllSamples(ctx, code, size, [][]float64{sample})
}

// GetSamples returns copies of the samples for (code, size).
func (s *Store) GetSamples(ctx context.Context, code string, size int) ([][]float64, error) {
	s.samplesmu.RLock()
	defer s.samplesmu.RUnlock()

	stored := s.samples[sampleKey{code, size}]
	out := make([][]float64, 0, len(stored))
	for _, sample := range stored {
		out = append(out, clone(sample))
	}
	return out, nil
}

func (s *Store) GetSampleCount(ctx context.Context, code string, size int) (int, error) {
	s.samplesmu.RLock()
	defer s.samplesmu.RUnlock()

	return len(s.samples[sampleKey{code, size}]), nil
}

// GetSampleStats returns one entry per (code, size), ordered by code and
// size.
func (s *Store) GetSampleStats(ctx context.Context) ([]models.SampleStat, error) {
	s.samplesmu.RLock()
	defer s.samplesmu.RUnlock()

	stats := make([]models.SampleStat, 0, len(s.samples))
	for k, v := range s.samples {
		stats = append(stats, models.SampleStat{Code: k.code, Size: k.size, Count: len(v)})
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Code != stats[j].Code {
			return stats[i].Code < stats[j].Code
		}
		return stats[i].Size < stats[j].Size
	})

	return stats, nil
}

// ClearAllSamples drops every sample.
func (s *Store) ClearAllSamples(ctx context.Context) error {
	s.samplesmu.Lock()
	defer s.samplesmu.Unlock()

	s.samples = make(map[sampleKey][][]float64)
	return nil
}

// InsertBenchmark stores a copy of result and assigns its ID.
func (s *Store) InsertBenchmark(ctx context.Context, result *models.BenchmarkResult) error {
	if result == nil {
		return errors.New("benchmark result cannot be nil")
	}
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now().UTC()
	}

	s.benchmarksmu.Lock()
	defer s.benchmarksmu.Unlock()

	s.nextID++
	result.ID = s.nextID

	stored := *result
	stored.Benchmark = clone(result.Benchmark)
	s.benchmarks = append(s.benchmarks, &stored)
	return nil
}

// GetBenchmark returns the most recent result for (testCode, size).
func (s *Store) GetBenchmark(ctx context.Context, testCode string, size int) ([]float64, error) {
	s.benchmarksmu.RLock()
	defer s.benchmarksmu.RUnlock()

	for i := len(s.benchmarks) - 1; i >= 0; i-- {
		r := s.benchmarks[i]
		if r.TestCode == testCode && r.Size == size {
			return clone(r.Benchmark), nil
		}
	}
	return []float64{}, nil
}

// GetBenchmarks pages through results in insertion order.
func (s *Store) GetBenchmarks(ctx context.Context, offset, limit int) ([]*models.BenchmarkResult, error) {
	s.benchmarksmu.RLock()
	defer s.benchmarksmu.RUnlock()

	if offset < 0 {
		offset = 0
	}
	if offset > len(s.benchmarks) {
		offset = len(s.benchmarks)
	}
	end := len(s.benchmarks)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	out := make([]*models.BenchmarkResult, 0, end-offset)
	for _, r := range s.benchmarks[offset:end] {
		c := *r
		c.Benchmark = clone(r.Benchmark)
		out = append(out, &c)
	}
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

func clone(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
