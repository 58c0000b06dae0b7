package dual

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fidde/stattest/pkg/models"
)

// Backend is the storage surface mirrored by the dual store. It matches
// storage.Storage; it is declared here so the storage factory can build a
// dual store without an import cycle.
type Backend interface {
	StoreValue(ctx context.Context, key string, value models.Value) error
	DeleteValue(ctx context.Context, key string) error
	GetValue(ctx context.Context, key string) (models.Value, bool, error)
	GetStringValue(ctx context.Context, key string) (string, bool, error)
	GetDatetimeValue(ctx context.Context, key string) (time.Time, bool, error)
	GetFloatValue(ctx context.Context, key string) (float64, bool, error)
	GetIntValue(ctx context.Context, key string) (int64, bool, error)
	ListValues(ctx context.Context) ([]models.KeyValueEntry, error)

	InsertAllSamples(ctx context.Context, code string, size int, samples [][]float64) error
	InsertSample(ctx context.Context, code string, size int, sample []float64) error
	GetSamples(ctx context.Context, code string, size int) ([][]float64, error)
	GetSampleCount(ctx context.Context, code string, size int) (int, error)
	GetSampleStats(ctx context.Context) ([]models.SampleStat, error)
	ClearAllSamples(ctx context.Context) error

	InsertBenchmark(ctx context.Context, result *models.BenchmarkResult) error
	GetBenchmark(ctx context.Context, testCode string, size int) ([]float64, error)
	GetBenchmarks(ctx context.Context, offset, limit int) ([]*models.BenchmarkResult, error)

	Close() error
}

// Store wraps two storage backends, typically a local SQLite database and
// a ClickHouse mirror used for reporting.
// Writes go to both primary and secondary.
// Reads come from primary only.
type Store struct {
	primary   Backend
	secondary Backend
	logger    *slog.Logger

	// pending tracks secondary writes still in flight
	pending sync.WaitGroup
}

// Config holds dual store configuration.
type Config struct {
	Primary   Backend
	Secondary Backend
	Logger    *slog.Logger
}

// New creates a new dual-write store.
func New(cfg Config) *Store {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Store{
		primary:   cfg.Primary,
		secondary: cfg.Secondary,
		logger:    cfg.Logger,
	}
}

// dualWrite performs a write to both backends.
// Errors from secondary are logged but don't fail the operation.
func (s *Store) dualWrite(ctx context.Context, op string, primaryWrite func() error, secondaryWrite func(context.Context) error) error {
	// Write to primary (this determines success/failure)
	if err := primaryWrite(); err != nil {
		return err
	}

	// The secondary write outlives the caller's request
	bg := context.WithoutCancel(ctx)

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := secondaryWrite(bg); err != nil {
			s.logger.Error("dual-write to secondary failed",
				"operation", op,
				"error", err,
			)
		}
	}()

	return nil
}

// Wait blocks until every secondary write issued so far has finished.
func (s *Store) Wait() {
	s.pending.Wait()
}

// StoreValue stores a key-value entry in both backends.
func (s *Store) StoreValue(ctx context.Context, key string, value models.Value) error {
	return s.dualWrite(ctx, "StoreValue",
		func() error { return s.primary.StoreValue(ctx, key, value) },
		func(ctx context.Context) error { return s.secondary.StoreValue(ctx, key, value) },
	)
}

// DeleteValue deletes key from both backends.
func (s *Store) DeleteValue(ctx context.Context, key string) error {
	return s.dualWrite(ctx, "DeleteValue",
		func() error { return s.primary.DeleteValue(ctx, key) },
		func(ctx context.Context) error { return s.secondary.DeleteValue(ctx, key) },
	)
}

func (s *Store) GetValue(ctx context.Context, key string) (models.Value, bool, error) {
	return s.primary.GetValue(ctx, key)
}

func (s *Store) GetStringValue(ctx context.Context, key string) (string, bool, error) {
	return s.primary.GetStringValue(ctx, key)
}

func (s *Store) GetDatetimeValue(ctx context.Context, key string) (time.Time, bool, error) {
	return s.primary.GetDatetimeValue(ctx, key)
}

func (s *Store) GetFloatValue(ctx context.Context, key string) (float64, bool, error) {
	return s.primary.GetFloatValue(ctx, key)
}

func (s *Store) GetIntValue(ctx context.Context, key string) (int64, bool, error) {
	return s.primary.GetIntValue(ctx, key)
}

func (s *Store) ListValues(ctx context.Context) ([]models.KeyValueEntry, error) {
	return s.primary.ListValues(ctx)
}

// InsertAllSamples stores samples in both backends.
func (s *Store) InsertAllSamples(ctx context.Context, code string, size int, samples [][]float64) error {
	return s.dualWrite(ctx, "InsertAllSamples",
		func() error { return s.primary.InsertAllSamples(ctx, code, size, samples) },
		func(ctx context.Context) error { return s.secondary.InsertAllSamples(ctx, code, size, samples) },
	)
}

// InsertSample stores one sample in both backends.
func (s *Store) InsertSample(ctx context.Context, code string, size int, sample []float64) error {
	return s.dualWrite(ctx, "InsertSample",
		func() error { return s.primary.InsertSample(ctx, code, size, sample) },
		func(ctx context.Context) error { return s.secondary.InsertSample(ctx, code, size, sample) },
	)
}

func (s *Store) GetSamples(ctx context.Context, code string, size int) ([][]float64, error) {
	return s.primary.GetSamples(ctx, code, size)
}

func (s *Store) GetSampleCount(ctx context.Context, code string, size int) (int, error) {
	return s.primary.GetSampleCount(ctx, code, size)
}

func (s *Store) GetSampleStats(ctx context.Context) ([]models.SampleStat, error) {
	return s.primary.GetSampleStats(ctx)
}

// ClearAllSamples clears both backends.
func (s *Store) ClearAllSamples(ctx context.Context) error {
	// Clear primary first
	if err := s.primary.ClearAllSamples(ctx); err != nil {
		return fmt.Errorf("clear primary: %w", err)
	}

	// Clear secondary (best effort)
	if err := s.secondary.ClearAllSamples(ctx); err != nil {
		s.logger.Error("failed to clear secondary backend",
			"error", err,
		)
	}

	return nil
}

// InsertBenchmark stores a benchmark result in both backends. The
// secondary receives a copy so each backend may assign its own ID.
func (s *Store) InsertBenchmark(ctx context.Context, result *models.BenchmarkResult) error {
	if result != nil && result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now().UTC()
	}

	var mirror *models.BenchmarkResult
	if result != nil {
		c := *result
		mirror = &c
	}

	return s.dualWrite(ctx, "InsertBenchmark",
		func() error { return s.primary.InsertBenchmark(ctx, result) },
		func(ctx context.Context) error { return s.secondary.InsertBenchmark(ctx, mirror) },
	)
}

func (s *Store) GetBenchmark(ctx context.Context, testCode string, size int) ([]float64, error) {
	return s.primary.GetBenchmark(ctx, testCode, size)
}

func (s *Store) GetBenchmarks(ctx context.Context, offset, limit int) ([]*models.BenchmarkResult, error) {
	return s.primary.GetBenchmarks(ctx, offset, limit)
}

// Close waits for pending secondary writes and closes both backends.
func (s *Store) Close() error {
	s.pending.Wait()

	primaryErr := s.primary.Close()
	secondaryErr := s.secondary.Close()

	if primaryErr != nil {
		return fmt.Errorf("close primary: %w", primaryErr)
	}
	if secondaryErr != nil {
		return fmt.Errorf("close secondary: %w", secondaryErr)
	}

	return nil
}
