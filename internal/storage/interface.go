// Package storage defines the persistence interfaces for typed key-value
// entries, generated samples and benchmark results.
package storage

import (
	"context"
	"time"

	"github.com/fidde/stattest/pkg/models"
)

// KeyValueStore maps string keys to one typed value each.
//
// Lookups report a missing key with ok=false and a nil error. The typed
// getters also report ok=false when the key exists but holds another type:
// a type mismatch is treated as absence, never as an error. Callers that
// need to distinguish the two cases use GetValue.
type KeyValueStore interface {
	// StoreValue creates or overwrites the entry for key. The stored type
	// follows the value, so an overwrite may change it.
	StoreValue(ctx context.Context, key string, value models.Value) error
	// DeleteValue removes key. Deleting a missing key is a no-op.
	DeleteValue(ctx context.Context, key string) error

	GetValue(ctx context.Context, key string) (models.Value, bool, error)
	GetStringValue(ctx context.Context, key string) (string, bool, error)
	GetDatetimeValue(ctx context.Context, key string) (time.Time, bool, error)
	GetFloatValue(ctx context.Context, key string) (float64, bool, error)
	GetIntValue(ctx context.Context, key string) (int64, bool, error)
}

// SampleStore keeps generated samples grouped by generator code and size.
type SampleStore interface {
	// InsertAllSamples writes one row per sample in a single transaction.
	// An empty batch is a no-op.
	InsertAllSamples(ctx context.Context, code string, size int, samples [][]float64) error
	InsertSample(ctx context.Context, code string, size int, sample []float64) error
	// GetSamples returns every sample stored for (code, size), or an empty
	// slice.
	GetSamples(ctx context.Context, code string, size int) ([][]float64, error)
	GetSampleCount(ctx context.Context, code string, size int) (int, error)
	// GetSampleStats returns one entry per distinct (code, size). The order
	// is backend specific.
	GetSampleStats(ctx context.Context) ([]models.SampleStat, error)
	// ClearAllSamples deletes every sample and commits.
	ClearAllSamples(ctx context.Context) error
}

// BenchmarkStore keeps benchmark results per test and sample size.
type BenchmarkStore interface {
	InsertBenchmark(ctx context.Context, result *models.BenchmarkResult) error
	// GetBenchmark returns the most recent result for (testCode, size), or
	// an empty slice.
	GetBenchmark(ctx context.Context, testCode string, size int) ([]float64, error)
	// GetBenchmarks pages through all results in insertion order.
	GetBenchmarks(ctx context.Context, offset, limit int) ([]*models.BenchmarkResult, error)
}

// Storage bundles every store a backend provides.
type Storage interface {
	KeyValueStore
	SampleStore
	BenchmarkStore

	// ListValues returns every key-value entry, for snapshots.
	ListValues(ctx context.Context) ([]models.KeyValueEntry, error)

	// Close releases the backend. It is safe to call more than once.
	Close() error
}
