// Package clickhouse provides a storage implementation on ClickHouse.
// Samples and benchmark results are stored as native Array(Float64)
// columns; key-value entries live in a ReplacingMergeTree read with FINAL.
package clickhouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/fidde/stattest/pkg/models"
)

const maxRetries = 3

// Store implements the storage interfaces using ClickHouse
type Store struct {
	conn   driver.Conn
	logger *slog.Logger

	// seq hands out increasing row sequence numbers and benchmark ids
	seqMu sync.Mutex
	seq   uint64
}

// NewStore connects to ClickHouse and creates the tables
func NewStore(ctx context.Context, config *ConnectionConfig, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := Connect(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connecting to ClickHouse: %w", err)
	}

	if err := InitializeSchema(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return &Store{conn: conn, logger: logger}, nil
}

// reserve returns the first of n consecutive sequence numbers. Numbers are
// based on the wall clock so they keep increasing across restarts.
func (s *Store) reserve(n int) uint64 {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()

	now := uint64(time.Now().UnixNano())
	if now > s.seq {
		s.seq = now
	}
	first := s.seq + 1
	s.seq += uint64(n)
	return first
}

// retryInsert retries an insert with exponential backoff
func (s *Store) retryInsert(ctx context.Context, op string, fn func(context.Context) error) error {
	var err error
	retryDelay := 100 * time.Millisecond

	for attempt := 1; attempt <= maxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err = fn(attemptCtx)
		cancel()

		if err == nil {
			return nil
		}

		s.logger.Warn("clickhouse insert failed", "operation", op, "attempt", attempt, "error", err)

		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryDelay):
				retryDelay *= 2
			}
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", op, maxRetries, err)
}

// Key-value operations

func (s *Store) writeKV(ctx context.Context, op, key, typ, value string, deleted uint8) error {
	version := s.reserve(1)
	return s.retryInsert(ctx, op, func(ctx context.Context) error {
		return s.conn.Exec(ctx,
			"INSERT INTO kv_store (key, value_type, value, deleted, version) VALUES (?, ?, ?, ?, ?)",
			key, typ, value, deleted, version)
	})
}

func (s *Store) StoreValue(ctx context.Context, key string, value models.Value) error {
	if err := models.ValidateKey(key); err != nil {
		return err
	}
	if !value.Valid() {
		return models.ErrUnsupportedValueType
	}
	return s.writeKV(ctx, "StoreValue", key, string(value.Type()), value.Encode(), 0)
}

// DeleteValue writes a tombstone for key.
func (s *Store) DeleteValue(ctx context.Context, key string) error {
	return s.writeKV(ctx, "DeleteValue", key, "", "", 1)
}

func (s *Store) GetValue(ctx context.Context, key string) (models.Value, bool, error) {
	query := `
		SELECT value_type, value
		FROM kv_store FINAL
		WHERE key = ? AND deleted = 0
		LIMIT 1
	`

	var typ, payload string
	err := s.conn.QueryRow(ctx, query, key).Scan(&typ, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Value{}, false, nil
	}
	if err != nil {
		return models.Value{}, false, fmt.Errorf("querying value %s: %w", key, err)
	}

	v, err := models.DecodeValue(typ, payload)
	if err != nil {
		return models.Value{}, false, fmt.Errorf("key %s: %w", key, err)
	}
	return v, true, nil
}

func (s *Store) GetStringValue(ctx context.Context, key string) (string, bool, error) {
	v, _, err := s.GetValue(ctx, key)
	if err != nil {
		return "", false, err
	}
	str, ok := v.AsString()
	return str, ok, nil
}

func (s *Store) GetDatetimeValue(ctx context.Context, key string) (time.Time, bool, error) {
	v, _, err := s.GetValue(ctx, key)
	if err != nil {
		return time.Time{}, false, err
	}
	t, ok := v.AsDatetime()
	return t, ok, nil
}

func (s *Store) GetFloatValue(ctx context.Context, key string) (float64, bool, error) {
	v, _, err := s.GetValue(ctx, key)
	if err != nil {
		return 0, false, err
	}
	f, ok := v.AsFloat()
	return f, ok, nil
}

func (s *Store) GetIntValue(ctx context.Context, key string) (int64, bool, error) {
	v, _, err := s.GetValue(ctx, key)
	if err != nil {
		return 0, false, err
	}
	i, ok := v.AsInt()
	return i, ok, nil
}

func (s *Store) ListValues(ctx context.Context) ([]models.KeyValueEntry, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT key, value_type, value
		FROM kv_store FINAL
		WHERE deleted = 0
		ORDER BY key
	`)
	if err != nil {
		return nil, fmt.Errorf("querying values: %w", err)
	}
	defer rows.Close()

	var entries []models.KeyValueEntry
	for rows.Next() {
		var key, typ, payload string
		if err := rows.Scan(&key, &typ, &payload); err != nil {
			return nil, err
		}
		v, err := models.DecodeValue(typ, payload)
		if err != nil {
			return nil, fmt.Errorf("key %s: %w", key, err)
		}
		entries = append(entries, models.KeyValueEntry{Key: key, Value: v})
	}

	return entries, rows.Err()
}

// Sample operations

// InsertAllSamples sends every sample in one native batch.
func (s *Store) InsertAllSamples(ctx context.Context, code string, size int, samples [][]float64) error {
	if len(samples) == 0 {
		return nil
	}

	first := s.reserve(len(samples))
	return s.retryInsert(ctx, "InsertAllSamples", func(ctx context.Context) error {
		batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO rvs_data (code, size, seq, data)")
		if err != nil {
			return err
		}

		for i, sample := range samples {
			if err := batch.Append(code, uint32(size), first+uint64(i), sample); err != nil {
				return err
			}
		}

		return batch.Send()
	})
}

func (s *Store) InsertSample(ctx context.Context, code string, size int, sample []float64) error {
	return s.InsertAllSamples(ctx, code, size, [][]float64{sample})
}

func (s *Store) GetSamples(ctx context.Context, code string, size int) ([][]float64, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT data FROM rvs_data
		WHERE code = ? AND size = ?
		ORDER BY seq
	`, code, uint32(size))
	if err != nil {
		return nil, fmt.Errorf("querying samples: %w", err)
	}
	defer rows.Close()

	samples := [][]float64{}
	for rows.Next() {
		var data []float64
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		samples = append(samples, data)
	}

	return samples, rows.Err()
}

func (s *Store) GetSampleCount(ctx context.Context, code string, size int) (int, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `
		SELECT count() FROM rvs_data WHERE code = ? AND size = ?
	`, code, uint32(size)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting samples: %w", err)
	}
	return int(count), nil
}

func (s *Store) GetSampleStats(ctx context.Context) ([]models.SampleStat, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT code, size, count() FROM rvs_data
		GROUP BY code, size
		ORDER BY code, size
	`)
	if err != nil {
		return nil, fmt.Errorf("querying sample stats: %w", err)
	}
	defer rows.Close()

	stats := []models.SampleStat{}
	for rows.Next() {
		var (
			code  string
			size  uint32
			count uint64
		)
		if err := rows.Scan(&code, &size, &count); err != nil {
			return nil, err
		}
		stats = append(stats, models.SampleStat{Code: code, Size: int(size), Count: int(count)})
	}

	return stats, rows.Err()
}

func (s *Store) ClearAllSamples(ctx context.Context) error {
	if err := s.conn.Exec(ctx, "TRUNCATE TABLE rvs_data"); err != nil {
		return fmt.Errorf("truncating table rvs_data: %w", err)
	}
	return nil
}

// Benchmark operations

func (s *Store) InsertBenchmark(ctx context.Context, result *models.BenchmarkResult) error {
	if result == nil {
		return errors.New("benchmark result cannot be nil")
	}
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now().UTC()
	}

	id := s.reserve(1)
	err := s.retryInsert(ctx, "InsertBenchmark", func(ctx context.Context) error {
		return s.conn.Exec(ctx, `
			INSERT INTO benchmark_result (id, run_id, test_code, size, benchmark, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, id, result.RunID, result.TestCode, uint32(result.Size), result.Benchmark, result.CreatedAt.UTC())
	})
	if err != nil {
		return err
	}

	result.ID = int64(id)
	return nil
}

func (s *Store) GetBenchmark(ctx context.Context, testCode string, size int) ([]float64, error) {
	var benchmark []float64
	err := s.conn.QueryRow(ctx, `
		SELECT benchmark FROM benchmark_result
		WHERE test_code = ? AND size = ?
		ORDER BY id DESC
		LIMIT 1
	`, testCode, uint32(size)).Scan(&benchmark)
	if errors.Is(err, sql.ErrNoRows) {
		return []float64{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying benchmark: %w", err)
	}
	return benchmark, nil
}

func (s *Store) GetBenchmarks(ctx context.Context, offset, limit int) ([]*models.BenchmarkResult, error) {
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, run_id, test_code, size, benchmark, created_at
		FROM benchmark_result
		ORDER BY id
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, offset)
	} else if offset > 0 {
		query += " LIMIT 18446744073709551615 OFFSET ?"
		args = append(args, offset)
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying benchmarks: %w", err)
	}
	defer rows.Close()

	results := []*models.BenchmarkResult{}
	for rows.Next() {
		var (
			id   uint64
			size uint32
			r    models.BenchmarkResult
		)
		if err := rows.Scan(&id, &r.RunID, &r.TestCode, &size, &r.Benchmark, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.ID = int64(id)
		r.Size = int(size)
		r.CreatedAt = r.CreatedAt.UTC()
		results = append(results, &r)
	}

	return results, rows.Err()
}

// Utility operations

// Clear truncates every table.
func (s *Store) Clear(ctx context.Context) error {
	tables := []string{"kv_store", "rvs_data", "benchmark_result"}

	for _, table := range tables {
		if err := s.conn.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s", table)); err != nil {
			return fmt.Errorf("truncating table %s: %w", table, err)
		}
	}

	return nil
}

func (s *Store) Close() error {
	return s.conn.Close()
}
