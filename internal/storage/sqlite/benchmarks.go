package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fidde/stattest/pkg/floatcodec"
	"github.com/fidde/stattest/pkg/models"
)

// InsertBenchmark stores a benchmark result. A zero CreatedAt is set to now.
func (s *Store) InsertBenchmark(ctx context.Context, result *models.BenchmarkResult) error {
	if result == nil {
		return errors.New("benchmark result cannot be nil")
	}
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now().UTC()
	}

	return s.submit(ctx, "InsertBenchmark", func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			INSERT INTO benchmark_result (run_id, test_code, size, benchmark, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, result.RunID, result.TestCode, result.Size, s.codec.Encode(result.Benchmark),
			result.CreatedAt.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("inserting benchmark %s/%d: %w", result.TestCode, result.Size, err)
		}
		if id, err := res.LastInsertId(); err == nil {
			result.ID = id
		}
		return nil
	})
}

// GetBenchmark returns the most recent benchmark for (testCode, size), or an
// empty slice.
func (s *Store) GetBenchmark(ctx context.Context, testCode string, size int) ([]float64, error) {
	var raw any
	err := s.db.QueryRowContext(ctx, `
		SELECT benchmark FROM benchmark_result
		WHERE test_code = ? AND size = ?
		ORDER BY id DESC LIMIT 1
	`, testCode, size).Scan(&raw)

	if errors.Is(err, sql.ErrNoRows) {
		return []float64{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying benchmark: %w", err)
	}

	values, err := floatcodec.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding benchmark %s/%d: %w", testCode, size, err)
	}
	return values, nil
}

// GetBenchmarks returns up to limit results starting at offset, oldest
// first. A non-positive limit returns everything after offset.
func (s *Store) GetBenchmarks(ctx context.Context, offset, limit int) ([]*models.BenchmarkResult, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, test_code, size, benchmark, created_at
		FROM benchmark_result
		ORDER BY id
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying benchmarks: %w", err)
	}
	defer rows.Close()

	results := []*models.BenchmarkResult{}
	for rows.Next() {
		var (
			r         models.BenchmarkResult
			raw       any
			createdAt string
		)
		if err := rows.Scan(&r.ID, &r.RunID, &r.TestCode, &r.Size, &raw, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning benchmark: %w", err)
		}

		if r.Benchmark, err = floatcodec.Decode(raw); err != nil {
			return nil, fmt.Errorf("decoding benchmark %d: %w", r.ID, err)
		}
		if r.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at of benchmark %d: %w", r.ID, err)
		}
		results = append(results, &r)
	}

	return results, rows.Err()
}
