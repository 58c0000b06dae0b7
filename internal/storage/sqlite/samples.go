package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fidde/stattest/pkg/floatcodec"
	"github.com/fidde/stattest/pkg/models"
)

// InsertAllSamples writes one row per sample in a single transaction.
func (s *Store) InsertAllSamples(ctx context.Context, code string, size int, samples [][]float64) error {
	if len(samples) == 0 {
		return nil
	}

	return s.submit(ctx, "InsertAllSamples", func(tx *sql.Tx) error {
		return s.insertSamplesTx(tx, code, size, samples)
	})
}

// InsertSample writes a single sample and commits.
func (s *Store) InsertSample(ctx context.Context, code string, size int, sample []float64) error {
	return s.submit(ctx, "InsertSample", func(tx *sql.Tx) error {
		return s.insertSamplesTx(tx, code, size, [][]float64{sample})
	})
}

func (s *Store) insertSamplesTx(tx *sql.Tx, code string, size int, samples [][]float64) error {
	stmt, err := tx.Prepare(`INSERT INTO rvs_data (code, size, data) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing sample insert: %w", err)
	}
	defer stmt.Close()

	for i, sample := range samples {
		if _, err := stmt.Exec(code, size, s.codec.Encode(sample)); err != nil {
			return fmt.Errorf("inserting sample %d for %s/%d: %w", i, code, size, err)
		}
	}
	return nil
}

// GetSamples returns every sample stored for (code, size) in insertion
// order, or an empty slice.
func (s *Store) GetSamples(ctx context.Context, code string, size int) ([][]float64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM rvs_data
		WHERE code = ? AND size = ?
		ORDER BY id
	`, code, size)
	if err != nil {
		return nil, fmt.Errorf("querying samples: %w", err)
	}
	defer rows.Close()

	samples := [][]float64{}
	for rows.Next() {
		var raw any
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scanning sample: %w", err)
		}

		values, err := floatcodec.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("decoding sample for %s/%d: %w", code, size, err)
		}
		samples = append(samples, values)
	}

	return samples, rows.Err()
}

// GetSampleCount counts the samples for (code, size) without loading them.
func (s *Store) GetSampleCount(ctx context.Context, code string, size int) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM rvs_data WHERE code = ? AND size = ?
	`, code, size).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting samples: %w", err)
	}
	return count, nil
}

// GetSampleStats groups samples by (code, size). Rows come back ordered by
// code and size, although the interface does not promise it.
func (s *Store) GetSampleStats(ctx context.Context) ([]models.SampleStat, error) {
	return s.querySampleStats(ctx, `
		SELECT code, size, COUNT(*) FROM rvs_data
		GROUP BY code, size
		ORDER BY code, size
	`)
}

// GetRecordedSampleStats reads the rvs_stat reporting table as of the last
// RefreshSampleStats.
func (s *Store) GetRecordedSampleStats(ctx context.Context) ([]models.SampleStat, error) {
	return s.querySampleStats(ctx, `SELECT code, size, count FROM rvs_stat ORDER BY code, size`)
}

func (s *Store) querySampleStats(ctx context.Context, query string) ([]models.SampleStat, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying sample stats: %w", err)
	}
	defer rows.Close()

	stats := []models.SampleStat{}
	for rows.Next() {
		var st models.SampleStat
		if err := rows.Scan(&st.Code, &st.Size, &st.Count); err != nil {
			return nil, fmt.Errorf("scanning sample stat: %w", err)
		}
		stats = append(stats, st)
	}

	return stats, rows.Err()
}

// RefreshSampleStats rebuilds rvs_stat from rvs_data.
func (s *Store) RefreshSampleStats(ctx context.Context) error {
	return s.submit(ctx, "RefreshSampleStats", func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM rvs_stat`); err != nil {
			return fmt.Errorf("clearing rvs_stat: %w", err)
		}
		_, err := tx.Exec(`
			INSERT INTO rvs_stat (code, size, count)
			SELECT code, size, COUNT(*) FROM rvs_data
			GROUP BY code, size
		`)
		if err != nil {
			return fmt.Errorf("rebuilding rvs_stat: %w", err)
		}
		return nil
	})
}

// ClearAllSamples deletes every sample and commits before returning. Use
// Begin and Tx.ClearAllSamples when the deletion must be part of a larger
// transaction.
func (s *Store) ClearAllSamples(ctx context.Context) error {
	return s.submit(ctx, "ClearAllSamples", func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM rvs_data`); err != nil {
			return fmt.Errorf("clearing samples: %w", err)
		}
		return nil
	})
}
