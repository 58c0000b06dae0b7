package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// Tx is a caller-controlled transaction. Nothing done through it is
// visible to other connections until Commit; Rollback discards it. The
// transaction holds SQLite's write lock once it has written, so queued
// writes on the Store wait (up to the busy timeout) until it ends.
type Tx struct {
	store *Store
	tx    *sql.Tx
}

// Begin starts a caller-controlled transaction.
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &Tx{store: s, tx: tx}, nil
}

// ClearAllSamples deletes every sample inside the transaction without
// committing.
func (t *Tx) ClearAllSamples(ctx context.Context) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM rvs_data`); err != nil {
		return fmt.Errorf("clearing samples: %w", err)
	}
	return nil
}

// InsertAllSamples adds samples inside the transaction without committing.
func (t *Tx) InsertAllSamples(ctx context.Context, code string, size int, samples [][]float64) error {
	if len(samples) == 0 {
		return nil
	}
	return t.store.insertSamplesTx(t.tx, code, size, samples)
}

// Commit makes the transaction's changes durable.
func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Rollback discards the transaction. Calling it after Commit is a no-op.
func (t *Tx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return fmt.Errorf("rollback transaction: %w", err)
	}
	return nil
}
