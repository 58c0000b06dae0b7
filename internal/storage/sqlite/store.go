// Package sqlite provides a SQLite-backed storage implementation.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/fidde/stattest/pkg/floatcodec"
	_ "modernc.org/sqlite"
)

//go:embed migrations/001_initial_schema.up.sql
var migrationSQL string

// ErrStoreClosed is returned by writes issued after Close.
var ErrStoreClosed = errors.New("store is closed")

// Store is a SQLite-backed storage for key-value entries, samples and
// benchmark results.
//
// All writes go through a single writer goroutine. Writes that arrive while
// a transaction is being prepared are grouped into one commit, each inside
// its own savepoint so that a failing write does not fail its neighbours.
// Reads use the connection pool directly.
type Store struct {
	db     *sql.DB
	codec  floatcodec.Codec
	logger *slog.Logger

	// Batch writer
	writeCh   chan writeOp
	closeCh   chan struct{}
	stoppedCh chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// writeOp is one write executed by the writer goroutine.
type writeOp struct {
	name string
	fn   func(tx *sql.Tx) error
	done chan error
}

// Config holds SQLite store configuration.
type Config struct {
	DBPath string

	// JournalMode is passed to PRAGMA journal_mode. DELETE leaves the
	// classic "-journal" file next to the database during writes.
	JournalMode string

	// SampleEncoding selects the payload format for new sample and
	// benchmark rows: "text" or "binary". Both are always readable.
	SampleEncoding string

	// BatchSize caps how many queued writes share one commit.
	BatchSize int

	Logger *slog.Logger
}

// DefaultConfig returns default SQLite configuration.
func DefaultConfig(dbPath string) Config {
	return Config{
		DBPath:         dbPath,
		JournalMode:    "DELETE",
		SampleEncoding: "text",
		BatchSize:      100,
	}
}

// New opens (or creates) the database at cfg.DBPath and makes sure every
// table exists. Opening an existing database is safe and keeps its data.
func New(cfg Config) (*Store, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("database path is required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.JournalMode == "" {
		cfg.JournalMode = "DELETE"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	codec, err := floatcodec.ByName(cfg.SampleEncoding)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", buildDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// An in-memory database exists per connection.
	if cfg.DBPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	// Run migrations
	if _, err := db.Exec(migrationSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	store := &Store{
		db:        db,
		codec:     codec,
		logger:    cfg.Logger,
		writeCh:   make(chan writeOp, 1000),
		closeCh:   make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}

	// Start batch writer goroutine
	store.wg.Add(1)
	go store.batchWriter(cfg.BatchSize)

	cfg.Logger.Debug("opened sqlite store",
		"path", cfg.DBPath,
		"journal_mode", cfg.JournalMode,
		"sample_encoding", codec.Name(),
	)

	return store, nil
}

// buildDSN sets the pragmas on every pooled connection rather than on the
// one connection that happens to run an Exec.
func buildDSN(cfg Config) string {
	pragmas := []string{
		"journal_mode(" + strings.ToUpper(cfg.JournalMode) + ")",
		"synchronous(FULL)",
		"busy_timeout(5000)",
		"foreign_keys(ON)",
	}

	q := url.Values{}
	for _, p := range pragmas {
		q.Add("_pragma", p)
	}

	if cfg.DBPath == ":memory:" {
		return "file::memory:?" + q.Encode()
	}
	return "file:" + cfg.DBPath + "?" + q.Encode()
}

// batchWriter runs in a goroutine and groups queued writes into commits.
func (s *Store) batchWriter(batchSize int) {
	defer s.wg.Done()
	defer close(s.stoppedCh)

	batch := make([]writeOp, 0, batchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}

		results := s.executeBatch(batch)
		for i := range batch {
			batch[i].done <- results[i]
			close(batch[i].done)
		}

		batch = batch[:0]
	}

	// drain pulls whatever is already queued without waiting.
	drain := func() {
		for len(batch) < batchSize {
			select {
			case op := <-s.writeCh:
				batch = append(batch, op)
			default:
				return
			}
		}
	}

	for {
		select {
		case op := <-s.writeCh:
			batch = append(batch, op)
			drain()
			flush()

		case <-s.closeCh:
			for {
				drain()
				if len(batch) == 0 {
					return
				}
				flush()
			}
		}
	}
}

// executeBatch runs a batch of writes in a single transaction and returns
// one result per op.
func (s *Store) executeBatch(batch []writeOp) []error {
	results := make([]error, len(batch))
	fail := func(err error) []error {
		for i := range results {
			results[i] = err
		}
		return results
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fail(fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback()

	ok := 0
	for i, op := range batch {
		if _, err := tx.Exec("SAVEPOINT write_op"); err != nil {
			return fail(fmt.Errorf("savepoint: %w", err))
		}

		if err := op.fn(tx); err != nil {
			results[i] = err
			if _, rbErr := tx.Exec("ROLLBACK TO write_op"); rbErr != nil {
				return fail(fmt.Errorf("rollback to savepoint after %s: %w", op.name, rbErr))
			}
			s.logger.Debug("write failed", "operation", op.name, "error", err)
		} else {
			ok++
		}

		if _, err := tx.Exec("RELEASE write_op"); err != nil {
			return fail(fmt.Errorf("release savepoint: %w", err))
		}
	}

	if ok == 0 {
		return results
	}

	if err := tx.Commit(); err != nil {
		return fail(fmt.Errorf("commit transaction: %w", err))
	}

	return results
}

// submit hands a write to the writer goroutine and waits for its commit.
// ctx only bounds the wait for a queue slot: once the op is queued it will
// be committed or fail on its own, and submit reports that outcome, so a
// returned ctx.Err() always means nothing was written.
func (s *Store) submit(ctx context.Context, name string, fn func(tx *sql.Tx) error) error {
	done := make(chan error, 1)

	select {
	case s.writeCh <- writeOp{name: name, fn: fn, done: done}:
		select {
		case err := <-done:
			return err
		case <-s.stoppedCh:
			// The writer may have taken the op before it stopped.
			select {
			case err := <-done:
				return err
			default:
				return ErrStoreClosed
			}
		}
	case <-ctx.Done():
		return ctx.Err()
	case <-s.closeCh:
		return ErrStoreClosed
	}
}

// Close flushes queued writes and closes the database. Calling it more than
// once is safe.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closeCh)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}
