// Package badger provides a storage implementation on BadgerDB, an embedded
// LSM key-value store.
//
// Key layout:
//
//	kv:<key>                               -> "<type>:<payload>"
//	rvs:<code>\x00<size>:<seq>             -> binary float sequence
//	bench:<id>                             -> JSON benchmark result
//
// Sizes, sequence numbers and ids are zero padded so that prefix iteration
// returns rows in insertion order.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/fidde/stattest/pkg/floatcodec"
	"github.com/fidde/stattest/pkg/models"
)

const (
	kvPrefix    = "kv:"
	rvsPrefix   = "rvs:"
	benchPrefix = "bench:"

	seqBandwidth = 1000
)

// Config holds configuration for a Badger store.
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is true.
	Path string

	// InMemory keeps everything in RAM. Useful for testing.
	InMemory bool

	// SyncWrites makes every commit durable before it returns.
	SyncWrites bool

	// GCInterval is how often to run value log garbage collection. Zero
	// disables it.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum ratio of discardable data before GC.
	GCDiscardRatio float64

	Logger *slog.Logger
}

// DefaultConfig returns production defaults for a database at path.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns configuration for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// Store keeps key-value entries, samples and benchmark results in BadgerDB.
type Store struct {
	db       *badger.DB
	rvsSeq   *badger.Sequence
	benchSeq *badger.Sequence
	logger   *slog.Logger

	stopGC    chan struct{}
	gcDone    chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// New opens the database described by cfg.
func New(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(&badgerLogger{logger: cfg.Logger})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	rvsSeq, err := db.GetSequence([]byte("seq:rvs"), seqBandwidth)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("sample sequence: %w", err)
	}
	benchSeq, err := db.GetSequence([]byte("seq:bench"), seqBandwidth)
	if err != nil {
		rvsSeq.Release()
		db.Close()
		return nil, fmt.Errorf("benchmark sequence: %w", err)
	}

	s := &Store{
		db:       db,
		rvsSeq:   rvsSeq,
		benchSeq: benchSeq,
		logger:   cfg.Logger,
	}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.stopGC = make(chan struct{})
		s.gcDone = make(chan struct{})
		go s.runGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}

	cfg.Logger.Debug("opened badger store", "path", cfg.Path, "in_memory", cfg.InMemory)
	return s, nil
}

func (s *Store) runGC(interval time.Duration, ratio float64) {
	defer close(s.gcDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
			// ErrNoRewrite means no GC was needed
			if err := s.db.RunValueLogGC(ratio); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				s.logger.Warn("badger value log GC error", "error", err)
			}
		}
	}
}

// Close stops GC, releases sequences and closes the database.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		if s.stopGC != nil {
			close(s.stopGC)
			<-s.gcDone
		}
		err := errors.Join(s.rvsSeq.Release(), s.benchSeq.Release())
		s.closeErr = errors.Join(err, s.db.Close())
	})
	return s.closeErr
}

// --- key-value entries ---

func kvKey(key string) []byte { return []byte(kvPrefix + key) }

func encodeValue(v models.Value) []byte {
	return []byte(string(v.Type()) + ":" + v.Encode())
}

func decodeValue(key string, raw []byte) (models.Value, error) {
	typ, payload, ok := strings.Cut(string(raw), ":")
	if !ok {
		return models.Value{}, fmt.Errorf("key %s: %w: %q", key, models.ErrCorruptValueType, raw)
	}
	v, err := models.DecodeValue(typ, payload)
	if err != nil {
		return models.Value{}, fmt.Errorf("key %s: %w", key, err)
	}
	return v, nil
}

// StoreValue creates or overwrites the entry for key.
func (s *Store) StoreValue(ctx context.Context, key string, value models.Value) error {
	if err := models.ValidateKey(key); err != nil {
		return err
	}
	if !value.Valid() {
		return models.ErrUnsupportedValueType
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(kvKey(key), encodeValue(value))
	})
	if err != nil {
		return fmt.Errorf("storing value %s: %w", key, err)
	}
	return nil
}

// DeleteValue removes key. A missing key is not an error.
func (s *Store) DeleteValue(ctx context.Context, key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(kvKey(key))
	})
	if err != nil {
		return fmt.Errorf("deleting value %s: %w", key, err)
	}
	return nil
}

// GetValue returns the value stored for key.
func (s *Store) GetValue(ctx context.Context, key string) (models.Value, bool, error) {
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(kvKey(key))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return models.Value{}, false, nil
	}
	if err != nil {
		return models.Value{}, false, fmt.Errorf("reading value %s: %w", key, err)
	}

	v, err := decodeValue(key, raw)
	if err != nil {
		return models.Value{}, false, err
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

// ListValues returns every entry ordered by key.
func (s *Store) ListValues(ctx context.Context) ([]models.KeyValueEntry, error) {
	var entries []models.KeyValueEntry
	prefix := []byte(kvPrefix)

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := string(item.Key()[len(prefix):])

			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			v, err := decodeValue(key, raw)
			if err != nil {
				return err
			}
			entries = append(entries, models.KeyValueEntry{Key: key, Value: v})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing values: %w", err)
	}
	return entries, nil
}

// --- samples ---

func samplePrefix(code string, size int) []byte {
	return []byte(fmt.Sprintf("%s%s\x00%010d:", rvsPrefix, code, size))
}

// parseSampleKey extracts code and size from a sample key.
func parseSampleKey(key []byte) (string, int, bool) {
	rest := string(key[len(rvsPrefix):])
	i := strings.LastIndexByte(rest, 0)
	if i < 0 {
		return "", 0, false
	}
	sizeStr, _, ok := strings.Cut(rest[i+1:], ":")
	if !ok {
		return "", 0, false
	}
	size, err := strconv.Atoi(sizeStr)
	if err != nil {
		return "", 0, false
	}
	return rest[:i], size, true
}

// InsertAllSamples writes every sample in one transaction.
func (s *Store) InsertAllSamples(ctx context.Context, code string, size int, samples [][]float64) error {
	if len(samples) == 0 {
		return nil
	}

	prefix := samplePrefix(code, size)
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, sample := range samples {
			seq, err := s.rvsSeq.Next()
			if err != nil {
				return fmt.Errorf("next sample id: %w", err)
			}
			key := append(append([]byte{}, prefix...), fmt.Sprintf("%016d", seq)...)
			if err := txn.Set(key, floatcodec.EncodeBinary(sample)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("inserting samples for %s/%d: %w", code, size, err)
	}
	return nil
}

func (s *Store) InsertSample(ctx context.Context, code string, size int, sample []float64) error {
	return s.InsertAllSamples(ctx, code, size, [][]float64{sample})
}

// GetSamples returns the samples for (code, size) in insertion order.
func (s *Store) GetSamples(ctx context.Context, code string, size int) ([][]float64, error) {
	samples := [][]float64{}
	prefix := samplePrefix(code, size)

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := it.Item().Value(func(val []byte) error {
				values, err := floatcodec.DecodeBinary(val)
				if err != nil {
					return err
				}
				samples = append(samples, values)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading samples for %s/%d: %w", code, size, err)
	}
	return samples, nil
}

// GetSampleCount counts keys without reading values.
func (s *Store) GetSampleCount(ctx context.Context, code string, size int) (int, error) {
	count := 0
	prefix := samplePrefix(code, size)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("counting samples: %w", err)
	}
	return count, nil
}

// GetSampleStats groups sample keys by (code, size).
func (s *Store) GetSampleStats(ctx context.Context) ([]models.SampleStat, error) {
	counts := make(map[models.SampleStat]int)
	prefix := []byte(rvsPrefix)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			code, size, ok := parseSampleKey(it.Item().Key())
			if !ok {
				continue // Skip malformed keys
			}
			counts[models.SampleStat{Code: code, Size: size}]++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("querying sample stats: %w", err)
	}

	stats := make([]models.SampleStat, 0, len(counts))
	for k, n := range counts {
		k.Count = n
		stats = append(stats, k)
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Code != stats[j].Code {
			return stats[i].Code < stats[j].Code
		}
		return stats[i].Size < stats[j].Size
	})
	return stats, nil
}

// ClearAllSamples drops every sample key.
func (s *Store) ClearAllSamples(ctx context.Context) error {
	if err := s.db.DropPrefix([]byte(rvsPrefix)); err != nil {
		return fmt.Errorf("clearing samples: %w", err)
	}
	return nil
}

// --- benchmarks ---

func benchKey(id int64) []byte {
	return []byte(fmt.Sprintf("%s%016d", benchPrefix, id))
}

// InsertBenchmark stores result under a new id.
func (s *Store) InsertBenchmark(ctx context.Context, result *models.BenchmarkResult) error {
	if result == nil {
		return errors.New("benchmark result cannot be nil")
	}
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now().UTC()
	}

	seq, err := s.benchSeq.Next()
	if err != nil {
		return fmt.Errorf("next benchmark id: %w", err)
	}
	result.ID = int64(seq) + 1

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encoding benchmark: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(benchKey(result.ID), data)
	})
	if err != nil {
		return fmt.Errorf("inserting benchmark %s/%d: %w", result.TestCode, result.Size, err)
	}
	return nil
}

// scanBenchmarks calls fn for every stored result in id order until fn
// returns false.
func (s *Store) scanBenchmarks(fn func(*models.BenchmarkResult) bool) error {
	prefix := []byte(benchPrefix)

	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var r models.BenchmarkResult
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &r)
			})
			if err != nil {
				return fmt.Errorf("decoding benchmark: %w", err)
			}
			if !fn(&r) {
				return nil
			}
		}
		return nil
	})
}

// GetBenchmark returns the most recent result for (testCode, size).
func (s *Store) GetBenchmark(ctx context.Context, testCode string, size int) ([]float64, error) {
	latest := []float64{}
	err := s.scanBenchmarks(func(r *models.BenchmarkResult) bool {
		if r.TestCode == testCode && r.Size == size {
			latest = r.Benchmark
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return latest, nil
}

// GetBenchmarks pages through results in id order.
func (s *Store) GetBenchmarks(ctx context.Context, offset, limit int) ([]*models.BenchmarkResult, error) {
	results := []*models.BenchmarkResult{}
	i := 0
	err := s.scanBenchmarks(func(r *models.BenchmarkResult) bool {
		if i >= offset {
			results = append(results, r)
		}
		i++
		return limit <= 0 || len(results) < limit
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}
