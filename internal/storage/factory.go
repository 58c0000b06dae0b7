package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/fidde/stattest/internal/storage/badger"
	"github.com/fidde/stattest/internal/storage/clickhouse"
	"github.com/fidde/stattest/internal/storage/dual"
	"github.com/fidde/stattest/internal/storage/memory"
	"github.com/fidde/stattest/internal/storage/sqlite"
)

var (
	_ Storage = (*sqlite.Store)(nil)
	_ Storage = (*memory.Store)(nil)
	_ Storage = (*badger.Store)(nil)
	_ Storage = (*clickhouse.Store)(nil)
	_ Storage = (*dual.Store)(nil)
)

// Config holds storage configuration.
type Config struct {
	// Backend selects the storage backend: "sqlite", "memory", "badger",
	// "clickhouse" or "dual".
	Backend string `mapstructure:"backend" yaml:"backend"`

	// SQLite-specific config
	SQLitePath     string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	JournalMode    string `mapstructure:"journal_mode" yaml:"journal_mode"`
	SampleEncoding string `mapstructure:"sample_encoding" yaml:"sample_encoding"`

	// Badger-specific config
	BadgerPath string `mapstructure:"badger_path" yaml:"badger_path"`

	// ClickHouse-specific config
	ClickHouseAddr string `mapstructure:"clickhouse_addr" yaml:"clickhouse_addr"`

	// Secondary names the mirror backend when Backend is "dual". The
	// primary is always SQLite.
	Secondary string `mapstructure:"secondary" yaml:"secondary"`

	Logger *slog.Logger `mapstructure:"-" yaml:"-"`
}

// DefaultConfig returns default storage configuration.
func DefaultConfig() Config {
	return Config{
		Backend:        "sqlite",
		SQLitePath:     "stattest.db",
		JournalMode:    "DELETE",
		SampleEncoding: "text",
		BadgerPath:     "stattest.badger",
		ClickHouseAddr: "localhost:9000",
		Secondary:      "clickhouse",
	}
}

// NewStorage creates a storage implementation based on configuration.
func NewStorage(ctx context.Context, cfg Config) (Storage, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	switch cfg.Backend {
	case "", "sqlite":
		cfg.Logger.Info("using sqlite storage", "path", cfg.SQLitePath, "journal_mode", cfg.JournalMode)

		sqlCfg := sqlite.DefaultConfig(cfg.SQLitePath)
		if cfg.JournalMode != "" {
			sqlCfg.JournalMode = cfg.JournalMode
		}
		if cfg.SampleEncoding != "" {
			sqlCfg.SampleEncoding = cfg.SampleEncoding
		}
		sqlCfg.Logger = cfg.Logger

		store, err := sqlite.New(sqlCfg)
		if err != nil {
			return nil, fmt.Errorf("creating sqlite store: %w", err)
		}
		return store, nil

	case "memory":
		cfg.Logger.Info("using in-memory storage")
		return memory.New(), nil

	case "badger":
		cfg.Logger.Info("using badger storage", "path", cfg.BadgerPath)

		bCfg := badger.DefaultConfig(cfg.BadgerPath)
		bCfg.Logger = cfg.Logger

		store, err := badger.New(bCfg)
		if err != nil {
			return nil, fmt.Errorf("creating badger store: %w", err)
		}
		return store, nil

	case "clickhouse":
		cfg.Logger.Info("using ClickHouse storage", "addr", cfg.ClickHouseAddr)

		chCfg := clickhouse.DefaultConfig()
		chCfg.Addr = cfg.ClickHouseAddr

		store, err := clickhouse.NewStore(ctx, chCfg, cfg.Logger)
		if err != nil {
			return nil, fmt.Errorf("creating ClickHouse store: %w", err)
		}
		return store, nil

	case "dual":
		if cfg.Secondary == "" || cfg.Secondary == "dual" || cfg.Secondary == "sqlite" {
			return nil, fmt.Errorf("invalid secondary backend for dual storage: %q", cfg.Secondary)
		}

		primaryCfg := cfg
		primaryCfg.Backend = "sqlite"
		primary, err := NewStorage(ctx, primaryCfg)
		if err != nil {
			return nil, err
		}

		secondaryCfg := cfg
		secondaryCfg.Backend = cfg.Secondary
		secondary, err := NewStorage(ctx, secondaryCfg)
		if err != nil {
			primary.Close()
			return nil, fmt.Errorf("creating secondary store: %w", err)
		}

		cfg.Logger.Info("using dual-write storage", "secondary", cfg.Secondary)
		return dual.New(dual.Config{
			Primary:   primary,
			Secondary: secondary,
			Logger:    cfg.Logger,
		}), nil

	default:
		return nil, fmt.Errorf("unknown storage backend: %s (supported: sqlite, memory, badger, clickhouse, dual)", cfg.Backend)
	}
}

// RemoveDatabase deletes a SQLite database file together with its
// -journal, -wal and -shm companions. Missing files are ignored.
func RemoveDatabase(path string) error {
	var errs []error
	for _, p := range []string{path, path + "-journal", path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
