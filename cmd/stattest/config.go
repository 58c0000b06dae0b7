package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/fidde/stattest/internal/stattest"
	"github.com/fidde/stattest/internal/storage"
	"github.com/fidde/stattest/internal/storage/snapshots"
)

// Config is the complete command line configuration. It is read from the
// --config YAML file, STATTEST_* environment variables and flags, in
// increasing order of priority.
type Config struct {
	Storage    storage.Config   `mapstructure:"storage"`
	Server     ServerConfig     `mapstructure:"server"`
	Simulation SimulationConfig `mapstructure:"simulation"`
	Snapshots  SnapshotConfig   `mapstructure:"snapshots"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig configures the serve command.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`

	// PprofAddr enables net/http/pprof on a separate listener when set
	PprofAddr string `mapstructure:"pprof_addr"`
}

// SimulationConfig configures Monte Carlo critical values.
type SimulationConfig struct {
	Count   int    `mapstructure:"count"`
	Workers int    `mapstructure:"workers"`
	Seed    uint64 `mapstructure:"seed"`
}

// SnapshotConfig configures the snapshot directory used by the API.
type SnapshotConfig struct {
	Dir          string `mapstructure:"dir"`
	MaxSize      int64  `mapstructure:"max_size"`
	MaxSnapshots int    `mapstructure:"max_snapshots"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	st := storage.DefaultConfig()
	v.SetDefault("storage.backend", st.Backend)
	v.SetDefault("storage.sqlite_path", st.SQLitePath)
	v.SetDefault("storage.journal_mode", st.JournalMode)
	v.SetDefault("storage.sample_encoding", st.SampleEncoding)
	v.SetDefault("storage.badger_path", st.BadgerPath)
	v.SetDefault("storage.clickhouse_addr", st.ClickHouseAddr)
	v.SetDefault("storage.secondary", st.Secondary)

	v.SetDefault("server.addr", "0.0.0.0:8080")
	v.SetDefault("server.pprof_addr", "")

	sim := stattest.DefaultConfig()
	v.SetDefault("simulation.count", sim.Count)
	v.SetDefault("simulation.workers", sim.Workers)
	v.SetDefault("simulation.seed", sim.Seed)

	snap := snapshots.DefaultConfig()
	v.SetDefault("snapshots.dir", snap.Dir)
	v.SetDefault("snapshots.max_size", snap.MaxSnapshotSize)
	v.SetDefault("snapshots.max_snapshots", snap.MaxSnapshots)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// LoadConfig reads configuration into v. An empty cfgFile searches for
// stattest.yaml in the working directory and silently falls back to
// defaults when none exists.
func LoadConfig(v *viper.Viper, cfgFile string) (*Config, error) {
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("stattest")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file %s: %w", v.ConfigFileUsed(), err)
		}
	}

	v.SetEnvPrefix("STATTEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// NewLogger builds the slog logger described by cfg.
func NewLogger(cfg LoggingConfig, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q (supported: text, json)", cfg.Format)
	}
}

// simulation converts the simulation section for the stattest package.
func (c *Config) simulation(logger *slog.Logger) stattest.Config {
	return stattest.Config{
		Count:   c.Simulation.Count,
		Workers: c.Simulation.Workers,
		Seed:    c.Simulation.Seed,
		Logger:  logger,
	}
}
