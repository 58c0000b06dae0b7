package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fidde/stattest/internal/api"
	"github.com/fidde/stattest/internal/storage"
)

var (
	cfgFile string
	v       = viper.New()
	config  *Config
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:     "stattest",
	Short:   "Goodness-of-fit testing with persistent samples and critical values",
	Long:    `stattest generates random samples, computes Monte Carlo critical values for goodness-of-fit statistics, runs power benchmarks and serves the stores over a REST API.`,
	Version: api.Version,

	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		config, err = LoadConfig(v, cfgFile)
		if err != nil {
			return err
		}
		logger, err = NewLogger(config.Logging, os.Stderr)
		if err != nil {
			return err
		}
		slog.SetDefault(logger)
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./stattest.yaml)")
	rootCmd.PersistentFlags().String("db", "", "SQLite database path")
	rootCmd.PersistentFlags().String("backend", "", "storage backend (sqlite, memory, badger, clickhouse, dual)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (text, json)")

	_ = v.BindPFlag("storage.sqlite_path", rootCmd.PersistentFlags().Lookup("db"))
	_ = v.BindPFlag("storage.backend", rootCmd.PersistentFlags().Lookup("backend"))
	_ = v.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.AddCommand(serveCmd, generateCmd, criticalCmd, statsCmd, clearCmd, benchmarkCmd, exportCmd, importCmd)
}

// openStore opens the configured storage backend. Callers must Close it.
func openStore(ctx context.Context) (storage.Storage, error) {
	cfg := config.Storage
	cfg.Logger = logger
	return storage.NewStorage(ctx, cfg)
}

// closeStore closes store and logs any error.
func closeStore(store storage.Storage) {
	if err := store.Close(); err != nil {
		logger.Error("error closing storage", "error", err)
	}
}
