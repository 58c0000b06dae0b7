package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, "stattest.db", cfg.Storage.SQLitePath)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr)
	assert.Equal(t, 100_000, cfg.Simulation.Count)
	assert.Equal(t, uint64(1), cfg.Simulation.Seed)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stattest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  backend: badger
  badger_path: /tmp/b
simulation:
  count: 5000
logging:
  format: json
`), 0o644))

	t.Setenv("STATTEST_SIMULATION_SEED", "42")
	t.Setenv("STATTEST_STORAGE_BACKEND", "memory")

	cfg, err := LoadConfig(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, "/tmp/b", cfg.Storage.BadgerPath)
	assert.Equal(t, 5000, cfg.Simulation.Count)
	assert.Equal(t, uint64(42), cfg.Simulation.Seed)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(viper.New(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	logger, err := NewLogger(LoggingConfig{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("shown", "code", "exp(1)")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"code":"exp(1)"`)

	_, err = NewLogger(LoggingConfig{Level: "loud"}, &buf)
	assert.Error(t, err)
	_, err = NewLogger(LoggingConfig{Level: "info", Format: "xml"}, &buf)
	assert.Error(t, err)
}

func execute(t *testing.T, args ...string) string {
	t.Helper()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute(), strings.Join(args, " "))
	return out.String()
}

func TestCommands(t *testing.T) {
	t.Chdir(t.TempDir())
	db := filepath.Join(t.TempDir(), "cli.db")
	snap := filepath.Join(t.TempDir(), "snap.json.gz")

	out := execute(t, "--db", db, "--log-level", "error", "generate", "exp( 1 )", "--size", "5", "--count", "10")
	assert.Contains(t, out, "exp(1) size=5: inserted 10, total 10")

	out = execute(t, "--db", db, "--log-level", "error", "stats")
	assert.Regexp(t, `exp\(1\)\s+5\s+10`, out)

	execute(t, "--db", db, "--log-level", "error", "export", snap)
	_, err := os.Stat(snap)
	require.NoError(t, err)

	execute(t, "--db", db, "--log-level", "error", "import", snap, "--replace")
	out = execute(t, "--db", db, "--log-level", "error", "stats")
	assert.Regexp(t, `exp\(1\)\s+5\s+10`, out)

	out = execute(t, "--db", db, "--log-level", "error", "critical", "KS_exp", "5", "--count", "200")
	assert.Contains(t, out, "KS_exp n=5 alpha=0.05:")

	execute(t, "--db", db, "--log-level", "error", "clear", "--purge")
	_, err = os.Stat(db)
	assert.True(t, os.IsNotExist(err))
}

func TestClearPurgeUnsupportedBackend(t *testing.T) {
	t.Chdir(t.TempDir())

	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"--backend", "memory", "--log-level", "error", "clear", "--purge"})
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not supported by the memory backend")
}
