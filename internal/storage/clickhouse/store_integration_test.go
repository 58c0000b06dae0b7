//go:build integration

package clickhouse

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/fidde/stattest/pkg/models"
)

// TestClickHouseIntegration tests basic ClickHouse operations
// Run with: go test -tags=integration ./internal/storage/clickhouse -v
func TestClickHouseIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	ctx := context.Background()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	config := DefaultConfig()
	if addr := os.Getenv("CLICKHOUSE_ADDR"); addr != "" {
		config.Addr = addr
	}
	config.MaxRetries = 1

	store, err := NewStore(ctx, config, logger)
	if err != nil {
		t.Skipf("ClickHouse not available: %v", err)
	}
	defer store.Close()

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	t.Run("KeyValue", func(t *testing.T) {
		ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.FixedZone("X", 3*3600))
		if err := store.StoreValue(ctx, "when", models.DatetimeValue(ts)); err != nil {
			t.Fatalf("StoreValue failed: %v", err)
		}
		if err := store.StoreValue(ctx, "when", models.FloatValue(1.5)); err != nil {
			t.Fatalf("overwrite failed: %v", err)
		}

		if _, ok, _ := store.GetDatetimeValue(ctx, "when"); ok {
			t.Error("old datetime should be replaced")
		}
		f, ok, err := store.GetFloatValue(ctx, "when")
		if err != nil || !ok || f != 1.5 {
			t.Errorf("GetFloatValue = %v, %v, %v", f, ok, err)
		}

		if err := store.DeleteValue(ctx, "when"); err != nil {
			t.Fatalf("DeleteValue failed: %v", err)
		}
		if _, ok, _ := store.GetValue(ctx, "when"); ok {
			t.Error("expected key to be deleted")
		}
	})

	t.Run("Samples", func(t *testing.T) {
		if err := store.InsertAllSamples(ctx, "t", 10, [][]float64{{0.5, 0.7}, {1, 2}}); err != nil {
			t.Fatalf("InsertAllSamples failed: %v", err)
		}
		if err := store.InsertSample(ctx, "t", 20, []float64{3}); err != nil {
			t.Fatalf("InsertSample failed: %v", err)
		}

		samples, err := store.GetSamples(ctx, "t", 10)
		if err != nil {
			t.Fatalf("GetSamples failed: %v", err)
		}
		if len(samples) != 2 || samples[0][1] != 0.7 {
			t.Errorf("unexpected samples %v", samples)
		}

		stats, err := store.GetSampleStats(ctx)
		if err != nil {
			t.Fatalf("GetSampleStats failed: %v", err)
		}
		if len(stats) != 2 || stats[0].Count != 2 || stats[1].Count != 1 {
			t.Errorf("unexpected stats %v", stats)
		}

		if err := store.ClearAllSamples(ctx); err != nil {
			t.Fatalf("ClearAllSamples failed: %v", err)
		}
		if n, _ := store.GetSampleCount(ctx, "t", 10); n != 0 {
			t.Errorf("expected 0 after clear, got %d", n)
		}
	})

	t.Run("Benchmarks", func(t *testing.T) {
		r := &models.BenchmarkResult{TestCode: "KS_exp", Size: 10, Benchmark: []float64{0.3}}
		if err := store.InsertBenchmark(ctx, r); err != nil {
			t.Fatalf("InsertBenchmark failed: %v", err)
		}
		got, err := store.GetBenchmark(ctx, "KS_exp", 10)
		if err != nil || len(got) != 1 || got[0] != 0.3 {
			t.Errorf("GetBenchmark = %v, %v", got, err)
		}
	})

	t.Run("Clear", func(t *testing.T) {
		if err := store.StoreValue(ctx, "gone", models.IntValue(1)); err != nil {
			t.Fatalf("StoreValue failed: %v", err)
		}
		if err := store.InsertSample(ctx, "t", 3, []float64{1, 2, 3}); err != nil {
			t.Fatalf("InsertSample failed: %v", err)
		}

		if err := store.Clear(ctx); err != nil {
			t.Fatalf("Clear failed: %v", err)
		}

		if _, ok, _ := store.GetValue(ctx, "gone"); ok {
			t.Error("expected value to be removed")
		}
		if stats, _ := store.GetSampleStats(ctx); len(stats) != 0 {
			t.Errorf("expected no samples, got %v", stats)
		}
		if results, _ := store.GetBenchmarks(ctx, 0, 0); len(results) != 0 {
			t.Errorf("expected no benchmarks, got %d", len(results))
		}
	})
}
