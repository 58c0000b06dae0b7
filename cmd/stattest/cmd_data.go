package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fidde/stattest/internal/generator"
	"github.com/fidde/stattest/internal/metrics"
	"github.com/fidde/stattest/internal/storage"
	"github.com/fidde/stattest/internal/storage/clickhouse"
	"github.com/fidde/stattest/internal/storage/snapshots"
	"github.com/fidde/stattest/pkg/models"
)

var (
	generateCmd = &cobra.Command{
		Use:     "generate <generator>",
		Short:   "Generate samples into the sample store",
		Example: `  stattest generate "weibull(1.5, 1)" --size 20 --count 1000`,
		Args:    cobra.ExactArgs(1),
		RunE:    runGenerate,
	}

	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show sample counts per (code, size)",
		Args:  cobra.NoArgs,
		RunE:  runStats,
	}

	clearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Remove all samples; --purge deletes the SQLite files or truncates every ClickHouse table",
		Args:  cobra.NoArgs,
		RunE:  runClear,
	}

	exportCmd = &cobra.Command{
		Use:   "export <file>",
		Short: "Write the stores to a gzip-compressed JSON snapshot",
		Args:  cobra.ExactArgs(1),
		RunE:  runExport,
	}

	importCmd = &cobra.Command{
		Use:   "import <file>",
		Short: "Load a snapshot written by export",
		Args:  cobra.ExactArgs(1),
		RunE:  runImport,
	}
)

func init() {
	generateCmd.Flags().Int("size", 10, "sample size")
	generateCmd.Flags().Int("count", 1000, "number of samples")
	generateCmd.Flags().Uint64("seed", 1, "random seed")

	statsCmd.Flags().Bool("benchmarks", false, "also list recorded benchmark results")

	clearCmd.Flags().Bool("purge", false, "delete everything: the SQLite database files, or every ClickHouse table")

	exportCmd.Flags().String("name", "export", "snapshot name")
	exportCmd.Flags().String("description", "", "snapshot description")
	exportCmd.Flags().StringSlice("sections", nil, "sections to export (samples, benchmarks, values)")
	exportCmd.Flags().StringSlice("codes", nil, "only export these sample and test codes")

	importCmd.Flags().Bool("replace", false, "clear existing samples before loading")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	size, _ := cmd.Flags().GetInt("size")
	count, _ := cmd.Flags().GetInt("count")
	seed, _ := cmd.Flags().GetUint64("seed")
	if size < 1 || count < 1 {
		return fmt.Errorf("size and count must be positive")
	}

	gen, err := generator.Parse(args[0], rand.NewPCG(seed, uint64(size)))
	if err != nil {
		return err
	}

	store, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer closeStore(store)

	samples := make([][]float64, count)
	for i := range samples {
		samples[i] = gen.Generate(size)
	}
	if err := store.InsertAllSamples(cmd.Context(), gen.Code(), size, samples); err != nil {
		return err
	}
	metrics.RecordSamplesGenerated(gen.Code(), count)

	total, err := store.GetSampleCount(cmd.Context(), gen.Code(), size)
	if err != nil {
		return err
	}
	logger.Info("samples generated", "code", gen.Code(), "size", size, "inserted", count, "total", total)
	fmt.Fprintf(cmd.OutOrStdout(), "%s size=%d: inserted %d, total %d\n", gen.Code(), size, count, total)
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	store, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer closeStore(store)

	stats, err := store.GetSampleStats(cmd.Context())
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CODE\tSIZE\tCOUNT")
	for _, st := range stats {
		fmt.Fprintf(tw, "%s\t%d\t%d\n", st.Code, st.Size, st.Count)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if withBenchmarks, _ := cmd.Flags().GetBool("benchmarks"); withBenchmarks {
		results, err := store.GetBenchmarks(cmd.Context(), 0, 0)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout())
		printBenchmarks(cmd, results)
	}
	return nil
}

// truncater is implemented by backends that can empty every table.
type truncater interface {
	Clear(ctx context.Context) error
}

var _ truncater = (*clickhouse.Store)(nil)

func runClear(cmd *cobra.Command, args []string) error {
	purge, _ := cmd.Flags().GetBool("purge")
	if purge && (config.Storage.Backend == "" || config.Storage.Backend == "sqlite") {
		if err := storage.RemoveDatabase(config.Storage.SQLitePath); err != nil {
			return err
		}
		logger.Info("database removed", "path", config.Storage.SQLitePath)
		return nil
	}

	store, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer closeStore(store)

	if purge {
		t, ok := store.(truncater)
		if !ok {
			return fmt.Errorf("--purge is not supported by the %s backend", config.Storage.Backend)
		}
		if err := t.Clear(cmd.Context()); err != nil {
			return err
		}
		logger.Info("all tables truncated", "backend", config.Storage.Backend)
		return nil
	}

	if err := store.ClearAllSamples(cmd.Context()); err != nil {
		return err
	}
	logger.Info("samples cleared")
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	var opts models.SnapshotSaveOptions
	opts.Name, _ = cmd.Flags().GetString("name")
	opts.Description, _ = cmd.Flags().GetString("description")
	opts.Sections, _ = cmd.Flags().GetStringSlice("sections")
	opts.Codes, _ = cmd.Flags().GetStringSlice("codes")
	if err := opts.Validate(); err != nil {
		return err
	}

	store, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer closeStore(store)

	snap, err := snapshots.NewSerializer().Create(cmd.Context(), opts, store)
	if err != nil {
		return err
	}
	if err := snapshots.WriteFile(args[0], snap); err != nil {
		return err
	}

	logger.Info("snapshot exported", "file", args[0],
		"samples", snap.Stats.SampleCount,
		"benchmarks", snap.Stats.BenchmarkCount,
		"values", snap.Stats.ValueCount)
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	snap, err := snapshots.ReadFile(args[0])
	if err != nil {
		return err
	}

	store, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer closeStore(store)

	if replace, _ := cmd.Flags().GetBool("replace"); replace {
		if err := store.ClearAllSamples(cmd.Context()); err != nil {
			return err
		}
	}

	result, err := snapshots.NewSerializer().Restore(cmd.Context(), snap, store)
	if err != nil {
		return err
	}

	logger.Info("snapshot imported", "file", args[0],
		"samples", result.SamplesLoaded,
		"benchmarks", result.BenchmarksLoaded,
		"values", result.ValuesLoaded)
	return nil
}
