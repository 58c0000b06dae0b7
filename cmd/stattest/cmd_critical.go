package main

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fidde/stattest/internal/benchmark"
	"github.com/fidde/stattest/internal/cache"
	appconfig "github.com/fidde/stattest/internal/config"
	"github.com/fidde/stattest/internal/stattest"
	"github.com/fidde/stattest/pkg/models"
)

var (
	criticalCmd = &cobra.Command{
		Use:   "critical <test> <size>",
		Short: "Print the critical value of a test, simulating it if needed",
		Long: `Prints the upper alpha critical value of a goodness-of-fit statistic at the
given sample size. Values are cached in the key-value store; the first
request for a (test, size) pair runs a Monte Carlo simulation.

Tests: ` + strings.Join(stattest.Codes(), ", "),
		Args: cobra.ExactArgs(2),
		RunE: runCritical,
	}

	benchmarkCmd = &cobra.Command{
		Use:   "benchmark",
		Short: "Run a power benchmark described by a plan file",
		Args:  cobra.NoArgs,
		RunE:  runBenchmark,
	}
)

func init() {
	criticalCmd.Flags().Float64("alpha", 0.05, "significance level")
	criticalCmd.Flags().Int("count", 0, "simulated statistics (default from simulation.count)")

	benchmarkCmd.Flags().String("plan", "", "YAML run plan (default plan when empty)")
}

func runCritical(cmd *cobra.Command, args []string) error {
	stat, err := stattest.Lookup(args[0])
	if err != nil {
		return err
	}
	size, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid size %q: %w", args[1], err)
	}
	alpha, _ := cmd.Flags().GetFloat64("alpha")

	store, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer closeStore(store)

	sim := config.simulation(logger)
	if count, _ := cmd.Flags().GetInt("count"); count > 0 {
		sim.Count = count
	}

	gof := stattest.New(stat, cache.New(store, store, logger), sim)
	crit, err := gof.CriticalValue(cmd.Context(), size, alpha)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s n=%d alpha=%g: %g\n", stat.Code(), size, alpha, crit)
	return nil
}

func runBenchmark(cmd *cobra.Command, args []string) error {
	plan := appconfig.DefaultPlan()
	if path, _ := cmd.Flags().GetString("plan"); path != "" {
		var err error
		if plan, err = appconfig.LoadPlan(path); err != nil {
			return err
		}
	}

	store, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer closeStore(store)

	runner := benchmark.NewRunner(store, cache.New(store, store, logger), logger)
	results, err := runner.Run(cmd.Context(), plan)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "generators: %s\n\n", strings.Join(plan.Generators, ", "))
	printBenchmarks(cmd, results)
	return nil
}

func printBenchmarks(cmd *cobra.Command, results []*models.BenchmarkResult) {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TEST\tSIZE\tPOWER")
	for _, r := range results {
		powers := make([]string, len(r.Benchmark))
		for i, p := range r.Benchmark {
			powers[i] = strconv.FormatFloat(p, 'f', 3, 64)
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\n", r.TestCode, r.Size, strings.Join(powers, " "))
	}
	tw.Flush()
}
