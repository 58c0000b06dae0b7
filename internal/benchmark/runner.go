// Package benchmark measures the power of goodness-of-fit tests against
// samples kept in the sample store.
package benchmark

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/fidde/stattest/internal/cache"
	"github.com/fidde/stattest/internal/config"
	"github.com/fidde/stattest/internal/generator"
	"github.com/fidde/stattest/internal/metrics"
	"github.com/fidde/stattest/internal/stattest"
	"github.com/fidde/stattest/internal/storage"
	"github.com/fidde/stattest/pkg/models"
)

// Store is what a run reads samples from and writes results to.
type Store interface {
	storage.SampleStore
	storage.BenchmarkStore
}

// Runner executes run plans.
type Runner struct {
	store  Store
	cache  *cache.MonteCarlo
	logger *slog.Logger
}

// NewRunner creates a runner. Critical values are looked up through c.
func NewRunner(store Store, c *cache.MonteCarlo, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{store: store, cache: c, logger: logger}
}

// Run tops up the sample store so every (generator, size) pair has
// plan.Count samples, then records one result per (test, size). A result
// holds the rejection rate at plan.Alpha for each generator, in plan order.
func (r *Runner) Run(ctx context.Context, plan *config.Plan) ([]*models.BenchmarkResult, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	logger := r.logger.With("run_id", runID)
	start := time.Now()

	for gi, code := range plan.Generators {
		for _, size := range plan.Sizes {
			src := rand.NewPCG(plan.Seed, uint64(gi)<<32|uint64(size))
			if err := r.ensureSamples(ctx, logger, code, size, plan.Count, src); err != nil {
				return nil, err
			}
		}
	}

	var results []*models.BenchmarkResult
	for _, testCode := range plan.Tests {
		stat, err := stattest.Lookup(testCode)
		if err != nil {
			return nil, err
		}
		gof := stattest.New(stat, r.cache, stattest.Config{
			Count:  plan.Simulations,
			Seed:   plan.Seed,
			Logger: r.logger,
		})

		for _, size := range plan.Sizes {
			crit, err := gof.CriticalValue(ctx, size, plan.Alpha)
			if err != nil {
				return nil, fmt.Errorf("critical value for %s at size %d: %w", testCode, size, err)
			}

			powers := make([]float64, 0, len(plan.Generators))
			for _, code := range plan.Generators {
				p, err := r.power(ctx, stat, code, size, plan.Count, crit)
				if err != nil {
					return nil, err
				}
				powers = append(powers, p)
			}

			result := &models.BenchmarkResult{
				RunID:     runID,
				TestCode:  testCode,
				Size:      size,
				Benchmark: powers,
			}
			if err := r.store.InsertBenchmark(ctx, result); err != nil {
				return nil, fmt.Errorf("recording benchmark: %w", err)
			}
			results = append(results, result)

			logger.Info("benchmark recorded", "test", testCode, "size", size, "critical_value", crit, "power", powers)
		}
	}

	logger.Info("benchmark run finished", "results", len(results), "duration", time.Since(start))
	return results, nil
}

func (r *Runner) ensureSamples(ctx context.Context, logger *slog.Logger, code string, size, count int, src rand.Source) error {
	have, err := r.store.GetSampleCount(ctx, code, size)
	if err != nil {
		return fmt.Errorf("counting samples %s/%d: %w", code, size, err)
	}
	if have >= count {
		return nil
	}

	gen, err := generator.Parse(code, src)
	if err != nil {
		return err
	}

	batch := make([][]float64, count-have)
	for i := range batch {
		batch[i] = gen.Generate(size)
	}
	if err := r.store.InsertAllSamples(ctx, code, size, batch); err != nil {
		return fmt.Errorf("storing samples %s/%d: %w", code, size, err)
	}

	metrics.RecordSamplesGenerated(code, len(batch))
	logger.Debug("generated samples", "code", code, "size", size, "count", len(batch))
	return nil
}

// power returns the fraction of the first count samples that stat rejects.
// Samples outside the statistic's domain count as rejected.
func (r *Runner) power(ctx context.Context, stat stattest.Statistic, code string, size, count int, crit float64) (float64, error) {
	samples, err := r.store.GetSamples(ctx, code, size)
	if err != nil {
		return 0, fmt.Errorf("reading samples %s/%d: %w", code, size, err)
	}
	if len(samples) > count {
		samples = samples[:count]
	}
	if len(samples) == 0 {
		return 0, fmt.Errorf("no samples for %s/%d", code, size)
	}

	rejected := 0
	for _, rvs := range samples {
		s, err := stat.Execute(rvs)
		switch {
		case errors.Is(err, stattest.ErrInvalidSample):
			rejected++
		case err != nil:
			return 0, err
		case s > crit:
			rejected++
		}
	}
	return float64(rejected) / float64(len(samples)), nil
}
