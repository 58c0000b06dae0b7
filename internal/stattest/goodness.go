package stattest

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"runtime"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/fidde/stattest/internal/cache"
	"github.com/fidde/stattest/internal/generator"
	"github.com/fidde/stattest/internal/metrics"
)

// Config controls Monte Carlo simulation.
type Config struct {
	// Count is the number of simulated statistics per distribution
	Count int

	// Workers bounds simulation parallelism
	Workers int

	// Seed makes simulations reproducible. Statistics are drawn in blocks
	// of simulationBlock and block b uses rand.NewPCG(Seed, b), so the
	// result does not depend on Workers.
	Seed uint64

	Logger *slog.Logger
}

// simulationBlock is the number of statistics drawn from one random stream.
const simulationBlock = 1024

// DefaultConfig returns the default simulation settings.
func DefaultConfig() Config {
	return Config{
		Count:   100_000,
		Workers: runtime.GOMAXPROCS(0),
		Seed:    1,
	}
}

// GoodnessOfFit runs a statistic against critical values that are looked
// up in a cache, derived from a cached distribution, or simulated.
type GoodnessOfFit struct {
	statistic Statistic
	cache     *cache.MonteCarlo
	config    Config
	logger    *slog.Logger

	group singleflight.Group
}

// New creates a goodness-of-fit test for statistic backed by c.
func New(statistic Statistic, c *cache.MonteCarlo, config Config) *GoodnessOfFit {
	if config.Count <= 0 {
		config.Count = DefaultConfig().Count
	}
	if config.Workers <= 0 {
		config.Workers = runtime.GOMAXPROCS(0)
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &GoodnessOfFit{
		statistic: statistic,
		cache:     c,
		config:    config,
		logger:    logger,
	}
}

// Statistic returns the test statistic.
func (g *GoodnessOfFit) Statistic() Statistic {
	return g.statistic
}

// CriticalValue returns the critical value of the statistic for samples of
// the given size at significance level alpha. Values computed here are
// flushed to the store before returning. Concurrent calls for the same
// size and level share one computation.
func (g *GoodnessOfFit) CriticalValue(ctx context.Context, size int, alpha float64) (float64, error) {
	if !(alpha > 0 && alpha < 1) {
		return 0, fmt.Errorf("%w: %v", ErrInvalidAlpha, alpha)
	}
	if size < 1 {
		return 0, fmt.Errorf("%w: size %d", ErrInvalidSample, size)
	}

	key, err := cache.Key(g.statistic.Code(), size, alpha)
	if err != nil {
		return 0, err
	}

	v, err, _ := g.group.Do(key, func() (any, error) {
		return g.criticalValue(ctx, size, alpha)
	})
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

func (g *GoodnessOfFit) criticalValue(ctx context.Context, size int, alpha float64) (float64, error) {
	code := g.statistic.Code()

	if v, ok, err := g.cache.GetWithLevel(ctx, code, size, alpha); err != nil {
		return 0, err
	} else if ok {
		return v, nil
	}

	dist, ok, err := g.cache.GetDistribution(ctx, code, size)
	if err != nil {
		return 0, err
	}
	if !ok {
		dist, err = g.Simulate(ctx, size)
		if err != nil {
			return 0, err
		}
		if err := g.cache.PutDistribution(ctx, code, size, dist); err != nil {
			return 0, err
		}
	}

	v := Quantile(dist, 1-alpha)
	if err := g.cache.PutWithLevel(ctx, code, size, alpha, v); err != nil {
		return 0, err
	}
	if err := g.cache.Flush(ctx); err != nil {
		return 0, err
	}

	g.logger.Debug("computed critical value", "test", code, "size", size, "alpha", alpha, "value", v, "simulated", !ok)
	return v, nil
}

// Simulate draws Count samples of the given size from the null
// distribution and returns the statistic of each. The output depends only
// on Seed and Count.
func (g *GoodnessOfFit) Simulate(ctx context.Context, size int) ([]float64, error) {
	start := time.Now()
	code := g.statistic.Code()
	results := make([]float64, g.config.Count)

	blocks := (g.config.Count + simulationBlock - 1) / simulationBlock
	workers := min(g.config.Workers, blocks)
	var next atomic.Int64

	eg, ctx := errgroup.WithContext(ctx)
	for range workers {
		eg.Go(func() error {
			for {
				b := int(next.Add(1) - 1)
				if b >= blocks {
					return nil
				}
				if err := ctx.Err(); err != nil {
					return err
				}

				gen, err := generator.Parse(g.statistic.Null(), rand.NewPCG(g.config.Seed, uint64(b)))
				if err != nil {
					return err
				}
				lo := b * simulationBlock
				hi := min(lo+simulationBlock, g.config.Count)
				for i := lo; i < hi; i++ {
					s, err := g.statistic.Execute(gen.Generate(size))
					if err != nil {
						return err
					}
					results[i] = s
				}
			}
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("simulating %s at size %d: %w", code, size, err)
	}

	elapsed := time.Since(start)
	metrics.RecordSimulation(code, elapsed.Seconds())
	g.logger.Info("monte carlo simulation finished", "test", code, "size", size, "count", g.config.Count, "duration", elapsed)
	return results, nil
}

// Test reports whether the null hypothesis is accepted for rvs at level
// alpha: the statistic must not exceed the critical value.
func (g *GoodnessOfFit) Test(ctx context.Context, rvs []float64, alpha float64) (bool, error) {
	s, err := g.statistic.Execute(rvs)
	if err != nil {
		return false, err
	}
	crit, err := g.CriticalValue(ctx, len(rvs), alpha)
	if err != nil {
		return false, err
	}
	return s <= crit, nil
}

// Quantile returns the p-quantile of the distinct values of dist,
// interpolating linearly between order statistics at position (n-1)p
// (Hyndman and Fan type 7). dist is not modified and must not be empty.
func Quantile(dist []float64, p float64) float64 {
	x := make([]float64, len(dist))
	copy(x, dist)
	sort.Float64s(x)

	// distinct values only
	u := x[:0]
	for _, v := range x {
		if len(u) == 0 || v != u[len(u)-1] {
			u = append(u, v)
		}
	}

	h := float64(len(u)-1) * p
	lo := int(math.Floor(h))
	switch {
	case lo < 0:
		return u[0]
	case lo >= len(u)-1:
		return u[len(u)-1]
	}
	return u[lo] + (h-float64(lo))*(u[lo+1]-u[lo])
}
