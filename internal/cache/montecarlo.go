// Package cache memoizes Monte Carlo critical values and the simulated
// distributions they are derived from.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/fidde/stattest/internal/metrics"
	"github.com/fidde/stattest/internal/storage"
	"github.com/fidde/stattest/pkg/models"
)

// DistributionPrefix is prepended to a test code to form the sample store
// code under which its simulated distributions are kept.
const DistributionPrefix = "dist_"

// ErrEmptyDistribution is returned when storing a distribution with no
// values.
var ErrEmptyDistribution = errors.New("empty distribution")

// Key builds the key-value store key for a critical value: the test code,
// sample size and significance level joined with ';'.
func Key(testCode string, size int, alpha float64) (string, error) {
	key := strings.Join([]string{
		testCode,
		strconv.Itoa(size),
		strconv.FormatFloat(alpha, 'g', -1, 64),
	}, ";")
	if err := models.ValidateKey(key); err != nil {
		return "", err
	}
	return key, nil
}

// MonteCarlo caches critical values in a key-value store and empirical
// distributions in a sample store. Critical-value writes are buffered until
// Flush.
type MonteCarlo struct {
	values  storage.KeyValueStore
	samples storage.SampleStore
	logger  *slog.Logger

	mu      sync.Mutex
	pending map[string]float64
}

// New creates a cache over the given stores. A nil logger means
// slog.Default().
func New(values storage.KeyValueStore, samples storage.SampleStore, logger *slog.Logger) *MonteCarlo {
	if logger == nil {
		logger = slog.Default()
	}
	return &MonteCarlo{
		values:  values,
		samples: samples,
		logger:  logger,
		pending: make(map[string]float64),
	}
}

// GetWithLevel returns the critical value for (testCode, size, alpha),
// looking at unflushed writes before the store.
func (c *MonteCarlo) GetWithLevel(ctx context.Context, testCode string, size int, alpha float64) (float64, bool, error) {
	key, err := Key(testCode, size, alpha)
	if err != nil {
		return 0, false, err
	}

	c.mu.Lock()
	v, ok := c.pending[key]
	c.mu.Unlock()
	if ok {
		metrics.RecordCacheLookup("value", true)
		return v, true, nil
	}

	v, ok, err = c.values.GetFloatValue(ctx, key)
	if err != nil {
		return 0, false, fmt.Errorf("reading critical value %s: %w", key, err)
	}
	metrics.RecordCacheLookup("value", ok)
	return v, ok, nil
}

// PutWithLevel buffers a critical value. It is persisted by Flush.
func (c *MonteCarlo) PutWithLevel(ctx context.Context, testCode string, size int, alpha, value float64) error {
	key, err := Key(testCode, size, alpha)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.pending[key] = value
	c.mu.Unlock()
	return nil
}

// Pending returns the number of buffered critical values.
func (c *MonteCarlo) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Flush writes every buffered critical value to the key-value store. Values
// that could not be written stay buffered.
func (c *MonteCarlo) Flush(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.pending))
	for k := range c.pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	written := 0
	defer func() { metrics.RecordCacheFlush(written) }()

	for _, k := range keys {
		if err := c.values.StoreValue(ctx, k, models.FloatValue(c.pending[k])); err != nil {
			c.logger.Warn("cache flush failed", "key", k, "remaining", len(c.pending), "error", err)
			return fmt.Errorf("flushing critical value %s: %w", k, err)
		}
		delete(c.pending, k)
		written++
	}

	if written > 0 {
		c.logger.Debug("flushed critical values", "count", written)
	}
	return nil
}

// GetDistribution returns the most recently stored distribution for
// (testCode, size).
func (c *MonteCarlo) GetDistribution(ctx context.Context, testCode string, size int) ([]float64, bool, error) {
	rows, err := c.samples.GetSamples(ctx, DistributionPrefix+testCode, size)
	if err != nil {
		return nil, false, fmt.Errorf("reading distribution %s/%d: %w", testCode, size, err)
	}
	if len(rows) == 0 {
		metrics.RecordCacheLookup("distribution", false)
		return nil, false, nil
	}
	metrics.RecordCacheLookup("distribution", true)
	return rows[len(rows)-1], true, nil
}

// PutDistribution stores a distribution for (testCode, size). It supersedes
// any distribution stored earlier for the same pair.
func (c *MonteCarlo) PutDistribution(ctx context.Context, testCode string, size int, dist []float64) error {
	if len(dist) == 0 {
		return ErrEmptyDistribution
	}
	if err := c.samples.InsertSample(ctx, DistributionPrefix+testCode, size, dist); err != nil {
		return fmt.Errorf("storing distribution %s/%d: %w", testCode, size, err)
	}
	return nil
}
