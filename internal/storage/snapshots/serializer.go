package snapshots

import (
	"context"
	"fmt"
	"time"

	"github.com/fidde/stattest/pkg/models"
)

// Source is what a snapshot is read from.
type Source interface {
	GetSampleStats(ctx context.Context) ([]models.SampleStat, error)
	GetSamples(ctx context.Context, code string, size int) ([][]float64, error)
	GetBenchmarks(ctx context.Context, offset, limit int) ([]*models.BenchmarkResult, error)
	ListValues(ctx context.Context) ([]models.KeyValueEntry, error)
}

// Sink is what a snapshot is restored into.
type Sink interface {
	InsertAllSamples(ctx context.Context, code string, size int, samples [][]float64) error
	InsertBenchmark(ctx context.Context, result *models.BenchmarkResult) error
	StoreValue(ctx context.Context, key string, value models.Value) error
}

// Serializer handles conversion between live store data and snapshots.
type Serializer struct{}

// NewSerializer creates a new serializer.
func NewSerializer() *Serializer {
	return &Serializer{}
}

// MarshalValues converts key-value entries to their JSON form.
func (s *Serializer) MarshalValues(entries []models.KeyValueEntry) []*models.SerializedValue {
	if len(entries) == 0 {
		return nil
	}

	result := make([]*models.SerializedValue, 0, len(entries))
	for _, e := range entries {
		result = append(result, &models.SerializedValue{
			Key:   e.Key,
			Type:  string(e.Value.Type()),
			Value: e.Value.Encode(),
		})
	}
	return result
}

// UnmarshalValues converts serialized values back to entries.
func (s *Serializer) UnmarshalValues(values []*models.SerializedValue) ([]models.KeyValueEntry, error) {
	if len(values) == 0 {
		return nil, nil
	}

	result := make([]models.KeyValueEntry, 0, len(values))
	for _, sv := range values {
		v, err := models.DecodeValue(sv.Type, sv.Value)
		if err != nil {
			return nil, fmt.Errorf("unmarshaling value %s: %w", sv.Key, err)
		}
		result = append(result, models.KeyValueEntry{Key: sv.Key, Value: v})
	}
	return result, nil
}

// Create builds a snapshot from the current state of src.
func (s *Serializer) Create(ctx context.Context, opts models.SnapshotSaveOptions, src Source) (*models.Snapshot, error) {
	snap := &models.Snapshot{
		Version:     CurrentVersion,
		ID:          opts.Name,
		Description: opts.Description,
		Created:     time.Now().UTC(),
		Sections:    opts.Sections,
	}

	if len(snap.Sections) == 0 {
		snap.Sections = []string{models.SectionSamples, models.SectionBenchmarks, models.SectionValues}
	}

	if models.ContainsSection(opts.Sections, models.SectionSamples) {
		stats, err := src.GetSampleStats(ctx)
		if err != nil {
			return nil, fmt.Errorf("reading sample stats: %w", err)
		}

		codes := make(map[string]struct{})
		for _, st := range stats {
			if !models.ContainsCode(opts.Codes, st.Code) {
				continue
			}
			samples, err := src.GetSamples(ctx, st.Code, st.Size)
			if err != nil {
				return nil, fmt.Errorf("reading samples %s/%d: %w", st.Code, st.Size, err)
			}
			snap.Data.Samples = append(snap.Data.Samples, &models.SerializedSampleSet{
				Code:    st.Code,
				Size:    st.Size,
				Samples: samples,
			})
			snap.Stats.SampleCount += len(samples)
			if _, seen := codes[st.Code]; !seen {
				codes[st.Code] = struct{}{}
				snap.Stats.Codes = append(snap.Stats.Codes, st.Code)
			}
		}
	}

	if models.ContainsSection(opts.Sections, models.SectionBenchmarks) {
		results, err := src.GetBenchmarks(ctx, 0, 0)
		if err != nil {
			return nil, fmt.Errorf("reading benchmarks: %w", err)
		}
		for _, r := range results {
			if models.ContainsCode(opts.Codes, r.TestCode) {
				snap.Data.Benchmarks = append(snap.Data.Benchmarks, r)
			}
		}
		snap.Stats.BenchmarkCount = len(snap.Data.Benchmarks)
	}

	if models.ContainsSection(opts.Sections, models.SectionValues) {
		entries, err := src.ListValues(ctx)
		if err != nil {
			return nil, fmt.Errorf("reading values: %w", err)
		}
		snap.Data.Values = s.MarshalValues(entries)
		snap.Stats.ValueCount = len(snap.Data.Values)
	}

	return snap, nil
}

// Restore writes the contents of snap into dst. Samples and benchmark
// results are appended; key-value entries overwrite existing keys.
func (s *Serializer) Restore(ctx context.Context, snap *models.Snapshot, dst Sink) (*models.SnapshotLoadResult, error) {
	result := &models.SnapshotLoadResult{SnapshotID: snap.ID}

	for _, set := range snap.Data.Samples {
		if err := dst.InsertAllSamples(ctx, set.Code, set.Size, set.Samples); err != nil {
			return result, fmt.Errorf("restoring samples %s/%d: %w", set.Code, set.Size, err)
		}
		result.SamplesLoaded += len(set.Samples)
	}

	for _, b := range snap.Data.Benchmarks {
		c := *b
		c.ID = 0
		if err := dst.InsertBenchmark(ctx, &c); err != nil {
			return result, fmt.Errorf("restoring benchmark %s/%d: %w", b.TestCode, b.Size, err)
		}
		result.BenchmarksLoaded++
	}

	entries, err := s.UnmarshalValues(snap.Data.Values)
	if err != nil {
		return result, err
	}
	for _, e := range entries {
		if err := dst.StoreValue(ctx, e.Key, e.Value); err != nil {
			return result, fmt.Errorf("restoring value %s: %w", e.Key, err)
		}
		result.ValuesLoaded++
	}

	return result, nil
}
