package models

import (
	"errors"
	"regexp"
	"time"
)

// Snapshot naming validation
var snapshotNameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9\-]*[a-z0-9]$|^[a-z0-9]$`)

// Snapshot sections
const (
	SectionSamples    = "samples"
	SectionBenchmarks = "benchmarks"
	SectionValues     = "values"
)

// Snapshot errors
var (
	ErrSnapshotNotFound    = errors.New("snapshot not found")
	ErrInvalidSnapshotName = errors.New("invalid snapshot name: must be lowercase alphanumeric with hyphens")
	ErrSnapshotTooLarge    = errors.New("snapshot exceeds size limit")
	ErrTooManySnapshots    = errors.New("maximum number of snapshots reached")
)

// ValidateSnapshotName checks if a snapshot name is valid.
func ValidateSnapshotName(name string) error {
	if name == "" || len(name) > 128 {
		return ErrInvalidSnapshotName
	}
	if !snapshotNameRegex.MatchString(name) {
		return ErrInvalidSnapshotName
	}
	return nil
}

// SnapshotMetadata describes a saved snapshot without its data.
type SnapshotMetadata struct {
	ID          string        `json:"id"`
	Description string        `json:"description,omitempty"`
	Created     time.Time     `json:"created"`
	Sections    []string      `json:"sections"`
	SizeBytes   int64         `json:"size_bytes"`
	Stats       SnapshotStats `json:"stats"`
}

// SnapshotStats contains summary counts.
type SnapshotStats struct {
	SampleCount    int      `json:"sample_count"`
	BenchmarkCount int      `json:"benchmark_count"`
	ValueCount     int      `json:"value_count"`
	Codes          []string `json:"codes"`
}

// Snapshot is a portable copy of a store's samples, benchmark results and
// key-value entries.
type Snapshot struct {
	Version     int           `json:"version"`
	ID          string        `json:"id"`
	Description string        `json:"description,omitempty"`
	Created     time.Time     `json:"created"`
	Sections    []string      `json:"sections"`
	Data        SnapshotData  `json:"data"`
	Stats       SnapshotStats `json:"stats"`
}

// SnapshotData holds the serialized rows.
type SnapshotData struct {
	Samples    []*SerializedSampleSet `json:"samples,omitempty"`
	Benchmarks []*BenchmarkResult     `json:"benchmarks,omitempty"`
	Values     []*SerializedValue     `json:"values,omitempty"`
}

// SerializedSampleSet groups every sample of one (code, size) pair.
type SerializedSampleSet struct {
	Code    string      `json:"code"`
	Size    int         `json:"size"`
	Samples [][]float64 `json:"samples"`
}

// SerializedValue is the JSON form of a key-value entry.
type SerializedValue struct {
	Key   string `json:"key"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

// SnapshotSaveOptions contains options for saving a snapshot.
type SnapshotSaveOptions struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Sections    []string `json:"sections,omitempty"`
	Codes       []string `json:"codes,omitempty"`
}

// Validate validates SnapshotSaveOptions.
func (o *SnapshotSaveOptions) Validate() error {
	return ValidateSnapshotName(o.Name)
}

// SnapshotLoadResult reports what a load wrote back into the stores.
type SnapshotLoadResult struct {
	SnapshotID       string `json:"snapshot_id"`
	SamplesLoaded    int    `json:"samples_loaded"`
	BenchmarksLoaded int    `json:"benchmarks_loaded"`
	ValuesLoaded     int    `json:"values_loaded"`
}

// ContainsSection reports whether section is selected; empty selects all.
func ContainsSection(sections []string, section string) bool {
	if len(sections) == 0 {
		return true
	}
	for _, s := range sections {
		if s == section {
			return true
		}
	}
	return false
}

// ContainsCode reports whether code is selected; empty selects all.
func ContainsCode(codes []string, code string) bool {
	if len(codes) == 0 {
		return true
	}
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}
