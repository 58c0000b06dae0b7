package models

import "time"

// Sample is one generated sequence of random variates from the generator
// identified by Code. Size is the requested sample size and equals
// len(Data) for well-formed rows.
type Sample struct {
	ID   int64     `json:"id"`
	Code string    `json:"code"`
	Size int       `json:"size"`
	Data []float64 `json:"data"`
}

// SampleStat is the number of stored samples for a (code, size) pair.
type SampleStat struct {
	Code  string `json:"code"`
	Size  int    `json:"size"`
	Count int    `json:"count"`
}

// BenchmarkResult records the numbers a test produced at a sample size,
// typically its power against one or more alternatives.
type BenchmarkResult struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id,omitempty"`
	TestCode  string    `json:"test_code"`
	Size      int       `json:"size"`
	Benchmark []float64 `json:"benchmark"`
	CreatedAt time.Time `json:"created_at"`
}

// KeyValueEntry pairs a key with its typed value.
type KeyValueEntry struct {
	Key   string
	Value Value
}
