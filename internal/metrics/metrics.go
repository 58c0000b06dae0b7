// Package metrics holds the Prometheus collectors shared by the cache, the
// goodness-of-fit tests, the power benchmark and the HTTP API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "stattest"

var (
	// cacheLookups counts critical-value cache lookups.
	// Labels: kind (value, distribution), result (hit, miss)
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Critical-value cache lookups by kind and result",
	}, []string{"kind", "result"})

	// cacheFlushed counts values written by Flush.
	cacheFlushed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "flushed_values_total",
		Help:      "Critical values persisted by cache flushes",
	})

	// simulationDuration measures Monte Carlo simulations.
	// Labels: test
	simulationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "montecarlo",
		Name:      "duration_seconds",
		Help:      "Monte Carlo critical-value simulation time in seconds",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
	}, []string{"test"})

	// samplesGenerated counts random samples written to the sample store.
	// Labels: generator
	samplesGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "samples",
		Name:      "generated_total",
		Help:      "Generated samples written to the sample store",
	}, []string{"generator"})

	// httpRequests counts API requests.
	// Labels: route, status
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP API requests by route pattern and status code",
	}, []string{"route", "status"})
)

// RecordCacheLookup records a cache lookup. kind is "value" or
// "distribution".
func RecordCacheLookup(kind string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookups.WithLabelValues(kind, result).Inc()
}

// RecordCacheFlush records n values persisted by a flush.
func RecordCacheFlush(n int) {
	cacheFlushed.Add(float64(n))
}

// RecordSimulation records the duration of one Monte Carlo simulation.
func RecordSimulation(test string, seconds float64) {
	simulationDuration.WithLabelValues(test).Observe(seconds)
}

// RecordSamplesGenerated records n samples generated by generator.
func RecordSamplesGenerated(generator string, n int) {
	samplesGenerated.WithLabelValues(generator).Add(float64(n))
}

// RecordHTTPRequest records a served API request.
func RecordHTTPRequest(route, status string) {
	httpRequests.WithLabelValues(route, status).Inc()
}
