package api

import (
	"net/http"
	"runtime"
	"time"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string       `json:"status"`
	Timestamp time.Time    `json:"timestamp"`
	Version   string       `json:"version,omitempty"`
	Uptime    string       `json:"uptime,omitempty"`
	Storage   string       `json:"storage"`
	Memory    *MemoryStats `json:"memory,omitempty"`
}

// MemoryStats represents memory usage statistics
type MemoryStats struct {
	AllocMB      uint64 `json:"alloc_mb"`
	TotalAllocMB uint64 `json:"total_alloc_mb"`
	SysMB        uint64 `json:"sys_mb"`
	NumGC        uint32 `json:"num_gc"`
}

// Version is reported by the health endpoint. Set at build time with
// -ldflags "-X github.com/fidde/stattest/internal/api.Version=...".
var Version = "dev"

var startTime = time.Now()

// HandleHealth returns the health status of the application. The store is
// checked with a sample stats query; a failing store reports 503.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   Version,
		Uptime:    time.Since(startTime).String(),
		Storage:   "ok",
		Memory: &MemoryStats{
			AllocMB:      m.Alloc / 1024 / 1024,
			TotalAllocMB: m.TotalAlloc / 1024 / 1024,
			SysMB:        m.Sys / 1024 / 1024,
			NumGC:        m.NumGC,
		},
	}

	status := http.StatusOK
	if _, err := s.store.GetSampleStats(r.Context()); err != nil {
		response.Status = "degraded"
		response.Storage = err.Error()
		status = http.StatusServiceUnavailable
	}

	respondJSON(w, status, response)
}
