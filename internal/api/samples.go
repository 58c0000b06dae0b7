package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// SamplesRequest is the body of POST /samples/{code}/{size}.
type SamplesRequest struct {
	Samples [][]float64 `json:"samples"`
}

// sampleStats returns the number of samples per (code, size).
// Supports pagination via ?limit=N&offset=M query parameters.
func (s *Server) sampleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetSampleStats(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, paginateSlice(stats, parsePaginationParams(r)))
}

// getSamples returns the samples stored for (code, size).
// GET /api/v1/samples/{code}/{size}
func (s *Server) getSamples(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	size, err := pathInt(r, "size")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	samples, err := s.store.GetSamples(r.Context(), code, size)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, paginateSlice(samples, parsePaginationParams(r)))
}

// insertSamples stores a batch of samples in one transaction. Every sample
// must have exactly size values.
// POST /api/v1/samples/{code}/{size}
func (s *Server) insertSamples(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	size, err := pathInt(r, "size")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req SamplesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	for i, sample := range req.Samples {
		if len(sample) != size {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("sample %d has %d values, want %d", i, len(sample), size))
			return
		}
	}

	if err := s.store.InsertAllSamples(r.Context(), code, size, req.Samples); err != nil {
		s.fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"code":     code,
		"size":     size,
		"inserted": len(req.Samples),
	})
}

// clearSamples deletes every stored sample.
// DELETE /api/v1/samples
func (s *Server) clearSamples(w http.ResponseWriter, r *http.Request) {
	if err := s.store.ClearAllSamples(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// listBenchmarks pages through benchmark results in insertion order.
// Supports pagination via ?limit=N&offset=M query parameters.
func (s *Server) listBenchmarks(w http.ResponseWriter, r *http.Request) {
	results, err := s.store.GetBenchmarks(r.Context(), 0, 0)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, paginateSlice(results, parsePaginationParams(r)))
}
