package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fidde/stattest/internal/stattest"
)

const defaultAlpha = 0.05

// CriticalValueResponse is returned by GET /critical-values/{test}/{size}.
type CriticalValueResponse struct {
	Test          string  `json:"test"`
	Size          int     `json:"size"`
	Alpha         float64 `json:"alpha"`
	CriticalValue float64 `json:"critical_value"`
}

// TestRequest is the body of POST /tests/{test}.
type TestRequest struct {
	Data []float64 `json:"data"`
}

// TestResponse reports a goodness-of-fit decision.
type TestResponse struct {
	Test          string  `json:"test"`
	Alpha         float64 `json:"alpha"`
	Statistic     float64 `json:"statistic"`
	CriticalValue float64 `json:"critical_value"`
	Accepted      bool    `json:"accepted"`
}

// goodnessOfFit returns the shared test for code so concurrent requests
// for the same critical value simulate once.
func (s *Server) goodnessOfFit(code string) (*stattest.GoodnessOfFit, error) {
	s.testsMu.Lock()
	defer s.testsMu.Unlock()

	if g, ok := s.tests[code]; ok {
		return g, nil
	}

	stat, err := stattest.Lookup(code)
	if err != nil {
		return nil, err
	}

	cfg := s.config.Simulation
	if cfg.Logger == nil {
		cfg.Logger = s.logger
	}
	g := stattest.New(stat, s.cache, cfg)
	s.tests[code] = g
	return g, nil
}

func parseAlpha(r *http.Request) (float64, error) {
	raw := r.URL.Query().Get("alpha")
	if raw == "" {
		return defaultAlpha, nil
	}
	alpha, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", stattest.ErrInvalidAlpha, raw)
	}
	return alpha, nil
}

// criticalValue returns the critical value of a test, simulating it on
// first use.
// GET /api/v1/critical-values/{test}/{size}?alpha=0.05
func (s *Server) criticalValue(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "test")
	size, err := pathInt(r, "size")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	alpha, err := parseAlpha(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	g, err := s.goodnessOfFit(code)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	v, err := g.CriticalValue(r.Context(), size, alpha)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, CriticalValueResponse{
		Test:          code,
		Size:          size,
		Alpha:         alpha,
		CriticalValue: v,
	})
}

// runTest runs a goodness-of-fit test on the posted sample.
// POST /api/v1/tests/{test}?alpha=0.05 {"data":[...]}
func (s *Server) runTest(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "test")
	alpha, err := parseAlpha(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var req TestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	g, err := s.goodnessOfFit(code)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	statistic, err := g.Statistic().Execute(req.Data)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	crit, err := g.CriticalValue(r.Context(), len(req.Data), alpha)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, TestResponse{
		Test:          code,
		Alpha:         alpha,
		Statistic:     statistic,
		CriticalValue: crit,
		Accepted:      statistic <= crit,
	})
}
