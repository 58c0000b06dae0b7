// Package api provides the REST API over the stores, the critical-value
// cache and the goodness-of-fit tests.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fidde/stattest/internal/cache"
	"github.com/fidde/stattest/internal/metrics"
	"github.com/fidde/stattest/internal/stattest"
	"github.com/fidde/stattest/internal/storage"
	"github.com/fidde/stattest/internal/storage/snapshots"
	"github.com/fidde/stattest/pkg/models"
)

// Config configures the API server.
type Config struct {
	Addr string

	// Simulation configures Monte Carlo critical values
	Simulation stattest.Config

	// Snapshots enables the /snapshots routes when set
	Snapshots *snapshots.Store

	Logger *slog.Logger
}

// Server is the REST API server.
type Server struct {
	store  storage.Storage
	cache  *cache.MonteCarlo
	config Config
	logger *slog.Logger
	router *chi.Mux
	server *http.Server

	testsMu sync.Mutex
	tests   map[string]*stattest.GoodnessOfFit
}

// PaginationParams contains pagination parameters from query string.
type PaginationParams struct {
	Limit  int
	Offset int
}

// PaginatedResponse wraps a paginated response with metadata.
type PaginatedResponse struct {
	Data    interface{} `json:"data"`
	Total   int         `json:"total"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
	HasMore bool        `json:"has_more"`
}

// parsePaginationParams extracts pagination parameters from request.
// Defaults: limit=100, offset=0, max_limit=1000
func parsePaginationParams(r *http.Request) PaginationParams {
	const (
		defaultLimit = 100
		maxLimit     = 1000
	)

	limit := defaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = min(parsed, maxLimit)
		}
	}

	offset := 0
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if parsed, err := strconv.Atoi(offsetStr); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	return PaginationParams{
		Limit:  limit,
		Offset: offset,
	}
}

// paginateSlice applies pagination to a slice.
func paginateSlice[T any](items []T, params PaginationParams) PaginatedResponse {
	total := len(items)
	start := min(params.Offset, total)
	end := min(start+params.Limit, total)

	return PaginatedResponse{
		Data:    items[start:end],
		Total:   total,
		Limit:   params.Limit,
		Offset:  params.Offset,
		HasMore: end < total,
	}
}

// NewServer creates a new API server.
func NewServer(config Config, store storage.Storage) *Server {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		store:  store,
		cache:  cache.New(store, store, logger),
		config: config,
		logger: logger,
		router: chi.NewRouter(),
		tests:  make(map[string]*stattest.GoodnessOfFit),
	}

	// Middleware
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))
	s.router.Use(instrument)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.HandleHealth)

		// Key-value endpoints
		r.Get("/kv", s.listValues)
		r.Get("/kv/{key}", s.getValue)
		r.Put("/kv/{key}", s.putValue)
		r.Delete("/kv/{key}", s.deleteValue)

		// Sample endpoints
		r.Get("/samples/stats", s.sampleStats)
		r.Get("/samples/{code}/{size}", s.getSamples)
		r.Post("/samples/{code}/{size}", s.insertSamples)
		r.Delete("/samples", s.clearSamples)

		r.Get("/benchmarks", s.listBenchmarks)

		// Goodness-of-fit endpoints
		r.Get("/critical-values/{test}/{size}", s.criticalValue)
		r.Post("/tests/{test}", s.runTest)

		if config.Snapshots != nil {
			h := NewSnapshotHandler(config.Snapshots, store)
			r.Get("/snapshots", h.ListSnapshots)
			r.Post("/snapshots", h.CreateSnapshot)
			r.Get("/snapshots/{name}", h.GetSnapshot)
			r.Delete("/snapshots/{name}", h.DeleteSnapshot)
			r.Post("/snapshots/{name}/load", h.LoadSnapshot)
		}
	})

	s.router.Handle("/metrics", promhttp.Handler())

	s.server = &http.Server{
		Addr:    config.Addr,
		Handler: s.router,
	}

	return s
}

// Handler returns the HTTP handler serving the API.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the API server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// instrument counts requests by route pattern and status.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.RecordHTTPRequest(route, strconv.Itoa(status))
	})
}

// respondJSON writes a JSON response.
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError writes an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound),
		errors.Is(err, models.ErrSnapshotNotFound),
		errors.Is(err, stattest.ErrUnknownStatistic):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidKey),
		errors.Is(err, models.ErrUnsupportedValueType),
		errors.Is(err, models.ErrInvalidSnapshotName),
		errors.Is(err, stattest.ErrInvalidSample),
		errors.Is(err, stattest.ErrInvalidAlpha):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrTooManySnapshots):
		return http.StatusConflict
	case errors.Is(err, models.ErrSnapshotTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "error", err)
	}
	respondError(w, status, err.Error())
}

// pathInt parses a positive integer URL parameter.
func pathInt(r *http.Request, name string) (int, error) {
	v, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || v < 1 {
		return 0, errors.New(name + " must be a positive integer")
	}
	return v, nil
}
