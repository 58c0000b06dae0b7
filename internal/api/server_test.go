package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fidde/stattest/internal/stattest"
	"github.com/fidde/stattest/internal/storage/memory"
	"github.com/fidde/stattest/internal/storage/snapshots"
	"github.com/fidde/stattest/pkg/models"
)

func setupTestServer(t *testing.T) (*Server, *memory.Store) {
	t.Helper()

	snaps, err := snapshots.New(snapshots.Config{
		Dir:             t.TempDir(),
		MaxSnapshotSize: 10 * 1024 * 1024,
		MaxSnapshots:    10,
	})
	require.NoError(t, err)

	store := memory.New()
	s := NewServer(Config{
		Simulation: stattest.Config{Count: 200, Workers: 2, Seed: 1},
		Snapshots:  snaps,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, store)
	return s, store
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), v), rr.Body.String())
}

func TestHealth(t *testing.T) {
	s, _ := setupTestServer(t)

	rr := do(t, s, http.MethodGet, "/api/v1/health", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp HealthResponse
	decode(t, rr, &resp)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "ok", resp.Storage)
	assert.NotNil(t, resp.Memory)
}

func TestKeyValueEndpoints(t *testing.T) {
	s, store := setupTestServer(t)
	ctx := context.Background()

	rr := do(t, s, http.MethodPut, "/api/v1/kv/alpha", `{"type":"float","value":0.05}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	v, ok, err := store.GetFloatValue(ctx, "alpha")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0.05, v)

	rr = do(t, s, http.MethodGet, "/api/v1/kv/alpha", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var got ValueResponse
	decode(t, rr, &got)
	assert.Equal(t, "float", got.Type)
	assert.Equal(t, 0.05, got.Value)

	// Datetimes are stored in UTC
	rr = do(t, s, http.MethodPut, "/api/v1/kv/when", `{"type":"datetime","value":"2024-03-01T10:00:00+03:00"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	rr = do(t, s, http.MethodGet, "/api/v1/kv/when", "")
	decode(t, rr, &got)
	assert.Equal(t, "2024-03-01T07:00:00Z", got.Value)

	// Overwrite changes the type
	rr = do(t, s, http.MethodPut, "/api/v1/kv/alpha", `{"type":"int","value":3}`)
	require.Equal(t, http.StatusOK, rr.Code)
	_, ok, _ = store.GetFloatValue(ctx, "alpha")
	assert.False(t, ok)

	rr = do(t, s, http.MethodGet, "/api/v1/kv", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var page struct {
		Data  []ValueResponse `json:"data"`
		Total int             `json:"total"`
	}
	decode(t, rr, &page)
	assert.Equal(t, 2, page.Total)

	rr = do(t, s, http.MethodDelete, "/api/v1/kv/alpha", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = do(t, s, http.MethodDelete, "/api/v1/kv/alpha", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = do(t, s, http.MethodGet, "/api/v1/kv/alpha", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestKeyValueValidation(t *testing.T) {
	s, _ := setupTestServer(t)

	for _, tc := range []struct {
		path string
		body string
	}{
		{"/api/v1/kv/k", `{"type":"decimal","value":1}`},
		{"/api/v1/kv/k", `{"type":"int","value":"x"}`},
		{"/api/v1/kv/k", `{"type":"int","value":1.5}`},
		{"/api/v1/kv/k", `{"type":"float"}`},
		{"/api/v1/kv/k", `not json`},
		{"/api/v1/kv/" + strings.Repeat("k", 26), `{"type":"int","value":1}`},
	} {
		rr := do(t, s, http.MethodPut, tc.path, tc.body)
		assert.Equal(t, http.StatusBadRequest, rr.Code, "%s %s: %s", tc.path, tc.body, rr.Body.String())
	}
}

func TestSampleEndpoints(t *testing.T) {
	s, store := setupTestServer(t)
	ctx := context.Background()

	rr := do(t, s, http.MethodPost, "/api/v1/samples/t/2", `{"samples":[[0.5,0.7],[1,2]]}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = do(t, s, http.MethodPost, "/api/v1/samples/t/3", `{"samples":[[0.5,0.7]]}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = do(t, s, http.MethodPost, "/api/v1/samples/t/zero", `{"samples":[]}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, s, http.MethodGet, "/api/v1/samples/t/2", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var samples struct {
		Data [][]float64 `json:"data"`
	}
	decode(t, rr, &samples)
	assert.Equal(t, [][]float64{{0.5, 0.7}, {1, 2}}, samples.Data)

	rr = do(t, s, http.MethodGet, "/api/v1/samples/none/2", "")
	require.Equal(t, http.StatusOK, rr.Code)
	decode(t, rr, &samples)
	assert.Empty(t, samples.Data)

	rr = do(t, s, http.MethodGet, "/api/v1/samples/stats", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var stats struct {
		Data []models.SampleStat `json:"data"`
	}
	decode(t, rr, &stats)
	assert.Equal(t, []models.SampleStat{{Code: "t", Size: 2, Count: 2}}, stats.Data)

	rr = do(t, s, http.MethodDelete, "/api/v1/samples", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	n, err := store.GetSampleCount(ctx, "t", 2)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestBenchmarksPagination(t *testing.T) {
	s, store := setupTestServer(t)
	ctx := context.Background()

	for i := range 5 {
		require.NoError(t, store.InsertBenchmark(ctx, &models.BenchmarkResult{TestCode: "KS_exp", Size: 10 + i, Benchmark: []float64{0.1}}))
	}

	rr := do(t, s, http.MethodGet, "/api/v1/benchmarks?limit=2&offset=2", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var page struct {
		Data    []models.BenchmarkResult `json:"data"`
		Total   int                      `json:"total"`
		HasMore bool                     `json:"has_more"`
	}
	decode(t, rr, &page)
	assert.Equal(t, 5, page.Total)
	assert.True(t, page.HasMore)
	require.Len(t, page.Data, 2)
	assert.Equal(t, 12, page.Data[0].Size)

	rr = do(t, s, http.MethodGet, "/api/v1/benchmarks?offset=10", "")
	decode(t, rr, &page)
	assert.Empty(t, page.Data)
	assert.False(t, page.HasMore)
}

func TestCriticalValueEndpoint(t *testing.T) {
	s, store := setupTestServer(t)
	ctx := context.Background()

	require.NoError(t, store.StoreValue(ctx, "KS_exp;10;0.05", models.FloatValue(0.3)))

	rr := do(t, s, http.MethodGet, "/api/v1/critical-values/KS_exp/10", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp CriticalValueResponse
	decode(t, rr, &resp)
	assert.Equal(t, 0.3, resp.CriticalValue)
	assert.Equal(t, 0.05, resp.Alpha)

	// Simulated on first use, then cached
	rr = do(t, s, http.MethodGet, "/api/v1/critical-values/CM_exp/10?alpha=0.1", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	decode(t, rr, &resp)
	assert.Greater(t, resp.CriticalValue, 0.0)

	v, ok, err := store.GetFloatValue(ctx, "CM_exp;10;0.1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, resp.CriticalValue, v)

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/v1/critical-values/XX/10", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/v1/critical-values/KS_exp/10?alpha=2", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/v1/critical-values/KS_exp/10?alpha=x", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/v1/critical-values/KS_exp/-1", "").Code)
}

func TestRunTestEndpoint(t *testing.T) {
	s, store := setupTestServer(t)
	require.NoError(t, store.StoreValue(context.Background(), "KS_exp;7;0.05", models.FloatValue(0.3)))

	rr := do(t, s, http.MethodPost, "/api/v1/tests/KS_exp", `{"data":[1,2,3,4,5,6,7]}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp TestResponse
	decode(t, rr, &resp)
	assert.InDelta(t, 0.2506121974302237, resp.Statistic, 1e-12)
	assert.Equal(t, 0.3, resp.CriticalValue)
	assert.True(t, resp.Accepted)

	rr = do(t, s, http.MethodPost, "/api/v1/tests/KS_exp", `{"data":[1,-2]}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = do(t, s, http.MethodPost, "/api/v1/tests/KS_exp", `{"data":[]}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSnapshotEndpoints(t *testing.T) {
	s, store := setupTestServer(t)
	ctx := context.Background()

	require.NoError(t, store.InsertSample(ctx, "exp(1)", 2, []float64{0.5, 0.7}))
	require.NoError(t, store.StoreValue(ctx, "k", models.IntValue(4)))

	rr := do(t, s, http.MethodPost, "/api/v1/snapshots", `{"name":"before","description":"test"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = do(t, s, http.MethodPost, "/api/v1/snapshots", `{"name":"before"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)
	rr = do(t, s, http.MethodPost, "/api/v1/snapshots?force=true", `{"name":"before"}`)
	assert.Equal(t, http.StatusCreated, rr.Code)
	rr = do(t, s, http.MethodPost, "/api/v1/snapshots", `{"name":"Bad Name"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, s, http.MethodGet, "/api/v1/snapshots", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var list struct {
		Snapshots []models.SnapshotMetadata `json:"snapshots"`
		Total     int                       `json:"total"`
	}
	decode(t, rr, &list)
	assert.Equal(t, 1, list.Total)
	assert.Equal(t, 1, list.Snapshots[0].Stats.SampleCount)

	rr = do(t, s, http.MethodGet, "/api/v1/snapshots/before", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = do(t, s, http.MethodGet, "/api/v1/snapshots/missing", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	// Replace: samples are cleared, then restored once
	require.NoError(t, store.InsertSample(ctx, "exp(1)", 2, []float64{9, 9}))
	rr = do(t, s, http.MethodPost, "/api/v1/snapshots/before/load?replace=true", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	samples, err := store.GetSamples(ctx, "exp(1)", 2)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0.5, 0.7}}, samples)

	rr = do(t, s, http.MethodDelete, "/api/v1/snapshots/before", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = do(t, s, http.MethodDelete, "/api/v1/snapshots/before", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := setupTestServer(t)

	do(t, s, http.MethodGet, "/api/v1/health", "")

	rr := do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `stattest_http_requests_total{route="/api/v1/health",status="200"}`)
}
