package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Adventurous-Bytes/scout-sub000/internal/model"
)

type stubProbe struct {
	report model.HealthReport
	stats  model.CacheStats
}

func (s *stubProbe) CheckHealth(ctx context.Context, collection string) model.HealthReport {
	return s.report
}

func (s *stubProbe) Stats(ctx context.Context, collection string) model.CacheStats {
	return s.stats
}

func newTestServer(probe *stubProbe) *Server {
	return NewServer(&Config{
		Port:         0,
		Collection:   "herd_modules",
		MetricsPath:  "/metrics",
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	}, probe, prometheus.NewRegistry(), zap.NewNop())
}

func TestLivenessAlwaysOK(t *testing.T) {
	srv := newTestServer(&stubProbe{report: model.HealthReport{Healthy: false, Issues: []string{"broken"}}})

	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadinessReflectsHealth(t *testing.T) {
	probe := &stubProbe{report: model.HealthReport{Healthy: true, Issues: []string{}}}
	srv := newTestServer(probe)

	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	probe.report = model.HealthReport{Healthy: false, Issues: []string{"store schema is missing required tables"}}
	rec = httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var report model.HealthReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.False(t, report.Healthy)
	assert.Contains(t, report.Issues[0], "schema")
}

func TestStatsEndpoint(t *testing.T) {
	probe := &stubProbe{stats: model.CacheStats{
		Size:        3,
		IsStale:     false,
		HitRate:     0.75,
		TotalHits:   3,
		TotalMisses: 1,
	}}
	srv := newTestServer(probe)

	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var stats model.CacheStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 3, stats.Size)
	assert.Equal(t, 0.75, stats.HitRate)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	srv := NewServer(&Config{
		Port:        0,
		Collection:  "herd_modules",
		MetricsPath: "/metrics",
	}, &stubProbe{}, reg, zap.NewNop())

	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
