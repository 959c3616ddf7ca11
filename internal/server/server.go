// Package server exposes the cache's diagnostic surfaces over HTTP:
// liveness/readiness probes, a JSON stats endpoint, and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Adventurous-Bytes/scout-sub000/internal/model"
)

// CacheProbe is the slice of the cache manager the server needs.
type CacheProbe interface {
	CheckHealth(ctx context.Context, collection string) model.HealthReport
	Stats(ctx context.Context, collection string) model.CacheStats
}

// Config holds configuration for the diagnostics server
type Config struct {
	Port         int
	Collection   string
	MetricsPath  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server serves health probes, cache stats and Prometheus metrics via HTTP
type Server struct {
	httpServer *http.Server
	probe      CacheProbe
	collection string
	logger     *zap.Logger
}

// NewServer creates a new diagnostics server. The registry is served on the
// configured metrics path.
func NewServer(cfg *Config, probe CacheProbe, reg *prometheus.Registry, logger *zap.Logger) *Server {
	s := &Server{
		probe:      probe,
		collection: cfg.Collection,
		logger:     logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", s.livenessHandler)
	mux.HandleFunc("/health/ready", s.readinessHandler)
	mux.HandleFunc("/stats", s.statsHandler)
	mux.Handle(cfg.MetricsPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Start begins serving. Blocks until the server stops.
func (s *Server) Start() error {
	s.logger.Info("Starting diagnostics HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down diagnostics HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// livenessHandler reports that the process is responsive. A broken cache
// still counts as live; the application treats the cache as an optimization.
func (s *Server) livenessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"live": true})
}

// readinessHandler runs the cache health probes and reports 503 with the
// collected issues when any probe fails.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	report := s.probe.CheckHealth(r.Context(), s.collection)

	status := http.StatusOK
	if !report.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	stats := s.probe.Stats(r.Context(), s.collection)
	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
