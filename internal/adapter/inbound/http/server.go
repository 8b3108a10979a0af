package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/verdant-market/storecore/internal/domain/monitor"
	"github.com/verdant-market/storecore/internal/service"
)

// HealthResponse is the JSON body of the /healthz endpoint.
type HealthResponse struct {
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks"`
	Version string            `json:"version,omitempty"`
}

// Server is the dev server's HTTP listener: /metrics and /healthz.
type Server struct {
	addr    string
	version string
	svc     *service.StorefrontService
	mon     *monitor.Monitor
	logger  *slog.Logger

	server *http.Server
}

// NewServer creates a Server and registers the metrics collectors.
func NewServer(addr, version string, svc *service.StorefrontService, mon *monitor.Monitor, reg *prometheus.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	NewMetrics(reg, svc.Stat, mon.Stat)

	s := &Server{
		addr:    addr,
		version: version,
		svc:     svc,
		mon:     mon,
		logger:  logger,
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", s.handleHealth)

	s.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start runs the listener until it fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler exposes the mux, for tests.
func (s *Server) Handler() http.Handler { return s.server.Handler }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sessionCheck := "ok: unauthenticated"
	if s.svc.CurrentSession() != nil {
		sessionCheck = "ok: authenticated"
	}
	checks := map[string]string{
		"session":      sessionCheck,
		"rate_limiter": fmt.Sprintf("ok: %d tracked keys", s.mon.Stat().TrackedKeys),
	}

	resp := HealthResponse{
		Status:  "healthy",
		Checks:  checks,
		Version: s.version,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("encode health response", "error", err)
	}
}
