// Package server exposes the local status HTTP endpoints: health,
// runtime status, and Prometheus exposition.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/tickvault/tickvault/internal/capture"
	"github.com/tickvault/tickvault/internal/config"
	"github.com/tickvault/tickvault/internal/metrics"
	"github.com/tickvault/tickvault/internal/recorder"
)

// Deps bundles the subsystems the status endpoints report on. Nil
// members are skipped in the status payload.
type Deps struct {
	Version     string
	SessionID   string
	MetricsPath string
	Metrics     metrics.Manager
	Tracker     *metrics.SystemTracker
	Capture     *capture.Session
	Recorder    *recorder.Recorder
}

// Server is the embedded status HTTP server.
type Server struct {
	cfg        config.ServerConfig
	deps       Deps
	log        *logrus.Entry
	httpServer *http.Server
	handler    http.Handler
}

// statusResponse is the /api/v1/status payload.
type statusResponse struct {
	Version       string               `json:"version"`
	SessionID     string               `json:"session_id"`
	UptimeSeconds int64                `json:"uptime_seconds"`
	Healthy       bool                 `json:"healthy"`
	Capture       *capture.Snapshot    `json:"capture,omitempty"`
	Recorder      *recorder.Totals     `json:"recorder,omitempty"`
	Memory        *metrics.MemoryStats `json:"memory,omitempty"`
	Disk          *metrics.DiskStats   `json:"disk,omitempty"`
}

// New creates the status server and wires its routes.
func New(cfg config.ServerConfig, deps Deps, logger *logrus.Entry) *Server {
	s := &Server{
		cfg:  cfg,
		deps: deps,
		log:  logger,
	}

	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	router.HandleFunc("/api/v1/status", s.handleStatus).Methods("GET")

	if deps.Metrics != nil {
		path := deps.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		router.Path(path).Handler(deps.Metrics.GetMetricsHandler())
	}

	logged := handlers.CombinedLoggingHandler(logger.WriterLevel(logrus.DebugLevel), router)
	s.handler = handlers.RecoveryHandler()(logged)

	s.httpServer = &http.Server{
		Addr:         cfg.Listen,
		Handler:      s.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start serves until the context is cancelled, then shuts down
// gracefully. A disabled server just waits for cancellation.
func (s *Server) Start(ctx context.Context) error {
	if !s.cfg.Enable {
		s.log.Info("Status server disabled")
		<-ctx.Done()
		return nil
	}

	s.log.WithField("address", s.cfg.Listen).Info("Starting status server")

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		return s.shutdown()
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

func (s *Server) shutdown() error {
	s.log.Info("Shutting down status server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.log.WithError(err).Error("Failed to shutdown status server")
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Version:   s.deps.Version,
		SessionID: s.deps.SessionID,
		Healthy:   true,
	}

	if s.deps.Metrics != nil {
		resp.Healthy = s.deps.Metrics.IsHealthy()
	}
	if s.deps.Tracker != nil {
		resp.UptimeSeconds = s.deps.Tracker.GetUptime()
		if mem, err := s.deps.Tracker.GetMemoryUsage(); err == nil {
			resp.Memory = mem
		}
		if d, err := s.deps.Tracker.GetDiskUsage(); err == nil {
			resp.Disk = d
		}
	}
	if s.deps.Capture != nil {
		snap := s.deps.Capture.Stats()
		resp.Capture = &snap
	}
	if s.deps.Recorder != nil {
		totals := s.deps.Recorder.Totals()
		resp.Recorder = &totals
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Error("Failed to encode response")
	}
}
