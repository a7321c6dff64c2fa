// Package health provides HTTP health check endpoints for the daemon.
// This is a lightweight standalone server exposing liveness and readiness.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/supporttools/authwatch/pkg/logger"
	"github.com/supporttools/authwatch/pkg/types"
)

// StatusProvider reports the engine's liveness state. The engine implements
// this; the indirection avoids a dependency from health onto the engine.
type StatusProvider interface {
	// Running reports whether the event loop is active.
	Running() bool

	// LastEvent returns when the last change event was processed, or the
	// zero time if none has been.
	LastEvent() time.Time
}

// Server provides /healthz and /readyz endpoints.
type Server struct {
	config     *types.HealthConfig
	provider   StatusProvider
	httpServer *http.Server
	startTime  time.Time
	mu         sync.Mutex
	started    bool
}

// healthResponse is the JSON body returned by both endpoints.
type healthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptimeSeconds"`
	LastEvent     string `json:"lastEvent,omitempty"`
}

// NewServer creates a health server backed by the given status provider.
func NewServer(config *types.HealthConfig, provider StatusProvider) (*Server, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if !config.Enabled {
		return nil, fmt.Errorf("health server is disabled")
	}
	if provider == nil {
		return nil, fmt.Errorf("status provider cannot be nil")
	}

	return &Server{
		config:    config,
		provider:  provider,
		startTime: time.Now(),
	}, nil
}

// Start launches the health HTTP server in its own goroutine.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("health server already started")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.config.BindAddress, s.config.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("Health server listening on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Health server failed")
		}
	}()

	s.started = true
	return nil
}

// Stop shuts down the health HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.started = false
	return s.httpServer.Shutdown(ctx)
}

// handleHealthz reports process liveness. The process is alive as long as it
// can serve the request; a dead engine is a readiness problem, not a liveness
// one.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeResponse(w, http.StatusOK, "ok")
}

// handleReadyz reports whether the engine loop is consuming events.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if !s.provider.Running() {
		s.writeResponse(w, http.StatusServiceUnavailable, "engine not running")
		return
	}
	s.writeResponse(w, http.StatusOK, "ok")
}

// writeResponse writes the JSON health body.
func (s *Server) writeResponse(w http.ResponseWriter, code int, status string) {
	resp := healthResponse{
		Status:        status,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
	}
	if last := s.provider.LastEvent(); !last.IsZero() {
		resp.LastEvent = last.Format(time.RFC3339)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(&resp); err != nil {
		logger.WithError(err).Error("Failed to encode health response")
	}
}
