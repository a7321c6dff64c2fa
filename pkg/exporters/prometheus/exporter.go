// Package prometheus exposes Authwatch activity counters on a /metrics
// endpoint. The exporter doubles as an alert sink (alert counters) and as the
// engine's activity observer (line/rotation counters).
package prometheus

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/supporttools/authwatch/pkg/logger"
	"github.com/supporttools/authwatch/pkg/types"
)

// Exporter exports Authwatch metrics to Prometheus.
type Exporter struct {
	config   *types.MetricsConfig
	target   string
	registry *prometheus.Registry
	metrics  *Metrics
	server   *http.Server
	mu       sync.Mutex
	started  bool
}

// NewExporter creates a Prometheus exporter for the given target path.
func NewExporter(config *types.MetricsConfig, target string) (*Exporter, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if !config.Enabled {
		return nil, fmt.Errorf("prometheus exporter is disabled")
	}
	if target == "" {
		return nil, fmt.Errorf("target path is required")
	}

	registry := prometheus.NewRegistry()
	metrics := NewMetrics(config.Namespace)
	if err := metrics.Register(registry); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	metrics.StartTimeSeconds.Set(float64(time.Now().Unix()))

	return &Exporter{
		config:   config,
		target:   target,
		registry: registry,
		metrics:  metrics,
	}, nil
}

// Start launches the metrics HTTP server in its own goroutine.
func (e *Exporter) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return fmt.Errorf("prometheus exporter already started")
	}

	mux := http.NewServeMux()
	mux.Handle(e.config.Path, promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{}))

	e.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", e.config.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("Prometheus exporter listening on :%d%s", e.config.Port, e.config.Path)
		if err := e.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Prometheus exporter server failed")
		}
	}()

	e.started = true
	return nil
}

// Stop shuts down the metrics HTTP server.
func (e *Exporter) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.started {
		return nil
	}
	e.started = false
	return e.server.Shutdown(ctx)
}

// Emit implements types.AlertSink by counting the alert.
func (e *Exporter) Emit(_ context.Context, alert *types.Alert) error {
	if alert == nil {
		return fmt.Errorf("alert cannot be nil")
	}
	e.metrics.AlertsTotal.WithLabelValues(e.target, alert.Pattern).Inc()
	return nil
}

// ObserveLines implements the engine observer.
func (e *Exporter) ObserveLines(n int) {
	if n > 0 {
		e.metrics.LinesScannedTotal.WithLabelValues(e.target).Add(float64(n))
	}
}

// ObserveMatch implements the engine observer.
func (e *Exporter) ObserveMatch(pattern string) {
	e.metrics.MatchesTotal.WithLabelValues(e.target, pattern).Inc()
}

// ObserveRotation implements the engine observer.
func (e *Exporter) ObserveRotation() {
	e.metrics.RotationsTotal.WithLabelValues(e.target).Inc()
}

// ObserveTruncation implements the engine observer.
func (e *Exporter) ObserveTruncation() {
	e.metrics.TruncationsTotal.WithLabelValues(e.target).Inc()
}

// Registry returns the exporter's metric registry. Exposed for tests.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}
