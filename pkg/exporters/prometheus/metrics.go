package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all the Prometheus metrics exposed by Authwatch.
type Metrics struct {
	// Counter metrics
	LinesScannedTotal *prometheus.CounterVec
	MatchesTotal      *prometheus.CounterVec
	AlertsTotal       *prometheus.CounterVec
	RotationsTotal    *prometheus.CounterVec
	TruncationsTotal  *prometheus.CounterVec

	// Gauge metrics
	StartTimeSeconds prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metric definitions.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "authwatch"
	}

	return &Metrics{
		LinesScannedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lines_scanned_total",
				Help:      "Total number of log lines scanned by Authwatch",
			},
			[]string{"target"},
		),

		MatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "matches_total",
				Help:      "Total number of pattern matches observed by Authwatch",
			},
			[]string{"target", "pattern"},
		),

		AlertsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alerts_total",
				Help:      "Total number of alerts emitted by Authwatch",
			},
			[]string{"target", "pattern"},
		),

		RotationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rotations_total",
				Help:      "Total number of log rotations detected by Authwatch",
			},
			[]string{"target"},
		),

		TruncationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "truncations_total",
				Help:      "Total number of external truncations detected by Authwatch",
			},
			[]string{"target"},
		),

		StartTimeSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "start_time_seconds",
				Help:      "Unix timestamp at which Authwatch started",
			},
		),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(registry *prometheus.Registry) error {
	collectors := []prometheus.Collector{
		m.LinesScannedTotal,
		m.MatchesTotal,
		m.AlertsTotal,
		m.RotationsTotal,
		m.TruncationsTotal,
		m.StartTimeSeconds,
	}

	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}
