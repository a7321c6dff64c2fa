// Package logsink implements a structured alert sink on top of the daemon
// logger. Each alert becomes one log entry carrying the pattern id, the
// in-window count, the window duration and the crossing timestamp, so alerts
// can be machine-parsed from the log stream.
package logsink

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/supporttools/authwatch/pkg/logger"
	"github.com/supporttools/authwatch/pkg/types"
)

// Sink emits alerts as structured log entries.
type Sink struct{}

// NewSink creates a structured-log alert sink.
func NewSink() *Sink {
	return &Sink{}
}

// Emit implements types.AlertSink.
func (s *Sink) Emit(_ context.Context, alert *types.Alert) error {
	if alert == nil {
		return fmt.Errorf("alert cannot be nil")
	}
	logger.WithFields(logrus.Fields{
		"pattern":   alert.Pattern,
		"count":     alert.Count,
		"window":    alert.Window.String(),
		"timestamp": alert.Timestamp.Format(time.RFC3339),
	}).Warn(alert.Message)
	return nil
}
