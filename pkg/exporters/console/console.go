// Package console implements the stdout alert sink. One human-readable line
// per alert, written to standard output: the daemon's user-facing contract.
package console

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/supporttools/authwatch/pkg/types"
)

// Sink writes the pattern's fixed alert message to an output stream.
type Sink struct {
	out io.Writer
}

// NewSink creates a console sink writing to stdout.
func NewSink() *Sink {
	return &Sink{out: os.Stdout}
}

// NewSinkWithWriter creates a console sink writing to the given writer.
// Used by tests.
func NewSinkWithWriter(w io.Writer) *Sink {
	return &Sink{out: w}
}

// Emit implements types.AlertSink.
func (s *Sink) Emit(_ context.Context, alert *types.Alert) error {
	if alert == nil {
		return fmt.Errorf("alert cannot be nil")
	}
	if _, err := fmt.Fprintln(s.out, alert.Message); err != nil {
		return fmt.Errorf("failed to write alert: %w", err)
	}
	return nil
}
