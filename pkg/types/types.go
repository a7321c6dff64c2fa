// Package types defines the core interfaces and types for Authwatch.
package types

import (
	"context"
	"time"
)

// Pattern is a detection signature: a literal substring searched for in every
// appended log line, plus the fixed alert message emitted when the pattern's
// failure rate crosses its threshold. Patterns are immutable after startup.
type Pattern struct {
	// Name is a short, machine-readable identifier (e.g., "sudo-auth-failure").
	Name string `json:"name" yaml:"name"`

	// Literal is the exact substring matched against each log line.
	// No regular expressions; matching is a plain substring test.
	Literal string `json:"literal" yaml:"literal"`

	// AlertMessage is the human-readable line emitted when this pattern's
	// threshold is crossed.
	AlertMessage string `json:"alertMessage" yaml:"alertMessage"`
}

// DefaultPatterns returns the built-in detection signatures. The literals are
// the pam_unix failure lines written by sudo and system-auth on Linux.
func DefaultPatterns() []Pattern {
	return []Pattern{
		{
			Name:         "sudo-auth-failure",
			Literal:      "pam_unix(sudo:auth): authentication failure;",
			AlertMessage: "sudo bashing detected",
		},
		{
			Name:         "system-auth-failure",
			Literal:      "pam_unix(system-auth:auth): authentication failure;",
			AlertMessage: "system-auth bashing detected",
		},
	}
}

// Alert is the discrete event emitted when a pattern's occurrence count within
// the sliding window reaches the configured threshold.
type Alert struct {
	// Pattern is the name of the pattern that crossed its threshold.
	Pattern string

	// Message is the pattern's fixed alert message.
	Message string

	// Count is the number of occurrences inside the window at firing time.
	Count int

	// Window is the sliding window the count was evaluated over.
	Window time.Duration

	// Timestamp is when the threshold crossing was observed.
	Timestamp time.Time
}

// NewAlert creates an Alert for the given pattern with the current timestamp.
func NewAlert(p Pattern, count int, window time.Duration) *Alert {
	return &Alert{
		Pattern:   p.Name,
		Message:   p.AlertMessage,
		Count:     count,
		Window:    window,
		Timestamp: time.Now(),
	}
}

// AlertSink is the interface for components that deliver alerts.
// Sinks publish alerts to an output destination (console, structured log,
// metrics). Emit is called synchronously from the engine loop, so
// implementations should return quickly and never block indefinitely.
type AlertSink interface {
	Emit(ctx context.Context, alert *Alert) error
}
