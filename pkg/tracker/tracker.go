// Package tracker implements the per-pattern sliding-window failure counter.
package tracker

import (
	"time"

	"github.com/supporttools/authwatch/pkg/types"
)

// FailureTracker counts occurrences of one detection pattern inside a sliding
// time window and decides when the alert threshold is crossed.
//
// Trackers are owned by the engine and touched only from its single loop
// goroutine, so they carry no locking.
type FailureTracker struct {
	pattern   types.Pattern
	window    time.Duration
	threshold int
	policy    string

	// occurrences holds match timestamps in insertion (= chronological) order.
	occurrences []time.Time

	// lastAlert is when the tracker last fired; zero until the first alert.
	// Only consulted under PolicyCooldown.
	lastAlert time.Time
}

// New creates a tracker for the given pattern. Window and threshold are
// configuration constants (300s / 3 in the reference setup), not derived.
func New(pattern types.Pattern, window time.Duration, threshold int, policy string) *FailureTracker {
	return &FailureTracker{
		pattern:   pattern,
		window:    window,
		threshold: threshold,
		policy:    policy,
	}
}

// Pattern returns the tracker's detection pattern.
func (ft *FailureTracker) Pattern() types.Pattern {
	return ft.pattern
}

// Len returns the number of occurrences currently inside the window.
func (ft *FailureTracker) Len() int {
	return len(ft.occurrences)
}

// Record appends an occurrence timestamp.
func (ft *FailureTracker) Record(now time.Time) {
	ft.occurrences = append(ft.occurrences, now)
}

// Prune removes every occurrence older than the window relative to now.
func (ft *FailureTracker) Prune(now time.Time) {
	cutoff := now.Add(-ft.window)
	kept := ft.occurrences[:0]
	for _, t := range ft.occurrences {
		if !t.Before(cutoff) {
			kept = append(kept, t)
		}
	}
	ft.occurrences = kept
}

// ThresholdCrossed reports whether the in-window occurrence count has reached
// the configured threshold.
func (ft *FailureTracker) ThresholdCrossed() bool {
	return len(ft.occurrences) >= ft.threshold
}

// ResetWindow clears all occurrences. Applied after an alert fires so the
// tracker does not fire again on every subsequent matching line until a fresh
// burst accumulates. This deliberately trades recall for alert-spam
// suppression; it is the core sensitivity control of the daemon.
func (ft *FailureTracker) ResetWindow() {
	ft.occurrences = ft.occurrences[:0]
}

// Observe processes one matched line at time now: record, prune, then check
// the threshold. It returns the alert to emit, or nil.
//
// Under PolicyReset every crossing fires and clears the window. Under
// PolicyCooldown (the default) a crossing fires only if no alert for this
// pattern fired within the last window duration; either way the window is
// cleared on firing, so a sustained attack produces at most one alert per
// pattern per window instead of one per matching line.
func (ft *FailureTracker) Observe(now time.Time) *types.Alert {
	ft.Record(now)
	ft.Prune(now)

	if !ft.ThresholdCrossed() {
		return nil
	}

	if ft.policy == types.PolicyCooldown && !ft.lastAlert.IsZero() {
		if now.Sub(ft.lastAlert) < ft.window {
			// Still cooling down; keep absorbing occurrences silently.
			return nil
		}
	}

	alert := types.NewAlert(ft.pattern, len(ft.occurrences), ft.window)
	alert.Timestamp = now
	ft.lastAlert = now
	ft.ResetWindow()
	return alert
}
