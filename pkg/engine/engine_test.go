package engine

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/supporttools/authwatch/pkg/types"
	"github.com/supporttools/authwatch/pkg/watch"
)

const (
	sudoFailureLine   = "Jun  1 12:00:00 host sudo: pam_unix(sudo:auth): authentication failure; logname=alice uid=1000\n"
	systemFailureLine = "Jun  1 12:00:00 host login: pam_unix(system-auth:auth): authentication failure; logname=bob uid=1001\n"
)

// captureSink records every emitted alert.
type captureSink struct {
	mu     sync.Mutex
	alerts []*types.Alert
}

func (c *captureSink) Emit(_ context.Context, alert *types.Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, alert)
	return nil
}

func (c *captureSink) Alerts() []*types.Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*types.Alert, len(c.alerts))
	copy(out, c.alerts)
	return out
}

// countingObserver records observer callbacks.
type countingObserver struct {
	lines       int
	matches     int
	rotations   int
	truncations int
}

func (o *countingObserver) ObserveLines(n int)  { o.lines += n }
func (o *countingObserver) ObserveMatch(string) { o.matches++ }
func (o *countingObserver) ObserveRotation()    { o.rotations++ }
func (o *countingObserver) ObserveTruncation()  { o.truncations++ }

// testConfig returns a validated config pointing at path.
func testConfig(t *testing.T, path string) *types.AuthwatchConfig {
	t.Helper()
	cfg := &types.AuthwatchConfig{}
	if err := cfg.ApplyDefaults(); err != nil {
		t.Fatalf("ApplyDefaults failed: %v", err)
	}
	cfg.Target.Path = path
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	return cfg
}

// newTestEngine builds an engine with a real notifier, a capture sink and a
// counting observer.
func newTestEngine(t *testing.T, path string) (*Engine, *captureSink, *countingObserver) {
	t.Helper()

	notifier, err := watch.NewNotifier()
	if err != nil {
		t.Fatalf("NewNotifier failed: %v", err)
	}
	t.Cleanup(func() { notifier.Close() })

	sink := &captureSink{}
	observer := &countingObserver{}

	eng, err := New(testConfig(t, path), notifier, []types.AlertSink{sink}, observer)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return eng, sink, observer
}

func appendLines(t *testing.T, path string, lines ...string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		t.Fatalf("Failed to open %s: %v", path, err)
	}
	defer f.Close()
	for _, line := range lines {
		if _, err := f.WriteString(line); err != nil {
			t.Fatalf("Failed to append: %v", err)
		}
	}
}

// TestAppendBranchAlertsOnce tests the alert path: three matching lines in one
// burst fire the sudo alert exactly once, and the system-auth tracker stays
// empty.
func TestAppendBranchAlertsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.log")
	appendLines(t, path, "")

	eng, sink, observer := newTestEngine(t, path)

	appendLines(t, path, sudoFailureLine, sudoFailureLine, sudoFailureLine)

	if err := eng.handleAppend(context.Background()); err != nil {
		t.Fatalf("handleAppend failed: %v", err)
	}

	alerts := sink.Alerts()
	if len(alerts) != 1 {
		t.Fatalf("Expected exactly 1 alert, got %d", len(alerts))
	}
	if alerts[0].Pattern != "sudo-auth-failure" {
		t.Errorf("Expected sudo-auth-failure alert, got %s", alerts[0].Pattern)
	}
	if alerts[0].Message != "sudo bashing detected" {
		t.Errorf("Unexpected alert message %q", alerts[0].Message)
	}

	// The system-auth tracker never saw a match.
	for _, ft := range eng.trackers {
		if ft.Pattern().Name == "system-auth-failure" && ft.Len() != 0 {
			t.Errorf("system-auth tracker should be empty, has %d occurrences", ft.Len())
		}
	}

	if observer.lines != 3 {
		t.Errorf("Expected 3 lines observed, got %d", observer.lines)
	}
	if observer.matches != 3 {
		t.Errorf("Expected 3 matches observed, got %d", observer.matches)
	}

	// Offset advanced to the measured size.
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if eng.Target().Offset != info.Size() {
		t.Errorf("Expected offset %d, got %d", info.Size(), eng.Target().Offset)
	}
}

// TestIndependentTrackers tests that patterns are tracked separately: mixed
// failures below each pattern's threshold fire nothing.
func TestIndependentTrackers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.log")
	appendLines(t, path, "")

	eng, sink, observer := newTestEngine(t, path)

	appendLines(t, path, sudoFailureLine, systemFailureLine, sudoFailureLine, systemFailureLine)

	if err := eng.handleAppend(context.Background()); err != nil {
		t.Fatalf("handleAppend failed: %v", err)
	}

	if len(sink.Alerts()) != 0 {
		t.Errorf("Expected no alerts with 2 occurrences per pattern, got %d", len(sink.Alerts()))
	}
	if observer.matches != 4 {
		t.Errorf("Expected 4 matches, got %d", observer.matches)
	}
	for _, ft := range eng.trackers {
		if ft.Len() != 2 {
			t.Errorf("Tracker %s: expected 2 occurrences, got %d", ft.Pattern().Name, ft.Len())
		}
	}
}

// TestOffsetMonotonicity tests that the offset never decreases across
// append-only reads.
func TestOffsetMonotonicity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.log")
	appendLines(t, path, "")

	eng, _, _ := newTestEngine(t, path)

	var last int64
	for i := 0; i < 5; i++ {
		appendLines(t, path, "noise line\n")
		if err := eng.handleAppend(context.Background()); err != nil {
			t.Fatalf("handleAppend failed: %v", err)
		}
		if eng.Target().Offset < last {
			t.Fatalf("Offset decreased from %d to %d", last, eng.Target().Offset)
		}
		last = eng.Target().Offset
	}
}

// TestRotationResetsOffset tests that a create event for the watched filename
// resets the offset to exactly 0 and re-registers the file watch.
func TestRotationResetsOffset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.log")
	appendLines(t, path, "some pre-existing content\n")

	eng, _, observer := newTestEngine(t, path)
	eng.Target().AdvanceTo(500)

	ev := watch.Event{Path: path, Kind: watch.Created}
	if err := eng.handleEvent(context.Background(), ev); err != nil {
		t.Fatalf("handleEvent failed: %v", err)
	}

	if eng.Target().Offset != 0 {
		t.Errorf("Expected offset 0 after rotation, got %d", eng.Target().Offset)
	}
	if !eng.fileWatched {
		t.Error("Expected file watch to be registered after rotation")
	}
	if observer.rotations != 1 {
		t.Errorf("Expected 1 rotation observed, got %d", observer.rotations)
	}

	// The next read scans the replacement from the start.
	if err := eng.handleAppend(context.Background()); err != nil {
		t.Fatalf("handleAppend failed: %v", err)
	}
	if observer.lines != 1 {
		t.Errorf("Expected replacement content scanned from start, observed %d lines", observer.lines)
	}
}

// TestTruncationTreatedAsRotation tests that a shrunken file is rescanned
// from the start rather than seeking past end-of-file.
func TestTruncationTreatedAsRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.log")
	appendLines(t, path, "short\n")

	eng, _, observer := newTestEngine(t, path)
	eng.Target().AdvanceTo(1000)

	if err := eng.handleAppend(context.Background()); err != nil {
		t.Fatalf("handleAppend failed: %v", err)
	}

	if observer.truncations != 1 {
		t.Errorf("Expected 1 truncation observed, got %d", observer.truncations)
	}
	if eng.Target().Offset != 6 {
		t.Errorf("Expected offset 6 after rescan, got %d", eng.Target().Offset)
	}
}

// TestMovedEvent tests the conservative rotation-ambiguity policy: a move
// event resets the offset only when no file watch exists, and otherwise
// defers to the create event.
func TestMovedEvent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.log")
	appendLines(t, path, "content\n")

	eng, _, _ := newTestEngine(t, path)

	// With an active file watch the offset is preserved for Created to reset.
	eng.fileWatched = true
	eng.Target().AdvanceTo(100)
	if err := eng.handleEvent(context.Background(), watch.Event{Path: path, Kind: watch.Moved}); err != nil {
		t.Fatalf("handleEvent failed: %v", err)
	}
	if eng.fileWatched {
		t.Error("Expected file watch marked gone after move")
	}
	if eng.Target().Offset != 100 {
		t.Errorf("Expected offset preserved with active watch, got %d", eng.Target().Offset)
	}

	// Without a file watch the move itself resets.
	if err := eng.handleEvent(context.Background(), watch.Event{Path: path, Kind: watch.Moved}); err != nil {
		t.Fatalf("handleEvent failed: %v", err)
	}
	if eng.Target().Offset != 0 {
		t.Errorf("Expected offset reset without active watch, got %d", eng.Target().Offset)
	}
}

// TestIgnoresOtherPaths tests that events for unrelated paths change nothing.
func TestIgnoresOtherPaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "auth.log")
	appendLines(t, path, "content\n")

	eng, sink, _ := newTestEngine(t, path)
	before := eng.Target().Offset

	other := watch.Event{Path: filepath.Join(dir, "other.log"), Kind: watch.Created | watch.Modified}
	if err := eng.handleEvent(context.Background(), other); err != nil {
		t.Fatalf("handleEvent failed: %v", err)
	}

	if eng.Target().Offset != before {
		t.Errorf("Offset changed on unrelated event: %d -> %d", before, eng.Target().Offset)
	}
	if len(sink.Alerts()) != 0 {
		t.Error("Unexpected alerts from unrelated event")
	}
}

// TestRunEndToEnd tests the full loop against a real notifier: the target
// starts empty, three sudo-failure lines arrive within two seconds, and the
// engine emits the sudo alert exactly once.
func TestRunEndToEnd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.log")
	appendLines(t, path, "")

	eng, sink, _ := newTestEngine(t, path)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- eng.Run(ctx)
	}()

	// Wait for the loop to come up before writing.
	waitUntil(t, 5*time.Second, eng.Running)

	appendLines(t, path, sudoFailureLine)
	time.Sleep(200 * time.Millisecond)
	appendLines(t, path, sudoFailureLine)
	time.Sleep(200 * time.Millisecond)
	appendLines(t, path, sudoFailureLine)

	waitUntil(t, 5*time.Second, func() bool { return len(sink.Alerts()) >= 1 })

	// Give the loop a moment to prove it does not over-fire.
	time.Sleep(300 * time.Millisecond)

	alerts := sink.Alerts()
	if len(alerts) != 1 {
		t.Fatalf("Expected exactly 1 alert, got %d", len(alerts))
	}
	if alerts[0].Message != "sudo bashing detected" {
		t.Errorf("Unexpected alert message %q", alerts[0].Message)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned error on cancellation: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("Run did not return after cancellation")
	}
}

// TestRunRotation tests rotation through the full loop: after the file is
// rotated away and recreated, appended content is scanned from the start of
// the replacement.
func TestRunRotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "auth.log")
	appendLines(t, path, "pre-existing content that is never scanned\n")

	eng, sink, _ := newTestEngine(t, path)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- eng.Run(ctx)
	}()
	waitUntil(t, 5*time.Second, eng.Running)

	// logrotate-style replacement.
	if err := os.Rename(path, filepath.Join(dir, "auth.log.1")); err != nil {
		t.Fatalf("Failed to rotate: %v", err)
	}
	if err := os.WriteFile(path, []byte(""), 0644); err != nil {
		t.Fatalf("Failed to recreate: %v", err)
	}

	waitUntil(t, 5*time.Second, func() bool { return eng.Target().Offset == 0 })

	appendLines(t, path, sudoFailureLine, sudoFailureLine, sudoFailureLine)

	waitUntil(t, 5*time.Second, func() bool { return len(sink.Alerts()) >= 1 })

	if len(sink.Alerts()) != 1 {
		t.Fatalf("Expected exactly 1 alert after rotation, got %d", len(sink.Alerts()))
	}

	cancel()
	<-done
}

// TestRunFatalOnNotifierClose tests that losing the notification source ends
// the loop with an error.
func TestRunFatalOnNotifierClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.log")
	appendLines(t, path, "")

	notifier, err := watch.NewNotifier()
	if err != nil {
		t.Fatalf("NewNotifier failed: %v", err)
	}

	eng, err := New(testConfig(t, path), notifier, []types.AlertSink{&captureSink{}}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- eng.Run(ctx)
	}()
	waitUntil(t, 5*time.Second, eng.Running)

	notifier.Close()

	select {
	case err := <-done:
		if err == nil {
			t.Error("Expected error when notifier closes underneath the engine")
		}
	case <-time.After(5 * time.Second):
		t.Error("Run did not return after notifier close")
	}
}

// waitUntil polls cond until it is true or the timeout expires.
func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("Condition not met before timeout")
}
