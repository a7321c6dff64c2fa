// Package engine implements the tail-and-alert control loop: it consumes
// filesystem change events, distinguishes rotation from append, drives the
// incremental reader and feeds matched lines into the per-pattern failure
// trackers.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/supporttools/authwatch/pkg/logger"
	"github.com/supporttools/authwatch/pkg/tail"
	"github.com/supporttools/authwatch/pkg/tracker"
	"github.com/supporttools/authwatch/pkg/types"
	"github.com/supporttools/authwatch/pkg/watch"
)

// Observer receives engine activity counters. Implementations must be safe
// for use from the engine goroutine; the Prometheus exporter implements this.
type Observer interface {
	// ObserveLines is called with the number of new lines scanned per read.
	ObserveLines(n int)

	// ObserveMatch is called once per pattern match.
	ObserveMatch(pattern string)

	// ObserveRotation is called when a rotation is detected.
	ObserveRotation()

	// ObserveTruncation is called when external truncation is detected.
	ObserveTruncation()
}

// noopObserver is used when no observer is configured.
type noopObserver struct{}

func (noopObserver) ObserveLines(int)    {}
func (noopObserver) ObserveMatch(string) {}
func (noopObserver) ObserveRotation()    {}
func (noopObserver) ObserveTruncation()  {}

// Engine owns the watch target, the failure trackers and the alert sinks, and
// runs the single event-consumption loop. All mutable monitoring state is
// touched exclusively from that loop, so none of it is locked.
type Engine struct {
	target   *watch.Target
	notifier *watch.Notifier
	reader   *tail.Reader
	trackers []*tracker.FailureTracker
	sinks    []types.AlertSink
	observer Observer

	// fileWatched tracks whether a file-level watch is currently registered.
	// At most one file watch is outstanding at any moment.
	fileWatched bool

	// running and lastEvent are read by the health server from other
	// goroutines, hence atomic.
	running   atomic.Bool
	lastEvent atomic.Int64 // unix nanos of the last processed event
}

// New creates an engine from the configuration. The notifier is owned by the
// caller and must outlive the engine; sinks receive every emitted alert in
// order.
func New(cfg *types.AuthwatchConfig, notifier *watch.Notifier, sinks []types.AlertSink, observer Observer) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if notifier == nil {
		return nil, fmt.Errorf("notifier cannot be nil")
	}

	target, err := watch.NewTarget(cfg.Target.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize watch target: %w", err)
	}

	window := cfg.Detection.WindowDuration()
	trackers := make([]*tracker.FailureTracker, 0, len(cfg.Detection.Patterns))
	for _, p := range cfg.Detection.Patterns {
		trackers = append(trackers, tracker.New(p, window, cfg.Detection.Threshold, cfg.Detection.Policy))
	}

	if observer == nil {
		observer = noopObserver{}
	}

	return &Engine{
		target:   target,
		notifier: notifier,
		reader:   tail.NewReader(),
		trackers: trackers,
		sinks:    sinks,
		observer: observer,
	}, nil
}

// Target returns the engine's watch target. Exposed for tests.
func (e *Engine) Target() *watch.Target {
	return e.target
}

// Running reports whether the engine loop is active.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// LastEvent returns when the engine last processed a change event, or the
// zero time if none has been processed yet.
func (e *Engine) LastEvent() time.Time {
	n := e.lastEvent.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// Run registers the initial watches and consumes change events until the
// context is cancelled (nil return) or a fatal error occurs. Any I/O failure
// on the target file or on watch (de)registration terminates the loop: the
// daemon has no meaningful degraded mode, so log visibility loss is loud.
func (e *Engine) Run(ctx context.Context) error {
	// The directory watch is what survives rotation; it must succeed.
	if err := e.notifier.WatchDirectory(e.target.Dir); err != nil {
		return err
	}

	if _, err := os.Stat(e.target.Path); err == nil {
		if werr := e.notifier.WatchFile(e.target.Path); werr != nil {
			return werr
		}
		e.fileWatched = true
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat target %q: %w", e.target.Path, err)
	} else {
		logger.Infof("Target %s absent at startup, waiting for creation", e.target.Path)
	}

	logger.WithFields(logrus.Fields{
		"target":   e.target.Path,
		"offset":   e.target.Offset,
		"patterns": len(e.trackers),
	}).Info("Engine started")

	e.running.Store(true)
	defer e.running.Store(false)

	for {
		select {
		case <-ctx.Done():
			logger.Infof("Engine stopping: %v", ctx.Err())
			return nil

		case ev, ok := <-e.notifier.Events():
			if !ok {
				return fmt.Errorf("change notifier closed unexpectedly")
			}
			if err := e.handleEvent(ctx, ev); err != nil {
				return err
			}
			e.lastEvent.Store(time.Now().UnixNano())

		case err, ok := <-e.notifier.Errors():
			if !ok {
				return fmt.Errorf("change notifier closed unexpectedly")
			}
			return fmt.Errorf("change notifier error: %w", err)
		}
	}
}

// handleEvent dispatches one change event through the rotation/append state
// machine. Events for paths other than the target are ignored.
func (e *Engine) handleEvent(ctx context.Context, ev watch.Event) error {
	if filepath.Clean(ev.Path) != e.target.Path {
		return nil
	}

	logger.WithFields(logrus.Fields{
		"path": ev.Path,
		"kind": ev.Kind.String(),
	}).Debug("Change event")

	if ev.Kind.Has(watch.Created) {
		return e.handleRotation()
	}

	if ev.Kind.Has(watch.Moved) || ev.Kind.Has(watch.Removed) {
		// The file was moved or deleted out from under the watch. No read is
		// attempted this cycle; the directory-level create event for the
		// replacement handles the transition. The offset is reset here only
		// when no file watch existed, otherwise the create event resets it.
		hadWatch := e.fileWatched
		e.fileWatched = false
		if !hadWatch {
			e.target.Reset()
		}
		return nil
	}

	if ev.Kind.Has(watch.Modified) {
		return e.handleAppend(ctx)
	}

	return nil
}

// handleRotation reacts to a new object assuming the target path: remove the
// stale file watch, reset the offset to 0 so the entire replacement file is
// scanned, and register a watch on the new file. A rotated-in file is assumed
// previously unseen.
func (e *Engine) handleRotation() error {
	if e.fileWatched {
		if err := e.notifier.UnwatchFile(e.target.Path); err != nil {
			return err
		}
		e.fileWatched = false
	}

	e.target.Reset()

	if err := e.notifier.WatchFile(e.target.Path); err != nil {
		return err
	}
	e.fileWatched = true
	e.observer.ObserveRotation()

	logger.Infof("Rotation detected for %s, rescanning from start", e.target.Path)
	return nil
}

// handleAppend reads the newly appended bytes, matches every line against
// every pattern and advances the offset to the freshly measured size.
func (e *Engine) handleAppend(ctx context.Context) error {
	info, err := os.Stat(e.target.Path)
	if err != nil {
		if os.IsNotExist(err) {
			// Raced with a rename/delete; the create event will follow.
			return nil
		}
		return fmt.Errorf("failed to stat target %q: %w", e.target.Path, err)
	}

	if info.Size() < e.target.Offset {
		logger.Warnf("Target %s shrank from %d to %d bytes, treating as rotation",
			e.target.Path, e.target.Offset, info.Size())
		e.target.Reset()
		e.observer.ObserveTruncation()
	}

	lines, newOffset, err := e.reader.ReadNewLines(e.target)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	e.observer.ObserveLines(len(lines))

	for _, line := range lines {
		for _, ft := range e.trackers {
			if !strings.Contains(line, ft.Pattern().Literal) {
				continue
			}
			e.observer.ObserveMatch(ft.Pattern().Name)
			if alert := ft.Observe(time.Now()); alert != nil {
				e.dispatch(ctx, alert)
			}
		}
	}

	e.target.AdvanceTo(newOffset)
	return nil
}

// dispatch delivers an alert to every sink. A failing sink is logged and
// skipped; alert delivery problems must not stop the monitoring loop.
func (e *Engine) dispatch(ctx context.Context, alert *types.Alert) {
	logger.WithFields(logrus.Fields{
		"pattern": alert.Pattern,
		"count":   alert.Count,
		"window":  alert.Window.String(),
	}).Debug("Threshold crossed")

	for _, sink := range e.sinks {
		if err := sink.Emit(ctx, alert); err != nil {
			logger.WithError(err).Errorf("Failed to emit alert for pattern %s", alert.Pattern)
		}
	}
}
