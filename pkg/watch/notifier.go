package watch

import (
	"fmt"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Kind is a set of flags describing what happened to a watched path.
type Kind uint32

const (
	// Created indicates a new object assumed the path (rotation replacement).
	Created Kind = 1 << iota

	// Modified indicates the file grew or was truncated in place. Truncation
	// fires Modified too, which is why readers must always re-measure size.
	Modified

	// Moved indicates the object was renamed away from the path.
	Moved

	// Removed indicates the object was deleted; the underlying watch is
	// invalidated because it is tied to the object, not the path.
	Removed
)

// Has reports whether k contains all flags in want.
func (k Kind) Has(want Kind) bool {
	return k&want == want
}

// String returns a pipe-separated list of the set flags.
func (k Kind) String() string {
	var parts []string
	if k.Has(Created) {
		parts = append(parts, "CREATED")
	}
	if k.Has(Modified) {
		parts = append(parts, "MODIFIED")
	}
	if k.Has(Moved) {
		parts = append(parts, "MOVED")
	}
	if k.Has(Removed) {
		parts = append(parts, "REMOVED")
	}
	if len(parts) == 0 {
		return "NONE"
	}
	return strings.Join(parts, "|")
}

// Event is a single filesystem change notification. Events are transient:
// produced and consumed within one engine loop iteration, never stored.
type Event struct {
	// Path is the full path the event refers to.
	Path string

	// Kind describes the change.
	Kind Kind
}

// Notifier is a thin wrapper over fsnotify that exposes directory-level and
// file-level watch registration and a stream of change events.
//
// The directory watch lives for the lifetime of the process; it is what
// survives file replacement, because a watch on the file itself is invalidated
// when the file is rotated away. The file watch must be re-established after
// every rotation, paired with removal of the stale registration so no watch
// handles leak over arbitrarily many rotations.
type Notifier struct {
	watcher *fsnotify.Watcher
	events  chan Event
	errors  chan error
	mu      sync.Mutex
	closed  bool
}

// NewNotifier initializes the underlying OS notification facility.
// Failure here is fatal for the daemon: without notifications there is no
// monitoring.
func NewNotifier() (*Notifier, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize filesystem notifier: %w", err)
	}

	n := &Notifier{
		watcher: w,
		events:  make(chan Event),
		errors:  make(chan error),
	}

	go n.translate()

	return n, nil
}

// WatchDirectory registers interest in entries appearing in or being moved
// out of dir. Registered once at startup for the lifetime of the process.
func (n *Notifier) WatchDirectory(dir string) error {
	if err := n.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch directory %q: %w", dir, err)
	}
	return nil
}

// WatchFile registers interest in modifications to the specific file. Must be
// called again after every rotation: the underlying watch follows the file
// object, not its path.
func (n *Notifier) WatchFile(path string) error {
	if err := n.watcher.Add(path); err != nil {
		return fmt.Errorf("failed to watch file %q: %w", path, err)
	}
	return nil
}

// UnwatchFile removes the registration for path. Rotation handling always
// pairs an UnwatchFile with a WatchFile on the replacement. Removing a watch
// that the OS already invalidated is not an error.
func (n *Notifier) UnwatchFile(path string) error {
	if err := n.watcher.Remove(path); err != nil {
		// The kernel drops the watch itself when the file is deleted or
		// renamed away; a missing registration at this point is expected.
		if strings.Contains(err.Error(), "non-existent") || strings.Contains(err.Error(), "not exist") {
			return nil
		}
		return fmt.Errorf("failed to remove watch on %q: %w", path, err)
	}
	return nil
}

// Events returns the stream of translated change events. The channel is
// closed only when the notifier is closed; for a running daemon, closure is a
// fatal condition.
func (n *Notifier) Events() <-chan Event {
	return n.events
}

// Errors returns the underlying notifier error stream.
func (n *Notifier) Errors() <-chan error {
	return n.errors
}

// Close releases the OS notification resource and closes both channels.
func (n *Notifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil
	}
	n.closed = true
	return n.watcher.Close()
}

// translate converts fsnotify events into Events until the watcher closes.
func (n *Notifier) translate() {
	defer close(n.events)
	defer close(n.errors)

	for {
		select {
		case ev, ok := <-n.watcher.Events:
			if !ok {
				return
			}
			kind := translateOp(ev.Op)
			if kind == 0 {
				// Chmod and other flags irrelevant to the state machine.
				continue
			}
			n.events <- Event{Path: ev.Name, Kind: kind}

		case err, ok := <-n.watcher.Errors:
			if !ok {
				return
			}
			n.errors <- err
		}
	}
}

// translateOp maps fsnotify operation flags onto event kinds.
func translateOp(op fsnotify.Op) Kind {
	var kind Kind
	if op.Has(fsnotify.Create) {
		kind |= Created
	}
	if op.Has(fsnotify.Write) {
		kind |= Modified
	}
	if op.Has(fsnotify.Rename) {
		kind |= Moved
	}
	if op.Has(fsnotify.Remove) {
		kind |= Removed
	}
	return kind
}
