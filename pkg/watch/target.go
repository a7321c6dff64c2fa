// Package watch provides the watch target bookkeeping and the filesystem
// change notifier that together drive the tail engine.
package watch

import (
	"fmt"
	"os"
	"path/filepath"
)

// Target decomposes the monitored log path into (directory, filename) and
// tracks the byte offset up to which the file has already been scanned.
//
// A Target has a single owner (the engine loop) and is never shared between
// goroutines, so it carries no locking.
type Target struct {
	// Path is the absolute path of the monitored file.
	Path string

	// Dir is the parent directory of Path. The directory watch registered on
	// Dir is what survives log rotation.
	Dir string

	// File is the base name of Path, compared against directory-level event
	// names to recognize the rotated-in replacement.
	File string

	// Offset is the byte position up to which the file has been scanned.
	// Always a size previously measured from the file, never a guess.
	Offset int64
}

// NewTarget builds a Target for the given path. If the file already exists the
// offset starts at its current size, so pre-existing content is never scanned
// as new; if it does not exist the offset starts at 0 and the engine waits for
// the directory-level create event.
func NewTarget(path string) (*Target, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve target path %q: %w", path, err)
	}

	t := &Target{
		Path: abs,
		Dir:  filepath.Dir(abs),
		File: filepath.Base(abs),
	}

	info, err := os.Stat(abs)
	switch {
	case err == nil:
		if info.IsDir() {
			return nil, fmt.Errorf("target path %q is a directory", abs)
		}
		t.Offset = info.Size()
	case os.IsNotExist(err):
		// Absent at startup is expected; the engine waits for creation.
		t.Offset = 0
	default:
		return nil, fmt.Errorf("failed to stat target %q: %w", abs, err)
	}

	return t, nil
}

// Reset sets the offset back to 0. Called after rotation: the replacement file
// is previously unseen, so the next read scans it from the start.
func (t *Target) Reset() {
	t.Offset = 0
}

// AdvanceTo records n as the new scanned-up-to offset. Callers must pass a
// size freshly measured from the file, never a computed guess.
func (t *Target) AdvanceTo(n int64) {
	if n < 0 {
		n = 0
	}
	t.Offset = n
}
