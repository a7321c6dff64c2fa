// Package tail implements incremental reading of an append-only log file.
package tail

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/supporttools/authwatch/pkg/watch"
)

// Reader reads the bytes appended to a file since the last recorded offset
// and yields complete lines. It opens the file fresh on every call and holds
// no descriptor between calls, so it naturally tolerates rotation.
type Reader struct{}

// NewReader creates a Reader.
func NewReader() *Reader {
	return &Reader{}
}

// ReadNewLines opens the target path, seeks to the target's offset, reads
// forward to end-of-file and returns the new lines plus the file size measured
// at the start of the read. The caller advances the target offset to the
// returned size after processing.
//
// Truncation guard: if the measured size is smaller than the stored offset the
// file was truncated or replaced underneath us, and the read restarts from 0
// instead of seeking past end-of-file.
//
// An unterminated final line is returned immediately as a complete line. The
// returned offset covers those bytes, so a terminator arriving in a later
// append never causes the line to be counted twice; the two fragments are each
// seen exactly once.
//
// Invalid UTF-8 sequences are replaced, never rejected: malformed log content
// must not crash the monitor.
func (r *Reader) ReadNewLines(t *watch.Target) ([]string, int64, error) {
	f, err := os.Open(t.Path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open %q: %w", t.Path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to stat %q: %w", t.Path, err)
	}
	size := info.Size()

	offset := t.Offset
	if size < offset {
		// Truncated underneath us; treat like a rotation.
		offset = 0
	}

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, 0, fmt.Errorf("failed to seek %q to %d: %w", t.Path, offset, err)
	}

	var lines []string
	reader := bufio.NewReader(io.LimitReader(f, size-offset))
	for {
		raw, err := reader.ReadString('\n')
		if len(raw) > 0 {
			lines = append(lines, sanitizeLine(raw))
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("failed to read %q: %w", t.Path, err)
		}
	}

	return lines, size, nil
}

// sanitizeLine strips the trailing terminator and replaces invalid UTF-8.
func sanitizeLine(raw string) string {
	line := strings.TrimRight(raw, "\r\n")
	if utf8.ValidString(line) {
		return line
	}
	return strings.ToValidUTF8(line, string(utf8.RuneError))
}
