package watch

import (
	"os"
	"path/filepath"
	"testing"
)

// TestNewTargetExisting tests that a target for an existing file starts at
// the current size, so pre-existing content is never scanned as new.
func TestNewTargetExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "auth.log")
	if err := os.WriteFile(path, []byte("hello\nworld\n"), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	target, err := NewTarget(path)
	if err != nil {
		t.Fatalf("NewTarget failed: %v", err)
	}

	if target.Path != path {
		t.Errorf("Expected path %q, got %q", path, target.Path)
	}
	if target.Dir != dir {
		t.Errorf("Expected dir %q, got %q", dir, target.Dir)
	}
	if target.File != "auth.log" {
		t.Errorf("Expected file %q, got %q", "auth.log", target.File)
	}
	if target.Offset != 12 {
		t.Errorf("Expected offset 12, got %d", target.Offset)
	}
}

// TestNewTargetMissing tests that a missing target file is not an error and
// starts at offset 0.
func TestNewTargetMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.log")

	target, err := NewTarget(path)
	if err != nil {
		t.Fatalf("NewTarget on missing file should not fail: %v", err)
	}
	if target.Offset != 0 {
		t.Errorf("Expected offset 0 for missing file, got %d", target.Offset)
	}
}

// TestNewTargetDirectory tests that pointing the target at a directory fails.
func TestNewTargetDirectory(t *testing.T) {
	if _, err := NewTarget(t.TempDir()); err == nil {
		t.Error("Expected error for directory target")
	}
}

// TestResetAndAdvance tests offset bookkeeping.
func TestResetAndAdvance(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.log")
	if err := os.WriteFile(path, []byte("0123456789"), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	target, err := NewTarget(path)
	if err != nil {
		t.Fatalf("NewTarget failed: %v", err)
	}

	target.AdvanceTo(500)
	if target.Offset != 500 {
		t.Errorf("Expected offset 500, got %d", target.Offset)
	}

	target.Reset()
	if target.Offset != 0 {
		t.Errorf("Expected offset 0 after reset, got %d", target.Offset)
	}

	// Negative offsets are clamped.
	target.AdvanceTo(-5)
	if target.Offset != 0 {
		t.Errorf("Expected negative advance clamped to 0, got %d", target.Offset)
	}
}
