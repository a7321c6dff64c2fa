package types

import (
	"testing"
	"time"
)

// TestDefaultPatterns tests the built-in detection signatures.
func TestDefaultPatterns(t *testing.T) {
	patterns := DefaultPatterns()
	if len(patterns) != 2 {
		t.Fatalf("Expected 2 default patterns, got %d", len(patterns))
	}

	sudo := patterns[0]
	if sudo.Name != "sudo-auth-failure" {
		t.Errorf("Unexpected pattern name %q", sudo.Name)
	}
	if sudo.Literal != "pam_unix(sudo:auth): authentication failure;" {
		t.Errorf("Unexpected sudo literal %q", sudo.Literal)
	}
	if sudo.AlertMessage != "sudo bashing detected" {
		t.Errorf("Unexpected sudo alert message %q", sudo.AlertMessage)
	}

	system := patterns[1]
	if system.Literal != "pam_unix(system-auth:auth): authentication failure;" {
		t.Errorf("Unexpected system-auth literal %q", system.Literal)
	}
	if system.AlertMessage != "system-auth bashing detected" {
		t.Errorf("Unexpected system-auth alert message %q", system.AlertMessage)
	}
}

// TestNewAlert tests alert construction.
func TestNewAlert(t *testing.T) {
	p := DefaultPatterns()[0]
	before := time.Now()
	alert := NewAlert(p, 3, 300*time.Second)

	if alert.Pattern != p.Name {
		t.Errorf("Expected pattern %q, got %q", p.Name, alert.Pattern)
	}
	if alert.Message != p.AlertMessage {
		t.Errorf("Expected message %q, got %q", p.AlertMessage, alert.Message)
	}
	if alert.Count != 3 {
		t.Errorf("Expected count 3, got %d", alert.Count)
	}
	if alert.Window != 300*time.Second {
		t.Errorf("Expected window 300s, got %v", alert.Window)
	}
	if alert.Timestamp.Before(before) {
		t.Error("Alert timestamp should not predate construction")
	}
}
