package automation

import (
	"strings"
	"testing"
)

func TestRunLogOrderAndPrefixes(t *testing.T) {
	rl := NewRunLog(false)
	rl.Info("first %d", 1)
	rl.Debug("hidden")
	rl.Warn("trouble: %s", "x")
	rl.Info("last")

	lines := rl.Lines()
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3 (debug suppressed): %v", len(lines), lines)
	}
	if lines[0] != "first 1" || lines[2] != "last" {
		t.Errorf("order broken: %v", lines)
	}
	if !strings.HasPrefix(lines[1], WarnPrefix) {
		t.Errorf("warn line missing prefix: %q", lines[1])
	}
}

func TestRunLogDebugEnabled(t *testing.T) {
	rl := NewRunLog(true)
	rl.Debug("visible")
	if lines := rl.Lines(); len(lines) != 1 || lines[0] != "visible" {
		t.Errorf("debug line dropped: %v", lines)
	}
}

func TestRunLogLinesIsCopy(t *testing.T) {
	rl := NewRunLog(false)
	rl.Info("a")
	lines := rl.Lines()
	lines[0] = "mutated"
	if rl.Lines()[0] != "a" {
		t.Error("Lines must return a copy")
	}
}
