package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewLoggerDefaultsToStderr(t *testing.T) {
	logger := NewLogger(nil)
	if logger == nil {
		t.Fatal("NewLogger(nil) returned nil")
	}
	if logger.level != LevelInfo {
		t.Errorf("default level = %v, want LevelInfo", logger.level)
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelWarn, Output: &buf})

	logger.Debug("should not appear")
	logger.Info("also should not appear")
	if buf.Len() != 0 {
		t.Errorf("expected nothing logged below LevelWarn, got: %q", buf.String())
	}

	logger.Warn("a warning", "snap2", "vg/lv2")
	output := buf.String()
	if !strings.Contains(output, "[WARN]") {
		t.Errorf("expected [WARN] prefix, got: %q", output)
	}
	if !strings.Contains(output, "snap2=vg/lv2") {
		t.Errorf("expected key=value pair in output, got: %q", output)
	}
}

func TestLoggerErrorFormatsArgs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Output: &buf})

	logger.Error("acquire metadata snap failed", "error", "device busy")
	output := buf.String()
	if !strings.Contains(output, "[ERROR]") {
		t.Errorf("expected [ERROR] prefix, got: %q", output)
	}
	if !strings.Contains(output, "error=device busy") {
		t.Errorf("expected error=device busy, got: %q", output)
	}
}

func TestLoggerOddArgsDropsTrailingKey(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Output: &buf})

	logger.Info("message", "dangling")
	output := buf.String()
	if strings.Contains(output, "dangling") {
		t.Errorf("expected unpaired trailing key to be dropped, got: %q", output)
	}
}

func TestLoggerWithAddsFieldsToEveryMessage(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(&Config{Level: LevelDebug, Output: &buf})
	scoped := base.With("pool", "vg-pool-tpool")

	scoped.Info("reserved metadata snap")
	output := buf.String()
	if !strings.Contains(output, "pool=vg-pool-tpool") {
		t.Errorf("expected derived logger's field in output, got: %q", output)
	}
	if !strings.Contains(output, "reserved metadata snap") {
		t.Errorf("expected message text in output, got: %q", output)
	}
}

func TestLoggerWithChainsAndLeavesParentUnaffected(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(&Config{Level: LevelDebug, Output: &buf})
	scoped := base.With("pool", "vg-pool-tpool").With("volume", "vg/lv1")

	scoped.Warn("discard unsupported")
	output := buf.String()
	if !strings.Contains(output, "pool=vg-pool-tpool") || !strings.Contains(output, "volume=vg/lv1") {
		t.Errorf("expected both chained fields in output, got: %q", output)
	}

	buf.Reset()
	base.Info("unscoped message")
	if strings.Contains(buf.String(), "pool=") {
		t.Errorf("With must not mutate the logger it was derived from, got: %q", buf.String())
	}
}

func TestDefaultLoggerIsSingletonUntilSet(t *testing.T) {
	l1 := Default()
	l2 := Default()
	if l1 != l2 {
		t.Error("Default() returned different instances across calls")
	}

	var buf bytes.Buffer
	replacement := NewLogger(&Config{Level: LevelDebug, Output: &buf})
	SetDefault(replacement)
	if Default() != replacement {
		t.Error("SetDefault did not replace the package-level default")
	}
}
