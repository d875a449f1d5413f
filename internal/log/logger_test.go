package log

import (
	"bytes"
	"strings"
	"testing"
)

func TestVerbosityGating(t *testing.T) {
	tests := []struct {
		name    string
		level   int
		logFn   func()
		message string
		want    bool
	}{
		{"info suppressed when quiet", LevelQuiet, func() { Info("sync started") }, "sync started", false},
		{"info shown at info", LevelInfo, func() { Info("sync started") }, "sync started", true},
		{"debug suppressed at info", LevelInfo, func() { Debug("fetch detail") }, "fetch detail", false},
		{"debug shown at debug", LevelDebug, func() { Debug("fetch detail") }, "fetch detail", true},
		{"trace shown at trace", LevelTrace, func() { Trace("payload") }, "payload", true},
		{"warn always shown", LevelQuiet, func() { Warn("diverged") }, "diverged", true},
		{"error always shown", LevelQuiet, func() { Error("push failed") }, "push failed", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			Initialize(tt.level, &buf)
			tt.logFn()
			got := strings.Contains(buf.String(), tt.message)
			if got != tt.want {
				t.Errorf("message %q present = %v, want %v (output: %q)", tt.message, got, tt.want, buf.String())
			}
		})
	}
}

func TestVerbosity(t *testing.T) {
	Initialize(LevelDebug, &bytes.Buffer{})
	if Verbosity() != LevelDebug {
		t.Errorf("Verbosity() = %d, want %d", Verbosity(), LevelDebug)
	}
	if !IsDebug() {
		t.Error("IsDebug() = false, want true")
	}
}
