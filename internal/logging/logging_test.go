package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name     string
		debug    string
		level    string
		expected LogLevel
	}{
		{"Debug via LOG_LEVEL", "", "debug", LevelDebug},
		{"Info via LOG_LEVEL", "", "info", LevelInfo},
		{"Warn via LOG_LEVEL", "", "warn", LevelWarn},
		{"Error via LOG_LEVEL", "", "error", LevelError},
		{"Case insensitive", "", "DEBUG", LevelDebug},
		{"Warning alias", "", "warning", LevelWarn},
		{"DEBUG overrides LOG_LEVEL", "true", "error", LevelDebug},
		{"DEBUG=0 ignored", "0", "warn", LevelWarn},
		{"Unknown defaults to info", "", "verbose", LevelInfo},
		{"Empty defaults to info", "", "", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseLevel(tt.debug, tt.level); got != tt.expected {
				t.Errorf("parseLevel(%q, %q) = %v, want %v", tt.debug, tt.level, got, tt.expected)
			}
		})
	}
}

func TestLogLevelString(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{LevelDebug, "debug"},
		{LevelInfo, "info"},
		{LevelWarn, "warn"},
		{LevelError, "error"},
		{LogLevel(99), "unknown(99)"},
	}

	for _, tt := range tests {
		if got := tt.level.String(); got != tt.expected {
			t.Errorf("LogLevel(%d).String() = %q, want %q", tt.level, got, tt.expected)
		}
	}
}

func TestErrorWritesToOutput(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)

	Error("probe failed for %s", "clip.mp4")

	if !strings.Contains(buf.String(), "probe failed for clip.mp4") {
		t.Errorf("expected message in output, got %q", buf.String())
	}
}
