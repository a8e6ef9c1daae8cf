package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/nerrad567/home-gateway/internal/infrastructure/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{"error", slog.LevelError},
		{"DEBUG", slog.LevelDebug},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewWithWriter_JSONDefaultFields(t *testing.T) {
	var buf bytes.Buffer

	logger := NewWithWriter(config.LoggingConfig{Level: "info", Format: "JSON"}, "1.0.0", &buf)
	logger.Info("discovery cycle complete", "devices", 3)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output %q is not JSON: %v", buf.String(), err)
	}
	want := map[string]any{
		"msg":     "discovery cycle complete",
		"service": "homegw",
		"version": "1.0.0",
		"devices": float64(3),
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("entry[%q] = %v, want %v", k, entry[k], v)
		}
	}
}

func TestNewWithWriter_TextDefault(t *testing.T) {
	var buf bytes.Buffer

	logger := NewWithWriter(config.LoggingConfig{Level: "info"}, "1.2.3", &buf)
	logger.Warn("discovery cycle skipped", "error", "timeout")

	output := buf.String()
	for _, want := range []string{"level=WARN", "service=homegw", "version=1.2.3", `msg="discovery cycle skipped"`, "error=timeout"} {
		if !strings.Contains(output, want) {
			t.Errorf("output %q missing %q", output, want)
		}
	}
	if strings.Count(output, "\n") != 1 {
		t.Errorf("expected exactly one line, got %q", output)
	}
}

func TestNewWithWriter_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer

	logger := NewWithWriter(config.LoggingConfig{Level: "warn", Format: "json"}, "test", &buf)
	logger.Info("hidden")
	logger.Debug("hidden too")

	if buf.Len() != 0 {
		t.Errorf("expected no output below warn level, got %q", buf.String())
	}
}

func TestLogger_Component(t *testing.T) {
	var buf bytes.Buffer

	parent := NewWithWriter(config.LoggingConfig{Level: "info"}, "test", &buf)
	child := parent.Component("expiry")
	if child == parent {
		t.Fatal("Component() returned the parent logger")
	}

	child.Info("devices expired", "count", 2)
	if !strings.Contains(buf.String(), "component=expiry") {
		t.Errorf("output %q missing component field", buf.String())
	}

	buf.Reset()
	parent.Info("no component")
	if strings.Contains(buf.String(), "component=") {
		t.Errorf("parent output %q carries the child's field", buf.String())
	}
}

func TestDefault(t *testing.T) {
	if Default() == nil {
		t.Fatal("expected non-nil default logger")
	}
}
