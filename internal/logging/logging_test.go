package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{" warn ", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"trace", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSetupText(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	if _, err := Setup("info", "text", &buf); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	For("pipeline").Info("stage done")

	out := buf.String()
	if !strings.Contains(out, "component=pipeline") || !strings.Contains(out, "level=INFO") {
		t.Errorf("unexpected text output: %s", out)
	}
}

func TestSetupJSONGatesLevel(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger, err := Setup("warn", "json", &buf)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	logger.Info("suppressed")
	For("replay").Warn("shown")

	out := buf.String()
	if strings.Contains(out, "suppressed") {
		t.Errorf("info message leaked at warn level: %s", out)
	}
	if !strings.Contains(out, `"component":"replay"`) {
		t.Errorf("missing component field: %s", out)
	}
}

func TestSetupRejectsUnknownFormat(t *testing.T) {
	if _, err := Setup("info", "xml", &bytes.Buffer{}); err == nil {
		t.Error("Setup accepted format xml")
	}
	if _, err := Setup("loud", "text", &bytes.Buffer{}); err == nil {
		t.Error("Setup accepted level loud")
	}
}
