package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func tempBackend(t *testing.T, content string) *fileBackend {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tengine", "config.json")
	if content != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	return newFileBackend(path)
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
}

// TestDefaults verifies all default values are applied when no config file exists.
func TestDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("XDG_DATA_HOME", "/tmp/xdg-data")

	cfg, err := loadWith(tempBackend(t, ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Storage.DataDir != "/tmp/xdg-data/tengine" {
		t.Errorf("Storage.DataDir = %q, want %q", cfg.Storage.DataDir, "/tmp/xdg-data/tengine")
	}
	if cfg.Storage.Backend != BackendSQLite {
		t.Errorf("Storage.Backend = %q, want %q", cfg.Storage.Backend, BackendSQLite)
	}
	if cfg.Context.Source != SourceDir {
		t.Errorf("Context.Source = %q, want %q", cfg.Context.Source, SourceDir)
	}
	if cfg.ContextDir() != "/tmp/xdg-data/tengine/context" {
		t.Errorf("ContextDir() = %q", cfg.ContextDir())
	}
	if cfg.TelemetryDir() != "/tmp/xdg-data/tengine/telemetry" {
		t.Errorf("TelemetryDir() = %q", cfg.TelemetryDir())
	}
	if cfg.ArtifactsDir() != "/tmp/xdg-data/tengine/artifacts" {
		t.Errorf("ArtifactsDir() = %q", cfg.ArtifactsDir())
	}
	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want 4100", cfg.Server.Port)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("Log = %+v, want info/text", cfg.Log)
	}
	if d, err := cfg.Poll(); err != nil || d != 500*time.Millisecond {
		t.Errorf("Poll() = %v, %v, want 500ms", d, err)
	}
	if cfg.Telemetry.Metrics {
		t.Error("Telemetry.Metrics should default to false")
	}
}

func TestFileValues(t *testing.T) {
	clearEnv(t)
	b := tempBackend(t, `{
  "storage.data_dir": "/srv/tengine",
  "storage.backend": "files",
  "context.dir": "/srv/context",
  "server.port": 9000,
  "telemetry.metrics": "true",
  "worker.poll_interval": "2s"
}`)

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Storage.DataDir != "/srv/tengine" || cfg.Storage.Backend != BackendFiles {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if cfg.ContextDir() != "/srv/context" {
		t.Errorf("ContextDir() = %q, want /srv/context", cfg.ContextDir())
	}
	if cfg.TelemetryDir() != "/srv/tengine/telemetry" {
		t.Errorf("TelemetryDir() = %q", cfg.TelemetryDir())
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if !cfg.Telemetry.Metrics {
		t.Error("Telemetry.Metrics = false, want true")
	}
	if d, _ := cfg.Poll(); d != 2*time.Second {
		t.Errorf("Poll() = %v, want 2s", d)
	}
}

func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("TENGINE_SERVER_PORT", "5555")
	t.Setenv("TENGINE_CONTEXT_SOURCE", "sqlite")
	t.Setenv("TENGINE_API_TOKEN", "s3cret")
	t.Setenv("TENGINE_LOG_LEVEL", "debug")

	cfg, err := loadWith(tempBackend(t, `{"server.port": 9000, "log.level": "warn"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 5555 {
		t.Errorf("Server.Port = %d, want 5555", cfg.Server.Port)
	}
	if cfg.Context.Source != SourceSQLite {
		t.Errorf("Context.Source = %q, want sqlite", cfg.Context.Source)
	}
	if cfg.Server.APIToken != "s3cret" {
		t.Errorf("Server.APIToken = %q, want s3cret", cfg.Server.APIToken)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
}

func TestSecretsIgnoredInFile(t *testing.T) {
	clearEnv(t)
	cfg, err := loadWith(tempBackend(t, `{"server.api_token": "from-file"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.APIToken != "" {
		t.Errorf("APIToken = %q, want empty", cfg.Server.APIToken)
	}
}

func TestInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"backend", `{"storage.backend": "postgres"}`},
		{"source", `{"context.source": "web"}`},
		{"port", `{"server.port": 70000}`},
		{"fractional port", `{"server.port": 1.5}`},
		{"poll", `{"worker.poll_interval": "soon"}`},
		{"negative poll", `{"worker.poll_interval": "-1s"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			if _, err := loadWith(tempBackend(t, tt.content)); err == nil {
				t.Errorf("loadWith(%s) succeeded, want error", tt.content)
			}
		})
	}
}

func TestSetKey(t *testing.T) {
	clearEnv(t)
	b := tempBackend(t, "")

	if err := setKeyWith(b, "server.port", "7000"); err != nil {
		t.Fatalf("setKeyWith port: %v", err)
	}
	if err := setKeyWith(b, "telemetry.metrics", "yes"); err == nil {
		t.Error("setKeyWith accepted invalid bool")
	}
	if err := setKeyWith(b, "telemetry.metrics", "1"); err != nil {
		t.Fatalf("setKeyWith metrics: %v", err)
	}
	if err := setKeyWith(b, "server.api_token", "x"); err == nil {
		t.Error("setKeyWith accepted a secret")
	}
	if err := setKeyWith(b, "nope", "x"); err == nil {
		t.Error("setKeyWith accepted an unknown key")
	}

	// A fresh backend reads what was persisted.
	cfg, err := loadWith(newFileBackend(b.path))
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 7000 {
		t.Errorf("Server.Port = %d, want 7000", cfg.Server.Port)
	}
	if !cfg.Telemetry.Metrics {
		t.Error("Telemetry.Metrics = false, want true")
	}
}

func TestShowAllHidesSecrets(t *testing.T) {
	cfg := defaults()
	cfg.Server.APIToken = "hidden"
	for _, k := range ShowAll(cfg) {
		if k.Key == "server.api_token" || k.Value == "hidden" {
			t.Errorf("ShowAll exposed secret: %+v", k)
		}
	}
	if len(ShowAll(cfg)) != len(ValidKeys()) {
		t.Errorf("ShowAll and ValidKeys disagree")
	}
}

func TestShowAllBackendHint(t *testing.T) {
	for _, k := range ShowAll(defaults()) {
		if k.Key != "storage.backend" {
			continue
		}
		if k.Value != BackendSQLite || !strings.Contains(k.Hint, "files: one <id>.json per artifact") {
			t.Errorf("storage.backend = %+v", k)
		}
		return
	}
	t.Error("storage.backend not shown")
}
