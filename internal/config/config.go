package config

import (
	"fmt"
	"path/filepath"
	"time"
)

type Config struct {
	Storage   StorageConfig
	Context   ContextConfig
	Telemetry TelemetryConfig
	Server    ServerConfig
	Log       LogConfig
	Worker    WorkerConfig
}

type StorageConfig struct {
	DataDir string
	// Backend is "sqlite" (default) or "files".
	Backend string
}

type ContextConfig struct {
	// Dir holds YAML/JSON context documents. Empty means <data_dir>/context.
	Dir string
	// Source is "dir" (default) or "sqlite".
	Source string
}

type TelemetryConfig struct {
	// Dir holds the daily JSONL logs. Empty means <data_dir>/telemetry.
	Dir     string
	Metrics bool
	// OTLPEndpoint is an OTLP/HTTP collector host:port. Empty keeps metrics
	// in-process.
	OTLPEndpoint string
	OTLPInsecure bool
}

type ServerConfig struct {
	Port     int
	APIToken string
}

type LogConfig struct {
	Level  string
	Format string
}

type WorkerConfig struct {
	PollInterval string
}

const (
	BackendSQLite = "sqlite"
	BackendFiles  = "files"

	SourceDir    = "dir"
	SourceSQLite = "sqlite"
)

func defaults() Config {
	return Config{
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
			Backend: BackendSQLite,
		},
		Context: ContextConfig{
			Source: SourceDir,
		},
		Server: ServerConfig{
			Port: 4100,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Worker: WorkerConfig{
			PollInterval: "500ms",
		},
	}
}

// Load reads configuration from the JSON file at
// $XDG_CONFIG_HOME/tengine/config.json. Environment variables (TENGINE_*)
// override file values. Secrets are only read from the environment.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks enumerated values and ranges.
func (c Config) Validate() error {
	switch c.Storage.Backend {
	case BackendSQLite, BackendFiles:
	default:
		return fmt.Errorf("invalid storage.backend %q (want %s or %s)", c.Storage.Backend, BackendSQLite, BackendFiles)
	}
	switch c.Context.Source {
	case SourceDir, SourceSQLite:
	default:
		return fmt.Errorf("invalid context.source %q (want %s or %s)", c.Context.Source, SourceDir, SourceSQLite)
	}
	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir must not be empty")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if _, err := c.Poll(); err != nil {
		return err
	}
	return nil
}

// ArtifactsDir is where the files backend keeps artifact records.
func (c Config) ArtifactsDir() string {
	return filepath.Join(c.Storage.DataDir, "artifacts")
}

// ContextDir resolves the context document directory.
func (c Config) ContextDir() string {
	if c.Context.Dir != "" {
		return c.Context.Dir
	}
	return filepath.Join(c.Storage.DataDir, "context")
}

// TelemetryDir resolves the telemetry log directory.
func (c Config) TelemetryDir() string {
	if c.Telemetry.Dir != "" {
		return c.Telemetry.Dir
	}
	return filepath.Join(c.Storage.DataDir, "telemetry")
}

// Poll parses the worker poll interval.
func (c Config) Poll() (time.Duration, error) {
	d, err := time.ParseDuration(c.Worker.PollInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid worker.poll_interval %q: %w", c.Worker.PollInterval, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("worker.poll_interval must be positive, got %s", d)
	}
	return d, nil
}
