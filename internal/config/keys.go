package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool   // environment only; never persisted or shown
	hint    string // shown next to the value by config show
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "storage.data_dir", typ: kString, env: "TENGINE_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.backend", typ: kString, env: "TENGINE_STORAGE_BACKEND",
		hint:    "sqlite: artifacts table in tengine.db; files: one <id>.json per artifact under <data_dir>/artifacts",
		apply:   func(cfg *Config, v any) { cfg.Storage.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.Backend },
	},
	{
		key: "context.dir", typ: kString, env: "TENGINE_CONTEXT_DIR",
		apply:   func(cfg *Config, v any) { cfg.Context.Dir = v.(string) },
		extract: func(cfg Config) any { return cfg.ContextDir() },
	},
	{
		key: "context.source", typ: kString, env: "TENGINE_CONTEXT_SOURCE",
		apply:   func(cfg *Config, v any) { cfg.Context.Source = v.(string) },
		extract: func(cfg Config) any { return cfg.Context.Source },
	},
	{
		key: "telemetry.dir", typ: kString, env: "TENGINE_TELEMETRY_DIR",
		apply:   func(cfg *Config, v any) { cfg.Telemetry.Dir = v.(string) },
		extract: func(cfg Config) any { return cfg.TelemetryDir() },
	},
	{
		key: "telemetry.metrics", typ: kBool, env: "TENGINE_TELEMETRY_METRICS",
		apply:   func(cfg *Config, v any) { cfg.Telemetry.Metrics = v.(bool) },
		extract: func(cfg Config) any { return cfg.Telemetry.Metrics },
	},
	{
		key: "telemetry.otlp_endpoint", typ: kString, env: "TENGINE_OTLP_ENDPOINT",
		apply:   func(cfg *Config, v any) { cfg.Telemetry.OTLPEndpoint = v.(string) },
		extract: func(cfg Config) any { return cfg.Telemetry.OTLPEndpoint },
	},
	{
		key: "telemetry.otlp_insecure", typ: kBool, env: "TENGINE_OTLP_INSECURE",
		apply:   func(cfg *Config, v any) { cfg.Telemetry.OTLPInsecure = v.(bool) },
		extract: func(cfg Config) any { return cfg.Telemetry.OTLPInsecure },
	},
	{
		key: "server.port", typ: kInt, env: "TENGINE_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.api_token", typ: kString, env: "TENGINE_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "log.level", typ: kString, env: "TENGINE_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "log.format", typ: kString, env: "TENGINE_LOG_FORMAT",
		apply:   func(cfg *Config, v any) { cfg.Log.Format = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Format },
	},
	{
		key: "worker.poll_interval", typ: kString, env: "TENGINE_WORKER_POLL_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Worker.PollInterval = v.(string) },
		extract: func(cfg Config) any { return cfg.Worker.PollInterval },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
