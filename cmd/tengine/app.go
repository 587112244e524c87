package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/kalambet/tengine/internal/artifact"
	"github.com/kalambet/tengine/internal/config"
	"github.com/kalambet/tengine/internal/logging"
	"github.com/kalambet/tengine/internal/retrieval"
	"github.com/kalambet/tengine/internal/service"
	"github.com/kalambet/tengine/internal/storage"
	"github.com/kalambet/tengine/internal/telemetry"
)

// app is everything a command needs, wired from one Config.
type app struct {
	cfg    config.Config
	db     *storage.Store
	files  *storage.FileStore // nil unless storage.backend is files
	events *telemetry.JSONLSink
	rows   *telemetry.StoreSink
	source retrieval.Source
	svc    *service.Service
	logger *slog.Logger
}

// loadApp loads config, installs the process logger and opens the stores.
func loadApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, err := logging.Setup(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		return nil, err
	}
	return newApp(cfg, logger)
}

func newApp(cfg config.Config, logger *slog.Logger) (*app, error) {
	db, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	var backend artifact.Backend = db
	var files *storage.FileStore
	if cfg.Storage.Backend == config.BackendFiles {
		files, err = storage.OpenFileStore(cfg.ArtifactsDir())
		if err != nil {
			db.Close()
			return nil, err
		}
		backend = files
	}

	events, err := telemetry.NewJSONLSink(cfg.TelemetryDir())
	if err != nil {
		db.Close()
		return nil, err
	}
	rows := telemetry.NewStoreSink(db)
	sinks := telemetry.Multi{events, rows}
	if cfg.Telemetry.Metrics {
		m, err := telemetry.NewMetricsSink(nil)
		if err != nil {
			db.Close()
			return nil, err
		}
		sinks = append(sinks, m)
	}

	var source retrieval.Source
	switch cfg.Context.Source {
	case config.SourceSQLite:
		source = retrieval.NewStoreSource(db)
	default:
		source = retrieval.NewDirSource(cfg.ContextDir(), logging.For("retrieval"))
	}

	arts := artifact.NewStore(backend)
	return &app{
		cfg:    cfg,
		db:     db,
		files:  files,
		events: events,
		rows:   rows,
		source: source,
		svc: service.New(service.Options{
			Store:     arts,
			Sink:      sinks,
			Retriever: retrieval.NewRetriever(source),
			Logger:    logger,
		}),
		logger: logger,
	}, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
	}
}
