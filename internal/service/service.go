// Package service exposes the three caller operations (ingest, lineage and
// replay) over one explicitly wired store, sink and context retriever.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/tengine/internal/artifact"
	"github.com/kalambet/tengine/internal/lineage"
	"github.com/kalambet/tengine/internal/pipeline"
	"github.com/kalambet/tengine/internal/replay"
	"github.com/kalambet/tengine/internal/stage"
	"github.com/kalambet/tengine/internal/telemetry"
)

// Options wires a Service. Store is required; the rest have defaults.
type Options struct {
	Store     *artifact.Store
	Sink      telemetry.Sink
	Retriever stage.ContextRetriever
	Now       func() time.Time
	Logger    *slog.Logger
}

// Service is safe for concurrent use as long as its store and sink are.
type Service struct {
	store    *artifact.Store
	runner   *pipeline.Runner
	replayer *replay.Engine
	lineage  *lineage.Resolver
	logger   *slog.Logger
}

func New(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	env := &stage.Env{
		Store:  opts.Store,
		Sink:   opts.Sink,
		Now:    opts.Now,
		Logger: logger,
	}
	reg := stage.NewRegistry(env, opts.Retriever)
	return &Service{
		store:    opts.Store,
		runner:   pipeline.NewRunner(reg, logger),
		replayer: replay.New(opts.Store, reg, logger),
		lineage:  lineage.NewResolver(opts.Store),
		logger:   logger,
	}
}

// NewRunID returns a fresh run id.
func NewRunID() string {
	return uuid.NewString()
}

// Ingest runs the full pipeline over text. An empty runID is replaced by a
// generated one, reported in the result.
func (s *Service) Ingest(ctx context.Context, text, runID string) (*pipeline.Result, error) {
	if runID == "" {
		runID = NewRunID()
	}
	return s.runner.Ingest(ctx, text, runID)
}

// GetLineage returns the artifact, its ancestry and its version family.
func (s *Service) GetLineage(_ context.Context, id string) (*lineage.View, error) {
	return s.lineage.Lineage(id)
}

// ReplayStage recomputes one stage for the artifact id.
func (s *Service) ReplayStage(ctx context.Context, id, stageName string) (*artifact.Artifact, error) {
	name, err := stage.ParseName(stageName)
	if err != nil {
		return nil, err
	}
	return s.replayer.Replay(ctx, id, name)
}

// Artifact loads a single artifact.
func (s *Service) Artifact(_ context.Context, id string) (*artifact.Artifact, error) {
	return s.store.Load(id)
}
