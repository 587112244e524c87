// Package pipeline runs the five stages in order for a first-time ingestion.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/tengine/internal/artifact"
	"github.com/kalambet/tengine/internal/stage"
)

// ErrInvalidRunID is returned for run ids that cannot name artifacts.
var ErrInvalidRunID = errors.New("invalid run id")

// StageError reports the stage that aborted a run. Artifacts persisted by
// earlier stages stay in the store.
type StageError struct {
	Stage stage.Name
	RunID string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("run %s: stage %s: %v", e.RunID, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Result holds the artifacts of one run keyed by the stage that produced them.
type Result struct {
	RunID     string
	Artifacts map[stage.Name]*artifact.Artifact
}

// Ordered returns the produced artifacts in pipeline order.
func (r *Result) Ordered() []*artifact.Artifact {
	var out []*artifact.Artifact
	for _, n := range stage.Order {
		if a, ok := r.Artifacts[n]; ok {
			out = append(out, a)
		}
	}
	return out
}

// Final returns the validated artifact, or nil if the run did not finish.
func (r *Result) Final() *artifact.Artifact {
	return r.Artifacts[stage.Validate]
}

// Runner executes stages strictly in sequence, feeding each output to the
// next stage. Nothing is retried.
type Runner struct {
	stages []stage.Stage
	logger *slog.Logger
}

// NewRunner creates a Runner over the registry's stages in pipeline order.
func NewRunner(reg *stage.Registry, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{stages: reg.Ordered(), logger: logger}
}

// Ingest runs the pipeline on text under runID. On failure it returns the
// artifacts produced so far together with a *StageError.
func (r *Runner) Ingest(ctx context.Context, text, runID string) (*Result, error) {
	if runID == "" {
		return nil, fmt.Errorf("ingest: %w: empty", ErrInvalidRunID)
	}
	if strings.ContainsAny(runID, `/\`) {
		return nil, fmt.Errorf("ingest: %w %q: contains a path separator", ErrInvalidRunID, runID)
	}

	start := time.Now()
	res := &Result{RunID: runID, Artifacts: make(map[stage.Name]*artifact.Artifact, len(r.stages))}
	in := stage.RawInput(text)
	for _, s := range r.stages {
		if err := ctx.Err(); err != nil {
			return res, &StageError{Stage: s.Name(), RunID: runID, Err: err}
		}
		out, err := s.Transform(ctx, in, runID, stage.Options{})
		if err != nil {
			r.logger.Warn("pipeline aborted", "run_id", runID, "stage", s.Name(), "error", err)
			return res, &StageError{Stage: s.Name(), RunID: runID, Err: err}
		}
		res.Artifacts[s.Name()] = out
		in = out
	}

	final := res.Final()
	r.logger.Info("pipeline complete",
		"run_id", runID,
		"artifact_id", final.ID,
		"status", final.Status,
		"confidence", final.Confidence,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}
