package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/tengine/internal/pipeline"
	"github.com/kalambet/tengine/internal/storage"
)

// JobTypePipeline is the queue type of asynchronous ingestion jobs.
const JobTypePipeline = "pipeline_ingest"

// JobStore abstracts the job queue operations.
type JobStore interface {
	EnqueueJob(job storage.Job) error
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
}

// Ingester runs the pipeline. *service.Service implements it.
type Ingester interface {
	Ingest(ctx context.Context, text, runID string) (*pipeline.Result, error)
}

// Payload is the JSON body of a pipeline_ingest job.
type Payload struct {
	RunID  string `json:"run_id"`
	Text   string `json:"text"`
	Source string `json:"source,omitempty"`
}

// Enqueue queues text for ingestion under runID and returns the job id. A
// failed job is not retried.
func Enqueue(store JobStore, p Payload) (string, error) {
	if p.RunID == "" {
		return "", fmt.Errorf("enqueue: empty run id")
	}
	body, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encoding job payload: %w", err)
	}
	id := uuid.NewString()
	if err := store.EnqueueJob(storage.Job{
		ID:          id,
		Type:        JobTypePipeline,
		PayloadJSON: string(body),
	}); err != nil {
		return "", fmt.Errorf("enqueueing job: %w", err)
	}
	return id, nil
}

// Worker drains pipeline_ingest jobs from the SQLite job queue.
type Worker struct {
	store    JobStore
	ingester Ingester
	poll     time.Duration
	logger   *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, ingester Ingester, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:    store,
		ingester: ingester,
		poll:     pollInterval,
		logger:   slog.Default().With("component", "ingest-worker"),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single pipeline_ingest job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobTypePipeline})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var p Payload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &p); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}
	if p.RunID == "" {
		return fmt.Errorf("payload has no run id")
	}

	res, err := w.ingester.Ingest(ctx, p.Text, p.RunID)
	if err != nil {
		return err
	}
	w.logger.Info("job completed", "job_id", job.ID, "run_id", p.RunID, "artifact_id", res.Final().ID, "source", p.Source)
	return nil
}
