package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/tengine/internal/artifact"
	"github.com/kalambet/tengine/internal/ingest"
	"github.com/kalambet/tengine/internal/lineage"
	"github.com/kalambet/tengine/internal/pipeline"
	"github.com/kalambet/tengine/internal/storage"
)

const maxIngestBodySize = 10 << 20 // 10MB
const maxRequestBodySize = 1 << 20 // 1MB

// Service is the caller-facing surface of the engine. *service.Service
// implements it.
type Service interface {
	Ingest(ctx context.Context, text, runID string) (*pipeline.Result, error)
	GetLineage(ctx context.Context, id string) (*lineage.View, error)
	ReplayStage(ctx context.Context, id, stageName string) (*artifact.Artifact, error)
	Artifact(ctx context.Context, id string) (*artifact.Artifact, error)
}

type IngestRequest struct {
	RunID   string `json:"run_id"`
	Source  string `json:"source"`
	Type    string `json:"type"` // "text" (default), "html" or "file" (base64 text)
	Content string `json:"content"`
}

type AppDeps struct {
	Service Service
	Store   *storage.Store // jobs and context documents; optional
	Token   string
	Logger  *slog.Logger
}

func NewAppHandler(deps AppDeps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/ingest", handleIngest(deps))
		r.Post("/ingest/async", handleIngestAsync(deps))
		r.Get("/jobs/{id}", handleGetJob(deps))
		r.Get("/artifacts/{id}", handleGetArtifact(deps))
		r.Get("/artifacts/{id}/lineage", handleGetLineage(deps))
		r.Post("/artifacts/{id}/replay", handleReplay(deps))
		r.Get("/context-docs", handleListContextDocs(deps))
		r.Post("/context-docs", handleAddContextDoc(deps))
		r.Delete("/context-docs/{id}", handleDeleteContextDoc(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decodeIngest reads and resolves an ingestion request body into plain text.
func decodeIngest(w http.ResponseWriter, r *http.Request) (IngestRequest, string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxIngestBodySize)
	defer r.Body.Close()

	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return req, "", false
	}
	if req.Content == "" {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "content is required")
		return req, "", false
	}

	switch req.Type {
	case "", "text":
		return req, req.Content, true
	case "html":
		text, err := ingest.ReadHTML(strings.NewReader(req.Content))
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid html: %v", err)
			return req, "", false
		}
		return req, text, true
	case "file":
		decoded, err := base64.StdEncoding.DecodeString(req.Content)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid base64 content")
			return req, "", false
		}
		return req, string(decoded), true
	}
	httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown type %q (want text, html or file)", req.Type)
	return req, "", false
}

// ArtifactSummary is the short form of an artifact used in run listings.
type ArtifactSummary struct {
	ID         string          `json:"artifact_id"`
	Type       artifact.Type   `json:"type"`
	Status     artifact.Status `json:"status"`
	Confidence float64         `json:"confidence"`
	Version    int             `json:"version"`
}

func summarize(arts []*artifact.Artifact) []ArtifactSummary {
	out := make([]ArtifactSummary, 0, len(arts))
	for _, a := range arts {
		out = append(out, ArtifactSummary{
			ID:         a.ID,
			Type:       a.Type,
			Status:     a.Status,
			Confidence: a.Confidence,
			Version:    a.Version,
		})
	}
	return out
}

type IngestResponse struct {
	RunID           string            `json:"run_id"`
	FinalArtifactID string            `json:"final_artifact_id"`
	Status          artifact.Status   `json:"status"`
	Confidence      float64           `json:"confidence"`
	Artifacts       []ArtifactSummary `json:"artifacts"`
}

func handleIngest(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, text, ok := decodeIngest(w, r)
		if !ok {
			return
		}

		res, err := deps.Service.Ingest(r.Context(), text, req.RunID)
		if err != nil {
			var se *pipeline.StageError
			if errors.As(err, &se) && res != nil {
				code, typ := statusFor(err)
				writeJSON(w, code, map[string]any{
					"error": map[string]any{
						"message": err.Error(),
						"type":    typ,
					},
					"run_id":       res.RunID,
					"failed_stage": se.Stage,
					"artifacts":    summarize(res.Ordered()),
				})
				return
			}
			writeDomainError(w, err)
			return
		}

		final := res.Final()
		writeJSON(w, http.StatusOK, IngestResponse{
			RunID:           res.RunID,
			FinalArtifactID: final.ID,
			Status:          final.Status,
			Confidence:      final.Confidence,
			Artifacts:       summarize(res.Ordered()),
		})
	}
}

func handleIngestAsync(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Store == nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "job queue not configured")
			return
		}
		req, text, ok := decodeIngest(w, r)
		if !ok {
			return
		}

		runID := req.RunID
		if runID == "" {
			runID = newRunID()
		}
		jobID, err := ingest.Enqueue(deps.Store, ingest.Payload{RunID: runID, Text: text, Source: req.Source})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to enqueue job: %v", err)
			return
		}
		deps.Logger.Info("ingestion queued", "job_id", jobID, "run_id", runID)

		writeJSON(w, http.StatusAccepted, map[string]string{
			"job_id": jobID,
			"run_id": runID,
			"status": "queued",
		})
	}
}

type JobResponse struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Status    string `json:"status"`
	Attempts  int    `json:"attempts"`
	RunID     string `json:"run_id,omitempty"`
	LastError string `json:"last_error,omitempty"`
}

func handleGetJob(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Store == nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "job queue not configured")
			return
		}
		id := chi.URLParam(r, "id")

		job, err := deps.Store.GetJob(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get job: %v", err)
			return
		}

		resp := JobResponse{
			ID:        job.ID,
			Type:      job.Type,
			Status:    job.Status,
			Attempts:  job.Attempts,
			LastError: job.LastError,
		}
		var p ingest.Payload
		if json.Unmarshal([]byte(job.PayloadJSON), &p) == nil {
			resp.RunID = p.RunID
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleListContextDocs(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Store == nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "context store not configured")
			return
		}
		limit := parseIntParam(r, "limit", 0, 1000)

		docs, err := deps.Store.ListContextDocs(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list context docs: %v", err)
			return
		}

		if docs == nil {
			docs = []storage.ContextDoc{}
		}
		writeJSON(w, http.StatusOK, docs)
	}
}

type ContextDocRequest struct {
	ID      string `json:"context_id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

func handleAddContextDoc(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Store == nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "context store not configured")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req ContextDocRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.ID == "" || req.Content == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "context_id and content are required")
			return
		}

		if _, err := deps.Store.GetContextDoc(req.ID); err == nil {
			httpError(w, http.StatusConflict, "conflict", "context doc %q already exists", req.ID)
			return
		} else if !errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to check context doc: %v", err)
			return
		}

		doc := storage.ContextDoc{ID: req.ID, Title: req.Title, Content: req.Content, Source: "api"}
		if err := deps.Store.SaveContextDoc(doc); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save document: %v", err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"context_id": req.ID, "status": "stored"})
	}
}

func handleDeleteContextDoc(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Store == nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "context store not configured")
			return
		}
		id := chi.URLParam(r, "id")

		err := deps.Store.DeleteContextDoc(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "context doc not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete context doc: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
