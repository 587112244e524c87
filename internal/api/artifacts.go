package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kalambet/tengine/internal/artifact"
	"github.com/kalambet/tengine/internal/lineage"
)

func newRunID() string {
	return uuid.NewString()
}

func handleGetArtifact(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := deps.Service.Artifact(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

// AncestorEntry is one step of an ancestry walk; depth 1 is the direct parent.
type AncestorEntry struct {
	Depth    int                `json:"depth"`
	Artifact *artifact.Artifact `json:"artifact"`
}

type LineageResponse struct {
	Artifact *artifact.Artifact `json:"artifact"`
	Chain    []AncestorEntry    `json:"chain"`
	Versions []ArtifactSummary  `json:"versions"`
}

func lineageResponse(v *lineage.View) LineageResponse {
	chain := make([]AncestorEntry, 0, len(v.Chain))
	for _, anc := range v.Chain {
		chain = append(chain, AncestorEntry{Depth: anc.Depth, Artifact: anc.Artifact})
	}
	return LineageResponse{
		Artifact: v.Artifact,
		Chain:    chain,
		Versions: summarize(v.Versions),
	}
}

func handleGetLineage(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := deps.Service.GetLineage(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, lineageResponse(view))
	}
}

type ReplayRequest struct {
	Stage string `json:"stage"`
}

// handleReplay takes the stage from the JSON body or, failing that, the
// "stage" query parameter.
func handleReplay(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req ReplayRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Stage == "" {
			req.Stage = r.URL.Query().Get("stage")
		}
		if req.Stage == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "stage is required")
			return
		}

		id := chi.URLParam(r, "id")
		a, err := deps.Service.ReplayStage(r.Context(), id, req.Stage)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		deps.Logger.Info("stage replayed", "replay_of", id, "stage", req.Stage, "artifact_id", a.ID)
		writeJSON(w, http.StatusCreated, a)
	}
}
