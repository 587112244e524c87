package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/kalambet/tengine/internal/artifact"
	"github.com/kalambet/tengine/internal/lineage"
	"github.com/kalambet/tengine/internal/pipeline"
	"github.com/kalambet/tengine/internal/stage"
	"github.com/kalambet/tengine/internal/storage"
)

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

// statusFor maps domain errors onto HTTP status codes and error types.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, artifact.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, artifact.ErrAlreadyExists):
		return http.StatusConflict, "conflict"
	case errors.Is(err, artifact.ErrMissingParent),
		errors.Is(err, artifact.ErrTypeMismatch),
		errors.Is(err, artifact.ErrInvalidID),
		errors.Is(err, artifact.ErrInvalidArtifact),
		errors.Is(err, lineage.ErrTooDeep):
		return http.StatusUnprocessableEntity, "unprocessable_entity"
	case errors.Is(err, stage.ErrUnknownStage), errors.Is(err, pipeline.ErrInvalidRunID):
		return http.StatusBadRequest, "invalid_request_error"
	}
	return http.StatusInternalServerError, "api_error"
}

func writeDomainError(w http.ResponseWriter, err error) {
	code, typ := statusFor(err)
	httpError(w, code, typ, "%v", err)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
