package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/blagoySimandov/autoflow/internal/logger"
	"github.com/blagoySimandov/autoflow/internal/logging"
	"github.com/blagoySimandov/autoflow/internal/pipeline"
)

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Error("failed to write JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, ErrorResponse{Code: code, Message: message})
}

// writeRunError maps a run failure onto an HTTP status by its class.
func writeRunError(w http.ResponseWriter, r *http.Request, err error) {
	var fatal *pipeline.FatalRunError
	if !errors.As(err, &fatal) {
		logging.EnrichError(r.Context(), err, string(pipeline.ClassGeneric))
		writeError(w, http.StatusInternalServerError, string(pipeline.ClassGeneric), "Failed to run workflow")
		return
	}

	logging.EnrichError(r.Context(), fatal, string(fatal.Class))
	status := http.StatusInternalServerError
	switch fatal.Class {
	case pipeline.ClassDatasetNotFound:
		status = http.StatusNotFound
	case pipeline.ClassStorePermissionDenied:
		status = http.StatusForbidden
	}
	writeError(w, status, string(fatal.Class), fatal.Err.Error())
}
