package api

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/blagoySimandov/autoflow/internal/auth"
	"github.com/blagoySimandov/autoflow/internal/dataset"
	"github.com/blagoySimandov/autoflow/internal/logger"
	"github.com/blagoySimandov/autoflow/internal/mapper"
	"github.com/blagoySimandov/autoflow/internal/models"
)

const (
	defaultMaxUploadBytes = 20 << 20
	previewRows           = 5
	signedURLTTL          = 90 * time.Second
)

type Runner interface {
	Run(ctx context.Context, req models.RunRequest) (*models.RunSummary, error)
}

// SignedUploader is implemented by dataset stores that can hand out direct
// upload URLs.
type SignedUploader interface {
	SignedUploadURL(ext, contentType string, ttl time.Duration) (handle, url string, err error)
}

type WorkflowHandler struct {
	datasets       dataset.Store
	runner         Runner
	maxUploadBytes int64
}

func NewWorkflowHandler(datasets dataset.Store, runner Runner) *WorkflowHandler {
	return &WorkflowHandler{
		datasets:       datasets,
		runner:         runner,
		maxUploadBytes: defaultMaxUploadBytes,
	}
}

type UploadResponse struct {
	Headers    []string          `json:"headers"`
	Mapping    map[string]string `json:"mapping"`
	Missing    []string          `json:"missing"`
	Preview    []dataset.Row     `json:"preview"`
	TotalRows  int               `json:"totalRows"`
	DistinctID string            `json:"distinctId"`
}

func (h *WorkflowHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no_file", "No file uploaded")
		return
	}
	defer file.Close()

	ext := filepath.Ext(header.Filename)
	if !dataset.SupportedExtension(ext) {
		writeError(w, http.StatusBadRequest, "unsupported_format", "Unsupported file type "+ext)
		return
	}

	handle, err := h.datasets.Save(r.Context(), ext, file)
	if err != nil {
		logger.Log.Error("failed to store upload", "filename", header.Filename, "error", err)
		writeError(w, http.StatusInternalServerError, "upload_failed", "Error processing file")
		return
	}

	ds, err := dataset.Load(r.Context(), h.datasets, handle)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable", "Error processing file")
		return
	}
	if len(ds.Rows) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Empty file"})
		return
	}

	mapping, missing := mapper.MapColumns(ds.Headers)
	resp := UploadResponse{
		Headers:    ds.Headers,
		Mapping:    make(map[string]string, len(mapping)),
		Missing:    make([]string, len(missing)),
		Preview:    ds.Preview(previewRows),
		TotalRows:  len(ds.Rows),
		DistinctID: handle,
	}
	for f, col := range mapping {
		resp.Mapping[string(f)] = col
	}
	for i, f := range missing {
		resp.Missing[i] = string(f)
	}

	writeJSON(w, http.StatusOK, resp)
}

type UploadURLRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
}

type UploadURLResponse struct {
	URL        string `json:"url"`
	DistinctID string `json:"distinctId"`
}

func (h *WorkflowHandler) UploadURL(w http.ResponseWriter, r *http.Request) {
	signer, ok := h.datasets.(SignedUploader)
	if !ok {
		writeError(w, http.StatusNotImplemented, "not_supported", "Direct uploads require object storage")
		return
	}

	var req UploadURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	ext := filepath.Ext(req.Filename)
	if !dataset.SupportedExtension(ext) {
		writeError(w, http.StatusBadRequest, "unsupported_format", "Unsupported file type "+ext)
		return
	}

	handle, url, err := signer.SignedUploadURL(ext, req.ContentType, signedURLTTL)
	if err != nil {
		logger.Log.Error("failed to sign upload url", "error", err)
		writeError(w, http.StatusInternalServerError, "upload_failed", "Failed to create upload URL")
		return
	}
	writeJSON(w, http.StatusOK, UploadURLResponse{URL: url, DistinctID: handle})
}

type RunWorkflowRequest struct {
	WorkflowType string `json:"workflowType"`
	Config       struct {
		Channels map[string]bool `json:"channels"`
	} `json:"config"`
	DistinctID        string            `json:"distinctId"`
	Mapping           map[string]string `json:"mapping"`
	Tone              string            `json:"tone"`
	AdditionalContext string            `json:"additionalContext"`
}

type RunWorkflowResponse struct {
	Message     string                 `json:"message"`
	RunID       string                 `json:"runId"`
	Count       int                    `json:"count"`
	Sent        int                    `json:"sent"`
	Failed      int                    `json:"failed"`
	Skipped     int                    `json:"skipped"`
	Simulated   int                    `json:"simulated"`
	SuccessRate float64                `json:"successRate"`
	Status      models.RunStatus       `json:"status"`
	Summary     string                 `json:"summary"`
	Persistence models.PersistenceMode `json:"persistence"`
}

func (h *WorkflowHandler) RunWorkflow(w http.ResponseWriter, r *http.Request) {
	var body RunWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if body.DistinctID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "Missing file ID")
		return
	}
	if strings.TrimSpace(body.WorkflowType) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "Missing workflow type")
		return
	}

	req := models.RunRequest{
		WorkflowType:  body.WorkflowType,
		Channels:      parseChannels(body.Config.Channels),
		DatasetHandle: body.DistinctID,
		Mapping:       body.Mapping,
		Tone:          body.Tone,
		Context:       body.AdditionalContext,
	}
	if user, ok := auth.GetUserFromContext(r.Context()); ok {
		req.UserID = user.ID
	}

	// A client disconnect must not cut a run short.
	summary, err := h.runner.Run(context.WithoutCancel(r.Context()), req)
	if err != nil {
		writeRunError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, RunWorkflowResponse{
		Message:     "Workflow completed",
		RunID:       summary.RunID,
		Count:       summary.TotalRecords,
		Sent:        summary.SentCount,
		Failed:      summary.FailedCount,
		Skipped:     summary.SkippedCount,
		Simulated:   summary.SimulatedCount,
		SuccessRate: summary.SuccessRate,
		Status:      summary.Status,
		Summary:     summary.SummaryText,
		Persistence: summary.Persistence,
	})
}

func parseChannels(raw map[string]bool) models.Channels {
	channels := make(models.Channels, len(raw))
	for k, v := range raw {
		channels[models.Channel(strings.ToLower(k))] = v
	}
	return channels
}

type MeResponse struct {
	Authenticated bool       `json:"authenticated"`
	User          *auth.User `json:"user,omitempty"`
}

func Me(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.GetUserFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusOK, MeResponse{})
		return
	}
	writeJSON(w, http.StatusOK, MeResponse{Authenticated: true, User: user})
}
