package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/blagoySimandov/autoflow/internal/auth"
	"github.com/blagoySimandov/autoflow/internal/ledger"
	"github.com/blagoySimandov/autoflow/internal/logger"
	"github.com/blagoySimandov/autoflow/internal/models"
	"github.com/blagoySimandov/autoflow/internal/state"
	"github.com/gorilla/mux"
)

const (
	recentLogsLimit = 100
	activityRuns    = 50
	defaultRunLimit = 20
	maxRunLimit     = 100
	storeTimeout    = 5 * time.Second
)

// HistoryHandler serves past runs and message logs. Reads go to the durable
// store and fall back to the local log when it is absent or failing.
type HistoryHandler struct {
	store state.Store
	local *ledger.LocalLog
}

func NewHistoryHandler(store state.Store, local *ledger.LocalLog) *HistoryHandler {
	return &HistoryHandler{store: store, local: local}
}

type LogView struct {
	ID        string  `json:"id"`
	RunID     string  `json:"runId"`
	Workflow  string  `json:"workflow"`
	Name      string  `json:"name"`
	Recipient string  `json:"recipient,omitempty"`
	Channel   string  `json:"channel"`
	Status    string  `json:"status"`
	Error     *string `json:"error,omitempty"`
	Time      string  `json:"time"`
}

func toLogViews(entries []*models.MessageLogEntry) []LogView {
	views := make([]LogView, len(entries))
	for i, e := range entries {
		views[i] = LogView{
			ID:        e.ID,
			RunID:     e.RunID,
			Workflow:  e.WorkflowType,
			Name:      e.Name,
			Recipient: e.Recipient,
			Channel:   e.Channel,
			Status:    string(e.DeliveryStatus),
			Error:     e.Error,
			Time:      e.Timestamp.Format(time.RFC3339),
		}
	}
	return views
}

func (h *HistoryHandler) GetLogs(w http.ResponseWriter, r *http.Request) {
	if h.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
		defer cancel()
		entries, err := h.store.RecentLogs(ctx, recentLogsLimit)
		if err == nil {
			writeJSON(w, http.StatusOK, toLogViews(entries))
			return
		}
		logger.Log.Warn("failed to read logs from store, using local log", "error", err)
	}
	writeJSON(w, http.StatusOK, toLogViews(h.local.Recent(recentLogsLimit)))
}

type RunsResponse struct {
	Runs   []*models.WorkflowRun `json:"runs"`
	Offset int                   `json:"offset"`
	Limit  int                   `json:"limit"`
}

func (h *HistoryHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", defaultRunLimit)
	if limit <= 0 || limit > maxRunLimit {
		limit = defaultRunLimit
	}

	var userID string
	if user, ok := auth.GetUserFromContext(r.Context()); ok {
		userID = user.ID
	}

	writeJSON(w, http.StatusOK, RunsResponse{
		Runs:   h.runs(r.Context(), userID, offset, limit),
		Offset: offset,
		Limit:  limit,
	})
}

func (h *HistoryHandler) runs(ctx context.Context, userID string, offset, limit int) []*models.WorkflowRun {
	if h.store != nil {
		ctx, cancel := context.WithTimeout(ctx, storeTimeout)
		defer cancel()
		runs, err := h.store.ListRuns(ctx, userID, offset, limit)
		if err == nil {
			return runs
		}
		logger.Log.Warn("failed to list runs from store, using local log", "error", err)
	}

	runs := h.local.Runs(0)
	if userID != "" {
		owned := runs[:0:0]
		for _, run := range runs {
			if run.UserID == userID {
				owned = append(owned, run)
			}
		}
		runs = owned
	}
	if offset >= len(runs) {
		return []*models.WorkflowRun{}
	}
	runs = runs[offset:]
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs
}

type RunDetailResponse struct {
	Run  *models.WorkflowRun `json:"run"`
	Logs []LogView           `json:"logs"`
}

func (h *HistoryHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["runID"]

	if h.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
		defer cancel()
		run, err := h.store.GetRun(ctx, runID)
		if err == nil {
			entries, err := h.store.RunLogs(ctx, runID)
			if err != nil {
				logger.Log.Error("failed to read run logs", "run_id", runID, "error", err)
				writeError(w, http.StatusInternalServerError, "store_error", "Failed to read run logs")
				return
			}
			writeJSON(w, http.StatusOK, RunDetailResponse{Run: run, Logs: toLogViews(entries)})
			return
		}
		if !errors.Is(err, state.ErrRunNotFound) {
			logger.Log.Warn("failed to read run from store, using local log", "run_id", runID, "error", err)
		}
	}

	// Runs that degraded to the local log are only found here.
	run, ok := h.local.Run(runID)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "Run not found")
		return
	}
	writeJSON(w, http.StatusOK, RunDetailResponse{Run: run, Logs: toLogViews(h.local.RunEntries(runID))})
}

type DashboardMetrics struct {
	TotalRuns   int `json:"totalRuns"`
	TotalSent   int `json:"totalSent"`
	TotalFailed int `json:"totalFailed"`
}

type StatusCount struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

func (h *HistoryHandler) DashboardMetrics(w http.ResponseWriter, r *http.Request) {
	var m DashboardMetrics
	for _, run := range h.runs(r.Context(), "", 0, 0) {
		m.TotalRuns++
		m.TotalSent += run.SentCount
		m.TotalFailed += run.FailedCount
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *HistoryHandler) DeliveryStatus(w http.ResponseWriter, r *http.Request) {
	var sent, failed, skipped int
	for _, run := range h.runs(r.Context(), "", 0, 0) {
		sent += run.SentCount
		failed += run.FailedCount
		skipped += run.SkippedCount
	}
	writeJSON(w, http.StatusOK, []StatusCount{
		{Name: string(models.DeliverySent), Value: sent},
		{Name: string(models.DeliveryFailed), Value: failed},
		{Name: string(models.DeliverySkipped), Value: skipped},
	})
}

type DayActivity struct {
	Name   string `json:"name"`
	Sent   int    `json:"sent"`
	Failed int    `json:"failed"`
}

// WeeklyActivity groups the latest runs by the weekday they started on.
func (h *HistoryHandler) WeeklyActivity(w http.ResponseWriter, r *http.Request) {
	days := []*DayActivity{}
	byName := make(map[string]*DayActivity)
	for _, run := range h.runs(r.Context(), "", 0, activityRuns) {
		name := "Unknown"
		if !run.StartedAt.IsZero() {
			name = run.StartedAt.Format("Mon")
		}
		day, ok := byName[name]
		if !ok {
			day = &DayActivity{Name: name}
			byName[name] = day
			days = append(days, day)
		}
		day.Sent += run.SentCount
		day.Failed += run.FailedCount
	}
	writeJSON(w, http.StatusOK, days)
}

type RunDigest struct {
	SummaryText  string    `json:"summaryText"`
	WorkflowType string    `json:"workflowType"`
	Timestamp    time.Time `json:"timestamp"`
}

// LatestSummary returns the summary of the most recent run, or null.
func (h *HistoryHandler) LatestSummary(w http.ResponseWriter, r *http.Request) {
	runs := h.runs(r.Context(), "", 0, 1)
	if len(runs) == 0 {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	latest := runs[0]
	text := latest.SummaryText
	if text == "" {
		text = "No summary available."
	}
	writeJSON(w, http.StatusOK, RunDigest{
		SummaryText:  text,
		WorkflowType: latest.WorkflowType,
		Timestamp:    latest.CompletedAt,
	})
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
