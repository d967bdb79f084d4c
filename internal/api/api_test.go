package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/blagoySimandov/autoflow/internal/auth"
	"github.com/blagoySimandov/autoflow/internal/dataset"
	"github.com/blagoySimandov/autoflow/internal/ledger"
	"github.com/blagoySimandov/autoflow/internal/models"
	"github.com/blagoySimandov/autoflow/internal/pipeline"
	"github.com/blagoySimandov/autoflow/internal/state"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	got     models.RunRequest
	summary *models.RunSummary
	err     error
}

func (f *fakeRunner) Run(ctx context.Context, req models.RunRequest) (*models.RunSummary, error) {
	f.got = req
	return f.summary, f.err
}

type fakeStore struct {
	err     error
	runs    []*models.WorkflowRun
	entries []*models.MessageLogEntry
}

func (f *fakeStore) Ping(ctx context.Context) error { return f.err }

func (f *fakeStore) CommitRun(ctx context.Context, run *models.WorkflowRun, entries []*models.MessageLogEntry) error {
	return f.err
}

func (f *fakeStore) GetRun(ctx context.Context, runID string) (*models.WorkflowRun, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, r := range f.runs {
		if r.ID == runID {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", state.ErrRunNotFound, runID)
}

func (f *fakeStore) ListRuns(ctx context.Context, userID string, offset, limit int) ([]*models.WorkflowRun, error) {
	return f.runs, f.err
}

func (f *fakeStore) RecentLogs(ctx context.Context, limit int) ([]*models.MessageLogEntry, error) {
	return f.entries, f.err
}

func (f *fakeStore) RunLogs(ctx context.Context, runID string) ([]*models.MessageLogEntry, error) {
	return f.entries, f.err
}

func (f *fakeStore) Close() error { return nil }

type fakeTester struct {
	configured bool
	reply      string
	err        error
}

func (f fakeTester) Configured() bool { return f.configured }

func (f fakeTester) TestConnection(ctx context.Context) (string, error) { return f.reply, f.err }

type fakeModes map[models.Channel]bool

func (f fakeModes) Simulated(ch models.Channel) bool { return !f[ch] }

type testServer struct {
	router http.Handler
	runner *fakeRunner
	local  *ledger.LocalLog
}

func newTestServer(t *testing.T, store state.Store, verifier auth.Verifier) *testServer {
	t.Helper()
	src, err := dataset.NewLocalSource(t.TempDir())
	require.NoError(t, err)

	runner := &fakeRunner{}
	local := ledger.NewLocalLog(10)
	handlers := Handlers{
		Workflow: NewWorkflowHandler(src, runner),
		History:  NewHistoryHandler(store, local),
		Health:   NewHealthHandler(store, fakeTester{configured: true, reply: "AI is working!"}, fakeModes{models.ChannelEmail: true}, "gemini", verifier != nil),
	}
	return &testServer{
		router: SetupRoutes(handlers, auth.NewMiddleware(verifier), "http://localhost:5173"),
		runner: runner,
		local:  local,
	}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func uploadRequest(t *testing.T, filename, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func jsonRequest(t *testing.T, method, path string, body interface{}) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestUpload(t *testing.T) {
	s := newTestServer(t, nil, nil)
	csv := "Name,Email,Amount\nAlice,alice@example.com,100\nBob,bob@example.com,200\n"

	rec := s.do(uploadRequest(t, "fees.csv", csv))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"Name", "Email", "Amount"}, resp.Headers)
	assert.Equal(t, "Amount", resp.Mapping["Balance"])
	assert.Equal(t, "Email", resp.Mapping["Email"])
	assert.Contains(t, resp.Missing, "Phone")
	assert.Equal(t, 2, resp.TotalRows)
	assert.Len(t, resp.Preview, 2)
	assert.NotEmpty(t, resp.DistinctID)
}

func TestUploadErrors(t *testing.T) {
	s := newTestServer(t, nil, nil)

	t.Run("empty file", func(t *testing.T) {
		rec := s.do(uploadRequest(t, "empty.csv", "Name,Email\n"))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"error":"Empty file"}`, rec.Body.String())
	})

	t.Run("unsupported extension", func(t *testing.T) {
		rec := s.do(uploadRequest(t, "notes.txt", "hello"))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "unsupported_format")
	})

	t.Run("no file", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/upload", nil)
		rec := s.do(req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "no_file")
	})
}

func TestUploadURLWithoutObjectStorage(t *testing.T) {
	s := newTestServer(t, nil, nil)
	rec := s.do(jsonRequest(t, http.MethodPost, "/api/upload-url", UploadURLRequest{Filename: "a.csv"}))
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestRunWorkflow(t *testing.T) {
	s := newTestServer(t, nil, nil)
	s.runner.summary = &models.RunSummary{
		RunID:        "run-1",
		TotalRecords: 3,
		SentCount:    2,
		FailedCount:  1,
		Status:       models.RunStatusPartial,
		SummaryText:  "Processed 3 records for Fee Reminder: 2 sent, 1 failed, 0 skipped (66.7% success).",
		Persistence:  models.PersistenceDurable,
	}

	body := map[string]interface{}{
		"workflowType":      "Fee Reminder",
		"config":            map[string]interface{}{"channels": map[string]bool{"Email": true, "whatsapp": false}},
		"distinctId":        "abc.csv",
		"mapping":           map[string]string{"Email": "Mail"},
		"tone":              "friendly",
		"additionalContext": "Term 2",
	}
	rec := s.do(jsonRequest(t, http.MethodPost, "/api/run-workflow", body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp RunWorkflowResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "run-1", resp.RunID)
	assert.Equal(t, 3, resp.Count)
	assert.Equal(t, 2, resp.Sent)
	assert.Equal(t, 1, resp.Failed)
	assert.Equal(t, models.RunStatusPartial, resp.Status)

	got := s.runner.got
	assert.Equal(t, "Fee Reminder", got.WorkflowType)
	assert.Equal(t, "abc.csv", got.DatasetHandle)
	assert.True(t, got.Channels.Enabled(models.ChannelEmail))
	assert.False(t, got.Channels.Enabled(models.ChannelWhatsApp))
	assert.Equal(t, "Mail", got.Mapping["Email"])
	assert.Equal(t, "friendly", got.Tone)
	assert.Equal(t, "Term 2", got.Context)
}

func TestRunWorkflowErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       map[string]interface{}
		runErr     error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "missing distinct id",
			body:       map[string]interface{}{"workflowType": "Fee Reminder"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_request",
		},
		{
			name:       "missing workflow type",
			body:       map[string]interface{}{"distinctId": "a.csv"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_request",
		},
		{
			name:       "dataset not found",
			body:       map[string]interface{}{"workflowType": "x", "distinctId": "a.csv"},
			runErr:     &pipeline.FatalRunError{Class: pipeline.ClassDatasetNotFound, Err: dataset.ErrNotFound},
			wantStatus: http.StatusNotFound,
			wantCode:   string(pipeline.ClassDatasetNotFound),
		},
		{
			name:       "permission denied",
			body:       map[string]interface{}{"workflowType": "x", "distinctId": "a.csv"},
			runErr:     &pipeline.FatalRunError{Class: pipeline.ClassStorePermissionDenied, Err: dataset.ErrPermissionDenied},
			wantStatus: http.StatusForbidden,
			wantCode:   string(pipeline.ClassStorePermissionDenied),
		},
		{
			name:       "generic fatal",
			body:       map[string]interface{}{"workflowType": "x", "distinctId": "a.csv"},
			runErr:     &pipeline.FatalRunError{Class: pipeline.ClassGeneric, Err: errors.New("boom")},
			wantStatus: http.StatusInternalServerError,
			wantCode:   string(pipeline.ClassGeneric),
		},
		{
			name:       "untyped error",
			body:       map[string]interface{}{"workflowType": "x", "distinctId": "a.csv"},
			runErr:     errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   string(pipeline.ClassGeneric),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, nil, nil)
			s.runner.err = tt.runErr

			rec := s.do(jsonRequest(t, http.MethodPost, "/api/run-workflow", tt.body))
			assert.Equal(t, tt.wantStatus, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantCode, resp.Code)
		})
	}
}

func TestGetLogs(t *testing.T) {
	entry := &models.MessageLogEntry{
		ID:             "log-1",
		RunID:          "run-1",
		WorkflowType:   "Fee Reminder",
		Name:           "Alice",
		Channel:        "Email",
		DeliveryStatus: models.DeliverySent,
		Timestamp:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	t.Run("durable store", func(t *testing.T) {
		s := newTestServer(t, &fakeStore{entries: []*models.MessageLogEntry{entry}}, nil)
		rec := s.do(httptest.NewRequest(http.MethodGet, "/api/logs", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var views []LogView
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
		require.Len(t, views, 1)
		assert.Equal(t, "Alice", views[0].Name)
		assert.Equal(t, "Sent", views[0].Status)
		assert.Equal(t, "2026-01-02T03:04:05Z", views[0].Time)
	})

	t.Run("falls back to local log", func(t *testing.T) {
		s := newTestServer(t, &fakeStore{err: errors.New("connection refused")}, nil)
		s.local.Append(entry)

		rec := s.do(httptest.NewRequest(http.MethodGet, "/api/logs", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var views []LogView
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
		require.Len(t, views, 1)
		assert.Equal(t, "log-1", views[0].ID)
	})
}

func TestRunsAndDashboard(t *testing.T) {
	runs := []*models.WorkflowRun{
		{ID: "run-1", WorkflowType: "Fee Reminder", TotalRecords: 3, SentCount: 2, FailedCount: 1},
		{ID: "run-2", WorkflowType: "Receipt", TotalRecords: 2, SentCount: 1, SkippedCount: 1},
	}
	s := newTestServer(t, &fakeStore{runs: runs}, nil)

	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/runs?limit=10", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list RunsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Runs, 2)
	assert.Equal(t, 10, list.Limit)

	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/runs/run-2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var detail RunDetailResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, "Receipt", detail.Run.WorkflowType)

	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/runs/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/dashboard/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"totalRuns":2,"totalSent":3,"totalFailed":1}`, rec.Body.String())

	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/dashboard/delivery-status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"name":"Sent","value":3},{"name":"Failed","value":1},{"name":"Skipped","value":1}]`, rec.Body.String())
}

func TestGetRunFromLocalLog(t *testing.T) {
	s := newTestServer(t, nil, nil)
	s.local.AppendRun(&models.WorkflowRun{ID: "run-local", WorkflowType: "Fee Reminder"})
	s.local.Append(&models.MessageLogEntry{ID: "log-1", RunID: "run-local", Name: "Alice"})

	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/runs/run-local", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var detail RunDetailResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, "run-local", detail.Run.ID)
	require.Len(t, detail.Logs, 1)
	assert.Equal(t, "Alice", detail.Logs[0].Name)
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name      string
		store     state.Store
		wantStore string
	}{
		{name: "no store", store: nil, wantStore: "not_configured"},
		{name: "reachable", store: &fakeStore{}, wantStore: "reachable"},
		{name: "unreachable", store: &fakeStore{err: errors.New("down")}, wantStore: "unreachable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, tt.store, nil)
			rec := s.do(httptest.NewRequest(http.MethodGet, "/api/health", nil))
			require.Equal(t, http.StatusOK, rec.Code)

			var resp HealthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, "Online", resp.Status)
			assert.Equal(t, tt.wantStore, resp.Store)
			assert.True(t, resp.AIConfigured)
			assert.Equal(t, "live", resp.Channels["email"])
			assert.Equal(t, "simulated", resp.Channels["whatsapp"])
		})
	}
}

func TestAITest(t *testing.T) {
	tests := []struct {
		name        string
		tester      fakeTester
		wantSuccess bool
		wantError   string
	}{
		{name: "no key", tester: fakeTester{}, wantError: "No API key configured"},
		{name: "working", tester: fakeTester{configured: true, reply: "AI is working!"}, wantSuccess: true},
		{name: "provider error", tester: fakeTester{configured: true, err: errors.New("quota")}, wantError: "quota"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(nil, tt.tester, fakeModes{}, "gemini", false)
			rec := httptest.NewRecorder()
			h.AITest(rec, httptest.NewRequest(http.MethodGet, "/api/ai/test", nil))

			var resp AITestResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantSuccess, resp.Success)
			assert.Equal(t, tt.wantError, resp.Error)
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, nil, nil)
	rec := s.do(httptest.NewRequest(http.MethodOptions, "/api/run-workflow", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoveryMiddleware(t *testing.T) {
	h := RecoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAuthRequired(t *testing.T) {
	verifier, err := auth.NewHMACVerifier("secret")
	require.NoError(t, err)
	s := newTestServer(t, nil, verifier)

	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/logs", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "health stays public")

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "user-1",
		"email": "user@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = s.do(req)
	require.Equal(t, http.StatusOK, rec.Code)

	var me MeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.True(t, me.Authenticated)
	assert.Equal(t, "user-1", me.User.ID)
}

func TestWeeklyActivityAndLatestSummary(t *testing.T) {
	monday := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	runs := []*models.WorkflowRun{
		{ID: "run-3", WorkflowType: "Receipt", SentCount: 4, SummaryText: "Processed 4 records.", StartedAt: monday.AddDate(0, 0, 1), CompletedAt: monday.AddDate(0, 0, 1)},
		{ID: "run-2", SentCount: 1, FailedCount: 1, StartedAt: monday},
		{ID: "run-1", SentCount: 2, StartedAt: monday},
	}
	s := newTestServer(t, &fakeStore{runs: runs}, nil)

	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/dashboard/weekly-activity", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"name":"Tue","sent":4,"failed":0},{"name":"Mon","sent":3,"failed":1}]`, rec.Body.String())

	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/dashboard/ai-summary", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var digest RunDigest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &digest))
	assert.Equal(t, "Processed 4 records.", digest.SummaryText)
	assert.Equal(t, "Receipt", digest.WorkflowType)

	empty := newTestServer(t, nil, nil)
	rec = empty.do(httptest.NewRequest(http.MethodGet, "/api/dashboard/ai-summary", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null", strings.TrimSpace(rec.Body.String()))
}
