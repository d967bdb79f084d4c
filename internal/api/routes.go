package api

import (
	"net/http"

	"github.com/blagoySimandov/autoflow/internal/auth"
	"github.com/gorilla/mux"
)

type Handlers struct {
	Workflow *WorkflowHandler
	History  *HistoryHandler
	Health   *HealthHandler
}

func SetupRoutes(h Handlers, authMiddleware *auth.Middleware, allowedOrigin string) *mux.Router {
	r := mux.NewRouter()

	r.Use(WideEventMiddleware)
	r.Use(RecoveryMiddleware)
	r.Use(CORSMiddleware(allowedOrigin))

	// Preflight requests never reach the method-restricted routes below.
	r.Methods(http.MethodOptions).HandlerFunc(func(http.ResponseWriter, *http.Request) {})

	r.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "AutoFlow workflow API is running"})
	}).Methods("GET")
	r.HandleFunc("/api/health", h.Health.Health).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.Use(authMiddleware.RequireAuth)

	api.HandleFunc("/auth/me", Me).Methods("GET")
	api.HandleFunc("/ai/test", h.Health.AITest).Methods("GET")

	api.HandleFunc("/upload", h.Workflow.Upload).Methods("POST")
	api.HandleFunc("/upload-url", h.Workflow.UploadURL).Methods("POST")
	api.HandleFunc("/run-workflow", h.Workflow.RunWorkflow).Methods("POST")

	api.HandleFunc("/logs", h.History.GetLogs).Methods("GET")
	api.HandleFunc("/runs", h.History.ListRuns).Methods("GET")
	api.HandleFunc("/runs/{runID}", h.History.GetRun).Methods("GET")
	api.HandleFunc("/dashboard/metrics", h.History.DashboardMetrics).Methods("GET")
	api.HandleFunc("/dashboard/delivery-status", h.History.DeliveryStatus).Methods("GET")
	api.HandleFunc("/dashboard/weekly-activity", h.History.WeeklyActivity).Methods("GET")
	api.HandleFunc("/dashboard/ai-summary", h.History.LatestSummary).Methods("GET")

	return r
}
