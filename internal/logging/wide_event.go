package logging

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

type contextKey string

const (
	contextKeyWideEvent contextKey = "wide_event"
	contextKeyTraceID   contextKey = "trace_id"
)

// WideEvent is one structured log line describing a whole request. Handlers
// and the pipeline enrich it as the request progresses; middleware emits it.
type WideEvent struct {
	TraceID   string    `json:"trace_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`

	HTTPMethod     string `json:"http_method,omitempty"`
	HTTPPath       string `json:"http_path,omitempty"`
	HTTPStatusCode int    `json:"http_status_code,omitempty"`
	HTTPDurationMs int64  `json:"http_duration_ms,omitempty"`

	UserID    string `json:"user_id,omitempty"`
	UserEmail string `json:"user_email,omitempty"`

	RunID          string `json:"run_id,omitempty"`
	WorkflowType   string `json:"workflow_type,omitempty"`
	RunStatus      string `json:"run_status,omitempty"`
	Persistence    string `json:"persistence,omitempty"`
	TotalRecords   int    `json:"total_records,omitempty"`
	RecordsSent    int    `json:"records_sent,omitempty"`
	RecordsFailed  int    `json:"records_failed,omitempty"`
	RecordsSkipped int    `json:"records_skipped,omitempty"`

	Error          string `json:"error,omitempty"`
	ErrorClass     string `json:"error_class,omitempty"`
	PanicRecovered bool   `json:"panic_recovered,omitempty"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

func NewWideEvent(eventType string) *WideEvent {
	return &WideEvent{
		TraceID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
		Metadata:  make(map[string]interface{}),
	}
}

func WithContext(ctx context.Context, event *WideEvent) context.Context {
	ctx = context.WithValue(ctx, contextKeyWideEvent, event)
	ctx = context.WithValue(ctx, contextKeyTraceID, event.TraceID)
	return ctx
}

func FromContext(ctx context.Context) *WideEvent {
	if event, ok := ctx.Value(contextKeyWideEvent).(*WideEvent); ok {
		return event
	}
	return nil
}

func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(contextKeyTraceID).(string); ok {
		return traceID
	}
	return ""
}

func EnrichHTTP(ctx context.Context, method, path string) {
	if event := FromContext(ctx); event != nil {
		event.HTTPMethod = method
		event.HTTPPath = path
	}
}

func EnrichHTTPStatus(ctx context.Context, statusCode int) {
	if event := FromContext(ctx); event != nil {
		event.HTTPStatusCode = statusCode
	}
}

func EnrichHTTPDuration(ctx context.Context, duration time.Duration) {
	if event := FromContext(ctx); event != nil {
		event.HTTPDurationMs = duration.Milliseconds()
	}
}

func EnrichUser(ctx context.Context, userID, email string) {
	if event := FromContext(ctx); event != nil {
		event.UserID = userID
		event.UserEmail = email
	}
}

func EnrichRun(ctx context.Context, runID, workflowType string) {
	if event := FromContext(ctx); event != nil {
		event.RunID = runID
		event.WorkflowType = workflowType
	}
}

func EnrichRunOutcome(ctx context.Context, status, persistence string, total, sent, failed, skipped int) {
	if event := FromContext(ctx); event != nil {
		event.RunStatus = status
		event.Persistence = persistence
		event.TotalRecords = total
		event.RecordsSent = sent
		event.RecordsFailed = failed
		event.RecordsSkipped = skipped
	}
}

func EnrichError(ctx context.Context, err error, class string) {
	if event := FromContext(ctx); event != nil && err != nil {
		event.Error = err.Error()
		event.ErrorClass = class
	}
}

func EnrichPanic(ctx context.Context) {
	if event := FromContext(ctx); event != nil {
		event.PanicRecovered = true
	}
}

func EnrichMetadata(ctx context.Context, key string, value interface{}) {
	if event := FromContext(ctx); event != nil {
		event.Metadata[key] = value
	}
}

// Emit writes the request's wide event.
func Emit(ctx context.Context) {
	event := FromContext(ctx)
	if event == nil {
		return
	}

	attrs := []slog.Attr{
		slog.String("trace_id", event.TraceID),
		slog.String("event_type", event.EventType),
		slog.Time("timestamp", event.Timestamp),
	}

	if event.HTTPMethod != "" {
		attrs = append(attrs, slog.String("http_method", event.HTTPMethod))
	}
	if event.HTTPPath != "" {
		attrs = append(attrs, slog.String("http_path", event.HTTPPath))
	}
	if event.HTTPStatusCode != 0 {
		attrs = append(attrs, slog.Int("http_status_code", event.HTTPStatusCode))
	}
	attrs = append(attrs, slog.Int64("http_duration_ms", event.HTTPDurationMs))

	if event.UserID != "" {
		attrs = append(attrs, slog.String("user_id", event.UserID))
	}
	if event.UserEmail != "" {
		attrs = append(attrs, slog.String("user_email", event.UserEmail))
	}

	if event.RunID != "" {
		attrs = append(attrs,
			slog.String("run_id", event.RunID),
			slog.String("workflow_type", event.WorkflowType),
		)
	}
	if event.RunStatus != "" {
		attrs = append(attrs,
			slog.String("run_status", event.RunStatus),
			slog.String("persistence", event.Persistence),
			slog.Int("total_records", event.TotalRecords),
			slog.Int("records_sent", event.RecordsSent),
			slog.Int("records_failed", event.RecordsFailed),
			slog.Int("records_skipped", event.RecordsSkipped),
		)
	}

	if event.Error != "" {
		attrs = append(attrs, slog.String("error", event.Error))
	}
	if event.ErrorClass != "" {
		attrs = append(attrs, slog.String("error_class", event.ErrorClass))
	}
	if event.PanicRecovered {
		attrs = append(attrs, slog.Bool("panic_recovered", true))
	}

	if len(event.Metadata) > 0 {
		attrs = append(attrs, slog.Any("metadata", event.Metadata))
	}

	level := slog.LevelInfo
	if event.Error != "" || event.PanicRecovered {
		level = slog.LevelError
	}

	slog.LogAttrs(ctx, level, "wide_event", attrs...)
}

// EmitRecordEvent logs one record's pass through a pipeline stage. The trace
// and user of the enclosing request are carried over when present.
func EmitRecordEvent(ctx context.Context, runID string, recordIndex int, stage, outcome string, duration time.Duration, err error) {
	attrs := []slog.Attr{
		slog.String("trace_id", GetTraceID(ctx)),
		slog.String("event_type", "record"),
		slog.String("run_id", runID),
		slog.Int("record_index", recordIndex),
		slog.String("pipeline_stage", stage),
		slog.String("record_stage", outcome),
		slog.Int64("stage_duration_ms", duration.Milliseconds()),
	}

	if parent := FromContext(ctx); parent != nil && parent.UserID != "" {
		attrs = append(attrs, slog.String("user_id", parent.UserID))
	}

	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
		slog.LogAttrs(ctx, slog.LevelWarn, "record_event", attrs...)
		return
	}
	slog.LogAttrs(ctx, slog.LevelInfo, "record_event", attrs...)
}
