package models

import "time"

type RunStatus string

const (
	RunStatusRunning RunStatus = "Running"
	RunStatusSuccess RunStatus = "Success"
	RunStatusPartial RunStatus = "Partial"
	RunStatusFailed  RunStatus = "Failed"
)

// ComputeRunStatus derives the overall status from the aggregate counts.
// A run without failures is a success, including an empty run.
func ComputeRunStatus(sent, failed int) RunStatus {
	switch {
	case failed == 0:
		return RunStatusSuccess
	case sent > 0:
		return RunStatusPartial
	default:
		return RunStatusFailed
	}
}

type PersistenceMode string

const (
	PersistenceDurable PersistenceMode = "durable"
	PersistenceLocal   PersistenceMode = "local"
)

// WorkflowRun is the aggregate written once per pipeline invocation.
type WorkflowRun struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id,omitempty"`
	WorkflowType   string    `json:"workflow_type"`
	DatasetHandle  string    `json:"dataset_handle"`
	TotalRecords   int       `json:"total_records"`
	SentCount      int       `json:"messages_sent"`
	FailedCount    int       `json:"failed_messages"`
	SkippedCount   int       `json:"skipped_messages"`
	SimulatedCount int       `json:"simulated_messages"`
	Channels       []Channel `json:"channels"`
	Status         RunStatus `json:"status"`
	SummaryText    string    `json:"summary_text"`
	StartedAt      time.Time `json:"started_at"`
	CompletedAt    time.Time `json:"completed_at"`
}

// MessageLogEntry is the durable outcome of one record.
type MessageLogEntry struct {
	ID             string         `json:"id"`
	RunID          string         `json:"run_id"`
	WorkflowType   string         `json:"workflow_type"`
	RecordIndex    int            `json:"record_index"`
	Name           string         `json:"name"`
	Recipient      string         `json:"recipient,omitempty"`
	Channel        string         `json:"channel"`
	Subject        string         `json:"subject,omitempty"`
	Body           string         `json:"body,omitempty"`
	DeliveryStatus DeliveryStatus `json:"delivery_status"`
	Error          *string        `json:"error,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}

type RunRequest struct {
	UserID        string            `json:"-"`
	WorkflowType  string            `json:"workflowType"`
	Channels      Channels          `json:"channels"`
	DatasetHandle string            `json:"datasetHandle"`
	Mapping       map[string]string `json:"mapping,omitempty"`
	Tone          string            `json:"tone,omitempty"`
	// Context is optional free text passed to content generation.
	Context string `json:"additionalContext,omitempty"`
}

type RunSummary struct {
	RunID          string          `json:"runId"`
	WorkflowType   string          `json:"workflowType"`
	TotalRecords   int             `json:"totalRecords"`
	SentCount      int             `json:"sentCount"`
	FailedCount    int             `json:"failedCount"`
	SkippedCount   int             `json:"skippedCount"`
	SimulatedCount int             `json:"simulatedCount"`
	SuccessRate    float64         `json:"successRate"`
	Status         RunStatus       `json:"status"`
	SummaryText    string          `json:"summary"`
	Persistence    PersistenceMode `json:"persistence"`
	TokensIn       int             `json:"tokensIn,omitempty"`
	TokensOut      int             `json:"tokensOut,omitempty"`
	StartedAt      time.Time       `json:"startedAt"`
	CompletedAt    time.Time       `json:"completedAt"`
}
