package models

import (
	"time"

	"github.com/uptrace/bun"
)

type WorkflowRunDB struct {
	bun.BaseModel `bun:"table:workflow_runs,alias:wr"`

	RunID          string    `bun:"run_id,pk" json:"run_id"`
	UserID         string    `bun:"user_id" json:"user_id"`
	WorkflowType   string    `bun:"workflow_type,notnull" json:"workflow_type"`
	DatasetHandle  string    `bun:"dataset_handle" json:"dataset_handle"`
	TotalRecords   int       `bun:"total_records,notnull" json:"total_records"`
	MessagesSent   int       `bun:"messages_sent,notnull" json:"messages_sent"`
	FailedMessages int       `bun:"failed_messages,notnull" json:"failed_messages"`
	Skipped        int       `bun:"skipped_messages,notnull" json:"skipped_messages"`
	Simulated      int       `bun:"simulated_messages,notnull" json:"simulated_messages"`
	Channels       []Channel `bun:"channels,type:jsonb" json:"channels"`
	Status         RunStatus `bun:"status,notnull" json:"status"`
	SummaryText    string    `bun:"summary_text" json:"summary_text"`
	StartedAt      time.Time `bun:"started_at,notnull" json:"started_at"`
	CompletedAt    time.Time `bun:"completed_at,notnull" json:"completed_at"`
}

type MessageLogDB struct {
	bun.BaseModel `bun:"table:message_logs,alias:ml"`

	ID             string         `bun:"id,pk" json:"id"`
	RunID          string         `bun:"run_id,notnull" json:"run_id"`
	Run            *WorkflowRunDB `bun:"rel:belongs-to,join:run_id=run_id"`
	WorkflowType   string         `bun:"workflow_type,notnull" json:"workflow_type"`
	RecordIndex    int            `bun:"record_index,notnull" json:"record_index"`
	Name           string         `bun:"name" json:"name"`
	Recipient      string         `bun:"recipient" json:"recipient"`
	Channel        string         `bun:"channel" json:"channel"`
	Subject        string         `bun:"subject" json:"subject"`
	Body           string         `bun:"body" json:"body"`
	DeliveryStatus DeliveryStatus `bun:"delivery_status,notnull" json:"delivery_status"`
	Error          *string        `bun:"error" json:"error,omitempty"`
	Timestamp      time.Time      `bun:"timestamp,notnull,default:current_timestamp" json:"timestamp"`
}

func WorkflowRunToDB(run *WorkflowRun) *WorkflowRunDB {
	return &WorkflowRunDB{
		RunID:          run.ID,
		UserID:         run.UserID,
		WorkflowType:   run.WorkflowType,
		DatasetHandle:  run.DatasetHandle,
		TotalRecords:   run.TotalRecords,
		MessagesSent:   run.SentCount,
		FailedMessages: run.FailedCount,
		Skipped:        run.SkippedCount,
		Simulated:      run.SimulatedCount,
		Channels:       run.Channels,
		Status:         run.Status,
		SummaryText:    run.SummaryText,
		StartedAt:      run.StartedAt,
		CompletedAt:    run.CompletedAt,
	}
}

func (r *WorkflowRunDB) ToWorkflowRun() *WorkflowRun {
	return &WorkflowRun{
		ID:             r.RunID,
		UserID:         r.UserID,
		WorkflowType:   r.WorkflowType,
		DatasetHandle:  r.DatasetHandle,
		TotalRecords:   r.TotalRecords,
		SentCount:      r.MessagesSent,
		FailedCount:    r.FailedMessages,
		SkippedCount:   r.Skipped,
		SimulatedCount: r.Simulated,
		Channels:       r.Channels,
		Status:         r.Status,
		SummaryText:    r.SummaryText,
		StartedAt:      r.StartedAt,
		CompletedAt:    r.CompletedAt,
	}
}

func MessageLogToDB(entry *MessageLogEntry) *MessageLogDB {
	return &MessageLogDB{
		ID:             entry.ID,
		RunID:          entry.RunID,
		WorkflowType:   entry.WorkflowType,
		RecordIndex:    entry.RecordIndex,
		Name:           entry.Name,
		Recipient:      entry.Recipient,
		Channel:        entry.Channel,
		Subject:        entry.Subject,
		Body:           entry.Body,
		DeliveryStatus: entry.DeliveryStatus,
		Error:          entry.Error,
		Timestamp:      entry.Timestamp,
	}
}

func (m *MessageLogDB) ToMessageLogEntry() *MessageLogEntry {
	return &MessageLogEntry{
		ID:             m.ID,
		RunID:          m.RunID,
		WorkflowType:   m.WorkflowType,
		RecordIndex:    m.RecordIndex,
		Name:           m.Name,
		Recipient:      m.Recipient,
		Channel:        m.Channel,
		Subject:        m.Subject,
		Body:           m.Body,
		DeliveryStatus: m.DeliveryStatus,
		Error:          m.Error,
		Timestamp:      m.Timestamp,
	}
}
