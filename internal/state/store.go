package state

import (
	"context"

	"github.com/blagoySimandov/autoflow/internal/models"
)

// Store is the durable home of workflow runs and their message logs.
type Store interface {
	// Ping checks that the store is reachable and usable.
	Ping(ctx context.Context) error
	// CommitRun writes the run row and every log entry atomically.
	CommitRun(ctx context.Context, run *models.WorkflowRun, entries []*models.MessageLogEntry) error
	GetRun(ctx context.Context, runID string) (*models.WorkflowRun, error)
	ListRuns(ctx context.Context, userID string, offset, limit int) ([]*models.WorkflowRun, error)
	RecentLogs(ctx context.Context, limit int) ([]*models.MessageLogEntry, error)
	RunLogs(ctx context.Context, runID string) ([]*models.MessageLogEntry, error)

	Close() error
}
