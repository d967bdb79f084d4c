package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/blagoySimandov/autoflow/internal/db"
	"github.com/blagoySimandov/autoflow/internal/models"
	"github.com/uptrace/bun"
)

var ErrRunNotFound = errors.New("workflow run not found")

type PostgresStore struct {
	db *bun.DB
}

func NewPostgresStore(ctx context.Context, connectionString string) (*PostgresStore, error) {
	bunDB := db.NewBunPostgresClient(connectionString)
	store := &PostgresStore{db: bunDB}

	if err := store.InitializeDatabase(ctx); err != nil {
		bunDB.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return store, nil
}

// NewPostgresStoreFromDB wraps an existing handle without touching the schema.
func NewPostgresStoreFromDB(bunDB *bun.DB) *PostgresStore {
	return &PostgresStore{db: bunDB}
}

func (s *PostgresStore) InitializeDatabase(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*models.WorkflowRunDB)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create workflow_runs table: %w", err)
	}

	_, err = s.db.NewCreateTable().
		Model((*models.MessageLogDB)(nil)).
		IfNotExists().
		ForeignKey(`("run_id") REFERENCES "workflow_runs" ("run_id") ON DELETE CASCADE`).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create message_logs table: %w", err)
	}

	_, err = s.db.NewCreateIndex().
		Model((*models.MessageLogDB)(nil)).
		Index("idx_message_logs_run_id").
		Column("run_id").
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create run_id index: %w", err)
	}

	_, err = s.db.NewCreateIndex().
		Model((*models.MessageLogDB)(nil)).
		Index("idx_message_logs_timestamp").
		Column("timestamp").
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create timestamp index: %w", err)
	}

	_, err = s.db.NewCreateIndex().
		Model((*models.WorkflowRunDB)(nil)).
		Index("idx_workflow_runs_user_id").
		Column("user_id").
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create user_id index: %w", err)
	}

	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to reach database: %w", err)
	}
	return nil
}

func (s *PostgresStore) CommitRun(ctx context.Context, run *models.WorkflowRun, entries []*models.MessageLogEntry) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().
			Model(models.WorkflowRunToDB(run)).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to insert workflow run: %w", err)
		}

		if len(entries) == 0 {
			return nil
		}

		rows := make([]*models.MessageLogDB, len(entries))
		for i, e := range entries {
			rows[i] = models.MessageLogToDB(e)
		}
		_, err = tx.NewInsert().
			Model(&rows).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to insert message logs: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*models.WorkflowRun, error) {
	var run models.WorkflowRunDB
	err := s.db.NewSelect().
		Model(&run).
		Where("run_id = ?", runID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow run: %w", err)
	}
	return run.ToWorkflowRun(), nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, userID string, offset, limit int) ([]*models.WorkflowRun, error) {
	var rows []*models.WorkflowRunDB
	query := s.db.NewSelect().
		Model(&rows).
		Order("started_at DESC")

	if userID != "" {
		query = query.Where("user_id = ?", userID)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list workflow runs: %w", err)
	}

	runs := make([]*models.WorkflowRun, len(rows))
	for i, r := range rows {
		runs[i] = r.ToWorkflowRun()
	}
	return runs, nil
}

func (s *PostgresStore) RecentLogs(ctx context.Context, limit int) ([]*models.MessageLogEntry, error) {
	var rows []*models.MessageLogDB
	query := s.db.NewSelect().
		Model(&rows).
		Order("timestamp DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to query message logs: %w", err)
	}
	return toEntries(rows), nil
}

func (s *PostgresStore) RunLogs(ctx context.Context, runID string) ([]*models.MessageLogEntry, error) {
	var rows []*models.MessageLogDB
	err := s.db.NewSelect().
		Model(&rows).
		Where("run_id = ?", runID).
		Order("record_index ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query run logs: %w", err)
	}
	return toEntries(rows), nil
}

func toEntries(rows []*models.MessageLogDB) []*models.MessageLogEntry {
	entries := make([]*models.MessageLogEntry, len(rows))
	for i, r := range rows {
		entries[i] = r.ToMessageLogEntry()
	}
	return entries
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
