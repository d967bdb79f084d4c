package migrations

import (
	"context"
	"fmt"

	"github.com/blagoySimandov/autoflow/internal/models"
	"github.com/blagoySimandov/autoflow/internal/state"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		return state.NewPostgresStoreFromDB(db).InitializeDatabase(ctx)
	}, func(ctx context.Context, db *bun.DB) error {
		if _, err := db.NewDropTable().Model((*models.MessageLogDB)(nil)).IfExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to drop message_logs: %w", err)
		}
		if _, err := db.NewDropTable().Model((*models.WorkflowRunDB)(nil)).IfExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to drop workflow_runs: %w", err)
		}
		return nil
	})
}
