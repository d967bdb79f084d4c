package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/blagoySimandov/autoflow/internal/config"
	"github.com/blagoySimandov/autoflow/internal/db"
	"github.com/blagoySimandov/autoflow/internal/logger"
	"github.com/blagoySimandov/autoflow/migrations"
	"github.com/uptrace/bun/migrate"
)

var errUsage = errors.New("unknown command")

func main() {
	cfg := config.Load()
	logger.Configure(cfg.LogLevel)

	cmd := "up"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	// run returns before exiting so the lock and the pool are always released.
	if err := run(context.Background(), cfg.DatabaseURL, cmd, os.Args[min(len(os.Args), 2):]); err != nil {
		if errors.Is(err, errUsage) {
			printUsage()
		} else {
			logger.Log.Error("migrate failed", "command", cmd, "error", err)
		}
		os.Exit(1)
	}
}

var commands = map[string]bool{"up": true, "down": true, "status": true, "create": true}

type locker interface {
	Lock(ctx context.Context) error
	Unlock(ctx context.Context) error
}

func run(ctx context.Context, dsn, cmd string, args []string) error {
	if !commands[cmd] {
		return fmt.Errorf("%w: %s", errUsage, cmd)
	}

	bunDB := db.NewBunPostgresClient(dsn)
	defer bunDB.Close()

	migrator := migrate.NewMigrator(bunDB, migrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize migrator: %w", err)
	}

	switch cmd {
	case "up":
		return withLock(ctx, migrator, func() error {
			group, err := migrator.Migrate(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			if group.IsZero() {
				fmt.Println("No new migrations to run (database is up to date)")
				return nil
			}
			fmt.Printf("Migrated to %s\n", group)
			return nil
		})

	case "down":
		return withLock(ctx, migrator, func() error {
			group, err := migrator.Rollback(ctx)
			if err != nil {
				return fmt.Errorf("rollback failed: %w", err)
			}
			if group.IsZero() {
				fmt.Println("No migrations to rollback")
				return nil
			}
			fmt.Printf("Rolled back %s\n", group)
			return nil
		})

	case "status":
		ms, err := migrator.MigrationsWithStatus(ctx)
		if err != nil {
			return fmt.Errorf("failed to get migration status: %w", err)
		}
		fmt.Printf("Migrations:\n")
		for _, m := range ms {
			status := "pending"
			if m.IsApplied() {
				status = "applied"
			}
			fmt.Printf("  %s: %s\n", m.Name, status)
		}
		return nil

	case "create":
		name := "migration"
		if len(args) > 0 {
			name = strings.Join(args, "_")
		}
		f, err := migrator.CreateGoMigration(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to create migration: %w", err)
		}
		fmt.Printf("Created migration: %s\n", f.Path)
		return nil

	default:
		return fmt.Errorf("%w: %s", errUsage, cmd)
	}
}

// withLock holds the migration lock while fn runs and releases it even when
// fn fails.
func withLock(ctx context.Context, l locker, fn func() error) error {
	if err := l.Lock(ctx); err != nil {
		return fmt.Errorf("failed to lock migrations: %w", err)
	}
	defer func() {
		if err := l.Unlock(ctx); err != nil {
			logger.Log.Error("failed to unlock migrations", "error", err)
		}
	}()
	return fn()
}

func printUsage() {
	fmt.Println("Usage: migrate [up|down|status|create <name>]")
	fmt.Println("  up     - Run all pending migrations")
	fmt.Println("  down   - Rollback the last migration group")
	fmt.Println("  status - Show migration status")
	fmt.Println("  create - Create a new Go migration file")
}
