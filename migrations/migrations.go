// Package migrations holds the bun migrations for the workflow history schema.
package migrations

import "github.com/uptrace/bun/migrate"

var Migrations = migrate.NewMigrations()
