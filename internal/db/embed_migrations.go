// Package db embeds the Postgres schema migrations.
package db

import "embed"

// MigrationFS embeds SQL migration files from internal/db/migrations.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
