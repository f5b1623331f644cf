package storage

import "embed"

// Migrations holds the goose SQL migrations, applied by db.Migrate.
//
//go:embed migrations/*.sql
var Migrations embed.FS

const MigrationsDir = "migrations"
