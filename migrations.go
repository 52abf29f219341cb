package bootimgbot

import "embed"

// MigrationsFS holds the SQL migrations for the job history store.
//
//go:embed migrations/*.sql
var MigrationsFS embed.FS
