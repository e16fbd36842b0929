// Package migrations embeds the schema of the classification results database.
package migrations

import "embed"

// FS holds the *.up.sql / *.down.sql files applied by database.RunMigrations.
//
//go:embed *.sql
var FS embed.FS
