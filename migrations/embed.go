// Package migrations embeds the SQL schema of the entity registry into the
// binary.
package migrations

import "embed"

// FS holds the migration files at its root.
//
//go:embed *.sql
var FS embed.FS
