// Package migrations ships the schema as embedded golang-migrate files
// applied at startup.
package migrations

import "embed"

//go:embed *.sql
var migrationFiles embed.FS
