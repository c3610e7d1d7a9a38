package migrations

import "embed"

// FS contains embedded PostgreSQL migrations for status storage.
//
//go:embed *.sql
var FS embed.FS
