package migrations

import "embed"

//go:embed sqlite/*.sql
var SQLite embed.FS

// Postgres migrations contain a {{dimension}} placeholder for the
// embedding column width.
//
//go:embed postgres/*.sql
var Postgres embed.FS
