// Package migrations embeds the versioned schema, one directory per database driver.
package migrations

import "embed"

// FS holds "<driver>/<version>_<name>.{up,down}.sql" files.
//
//go:embed sqlite3/*.sql postgres/*.sql
var FS embed.FS
