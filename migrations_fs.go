package zpark

import (
	"embed"
	"io/fs"
)

// migrationsFS holds the zpark schema migrations, with sqlite
// alternatives under data/sql/migrations/sqlite.
//
//go:embed data/sql/migrations/*.sql data/sql/migrations/sqlite/*.sql
var migrationsFS embed.FS

// GetMigrationsFS returns the embedded migration tree.
func GetMigrationsFS() fs.FS {
	return migrationsFS
}

// GetCoreMigrationsFS returns the schema migrations consumed by the
// migrations registry.
func GetCoreMigrationsFS() fs.FS {
	return migrationsFS
}
