// Package migrations embeds the relay's SQL schema into the binary.
//
// Importing this package registers the files with the database package,
// so migrations run without the SQL files present on disk.
package migrations

import (
	"embed"

	"github.com/nerrad567/remoteeye-relay/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
