// Package dbtest opens throwaway SQLite databases carrying the full relay
// schema, for repository and handler tests.
package dbtest

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/nerrad567/remoteeye-relay/internal/infrastructure/database"
	_ "github.com/nerrad567/remoteeye-relay/migrations" // registers the embedded schema
)

// Open returns a migrated database in t.TempDir, closed on cleanup.
func Open(t testing.TB) *database.DB {
	t.Helper()

	db, err := database.OpenMigrated(context.Background(), database.Config{
		Path:        filepath.Join(t.TempDir(), "relay.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() {
		db.Close() //nolint:errcheck // Test cleanup
	})
	return db
}

// OpenSQL is Open for callers that only need the *sql.DB.
func OpenSQL(t testing.TB) *sql.DB {
	t.Helper()
	return Open(t).DB
}
