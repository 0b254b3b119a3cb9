// Package database provides SQLite connectivity for the RemoteEye relay.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Embedded, versioned schema migrations
//   - Connection lifecycle and health checks
//
// The store is the system of record for devices, commands, recordings and
// pairing codes. Live connection state is never written here.
//
// Usage:
//
//	db, err := database.OpenMigrated(ctx, database.ConfigFrom(cfg.Database))
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
package database
