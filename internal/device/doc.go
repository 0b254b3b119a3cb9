// Package device holds the durable record of paired devices.
//
// A Device is created when a phone pairs with the relay and is then updated
// by two writers: the realtime layer (online/offline transitions and status
// snapshots) and the HTTP API (name, settings, push registration).
//
// # Key Types
//
//   - Device: the persisted row, including the Argon2id secret hash
//   - StatusSnapshot: typed battery/network/capture status reported by the device
//   - Settings: sound detection, camera and location behaviour
//
// Status and settings payloads arrive as JSON from untrusted clients; they are
// decoded strictly (DecodeStatus, Settings.Merge) so malformed or unknown
// shapes are rejected at the boundary.
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db.DB)
//	d, err := repo.GetByID(ctx, id)
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // 404
//	}
package device
