// Package presence is the in-memory connection registry.
//
// It answers one question for the rest of the relay: which devices and
// controllers are reachable over a live transport right now, and through
// which connection. Nothing here is persisted; a process restart starts
// with an empty registry and devices repopulate it as they reconnect.
//
// # Indexes
//
// The Registry keeps two pairs of maps, one per role:
//
//   - identity → session (devices by device id, controllers by controller id)
//   - connection id → identity
//
// Every mutation keeps both directions consistent under a single mutex, so
// for any connection c with GetSessionByConnection(c) = s, GetSession(s.DeviceID)
// returns the same session, and after UnregisterDevice(c) both lookups miss.
//
// # Thread Safety
//
// All methods are safe for concurrent use and never block on I/O. Sessions
// are returned by value so callers cannot mutate registry state.
package presence
