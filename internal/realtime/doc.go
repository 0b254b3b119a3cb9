// Package realtime implements the device/controller session protocol that
// runs over each live WebSocket connection.
//
// Every frame is a JSON envelope:
//
//	{"type": "device:status", "ref": "42", "timestamp": "2026-03-01T09:00:00Z", "data": {...}}
//
// A connection moves through Connecting → Authenticated → Registered →
// Active → Closed. The transport authenticates the bearer credential before
// the upgrade (Authenticate), opens a Session, and then hands every inbound
// frame to Protocol.HandleEvent. Until the connected party sends its
// register event, all other traffic is dropped.
//
// Device sessions feed the presence registry, persist status transitions,
// record media metadata and write telemetry; their events are forwarded to
// exactly the controllers watching that device. Controller sessions issue
// commands through the command dispatcher, which either pushes them over the
// device's session (PushCommand) or queues them until the device registers.
//
// HandleEvent is safe to call without a real transport; tests drive it with
// fake connections.
package realtime
