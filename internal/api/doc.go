// Package api implements the HTTP REST API and the realtime WebSocket
// endpoint of the RemoteEye relay.
//
// This package provides:
//   - Pairing, registration, login and token refresh for devices and controllers
//   - REST endpoints for devices, commands, recordings and media upload URLs
//   - The WebSocket transport that carries realtime sessions
//   - Middleware stack (request ID, logging, recovery, CORS, body limit, bearer auth)
//   - TLS support for production deployments
//
// # Architecture
//
// The HTTP layer is thin. Commands go through the command dispatcher, which
// decides between live delivery and queuing; presence comes from the
// connection registry; everything durable lives in the SQLite repositories.
// The WebSocket handler only authenticates, upgrades and pumps frames: the
// session state machine lives in package realtime.
//
// # Security
//
// Every route except health, the auth endpoints and the WebSocket upgrade
// requires an access token in the Authorization header. The WebSocket
// upgrade authenticates itself and also accepts the token as a query
// parameter, since browsers cannot set headers on upgrade requests.
// A device token may only act on its own device.
//
// # Graceful Degradation
//
// Push and object storage are optional. When they are not configured the
// endpoints that need them answer with PUSH_NOT_CONFIGURED or
// STORAGE_NOT_CONFIGURED; everything else keeps working.
package api
