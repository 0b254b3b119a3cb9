// Package push wakes devices that have no live session.
//
// A device registers an opaque push token over the HTTP API. When a
// controller asks for a wake-up or sends a command while the device is
// offline, a Notifier delivers a small JSON message addressed by that token.
// The shipped implementation publishes to the MQTT topic
// {prefix}/push/{token}, which a mobile push gateway (or the app itself,
// when it keeps a broker connection) consumes.
//
// Whether push is available is decided once at startup: callers check
// IsConfigured and answer PUSH_NOT_CONFIGURED instead of attempting a send.
package push
