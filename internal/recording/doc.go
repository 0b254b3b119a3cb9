// Package recording stores metadata for media captured by devices.
//
// Rows are created by the realtime layer when a device reports a photo or a
// finished recording; the media itself lives in object storage under the
// key returned by StorageKey. The HTTP API lists, reads and deletes rows.
package recording
