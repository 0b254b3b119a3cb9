package realtime

import "errors"

var (
	// ErrNoCredential is returned by Authenticate when no token was presented.
	ErrNoCredential = errors.New("realtime: no credential")

	// ErrDeviceOffline is returned by PushCommand when the device has no session.
	ErrDeviceOffline = errors.New("realtime: device offline")

	// ErrSendFailed is returned when a frame could not be queued on a connection.
	ErrSendFailed = errors.New("realtime: send failed")
)
