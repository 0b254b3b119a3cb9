package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device ID does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when creating a device with an ID that already exists.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidName is returned when a device name is too long.
	ErrInvalidName = errors.New("device: invalid name")

	// ErrInvalidStatus is returned when a status snapshot is malformed.
	ErrInvalidStatus = errors.New("device: invalid status")

	// ErrInvalidSettings is returned when settings fail validation.
	ErrInvalidSettings = errors.New("device: invalid settings")

	// ErrInvalidPushToken is returned when a push token or platform is rejected.
	ErrInvalidPushToken = errors.New("device: invalid push token")

	// ErrInvalidLocation is returned when a location fix is malformed.
	ErrInvalidLocation = errors.New("device: invalid location")

	// ErrInvalidSoundEvent is returned when a sound detection report is malformed.
	ErrInvalidSoundEvent = errors.New("device: invalid sound event")
)
