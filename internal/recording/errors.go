package recording

import "errors"

// Domain errors for recording operations.
var (
	ErrRecordingNotFound = errors.New("recording: not found")
	ErrInvalidType       = errors.New("recording: invalid type")
	ErrInvalidTrigger    = errors.New("recording: invalid trigger")
	ErrInvalidFilename   = errors.New("recording: invalid filename")
	ErrInvalidSize       = errors.New("recording: invalid size")
	ErrDeviceUnknown     = errors.New("recording: device does not exist")
)
