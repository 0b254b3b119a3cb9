package command

import "errors"

// Domain errors for the command package.
var (
	// ErrCommandNotFound is returned when a command ID does not exist.
	ErrCommandNotFound = errors.New("command: not found")

	// ErrCommandExists is returned when creating a command with a duplicate ID.
	ErrCommandExists = errors.New("command: already exists")

	// ErrInvalidAction is returned for actions outside the vocabulary.
	ErrInvalidAction = errors.New("command: invalid action")

	// ErrInvalidParams is returned when params is not a JSON object.
	ErrInvalidParams = errors.New("command: invalid params")

	// ErrInvalidStatus is returned for unknown status values.
	ErrInvalidStatus = errors.New("command: invalid status")

	// ErrInvalidOutcome is returned when an acknowledgment is neither completed nor failed.
	ErrInvalidOutcome = errors.New("command: invalid outcome")

	// ErrDeviceUnknown is returned when the owning device does not exist.
	ErrDeviceUnknown = errors.New("command: unknown device")
)
