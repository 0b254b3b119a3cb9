package objectstore

import "errors"

var (
	// ErrNotConfigured is returned when storage is disabled or incomplete.
	ErrNotConfigured = errors.New("objectstore: not configured")

	// ErrInvalidKey is returned for empty keys or keys escaping the media prefix.
	ErrInvalidKey = errors.New("objectstore: invalid key")

	// ErrPresignFailed wraps SDK presigning failures.
	ErrPresignFailed = errors.New("objectstore: presign failed")
)
