package device

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Validation constants.
const (
	maxNameLength      = 100
	maxPushTokenLength = 4096
	defaultDeviceName  = "RemoteEye device"
)

// ValidateName checks a display name. Empty names are allowed and replaced
// by NormaliseName.
func ValidateName(name string) error {
	if utf8.RuneCountInString(name) > maxNameLength {
		return fmt.Errorf("%w: must be at most %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// NormaliseName trims the name and falls back to a default.
func NormaliseName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return defaultDeviceName
	}
	return name
}

// ValidatePushToken checks a push registration.
func ValidatePushToken(token string, platform PushPlatform) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("%w: token is required", ErrInvalidPushToken)
	}
	if len(token) > maxPushTokenLength {
		return fmt.Errorf("%w: token too long", ErrInvalidPushToken)
	}
	for _, p := range AllPushPlatforms() {
		if p == platform {
			return nil
		}
	}
	return fmt.Errorf("%w: unknown platform %q", ErrInvalidPushToken, platform)
}

// GenerateID creates a new UUID for a device.
func GenerateID() string {
	return uuid.New().String()
}
