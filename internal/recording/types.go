package recording

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Type is the kind of media captured.
type Type string

const (
	TypeAudio Type = "audio"
	TypePhoto Type = "photo"
)

// Trigger records what caused a capture.
type Trigger string

const (
	TriggerManual         Trigger = "manual"
	TriggerSoundDetection Trigger = "sound_detection"
)

// ParseType validates a media type string.
func ParseType(s string) (Type, error) {
	switch t := Type(s); t {
	case TypeAudio, TypePhoto:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidType, s)
}

// ParseTrigger validates a trigger string. Empty means manual.
func ParseTrigger(s string) (Trigger, error) {
	switch t := Trigger(s); t {
	case "":
		return TriggerManual, nil
	case TriggerManual, TriggerSoundDetection:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTrigger, s)
}

// Recording is a captured media file owned by a device.
type Recording struct {
	ID          string          `json:"id"`
	DeviceID    string          `json:"deviceId"`
	Type        Type            `json:"type"`
	Filename    string          `json:"filename"`
	StorageKey  string          `json:"storageKey,omitempty"`
	Duration    *float64        `json:"duration,omitempty"`
	Size        int64           `json:"size"`
	TriggeredBy Trigger         `json:"triggeredBy"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Validate checks the fields a caller must supply.
func (r *Recording) Validate() error {
	if _, err := ParseType(string(r.Type)); err != nil {
		return err
	}
	if _, err := ParseTrigger(string(r.TriggeredBy)); err != nil {
		return err
	}
	if err := ValidateFilename(r.Filename); err != nil {
		return err
	}
	if r.Size < 0 {
		return fmt.Errorf("%w: must not be negative", ErrInvalidSize)
	}
	if r.Duration != nil && *r.Duration < 0 {
		return fmt.Errorf("%w: duration must not be negative", ErrInvalidSize)
	}
	return nil
}

const maxFilenameLength = 255

// ValidateFilename rejects names that could escape the device's key prefix.
func ValidateFilename(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: required", ErrInvalidFilename)
	case len(name) > maxFilenameLength:
		return fmt.Errorf("%w: too long", ErrInvalidFilename)
	case strings.ContainsAny(name, `/\`), name == ".", name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	}
	return nil
}

// StorageKey is the object key for a device's media file:
// {type}s/{deviceId}/{filename}.
func StorageKey(t Type, deviceID, filename string) string {
	return path.Join(string(t)+"s", deviceID, filename)
}

// GenerateID creates a new UUID for a recording.
func GenerateID() string {
	return uuid.New().String()
}
