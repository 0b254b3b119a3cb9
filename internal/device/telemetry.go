package device

import (
	"encoding/json"
	"fmt"
	"math"
)

// Location is a position fix reported by a device.
// Fields beyond these are tolerated because the payload is also forwarded
// verbatim to watching controllers.
type Location struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Accuracy  *float64 `json:"accuracy,omitempty"` // metres
	Altitude  *float64 `json:"altitude,omitempty"` // metres
	Speed     *float64 `json:"speed,omitempty"`    // m/s
}

// Validate checks coordinate ranges.
func (l *Location) Validate() error {
	if math.IsNaN(l.Latitude) || l.Latitude < -90 || l.Latitude > 90 {
		return fmt.Errorf("%w: latitude %v out of range", ErrInvalidLocation, l.Latitude)
	}
	if math.IsNaN(l.Longitude) || l.Longitude < -180 || l.Longitude > 180 {
		return fmt.Errorf("%w: longitude %v out of range", ErrInvalidLocation, l.Longitude)
	}
	if l.Accuracy != nil && *l.Accuracy < 0 {
		return fmt.Errorf("%w: negative accuracy", ErrInvalidLocation)
	}
	return nil
}

// DecodeLocation extracts a location fix from a device:location payload.
// The fix may be nested under "location" or sit at the top level.
func DecodeLocation(raw []byte) (*Location, error) {
	var wrapper struct {
		Location *Location `json:"location"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLocation, err)
	}
	loc := wrapper.Location
	if loc == nil {
		loc = &Location{}
		if err := json.Unmarshal(raw, loc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidLocation, err)
		}
	}
	if err := loc.Validate(); err != nil {
		return nil, err
	}
	return loc, nil
}

// SoundEvent is a sound detection alert raised by a device.
type SoundEvent struct {
	Level     float64  `json:"level"` // dBFS
	Threshold *float64 `json:"threshold,omitempty"`
	Duration  *float64 `json:"duration,omitempty"` // seconds
}

// DecodeSoundEvent extracts a sound detection report.
// Levels are dBFS and therefore never positive.
func DecodeSoundEvent(raw []byte) (*SoundEvent, error) {
	var ev SoundEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSoundEvent, err)
	}
	if math.IsNaN(ev.Level) || ev.Level > 0 || ev.Level < -160 {
		return nil, fmt.Errorf("%w: level %v out of range", ErrInvalidSoundEvent, ev.Level)
	}
	return &ev, nil
}
