package device

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// NetworkType is the device's current uplink.
type NetworkType string

const (
	NetworkWiFi     NetworkType = "wifi"
	NetworkCellular NetworkType = "cellular"
	NetworkNone     NetworkType = "none"
)

// Status snapshot bounds.
const (
	minBattery        = 0
	maxBattery        = 100
	minSignalStrength = 0
	maxSignalStrength = 4
)

// StatusSnapshot is the structured status a device reports over its session.
// Unknown fields and out-of-range values are rejected by DecodeStatus.
type StatusSnapshot struct {
	Battery         int         `json:"battery"`
	Charging        bool        `json:"charging"`
	NetworkType     NetworkType `json:"networkType"`
	SignalStrength  int         `json:"signalStrength"`
	CameraActive    bool        `json:"cameraActive"`
	AudioActive     bool        `json:"audioActive"`
	LocationEnabled bool        `json:"locationEnabled"`
}

// Validate checks ranges and enumerations.
func (s *StatusSnapshot) Validate() error {
	if s.Battery < minBattery || s.Battery > maxBattery {
		return fmt.Errorf("%w: battery %d out of range %d-%d", ErrInvalidStatus, s.Battery, minBattery, maxBattery)
	}
	if s.SignalStrength < minSignalStrength || s.SignalStrength > maxSignalStrength {
		return fmt.Errorf("%w: signalStrength %d out of range %d-%d",
			ErrInvalidStatus, s.SignalStrength, minSignalStrength, maxSignalStrength)
	}
	switch s.NetworkType {
	case NetworkWiFi, NetworkCellular, NetworkNone:
	default:
		return fmt.Errorf("%w: unknown networkType %q", ErrInvalidStatus, s.NetworkType)
	}
	return nil
}

// DecodeStatus parses and validates a raw status payload.
func DecodeStatus(raw []byte) (*StatusSnapshot, error) {
	var s StatusSnapshot
	if err := decodeStrict(raw, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStatus, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// decodeStrict unmarshals into v, failing on unknown fields or trailing data.
func decodeStrict(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("unexpected data after JSON object")
	}
	return nil
}
