package device

import (
	"fmt"
)

// CameraQuality is the capture quality preset.
type CameraQuality string

const (
	QualityLow    CameraQuality = "low"
	QualityMedium CameraQuality = "medium"
	QualityHigh   CameraQuality = "high"
)

// Settings bounds.
const (
	minSoundThreshold      = -60
	maxSoundThreshold      = 0
	minRecordDuration      = 5
	maxRecordDuration      = 300
	minCameraFPS           = 1
	maxCameraFPS           = 30
	minLocationInterval    = 60
	maxLocationInterval    = 3600
	defaultSoundThreshold  = -30
	defaultRecordDuration  = 30
	defaultCameraFPS       = 10
	defaultLocationSeconds = 300
)

// Settings is the device's configurable behaviour, pushed to it by controllers.
type Settings struct {
	SoundDetection SoundDetectionSettings `json:"soundDetection"`
	Camera         CameraSettings         `json:"camera"`
	Location       LocationSettings       `json:"location"`
}

// SoundDetectionSettings controls sound-triggered recording.
type SoundDetectionSettings struct {
	Enabled        bool `json:"enabled"`
	Threshold      int  `json:"threshold"`      // dBFS
	RecordDuration int  `json:"recordDuration"` // seconds
}

// CameraSettings controls frame streaming.
type CameraSettings struct {
	Quality CameraQuality `json:"quality"`
	FPS     int           `json:"fps"`
}

// LocationSettings controls location reporting.
type LocationSettings struct {
	TrackingEnabled bool `json:"trackingEnabled"`
	UpdateInterval  int  `json:"updateInterval"` // seconds
}

// DefaultSettings returns the settings a newly paired device starts with.
func DefaultSettings() Settings {
	return Settings{
		SoundDetection: SoundDetectionSettings{
			Enabled:        true,
			Threshold:      defaultSoundThreshold,
			RecordDuration: defaultRecordDuration,
		},
		Camera: CameraSettings{
			Quality: QualityMedium,
			FPS:     defaultCameraFPS,
		},
		Location: LocationSettings{
			TrackingEnabled: true,
			UpdateInterval:  defaultLocationSeconds,
		},
	}
}

// Validate checks every field against its allowed range.
func (s Settings) Validate() error {
	sd := s.SoundDetection
	if sd.Threshold < minSoundThreshold || sd.Threshold > maxSoundThreshold {
		return fmt.Errorf("%w: soundDetection.threshold must be between %d and %d",
			ErrInvalidSettings, minSoundThreshold, maxSoundThreshold)
	}
	if sd.RecordDuration < minRecordDuration || sd.RecordDuration > maxRecordDuration {
		return fmt.Errorf("%w: soundDetection.recordDuration must be between %d and %d",
			ErrInvalidSettings, minRecordDuration, maxRecordDuration)
	}

	switch s.Camera.Quality {
	case QualityLow, QualityMedium, QualityHigh:
	default:
		return fmt.Errorf("%w: camera.quality must be low, medium or high", ErrInvalidSettings)
	}
	if s.Camera.FPS < minCameraFPS || s.Camera.FPS > maxCameraFPS {
		return fmt.Errorf("%w: camera.fps must be between %d and %d",
			ErrInvalidSettings, minCameraFPS, maxCameraFPS)
	}

	if s.Location.UpdateInterval < minLocationInterval || s.Location.UpdateInterval > maxLocationInterval {
		return fmt.Errorf("%w: location.updateInterval must be between %d and %d",
			ErrInvalidSettings, minLocationInterval, maxLocationInterval)
	}
	return nil
}

// Merge applies a partial JSON settings document on top of s and validates
// the result. Fields absent from patch keep their current values; unknown
// fields are rejected. s is not modified.
func (s Settings) Merge(patch []byte) (Settings, error) {
	merged := s
	if err := decodeStrict(patch, &merged); err != nil {
		return s, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	if err := merged.Validate(); err != nil {
		return s, err
	}
	return merged, nil
}
