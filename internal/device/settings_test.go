package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSettings_Valid(t *testing.T) {
	s := DefaultSettings()
	require.NoError(t, s.Validate())

	assert.True(t, s.SoundDetection.Enabled)
	assert.Equal(t, -30, s.SoundDetection.Threshold)
	assert.Equal(t, 30, s.SoundDetection.RecordDuration)
	assert.Equal(t, QualityMedium, s.Camera.Quality)
	assert.Equal(t, 10, s.Camera.FPS)
	assert.True(t, s.Location.TrackingEnabled)
	assert.Equal(t, 300, s.Location.UpdateInterval)
}

func TestSettings_Merge(t *testing.T) {
	base := DefaultSettings()

	merged, err := base.Merge([]byte(`{"camera":{"fps":20},"soundDetection":{"enabled":false}}`))
	require.NoError(t, err)

	assert.Equal(t, 20, merged.Camera.FPS)
	assert.Equal(t, QualityMedium, merged.Camera.Quality, "untouched nested field keeps its value")
	assert.False(t, merged.SoundDetection.Enabled)
	assert.Equal(t, -30, merged.SoundDetection.Threshold)
	assert.Equal(t, base.Location, merged.Location)

	// The receiver is not modified.
	assert.Equal(t, 10, base.Camera.FPS)
}

func TestSettings_MergeRejects(t *testing.T) {
	tests := []struct {
		name  string
		patch string
	}{
		{name: "threshold above zero", patch: `{"soundDetection":{"threshold":5}}`},
		{name: "threshold too low", patch: `{"soundDetection":{"threshold":-61}}`},
		{name: "record duration too short", patch: `{"soundDetection":{"recordDuration":4}}`},
		{name: "record duration too long", patch: `{"soundDetection":{"recordDuration":301}}`},
		{name: "unknown quality", patch: `{"camera":{"quality":"ultra"}}`},
		{name: "fps zero", patch: `{"camera":{"fps":0}}`},
		{name: "fps too high", patch: `{"camera":{"fps":31}}`},
		{name: "interval too short", patch: `{"location":{"updateInterval":59}}`},
		{name: "interval too long", patch: `{"location":{"updateInterval":3601}}`},
		{name: "unknown section", patch: `{"microphone":{"gain":3}}`},
		{name: "unknown nested field", patch: `{"camera":{"zoom":2}}`},
		{name: "malformed", patch: `{"camera":`},
	}

	base := DefaultSettings()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := base.Merge([]byte(tt.patch))
			assert.ErrorIs(t, err, ErrInvalidSettings)
			assert.Equal(t, base, got, "rejected merge returns the original settings")
		})
	}
}
