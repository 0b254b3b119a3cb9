package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeLocation(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantLat float64
		wantErr bool
	}{
		{name: "nested", raw: `{"deviceId":"d1","location":{"latitude":51.5,"longitude":-0.12,"accuracy":8}}`, wantLat: 51.5},
		{name: "top level", raw: `{"latitude":-33.9,"longitude":151.2}`, wantLat: -33.9},
		{name: "latitude out of range", raw: `{"latitude":91,"longitude":0}`, wantErr: true},
		{name: "longitude out of range", raw: `{"location":{"latitude":0,"longitude":-181}}`, wantErr: true},
		{name: "negative accuracy", raw: `{"latitude":1,"longitude":1,"accuracy":-2}`, wantErr: true},
		{name: "wrong type", raw: `{"latitude":"north","longitude":1}`, wantErr: true},
		{name: "not json", raw: `nope`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, err := DecodeLocation([]byte(tt.raw))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidLocation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLat, loc.Latitude)
		})
	}
}

func TestDecodeSoundEvent(t *testing.T) {
	ev, err := DecodeSoundEvent([]byte(`{"deviceId":"d1","level":-22.5,"threshold":-30}`))
	require.NoError(t, err)
	assert.Equal(t, -22.5, ev.Level)
	require.NotNil(t, ev.Threshold)
	assert.Equal(t, -30.0, *ev.Threshold)

	_, err = DecodeSoundEvent([]byte(`{"level":3}`))
	assert.ErrorIs(t, err, ErrInvalidSoundEvent)

	_, err = DecodeSoundEvent([]byte(`{"level":"loud"}`))
	assert.ErrorIs(t, err, ErrInvalidSoundEvent)
}
