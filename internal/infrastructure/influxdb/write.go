package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/remoteeye-relay/internal/device"
)

// Measurement names written by the relay.
const (
	MeasurementDeviceStatus   = "device_status"
	MeasurementDeviceLocation = "device_location"
	MeasurementSoundEvent     = "sound_event"
	MeasurementCommandOutcome = "command_outcome"
)

// WriteDeviceStatus records a status snapshot reported over a device session.
//
// The write is non-blocking; points are batched and sent asynchronously.
//
// Parameters:
//   - deviceID: Reporting device
//   - s: Validated status snapshot
//
// Example:
//
//	client.WriteDeviceStatus("3f6c...", device.StatusSnapshot{Battery: 80, NetworkType: device.NetworkWiFi})
func (c *Client) WriteDeviceStatus(deviceID string, s device.StatusSnapshot) {
	c.write(statusPoint(deviceID, s, time.Now()))
}

// WriteLocation records a position fix.
func (c *Client) WriteLocation(deviceID string, loc device.Location) {
	c.write(locationPoint(deviceID, loc, time.Now()))
}

// WriteSoundEvent records a sound detection alert.
func (c *Client) WriteSoundEvent(deviceID string, ev device.SoundEvent) {
	c.write(soundPoint(deviceID, ev, time.Now()))
}

// WriteCommandOutcome records a command reaching a terminal status.
//
// Parameters:
//   - deviceID: Device that executed the command
//   - action: Command action, stored as a tag (closed vocabulary, low cardinality)
//   - status: Terminal status ("completed" or "failed")
//   - latency: Time from creation to acknowledgment; zero if unknown
func (c *Client) WriteCommandOutcome(deviceID, action, status string, latency time.Duration) {
	c.write(commandPoint(deviceID, action, status, latency, time.Now()))
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.write(write.NewPoint(measurement, tags, fields, time.Now()))
}

// WritePointWithTime writes a custom point with a specific timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	c.write(write.NewPoint(measurement, tags, fields, timestamp))
}

func (c *Client) write(p *write.Point) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(p)
}

func statusPoint(deviceID string, s device.StatusSnapshot, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementDeviceStatus,
		map[string]string{
			"device_id":    deviceID,
			"network_type": string(s.NetworkType),
		},
		map[string]interface{}{
			"battery":          int64(s.Battery),
			"charging":         s.Charging,
			"signal_strength":  int64(s.SignalStrength),
			"camera_active":    s.CameraActive,
			"audio_active":     s.AudioActive,
			"location_enabled": s.LocationEnabled,
		},
		ts,
	)
}

func locationPoint(deviceID string, loc device.Location, ts time.Time) *write.Point {
	fields := map[string]interface{}{
		"latitude":  loc.Latitude,
		"longitude": loc.Longitude,
	}
	if loc.Accuracy != nil {
		fields["accuracy_m"] = *loc.Accuracy
	}
	if loc.Altitude != nil {
		fields["altitude_m"] = *loc.Altitude
	}
	if loc.Speed != nil {
		fields["speed_mps"] = *loc.Speed
	}
	return write.NewPoint(
		MeasurementDeviceLocation,
		map[string]string{"device_id": deviceID},
		fields,
		ts,
	)
}

func soundPoint(deviceID string, ev device.SoundEvent, ts time.Time) *write.Point {
	fields := map[string]interface{}{
		"level_dbfs": ev.Level,
	}
	if ev.Threshold != nil {
		fields["threshold_dbfs"] = *ev.Threshold
	}
	if ev.Duration != nil {
		fields["duration_s"] = *ev.Duration
	}
	return write.NewPoint(
		MeasurementSoundEvent,
		map[string]string{"device_id": deviceID},
		fields,
		ts,
	)
}

func commandPoint(deviceID, action, status string, latency time.Duration, ts time.Time) *write.Point {
	fields := map[string]interface{}{
		"count": int64(1),
	}
	if latency > 0 {
		fields["latency_ms"] = latency.Milliseconds()
	}
	return write.NewPoint(
		MeasurementCommandOutcome,
		map[string]string{
			"device_id": deviceID,
			"action":    action,
			"status":    status,
		},
		fields,
		ts,
	)
}
