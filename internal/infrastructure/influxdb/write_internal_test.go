package influxdb

import (
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/remoteeye-relay/internal/device"
)

func pointTags(p *write.Point) map[string]string {
	tags := make(map[string]string)
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	return tags
}

func pointFields(p *write.Point) map[string]interface{} {
	fields := make(map[string]interface{})
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	return fields
}

func TestStatusPoint(t *testing.T) {
	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	p := statusPoint("dev-1", device.StatusSnapshot{
		Battery:        42,
		Charging:       true,
		NetworkType:    device.NetworkCellular,
		SignalStrength: 2,
		CameraActive:   true,
	}, ts)

	if p.Name() != MeasurementDeviceStatus {
		t.Errorf("Name() = %q, want %q", p.Name(), MeasurementDeviceStatus)
	}
	if !p.Time().Equal(ts) {
		t.Errorf("Time() = %v, want %v", p.Time(), ts)
	}

	tags := pointTags(p)
	if tags["device_id"] != "dev-1" || tags["network_type"] != "cellular" {
		t.Errorf("tags = %v", tags)
	}

	fields := pointFields(p)
	if fields["battery"] != int64(42) {
		t.Errorf("battery = %v, want 42", fields["battery"])
	}
	if fields["charging"] != true || fields["camera_active"] != true || fields["audio_active"] != false {
		t.Errorf("flags = %v", fields)
	}
}

func TestLocationPoint_OptionalFields(t *testing.T) {
	p := locationPoint("dev-1", device.Location{Latitude: 10, Longitude: 20}, time.Now())
	fields := pointFields(p)
	if len(fields) != 2 {
		t.Errorf("fields = %v, want latitude and longitude only", fields)
	}

	speed := 1.5
	p = locationPoint("dev-1", device.Location{Latitude: 10, Longitude: 20, Speed: &speed}, time.Now())
	if pointFields(p)["speed_mps"] != 1.5 {
		t.Errorf("speed_mps missing from %v", pointFields(p))
	}
}

func TestSoundPoint(t *testing.T) {
	threshold := -30.0
	p := soundPoint("dev-2", device.SoundEvent{Level: -12.5, Threshold: &threshold}, time.Now())

	fields := pointFields(p)
	if fields["level_dbfs"] != -12.5 || fields["threshold_dbfs"] != -30.0 {
		t.Errorf("fields = %v", fields)
	}
	if _, ok := fields["duration_s"]; ok {
		t.Error("duration_s should be omitted when unknown")
	}
}

func TestCommandPoint(t *testing.T) {
	p := commandPoint("dev-3", "capture_photo", "failed", 1500*time.Millisecond, time.Now())

	tags := pointTags(p)
	if tags["action"] != "capture_photo" || tags["status"] != "failed" {
		t.Errorf("tags = %v", tags)
	}
	fields := pointFields(p)
	if fields["latency_ms"] != int64(1500) {
		t.Errorf("latency_ms = %v, want 1500", fields["latency_ms"])
	}

	p = commandPoint("dev-3", "get_status", "completed", 0, time.Now())
	if _, ok := pointFields(p)["latency_ms"]; ok {
		t.Error("latency_ms should be omitted when zero")
	}
}
