// Package influxdb records device telemetry history in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched non-blocking writes and health monitoring.
//
// # Measurements
//
//   - device_status: battery, charging, signal and capture flags per snapshot
//   - device_location: position fixes
//   - sound_event: sound detection alerts
//   - command_outcome: terminal command acknowledgments with latency
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off; a nil *Client drops writes
//	}
//	defer client.Close()
//
//	client.WriteDeviceStatus(deviceID, snapshot)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
//
// # Error Handling
//
// Write operations are non-blocking; batch errors are delivered to the
// SetOnError callback. Connection and health check errors are returned directly.
package influxdb
