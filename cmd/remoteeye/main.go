// RemoteEye Relay
//
// This is the main entry point for the RemoteEye relay. The relay connects
// paired phones (devices) with the controllers that drive them:
//   - REST API for pairing, device management, commands and media
//   - WebSocket realtime channel for live telemetry and command delivery
//   - Durable command queue replayed when a device reconnects
//   - Optional MQTT wake-up pushes, InfluxDB telemetry and S3 media storage
package main

import (
	"os"

	_ "github.com/nerrad567/remoteeye-relay/migrations" // registers the embedded schema
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
