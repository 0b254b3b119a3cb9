package presence

import (
	"context"
	"time"

	"github.com/nerrad567/remoteeye-relay/internal/device"
)

// Conn is a live transport connection as seen by the registry.
type Conn interface {
	// ID is unique per connection for the lifetime of the process.
	ID() string

	// Send queues a frame for delivery. It returns false if the connection
	// is closed or its buffer is full. It must not block.
	Send(data []byte) bool

	// SendWait queues a frame, waiting for buffer space until ctx is done.
	// It returns an error if the connection closes first.
	SendWait(ctx context.Context, data []byte) error

	// Close terminates the connection. It is safe to call more than once.
	Close()
}

// DeviceSession is the live session of a registered device.
type DeviceSession struct {
	DeviceID      string
	Conn          Conn
	ConnectedAt   time.Time
	LastHeartbeat time.Time
	Status        *device.StatusSnapshot
	CameraActive  bool
	AudioActive   bool
}

// ControllerSession is the live session of a controller watching one device.
type ControllerSession struct {
	ControllerID   string
	Conn           Conn
	TargetDeviceID string
	ConnectedAt    time.Time
}

// Stats summarises the registry for health reporting.
type Stats struct {
	DevicesOnline     int      `json:"devicesOnline"`
	ControllersOnline int      `json:"controllersOnline"`
	Devices           []string `json:"devices"`
}

func (s *DeviceSession) clone() DeviceSession {
	c := *s
	if s.Status != nil {
		st := *s.Status
		c.Status = &st
	}
	return c
}
