package realtime

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/nerrad567/remoteeye-relay/internal/auth"
	"github.com/nerrad567/remoteeye-relay/internal/device"
)

// EventType names a frame on the wire.
type EventType string

// Events sent by devices.
const (
	EventDeviceRegister          EventType = "device:register"
	EventDeviceStatus            EventType = "device:status"
	EventDeviceFrame             EventType = "device:frame"
	EventDeviceAudio             EventType = "device:audio"
	EventDevicePhoto             EventType = "device:photo"
	EventDeviceLocation          EventType = "device:location"
	EventDeviceSoundDetected     EventType = "device:sound_detected"
	EventDeviceRecordingComplete EventType = "device:recording_complete"
	EventDeviceCommandAck        EventType = "device:command_ack"
	EventDeviceHeartbeat         EventType = "device:heartbeat"
)

// Events sent by controllers. EventControllerCommand is also the frame that
// delivers a command to the device.
const (
	EventControllerRegister EventType = "controller:register"
	EventControllerCommand  EventType = "controller:command"
)

// Events sent by the relay.
const (
	EventServerAck           EventType = "server:ack"
	EventServerError         EventType = "server:error"
	EventServerDeviceStatus  EventType = "server:device_status"
	EventServerCommandQueued EventType = "server:command_queued"
	EventServerHeartbeatAck  EventType = "server:heartbeat_ack"
)

var inboundEvents = map[EventType]auth.Role{
	EventDeviceRegister:          auth.RoleDevice,
	EventDeviceStatus:            auth.RoleDevice,
	EventDeviceFrame:             auth.RoleDevice,
	EventDeviceAudio:             auth.RoleDevice,
	EventDevicePhoto:             auth.RoleDevice,
	EventDeviceLocation:          auth.RoleDevice,
	EventDeviceSoundDetected:     auth.RoleDevice,
	EventDeviceRecordingComplete: auth.RoleDevice,
	EventDeviceCommandAck:        auth.RoleDevice,
	EventDeviceHeartbeat:         auth.RoleDevice,
	EventControllerRegister:      auth.RoleController,
	EventControllerCommand:       auth.RoleController,
}

// Role returns the role allowed to send the event, and false for events
// clients may not send.
func (e EventType) Role() (auth.Role, bool) {
	r, ok := inboundEvents[e]
	return r, ok
}

// IsRegister reports whether the event is an identity claim.
func (e EventType) IsRegister() bool {
	return e == EventDeviceRegister || e == EventControllerRegister
}

// IsForwarded reports whether a device event is relayed verbatim to watchers.
func (e EventType) IsForwarded() bool {
	switch e {
	case EventDeviceFrame, EventDeviceAudio, EventDevicePhoto, EventDeviceLocation,
		EventDeviceSoundDetected, EventDeviceRecordingComplete, EventDeviceCommandAck:
		return true
	}
	return false
}

func (e EventType) String() string { return string(e) }

// shortName strips the role prefix for logging.
func (e EventType) shortName() string {
	if _, name, ok := strings.Cut(string(e), ":"); ok {
		return name
	}
	return string(e)
}

// Envelope is the frame wrapper for every event in both directions.
type Envelope struct {
	Type      EventType       `json:"type"`
	Ref       string          `json:"ref,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Inbound payloads.

// DeviceRegisterData claims a device identity.
type DeviceRegisterData struct {
	DeviceID string `json:"deviceId"`
}

// DeviceStatusData carries a status snapshot.
type DeviceStatusData struct {
	DeviceID string          `json:"deviceId"`
	Status   json.RawMessage `json:"status"`
}

// deviceRef is the part of any device payload that names the device.
type deviceRef struct {
	DeviceID string `json:"deviceId"`
}

// DevicePhotoData announces a captured photo.
type DevicePhotoData struct {
	DeviceID string    `json:"deviceId"`
	Photo    PhotoInfo `json:"photo"`
}

// PhotoInfo describes a photo. Data is the inline base64 image, if any.
type PhotoInfo struct {
	Filename    string          `json:"filename"`
	Size        *int64          `json:"size,omitempty"`
	Data        string          `json:"data,omitempty"`
	TriggeredBy string          `json:"triggeredBy,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

// RecordingCompleteData announces a finished recording.
type RecordingCompleteData struct {
	DeviceID  string        `json:"deviceId"`
	Recording RecordingInfo `json:"recording"`
}

// RecordingInfo describes a finished recording.
type RecordingInfo struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Filename    string          `json:"filename"`
	Size        int64           `json:"size"`
	Duration    *float64        `json:"duration,omitempty"`
	TriggeredBy string          `json:"triggeredBy,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

// CommandAckData reports a command outcome.
type CommandAckData struct {
	CommandID string  `json:"commandId"`
	Status    string  `json:"status"`
	Error     *string `json:"error,omitempty"`
}

// ControllerRegisterData claims a controller identity and its target device.
type ControllerRegisterData struct {
	ControllerID   string `json:"controllerId"`
	TargetDeviceID string `json:"targetDeviceId"`
}

// ControllerCommandData asks for a command to be sent to the target device.
type ControllerCommandData struct {
	CommandID      string          `json:"commandId,omitempty"`
	TargetDeviceID string          `json:"targetDeviceId"`
	Action         string          `json:"action"`
	Params         json.RawMessage `json:"params,omitempty"`
}

// Outbound payloads.

// DeviceStatusEvent tells controllers about a device's presence or status.
type DeviceStatusEvent struct {
	DeviceID string                 `json:"deviceId"`
	Online   bool                   `json:"online"`
	LastSeen *time.Time             `json:"lastSeen,omitempty"`
	Status   *device.StatusSnapshot `json:"status,omitempty"`
}

// CommandDelivery is the frame a device receives for each command.
type CommandDelivery struct {
	CommandID      string          `json:"commandId"`
	TargetDeviceID string          `json:"targetDeviceId"`
	Action         string          `json:"action"`
	Params         json.RawMessage `json:"params,omitempty"`
}

// CommandQueuedEvent tells a controller its command is waiting for the device.
type CommandQueuedEvent struct {
	CommandID string `json:"commandId"`
	Position  *int   `json:"position"`
	Reason    string `json:"reason"`
}

// DeviceRegisterAck answers device:register.
type DeviceRegisterAck struct {
	Success        bool `json:"success"`
	QueuedCommands int  `json:"queuedCommands"`
}

// ControllerRegisterAck answers controller:register.
type ControllerRegisterAck struct {
	Success      bool                   `json:"success"`
	DeviceOnline bool                   `json:"deviceOnline"`
	DeviceStatus *device.StatusSnapshot `json:"deviceStatus"`
	LastSeen     *time.Time             `json:"lastSeen,omitempty"`
}

// CommandAck answers controller:command.
type CommandAck struct {
	CommandID     string `json:"commandId"`
	Status        string `json:"status"`
	QueuePosition *int   `json:"queuePosition,omitempty"`
}

// ErrorData is the body of server:error.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes carried in server:error.
const (
	CodeInvalidInput   = "INVALID_INPUT"
	CodeUnknownEvent   = "UNKNOWN_EVENT"
	CodeForbidden      = "FORBIDDEN"
	CodeDeviceNotFound = "DEVICE_NOT_FOUND"
	CodeInvalidAction  = "INVALID_ACTION"
	CodeCommandMissing = "COMMAND_NOT_FOUND"
	CodeConflict       = "CONFLICT"
	CodeInternal       = "INTERNAL_ERROR"
)

// queuedReasonOffline is the reason given in server:command_queued.
const queuedReasonOffline = "device_offline"

// encode builds an outbound frame.
func encode(t EventType, ref string, data any, now time.Time) ([]byte, error) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return json.Marshal(Envelope{
		Type:      t,
		Ref:       ref,
		Timestamp: now.UTC().Format(time.RFC3339),
		Data:      raw,
	})
}
