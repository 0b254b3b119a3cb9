package command

import (
	"encoding/json"
	"fmt"
	"time"
)

// Action is one entry of the fixed command vocabulary a device understands.
type Action string

const (
	ActionStartCamera           Action = "start_camera"
	ActionStopCamera            Action = "stop_camera"
	ActionSwitchCamera          Action = "switch_camera"
	ActionStartAudio            Action = "start_audio"
	ActionStopAudio             Action = "stop_audio"
	ActionCapturePhoto          Action = "capture_photo"
	ActionStartRecording        Action = "start_recording"
	ActionStopRecording         Action = "stop_recording"
	ActionGetLocation           Action = "get_location"
	ActionGetStatus             Action = "get_status"
	ActionSetSoundThreshold     Action = "set_sound_threshold"
	ActionEnableSoundDetection  Action = "enable_sound_detection"
	ActionDisableSoundDetection Action = "disable_sound_detection"
)

// AllActions returns the full command vocabulary.
func AllActions() []Action {
	return []Action{
		ActionStartCamera, ActionStopCamera, ActionSwitchCamera,
		ActionStartAudio, ActionStopAudio,
		ActionCapturePhoto, ActionStartRecording, ActionStopRecording,
		ActionGetLocation, ActionGetStatus,
		ActionSetSoundThreshold, ActionEnableSoundDetection, ActionDisableSoundDetection,
	}
}

var validActions map[Action]struct{}

func init() {
	validActions = make(map[Action]struct{}, len(AllActions()))
	for _, a := range AllActions() {
		validActions[a] = struct{}{}
	}
}

// ParseAction validates a wire action name.
func ParseAction(s string) (Action, error) {
	a := Action(s)
	if _, ok := validActions[a]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidAction, s)
	}
	return a, nil
}

// Status is a command's lifecycle position.
//
// Transitions only move forward:
//
//	pending|queued → delivered → (executing →) completed|failed
type Status string

const (
	StatusPending   Status = "pending"
	StatusQueued    Status = "queued"
	StatusDelivered Status = "delivered"
	StatusExecuting Status = "executing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// AllStatuses returns every status in lifecycle order.
func AllStatuses() []Status {
	return []Status{StatusPending, StatusQueued, StatusDelivered, StatusExecuting, StatusCompleted, StatusFailed}
}

// ParseStatus validates a status filter value.
func ParseStatus(s string) (Status, error) {
	for _, st := range AllStatuses() {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// rank orders statuses along the lifecycle. Equal ranks are alternatives.
func (s Status) rank() int {
	switch s {
	case StatusPending, StatusQueued:
		return 0
	case StatusDelivered:
		return 1
	case StatusExecuting:
		return 2
	case StatusCompleted, StatusFailed:
		return 3
	default:
		return -1
	}
}

// IsWaiting reports whether the command has not reached the device yet.
func (s Status) IsWaiting() bool {
	return s == StatusPending || s == StatusQueued
}

// IsTerminal reports whether the command has a final outcome.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo reports whether moving from s to next is a forward step.
func (s Status) CanTransitionTo(next Status) bool {
	return s.rank() >= 0 && next.rank() > s.rank()
}

// predecessors lists the statuses from which next may be reached.
func predecessors(next Status) []Status {
	var out []Status
	for _, s := range AllStatuses() {
		if s.CanTransitionTo(next) {
			out = append(out, s)
		}
	}
	return out
}

// Command is a durable instruction for a device.
// This matches the commands table in migrations/20260301_090000_initial_schema.up.sql.
type Command struct {
	// Seq is the insertion sequence; it defines creation order.
	Seq int64 `json:"-"`

	ID          string          `json:"id"`
	DeviceID    string          `json:"deviceId"`
	Action      Action          `json:"action"`
	Params      json.RawMessage `json:"params,omitempty"`
	Status      Status          `json:"status"`
	Error       *string         `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	DeliveredAt *time.Time      `json:"deliveredAt,omitempty"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
}

// ValidateParams accepts an absent payload or a JSON object.
func ValidateParams(params json.RawMessage) error {
	if len(params) == 0 || string(params) == "null" {
		return nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(params, &obj); err != nil {
		return fmt.Errorf("%w: params must be a JSON object", ErrInvalidParams)
	}
	return nil
}
