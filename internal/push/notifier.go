package push

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nerrad567/remoteeye-relay/internal/infrastructure/mqtt"
)

// Message types carried in the "type" field.
const (
	TypePing    = "ping"
	TypeCommand = "command"
)

// wakeTTL is how long a wake-up remains useful to the device.
const wakeTTL = 60 * time.Second

// Notifier sends wake-up and command pushes. Send methods report whether the
// message was handed to the transport; they never return transport errors.
type Notifier interface {
	IsConfigured() bool
	SendWakePing(ctx context.Context, pushToken, deviceID string) bool
	SendCommandPush(ctx context.Context, pushToken, deviceID, action string, params json.RawMessage) bool
}

// Publisher is the subset of the MQTT client used for push.
type Publisher interface {
	PublishJSON(topic string, v any) error
	IsConnected() bool
}

// Logger defines the logging interface used by notifiers.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Message is the JSON body of a push.
type Message struct {
	Type      string          `json:"type"`
	DeviceID  string          `json:"deviceId"`
	Action    string          `json:"action"`
	Params    json.RawMessage `json:"params,omitempty"`
	TTL       int             `json:"ttl,omitempty"` // seconds
	Timestamp time.Time       `json:"timestamp"`
}

// MQTTNotifier publishes pushes through an MQTT broker.
type MQTTNotifier struct {
	pub    Publisher
	topics mqtt.Topics
	logger Logger
	now    func() time.Time
}

// NewMQTTNotifier creates a notifier publishing under topics.
func NewMQTTNotifier(pub Publisher, topics mqtt.Topics) *MQTTNotifier {
	return &MQTTNotifier{
		pub:    pub,
		topics: topics,
		logger: noopLogger{},
		now:    time.Now,
	}
}

// SetLogger sets the logger for the notifier.
func (n *MQTTNotifier) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	n.logger = logger
}

// IsConfigured reports true: an MQTT notifier is only built when push is
// enabled. A broker that is down makes individual sends fail.
func (n *MQTTNotifier) IsConfigured() bool {
	return n.pub != nil
}

// SendWakePing asks the device to open its realtime session.
func (n *MQTTNotifier) SendWakePing(ctx context.Context, pushToken, deviceID string) bool {
	return n.send(ctx, pushToken, Message{
		Type:     TypePing,
		DeviceID: deviceID,
		Action:   "wake",
		TTL:      int(wakeTTL / time.Second),
	})
}

// SendCommandPush delivers a command through the push channel.
func (n *MQTTNotifier) SendCommandPush(ctx context.Context, pushToken, deviceID, action string, params json.RawMessage) bool {
	return n.send(ctx, pushToken, Message{
		Type:     TypeCommand,
		DeviceID: deviceID,
		Action:   action,
		Params:   params,
	})
}

func (n *MQTTNotifier) send(ctx context.Context, pushToken string, msg Message) bool {
	if !n.IsConfigured() {
		return false
	}
	if !mqtt.ValidSegment(pushToken) {
		n.logger.Warn("push token not usable as topic segment", "device_id", msg.DeviceID)
		return false
	}
	if err := ctx.Err(); err != nil {
		return false
	}

	msg.Timestamp = n.now().UTC()
	if err := n.pub.PublishJSON(n.topics.Push(pushToken), msg); err != nil {
		n.logger.Error("push publish failed",
			"device_id", msg.DeviceID, "type", msg.Type, "error", err)
		return false
	}

	n.logger.Info("push sent", "device_id", msg.DeviceID, "type", msg.Type, "action", msg.Action)
	return true
}

// Disabled is the notifier used when push is turned off.
type Disabled struct{}

// IsConfigured always reports false.
func (Disabled) IsConfigured() bool { return false }

// SendWakePing always fails.
func (Disabled) SendWakePing(context.Context, string, string) bool { return false }

// SendCommandPush always fails.
func (Disabled) SendCommandPush(context.Context, string, string, string, json.RawMessage) bool {
	return false
}

var (
	_ Notifier = (*MQTTNotifier)(nil)
	_ Notifier = Disabled{}
)
