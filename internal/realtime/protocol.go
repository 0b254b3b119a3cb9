package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/remoteeye-relay/internal/auth"
	"github.com/nerrad567/remoteeye-relay/internal/command"
	"github.com/nerrad567/remoteeye-relay/internal/device"
	"github.com/nerrad567/remoteeye-relay/internal/presence"
	"github.com/nerrad567/remoteeye-relay/internal/recording"
)

// CredentialVerifier validates the bearer credential presented at connect.
type CredentialVerifier interface {
	VerifyCredential(token string) (*auth.Identity, error)
}

// DeviceStore is the subset of the device repository the protocol needs.
type DeviceStore interface {
	GetByID(ctx context.Context, id string) (*device.Device, error)
	UpdateStatus(ctx context.Context, id string, online bool, status *device.StatusSnapshot) error
}

// RecordingStore persists media metadata announced by devices.
type RecordingStore interface {
	Create(ctx context.Context, rec *recording.Recording) error
}

// Telemetry receives time-series points derived from device events.
// Implementations must not block.
type Telemetry interface {
	WriteDeviceStatus(deviceID string, s device.StatusSnapshot)
	WriteLocation(deviceID string, loc device.Location)
	WriteSoundEvent(deviceID string, ev device.SoundEvent)
	WriteCommandOutcome(deviceID, action, status string, latency time.Duration)
}

// Logger defines the logging interface used by the protocol.
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

type noopTelemetry struct{}

func (noopTelemetry) WriteDeviceStatus(string, device.StatusSnapshot)           {}
func (noopTelemetry) WriteLocation(string, device.Location)                     {}
func (noopTelemetry) WriteSoundEvent(string, device.SoundEvent)                 {}
func (noopTelemetry) WriteCommandOutcome(string, string, string, time.Duration) {}

// Deps holds the collaborators of the protocol.
type Deps struct {
	Registry   *presence.Registry
	Dispatcher *command.Dispatcher
	Devices    DeviceStore
	Recordings RecordingStore
	Verifier   CredentialVerifier

	// Telemetry is optional.
	Telemetry Telemetry

	// CloseSuperseded closes the previous connection when an identity
	// registers again on a new one.
	CloseSuperseded bool

	// SendTimeout bounds the wait for buffer space when delivering a
	// command or a registration ack. Zero means DefaultSendTimeout.
	SendTimeout time.Duration
}

// DefaultSendTimeout is the SendTimeout used when Deps leaves it unset.
const DefaultSendTimeout = 10 * time.Second

// Protocol runs the session state machine for every connection.
//
// Thread Safety:
//   - HandleEvent may be called concurrently for different sessions.
//     Calls for one session must be sequential, which the transport's
//     single read loop guarantees.
type Protocol struct {
	registry        *presence.Registry
	dispatcher      *command.Dispatcher
	devices         DeviceStore
	recordings      RecordingStore
	verifier        CredentialVerifier
	telemetry       Telemetry
	closeSuperseded bool
	sendTimeout     time.Duration

	mu     sync.RWMutex
	logger Logger

	now func() time.Time
}

// New creates the protocol and attaches it to the dispatcher as the live
// command transport.
//
// Returns:
//   - *Protocol: ready to accept sessions
//   - error: if a required dependency is missing
func New(deps Deps) (*Protocol, error) {
	switch {
	case deps.Registry == nil:
		return nil, fmt.Errorf("presence registry is required")
	case deps.Dispatcher == nil:
		return nil, fmt.Errorf("command dispatcher is required")
	case deps.Devices == nil:
		return nil, fmt.Errorf("device store is required")
	case deps.Recordings == nil:
		return nil, fmt.Errorf("recording store is required")
	case deps.Verifier == nil:
		return nil, fmt.Errorf("credential verifier is required")
	}

	telemetry := deps.Telemetry
	if telemetry == nil {
		telemetry = noopTelemetry{}
	}
	sendTimeout := deps.SendTimeout
	if sendTimeout <= 0 {
		sendTimeout = DefaultSendTimeout
	}

	p := &Protocol{
		registry:        deps.Registry,
		dispatcher:      deps.Dispatcher,
		devices:         deps.Devices,
		recordings:      deps.Recordings,
		verifier:        deps.Verifier,
		telemetry:       telemetry,
		closeSuperseded: deps.CloseSuperseded,
		sendTimeout:     sendTimeout,
		logger:          noopLogger{},
		now:             func() time.Time { return time.Now().UTC() },
	}
	deps.Dispatcher.SetPusher(p)
	return p, nil
}

// SetLogger sets the logger for the protocol.
func (p *Protocol) SetLogger(logger Logger) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if logger == nil {
		logger = noopLogger{}
	}
	p.logger = logger
}

func (p *Protocol) log() Logger {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.logger
}

// Authenticate verifies the bearer credential presented at connect time.
// Refresh tokens are refused. A failure means the connection must be refused
// and no session is created.
func (p *Protocol) Authenticate(token string) (*auth.Identity, error) {
	if token == "" {
		return nil, ErrNoCredential
	}
	return p.verifier.VerifyCredential(token)
}

// Open creates the session for an authenticated connection.
func (p *Protocol) Open(conn presence.Conn, identity auth.Identity) *Session {
	p.log().Debug("realtime session opened",
		"conn_id", conn.ID(), "role", identity.Role, "subject", identity.Subject)
	return &Session{conn: conn, identity: identity, state: StateAuthenticated}
}

// HandleEvent processes one inbound frame. It never panics and never
// returns an error: failures are logged and, where the sender can act on
// them, answered with server:error.
func (p *Protocol) HandleEvent(ctx context.Context, sess *Session, raw []byte) {
	var env Envelope
	defer func() {
		if r := recover(); r != nil {
			p.log().Error("realtime handler panic",
				"event", env.Type, "conn_id", sess.conn.ID(), "panic", r, "stack", string(debug.Stack()))
			p.sendError(sess, env.Ref, CodeInternal, "internal error")
		}
	}()

	if sess.State() == StateClosed {
		return
	}

	if err := json.Unmarshal(raw, &env); err != nil || env.Type == "" {
		p.log().Debug("malformed realtime frame dropped", "conn_id", sess.conn.ID(), "error", err)
		p.sendError(sess, "", CodeInvalidInput, "malformed frame")
		return
	}

	role, ok := env.Type.Role()
	if !ok {
		p.sendError(sess, env.Ref, CodeUnknownEvent, "unknown event "+env.Type.String())
		return
	}
	if role != sess.Role() {
		p.sendError(sess, env.Ref, CodeForbidden, fmt.Sprintf("%s may not send %s", sess.Role(), env.Type))
		return
	}

	if !env.Type.IsRegister() {
		if !sess.IsRegistered() {
			p.log().Debug("event from unregistered session dropped",
				"conn_id", sess.conn.ID(), "event", env.Type)
			return
		}
		sess.activate()
	}

	switch env.Type {
	case EventDeviceRegister:
		p.handleDeviceRegister(ctx, sess, env)
	case EventDeviceStatus:
		p.handleDeviceStatus(ctx, sess, env)
	case EventDeviceFrame, EventDeviceAudio:
		p.handleMedia(sess, env, raw)
	case EventDevicePhoto:
		p.handlePhoto(ctx, sess, env, raw)
	case EventDeviceLocation:
		p.handleLocation(sess, env, raw)
	case EventDeviceSoundDetected:
		p.handleSoundDetected(sess, env, raw)
	case EventDeviceRecordingComplete:
		p.handleRecordingComplete(ctx, sess, env, raw)
	case EventDeviceCommandAck:
		p.handleCommandAck(ctx, sess, env, raw)
	case EventDeviceHeartbeat:
		p.handleHeartbeat(sess, env)
	case EventControllerRegister:
		p.handleControllerRegister(ctx, sess, env)
	case EventControllerCommand:
		p.handleControllerCommand(ctx, sess, env)
	}
}

// Close ends a session. For a registered device it removes the registry
// entry, persists the offline transition and tells watching controllers.
// Calling Close more than once is a no-op.
func (p *Protocol) Close(ctx context.Context, sess *Session) {
	boundID, wasClosed := sess.close()
	if wasClosed {
		return
	}
	logger := p.log()
	// The transport may already be gone; persistence must still happen.
	ctx = context.WithoutCancel(ctx)

	switch sess.Role() {
	case auth.RoleDevice:
		if boundID == "" {
			return
		}
		var offline bool
		p.dispatcher.WithDeviceLock(boundID, func() {
			if _, ok := p.registry.UnregisterDevice(sess.conn); !ok {
				return
			}
			offline = true
			if err := p.devices.UpdateStatus(ctx, boundID, false, nil); err != nil {
				logger.Warn("persisting offline status failed", "device_id", boundID, "error", err)
			}
		})
		if !offline {
			return
		}
		now := p.now()
		p.broadcastStatus(boundID, DeviceStatusEvent{DeviceID: boundID, Online: false, LastSeen: &now})
		logger.Info("device disconnected", "device_id", boundID)

	case auth.RoleController:
		if id, ok := p.registry.UnregisterController(sess.conn); ok {
			logger.Info("controller disconnected", "controller_id", id)
		}
	}
}

// PushCommand sends a command over the device's live session, waiting up to
// the send timeout for buffer space. It implements command.Pusher.
func (p *Protocol) PushCommand(ctx context.Context, deviceID string, cmd *command.Command) error {
	live, ok := p.registry.GetSession(deviceID)
	if !ok {
		return ErrDeviceOffline
	}
	frame, err := encode(EventControllerCommand, "", CommandDelivery{
		CommandID:      cmd.ID,
		TargetDeviceID: deviceID,
		Action:         string(cmd.Action),
		Params:         cmd.Params,
	}, p.now())
	if err != nil {
		return fmt.Errorf("encoding command: %w", err)
	}
	return p.sendWait(ctx, live.Conn, frame)
}

// sendWait queues a frame that must not be dropped. A connection that does
// not drain within the send timeout is closed.
func (p *Protocol) sendWait(ctx context.Context, conn presence.Conn, frame []byte) error {
	ctx, cancel := context.WithTimeout(ctx, p.sendTimeout)
	defer cancel()
	if err := conn.SendWait(ctx, frame); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			p.log().Warn("connection not draining, closing it", "conn_id", conn.ID())
			conn.Close()
		}
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	return nil
}

// ---- device events ----

func (p *Protocol) handleDeviceRegister(ctx context.Context, sess *Session, env Envelope) {
	var data DeviceRegisterData
	if err := decodeData(env.Data, &data); err != nil || data.DeviceID == "" {
		p.sendError(sess, env.Ref, CodeInvalidInput, "deviceId is required")
		return
	}
	deviceID := data.DeviceID
	if deviceID != sess.identity.Subject {
		p.sendError(sess, env.Ref, CodeForbidden, "deviceId does not match credential")
		return
	}
	if !p.deviceExists(ctx, sess, env.Ref, deviceID) {
		return
	}

	logger := p.log()
	var superseded *presence.DeviceSession
	delivered, err := p.dispatcher.RegisterDevice(ctx, deviceID, func() {
		_, superseded = p.registry.RegisterDevice(deviceID, sess.conn)
		sess.register(deviceID, "")
		if err := p.devices.UpdateStatus(ctx, deviceID, true, nil); err != nil {
			logger.Warn("persisting online status failed", "device_id", deviceID, "error", err)
		}
	})
	if err != nil {
		logger.Error("replaying queued commands failed", "device_id", deviceID, "error", err)
	}

	if superseded != nil {
		logger.Info("device session superseded",
			"device_id", deviceID, "old_conn_id", superseded.Conn.ID(), "conn_id", sess.conn.ID())
		if p.closeSuperseded {
			superseded.Conn.Close()
		}
	}

	now := p.now()
	p.broadcastStatus(deviceID, DeviceStatusEvent{DeviceID: deviceID, Online: true, LastSeen: &now})
	frame, err := encode(EventServerAck, env.Ref, DeviceRegisterAck{Success: true, QueuedCommands: len(delivered)}, now)
	if err != nil {
		logger.Error("encoding register ack failed", "device_id", deviceID, "error", err)
		return
	}
	if err := p.sendWait(ctx, sess.conn, frame); err != nil {
		logger.Warn("register ack not sent", "device_id", deviceID, "error", err)
	}
	logger.Info("device registered", "device_id", deviceID, "replayed", len(delivered))
}

func (p *Protocol) handleDeviceStatus(ctx context.Context, sess *Session, env Envelope) {
	var data DeviceStatusData
	if err := decodeData(env.Data, &data); err != nil {
		p.sendError(sess, env.Ref, CodeInvalidInput, "malformed status payload")
		return
	}
	deviceID, ok := p.deviceOf(sess, env, data.DeviceID)
	if !ok {
		return
	}

	snap, err := device.DecodeStatus(data.Status)
	if err != nil {
		p.sendError(sess, env.Ref, CodeInvalidInput, err.Error())
		return
	}

	p.registry.UpdateStatus(deviceID, *snap)
	if err := p.devices.UpdateStatus(ctx, deviceID, true, snap); err != nil {
		p.log().Warn("persisting status snapshot failed", "device_id", deviceID, "error", err)
	}
	p.telemetry.WriteDeviceStatus(deviceID, *snap)

	now := p.now()
	p.broadcastStatus(deviceID, DeviceStatusEvent{DeviceID: deviceID, Online: true, LastSeen: &now, Status: snap})
}

func (p *Protocol) handleMedia(sess *Session, env Envelope, raw []byte) {
	if deviceID, ok := p.deviceOfRaw(sess, env); ok {
		p.forward(deviceID, env.Type, raw)
	}
}

func (p *Protocol) handlePhoto(ctx context.Context, sess *Session, env Envelope, raw []byte) {
	var data DevicePhotoData
	if err := decodeData(env.Data, &data); err != nil {
		p.sendError(sess, env.Ref, CodeInvalidInput, "malformed photo payload")
		return
	}
	deviceID, ok := p.deviceOf(sess, env, data.DeviceID)
	if !ok {
		return
	}

	photo := data.Photo
	filename := photo.Filename
	if filename == "" {
		filename = fmt.Sprintf("photo_%d.jpg", p.now().Unix())
	}
	size := int64(len(photo.Data))
	if photo.Size != nil {
		size = *photo.Size
	}
	trigger, err := recording.ParseTrigger(photo.TriggeredBy)
	if err != nil {
		trigger = recording.TriggerManual
	}

	p.createRecording(ctx, &recording.Recording{
		ID:          recording.GenerateID(),
		DeviceID:    deviceID,
		Type:        recording.TypePhoto,
		Filename:    filename,
		StorageKey:  recording.StorageKey(recording.TypePhoto, deviceID, filename),
		Size:        size,
		TriggeredBy: trigger,
		Metadata:    photo.Metadata,
	})
	p.forward(deviceID, env.Type, raw)
}

func (p *Protocol) handleRecordingComplete(ctx context.Context, sess *Session, env Envelope, raw []byte) {
	var data RecordingCompleteData
	if err := decodeData(env.Data, &data); err != nil {
		p.sendError(sess, env.Ref, CodeInvalidInput, "malformed recording payload")
		return
	}
	deviceID, ok := p.deviceOf(sess, env, data.DeviceID)
	if !ok {
		return
	}

	info := data.Recording
	typeName := info.Type
	if typeName == "" {
		typeName = string(recording.TypeAudio)
	}
	recType, err := recording.ParseType(typeName)
	if err != nil {
		p.sendError(sess, env.Ref, CodeInvalidInput, err.Error())
		return
	}
	trigger, err := recording.ParseTrigger(info.TriggeredBy)
	if err != nil {
		p.sendError(sess, env.Ref, CodeInvalidInput, err.Error())
		return
	}

	filename := info.Filename
	if filename == "" {
		suffix := info.ID
		if suffix == "" {
			suffix = fmt.Sprint(p.now().Unix())
		}
		filename = "recording_" + suffix
	}

	p.createRecording(ctx, &recording.Recording{
		ID:          recording.GenerateID(),
		DeviceID:    deviceID,
		Type:        recType,
		Filename:    filename,
		StorageKey:  recording.StorageKey(recType, deviceID, filename),
		Duration:    info.Duration,
		Size:        info.Size,
		TriggeredBy: trigger,
		Metadata:    info.Metadata,
	})
	p.forward(deviceID, env.Type, raw)
}

func (p *Protocol) createRecording(ctx context.Context, rec *recording.Recording) {
	if err := p.recordings.Create(ctx, rec); err != nil {
		p.log().Warn("recording not stored",
			"device_id", rec.DeviceID, "type", rec.Type, "filename", rec.Filename, "error", err)
		return
	}
	p.log().Info("recording stored", "device_id", rec.DeviceID, "recording_id", rec.ID, "type", rec.Type)
}

func (p *Protocol) handleLocation(sess *Session, env Envelope, raw []byte) {
	deviceID, ok := p.deviceOfRaw(sess, env)
	if !ok {
		return
	}
	if loc, err := device.DecodeLocation(env.Data); err == nil {
		p.telemetry.WriteLocation(deviceID, *loc)
	} else {
		p.log().Debug("location not recorded", "device_id", deviceID, "error", err)
	}
	p.forward(deviceID, env.Type, raw)
}

func (p *Protocol) handleSoundDetected(sess *Session, env Envelope, raw []byte) {
	deviceID, ok := p.deviceOfRaw(sess, env)
	if !ok {
		return
	}
	if ev, err := device.DecodeSoundEvent(env.Data); err == nil {
		p.telemetry.WriteSoundEvent(deviceID, *ev)
	} else {
		p.log().Debug("sound event not recorded", "device_id", deviceID, "error", err)
	}
	p.forward(deviceID, env.Type, raw)
}

func (p *Protocol) handleCommandAck(ctx context.Context, sess *Session, env Envelope, raw []byte) {
	var data CommandAckData
	if err := decodeData(env.Data, &data); err != nil || data.CommandID == "" {
		p.log().Debug("command ack without commandId dropped", "conn_id", sess.conn.ID())
		p.sendError(sess, env.Ref, CodeInvalidInput, "commandId is required")
		return
	}
	deviceID := sess.BoundID()

	before, err := p.dispatcher.Get(ctx, data.CommandID)
	if err != nil {
		p.commandError(sess, env.Ref, err)
		return
	}
	if before.DeviceID != deviceID {
		p.sendError(sess, env.Ref, CodeForbidden, "command belongs to another device")
		return
	}

	var after *command.Command
	switch status := command.Status(data.Status); status {
	case command.StatusExecuting:
		after, err = p.dispatcher.MarkExecuting(ctx, data.CommandID)
	case command.StatusCompleted, command.StatusFailed:
		after, err = p.dispatcher.Acknowledge(ctx, data.CommandID, status, data.Error)
	default:
		p.sendError(sess, env.Ref, CodeInvalidInput, fmt.Sprintf("unsupported ack status %q", data.Status))
		return
	}
	if err != nil {
		p.commandError(sess, env.Ref, err)
		return
	}

	if !before.Status.IsTerminal() && after.Status.IsTerminal() {
		var latency time.Duration
		if after.CompletedAt != nil {
			latency = after.CompletedAt.Sub(after.CreatedAt)
		}
		p.telemetry.WriteCommandOutcome(deviceID, string(after.Action), string(after.Status), latency)

		if after.Status == command.StatusCompleted {
			if camera, audio := captureChange(after.Action); camera != nil || audio != nil {
				p.registry.SetCapture(deviceID, camera, audio)
			}
		}
	}
	p.forward(deviceID, env.Type, raw)
}

// captureChange maps a capture command to the flags it sets once completed.
// Both results are nil for other actions.
func captureChange(action command.Action) (camera, audio *bool) {
	on, off := true, false
	switch action {
	case command.ActionStartCamera:
		return &on, nil
	case command.ActionStopCamera:
		return &off, nil
	case command.ActionStartAudio:
		return nil, &on
	case command.ActionStopAudio:
		return nil, &off
	}
	return nil, nil
}

func (p *Protocol) handleHeartbeat(sess *Session, env Envelope) {
	deviceID, ok := p.deviceOfRaw(sess, env)
	if !ok {
		return
	}
	p.registry.UpdateHeartbeat(deviceID)
	p.send(sess, EventServerHeartbeatAck, env.Ref, struct{}{})
}

// ---- controller events ----

func (p *Protocol) handleControllerRegister(ctx context.Context, sess *Session, env Envelope) {
	var data ControllerRegisterData
	if err := decodeData(env.Data, &data); err != nil || data.ControllerID == "" || data.TargetDeviceID == "" {
		p.sendError(sess, env.Ref, CodeInvalidInput, "controllerId and targetDeviceId are required")
		return
	}
	if data.ControllerID != sess.identity.Subject {
		p.sendError(sess, env.Ref, CodeForbidden, "controllerId does not match credential")
		return
	}

	dev, err := p.devices.GetByID(ctx, data.TargetDeviceID)
	if err != nil {
		p.deviceLookupError(sess, env.Ref, data.TargetDeviceID, err)
		return
	}

	_, superseded := p.registry.RegisterController(data.ControllerID, sess.conn, data.TargetDeviceID)
	sess.register(data.ControllerID, data.TargetDeviceID)
	if superseded != nil && p.closeSuperseded {
		superseded.Conn.Close()
	}

	ack := ControllerRegisterAck{Success: true, DeviceStatus: dev.LastStatus, LastSeen: dev.LastSeen}
	if live, online := p.registry.GetSession(data.TargetDeviceID); online {
		ack.DeviceOnline = true
		if live.Status != nil {
			ack.DeviceStatus = live.Status
		}
	}
	p.reply(sess, env.Ref, ack)
	p.log().Info("controller registered",
		"controller_id", data.ControllerID, "target_device_id", data.TargetDeviceID, "device_online", ack.DeviceOnline)
}

func (p *Protocol) handleControllerCommand(ctx context.Context, sess *Session, env Envelope) {
	var data ControllerCommandData
	if err := decodeData(env.Data, &data); err != nil || data.TargetDeviceID == "" || data.Action == "" {
		p.sendError(sess, env.Ref, CodeInvalidInput, "targetDeviceId and action are required")
		return
	}
	if data.TargetDeviceID != sess.TargetDeviceID() {
		p.sendError(sess, env.Ref, CodeForbidden, "controller is not registered for this device")
		return
	}
	if data.CommandID != "" && !validCommandID(data.CommandID) {
		p.sendError(sess, env.Ref, CodeInvalidInput, "commandId must be a UUID")
		return
	}
	action, err := command.ParseAction(data.Action)
	if err != nil {
		p.sendError(sess, env.Ref, CodeInvalidAction, err.Error())
		return
	}

	res, err := p.dispatcher.Dispatch(ctx, data.CommandID, data.TargetDeviceID, action, data.Params)
	if err != nil {
		p.commandError(sess, env.Ref, err)
		return
	}

	cmdID := res.Command.ID
	if res.Delivered {
		p.reply(sess, env.Ref, CommandAck{CommandID: cmdID, Status: string(command.StatusDelivered)})
		return
	}

	p.send(sess, EventServerCommandQueued, "", CommandQueuedEvent{
		CommandID: cmdID,
		Position:  res.QueuePosition,
		Reason:    queuedReasonOffline,
	})
	p.reply(sess, env.Ref, CommandAck{
		CommandID:     cmdID,
		Status:        string(command.StatusQueued),
		QueuePosition: res.QueuePosition,
	})
}

// ---- helpers ----

// deviceOf resolves the device an event is about. A payload without a
// device id, or naming a device other than the session's, is dropped.
func (p *Protocol) deviceOf(sess *Session, env Envelope, claimed string) (string, bool) {
	bound := sess.BoundID()
	if claimed == "" {
		p.log().Debug("device event without deviceId dropped", "event", env.Type, "device_id", bound)
		return "", false
	}
	if claimed != bound {
		p.log().Warn("device event for foreign deviceId dropped",
			"event", env.Type, "device_id", bound, "claimed", claimed)
		p.sendError(sess, env.Ref, CodeForbidden, "deviceId does not match session")
		return "", false
	}
	return bound, true
}

func (p *Protocol) deviceOfRaw(sess *Session, env Envelope) (string, bool) {
	var ref deviceRef
	if err := decodeData(env.Data, &ref); err != nil {
		p.log().Debug("malformed device event dropped", "event", env.Type, "error", err)
		return "", false
	}
	return p.deviceOf(sess, env, ref.DeviceID)
}

func (p *Protocol) deviceExists(ctx context.Context, sess *Session, ref, deviceID string) bool {
	if _, err := p.devices.GetByID(ctx, deviceID); err != nil {
		p.deviceLookupError(sess, ref, deviceID, err)
		return false
	}
	return true
}

func (p *Protocol) deviceLookupError(sess *Session, ref, deviceID string, err error) {
	if errors.Is(err, device.ErrDeviceNotFound) {
		p.sendError(sess, ref, CodeDeviceNotFound, "device not found")
		return
	}
	p.log().Error("device lookup failed", "device_id", deviceID, "error", err)
	p.sendError(sess, ref, CodeInternal, "internal error")
}

func (p *Protocol) commandError(sess *Session, ref string, err error) {
	switch {
	case errors.Is(err, command.ErrCommandNotFound):
		p.sendError(sess, ref, CodeCommandMissing, "command not found")
	case errors.Is(err, command.ErrCommandExists):
		p.sendError(sess, ref, CodeConflict, "command id already used")
	case errors.Is(err, command.ErrDeviceUnknown):
		p.sendError(sess, ref, CodeDeviceNotFound, "device not found")
	case errors.Is(err, command.ErrInvalidAction):
		p.sendError(sess, ref, CodeInvalidAction, err.Error())
	case errors.Is(err, command.ErrInvalidParams), errors.Is(err, command.ErrInvalidOutcome):
		p.sendError(sess, ref, CodeInvalidInput, err.Error())
	default:
		p.log().Error("command operation failed", "conn_id", sess.conn.ID(), "error", err)
		p.sendError(sess, ref, CodeInternal, "internal error")
	}
}

// forward relays an inbound device frame unchanged to every watching controller.
func (p *Protocol) forward(deviceID string, event EventType, raw []byte) {
	for _, c := range p.registry.ControllersWatching(deviceID) {
		if !c.Conn.Send(raw) {
			p.log().Debug("controller buffer full, frame dropped",
				"event", event.shortName(), "device_id", deviceID, "controller_id", c.ControllerID)
		}
	}
}

func (p *Protocol) broadcastStatus(deviceID string, ev DeviceStatusEvent) {
	watching := p.registry.ControllersWatching(deviceID)
	if len(watching) == 0 {
		return
	}
	frame, err := encode(EventServerDeviceStatus, "", ev, p.now())
	if err != nil {
		p.log().Error("encoding device status failed", "device_id", deviceID, "error", err)
		return
	}
	for _, c := range watching {
		c.Conn.Send(frame)
	}
}

func (p *Protocol) reply(sess *Session, ref string, data any) {
	p.send(sess, EventServerAck, ref, data)
}

func (p *Protocol) sendError(sess *Session, ref, code, message string) {
	p.send(sess, EventServerError, ref, ErrorData{Code: code, Message: message})
}

func (p *Protocol) send(sess *Session, t EventType, ref string, data any) {
	frame, err := encode(t, ref, data, p.now())
	if err != nil {
		p.log().Error("encoding frame failed", "event", t, "error", err)
		return
	}
	if !sess.conn.Send(frame) {
		p.log().Debug("frame not sent, connection closed or full", "event", t, "conn_id", sess.conn.ID())
	}
}

func validCommandID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// decodeData unmarshals an event payload. An absent payload is an error.
func decodeData(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return errors.New("missing data")
	}
	return json.Unmarshal(raw, v)
}
