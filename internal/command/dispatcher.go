package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ErrNoPusher is returned by Dispatch when no live transport is attached.
var ErrNoPusher = errors.New("command: no pusher attached")

// Presence answers whether a device currently has a live session.
type Presence interface {
	IsOnline(deviceID string) bool
}

// Pusher sends a command over the device's live session.
// Implementations may wait for transport buffer space but must give up when
// ctx is done. A nil error means the frame was handed to the transport.
type Pusher interface {
	PushCommand(ctx context.Context, deviceID string, cmd *Command) error
}

// Logger defines the logging interface used by the dispatcher.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Result is the outcome of Dispatch.
type Result struct {
	Command *Command

	// Delivered is true when the device was online at enqueue time.
	Delivered bool

	// QueuePosition is set when the command was queued.
	QueuePosition *int

	// PushErr is set when the device was online but the live push failed.
	// The command stays delivered; it is reconciled by a later acknowledgment.
	PushErr error
}

// Dispatcher decides between immediate delivery and queuing, and replays
// the queue when a device registers.
//
// Per-device locks serialise Dispatch and RegisterDevice for the same device,
// so a command enqueued while a registration is in progress is either part
// of the replay batch or pushed after it. No lock spans the registry and the
// store together.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Dispatcher struct {
	repo     Repository
	presence Presence
	locks    deviceLocks

	mu     sync.RWMutex
	pusher Pusher
	logger Logger
}

// NewDispatcher creates a dispatcher over the command log and presence registry.
func NewDispatcher(repo Repository, presence Presence) *Dispatcher {
	return &Dispatcher{
		repo:     repo,
		presence: presence,
		logger:   noopLogger{},
	}
}

// SetPusher attaches the live transport. It is set after construction
// because the realtime layer itself depends on the dispatcher.
func (d *Dispatcher) SetPusher(p Pusher) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pusher = p
}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if logger == nil {
		logger = noopLogger{}
	}
	d.logger = logger
}

func (d *Dispatcher) deps() (Pusher, Logger) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.pusher, d.logger
}

// QueueCommand appends a command as delivered if the device is online, else
// as queued. The caller performs the live send when delivered is true.
//
// Parameters:
//   - ctx: Context for cancellation
//   - deviceID: Owning device
//   - action: Command action (validated against the vocabulary)
//   - params: Optional JSON object
//
// Returns:
//   - *Command: The stored command
//   - bool: true if the device was online at enqueue time
//   - error: ErrInvalidAction, ErrInvalidParams, ErrDeviceUnknown or a store failure
func (d *Dispatcher) QueueCommand(ctx context.Context, deviceID string, action Action, params json.RawMessage) (*Command, bool, error) {
	unlock := d.locks.lock(deviceID)
	defer unlock()
	return d.queueLocked(ctx, "", deviceID, action, params)
}

func (d *Dispatcher) queueLocked(ctx context.Context, id, deviceID string, action Action, params json.RawMessage) (*Command, bool, error) {
	if _, err := ParseAction(string(action)); err != nil {
		return nil, false, err
	}
	if err := ValidateParams(params); err != nil {
		return nil, false, err
	}
	if id == "" {
		id = uuid.New().String()
	}

	online := d.presence.IsOnline(deviceID)
	status := StatusQueued
	if online {
		status = StatusDelivered
	}

	cmd := &Command{
		ID:       id,
		DeviceID: deviceID,
		Action:   action,
		Params:   params,
		Status:   status,
	}
	if err := d.repo.Create(ctx, cmd); err != nil {
		return nil, false, fmt.Errorf("creating command: %w", err)
	}
	return cmd, online, nil
}

// Get returns a stored command.
func (d *Dispatcher) Get(ctx context.Context, commandID string) (*Command, error) {
	return d.repo.GetByID(ctx, commandID)
}

// QueuePosition returns the 1-based position of a command among its device's
// waiting commands, or nil once it has been delivered.
func (d *Dispatcher) QueuePosition(ctx context.Context, commandID string) (*int, error) {
	cmd, err := d.repo.GetByID(ctx, commandID)
	if err != nil {
		return nil, err
	}
	return d.positionOf(ctx, cmd)
}

func (d *Dispatcher) positionOf(ctx context.Context, cmd *Command) (*int, error) {
	if !cmd.Status.IsWaiting() {
		return nil, nil
	}
	n, err := d.repo.CountWaitingThrough(ctx, cmd.DeviceID, cmd.Seq)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// DeliverQueued transitions every waiting command of the device to delivered
// and returns them in creation order. A second call returns nothing.
func (d *Dispatcher) DeliverQueued(ctx context.Context, deviceID string) ([]Command, error) {
	unlock := d.locks.lock(deviceID)
	defer unlock()
	return d.deliverLocked(ctx, deviceID)
}

func (d *Dispatcher) deliverLocked(ctx context.Context, deviceID string) ([]Command, error) {
	waiting, err := d.repo.ListPending(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("listing queued commands: %w", err)
	}

	delivered := make([]Command, 0, len(waiting))
	for _, cmd := range waiting {
		changed, err := d.repo.UpdateStatus(ctx, cmd.ID, StatusDelivered, nil)
		if err != nil {
			return delivered, fmt.Errorf("marking command %s delivered: %w", cmd.ID, err)
		}
		if !changed {
			continue
		}
		cmd.Status = StatusDelivered
		delivered = append(delivered, cmd)
	}
	return delivered, nil
}

// Acknowledge records a device's terminal outcome for a command.
// Acknowledging an already terminal command is a no-op and returns the
// stored record unchanged.
//
// Parameters:
//   - ctx: Context for cancellation
//   - commandID: Command being acknowledged
//   - outcome: StatusCompleted or StatusFailed
//   - errMsg: Optional failure detail
//
// Returns:
//   - *Command: The command after the transition
//   - error: ErrInvalidOutcome, ErrCommandNotFound or a store failure
func (d *Dispatcher) Acknowledge(ctx context.Context, commandID string, outcome Status, errMsg *string) (*Command, error) {
	if !outcome.IsTerminal() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOutcome, outcome)
	}
	if outcome == StatusCompleted {
		errMsg = nil
	}
	return d.advance(ctx, commandID, outcome, errMsg)
}

// MarkExecuting records that the device started working on a command.
func (d *Dispatcher) MarkExecuting(ctx context.Context, commandID string) (*Command, error) {
	return d.advance(ctx, commandID, StatusExecuting, nil)
}

func (d *Dispatcher) advance(ctx context.Context, commandID string, status Status, errMsg *string) (*Command, error) {
	changed, err := d.repo.UpdateStatus(ctx, commandID, status, errMsg)
	if err != nil {
		return nil, err
	}
	cmd, err := d.repo.GetByID(ctx, commandID)
	if err != nil {
		return nil, err
	}
	if !changed {
		_, logger := d.deps()
		logger.Debug("command transition ignored",
			"command_id", commandID, "current", cmd.Status, "requested", status)
	}
	return cmd, nil
}

// Dispatch enqueues a command and, when the device is online, pushes it over
// the live session while still holding the device lock.
//
// id may be empty to generate one; controllers may supply their own so they
// can correlate acknowledgments.
func (d *Dispatcher) Dispatch(ctx context.Context, id, deviceID string, action Action, params json.RawMessage) (*Result, error) {
	unlock := d.locks.lock(deviceID)
	defer unlock()

	cmd, online, err := d.queueLocked(ctx, id, deviceID, action, params)
	if err != nil {
		return nil, err
	}

	res := &Result{Command: cmd, Delivered: online}
	if !online {
		pos, err := d.positionOf(ctx, cmd)
		if err != nil {
			return nil, err
		}
		res.QueuePosition = pos
		return res, nil
	}

	pusher, logger := d.deps()
	if pusher == nil {
		res.PushErr = ErrNoPusher
	} else {
		res.PushErr = pusher.PushCommand(ctx, deviceID, cmd)
	}
	if res.PushErr != nil {
		logger.Warn("command delivery failed after online check",
			"command_id", cmd.ID, "device_id", deviceID, "error", res.PushErr)
	}
	return res, nil
}

// WithDeviceLock runs fn while holding the device's lock, serialising it
// with Dispatch and RegisterDevice for the same device. The realtime layer
// uses it to unregister a closing session and persist the offline transition
// without interleaving with a concurrent re-registration.
func (d *Dispatcher) WithDeviceLock(deviceID string, fn func()) {
	unlock := d.locks.lock(deviceID)
	defer unlock()
	fn()
}

// RegisterDevice runs register (the registry update) and then replays the
// device's queue over the new session, all under the device lock.
// Replayed commands are pushed before any command dispatched afterwards.
//
// Each command is marked delivered and pushed before the next one is
// touched. When a push fails the replay stops: that command stays delivered
// and the rest stay queued for the next registration.
//
// Returns the commands that were marked delivered, in creation order.
func (d *Dispatcher) RegisterDevice(ctx context.Context, deviceID string, register func()) ([]Command, error) {
	unlock := d.locks.lock(deviceID)
	defer unlock()

	register()

	waiting, err := d.repo.ListPending(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("listing queued commands: %w", err)
	}

	pusher, logger := d.deps()
	delivered := make([]Command, 0, len(waiting))
	for i, cmd := range waiting {
		changed, err := d.repo.UpdateStatus(ctx, cmd.ID, StatusDelivered, nil)
		if err != nil {
			return delivered, fmt.Errorf("marking command %s delivered: %w", cmd.ID, err)
		}
		if !changed {
			continue
		}
		cmd.Status = StatusDelivered
		delivered = append(delivered, cmd)

		pushErr := ErrNoPusher
		if pusher != nil {
			pushErr = pusher.PushCommand(ctx, deviceID, &delivered[len(delivered)-1])
		}
		if pushErr != nil {
			logger.Warn("queued command replay stopped",
				"command_id", cmd.ID, "device_id", deviceID,
				"left_queued", len(waiting)-i-1, "error", pushErr)
			break
		}
	}

	if len(delivered) > 0 {
		logger.Info("replayed queued commands", "device_id", deviceID, "count", len(delivered))
	}
	return delivered, nil
}
