package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nerrad567/remoteeye-relay/internal/auth"
	"github.com/nerrad567/remoteeye-relay/internal/command"
	"github.com/nerrad567/remoteeye-relay/internal/device"
	"github.com/nerrad567/remoteeye-relay/internal/infrastructure/database/dbtest"
	"github.com/nerrad567/remoteeye-relay/internal/presence"
	"github.com/nerrad567/remoteeye-relay/internal/recording"
)

const testSecret = "realtime-test-secret-at-least-32-chars"

// fakeConn records every frame sent to it.
type fakeConn struct {
	id string

	mu     sync.Mutex
	frames [][]byte
	closed bool
	full   bool

	// limit, when positive, caps the frames the connection accepts.
	limit int
}

var connSeq atomic.Int64

func newFakeConn() *fakeConn {
	return &fakeConn{id: fmt.Sprintf("conn-%d", connSeq.Add(1))}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.full || (c.limit > 0 && len(c.frames) >= c.limit) {
		return false
	}
	c.frames = append(c.frames, append([]byte(nil), data...))
	return true
}

// SendWait behaves like a stalled transport once the buffer is full: it
// waits for ctx.
func (c *fakeConn) SendWait(ctx context.Context, data []byte) error {
	if c.Send(data) {
		return nil
	}
	if c.isClosed() {
		return errConnClosed
	}
	<-ctx.Done()
	return ctx.Err()
}

var errConnClosed = errors.New("connection closed")

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) raw() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.frames...)
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}

func (c *fakeConn) envelopes(t *testing.T) []Envelope {
	t.Helper()
	var out []Envelope
	for _, f := range c.raw() {
		var env Envelope
		require.NoError(t, json.Unmarshal(f, &env))
		out = append(out, env)
	}
	return out
}

func (c *fakeConn) types(t *testing.T) []EventType {
	t.Helper()
	var out []EventType
	for _, env := range c.envelopes(t) {
		out = append(out, env.Type)
	}
	return out
}

// last returns the most recent frame, decoding its data into v if non-nil.
func (c *fakeConn) last(t *testing.T, v any) Envelope {
	t.Helper()
	envs := c.envelopes(t)
	require.NotEmpty(t, envs, "no frames sent to %s", c.id)
	env := envs[len(envs)-1]
	if v != nil {
		require.NoError(t, json.Unmarshal(env.Data, v))
	}
	return env
}

// fakeTelemetry records the points it is asked to write.
type fakeTelemetry struct {
	mu        sync.Mutex
	statuses  []device.StatusSnapshot
	locations []device.Location
	sounds    []device.SoundEvent
	outcomes  []string
}

func (f *fakeTelemetry) WriteDeviceStatus(_ string, s device.StatusSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, s)
}

func (f *fakeTelemetry) WriteLocation(_ string, loc device.Location) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locations = append(f.locations, loc)
}

func (f *fakeTelemetry) WriteSoundEvent(_ string, ev device.SoundEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sounds = append(f.sounds, ev)
}

func (f *fakeTelemetry) WriteCommandOutcome(_ string, action, status string, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, action+":"+status)
}

type harness struct {
	protocol   *Protocol
	registry   *presence.Registry
	dispatcher *command.Dispatcher
	devices    *device.SQLiteRepository
	commands   *command.SQLiteRepository
	recordings *recording.SQLiteRepository
	telemetry  *fakeTelemetry
	issuer     *auth.TokenIssuer
}

func newHarness(t *testing.T, deviceIDs ...string) *harness {
	t.Helper()
	ctx := context.Background()
	db := dbtest.OpenSQL(t)

	h := &harness{
		registry:   presence.NewRegistry(),
		devices:    device.NewSQLiteRepository(db),
		commands:   command.NewSQLiteRepository(db),
		recordings: recording.NewSQLiteRepository(db),
		telemetry:  &fakeTelemetry{},
		issuer:     auth.NewTokenIssuer(testSecret, 15*time.Minute, 0),
	}
	for _, id := range deviceIDs {
		require.NoError(t, h.devices.Create(ctx, &device.Device{
			ID:         id,
			Name:       "Phone " + id,
			SecretHash: "hash",
			Settings:   device.DefaultSettings(),
		}))
	}
	h.dispatcher = command.NewDispatcher(h.commands, h.registry)

	p, err := New(Deps{
		Registry:        h.registry,
		Dispatcher:      h.dispatcher,
		Devices:         h.devices,
		Recordings:      h.recordings,
		Verifier:        h.issuer,
		Telemetry:       h.telemetry,
		CloseSuperseded: true,
		SendTimeout:     50 * time.Millisecond,
	})
	require.NoError(t, err)
	h.protocol = p
	return h
}

func frame(t *testing.T, typ EventType, ref string, data any) []byte {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	b, err := json.Marshal(Envelope{Type: typ, Ref: ref, Timestamp: time.Now().UTC().Format(time.RFC3339), Data: raw})
	require.NoError(t, err)
	return b
}

func (h *harness) open(role auth.Role, subject string) (*Session, *fakeConn) {
	conn := newFakeConn()
	return h.protocol.Open(conn, auth.Identity{Subject: subject, Role: role}), conn
}

// connectDevice opens and registers a device session, clearing the frames
// produced by registration.
func (h *harness) connectDevice(t *testing.T, deviceID string) (*Session, *fakeConn) {
	t.Helper()
	sess, conn := h.open(auth.RoleDevice, deviceID)
	h.protocol.HandleEvent(context.Background(), sess, frame(t, EventDeviceRegister, "reg", DeviceRegisterData{DeviceID: deviceID}))
	require.True(t, sess.IsRegistered(), "device %s failed to register: %v", deviceID, conn.types(t))
	conn.reset()
	return sess, conn
}

func (h *harness) connectController(t *testing.T, controllerID, target string) (*Session, *fakeConn) {
	t.Helper()
	sess, conn := h.open(auth.RoleController, controllerID)
	h.protocol.HandleEvent(context.Background(), sess, frame(t, EventControllerRegister, "reg",
		ControllerRegisterData{ControllerID: controllerID, TargetDeviceID: target}))
	require.True(t, sess.IsRegistered(), "controller %s failed to register: %v", controllerID, conn.types(t))
	conn.reset()
	return sess, conn
}

func requireError(t *testing.T, conn *fakeConn, code string) {
	t.Helper()
	var data ErrorData
	env := conn.last(t, &data)
	require.Equal(t, EventServerError, env.Type)
	require.Equal(t, code, data.Code, "message: %s", data.Message)
}
