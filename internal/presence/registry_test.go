package presence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/remoteeye-relay/internal/device"
)

type stubConn struct {
	id     string
	closed atomic.Bool
}

func (c *stubConn) ID() string         { return c.id }
func (c *stubConn) Send(_ []byte) bool { return !c.closed.Load() }
func (c *stubConn) Close()             { c.closed.Store(true) }

func (c *stubConn) SendWait(_ context.Context, _ []byte) error {
	if c.closed.Load() {
		return errors.New("closed")
	}
	return nil
}

func newConn(id string) *stubConn { return &stubConn{id: id} }

func boolPtr(b bool) *bool { return &b }

func TestRegistry_RegisterDevice(t *testing.T) {
	r := NewRegistry()
	conn := newConn("c1")

	sess, superseded := r.RegisterDevice("dev1", conn)
	assert.Nil(t, superseded)
	assert.Equal(t, "dev1", sess.DeviceID)
	assert.False(t, sess.ConnectedAt.IsZero())
	assert.Equal(t, sess.ConnectedAt, sess.LastHeartbeat)
	assert.True(t, r.IsOnline("dev1"))
	assert.False(t, r.IsOnline("dev2"))
}

func TestRegistry_BidirectionalIndex(t *testing.T) {
	r := NewRegistry()
	conn := newConn("c1")
	r.RegisterDevice("dev1", conn)

	byConn, ok := r.GetSessionByConnection(conn)
	require.True(t, ok)
	byID, ok := r.GetSession(byConn.DeviceID)
	require.True(t, ok)
	assert.Equal(t, byConn, byID)

	deviceID, ok := r.UnregisterDevice(conn)
	require.True(t, ok)
	assert.Equal(t, "dev1", deviceID)

	_, ok = r.GetSessionByConnection(conn)
	assert.False(t, ok)
	_, ok = r.GetSession("dev1")
	assert.False(t, ok)
	assert.False(t, r.IsOnline("dev1"))
}

func TestRegistry_UnregisterDevice_Idempotent(t *testing.T) {
	r := NewRegistry()
	conn := newConn("c1")

	_, ok := r.UnregisterDevice(conn)
	assert.False(t, ok)

	r.RegisterDevice("dev1", conn)
	_, ok = r.UnregisterDevice(conn)
	assert.True(t, ok)
	_, ok = r.UnregisterDevice(conn)
	assert.False(t, ok)
}

func TestRegistry_RegisterDevice_Supersedes(t *testing.T) {
	r := NewRegistry()
	oldConn := newConn("old")
	newConnection := newConn("new")

	r.RegisterDevice("dev1", oldConn)
	_, superseded := r.RegisterDevice("dev1", newConnection)
	require.NotNil(t, superseded)
	assert.Equal(t, "old", superseded.Conn.ID())

	sess, ok := r.GetSession("dev1")
	require.True(t, ok)
	assert.Equal(t, "new", sess.Conn.ID())

	// The old handle no longer resolves, and closing it does not evict the new session.
	_, ok = r.GetSessionByConnection(oldConn)
	assert.False(t, ok)
	_, ok = r.UnregisterDevice(oldConn)
	assert.False(t, ok)
	assert.True(t, r.IsOnline("dev1"))
}

func TestRegistry_RegisterDevice_SameConnection(t *testing.T) {
	r := NewRegistry()
	conn := newConn("c1")

	r.RegisterDevice("dev1", conn)
	_, superseded := r.RegisterDevice("dev1", conn)
	assert.Nil(t, superseded, "re-registering on the same connection is not a supersede")
	assert.Equal(t, 1, r.Stats().DevicesOnline)
}

func TestRegistry_RegisterDevice_ConnectionChangesIdentity(t *testing.T) {
	r := NewRegistry()
	conn := newConn("c1")

	r.RegisterDevice("dev1", conn)
	r.RegisterDevice("dev2", conn)

	assert.False(t, r.IsOnline("dev1"))
	sess, ok := r.GetSessionByConnection(conn)
	require.True(t, ok)
	assert.Equal(t, "dev2", sess.DeviceID)
}

func TestRegistry_UpdateStatus(t *testing.T) {
	r := NewRegistry()
	status := device.StatusSnapshot{Battery: 80, NetworkType: device.NetworkWiFi, CameraActive: true}

	assert.False(t, r.UpdateStatus("dev1", status), "unregistered device is dropped")

	r.RegisterDevice("dev1", newConn("c1"))
	require.True(t, r.UpdateStatus("dev1", status))

	sess, _ := r.GetSession("dev1")
	require.NotNil(t, sess.Status)
	assert.Equal(t, 80, sess.Status.Battery)
	assert.True(t, sess.CameraActive)
	assert.False(t, sess.AudioActive)

	// Returned copies are detached from registry state.
	sess.Status.Battery = 1
	again, _ := r.GetSession("dev1")
	assert.Equal(t, 80, again.Status.Battery)
}

func TestRegistry_UpdateStatus_RefreshesHeartbeat(t *testing.T) {
	r := NewRegistry()
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return current }
	r.RegisterDevice("dev1", newConn("c1"))

	current = current.Add(2 * time.Minute)
	require.True(t, r.UpdateStatus("dev1", device.StatusSnapshot{Battery: 50}))

	sess, _ := r.GetSession("dev1")
	assert.Equal(t, current, sess.LastHeartbeat)
	assert.Empty(t, r.StaleDevices(current.Add(-time.Minute)), "status reports keep the session fresh")
}

func TestRegistry_UpdateHeartbeat(t *testing.T) {
	r := NewRegistry()
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return current }

	assert.False(t, r.UpdateHeartbeat("dev1"))

	r.RegisterDevice("dev1", newConn("c1"))
	current = current.Add(time.Minute)
	require.True(t, r.UpdateHeartbeat("dev1"))

	sess, _ := r.GetSession("dev1")
	assert.Equal(t, current, sess.LastHeartbeat)
	assert.True(t, sess.LastHeartbeat.After(sess.ConnectedAt))
}

func TestRegistry_SetCapture(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.SetCapture("dev1", boolPtr(true), nil))

	r.RegisterDevice("dev1", newConn("c1"))
	require.True(t, r.SetCapture("dev1", boolPtr(true), nil))
	require.True(t, r.SetCapture("dev1", nil, boolPtr(true)))
	require.True(t, r.SetCapture("dev1", boolPtr(false), nil))

	sess, _ := r.GetSession("dev1")
	assert.False(t, sess.CameraActive)
	assert.True(t, sess.AudioActive)
}

func TestRegistry_StaleDevices(t *testing.T) {
	r := NewRegistry()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	current := start
	r.now = func() time.Time { return current }

	r.RegisterDevice("quiet", newConn("c1"))
	r.RegisterDevice("chatty", newConn("c2"))
	current = start.Add(2 * time.Minute)
	r.UpdateHeartbeat("chatty")

	stale := r.StaleDevices(start.Add(time.Minute))
	require.Len(t, stale, 1)
	assert.Equal(t, "quiet", stale[0].DeviceID)
}

func TestRegistry_Controllers(t *testing.T) {
	r := NewRegistry()
	c1, c2, c3 := newConn("k1"), newConn("k2"), newConn("k3")

	r.RegisterController("ctrl1", c1, "dev1")
	r.RegisterController("ctrl2", c2, "dev1")
	r.RegisterController("ctrl3", c3, "dev2")

	watching := r.ControllersWatching("dev1")
	require.Len(t, watching, 2)
	ids := []string{watching[0].ControllerID, watching[1].ControllerID}
	assert.ElementsMatch(t, []string{"ctrl1", "ctrl2"}, ids)

	assert.Empty(t, r.ControllersWatching("dev3"))

	sess, ok := r.GetController(c3)
	require.True(t, ok)
	assert.Equal(t, "dev2", sess.TargetDeviceID)

	controllerID, ok := r.UnregisterController(c1)
	require.True(t, ok)
	assert.Equal(t, "ctrl1", controllerID)
	assert.Len(t, r.ControllersWatching("dev1"), 1)

	_, ok = r.UnregisterController(c1)
	assert.False(t, ok)
	_, ok = r.GetController(c1)
	assert.False(t, ok)
}

func TestRegistry_RegisterController_Supersedes(t *testing.T) {
	r := NewRegistry()
	oldConn, newConnection := newConn("k1"), newConn("k2")

	r.RegisterController("ctrl1", oldConn, "dev1")
	_, superseded := r.RegisterController("ctrl1", newConnection, "dev2")
	require.NotNil(t, superseded)
	assert.Equal(t, "dev1", superseded.TargetDeviceID)

	assert.Empty(t, r.ControllersWatching("dev1"))
	assert.Len(t, r.ControllersWatching("dev2"), 1)

	_, ok := r.UnregisterController(oldConn)
	assert.False(t, ok)
	assert.Equal(t, 1, r.Stats().ControllersOnline)
}

func TestRegistry_Stats(t *testing.T) {
	r := NewRegistry()
	r.RegisterDevice("dev-b", newConn("c1"))
	r.RegisterDevice("dev-a", newConn("c2"))
	r.RegisterController("ctrl", newConn("k1"), "dev-a")

	stats := r.Stats()
	assert.Equal(t, 2, stats.DevicesOnline)
	assert.Equal(t, 1, stats.ControllersOnline)
	assert.Equal(t, []string{"dev-a", "dev-b"}, stats.Devices)
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	const workers = 50

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn := newConn(fmt.Sprintf("c%d", i))
			deviceID := fmt.Sprintf("dev%d", i%10)
			r.RegisterDevice(deviceID, conn)
			r.UpdateHeartbeat(deviceID)
			r.UpdateStatus(deviceID, device.StatusSnapshot{Battery: i})
			r.IsOnline(deviceID)
			r.Stats()
			r.UnregisterDevice(conn)
		}(i)
	}
	wg.Wait()

	// Every connection unregistered itself; superseded ones were already gone.
	assert.Zero(t, r.Stats().DevicesOnline)
	assert.Empty(t, r.deviceConns)
}
