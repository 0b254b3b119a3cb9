package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/remoteeye-relay/internal/presence"
)

func TestSweeper_Sweep(t *testing.T) {
	registry := presence.NewRegistry()
	stale := newFakeConn()
	registry.RegisterDevice("dev1", stale)

	s := NewSweeper(registry, 90*time.Second, 0)
	require.True(t, s.Enabled())
	assert.Equal(t, 45*time.Second, s.interval)

	assert.Equal(t, 0, s.Sweep(), "fresh sessions are left alone")
	assert.False(t, stale.isClosed())

	s.now = func() time.Time { return time.Now().UTC().Add(time.Hour) }
	assert.Equal(t, 1, s.Sweep())
	assert.True(t, stale.isClosed())
}

func TestSweeper_ClosesThroughProtocol(t *testing.T) {
	h := newHarness(t, "dev1")
	ctx := context.Background()

	dev, conn := h.connectDevice(t, "dev1")
	_, ctrl := h.connectController(t, "c1", "dev1")

	s := NewSweeper(h.registry, time.Minute, time.Second)
	s.now = func() time.Time { return time.Now().UTC().Add(time.Hour) }
	require.Equal(t, 1, s.Sweep())
	require.True(t, conn.isClosed())

	// The transport's read loop ends and tears the session down.
	h.protocol.Close(ctx, dev)
	assert.False(t, h.registry.IsOnline("dev1"))
	var ev DeviceStatusEvent
	ctrl.last(t, &ev)
	assert.False(t, ev.Online)
}

func TestSweeper_Disabled(t *testing.T) {
	registry := presence.NewRegistry()
	conn := newFakeConn()
	registry.RegisterDevice("dev1", conn)

	s := NewSweeper(registry, 0, 0)
	assert.False(t, s.Enabled())
	s.now = func() time.Time { return time.Now().UTC().Add(time.Hour) }
	assert.Equal(t, 0, s.Sweep())
	assert.False(t, conn.isClosed())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, s.Run(ctx))
}

func TestSweeper_Run(t *testing.T) {
	registry := presence.NewRegistry()
	conn := newFakeConn()
	registry.RegisterDevice("dev1", conn)

	s := NewSweeper(registry, time.Minute, 10*time.Millisecond)
	s.now = func() time.Time { return time.Now().UTC().Add(time.Hour) }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, conn.isClosed, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}
