package realtime

import (
	"context"
	"time"

	"github.com/nerrad567/remoteeye-relay/internal/presence"
)

// Sweeper force-closes device sessions whose heartbeat has gone stale.
// Closing the transport makes its read loop exit, which runs Protocol.Close
// and so the normal offline path.
type Sweeper struct {
	registry *presence.Registry
	timeout  time.Duration
	interval time.Duration
	logger   Logger
	now      func() time.Time
}

// NewSweeper creates a sweeper. A zero timeout disables it.
func NewSweeper(registry *presence.Registry, timeout, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = timeout / 2
	}
	return &Sweeper{
		registry: registry,
		timeout:  timeout,
		interval: interval,
		logger:   noopLogger{},
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetLogger sets the logger for the sweeper.
func (s *Sweeper) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	s.logger = logger
}

// Enabled reports whether the sweeper has work to do.
func (s *Sweeper) Enabled() bool {
	return s.timeout > 0 && s.interval > 0
}

// Run sweeps on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	if !s.Enabled() {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("heartbeat sweeper started", "timeout", s.timeout, "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep closes every device session whose last heartbeat is older than the
// timeout and returns how many were closed.
func (s *Sweeper) Sweep() int {
	if !s.Enabled() {
		return 0
	}
	stale := s.registry.StaleDevices(s.now().Add(-s.timeout))
	for _, sess := range stale {
		s.logger.Warn("closing device session with stale heartbeat",
			"device_id", sess.DeviceID,
			"conn_id", sess.Conn.ID(),
			"last_heartbeat", sess.LastHeartbeat,
		)
		sess.Conn.Close()
	}
	return len(stale)
}
