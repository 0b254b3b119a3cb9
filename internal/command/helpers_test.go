package command

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nerrad567/remoteeye-relay/internal/device"
	"github.com/nerrad567/remoteeye-relay/internal/infrastructure/database/dbtest"
)

// newTestStore returns a command repository with the given devices created.
func newTestStore(t *testing.T, deviceIDs ...string) (*SQLiteRepository, *sql.DB) {
	t.Helper()
	db := dbtest.OpenSQL(t)
	devices := device.NewSQLiteRepository(db)
	for _, id := range deviceIDs {
		require.NoError(t, devices.Create(context.Background(), &device.Device{
			ID:         id,
			SecretHash: "hash",
			Settings:   device.DefaultSettings(),
		}))
	}
	return NewSQLiteRepository(db), db
}

// fakePresence is a settable online set.
type fakePresence struct {
	mu     sync.Mutex
	online map[string]bool
}

func newFakePresence() *fakePresence {
	return &fakePresence{online: make(map[string]bool)}
}

func (p *fakePresence) IsOnline(deviceID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online[deviceID]
}

func (p *fakePresence) set(deviceID string, online bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online[deviceID] = online
}

// fakePusher records pushes in order and can be made to fail.
type fakePusher struct {
	mu     sync.Mutex
	pushed []string
	fail   bool

	// limit, when positive, fails every push after that many succeeded.
	limit int
}

var errPushFailed = errors.New("transport closed")

func (p *fakePusher) PushCommand(_ context.Context, _ string, cmd *Command) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail || (p.limit > 0 && len(p.pushed) >= p.limit) {
		return errPushFailed
	}
	p.pushed = append(p.pushed, cmd.ID)
	return nil
}

func (p *fakePusher) ids() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.pushed...)
}
