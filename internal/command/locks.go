package command

import (
	"hash/fnv"
	"sync"
)

// lockStripes bounds memory for per-device locks. Devices hashing to the same
// stripe serialise against each other, which only costs latency.
const lockStripes = 64

// deviceLocks is a fixed set of mutexes keyed by device ID.
type deviceLocks struct {
	stripes [lockStripes]sync.Mutex
}

func (l *deviceLocks) lock(deviceID string) func() {
	h := fnv.New32a()
	h.Write([]byte(deviceID)) //nolint:errcheck // hash.Hash.Write never fails
	m := &l.stripes[h.Sum32()%lockStripes]
	m.Lock()
	return m.Unlock
}
