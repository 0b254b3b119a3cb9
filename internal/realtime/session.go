package realtime

import (
	"sync"

	"github.com/nerrad567/remoteeye-relay/internal/auth"
	"github.com/nerrad567/remoteeye-relay/internal/presence"
)

// State is a connection's position in the session lifecycle.
type State int

const (
	StateConnecting State = iota
	StateAuthenticated
	StateRegistered
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateRegistered:
		return "registered"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is the protocol state of one live connection.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Session struct {
	conn     presence.Conn
	identity auth.Identity

	mu       sync.Mutex
	state    State
	boundID  string // device id or controller id once registered
	targetID string // controller sessions only
}

// Conn returns the transport connection.
func (s *Session) Conn() presence.Conn { return s.conn }

// Identity returns the verified credential the session was opened with.
func (s *Session) Identity() auth.Identity { return s.identity }

// Role is shorthand for Identity().Role.
func (s *Session) Role() auth.Role { return s.identity.Role }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// BoundID returns the registered device or controller id.
func (s *Session) BoundID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boundID
}

// TargetDeviceID returns the device a controller session watches.
func (s *Session) TargetDeviceID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.targetID
}

// IsRegistered reports whether the session has claimed its identity and is
// not closed.
func (s *Session) IsRegistered() bool {
	st := s.State()
	return st == StateRegistered || st == StateActive
}

func (s *Session) register(boundID, targetID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return
	}
	s.boundID = boundID
	s.targetID = targetID
	s.state = StateRegistered
}

// activate records the first post-registration event.
func (s *Session) activate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateRegistered {
		s.state = StateActive
	}
}

// close marks the session closed and reports whether it was already closed.
func (s *Session) close() (boundID string, wasClosed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wasClosed = s.state == StateClosed
	s.state = StateClosed
	return s.boundID, wasClosed
}
