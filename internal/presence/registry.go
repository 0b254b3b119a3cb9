package presence

import (
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/remoteeye-relay/internal/device"
)

// Registry maps device and controller identities to their live connections.
type Registry struct {
	mu sync.RWMutex

	devices     map[string]*DeviceSession
	deviceConns map[string]string // connection id → device id

	controllers     map[string]*ControllerSession
	controllerConns map[string]string // connection id → controller id

	now func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		devices:         make(map[string]*DeviceSession),
		deviceConns:     make(map[string]string),
		controllers:     make(map[string]*ControllerSession),
		controllerConns: make(map[string]string),
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// RegisterDevice records conn as the live session of deviceID, replacing
// any previous session for that device.
//
// Parameters:
//   - deviceID: Device identity bound to the connection
//   - conn: Live transport connection
//
// Returns:
//   - DeviceSession: The new session
//   - *DeviceSession: The superseded session when it used a different
//     connection, nil otherwise. The caller decides whether to close it.
func (r *Registry) RegisterDevice(deviceID string, conn Conn) (DeviceSession, *DeviceSession) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// A connection carries at most one device identity.
	if prevID, ok := r.deviceConns[conn.ID()]; ok && prevID != deviceID {
		delete(r.devices, prevID)
	}

	var superseded *DeviceSession
	if old, ok := r.devices[deviceID]; ok && old.Conn.ID() != conn.ID() {
		delete(r.deviceConns, old.Conn.ID())
		s := old.clone()
		superseded = &s
	}

	now := r.now()
	sess := &DeviceSession{
		DeviceID:      deviceID,
		Conn:          conn,
		ConnectedAt:   now,
		LastHeartbeat: now,
	}
	r.devices[deviceID] = sess
	r.deviceConns[conn.ID()] = deviceID

	return sess.clone(), superseded
}

// UnregisterDevice removes the device session bound to conn.
// It returns the device id, or false if the connection was unknown.
func (r *Registry) UnregisterDevice(conn Conn) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	deviceID, ok := r.deviceConns[conn.ID()]
	if !ok {
		return "", false
	}
	delete(r.deviceConns, conn.ID())
	if sess, ok := r.devices[deviceID]; ok && sess.Conn.ID() == conn.ID() {
		delete(r.devices, deviceID)
	}
	return deviceID, true
}

// IsOnline reports whether the device has a live session.
func (r *Registry) IsOnline(deviceID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.devices[deviceID]
	return ok
}

// GetSession returns the device's live session.
func (r *Registry) GetSession(deviceID string) (DeviceSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.devices[deviceID]
	if !ok {
		return DeviceSession{}, false
	}
	return sess.clone(), true
}

// GetSessionByConnection returns the device session bound to conn.
func (r *Registry) GetSessionByConnection(conn Conn) (DeviceSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	deviceID, ok := r.deviceConns[conn.ID()]
	if !ok {
		return DeviceSession{}, false
	}
	sess, ok := r.devices[deviceID]
	if !ok {
		return DeviceSession{}, false
	}
	return sess.clone(), true
}

// UpdateStatus caches the latest status snapshot on the live session.
// A status report also counts as a heartbeat.
// Updates for unregistered devices are dropped and reported as false.
func (r *Registry) UpdateStatus(deviceID string, status device.StatusSnapshot) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.devices[deviceID]
	if !ok {
		return false
	}
	sess.LastHeartbeat = r.now()
	sess.Status = &status
	sess.CameraActive = status.CameraActive
	sess.AudioActive = status.AudioActive
	return true
}

// UpdateHeartbeat stamps the session's last heartbeat with the current time.
func (r *Registry) UpdateHeartbeat(deviceID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.devices[deviceID]
	if !ok {
		return false
	}
	sess.LastHeartbeat = r.now()
	return true
}

// SetCapture updates the camera and audio flags. Nil leaves a flag unchanged.
func (r *Registry) SetCapture(deviceID string, camera, audio *bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.devices[deviceID]
	if !ok {
		return false
	}
	if camera != nil {
		sess.CameraActive = *camera
	}
	if audio != nil {
		sess.AudioActive = *audio
	}
	return true
}

// StaleDevices returns the sessions whose last heartbeat is before cutoff.
func (r *Registry) StaleDevices(cutoff time.Time) []DeviceSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var stale []DeviceSession
	for _, sess := range r.devices {
		if sess.LastHeartbeat.Before(cutoff) {
			stale = append(stale, sess.clone())
		}
	}
	return stale
}

// RegisterController records conn as a controller watching targetDeviceID.
// Registering the same controller id again replaces the previous session;
// the superseded session is returned when it used a different connection.
func (r *Registry) RegisterController(controllerID string, conn Conn, targetDeviceID string) (ControllerSession, *ControllerSession) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prevID, ok := r.controllerConns[conn.ID()]; ok && prevID != controllerID {
		delete(r.controllers, prevID)
	}

	var superseded *ControllerSession
	if old, ok := r.controllers[controllerID]; ok && old.Conn.ID() != conn.ID() {
		delete(r.controllerConns, old.Conn.ID())
		s := *old
		superseded = &s
	}

	sess := &ControllerSession{
		ControllerID:   controllerID,
		Conn:           conn,
		TargetDeviceID: targetDeviceID,
		ConnectedAt:    r.now(),
	}
	r.controllers[controllerID] = sess
	r.controllerConns[conn.ID()] = controllerID

	return *sess, superseded
}

// UnregisterController removes the controller session bound to conn.
func (r *Registry) UnregisterController(conn Conn) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	controllerID, ok := r.controllerConns[conn.ID()]
	if !ok {
		return "", false
	}
	delete(r.controllerConns, conn.ID())
	if sess, ok := r.controllers[controllerID]; ok && sess.Conn.ID() == conn.ID() {
		delete(r.controllers, controllerID)
	}
	return controllerID, true
}

// GetController returns the controller session bound to conn.
func (r *Registry) GetController(conn Conn) (ControllerSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	controllerID, ok := r.controllerConns[conn.ID()]
	if !ok {
		return ControllerSession{}, false
	}
	sess, ok := r.controllers[controllerID]
	if !ok {
		return ControllerSession{}, false
	}
	return *sess, true
}

// ControllersWatching returns every controller session targeting deviceID.
func (r *Registry) ControllersWatching(deviceID string) []ControllerSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var watching []ControllerSession
	for _, sess := range r.controllers {
		if sess.TargetDeviceID == deviceID {
			watching = append(watching, *sess)
		}
	}
	return watching
}

// Stats returns counts and the sorted ids of online devices.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.devices))
	for id := range r.devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return Stats{
		DevicesOnline:     len(r.devices),
		ControllersOnline: len(r.controllers),
		Devices:           ids,
	}
}
