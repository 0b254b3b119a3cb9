package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/remoteeye-relay/internal/auth"
	"github.com/nerrad567/remoteeye-relay/internal/command"
	"github.com/nerrad567/remoteeye-relay/internal/device"
)

// deviceView is a device record with live presence overlaid.
// The registry is the authority on whether a session exists right now.
type deviceView struct {
	device.Device
	Online       bool       `json:"online"`
	ConnectedAt  *time.Time `json:"connectedAt,omitempty"`
	CameraActive bool       `json:"cameraActive"`
	AudioActive  bool       `json:"audioActive"`
	HasPushToken bool       `json:"hasPushToken"`
}

func (s *Server) viewOf(d device.Device) deviceView {
	v := deviceView{Device: d, HasPushToken: d.HasPushToken()}
	v.Status = device.StatusOffline

	live, ok := s.registry.GetSession(d.ID)
	if !ok {
		return v
	}
	connectedAt := live.ConnectedAt
	v.Online = true
	v.Status = device.StatusOnline
	v.ConnectedAt = &connectedAt
	v.CameraActive = live.CameraActive
	v.AudioActive = live.AudioActive
	if live.Status != nil {
		v.LastStatus = live.Status
	}
	return v
}

// updateDeviceRequest is the request body for PATCH /devices/{id}.
// Settings is a partial document merged over the stored settings.
type updateDeviceRequest struct {
	Name     *string         `json:"name,omitempty"`
	Settings json.RawMessage `json:"settings,omitempty"`
}

// pushTokenRequest is the request body for POST /devices/{id}/push-token.
type pushTokenRequest struct {
	Token    string              `json:"token"`
	Platform device.PushPlatform `json:"platform"`
}

// pushCommandRequest is the request body for POST /devices/{id}/command.
type pushCommandRequest struct {
	Action string          `json:"action"`
	Params json.RawMessage `json:"params,omitempty"`
}

// handleListDevices returns every device. A device credential only sees itself.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.devices.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list devices", "error", err)
		writeInternalError(w, "failed to list devices")
		return
	}

	identity, _ := identityFrom(r.Context())
	views := make([]deviceView, 0, len(devices))
	for _, d := range devices {
		if identity.Role == auth.RoleDevice && d.ID != identity.Subject {
			continue
		}
		views = append(views, s.viewOf(d))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": views,
		"count":   len(views),
	})
}

// handleGetDevice returns a single device.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.loadDevice(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.viewOf(*dev))
}

// handleUpdateDevice renames a device and/or merges settings.
func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	var req updateDeviceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == nil && len(req.Settings) == 0 {
		writeBadRequest(w, "nothing to update")
		return
	}

	dev, ok := s.loadDevice(w, r)
	if !ok {
		return
	}

	name := dev.Name
	if req.Name != nil {
		if err := device.ValidateName(*req.Name); err != nil {
			writeBadRequest(w, err.Error())
			return
		}
		name = device.NormaliseName(*req.Name)
	}

	settings := dev.Settings
	if len(req.Settings) > 0 {
		merged, err := dev.Settings.Merge(req.Settings)
		if err != nil {
			writeBadRequest(w, err.Error())
			return
		}
		settings = merged
	}

	if err := s.devices.UpdateDetails(r.Context(), dev.ID, name, settings); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeDeviceNotFound(w)
			return
		}
		s.logger.Error("failed to update device", "device_id", dev.ID, "error", err)
		writeInternalError(w, "failed to update device")
		return
	}

	dev.Name = name
	dev.Settings = settings
	s.logger.Info("device updated", "device_id", dev.ID)
	writeJSON(w, http.StatusOK, s.viewOf(*dev))
}

// handleDeleteDevice removes a device, its commands and recordings, and
// drops its live session if there is one.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.devices.Delete(r.Context(), id); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeDeviceNotFound(w)
			return
		}
		s.logger.Error("failed to delete device", "device_id", id, "error", err)
		writeInternalError(w, "failed to delete device")
		return
	}

	if live, ok := s.registry.GetSession(id); ok {
		live.Conn.Close()
	}

	s.logger.Info("device deleted", "device_id", id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "deviceId": id})
}

// handleRegisterPushToken stores the device's wake-up channel.
func (s *Server) handleRegisterPushToken(w http.ResponseWriter, r *http.Request) {
	var req pushTokenRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Platform == "" {
		req.Platform = device.PushPlatformFCM
	}
	if err := device.ValidatePushToken(req.Token, req.Platform); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.devices.UpdatePushToken(r.Context(), id, req.Token, req.Platform); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeDeviceNotFound(w)
			return
		}
		s.logger.Error("failed to store push token", "device_id", id, "error", err)
		writeInternalError(w, "failed to register push token")
		return
	}

	s.logger.Info("push token registered", "device_id", id, "platform", req.Platform)
	writeJSON(w, http.StatusOK, map[string]string{"status": "registered"})
}

// handlePingDevice wakes an offline device so it reconnects.
func (s *Server) handlePingDevice(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.loadDevice(w, r)
	if !ok {
		return
	}

	if s.registry.IsOnline(dev.ID) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "already_online",
			"message": "device is already connected",
		})
		return
	}

	token, ok := s.pushTarget(w, dev)
	if !ok {
		return
	}
	if !s.push.SendWakePing(r.Context(), token, dev.ID) {
		writeError(w, http.StatusInternalServerError, ErrCodePushFailed, "failed to send wake-up ping")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ping_sent",
		"message": "wake-up ping sent to device",
	})
}

// handlePushCommand sends a command over the push channel. It is not
// recorded in the command log; use POST /devices/{id}/commands for
// durable delivery.
func (s *Server) handlePushCommand(w http.ResponseWriter, r *http.Request) {
	var req pushCommandRequest
	if !decodeBody(w, r, &req) {
		return
	}
	action, err := command.ParseAction(req.Action)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidAction, err.Error())
		return
	}
	if err := command.ValidateParams(req.Params); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	dev, ok := s.loadDevice(w, r)
	if !ok {
		return
	}
	token, ok := s.pushTarget(w, dev)
	if !ok {
		return
	}
	if !s.push.SendCommandPush(r.Context(), token, dev.ID, string(action), req.Params) {
		writeError(w, http.StatusInternalServerError, ErrCodePushFailed, "failed to send command notification")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "command_sent",
		"action": string(action),
	})
}

// pushTarget returns the device's push token, or writes the error explaining
// why push cannot be used.
func (s *Server) pushTarget(w http.ResponseWriter, dev *device.Device) (string, bool) {
	if !s.push.IsConfigured() {
		writeError(w, http.StatusServiceUnavailable, ErrCodePushNotConfigured, "push notifications are not configured")
		return "", false
	}
	if !dev.HasPushToken() {
		writeError(w, http.StatusBadRequest, ErrCodeNoPushToken, "device has no registered push token")
		return "", false
	}
	return *dev.PushToken, true
}

// loadDevice fetches the device named by the {id} URL parameter.
// On failure it writes the error response and returns false.
func (s *Server) loadDevice(w http.ResponseWriter, r *http.Request) (*device.Device, bool) {
	id := chi.URLParam(r, "id")
	dev, err := s.devices.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeDeviceNotFound(w)
			return nil, false
		}
		s.logger.Error("failed to get device", "device_id", id, "error", err)
		writeInternalError(w, "failed to get device")
		return nil, false
	}
	return dev, true
}
