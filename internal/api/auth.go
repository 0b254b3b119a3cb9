package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nerrad567/remoteeye-relay/internal/auth"
	"github.com/nerrad567/remoteeye-relay/internal/device"
)

// registerRequest is the request body for POST /auth/register.
type registerRequest struct {
	Type        auth.Role `json:"type"`
	PairingCode string    `json:"pairingCode,omitempty"`
	DeviceID    string    `json:"deviceId,omitempty"`
	Name        string    `json:"name"`
}

// tokenResponse is returned by register and login.
type tokenResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int    `json:"expiresIn"`
	DeviceID     string `json:"deviceId,omitempty"`
	ControllerID string `json:"controllerId,omitempty"`

	// Secret is returned once, at device registration. Only its hash is stored.
	Secret string `json:"secret,omitempty"`
}

// loginRequest is the request body for POST /auth/login.
type loginRequest struct {
	DeviceID string `json:"deviceId"`
	Secret   string `json:"secret"`
}

// refreshRequest is the request body for POST /auth/refresh.
type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// refreshResponse is the response body for POST /auth/refresh.
type refreshResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expiresIn"`
}

// pairingResponse is the response body for POST /auth/pair.
type pairingResponse struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// pairingLookupResponse is the response body for GET /auth/lookup-pairing/{code}.
type pairingLookupResponse struct {
	Code      string    `json:"code"`
	Valid     bool      `json:"valid"`
	Used      bool      `json:"used"`
	ExpiresAt time.Time `json:"expiresAt"`
	DeviceID  *string   `json:"deviceId,omitempty"`
}

// handleRegister registers a device (with a pairing code) or a controller
// (for an existing device) and issues its first token pair.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := device.ValidateName(req.Name); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	switch req.Type {
	case auth.RoleDevice:
		s.registerDevice(w, r, req)
	case auth.RoleController:
		s.registerController(w, r, req)
	default:
		writeBadRequest(w, `type must be "device" or "controller"`)
	}
}

func (s *Server) registerDevice(w http.ResponseWriter, r *http.Request, req registerRequest) {
	if strings.TrimSpace(req.PairingCode) == "" {
		writeBadRequest(w, "pairingCode is required for device registration")
		return
	}

	deviceID := device.GenerateID()
	// Consume first so two registrations racing on one code cannot both
	// create a device.
	if err := s.pairings.Consume(r.Context(), req.PairingCode, deviceID); err != nil {
		switch {
		case errors.Is(err, auth.ErrPairingCodeInvalid),
			errors.Is(err, auth.ErrPairingCodeExpired),
			errors.Is(err, auth.ErrPairingCodeUsed),
			errors.Is(err, auth.ErrPairingNotFound):
			writeError(w, http.StatusBadRequest, ErrCodePairingInvalid, "invalid or expired pairing code")
		default:
			s.logger.Error("consuming pairing code failed", "error", err)
			writeInternalError(w, "failed to register device")
		}
		return
	}

	secret, err := auth.GenerateSecret()
	if err != nil {
		s.logger.Error("generating device secret failed", "error", err)
		s.releasePairing(r.Context(), req.PairingCode, deviceID)
		writeInternalError(w, "failed to register device")
		return
	}
	hash, err := auth.HashSecret(secret)
	if err != nil {
		s.logger.Error("hashing device secret failed", "error", err)
		s.releasePairing(r.Context(), req.PairingCode, deviceID)
		writeInternalError(w, "failed to register device")
		return
	}

	dev := &device.Device{
		ID:         deviceID,
		Name:       device.NormaliseName(req.Name),
		SecretHash: hash,
		Status:     device.StatusOffline,
		Settings:   device.DefaultSettings(),
	}
	if err := s.devices.Create(r.Context(), dev); err != nil {
		s.logger.Error("creating device failed", "device_id", deviceID, "error", err)
		s.releasePairing(r.Context(), req.PairingCode, deviceID)
		writeInternalError(w, "failed to register device")
		return
	}

	resp, ok := s.issueTokens(w, deviceID, auth.RoleDevice)
	if !ok {
		return
	}
	resp.DeviceID = deviceID
	resp.Secret = secret

	s.logger.Info("device registered", "device_id", deviceID, "name", dev.Name)
	writeJSON(w, http.StatusCreated, resp)
}

// releasePairing makes a consumed code usable again after the device it was
// bound to could not be created.
func (s *Server) releasePairing(ctx context.Context, code, deviceID string) {
	if err := s.pairings.Release(context.WithoutCancel(ctx), code, deviceID); err != nil {
		s.logger.Error("releasing pairing code failed", "device_id", deviceID, "error", err)
	}
}

func (s *Server) registerController(w http.ResponseWriter, r *http.Request, req registerRequest) {
	if req.DeviceID == "" {
		writeBadRequest(w, "deviceId is required for controller registration")
		return
	}
	if _, err := s.devices.GetByID(r.Context(), req.DeviceID); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeDeviceNotFound(w)
			return
		}
		s.logger.Error("looking up device failed", "device_id", req.DeviceID, "error", err)
		writeInternalError(w, "failed to register controller")
		return
	}

	controllerID := uuid.New().String()
	resp, ok := s.issueTokens(w, controllerID, auth.RoleController)
	if !ok {
		return
	}
	resp.ControllerID = controllerID

	s.logger.Info("controller registered", "controller_id", controllerID, "device_id", req.DeviceID)
	writeJSON(w, http.StatusCreated, resp)
}

// handleLogin exchanges a device id and secret for a fresh token pair.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.DeviceID == "" || req.Secret == "" {
		writeBadRequest(w, "deviceId and secret are required")
		return
	}

	dev, err := s.devices.GetByID(r.Context(), req.DeviceID)
	if err != nil {
		if !errors.Is(err, device.ErrDeviceNotFound) {
			s.logger.Error("looking up device failed", "device_id", req.DeviceID, "error", err)
		}
		writeUnauthorized(w, ErrCodeAuthFailed, "invalid credentials")
		return
	}

	valid, err := auth.VerifySecret(req.Secret, dev.SecretHash)
	if err != nil {
		s.logger.Warn("verifying device secret failed", "device_id", dev.ID, "error", err)
	}
	if !valid {
		writeUnauthorized(w, ErrCodeAuthFailed, "invalid credentials")
		return
	}

	resp, ok := s.issueTokens(w, dev.ID, auth.RoleDevice)
	if !ok {
		return
	}
	s.logger.Info("device logged in", "device_id", dev.ID)
	writeJSON(w, http.StatusOK, resp)
}

// handleRefresh mints a new access token from a refresh token.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		writeBadRequest(w, "refreshToken is required")
		return
	}

	identity, err := s.tokens.VerifyRefresh(req.RefreshToken)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			writeUnauthorized(w, ErrCodeTokenExpired, "refresh token expired")
			return
		}
		writeUnauthorized(w, ErrCodeTokenInvalid, "invalid refresh token")
		return
	}

	if identity.Role == auth.RoleDevice {
		if _, err := s.devices.GetByID(r.Context(), identity.Subject); err != nil {
			writeUnauthorized(w, ErrCodeTokenInvalid, "device is no longer registered")
			return
		}
	}

	token, err := s.tokens.GenerateAccessToken(identity.Subject, identity.Role)
	if err != nil {
		s.logger.Error("generating access token failed", "subject", identity.Subject, "error", err)
		writeInternalError(w, "failed to refresh token")
		return
	}
	writeJSON(w, http.StatusOK, refreshResponse{
		Token:     token,
		ExpiresIn: int(s.tokens.AccessTokenTTL().Seconds()),
	})
}

// handleCreatePairing issues a one-time pairing code.
func (s *Server) handleCreatePairing(w http.ResponseWriter, r *http.Request) {
	code, err := s.pairings.Create(r.Context(), s.pairingTTL)
	if err != nil {
		s.logger.Error("creating pairing code failed", "error", err)
		writeInternalError(w, "failed to create pairing code")
		return
	}
	s.logger.Info("pairing code created", "expires_at", code.ExpiresAt)
	writeJSON(w, http.StatusCreated, pairingResponse{Code: code.Code, ExpiresAt: code.ExpiresAt})
}

// handleLookupPairing reports a pairing code's state and, once used, the
// device it registered. Controllers poll it to learn the new device id.
func (s *Server) handleLookupPairing(w http.ResponseWriter, r *http.Request) {
	code, err := s.pairings.Get(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		if errors.Is(err, auth.ErrPairingNotFound) {
			writeError(w, http.StatusNotFound, ErrCodePairingNotFound, "pairing code not found")
			return
		}
		s.logger.Error("looking up pairing code failed", "error", err)
		writeInternalError(w, "failed to look up pairing code")
		return
	}

	writeJSON(w, http.StatusOK, pairingLookupResponse{
		Code:      code.Code,
		Valid:     !code.Used && !code.IsExpired(time.Now()),
		Used:      code.Used,
		ExpiresAt: code.ExpiresAt,
		DeviceID:  code.DeviceID,
	})
}

// issueTokens mints an access and refresh token. On failure it writes the
// error response and returns false.
func (s *Server) issueTokens(w http.ResponseWriter, subject string, role auth.Role) (tokenResponse, bool) {
	access, err := s.tokens.GenerateAccessToken(subject, role)
	if err != nil {
		s.logger.Error("generating access token failed", "subject", subject, "error", err)
		writeInternalError(w, "failed to issue token")
		return tokenResponse{}, false
	}
	refresh, err := s.tokens.GenerateRefreshToken(subject, role)
	if err != nil {
		s.logger.Error("generating refresh token failed", "subject", subject, "error", err)
		writeInternalError(w, "failed to issue token")
		return tokenResponse{}, false
	}
	return tokenResponse{
		Token:        access,
		RefreshToken: refresh,
		ExpiresIn:    int(s.tokens.AccessTokenTTL().Seconds()),
	}, true
}

// decodeBody decodes a JSON request body. On failure it writes a 400 and
// returns false.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeInvalidInput, "request body too large")
			return false
		}
		writeBadRequest(w, "invalid JSON body")
		return false
	}
	return true
}
