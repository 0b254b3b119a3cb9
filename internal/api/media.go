package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/remoteeye-relay/internal/auth"
	"github.com/nerrad567/remoteeye-relay/internal/device"
	"github.com/nerrad567/remoteeye-relay/internal/infrastructure/objectstore"
	"github.com/nerrad567/remoteeye-relay/internal/recording"
)

// mediaExtensions maps accepted upload content types to file extensions.
var mediaExtensions = map[string]string{
	"audio/wav":  "wav",
	"audio/mp3":  "mp3",
	"image/jpeg": "jpg",
	"image/png":  "png",
}

// presignedURLRequest is the request body for POST /media/presigned-url.
type presignedURLRequest struct {
	DeviceID    string `json:"deviceId"`
	FileName    string `json:"fileName,omitempty"`
	ContentType string `json:"contentType"`
	MediaType   string `json:"mediaType"`
}

// presignedURLResponse carries a direct upload URL.
type presignedURLResponse struct {
	URL       string `json:"url"`
	Key       string `json:"key"`
	ExpiresIn int    `json:"expiresIn"`
}

// handlePresignedUpload issues a URL the device PUTs media to directly.
// The object name is generated server side; fileName is informational.
func (s *Server) handlePresignedUpload(w http.ResponseWriter, r *http.Request) {
	var req presignedURLRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.DeviceID == "" {
		writeBadRequest(w, "deviceId is required")
		return
	}
	mediaType, err := recording.ParseType(req.MediaType)
	if err != nil {
		writeBadRequest(w, `mediaType must be "audio" or "photo"`)
		return
	}
	ext, ok := mediaExtensions[req.ContentType]
	if !ok {
		writeBadRequest(w, "contentType must be one of audio/wav, audio/mp3, image/jpeg, image/png")
		return
	}

	if identity, ok := identityFrom(r.Context()); ok &&
		identity.Role == auth.RoleDevice && identity.Subject != req.DeviceID {
		writeForbidden(w, "devices may only upload their own media")
		return
	}

	if !s.storage.IsConfigured() {
		writeError(w, http.StatusServiceUnavailable, ErrCodeStorageNotConfigured, "object storage is not configured")
		return
	}

	if _, err := s.devices.GetByID(r.Context(), req.DeviceID); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeDeviceNotFound(w)
			return
		}
		s.logger.Error("failed to get device", "device_id", req.DeviceID, "error", err)
		writeInternalError(w, "failed to generate upload URL")
		return
	}

	filename := fmt.Sprintf("%s_%s_%s.%s",
		mediaType,
		time.Now().UTC().Format("20060102_150405"),
		uuid.New().String()[:8],
		ext,
	)
	key, err := objectstore.ObjectKey(recording.StorageKey(mediaType, req.DeviceID, filename))
	if err != nil {
		writeBadRequest(w, "deviceId is not a valid key segment")
		return
	}

	expiry := s.storage.URLExpiry()
	u, err := s.storage.PresignUpload(r.Context(), key, expiry)
	if err != nil {
		s.logger.Error("failed to presign upload", "key", key, "error", err)
		writeError(w, http.StatusInternalServerError, ErrCodeURLGenerationFailed, "failed to generate upload URL")
		return
	}

	s.logger.Info("presigned upload URL issued", "device_id", req.DeviceID, "key", key)
	writeJSON(w, http.StatusOK, presignedURLResponse{
		URL:       u.String(),
		Key:       key,
		ExpiresIn: int(expiry.Seconds()),
	})
}
