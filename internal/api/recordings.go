package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/remoteeye-relay/internal/auth"
	"github.com/nerrad567/remoteeye-relay/internal/infrastructure/objectstore"
	"github.com/nerrad567/remoteeye-relay/internal/recording"
)

// recordingView is a recording with a short-lived download URL when object
// storage is configured.
type recordingView struct {
	recording.Recording
	DownloadURL string `json:"downloadUrl,omitempty"`
}

// handleListRecordings returns recordings, newest first.
// Query parameters: deviceId, type, triggeredBy, startDate, endDate, limit, offset.
func (s *Server) handleListRecordings(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := recording.Filter{DeviceID: query.Get("deviceId")}

	if identity, ok := identityFrom(r.Context()); ok && identity.Role == auth.RoleDevice {
		if filter.DeviceID != "" && filter.DeviceID != identity.Subject {
			writeForbidden(w, "devices may only list their own recordings")
			return
		}
		filter.DeviceID = identity.Subject
	}

	if raw := query.Get("type"); raw != "" {
		t, err := recording.ParseType(raw)
		if err != nil {
			writeBadRequest(w, err.Error())
			return
		}
		filter.Type = t
	}
	if raw := query.Get("triggeredBy"); raw != "" {
		t, err := recording.ParseTrigger(raw)
		if err != nil {
			writeBadRequest(w, err.Error())
			return
		}
		filter.TriggeredBy = t
	}

	var ok bool
	if filter.Since, ok = parseDateParam(w, query.Get("startDate"), "startDate"); !ok {
		return
	}
	if filter.Until, ok = parseDateParam(w, query.Get("endDate"), "endDate"); !ok {
		return
	}

	limit, offset, ok := parsePaging(w, r, recording.DefaultListLimit, recording.MaxListLimit)
	if !ok {
		return
	}
	filter.Limit = limit
	filter.Offset = offset

	recs, total, err := s.recordings.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list recordings", "error", err)
		writeInternalError(w, "failed to list recordings")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"recordings": recs,
		"total":      total,
		"limit":      limit,
		"offset":     offset,
	})
}

// handleGetRecording returns one recording with a download URL.
func (s *Server) handleGetRecording(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.loadRecording(w, r)
	if !ok {
		return
	}

	view := recordingView{Recording: *rec}
	if s.storage.IsConfigured() {
		u, err := s.storage.PresignDownload(r.Context(), storageKeyOf(rec), 0)
		if err != nil {
			s.logger.Warn("failed to presign recording download", "recording_id", rec.ID, "error", err)
		} else {
			view.DownloadURL = u.String()
		}
	}
	writeJSON(w, http.StatusOK, view)
}

// handleDeleteRecording removes a recording row. The stored object is left
// to the bucket's lifecycle policy.
func (s *Server) handleDeleteRecording(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.loadRecording(w, r)
	if !ok {
		return
	}

	if err := s.recordings.Delete(r.Context(), rec.ID); err != nil {
		if errors.Is(err, recording.ErrRecordingNotFound) {
			writeError(w, http.StatusNotFound, ErrCodeRecordingNotFound, "recording not found")
			return
		}
		s.logger.Error("failed to delete recording", "recording_id", rec.ID, "error", err)
		writeInternalError(w, "failed to delete recording")
		return
	}

	s.logger.Info("recording deleted", "recording_id", rec.ID, "device_id", rec.DeviceID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "recordingId": rec.ID})
}

// handleDownloadRecording redirects to a presigned download URL.
func (s *Server) handleDownloadRecording(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.loadRecording(w, r)
	if !ok {
		return
	}
	if !s.storage.IsConfigured() {
		writeError(w, http.StatusServiceUnavailable, ErrCodeStorageNotConfigured, "object storage is not configured")
		return
	}

	u, err := s.storage.PresignDownload(r.Context(), storageKeyOf(rec), 0)
	if err != nil {
		if errors.Is(err, objectstore.ErrInvalidKey) {
			writeBadRequest(w, "recording has an invalid storage key")
			return
		}
		s.logger.Error("failed to presign recording download", "recording_id", rec.ID, "error", err)
		writeError(w, http.StatusInternalServerError, ErrCodeURLGenerationFailed, "failed to generate download URL")
		return
	}
	http.Redirect(w, r, u.String(), http.StatusFound)
}

// loadRecording fetches the recording named by {id} and enforces device
// ownership. On failure it writes the error response and returns false.
func (s *Server) loadRecording(w http.ResponseWriter, r *http.Request) (*recording.Recording, bool) {
	id := chi.URLParam(r, "id")
	rec, err := s.recordings.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, recording.ErrRecordingNotFound) {
			writeError(w, http.StatusNotFound, ErrCodeRecordingNotFound, "recording not found")
			return nil, false
		}
		s.logger.Error("failed to get recording", "recording_id", id, "error", err)
		writeInternalError(w, "failed to get recording")
		return nil, false
	}

	if identity, ok := identityFrom(r.Context()); ok &&
		identity.Role == auth.RoleDevice && identity.Subject != rec.DeviceID {
		writeForbidden(w, "recording belongs to another device")
		return nil, false
	}
	return rec, true
}

// storageKeyOf returns the recording's object key, deriving the
// conventional one for rows stored without a key.
func storageKeyOf(rec *recording.Recording) string {
	if rec.StorageKey != "" {
		return rec.StorageKey
	}
	return recording.StorageKey(rec.Type, rec.DeviceID, rec.Filename)
}

// parseDateParam accepts RFC 3339 timestamps or plain YYYY-MM-DD dates.
// An empty value yields nil.
func parseDateParam(w http.ResponseWriter, raw, name string) (*time.Time, bool) {
	if raw == "" {
		return nil, true
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, true
		}
	}
	writeBadRequest(w, name+" must be an RFC 3339 timestamp or YYYY-MM-DD date")
	return nil, false
}
