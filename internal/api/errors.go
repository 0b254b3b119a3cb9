package api

import (
	"encoding/json"
	"net/http"
)

// errorBody is the envelope of every error response.
type errorBody struct {
	Error Error `json:"error"`
}

// Error represents a structured error response.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes. Clients match on these; messages are for humans.
const (
	ErrCodeInvalidInput         = "INVALID_INPUT"
	ErrCodeInvalidAction        = "INVALID_ACTION"
	ErrCodeUnauthorized         = "UNAUTHORIZED"
	ErrCodeForbidden            = "FORBIDDEN"
	ErrCodeAuthFailed           = "AUTH_FAILED"
	ErrCodeTokenInvalid         = "TOKEN_INVALID"
	ErrCodeTokenExpired         = "TOKEN_EXPIRED"
	ErrCodePairingInvalid       = "PAIRING_CODE_INVALID"
	ErrCodePairingNotFound      = "PAIRING_NOT_FOUND"
	ErrCodeDeviceNotFound       = "DEVICE_NOT_FOUND"
	ErrCodeCommandNotFound      = "COMMAND_NOT_FOUND"
	ErrCodeRecordingNotFound    = "RECORDING_NOT_FOUND"
	ErrCodeConflict             = "CONFLICT"
	ErrCodeNoPushToken          = "NO_PUSH_TOKEN"
	ErrCodePushNotConfigured    = "PUSH_NOT_CONFIGURED"
	ErrCodePushFailed           = "PUSH_FAILED"
	ErrCodeStorageNotConfigured = "STORAGE_NOT_CONFIGURED"
	ErrCodeURLGenerationFailed  = "URL_GENERATION_FAILED"
	ErrCodeNotFound             = "NOT_FOUND"
	ErrCodeMethodNotAllowed     = "METHOD_NOT_ALLOWED"
	ErrCodeInternal             = "INTERNAL_ERROR"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: Error{Code: code, Message: message}})
}

// writeBadRequest writes a 400 INVALID_INPUT response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeInvalidInput, message)
}

// writeDeviceNotFound writes a 404 DEVICE_NOT_FOUND response.
func writeDeviceNotFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, ErrCodeDeviceNotFound, "device not found")
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, code, message string) {
	writeError(w, http.StatusUnauthorized, code, message)
}

// writeForbidden writes a 403 error response.
func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

// writeInternalError writes a 500 error response. The message must not
// carry internal detail.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}
