package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nerrad567/remoteeye-relay/internal/auth"
	"github.com/nerrad567/remoteeye-relay/internal/command"
)

// createCommandRequest is the request body for POST /devices/{id}/commands.
type createCommandRequest struct {
	// CommandID lets the caller correlate the acknowledgment. Optional.
	CommandID string          `json:"commandId,omitempty"`
	Action    string          `json:"action"`
	Params    json.RawMessage `json:"params,omitempty"`
}

// createCommandResponse is returned with 202 Accepted.
type createCommandResponse struct {
	CommandID     string         `json:"commandId"`
	Status        command.Status `json:"status"`
	QueuePosition *int           `json:"queuePosition,omitempty"`
}

// commandView is a stored command plus its place in the device's queue.
type commandView struct {
	command.Command
	QueuePosition *int `json:"queuePosition,omitempty"`
}

// handleCreateCommand records a command and delivers it live when the
// device is online, or queues it for replay on the next registration.
func (s *Server) handleCreateCommand(w http.ResponseWriter, r *http.Request) {
	var req createCommandRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Action == "" {
		writeBadRequest(w, "action is required")
		return
	}
	if req.CommandID != "" {
		if _, err := uuid.Parse(req.CommandID); err != nil {
			writeBadRequest(w, "commandId must be a UUID")
			return
		}
	}

	dev, ok := s.loadDevice(w, r)
	if !ok {
		return
	}

	res, err := s.dispatcher.Dispatch(r.Context(), req.CommandID, dev.ID, command.Action(req.Action), req.Params)
	if err != nil {
		s.writeCommandError(w, err)
		return
	}

	s.logger.Info("command accepted",
		"command_id", res.Command.ID,
		"device_id", dev.ID,
		"action", res.Command.Action,
		"status", res.Command.Status,
	)
	writeJSON(w, http.StatusAccepted, createCommandResponse{
		CommandID:     res.Command.ID,
		Status:        res.Command.Status,
		QueuePosition: res.QueuePosition,
	})
}

// handleListCommands returns a device's command history, newest first.
func (s *Server) handleListCommands(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var filter command.ListFilter
	if raw := query.Get("status"); raw != "" {
		status, err := command.ParseStatus(raw)
		if err != nil {
			writeBadRequest(w, err.Error())
			return
		}
		filter.Status = &status
	}

	limit, offset, ok := parsePaging(w, r, command.DefaultListLimit, command.MaxListLimit)
	if !ok {
		return
	}
	filter.Limit = limit
	filter.Offset = offset

	dev, ok := s.loadDevice(w, r)
	if !ok {
		return
	}

	cmds, total, err := s.commands.ListByDevice(r.Context(), dev.ID, filter)
	if err != nil {
		s.logger.Error("failed to list commands", "device_id", dev.ID, "error", err)
		writeInternalError(w, "failed to list commands")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"commands": cmds,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	})
}

// handleGetCommand returns one command with its queue position while it waits.
func (s *Server) handleGetCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	cmd, err := s.dispatcher.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, command.ErrCommandNotFound) {
			writeError(w, http.StatusNotFound, ErrCodeCommandNotFound, "command not found")
			return
		}
		s.logger.Error("failed to get command", "command_id", id, "error", err)
		writeInternalError(w, "failed to get command")
		return
	}

	if identity, ok := identityFrom(r.Context()); ok &&
		identity.Role == auth.RoleDevice && identity.Subject != cmd.DeviceID {
		writeForbidden(w, "command belongs to another device")
		return
	}

	pos, err := s.dispatcher.QueuePosition(r.Context(), id)
	if err != nil {
		s.logger.Warn("failed to compute queue position", "command_id", id, "error", err)
	}
	writeJSON(w, http.StatusOK, commandView{Command: *cmd, QueuePosition: pos})
}

// writeCommandError maps dispatcher errors to HTTP responses.
func (s *Server) writeCommandError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, command.ErrInvalidAction):
		writeError(w, http.StatusBadRequest, ErrCodeInvalidAction, err.Error())
	case errors.Is(err, command.ErrInvalidParams):
		writeBadRequest(w, err.Error())
	case errors.Is(err, command.ErrCommandExists):
		writeError(w, http.StatusConflict, ErrCodeConflict, "command id already used")
	case errors.Is(err, command.ErrDeviceUnknown):
		writeDeviceNotFound(w)
	default:
		s.logger.Error("failed to dispatch command", "error", err)
		writeInternalError(w, "failed to create command")
	}
}

// parsePaging reads limit and offset query parameters. limit is clamped to
// maxLimit; a missing limit uses defaultLimit.
func parsePaging(w http.ResponseWriter, r *http.Request, defaultLimit, maxLimit int) (limit, offset int, ok bool) {
	query := r.URL.Query()
	limit = defaultLimit
	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return 0, 0, false
		}
		limit = min(n, maxLimit)
	}
	if raw := query.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeBadRequest(w, "offset must be a non-negative integer")
			return 0, 0, false
		}
		offset = n
	}
	return limit, offset, true
}
