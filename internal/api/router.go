package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/remoteeye-relay/internal/presence"
)

// apiPrefix is the mount point of the versioned API.
const apiPrefix = "/api/v1"

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Health check (no auth required)
	r.Get("/health", s.handleHealth)

	// Realtime endpoint (authenticates itself before upgrading)
	wsPath := resolveWSSettings(s.wsCfg).path
	wsInAPI := strings.HasPrefix(wsPath, apiPrefix+"/")
	if !wsInAPI {
		r.Get(wsPath, s.handleWebSocket)
	}

	// API v1 routes
	r.Route(apiPrefix, func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		if wsInAPI {
			r.Get(strings.TrimPrefix(wsPath, apiPrefix), s.handleWebSocket)
		}

		// Auth endpoints (no auth required)
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", s.handleRegister)
			r.Post("/login", s.handleLogin)
			r.Post("/refresh", s.handleRefresh)
			r.Post("/pair", s.handleCreatePairing)
			r.Get("/lookup-pairing/{code}", s.handleLookupPairing)
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			// Device endpoints
			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)

				r.Route("/{id}", func(r chi.Router) {
					r.Use(s.deviceScopeMiddleware)

					r.Get("/", s.handleGetDevice)
					r.Patch("/", s.handleUpdateDevice)
					r.Delete("/", s.handleDeleteDevice)
					r.Post("/push-token", s.handleRegisterPushToken)
					r.Post("/ping", s.handlePingDevice)
					r.Post("/command", s.handlePushCommand)
					r.Post("/commands", s.handleCreateCommand)
					r.Get("/commands", s.handleListCommands)
				})
			})

			r.Get("/commands/{id}", s.handleGetCommand)

			r.Post("/media/presigned-url", s.handlePresignedUpload)

			// Recording endpoints
			r.Route("/recordings", func(r chi.Router) {
				r.Get("/", s.handleListRecordings)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetRecording)
					r.Delete("/", s.handleDeleteRecording)
					r.Get("/download", s.handleDownloadRecording)
				})
			})
		})
	})

	return r
}

// healthResponse is the body of GET /health.
type healthResponse struct {
	Status      string         `json:"status"`
	Version     string         `json:"version"`
	Connections presence.Stats `json:"connections"`
	Push        bool           `json:"push"`
	Storage     bool           `json:"storage"`
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:      "ok",
		Version:     s.version,
		Connections: s.registry.Stats(),
		Push:        s.push.IsConfigured(),
		Storage:     s.storage.IsConfigured(),
	})
}
