package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/home-gateway/internal/web"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// HTML front end
	r.Get("/", s.handleIndex)
	r.Get("/services", s.handleListServices)
	r.Route("/service/{id}", func(r chi.Router) {
		r.Get("/", s.handleService)
		r.Post("/", s.handleService)
	})
	r.Handle("/static/*", http.StripPrefix("/static/", web.StaticHandler(s.cfg.StaticDir)))

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/devices", s.handleListDevices)
		r.Get("/devices/{id}", s.handleGetDevice)
	})

	// Event stream
	wsPath := s.wsCfg.Path
	if wsPath == "" {
		wsPath = "/api/v1/ws"
	}
	r.Get(wsPath, s.handleWebSocket)

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"devices": s.directory.Len(),
	})
}
