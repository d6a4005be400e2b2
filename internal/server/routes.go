package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route (status event stream)
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Run control
	mux.HandleFunc("/api/pipeline/start", s.app.ControlHandler.StartHandler) // POST - start a run
	mux.HandleFunc("/api/pipeline/stop", s.app.ControlHandler.StopHandler)   // POST - request cooperative stop
	mux.HandleFunc("/api/status", s.app.ControlHandler.StatusHandler)        // GET - run snapshot + stats
	mux.HandleFunc("/api/records", s.app.ControlHandler.RecordsHandler)      // GET - stored records

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}
