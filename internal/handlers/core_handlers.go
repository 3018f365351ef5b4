package handlers

import (
	"net/http"
	"time"

	"heartline/internal/api"
)

// HandleHealth handles health check requests
func (s *Server) HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, api.OK("ok", map[string]interface{}{
			"onlineUsers": len(s.Hub.OnlineUsers()),
			"uptime":      s.Metrics.Uptime().Round(time.Second).String(),
		}))
	}
}

// HandleUnknownRoute answers paths and methods no route matches.
func (s *Server) HandleUnknownRoute() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Metrics.IncrementErrors()
		writeJSON(w, http.StatusBadRequest, api.Fail("Route not found"))
	}
}
