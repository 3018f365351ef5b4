package handlers

import (
	"net/http"

	"heartline/internal/api"

	ws "github.com/gorilla/websocket"
)

// HandleWebSocket authenticates the caller from the token query parameter
// or the Authorization header and upgrades the connection.
func (s *Server) HandleWebSocket() http.HandlerFunc {
	upgrader := ws.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.CORS.OriginAllowed(origin)
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.Auth.Authenticate(r)
		if err != nil {
			s.Logger.Info("websocket connection refused", "err", err)
			writeJSON(w, http.StatusUnauthorized, api.Fail("Unauthorized"))
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already written the HTTP error
			s.Logger.Warn("websocket upgrade failed", "userID", userID, "err", err)
			return
		}

		s.Hub.Connect(userID, conn)
		s.Logger.Info("websocket connected", "userID", userID)
	}
}
