package handlers

import (
	"net/http"

	"heartline/internal/api"
	"heartline/internal/models"
)

// HandleSendRequest records the caller's interest in toUserId.
func (s *Server) HandleSendRequest() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fromID, ok := s.currentUser(w, r)
		if !ok {
			return
		}
		toID, err := parsePathID(r, "toUserId")
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		status := models.ConnectionStatus(r.PathValue("status"))
		conn, err := s.Relationships.SendRequest(r.Context(), fromID, toID, status)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.Logger.Info("connection request sent", "fromUserID", fromID, "toUserID", toID)
		writeJSON(w, http.StatusOK, api.OK("Connection request sent successfully", conn))
	}
}

// HandleReviewRequest accepts or rejects a pending request from fromUserId.
func (s *Server) HandleReviewRequest() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reviewerID, ok := s.currentUser(w, r)
		if !ok {
			return
		}
		fromID, err := parsePathID(r, "fromUserId")
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		status := models.ConnectionStatus(r.PathValue("status"))
		conn, err := s.Relationships.ReviewRequest(r.Context(), reviewerID, fromID, status)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.Logger.Info("connection request reviewed", "reviewerID", reviewerID, "fromUserID", fromID, "status", status)
		writeJSON(w, http.StatusOK, api.OK("Connection request "+string(status), conn))
	}
}

// HandleConnections lists the caller's accepted connections with their
// last message and unread count.
func (s *Server) HandleConnections() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := s.currentUser(w, r)
		if !ok {
			return
		}

		summaries, err := s.Engine.ConnectionSummaries(r.Context(), userID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, api.OK("Connections fetched successfully", summaries))
	}
}
