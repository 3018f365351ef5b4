package handlers

import (
	"net/http"

	"heartline/internal/api"
	"heartline/internal/utils"

	"github.com/google/uuid"
)

func parsePathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, utils.NewValidationError("Invalid " + name)
	}
	return id, nil
}

// HandleGetConversation returns the caller's conversation with
// receiverUserId. Messages the caller did not send are marked read.
func (s *Server) HandleGetConversation() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewerID, ok := s.currentUser(w, r)
		if !ok {
			return
		}
		otherID, err := parsePathID(r, "receiverUserId")
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		conv, err := s.Engine.FetchAndMarkRead(viewerID, otherID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, api.OK("Chat fetched successfully", conv))
	}
}

// HandleMarkAsRead marks one message of the conversation with senderUserId.
func (s *Server) HandleMarkAsRead() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewerID, ok := s.currentUser(w, r)
		if !ok {
			return
		}
		senderID, err := parsePathID(r, "senderUserId")
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		messageID, err := parsePathID(r, "messageId")
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		if err := s.Engine.MarkMessageRead(viewerID, senderID, messageID); err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, api.OK("Message marked as read", nil))
	}
}
