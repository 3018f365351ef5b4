package websocket

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Event names on the wire.
const (
	// client -> server
	EventUserOnline       = "userOnline"
	EventJoinChatRoom     = "joinChatRoom"
	EventJoinReceiverRoom = "joinReceiverRoom"
	EventSendMessage      = "sendMessage"
	EventLeaveRoom        = "leaveRoom"

	// server -> client
	EventUsersOnline        = "usersOnline"
	EventLastMessageUpdated = "lastMessageUpdated"
	EventError              = "error"
)

// Envelope is one websocket frame.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type UserOnlinePayload struct {
	UserID uuid.UUID `json:"userId"`
}

type JoinChatRoomPayload struct {
	UserID     uuid.UUID `json:"userId"`
	ReceiverID uuid.UUID `json:"receiverId"`
}

type JoinReceiverRoomPayload struct {
	ReceiverID uuid.UUID `json:"receiverId"`
}

type SendMessagePayload struct {
	UserID     uuid.UUID `json:"userId"`
	ReceiverID uuid.UUID `json:"receiverId"`
	Text       string    `json:"text"`
}

type LeaveRoomPayload struct {
	RoomID string `json:"roomId"`
}

// ErrorPayload is sent only to the connection whose event failed.
type ErrorPayload struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// Encode builds a frame for event with data as its payload.
func Encode(event string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}
