package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"heartline/internal/engine"
	"heartline/internal/presence"
	"heartline/internal/rooms"
	"heartline/internal/utils"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// MessageSender runs a send attempt through the message pipeline.
type MessageSender interface {
	Send(ctx context.Context, req engine.SendRequest) (*engine.SendResult, error)
}

// Hub maintains the set of active clients, their presence and room
// membership, and dispatches inbound events.
type Hub struct {
	// Connected clients.
	clients map[*Client]struct{}

	// Register requests from the clients.
	Register chan *Client

	// Unregister requests from clients.
	Unregister chan *Client

	// Mutex to protect concurrent access to the clients map.
	mu sync.RWMutex

	presence *presence.Map[*Client]
	rooms    *rooms.Manager[*Client]
	sender   MessageSender
	relay    *Relay
	metrics  *utils.MetricsCollector
	logger   *slog.Logger
	timeout  time.Duration

	stopped chan struct{}
}

func NewHub(sender MessageSender, metrics *utils.MetricsCollector, logger *slog.Logger, timeout time.Duration) *Hub {
	h := &Hub{
		clients:    make(map[*Client]struct{}),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		rooms:      rooms.NewManager[*Client](rooms.DefaultNamer()),
		sender:     sender,
		metrics:    metrics,
		logger:     logger,
		timeout:    timeout,
		stopped:    make(chan struct{}),
	}
	h.presence = presence.NewMap[*Client](h.onPresenceChange)
	return h
}

// SetRelay routes room frames through r so every instance sharing the relay
// delivers them to its own members.
func (h *Hub) SetRelay(r *Relay) {
	h.relay = r
}

// Run starts the hub's processing loop. It returns when ctx is done, after
// closing every client.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("websocket hub started")
	defer close(h.stopped)
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("websocket client registered", "userID", client.UserID, "connections", total)

		case client := <-h.Unregister:
			h.cleanup(client)

		case <-ctx.Done():
			h.mu.Lock()
			remaining := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				remaining = append(remaining, client)
			}
			h.mu.Unlock()
			for _, client := range remaining {
				h.cleanup(client)
			}
			h.logger.Info("websocket hub stopped")
			return
		}
	}
}

// Connect registers a freshly upgraded connection and starts its pumps.
func (h *Hub) Connect(userID uuid.UUID, conn *websocket.Conn) *Client {
	client := NewClient(h, userID, conn)
	select {
	case h.Register <- client:
	case <-h.stopped:
		client.close()
	}
	go client.WritePump()
	go client.ReadPump()
	return client
}

func (h *Hub) unregister(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.stopped:
		h.cleanup(c)
	}
}

// cleanup drops every trace of c: connection entry, presence, rooms.
func (h *Hub) cleanup(c *Client) {
	h.mu.Lock()
	_, known := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	h.presence.Unregister(c)
	left := h.rooms.LeaveAll(c)
	c.close()

	if known {
		h.logger.Info("websocket client unregistered", "userID", c.UserID, "roomsLeft", len(left))
	}
}

// broadcast enqueues message for every connected client. Presence calls it
// one snapshot at a time, so each client sees usersOnline in order.
func (h *Hub) broadcast(message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		client.enqueue(message)
	}
}

func (h *Hub) onPresenceChange(online []uuid.UUID) {
	h.metrics.SetOnlineUsers(len(online))
	frame, err := Encode(EventUsersOnline, online)
	if err != nil {
		h.logger.Error("failed to encode online users", "err", err)
		return
	}
	h.broadcast(frame)
}

// OnlineUsers returns the users currently online on this instance.
func (h *Hub) OnlineUsers() []uuid.UUID {
	return h.presence.ListOnline()
}

// EmitToRoom sends frame to every member of room, through the relay when
// one is configured.
func (h *Hub) EmitToRoom(room rooms.ID, frame []byte) error {
	if h.relay != nil {
		return h.relay.Publish(room, frame)
	}
	h.deliverLocal(room, frame)
	return nil
}

// deliverLocal sends frame to the members of room connected to this instance.
func (h *Hub) deliverLocal(room rooms.ID, frame []byte) {
	for _, member := range h.rooms.Members(room) {
		member.enqueue(frame)
	}
}

// NotifyLastMessage emits lastMessageUpdated to the receiver's personal room.
func (h *Hub) NotifyLastMessage(receiverID uuid.UUID, update *engine.LastMessageUpdate) error {
	frame, err := Encode(EventLastMessageUpdated, update)
	if err != nil {
		return err
	}
	return h.EmitToRoom(h.rooms.Namer().Personal(receiverID), frame)
}

// emitError sends an error event to c only.
func (h *Hub) emitError(c *Client, message string, err error) {
	frame, encErr := Encode(EventError, ErrorPayload{Message: message, Error: utils.PublicMessage(err)})
	if encErr != nil {
		h.logger.Error("failed to encode error event", "err", encErr)
		return
	}
	c.enqueue(frame)
}

func channelError(format string, args ...interface{}) *utils.AppError {
	return utils.NewAppError(utils.ErrChannel, fmt.Sprintf(format, args...), nil)
}

// dispatch handles one inbound frame. Failures stay with the originating
// connection.
func (h *Hub) dispatch(c *Client, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("panic handling websocket event", "userID", c.UserID, "panic", r)
			h.metrics.IncrementErrors()
			h.emitError(c, "Something went wrong", errors.New("panic"))
		}
	}()
	h.metrics.IncrementRequests()

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
		h.logger.Warn("malformed websocket frame", "userID", c.UserID, "err", err)
		h.emitError(c, "Invalid event", channelError("Malformed event"))
		return
	}

	switch env.Event {
	case EventUserOnline:
		h.handleUserOnline(c, env.Data)
	case EventJoinChatRoom:
		h.handleJoinChatRoom(c, env.Data)
	case EventJoinReceiverRoom:
		h.handleJoinReceiverRoom(c, env.Data)
	case EventSendMessage:
		h.handleSendMessage(c, env.Data)
	case EventLeaveRoom:
		h.handleLeaveRoom(c, env.Data)
	default:
		h.logger.Warn("unknown websocket event", "userID", c.UserID, "event", env.Event)
		h.emitError(c, "Invalid event", channelError("Unknown event %q", env.Event))
	}
}

func decode(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return channelError("Missing event data")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return channelError("Malformed event data")
	}
	return nil
}

// Presence events with bad payloads are logged and ignored.
func (h *Hub) handleUserOnline(c *Client, data json.RawMessage) {
	var p UserOnlinePayload
	if err := decode(data, &p); err != nil || p.UserID == uuid.Nil {
		h.logger.Warn("userOnline without a valid userId", "connUserID", c.UserID)
		return
	}
	if p.UserID != c.UserID {
		h.logger.Warn("userOnline for another user ignored", "connUserID", c.UserID, "userID", p.UserID)
		return
	}
	h.presence.Register(c.UserID, c)
}

func (h *Hub) handleJoinChatRoom(c *Client, data json.RawMessage) {
	var p JoinChatRoomPayload
	if err := decode(data, &p); err != nil {
		h.emitError(c, "Failed to join room", err)
		return
	}
	if p.UserID == uuid.Nil || p.ReceiverID == uuid.Nil {
		h.emitError(c, "Failed to join room", utils.NewValidationError("userId and receiverId are required"))
		return
	}
	if p.UserID != c.UserID {
		h.emitError(c, "Failed to join room", utils.NewUnauthorizedError("userId does not match connection"))
		return
	}
	room := h.rooms.JoinPair(c, p.UserID, p.ReceiverID)
	h.logger.Debug("joined chat room", "userID", c.UserID, "room", room)
}

func (h *Hub) handleJoinReceiverRoom(c *Client, data json.RawMessage) {
	var p JoinReceiverRoomPayload
	if err := decode(data, &p); err != nil {
		h.emitError(c, "Failed to join room", err)
		return
	}
	if p.ReceiverID == uuid.Nil {
		h.emitError(c, "Failed to join room", utils.NewValidationError("receiverId is required"))
		return
	}
	if p.ReceiverID != c.UserID {
		h.emitError(c, "Failed to join room", utils.NewUnauthorizedError("cannot join another user's room"))
		return
	}
	room := h.rooms.JoinPersonal(c, p.ReceiverID)
	h.logger.Debug("joined personal room", "userID", c.UserID, "room", room)
}

func (h *Hub) handleSendMessage(c *Client, data json.RawMessage) {
	var p SendMessagePayload
	if err := decode(data, &p); err != nil {
		h.emitError(c, "Failed to send message", err)
		return
	}
	if p.UserID != uuid.Nil && p.UserID != c.UserID {
		h.emitError(c, "Failed to send message", utils.NewUnauthorizedError("userId does not match connection"))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	result, err := h.sender.Send(ctx, engine.SendRequest{
		SenderID:   p.UserID,
		ReceiverID: p.ReceiverID,
		Text:       p.Text,
	})
	if err != nil {
		h.emitError(c, "Failed to send message", err)
		return
	}
	h.logger.Debug("message sent", "userID", c.UserID, "receiverID", p.ReceiverID, "state", result.State.String())
}

func (h *Hub) handleLeaveRoom(c *Client, data json.RawMessage) {
	var p LeaveRoomPayload
	if err := decode(data, &p); err != nil {
		h.emitError(c, "Failed to leave room", err)
		return
	}
	if p.RoomID == "" {
		h.emitError(c, "Failed to leave room", utils.NewValidationError("roomId is required"))
		return
	}
	h.rooms.Leave(c, rooms.ID(p.RoomID))
}
