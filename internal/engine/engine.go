// Package engine coordinates the messaging core: the per-pair conversation
// actors, the relationship check, and the message pipeline.
package engine

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"heartline/internal/database"
	"heartline/internal/engine/actors"
	"heartline/internal/models"
	"heartline/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
)

// Engine is the entry point into the conversation actors.
type Engine struct {
	root          *actor.RootContext
	supervisor    *actor.PID
	conversations database.ConversationStore
	relationships database.RelationshipStore
	metrics       *utils.MetricsCollector
	logger        *slog.Logger
	timeout       time.Duration
}

// NewEngine spawns the conversation supervisor on system.
func NewEngine(
	system *actor.ActorSystem,
	conversations database.ConversationStore,
	relationships database.RelationshipStore,
	metrics *utils.MetricsCollector,
	logger *slog.Logger,
	timeout time.Duration,
) *Engine {
	props := actor.PropsFromProducer(func() actor.Actor {
		return actors.NewConversationSupervisor(conversations, metrics, logger, timeout)
	})
	supervisor := system.Root.Spawn(props)

	return &Engine{
		root:          system.Root,
		supervisor:    supervisor,
		conversations: conversations,
		relationships: relationships,
		metrics:       metrics,
		logger:        logger,
		timeout:       timeout,
	}
}

// Stop stops the supervisor and its per-pair actors.
func (e *Engine) Stop() {
	if err := e.root.StopFuture(e.supervisor).Wait(); err != nil {
		e.logger.Warn("conversation supervisor did not stop cleanly", "err", err)
	}
}

// request sends msg to the supervisor and unwraps the reply.
func (e *Engine) request(name string, msg interface{}) (interface{}, error) {
	result, err := e.root.RequestFuture(e.supervisor, msg, e.timeout).Result()
	if err != nil {
		e.logger.Error("actor request failed", "operation", name, "err", err)
		return nil, utils.NewActorTimeoutError(name, err)
	}
	if appErr, ok := result.(*utils.AppError); ok {
		return nil, appErr
	}
	return result, nil
}

func validUserID(id uuid.UUID) bool {
	return id != uuid.Nil
}

// Append creates the pair's conversation if needed and stores text as a new
// message from senderID. Authorization is the caller's job.
func (e *Engine) Append(senderID, receiverID uuid.UUID, text string) (*actors.SendMessageResult, error) {
	result, err := e.request("send_message", &actors.SendMessageMsg{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       text,
	})
	if err != nil {
		return nil, err
	}
	return result.(*actors.SendMessageResult), nil
}

// FetchAndMarkRead returns the conversation between viewerID and otherID and
// marks every message the viewer did not send as read. When the pair has no
// conversation an empty, unsaved one is returned.
func (e *Engine) FetchAndMarkRead(viewerID, otherID uuid.UUID) (*models.Conversation, error) {
	if !validUserID(viewerID) || !validUserID(otherID) {
		return nil, utils.NewValidationError("Invalid user id")
	}

	result, err := e.request("fetch_conversation", &actors.FetchConversationMsg{
		ViewerID: viewerID,
		OtherID:  otherID,
	})
	if err != nil {
		return nil, err
	}
	return result.(*models.Conversation), nil
}

// MarkMessageRead marks one message of the viewer's conversation with otherID.
func (e *Engine) MarkMessageRead(viewerID, otherID, messageID uuid.UUID) error {
	if !validUserID(viewerID) || !validUserID(otherID) {
		return utils.NewValidationError("Invalid user id")
	}
	if messageID == uuid.Nil {
		return utils.NewValidationError("Invalid message id")
	}

	_, err := e.request("mark_read", &actors.MarkMessageReadMsg{
		ViewerID:  viewerID,
		OtherID:   otherID,
		MessageID: messageID,
	})
	return err
}

// ConnectionSummary is one entry of a user's chat list.
type ConnectionSummary struct {
	UserID      uuid.UUID          `json:"userId"`
	Connection  *models.Connection `json:"connection"`
	LastMessage *models.Message    `json:"lastMessage"`
	UnreadCount int                `json:"unreadCount"`
}

func (s *ConnectionSummary) activity() time.Time {
	if s.LastMessage != nil {
		return s.LastMessage.CreatedAt
	}
	return s.Connection.CreatedAt
}

// ConnectionSummaries lists the viewer's accepted connections with the last
// message and unread count of each, most recent activity first. It never
// marks anything read.
func (e *Engine) ConnectionSummaries(ctx context.Context, viewerID uuid.UUID) ([]*ConnectionSummary, error) {
	startTime := time.Now()
	if !validUserID(viewerID) {
		return nil, utils.NewValidationError("Invalid user id")
	}

	connections, err := e.relationships.ListAccepted(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	conversations, err := e.conversations.ListForUser(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	byPair := make(map[string]*models.Conversation, len(conversations))
	for _, conv := range conversations {
		byPair[conv.Pair().Key()] = conv
	}

	summaries := make([]*ConnectionSummary, 0, len(connections))
	for _, conn := range connections {
		summary := &ConnectionSummary{
			UserID:     conn.Other(viewerID),
			Connection: conn,
		}
		if conv, ok := byPair[conn.Pair().Key()]; ok {
			summary.LastMessage = conv.LastMessage()
			summary.UnreadCount = conv.UnreadCount(viewerID)
		}
		summaries = append(summaries, summary)
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].activity().After(summaries[j].activity())
	})

	e.metrics.AddOperationLatency("connection_summaries", time.Since(startTime))
	return summaries, nil
}
