package actors

import (
	"context"
	"log/slog"
	"time"

	"heartline/internal/database"
	"heartline/internal/models"
	"heartline/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
)

// Message types for the conversation actors. Each one names the pair of
// users it touches so the supervisor can route it.
type (
	SendMessageMsg struct {
		SenderID   uuid.UUID `json:"senderId"`
		ReceiverID uuid.UUID `json:"receiverId"`
		Text       string    `json:"text"`
	}

	// FetchConversationMsg reads the pair's conversation and marks every
	// message not sent by ViewerID as read.
	FetchConversationMsg struct {
		ViewerID uuid.UUID `json:"viewerId"`
		OtherID  uuid.UUID `json:"otherId"`
	}

	MarkMessageReadMsg struct {
		ViewerID  uuid.UUID `json:"viewerId"`
		OtherID   uuid.UUID `json:"otherId"`
		MessageID uuid.UUID `json:"messageId"`
	}
)

func (m *SendMessageMsg) Pair() models.Pair       { return models.NewPair(m.SenderID, m.ReceiverID) }
func (m *FetchConversationMsg) Pair() models.Pair { return models.NewPair(m.ViewerID, m.OtherID) }
func (m *MarkMessageReadMsg) Pair() models.Pair   { return models.NewPair(m.ViewerID, m.OtherID) }

type pairMessage interface {
	Pair() models.Pair
}

// SendMessageResult is the response to SendMessageMsg.
type SendMessageResult struct {
	ConversationID uuid.UUID       `json:"conversationId"`
	Message        *models.Message `json:"message"`
}

// MarkMessageReadResult is the response to MarkMessageReadMsg.
type MarkMessageReadResult struct {
	MessageID uuid.UUID `json:"messageId"`
}

// ConversationSupervisor owns one ConversationActor per pair of users and
// forwards every pair message to it, so all mutations of a conversation are
// applied one at a time.
type ConversationSupervisor struct {
	store    database.ConversationStore
	metrics  *utils.MetricsCollector
	logger   *slog.Logger
	timeout  time.Duration
	children map[string]*actor.PID // pair key -> actor
	pairs    map[string]string     // actor id -> pair key
}

func NewConversationSupervisor(store database.ConversationStore, metrics *utils.MetricsCollector, logger *slog.Logger, timeout time.Duration) actor.Actor {
	return &ConversationSupervisor{
		store:    store,
		metrics:  metrics,
		logger:   logger,
		timeout:  timeout,
		children: make(map[string]*actor.PID),
		pairs:    make(map[string]string),
	}
}

func (s *ConversationSupervisor) Receive(context actor.Context) {
	switch msg := context.Message().(type) {
	case *actor.Started:
		s.logger.Info("conversation supervisor started", "pid", context.Self().Id)

	case *actor.Stopping:
		s.logger.Info("conversation supervisor stopping", "children", len(s.children))

	case *actor.Terminated:
		if key, ok := s.pairs[msg.Who.Id]; ok {
			delete(s.pairs, msg.Who.Id)
			delete(s.children, key)
		}

	case pairMessage:
		pid := s.childFor(context, msg.Pair())
		context.Forward(pid)
	}
}

func (s *ConversationSupervisor) childFor(context actor.Context, pair models.Pair) *actor.PID {
	key := pair.Key()
	if pid, ok := s.children[key]; ok {
		return pid
	}

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewConversationActor(pair, s.store, s.metrics, s.logger, s.timeout)
	})
	pid := context.Spawn(props)
	s.children[key] = pid
	s.pairs[pid.Id] = key
	return pid
}

// ConversationActor serializes store operations for one pair of users.
type ConversationActor struct {
	pair    models.Pair
	store   database.ConversationStore
	metrics *utils.MetricsCollector
	logger  *slog.Logger
	timeout time.Duration
}

func NewConversationActor(pair models.Pair, store database.ConversationStore, metrics *utils.MetricsCollector, logger *slog.Logger, timeout time.Duration) *ConversationActor {
	return &ConversationActor{
		pair:    pair,
		store:   store,
		metrics: metrics,
		logger:  logger.With("pair", pair.Key()),
		timeout: timeout,
	}
}

func (a *ConversationActor) Receive(context actor.Context) {
	switch msg := context.Message().(type) {
	case *SendMessageMsg:
		a.handleSendMessage(context, msg)
	case *FetchConversationMsg:
		a.handleFetchConversation(context, msg)
	case *MarkMessageReadMsg:
		a.handleMarkMessageRead(context, msg)
	}
}

func (a *ConversationActor) storeContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), a.timeout)
}

func (a *ConversationActor) handleSendMessage(context actor.Context, msg *SendMessageMsg) {
	startTime := time.Now()
	ctx, cancel := a.storeContext()
	defer cancel()

	conv, err := a.store.CreateIfAbsent(ctx, msg.SenderID, msg.ReceiverID)
	if err != nil {
		a.logger.Error("failed to create conversation", "err", err)
		context.Respond(asAppError(err, "failed to create conversation"))
		return
	}

	message, err := a.store.AppendMessage(ctx, conv, msg.SenderID, msg.Text)
	if err != nil {
		a.logger.Error("failed to append message", "conversationID", conv.ID, "err", err)
		context.Respond(asAppError(err, "failed to save message"))
		return
	}

	a.metrics.AddOperationLatency("send_message", time.Since(startTime))
	context.Respond(&SendMessageResult{ConversationID: conv.ID, Message: message})
}

func (a *ConversationActor) handleFetchConversation(context actor.Context, msg *FetchConversationMsg) {
	startTime := time.Now()
	ctx, cancel := a.storeContext()
	defer cancel()

	conv, err := a.store.FindByPair(ctx, msg.ViewerID, msg.OtherID)
	if err != nil {
		if utils.IsErrorCode(err, utils.ErrNotFound) {
			// Nothing stored yet; the empty conversation is not persisted.
			context.Respond(models.NewConversation(a.pair))
			return
		}
		a.logger.Error("failed to fetch conversation", "err", err)
		context.Respond(asAppError(err, "failed to fetch conversation"))
		return
	}

	if err := a.store.MarkAllReadForViewer(ctx, conv, msg.ViewerID); err != nil {
		a.logger.Error("failed to mark conversation read", "conversationID", conv.ID, "err", err)
		context.Respond(asAppError(err, "failed to mark messages as read"))
		return
	}

	a.metrics.AddOperationLatency("fetch_conversation", time.Since(startTime))
	context.Respond(conv)
}

func (a *ConversationActor) handleMarkMessageRead(context actor.Context, msg *MarkMessageReadMsg) {
	startTime := time.Now()
	ctx, cancel := a.storeContext()
	defer cancel()

	conv, err := a.store.FindByPair(ctx, msg.ViewerID, msg.OtherID)
	if err != nil {
		context.Respond(asAppError(err, "failed to fetch conversation"))
		return
	}

	if err := a.store.MarkOneRead(ctx, conv, msg.MessageID); err != nil {
		context.Respond(asAppError(err, "failed to mark message as read"))
		return
	}

	a.metrics.AddOperationLatency("mark_read", time.Since(startTime))
	context.Respond(&MarkMessageReadResult{MessageID: msg.MessageID})
}

func asAppError(err error, message string) *utils.AppError {
	if appErr, ok := utils.AsAppError(err); ok {
		return appErr
	}
	return utils.NewAppError(utils.ErrDatabase, message, err)
}
