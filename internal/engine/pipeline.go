package engine

import (
	"context"
	"html"
	"log/slog"
	"strings"
	"time"

	"heartline/internal/database"
	"heartline/internal/models"
	"heartline/internal/utils"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
)

// State is the stage a send attempt reached.
type State int

const (
	StateValidating State = iota
	StateAuthorized
	StatePersisted
	StateNotified
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateValidating:
		return "validating"
	case StateAuthorized:
		return "authorized"
	case StatePersisted:
		return "persisted"
	case StateNotified:
		return "notified"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// LastMessageUpdate is delivered to the receiver of a new message.
type LastMessageUpdate struct {
	ConversationID uuid.UUID       `json:"conversationId"`
	Message        *models.Message `json:"message"`
}

// Notifier delivers live updates to a user's personal channel.
type Notifier interface {
	NotifyLastMessage(receiverID uuid.UUID, update *LastMessageUpdate) error
}

type SendRequest struct {
	SenderID   uuid.UUID
	ReceiverID uuid.UUID
	Text       string
}

type SendResult struct {
	State          State
	ConversationID uuid.UUID
	Message        *models.Message
}

// Pipeline runs a send attempt through validation, the relationship check,
// persistence and notification. It never retries.
type Pipeline struct {
	relationships database.RelationshipStore
	engine        *Engine
	notifier      Notifier
	policy        *bluemonday.Policy
	metrics       *utils.MetricsCollector
	logger        *slog.Logger
}

func NewPipeline(relationships database.RelationshipStore, engine *Engine, notifier Notifier, metrics *utils.MetricsCollector, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		relationships: relationships,
		engine:        engine,
		notifier:      notifier,
		policy:        bluemonday.StrictPolicy(),
		metrics:       metrics,
		logger:        logger,
	}
}

// SetNotifier replaces the notifier. The gateway and the pipeline refer to
// each other, so one of them is wired after construction.
func (p *Pipeline) SetNotifier(n Notifier) {
	p.notifier = n
}

// sanitize strips markup and surrounding whitespace from message text.
func (p *Pipeline) sanitize(text string) string {
	return strings.TrimSpace(html.UnescapeString(p.policy.Sanitize(text)))
}

func (p *Pipeline) reject(req SendRequest, err error) (*SendResult, error) {
	p.metrics.IncrementErrors()
	p.logger.Info("message rejected", "senderID", req.SenderID, "receiverID", req.ReceiverID, "err", err)
	return &SendResult{State: StateRejected}, err
}

// Send validates and stores one message and notifies the receiver. Any
// failure before persistence leaves no conversation or message behind.
func (p *Pipeline) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	startTime := time.Now()
	p.metrics.IncrementRequests()

	// Validating
	if req.SenderID == uuid.Nil || req.ReceiverID == uuid.Nil {
		return p.reject(req, utils.NewValidationError("userId and receiverId are required"))
	}
	if req.SenderID == req.ReceiverID {
		return p.reject(req, utils.NewValidationError("Cannot send a message to yourself"))
	}
	text := p.sanitize(req.Text)
	if text == "" {
		return p.reject(req, utils.NewValidationError("Message text is required"))
	}

	// Authorized
	accepted, err := p.relationships.IsAccepted(ctx, req.SenderID, req.ReceiverID)
	if err != nil {
		return p.reject(req, err)
	}
	if !accepted {
		return p.reject(req, utils.NewAppError(utils.ErrNoConnection, "no accepted connection", nil))
	}

	// Persisted
	sent, err := p.engine.Append(req.SenderID, req.ReceiverID, text)
	if err != nil {
		return p.reject(req, err)
	}
	result := &SendResult{
		State:          StatePersisted,
		ConversationID: sent.ConversationID,
		Message:        sent.Message,
	}

	// Notified. The message is already durable; a failed live delivery is
	// picked up by the receiver on the next fetch.
	if p.notifier != nil {
		update := &LastMessageUpdate{ConversationID: sent.ConversationID, Message: sent.Message}
		if err := p.notifier.NotifyLastMessage(req.ReceiverID, update); err != nil {
			p.logger.Warn("failed to notify receiver", "receiverID", req.ReceiverID, "messageID", sent.Message.ID, "err", err)
		} else {
			result.State = StateNotified
		}
	}

	p.metrics.AddOperationLatency("pipeline_send", time.Since(startTime))
	return result, nil
}
