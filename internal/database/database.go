package database

import (
	"context"

	"heartline/internal/models"

	"github.com/google/uuid"
)

// ConversationStore persists one conversation per unordered pair of users.
//
// Absent conversations and messages are reported as *utils.AppError with
// code utils.ErrNotFound; storage failures use utils.ErrDatabase.
type ConversationStore interface {
	// FindByPair is a pure read.
	FindByPair(ctx context.Context, userA, userB uuid.UUID) (*models.Conversation, error)
	// CreateIfAbsent is an atomic find-or-create keyed by the normalized pair.
	// The result carries no message history; FindByPair loads it.
	CreateIfAbsent(ctx context.Context, userA, userB uuid.UUID) (*models.Conversation, error)
	// AppendMessage stores a new unread message and appends it to conv.
	AppendMessage(ctx context.Context, conv *models.Conversation, senderID uuid.UUID, text string) (*models.Message, error)
	// MarkAllReadForViewer flips isRead on every message not sent by viewerID.
	// It is idempotent and also updates conv in place.
	MarkAllReadForViewer(ctx context.Context, conv *models.Conversation, viewerID uuid.UUID) error
	// MarkOneRead flips isRead on a single message of conv.
	MarkOneRead(ctx context.Context, conv *models.Conversation, messageID uuid.UUID) error
	// ListForUser returns every conversation userID participates in.
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.Conversation, error)
}

// RelationshipStore owns like/accept/reject records between users.
type RelationshipStore interface {
	// IsAccepted reports whether an accepted connection exists for {a, b} in either direction.
	IsAccepted(ctx context.Context, a, b uuid.UUID) (bool, error)
	SendRequest(ctx context.Context, fromID, toID uuid.UUID, status models.ConnectionStatus) (*models.Connection, error)
	ReviewRequest(ctx context.Context, reviewerID, fromID uuid.UUID, status models.ConnectionStatus) (*models.Connection, error)
	ListAccepted(ctx context.Context, userID uuid.UUID) ([]*models.Connection, error)
}

// DBAdapter is a backend that provides both stores.
type DBAdapter interface {
	ConversationStore
	RelationshipStore
	Close(ctx context.Context) error
}
