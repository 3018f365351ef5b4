// internal/database/postgres.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"heartline/internal/models"
	"heartline/internal/utils"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// PostgresDB represents a PostgreSQL database connection
type PostgresDB struct {
	DB     *sqlx.DB
	logger *slog.Logger
}

type conversationRow struct {
	ID        uuid.UUID `db:"id"`
	UserLow   uuid.UUID `db:"user_low"`
	UserHigh  uuid.UUID `db:"user_high"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r conversationRow) toModel(messages []*models.Message) *models.Conversation {
	if messages == nil {
		messages = make([]*models.Message, 0)
	}
	return &models.Conversation{
		ID:           r.ID,
		Participants: []uuid.UUID{r.UserLow, r.UserHigh},
		Messages:     messages,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

type messageRow struct {
	ConversationID uuid.UUID `db:"conversation_id"`
	models.Message
}

// NewPostgresDB creates a new PostgreSQL database connection
func NewPostgresDB(connectionString string, logger *slog.Logger) (*PostgresDB, error) {
	db, err := sqlx.Connect("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	logger.Info("connected to PostgreSQL")

	return NewPostgresDBFromConn(db, logger), nil
}

// NewPostgresDBFromConn wraps an existing connection.
func NewPostgresDBFromConn(db *sqlx.DB, logger *slog.Logger) *PostgresDB {
	return &PostgresDB{DB: db, logger: logger}
}

// Close closes the database connection
func (p *PostgresDB) Close(ctx context.Context) error {
	p.logger.Info("closing PostgreSQL connection")
	return p.DB.Close()
}

// InitializeTables creates all necessary tables if they don't exist
func (p *PostgresDB) InitializeTables(ctx context.Context) error {
	statements := []struct {
		name string
		sql  string
	}{
		{"connections", `
		CREATE TABLE IF NOT EXISTS connections (
			id UUID PRIMARY KEY,
			from_user_id UUID NOT NULL,
			to_user_id UUID NOT NULL,
			status VARCHAR(20) NOT NULL CHECK (status IN ('interested', 'accepted', 'rejected')),
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			CHECK (from_user_id <> to_user_id)
		)`},
		{"connections pair index", `
		CREATE UNIQUE INDEX IF NOT EXISTS connections_pair_idx
			ON connections (LEAST(from_user_id, to_user_id), GREATEST(from_user_id, to_user_id))`},
		{"conversations", `
		CREATE TABLE IF NOT EXISTS conversations (
			id UUID PRIMARY KEY,
			user_low UUID NOT NULL,
			user_high UUID NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			UNIQUE (user_low, user_high)
		)`},
		{"chat_messages", `
		CREATE TABLE IF NOT EXISTS chat_messages (
			seq BIGSERIAL PRIMARY KEY,
			id UUID UNIQUE NOT NULL,
			conversation_id UUID NOT NULL REFERENCES conversations(id),
			sender_id UUID NOT NULL,
			text TEXT NOT NULL,
			is_read BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`},
		{"chat_messages index", `
		CREATE INDEX IF NOT EXISTS chat_messages_conversation_idx
			ON chat_messages (conversation_id, seq)`},
	}

	for _, stmt := range statements {
		if _, err := p.DB.ExecContext(ctx, stmt.sql); err != nil {
			return fmt.Errorf("failed to create %s: %w", stmt.name, err)
		}
	}
	return nil
}

// --- Conversation Methods ---

func (p *PostgresDB) loadMessages(ctx context.Context, row conversationRow) (*models.Conversation, error) {
	query := `
		SELECT id, sender_id, text, is_read, created_at
		FROM chat_messages
		WHERE conversation_id = $1
		ORDER BY seq ASC
	`
	var messages []*models.Message
	if err := p.DB.SelectContext(ctx, &messages, query, row.ID); err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query conversation messages", err)
	}
	return row.toModel(messages), nil
}

// FindByPair fetches the conversation of two users together with its messages.
func (p *PostgresDB) FindByPair(ctx context.Context, userA, userB uuid.UUID) (*models.Conversation, error) {
	pair := models.NewPair(userA, userB)
	query := `SELECT id, user_low, user_high, created_at, updated_at FROM conversations WHERE user_low = $1 AND user_high = $2`

	var row conversationRow
	err := p.DB.GetContext(ctx, &row, query, pair.Low, pair.High)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, utils.NewAppError(utils.ErrNotFound, "conversation not found", err)
		}
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query conversation", err)
	}
	return p.loadMessages(ctx, row)
}

// CreateIfAbsent upserts the conversation row for the pair in one statement.
// The no-op update on conflict lets RETURNING yield the existing row. Messages
// are not loaded.
func (p *PostgresDB) CreateIfAbsent(ctx context.Context, userA, userB uuid.UUID) (*models.Conversation, error) {
	pair := models.NewPair(userA, userB)
	query := `
		INSERT INTO conversations (id, user_low, user_high, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (user_low, user_high) DO UPDATE SET user_low = EXCLUDED.user_low
		RETURNING id, user_low, user_high, created_at, updated_at
	`
	now := time.Now().UTC().Truncate(time.Microsecond)

	var row conversationRow
	if err := p.DB.GetContext(ctx, &row, query, uuid.New(), pair.Low, pair.High, now); err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to upsert conversation", err)
	}
	return row.toModel(nil), nil
}

// AppendMessage inserts a new unread message and bumps the conversation.
func (p *PostgresDB) AppendMessage(ctx context.Context, conv *models.Conversation, senderID uuid.UUID, text string) (*models.Message, error) {
	msg := &models.Message{
		ID:        uuid.New(),
		SenderID:  senderID,
		Text:      text,
		IsRead:    false,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}

	tx, err := p.DB.BeginTxx(ctx, nil)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `UPDATE conversations SET updated_at = $1 WHERE id = $2`, msg.CreatedAt, conv.ID)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to update conversation", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return nil, utils.NewNotFoundError("conversation not found")
	}

	insert := `
		INSERT INTO chat_messages (id, conversation_id, sender_id, text, is_read, created_at)
		VALUES ($1, $2, $3, $4, FALSE, $5)
	`
	if _, err := tx.ExecContext(ctx, insert, msg.ID, conv.ID, msg.SenderID, msg.Text, msg.CreatedAt); err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to save message", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to commit message", err)
	}

	cp := *msg
	conv.Messages = append(conv.Messages, &cp)
	conv.UpdatedAt = msg.CreatedAt
	return msg, nil
}

func (p *PostgresDB) MarkAllReadForViewer(ctx context.Context, conv *models.Conversation, viewerID uuid.UUID) error {
	query := `UPDATE chat_messages SET is_read = TRUE WHERE conversation_id = $1 AND sender_id <> $2 AND is_read = FALSE`
	result, err := p.DB.ExecContext(ctx, query, conv.ID, viewerID)
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to mark messages as read", err)
	}
	rows, _ := result.RowsAffected()
	p.logger.Debug("marked conversation read", "conversationID", conv.ID, "viewerID", viewerID, "rows", rows)

	conv.MarkAllReadFor(viewerID)
	return nil
}

func (p *PostgresDB) MarkOneRead(ctx context.Context, conv *models.Conversation, messageID uuid.UUID) error {
	query := `UPDATE chat_messages SET is_read = TRUE WHERE conversation_id = $1 AND id = $2`
	result, err := p.DB.ExecContext(ctx, query, conv.ID, messageID)
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to mark message as read", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to get rows affected after update", err)
	}
	if rows == 0 {
		return utils.NewNotFoundError("message not found")
	}
	if msg := conv.FindMessage(messageID); msg != nil {
		msg.IsRead = true
	}
	return nil
}

func (p *PostgresDB) ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.Conversation, error) {
	query := `
		SELECT id, user_low, user_high, created_at, updated_at
		FROM conversations
		WHERE user_low = $1 OR user_high = $1
		ORDER BY updated_at DESC
	`
	var rows []conversationRow
	if err := p.DB.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query user conversations", err)
	}
	if len(rows) == 0 {
		return make([]*models.Conversation, 0), nil
	}

	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID.String()
	}

	messagesQuery := `
		SELECT conversation_id, id, sender_id, text, is_read, created_at
		FROM chat_messages
		WHERE conversation_id = ANY($1::uuid[])
		ORDER BY seq ASC
	`
	var messageRows []messageRow
	if err := p.DB.SelectContext(ctx, &messageRows, messagesQuery, pq.Array(ids)); err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query user conversation messages", err)
	}

	byConversation := make(map[uuid.UUID][]*models.Message, len(rows))
	for i := range messageRows {
		msg := messageRows[i].Message
		byConversation[messageRows[i].ConversationID] = append(byConversation[messageRows[i].ConversationID], &msg)
	}

	out := make([]*models.Conversation, len(rows))
	for i, row := range rows {
		out[i] = row.toModel(byConversation[row.ID])
	}
	return out, nil
}

// --- Relationship Methods ---

func (p *PostgresDB) IsAccepted(ctx context.Context, a, b uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM connections
			WHERE ((from_user_id = $1 AND to_user_id = $2) OR (from_user_id = $2 AND to_user_id = $1))
				AND status = 'accepted'
		)
	`
	var exists bool
	if err := p.DB.GetContext(ctx, &exists, query, a, b); err != nil {
		return false, utils.NewAppError(utils.ErrDatabase, "failed to query connection", err)
	}
	return exists, nil
}

func (p *PostgresDB) SendRequest(ctx context.Context, fromID, toID uuid.UUID, status models.ConnectionStatus) (*models.Connection, error) {
	if err := validateSendRequest(fromID, toID, status); err != nil {
		return nil, err
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	conn := &models.Connection{
		ID:         uuid.New(),
		FromUserID: fromID,
		ToUserID:   toID,
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	query := `
		INSERT INTO connections (id, from_user_id, to_user_id, status, created_at, updated_at)
		VALUES (:id, :from_user_id, :to_user_id, :status, :created_at, :updated_at)
	`
	if _, err := p.DB.NamedExecContext(ctx, query, conn); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return nil, utils.NewAppError(utils.ErrDuplicate, "Connection request already exist", err)
		}
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to save connection request", err)
	}
	return conn, nil
}

func (p *PostgresDB) ReviewRequest(ctx context.Context, reviewerID, fromID uuid.UUID, status models.ConnectionStatus) (*models.Connection, error) {
	if err := validateReviewRequest(reviewerID, fromID, status); err != nil {
		return nil, err
	}

	query := `
		UPDATE connections SET status = $1, updated_at = NOW()
		WHERE from_user_id = $2 AND to_user_id = $3 AND status = 'interested'
		RETURNING id, from_user_id, to_user_id, status, created_at, updated_at
	`
	var conn models.Connection
	if err := p.DB.GetContext(ctx, &conn, query, status, fromID, reviewerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, utils.NewAppError(utils.ErrNotFound, "Connection request not found", err)
		}
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to review connection request", err)
	}
	return &conn, nil
}

func (p *PostgresDB) ListAccepted(ctx context.Context, userID uuid.UUID) ([]*models.Connection, error) {
	query := `
		SELECT id, from_user_id, to_user_id, status, created_at, updated_at
		FROM connections
		WHERE (from_user_id = $1 OR to_user_id = $1) AND status = 'accepted'
		ORDER BY created_at ASC
	`
	connections := []*models.Connection{}
	if err := p.DB.SelectContext(ctx, &connections, query, userID); err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query connections", err)
	}
	return connections, nil
}
