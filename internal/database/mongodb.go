// internal/database/mongodb.go
package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"heartline/internal/models"
	"heartline/internal/utils"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoDB struct {
	Client        *mongo.Client
	Conversations *mongo.Collection
	Connections   *mongo.Collection
	logger        *slog.Logger
}

// MessageDocument is a message embedded in a ConversationDocument.
type MessageDocument struct {
	ID        string    `bson:"id"`
	SenderID  string    `bson:"senderId"`
	Text      string    `bson:"text"`
	IsRead    bool      `bson:"isRead"`
	CreatedAt time.Time `bson:"createdAt"`
}

// ConversationDocument represents the MongoDB document structure for a conversation
type ConversationDocument struct {
	ID           string            `bson:"_id"`
	PairKey      string            `bson:"pairKey"`
	Participants []string          `bson:"participants"`
	Messages     []MessageDocument `bson:"messages"`
	CreatedAt    time.Time         `bson:"createdAt"`
	UpdatedAt    time.Time         `bson:"updatedAt"`
}

// ConnectionDocument represents the MongoDB document structure for a connection
type ConnectionDocument struct {
	ID         string    `bson:"_id"`
	PairKey    string    `bson:"pairKey"`
	FromUserID string    `bson:"fromUserId"`
	ToUserID   string    `bson:"toUserId"`
	Status     string    `bson:"status"`
	CreatedAt  time.Time `bson:"createdAt"`
	UpdatedAt  time.Time `bson:"updatedAt"`
}

func NewMongoDB(uri, database string, logger *slog.Logger) (*MongoDB, error) {
	serverAPI := options.ServerAPI(options.ServerAPIVersion1)
	opts := options.Client().ApplyURI(uri).SetServerAPIOptions(serverAPI)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping the database to verify connection
	if err := client.Database("admin").RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	logger.Info("connected to MongoDB", "database", database)

	db := client.Database(database)
	m := &MongoDB{
		Client:        client,
		Conversations: db.Collection("conversations"),
		Connections:   db.Collection("connections"),
		logger:        logger,
	}
	if err := m.EnsureIndexes(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// EnsureIndexes creates the unique pair indexes both collections rely on.
func (m *MongoDB) EnsureIndexes(ctx context.Context) error {
	unique := mongo.IndexModel{
		Keys:    bson.D{{Key: "pairKey", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := m.Conversations.Indexes().CreateOne(ctx, unique); err != nil {
		return fmt.Errorf("failed to create conversations index: %w", err)
	}
	if _, err := m.Connections.Indexes().CreateOne(ctx, unique); err != nil {
		return fmt.Errorf("failed to create connections index: %w", err)
	}
	return nil
}

func (m *MongoDB) Close(ctx context.Context) error {
	return m.Client.Disconnect(ctx)
}

func (d ConversationDocument) toModel() *models.Conversation {
	conv := &models.Conversation{
		ID:           parseID(d.ID),
		Participants: make([]uuid.UUID, 0, len(d.Participants)),
		Messages:     make([]*models.Message, 0, len(d.Messages)),
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
	for _, p := range d.Participants {
		conv.Participants = append(conv.Participants, parseID(p))
	}
	for _, msg := range d.Messages {
		conv.Messages = append(conv.Messages, &models.Message{
			ID:        parseID(msg.ID),
			SenderID:  parseID(msg.SenderID),
			Text:      msg.Text,
			IsRead:    msg.IsRead,
			CreatedAt: msg.CreatedAt,
		})
	}
	return conv
}

func (d ConnectionDocument) toModel() *models.Connection {
	return &models.Connection{
		ID:         parseID(d.ID),
		FromUserID: parseID(d.FromUserID),
		ToUserID:   parseID(d.ToUserID),
		Status:     models.ConnectionStatus(d.Status),
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

func parseID(s string) uuid.UUID {
	id, _ := uuid.Parse(s)
	return id
}

// --- Conversation Methods ---

func (m *MongoDB) FindByPair(ctx context.Context, userA, userB uuid.UUID) (*models.Conversation, error) {
	var doc ConversationDocument
	err := m.Conversations.FindOne(ctx, bson.M{"pairKey": models.NewPair(userA, userB).Key()}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, utils.NewAppError(utils.ErrNotFound, "conversation not found", err)
		}
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query conversation", err)
	}
	return doc.toModel(), nil
}

// CreateIfAbsent is a single upsert on the unique pairKey. Two concurrent
// upserts can both miss and race on the index; the loser retries once and
// then finds the winner's document.
func (m *MongoDB) CreateIfAbsent(ctx context.Context, userA, userB uuid.UUID) (*models.Conversation, error) {
	pair := models.NewPair(userA, userB)
	now := time.Now().UTC()

	filter := bson.M{"pairKey": pair.Key()}
	update := bson.M{"$setOnInsert": bson.M{
		"_id":          uuid.NewString(),
		"participants": []string{pair.Low.String(), pair.High.String()},
		"messages":     []MessageDocument{},
		"createdAt":    now,
		"updatedAt":    now,
	}}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After).
		SetProjection(bson.M{"messages": 0})

	var doc ConversationDocument
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		err = m.Conversations.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
		if err == nil || !mongo.IsDuplicateKeyError(err) {
			break
		}
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to upsert conversation", err)
	}
	return doc.toModel(), nil
}

func (m *MongoDB) AppendMessage(ctx context.Context, conv *models.Conversation, senderID uuid.UUID, text string) (*models.Message, error) {
	msg := &models.Message{
		ID:        uuid.New(),
		SenderID:  senderID,
		Text:      text,
		IsRead:    false,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	doc := MessageDocument{
		ID:        msg.ID.String(),
		SenderID:  msg.SenderID.String(),
		Text:      msg.Text,
		IsRead:    msg.IsRead,
		CreatedAt: msg.CreatedAt,
	}

	result, err := m.Conversations.UpdateOne(ctx,
		bson.M{"_id": conv.ID.String()},
		bson.M{
			"$push": bson.M{"messages": doc},
			"$set":  bson.M{"updatedAt": msg.CreatedAt},
		},
	)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to save message", err)
	}
	if result.MatchedCount == 0 {
		return nil, utils.NewNotFoundError("conversation not found")
	}

	cp := *msg
	conv.Messages = append(conv.Messages, &cp)
	conv.UpdatedAt = msg.CreatedAt
	return msg, nil
}

func (m *MongoDB) MarkAllReadForViewer(ctx context.Context, conv *models.Conversation, viewerID uuid.UUID) error {
	opts := options.Update().SetArrayFilters(options.ArrayFilters{
		Filters: []interface{}{bson.M{
			"m.senderId": bson.M{"$ne": viewerID.String()},
			"m.isRead":   false,
		}},
	})
	result, err := m.Conversations.UpdateOne(ctx,
		bson.M{"_id": conv.ID.String()},
		bson.M{"$set": bson.M{"messages.$[m].isRead": true}},
		opts,
	)
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to mark messages as read", err)
	}
	if result.MatchedCount == 0 {
		return utils.NewNotFoundError("conversation not found")
	}

	conv.MarkAllReadFor(viewerID)
	return nil
}

func (m *MongoDB) MarkOneRead(ctx context.Context, conv *models.Conversation, messageID uuid.UUID) error {
	result, err := m.Conversations.UpdateOne(ctx,
		bson.M{"_id": conv.ID.String(), "messages.id": messageID.String()},
		bson.M{"$set": bson.M{"messages.$.isRead": true}},
	)
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to mark message as read", err)
	}
	if result.MatchedCount == 0 {
		return utils.NewNotFoundError("message not found")
	}
	if msg := conv.FindMessage(messageID); msg != nil {
		msg.IsRead = true
	}
	return nil
}

func (m *MongoDB) ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.Conversation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}})
	cursor, err := m.Conversations.Find(ctx, bson.M{"participants": userID.String()}, opts)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to get user conversations", err)
	}
	defer cursor.Close(ctx)

	out := make([]*models.Conversation, 0)
	for cursor.Next(ctx) {
		var doc ConversationDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, utils.NewAppError(utils.ErrDatabase, "failed to decode conversation", err)
		}
		out = append(out, doc.toModel())
	}
	if err := cursor.Err(); err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to iterate conversations", err)
	}
	return out, nil
}

// --- Relationship Methods ---

func (m *MongoDB) IsAccepted(ctx context.Context, a, b uuid.UUID) (bool, error) {
	count, err := m.Connections.CountDocuments(ctx, bson.M{
		"pairKey": models.NewPair(a, b).Key(),
		"status":  string(models.StatusAccepted),
	})
	if err != nil {
		return false, utils.NewAppError(utils.ErrDatabase, "failed to query connection", err)
	}
	return count > 0, nil
}

func (m *MongoDB) SendRequest(ctx context.Context, fromID, toID uuid.UUID, status models.ConnectionStatus) (*models.Connection, error) {
	if err := validateSendRequest(fromID, toID, status); err != nil {
		return nil, err
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	doc := ConnectionDocument{
		ID:         uuid.NewString(),
		PairKey:    models.NewPair(fromID, toID).Key(),
		FromUserID: fromID.String(),
		ToUserID:   toID.String(),
		Status:     string(status),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := m.Connections.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, utils.NewAppError(utils.ErrDuplicate, "Connection request already exist", err)
		}
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to save connection request", err)
	}
	return doc.toModel(), nil
}

func (m *MongoDB) ReviewRequest(ctx context.Context, reviewerID, fromID uuid.UUID, status models.ConnectionStatus) (*models.Connection, error) {
	if err := validateReviewRequest(reviewerID, fromID, status); err != nil {
		return nil, err
	}

	filter := bson.M{
		"fromUserId": fromID.String(),
		"toUserId":   reviewerID.String(),
		"status":     string(models.StatusInterested),
	}
	update := bson.M{"$set": bson.M{"status": string(status), "updatedAt": time.Now().UTC()}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc ConnectionDocument
	if err := m.Connections.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, utils.NewAppError(utils.ErrNotFound, "Connection request not found", err)
		}
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to review connection request", err)
	}
	return doc.toModel(), nil
}

func (m *MongoDB) ListAccepted(ctx context.Context, userID uuid.UUID) ([]*models.Connection, error) {
	id := userID.String()
	filter := bson.M{
		"$or": []bson.M{
			{"fromUserId": id},
			{"toUserId": id},
		},
		"status": string(models.StatusAccepted),
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})

	cursor, err := m.Connections.Find(ctx, filter, opts)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to get connections", err)
	}
	defer cursor.Close(ctx)

	out := make([]*models.Connection, 0)
	for cursor.Next(ctx) {
		var doc ConnectionDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, utils.NewAppError(utils.ErrDatabase, "failed to decode connection", err)
		}
		out = append(out, doc.toModel())
	}
	return out, cursor.Err()
}
