package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"heartline/internal/models"
	"heartline/internal/utils"

	"github.com/google/uuid"
)

// MemoryDB keeps conversations and connections in process memory. It backs
// DB_TYPE=memory and the tests.
type MemoryDB struct {
	convMu        sync.Mutex
	conversations map[string]*models.Conversation // pair key -> conversation
	convByID      map[uuid.UUID]string            // conversation id -> pair key

	connMu      sync.RWMutex
	connections map[string]*models.Connection // pair key -> connection
}

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		conversations: make(map[string]*models.Conversation),
		convByID:      make(map[uuid.UUID]string),
		connections:   make(map[string]*models.Connection),
	}
}

func (m *MemoryDB) Close(ctx context.Context) error {
	return nil
}

// --- Conversation Methods ---

func (m *MemoryDB) FindByPair(ctx context.Context, userA, userB uuid.UUID) (*models.Conversation, error) {
	m.convMu.Lock()
	defer m.convMu.Unlock()

	conv, ok := m.conversations[models.NewPair(userA, userB).Key()]
	if !ok {
		return nil, utils.NewNotFoundError("conversation not found")
	}
	return conv.Clone(), nil
}

func (m *MemoryDB) CreateIfAbsent(ctx context.Context, userA, userB uuid.UUID) (*models.Conversation, error) {
	m.convMu.Lock()
	defer m.convMu.Unlock()

	pair := models.NewPair(userA, userB)
	conv, ok := m.conversations[pair.Key()]
	if !ok {
		conv = models.NewConversation(pair)
		m.conversations[pair.Key()] = conv
		m.convByID[conv.ID] = pair.Key()
	}
	header := *conv
	header.Participants = append([]uuid.UUID(nil), conv.Participants...)
	header.Messages = make([]*models.Message, 0)
	return &header, nil
}

// stored must be called with convMu held.
func (m *MemoryDB) stored(conv *models.Conversation) (*models.Conversation, error) {
	key, ok := m.convByID[conv.ID]
	if !ok {
		return nil, utils.NewNotFoundError("conversation not found")
	}
	return m.conversations[key], nil
}

func (m *MemoryDB) AppendMessage(ctx context.Context, conv *models.Conversation, senderID uuid.UUID, text string) (*models.Message, error) {
	m.convMu.Lock()
	defer m.convMu.Unlock()

	stored, err := m.stored(conv)
	if err != nil {
		return nil, err
	}

	msg := &models.Message{
		ID:        uuid.New(),
		SenderID:  senderID,
		Text:      text,
		IsRead:    false,
		CreatedAt: time.Now().UTC(),
	}
	stored.Messages = append(stored.Messages, msg)
	stored.UpdatedAt = msg.CreatedAt

	cp := *msg
	conv.Messages = append(conv.Messages, &cp)
	conv.UpdatedAt = msg.CreatedAt
	out := *msg
	return &out, nil
}

func (m *MemoryDB) MarkAllReadForViewer(ctx context.Context, conv *models.Conversation, viewerID uuid.UUID) error {
	m.convMu.Lock()
	defer m.convMu.Unlock()

	stored, err := m.stored(conv)
	if err != nil {
		return err
	}
	stored.MarkAllReadFor(viewerID)
	conv.MarkAllReadFor(viewerID)
	return nil
}

func (m *MemoryDB) MarkOneRead(ctx context.Context, conv *models.Conversation, messageID uuid.UUID) error {
	m.convMu.Lock()
	defer m.convMu.Unlock()

	stored, err := m.stored(conv)
	if err != nil {
		return err
	}
	msg := stored.FindMessage(messageID)
	if msg == nil {
		return utils.NewNotFoundError("message not found")
	}
	msg.IsRead = true
	if local := conv.FindMessage(messageID); local != nil {
		local.IsRead = true
	}
	return nil
}

func (m *MemoryDB) ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.Conversation, error) {
	m.convMu.Lock()
	defer m.convMu.Unlock()

	out := make([]*models.Conversation, 0)
	for _, conv := range m.conversations {
		if conv.Pair().Contains(userID) {
			out = append(out, conv.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// --- Relationship Methods ---

func (m *MemoryDB) IsAccepted(ctx context.Context, a, b uuid.UUID) (bool, error) {
	m.connMu.RLock()
	defer m.connMu.RUnlock()

	conn, ok := m.connections[models.NewPair(a, b).Key()]
	return ok && conn.Status == models.StatusAccepted, nil
}

func (m *MemoryDB) SendRequest(ctx context.Context, fromID, toID uuid.UUID, status models.ConnectionStatus) (*models.Connection, error) {
	if err := validateSendRequest(fromID, toID, status); err != nil {
		return nil, err
	}

	m.connMu.Lock()
	defer m.connMu.Unlock()

	key := models.NewPair(fromID, toID).Key()
	if _, exists := m.connections[key]; exists {
		return nil, utils.NewAppError(utils.ErrDuplicate, "Connection request already exist", nil)
	}

	now := time.Now().UTC()
	conn := &models.Connection{
		ID:         uuid.New(),
		FromUserID: fromID,
		ToUserID:   toID,
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	m.connections[key] = conn
	out := *conn
	return &out, nil
}

func (m *MemoryDB) ReviewRequest(ctx context.Context, reviewerID, fromID uuid.UUID, status models.ConnectionStatus) (*models.Connection, error) {
	if err := validateReviewRequest(reviewerID, fromID, status); err != nil {
		return nil, err
	}

	m.connMu.Lock()
	defer m.connMu.Unlock()

	conn, ok := m.connections[models.NewPair(reviewerID, fromID).Key()]
	if !ok || conn.FromUserID != fromID || conn.ToUserID != reviewerID || conn.Status != models.StatusInterested {
		return nil, utils.NewNotFoundError("Connection request not found")
	}
	conn.Status = status
	conn.UpdatedAt = time.Now().UTC()
	out := *conn
	return &out, nil
}

func (m *MemoryDB) ListAccepted(ctx context.Context, userID uuid.UUID) ([]*models.Connection, error) {
	m.connMu.RLock()
	defer m.connMu.RUnlock()

	out := make([]*models.Connection, 0)
	for _, conn := range m.connections {
		if conn.Status == models.StatusAccepted && conn.Pair().Contains(userID) {
			cp := *conn
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
