package models

import (
	"time"

	"github.com/google/uuid"
)

// Pair is an unordered pair of users normalized so that Low sorts before
// High. Two users always produce the same Pair regardless of argument order.
type Pair struct {
	Low  uuid.UUID
	High uuid.UUID
}

func NewPair(a, b uuid.UUID) Pair {
	if b.String() < a.String() {
		a, b = b, a
	}
	return Pair{Low: a, High: b}
}

// Key is the stable string form of the pair used for unique indexes.
func (p Pair) Key() string {
	return p.Low.String() + ":" + p.High.String()
}

// Other returns the member of the pair that is not userID.
func (p Pair) Other(userID uuid.UUID) uuid.UUID {
	if p.Low == userID {
		return p.High
	}
	return p.Low
}

func (p Pair) Contains(userID uuid.UUID) bool {
	return p.Low == userID || p.High == userID
}

// Message is a single chat message embedded in a Conversation.
type Message struct {
	ID        uuid.UUID `json:"id" db:"id"`
	SenderID  uuid.UUID `json:"senderId" db:"sender_id"`
	Text      string    `json:"text" db:"text"`
	IsRead    bool      `json:"isRead" db:"is_read"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// UnreadFor reports whether viewerID has not yet read the message.
func (m *Message) UnreadFor(viewerID uuid.UUID) bool {
	return m.SenderID != viewerID && !m.IsRead
}

// Conversation is the persisted thread between two users.
type Conversation struct {
	ID           uuid.UUID   `json:"id"`
	Participants []uuid.UUID `json:"participants"`
	Messages     []*Message  `json:"messages"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

// NewConversation builds an empty, unsaved conversation for the pair.
func NewConversation(pair Pair) *Conversation {
	now := time.Now().UTC()
	return &Conversation{
		ID:           uuid.New(),
		Participants: []uuid.UUID{pair.Low, pair.High},
		Messages:     []*Message{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func (c *Conversation) Pair() Pair {
	if len(c.Participants) != 2 {
		return Pair{}
	}
	return NewPair(c.Participants[0], c.Participants[1])
}

// MarkAllReadFor flips isRead on every message not sent by viewerID and
// returns how many messages changed.
func (c *Conversation) MarkAllReadFor(viewerID uuid.UUID) int {
	changed := 0
	for _, m := range c.Messages {
		if m.UnreadFor(viewerID) {
			m.IsRead = true
			changed++
		}
	}
	return changed
}

func (c *Conversation) FindMessage(messageID uuid.UUID) *Message {
	for _, m := range c.Messages {
		if m.ID == messageID {
			return m
		}
	}
	return nil
}

func (c *Conversation) UnreadCount(viewerID uuid.UUID) int {
	count := 0
	for _, m := range c.Messages {
		if m.UnreadFor(viewerID) {
			count++
		}
	}
	return count
}

func (c *Conversation) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return c.Messages[len(c.Messages)-1]
}

// Clone returns a deep copy so callers can't mutate stored state.
func (c *Conversation) Clone() *Conversation {
	out := *c
	out.Participants = append([]uuid.UUID(nil), c.Participants...)
	out.Messages = make([]*Message, len(c.Messages))
	for i, m := range c.Messages {
		cp := *m
		out.Messages[i] = &cp
	}
	return &out
}
