package models

import (
	"time"

	"github.com/google/uuid"
)

type ConnectionStatus string

const (
	StatusInterested ConnectionStatus = "interested"
	StatusAccepted   ConnectionStatus = "accepted"
	StatusRejected   ConnectionStatus = "rejected"
)

// Connection is a like/accept/reject record between two users.
type Connection struct {
	ID         uuid.UUID        `json:"id" db:"id"`
	FromUserID uuid.UUID        `json:"fromUserId" db:"from_user_id"`
	ToUserID   uuid.UUID        `json:"toUserId" db:"to_user_id"`
	Status     ConnectionStatus `json:"status" db:"status"`
	CreatedAt  time.Time        `json:"createdAt" db:"created_at"`
	UpdatedAt  time.Time        `json:"updatedAt" db:"updated_at"`
}

func (c *Connection) Pair() Pair {
	return NewPair(c.FromUserID, c.ToUserID)
}

// Other returns the participant that is not userID.
func (c *Connection) Other(userID uuid.UUID) uuid.UUID {
	if c.FromUserID == userID {
		return c.ToUserID
	}
	return c.FromUserID
}
