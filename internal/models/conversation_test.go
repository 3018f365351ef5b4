package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestNewPairIsOrderIndependent(t *testing.T) {
	for i := 0; i < 50; i++ {
		a, b := uuid.New(), uuid.New()
		assert.Equal(t, NewPair(a, b), NewPair(b, a))
		assert.Equal(t, NewPair(a, b).Key(), NewPair(b, a).Key())
		assert.True(t, NewPair(a, b).Low.String() <= NewPair(a, b).High.String())
	}
}

func TestPairOther(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	p := NewPair(a, b)
	assert.Equal(t, b, p.Other(a))
	assert.Equal(t, a, p.Other(b))
	assert.True(t, p.Contains(a))
	assert.False(t, p.Contains(uuid.New()))
}

func TestMarkAllReadForSkipsViewerMessages(t *testing.T) {
	viewer, other := uuid.New(), uuid.New()
	conv := NewConversation(NewPair(viewer, other))
	conv.Messages = []*Message{
		{ID: uuid.New(), SenderID: other, Text: "hi"},
		{ID: uuid.New(), SenderID: viewer, Text: "hello"},
		{ID: uuid.New(), SenderID: other, Text: "there", IsRead: true},
	}

	assert.Equal(t, 1, conv.UnreadCount(viewer))
	assert.Equal(t, 1, conv.MarkAllReadFor(viewer))
	assert.True(t, conv.Messages[0].IsRead)
	assert.False(t, conv.Messages[1].IsRead)
	assert.Equal(t, 0, conv.MarkAllReadFor(viewer))
	assert.Equal(t, 0, conv.UnreadCount(viewer))
}

func TestCloneIsDeep(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	conv := NewConversation(NewPair(a, b))
	conv.Messages = append(conv.Messages, &Message{ID: uuid.New(), SenderID: a, Text: "x"})

	cp := conv.Clone()
	cp.Messages[0].IsRead = true
	cp.Participants[0] = uuid.Nil

	assert.False(t, conv.Messages[0].IsRead)
	assert.NotEqual(t, uuid.Nil, conv.Participants[0])
	assert.Equal(t, conv.Messages[0].ID, conv.LastMessage().ID)
}
