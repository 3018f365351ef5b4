package database

import (
	"context"
	"os"
	"testing"

	"heartline/internal/logging"
	"heartline/internal/models"
	"heartline/internal/utils"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a live server only when MONGO_TEST_URI is set.
func newTestMongo(t *testing.T) *MongoDB {
	t.Helper()
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}
	m, err := NewMongoDB(uri, "heartline_test_"+uuid.NewString()[:8], logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx := context.Background()
		_ = m.Conversations.Database().Drop(ctx)
		_ = m.Close(ctx)
	})
	return m
}

func TestMongoConversationLifecycle(t *testing.T) {
	m := newTestMongo(t)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	_, err := m.FindByPair(ctx, a, b)
	assert.True(t, utils.IsErrorCode(err, utils.ErrNotFound))

	conv, err := m.CreateIfAbsent(ctx, a, b)
	require.NoError(t, err)
	again, err := m.CreateIfAbsent(ctx, b, a)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, again.ID)

	_, err = m.AppendMessage(ctx, conv, a, "hi")
	require.NoError(t, err)
	_, err = m.AppendMessage(ctx, conv, b, "hey")
	require.NoError(t, err)

	header, err := m.CreateIfAbsent(ctx, a, b)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, header.ID)
	assert.Empty(t, header.Messages)

	require.NoError(t, m.MarkAllReadForViewer(ctx, conv, b))
	stored, err := m.FindByPair(ctx, a, b)
	require.NoError(t, err)
	require.Len(t, stored.Messages, 2)
	assert.True(t, stored.Messages[0].IsRead)
	assert.False(t, stored.Messages[1].IsRead)

	err = m.MarkOneRead(ctx, conv, uuid.New())
	assert.True(t, utils.IsErrorCode(err, utils.ErrNotFound))
	require.NoError(t, m.MarkOneRead(ctx, conv, stored.Messages[1].ID))
}

func TestMongoRelationships(t *testing.T) {
	m := newTestMongo(t)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	_, err := m.SendRequest(ctx, a, b, models.StatusInterested)
	require.NoError(t, err)
	_, err = m.SendRequest(ctx, b, a, models.StatusInterested)
	assert.True(t, utils.IsErrorCode(err, utils.ErrDuplicate))

	_, err = m.ReviewRequest(ctx, b, a, models.StatusAccepted)
	require.NoError(t, err)
	ok, err := m.IsAccepted(ctx, a, b)
	require.NoError(t, err)
	assert.True(t, ok)

	conns, err := m.ListAccepted(ctx, a)
	require.NoError(t, err)
	assert.Len(t, conns, 1)
}
