package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"heartline/internal/database"
	"heartline/internal/logging"
	"heartline/internal/models"
	"heartline/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu      sync.Mutex
	updates map[uuid.UUID][]*LastMessageUpdate
	fail    bool
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{updates: make(map[uuid.UUID][]*LastMessageUpdate)}
}

func (n *recordingNotifier) NotifyLastMessage(receiverID uuid.UUID, update *LastMessageUpdate) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errors.New("relay down")
	}
	n.updates[receiverID] = append(n.updates[receiverID], update)
	return nil
}

func (n *recordingNotifier) received(userID uuid.UUID) []*LastMessageUpdate {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.updates[userID]
}

func (n *recordingNotifier) total() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, u := range n.updates {
		count += len(u)
	}
	return count
}

type fixture struct {
	db       *database.MemoryDB
	engine   *Engine
	pipeline *Pipeline
	notifier *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := database.NewMemoryDB()
	metrics := utils.NewMetricsCollector(prometheus.NewRegistry())
	system := actor.NewActorSystem()
	e := NewEngine(system, db, db, metrics, logging.Discard(), 5*time.Second)
	t.Cleanup(e.Stop)

	notifier := newRecordingNotifier()
	return &fixture{
		db:       db,
		engine:   e,
		pipeline: NewPipeline(db, e, notifier, metrics, logging.Discard()),
		notifier: notifier,
	}
}

func (f *fixture) connect(t *testing.T, a, b uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	_, err := f.db.SendRequest(ctx, a, b, models.StatusInterested)
	require.NoError(t, err)
	_, err = f.db.ReviewRequest(ctx, b, a, models.StatusAccepted)
	require.NoError(t, err)
}

func TestFetchAndMarkReadValidatesIDs(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.FetchAndMarkRead(uuid.New(), uuid.Nil)
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidInput))

	err = f.engine.MarkMessageRead(uuid.New(), uuid.New(), uuid.Nil)
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidInput))
}

func TestMarkMessageReadWithoutConversation(t *testing.T) {
	f := newFixture(t)

	err := f.engine.MarkMessageRead(uuid.New(), uuid.New(), uuid.New())
	assert.True(t, utils.IsErrorCode(err, utils.ErrNotFound))
}

func TestConnectionSummaries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	me, quiet, chatty := uuid.New(), uuid.New(), uuid.New()
	f.connect(t, quiet, me)
	f.connect(t, chatty, me)

	_, err := f.pipeline.Send(ctx, SendRequest{SenderID: chatty, ReceiverID: me, Text: "one"})
	require.NoError(t, err)
	_, err = f.pipeline.Send(ctx, SendRequest{SenderID: chatty, ReceiverID: me, Text: "two"})
	require.NoError(t, err)
	_, err = f.pipeline.Send(ctx, SendRequest{SenderID: me, ReceiverID: chatty, Text: "mine"})
	require.NoError(t, err)

	summaries, err := f.engine.ConnectionSummaries(ctx, me)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	assert.Equal(t, chatty, summaries[0].UserID)
	assert.Equal(t, "mine", summaries[0].LastMessage.Text)
	assert.Equal(t, 2, summaries[0].UnreadCount)

	assert.Equal(t, quiet, summaries[1].UserID)
	assert.Nil(t, summaries[1].LastMessage)
	assert.Zero(t, summaries[1].UnreadCount)

	// listing is a pure read
	again, err := f.engine.ConnectionSummaries(ctx, me)
	require.NoError(t, err)
	assert.Equal(t, 2, again[0].UnreadCount)
}
