package actors

import (
	"context"
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

func spawnSupervisor(t *testing.T, store database.ConversationStore) (*actor.RootContext, *actor.PID) {
	t.Helper()
	system := actor.NewActorSystem()
	metrics := utils.NewMetricsCollector(prometheus.NewRegistry())
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewConversationSupervisor(store, metrics, logging.Discard(), 5*time.Second)
	})
	pid := system.Root.Spawn(props)
	t.Cleanup(func() { system.Root.Stop(pid) })
	return system.Root, pid
}

func TestConversationSendThenFetch(t *testing.T) {
	store := database.NewMemoryDB()
	root, pid := spawnSupervisor(t, store)
	alice, bob := uuid.New(), uuid.New()

	sendResult, err := root.RequestFuture(pid, &SendMessageMsg{
		SenderID:   alice,
		ReceiverID: bob,
		Text:       "hi",
	}, 5*time.Second).Result()
	require.NoError(t, err)

	sent, ok := sendResult.(*SendMessageResult)
	require.True(t, ok, "unexpected response %T", sendResult)
	assert.Equal(t, alice, sent.Message.SenderID)
	assert.False(t, sent.Message.IsRead)

	fetchResult, err := root.RequestFuture(pid, &FetchConversationMsg{
		ViewerID: bob,
		OtherID:  alice,
	}, 5*time.Second).Result()
	require.NoError(t, err)

	conv, ok := fetchResult.(*models.Conversation)
	require.True(t, ok, "unexpected response %T", fetchResult)
	assert.Equal(t, sent.ConversationID, conv.ID)
	require.Len(t, conv.Messages, 1)
	assert.True(t, conv.Messages[0].IsRead)
}

func TestConversationFetchAbsentIsNotPersisted(t *testing.T) {
	store := database.NewMemoryDB()
	root, pid := spawnSupervisor(t, store)
	alice, bob := uuid.New(), uuid.New()

	result, err := root.RequestFuture(pid, &FetchConversationMsg{ViewerID: alice, OtherID: bob}, 5*time.Second).Result()
	require.NoError(t, err)

	conv, ok := result.(*models.Conversation)
	require.True(t, ok)
	assert.Empty(t, conv.Messages)
	assert.ElementsMatch(t, []uuid.UUID{alice, bob}, conv.Participants)

	_, err = store.FindByPair(context.Background(), alice, bob)
	assert.True(t, utils.IsErrorCode(err, utils.ErrNotFound))
}

func TestConversationMarkMessageRead(t *testing.T) {
	store := database.NewMemoryDB()
	root, pid := spawnSupervisor(t, store)
	alice, bob := uuid.New(), uuid.New()

	// no conversation yet
	result, err := root.RequestFuture(pid, &MarkMessageReadMsg{ViewerID: bob, OtherID: alice, MessageID: uuid.New()}, 5*time.Second).Result()
	require.NoError(t, err)
	appErr, ok := result.(*utils.AppError)
	require.True(t, ok)
	assert.Equal(t, utils.ErrNotFound, appErr.Code)

	sendResult, err := root.RequestFuture(pid, &SendMessageMsg{SenderID: alice, ReceiverID: bob, Text: "hi"}, 5*time.Second).Result()
	require.NoError(t, err)
	sent := sendResult.(*SendMessageResult)

	result, err = root.RequestFuture(pid, &MarkMessageReadMsg{ViewerID: bob, OtherID: alice, MessageID: uuid.New()}, 5*time.Second).Result()
	require.NoError(t, err)
	appErr, ok = result.(*utils.AppError)
	require.True(t, ok)
	assert.Equal(t, utils.ErrNotFound, appErr.Code)

	result, err = root.RequestFuture(pid, &MarkMessageReadMsg{ViewerID: bob, OtherID: alice, MessageID: sent.Message.ID}, 5*time.Second).Result()
	require.NoError(t, err)
	ack, ok := result.(*MarkMessageReadResult)
	require.True(t, ok)
	assert.Equal(t, sent.Message.ID, ack.MessageID)

	conv, err := store.FindByPair(context.Background(), alice, bob)
	require.NoError(t, err)
	assert.True(t, conv.Messages[0].IsRead)
}

func TestConversationConcurrentFirstSends(t *testing.T) {
	store := database.NewMemoryDB()
	root, pid := spawnSupervisor(t, store)
	alice, bob := uuid.New(), uuid.New()

	var wg sync.WaitGroup
	results := make([]*SendMessageResult, 2)
	for i, sender := range []uuid.UUID{alice, bob} {
		wg.Add(1)
		go func(i int, sender uuid.UUID) {
			defer wg.Done()
			receiver := alice
			if sender == alice {
				receiver = bob
			}
			res, err := root.RequestFuture(pid, &SendMessageMsg{SenderID: sender, ReceiverID: receiver, Text: "first"}, 5*time.Second).Result()
			if assert.NoError(t, err) {
				results[i], _ = res.(*SendMessageResult)
			}
		}(i, sender)
	}
	wg.Wait()

	require.NotNil(t, results[0])
	require.NotNil(t, results[1])
	assert.Equal(t, results[0].ConversationID, results[1].ConversationID)

	convs, err := store.ListForUser(context.Background(), alice)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Len(t, convs[0].Messages, 2)
}
