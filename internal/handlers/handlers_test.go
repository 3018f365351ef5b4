package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"heartline/internal/config"
	"heartline/internal/database"
	"heartline/internal/engine"
	"heartline/internal/logging"
	"heartline/internal/middleware"
	"heartline/internal/utils"
	"heartline/internal/websocket"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	handler  http.Handler
	auth     *middleware.Authenticator
	db       *database.MemoryDB
	pipeline *engine.Pipeline
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db := database.NewMemoryDB()
	registry := prometheus.NewRegistry()
	metrics := utils.NewMetricsCollector(registry)
	logger := logging.Discard()

	e := engine.NewEngine(actor.NewActorSystem(), db, db, metrics, logger, 5*time.Second)
	pipeline := engine.NewPipeline(db, e, nil, metrics, logger)
	hub := websocket.NewHub(pipeline, metrics, logger, 5*time.Second)
	pipeline.SetNotifier(hub)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(func() {
		cancel()
		e.Stop()
	})

	auth := middleware.NewAuthenticator(&config.AuthConfig{Secret: "test", Issuer: "heartline-test", TTL: time.Hour}, logger)
	server := NewServer(e, db, hub, auth, middleware.DefaultCORSConfig(nil), metrics, registry, logger)
	return &testServer{handler: server.Routes(), auth: auth, db: db, pipeline: pipeline}
}

func (ts *testServer) do(t *testing.T, method, path string, userID uuid.UUID) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if userID != uuid.Nil {
		token, err := ts.auth.GenerateToken(userID)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	var body map[string]interface{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func (ts *testServer) accept(t *testing.T, a, b uuid.UUID) {
	t.Helper()
	rec, _ := ts.do(t, http.MethodPost, "/request/send/interested/"+b.String(), a)
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = ts.do(t, http.MethodPatch, "/request/review/accepted/"+a.String(), b)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequiresToken(t *testing.T) {
	ts := newTestServer(t)

	rec, body := ts.do(t, http.MethodGet, "/chats/"+uuid.NewString(), uuid.Nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, false, body["success"])
}

func TestGetConversation(t *testing.T) {
	ts := newTestServer(t)
	alice, bob := uuid.New(), uuid.New()

	rec, body := ts.do(t, http.MethodGet, "/chats/not-a-uuid", alice)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, body["success"])

	// absent conversation is an empty zero state
	rec, body = ts.do(t, http.MethodGet, "/chats/"+bob.String(), alice)
	require.Equal(t, http.StatusOK, rec.Code)
	data := body["data"].(map[string]interface{})
	assert.Empty(t, data["messages"])

	ts.accept(t, alice, bob)
	_, err := ts.pipeline.Send(context.Background(), engine.SendRequest{SenderID: alice, ReceiverID: bob, Text: "hi"})
	require.NoError(t, err)

	rec, body = ts.do(t, http.MethodGet, "/chats/"+alice.String(), bob)
	require.Equal(t, http.StatusOK, rec.Code)
	messages := body["data"].(map[string]interface{})["messages"].([]interface{})
	require.Len(t, messages, 1)
	msg := messages[0].(map[string]interface{})
	assert.Equal(t, "hi", msg["text"])
	assert.Equal(t, true, msg["isRead"])
}

func TestMarkAsRead(t *testing.T) {
	ts := newTestServer(t)
	alice, bob := uuid.New(), uuid.New()
	ts.accept(t, alice, bob)

	result, err := ts.pipeline.Send(context.Background(), engine.SendRequest{SenderID: alice, ReceiverID: bob, Text: "hi"})
	require.NoError(t, err)

	rec, body := ts.do(t, http.MethodPatch, "/mark-as-read/"+alice.String()+"/"+uuid.NewString(), bob)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "message not found", body["message"])

	rec, body = ts.do(t, http.MethodPatch, "/mark-as-read/"+alice.String()+"/"+result.Message.ID.String(), bob)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])

	conv, err := ts.db.FindByPair(context.Background(), alice, bob)
	require.NoError(t, err)
	assert.True(t, conv.Messages[0].IsRead)
}

func TestConnectionRequests(t *testing.T) {
	ts := newTestServer(t)
	alice, bob := uuid.New(), uuid.New()

	rec, body := ts.do(t, http.MethodPost, "/request/send/accepted/"+bob.String(), alice)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid status: accepted", body["message"])

	rec, body = ts.do(t, http.MethodPost, "/request/send/interested/"+alice.String(), alice)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Cannot send connection request to yourself", body["message"])

	rec, _ = ts.do(t, http.MethodPost, "/request/send/interested/"+bob.String(), alice)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, body = ts.do(t, http.MethodPost, "/request/send/interested/"+alice.String(), bob)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Connection request already exist", body["message"])

	// only the addressee may review
	rec, body = ts.do(t, http.MethodPatch, "/request/review/accepted/"+bob.String(), alice)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Connection request not found", body["message"])

	rec, _ = ts.do(t, http.MethodPatch, "/request/review/accepted/"+alice.String(), bob)
	assert.Equal(t, http.StatusOK, rec.Code)

	ok, err := ts.db.IsAccepted(context.Background(), alice, bob)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConnectionsList(t *testing.T) {
	ts := newTestServer(t)
	alice, bob := uuid.New(), uuid.New()
	ts.accept(t, alice, bob)
	_, err := ts.pipeline.Send(context.Background(), engine.SendRequest{SenderID: bob, ReceiverID: alice, Text: "yo"})
	require.NoError(t, err)

	rec, body := ts.do(t, http.MethodGet, "/user/connections", alice)
	require.Equal(t, http.StatusOK, rec.Code)
	list := body["data"].([]interface{})
	require.Len(t, list, 1)
	entry := list[0].(map[string]interface{})
	assert.Equal(t, bob.String(), entry["userId"])
	assert.Equal(t, float64(1), entry["unreadCount"])
	assert.Equal(t, "yo", entry["lastMessage"].(map[string]interface{})["text"])
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	rec, body := ts.do(t, http.MethodGet, "/health", uuid.Nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["message"])
	data := body["data"].(map[string]interface{})
	assert.Equal(t, float64(0), data["onlineUsers"])
	assert.NotEmpty(t, data["uptime"])

	rec, _ = ts.do(t, http.MethodGet, "/metrics", uuid.Nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "heartline_")
}

func TestUnknownRoutesAnswerJSON(t *testing.T) {
	ts := newTestServer(t)

	rec, body := ts.do(t, http.MethodGet, "/no/such/route", uuid.Nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Route not found", body["message"])

	// wrong method on a known path
	rec, body = ts.do(t, http.MethodDelete, "/health", uuid.Nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, body["success"])

	rec, body = ts.do(t, http.MethodPost, "/chats/"+uuid.NewString(), uuid.New())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Route not found", body["message"])
}

func TestWebSocketAuth(t *testing.T) {
	ts := newTestServer(t)
	server := httptest.NewServer(ts.handler)
	defer server.Close()
	base := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"

	_, resp, err := ws.DefaultDialer.Dial(base, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	userID := uuid.New()
	token, err := ts.auth.GenerateToken(userID)
	require.NoError(t, err)
	conn, _, err := ws.DefaultDialer.Dial(base+"?token="+token, nil)
	require.NoError(t, err)
	defer conn.Close()

	frame, err := websocket.Encode(websocket.EventUserOnline, websocket.UserOnlinePayload{UserID: userID})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(ws.TextMessage, frame))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var env websocket.Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Equal(t, websocket.EventUsersOnline, env.Event)

	var online []uuid.UUID
	require.NoError(t, json.Unmarshal(env.Data, &online))
	assert.Equal(t, []uuid.UUID{userID}, online)
}
