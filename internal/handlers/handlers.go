package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"heartline/internal/api"
	"heartline/internal/database"
	"heartline/internal/engine"
	"heartline/internal/middleware"
	"heartline/internal/utils"
	"heartline/internal/websocket"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server holds all HTTP dependencies
type Server struct {
	Engine         *engine.Engine
	Relationships  database.RelationshipStore
	Hub            *websocket.Hub
	Auth           *middleware.Authenticator
	CORS           *middleware.CORSConfig
	Metrics        *utils.MetricsCollector
	Gatherer       prometheus.Gatherer
	MetricsEnabled bool
	Logger         *slog.Logger
}

// NewServer creates a new Server instance with the given components
func NewServer(
	engine *engine.Engine,
	relationships database.RelationshipStore,
	hub *websocket.Hub,
	auth *middleware.Authenticator,
	cors *middleware.CORSConfig,
	metrics *utils.MetricsCollector,
	gatherer prometheus.Gatherer,
	logger *slog.Logger,
) *Server {
	return &Server{
		Engine:         engine,
		Relationships:  relationships,
		Hub:            hub,
		Auth:           auth,
		CORS:           cors,
		Metrics:        metrics,
		Gatherer:       gatherer,
		MetricsEnabled: gatherer != nil,
		Logger:         logger,
	}
}

// Routes builds the HTTP handler tree.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	protected := func(h http.HandlerFunc) http.Handler {
		return s.Auth.Middleware(h)
	}

	// Conversations
	mux.Handle("GET /chats/{receiverUserId}", protected(s.HandleGetConversation()))
	mux.Handle("PATCH /mark-as-read/{senderUserId}/{messageId}", protected(s.HandleMarkAsRead()))

	// Connections
	mux.Handle("POST /request/send/{status}/{toUserId}", protected(s.HandleSendRequest()))
	mux.Handle("PATCH /request/review/{status}/{fromUserId}", protected(s.HandleReviewRequest()))
	mux.Handle("GET /user/connections", protected(s.HandleConnections()))

	// Realtime channel, authenticates itself
	mux.HandleFunc("GET /ws", s.HandleWebSocket())

	mux.HandleFunc("GET /health", s.HandleHealth())
	if s.MetricsEnabled {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("/", s.HandleUnknownRoute())

	return middleware.CORSMiddleware(s.CORS)(s.recoverer(mux))
}

// recoverer converts a panic in any handler into an error response.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.Logger.Error("panic in handler", "path", r.URL.Path, "panic", rec)
				s.Metrics.IncrementErrors()
				writeJSON(w, http.StatusBadRequest, api.Fail("Something went wrong"))
			}
		}()
		s.Metrics.IncrementRequests()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError reports err with the status its code maps to. Internal
// details never reach the client.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	s.Metrics.IncrementErrors()

	status := http.StatusBadRequest
	if appErr, ok := utils.AsAppError(err); ok {
		status = utils.AppErrorToHTTPStatus(appErr.Code)
		if appErr.Code == utils.ErrDatabase || appErr.Code == utils.ErrActorTimeout {
			s.Logger.Error("request failed", "path", r.URL.Path, "err", err)
		}
	} else {
		s.Logger.Error("request failed", "path", r.URL.Path, "err", err)
	}
	writeJSON(w, status, api.Fail(utils.PublicMessage(err)))
}

// currentUser returns the authenticated caller set by the auth middleware.
func (s *Server) currentUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, api.Fail("Unauthorized"))
		return uuid.Nil, false
	}
	return userID, true
}
