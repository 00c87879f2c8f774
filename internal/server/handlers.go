// Package server exposes the HTTP handlers of the relay service: the
// WebSocket upgrade, health and debug surfaces, and the chat-creation glue
// endpoint.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/PrajwalShete/chat-app-v4/internal/store"
)

// ChatServer bundles the relay core with its transport and HTTP surface.
type ChatServer struct {
	cfg      *Config
	log      *slog.Logger
	store    store.DurableStore
	registry *SessionRegistry
	hub      *Hub
	router   *Router
	typing   *typingTracker
	upgrader websocket.Upgrader
}

// NewChatServer wires the registry, presence broadcaster, router, and hub
// for the given store.
func NewChatServer(cfg *Config, st store.DurableStore, log *slog.Logger) *ChatServer {
	registry := NewSessionRegistry()
	hub := NewHub(log)
	presence := NewPresenceBroadcaster(registry, hub, log)
	typing := newTypingTracker(cfg.TypingTTL, nil)
	router := NewRouter(registry, presence, st, hub, typing, log, cfg.StoreTimeout)
	origins := newOriginPolicy(cfg.AllowedOrigins, log)

	return &ChatServer{
		cfg:      cfg,
		log:      log,
		store:    st,
		registry: registry,
		hub:      hub,
		router:   router,
		typing:   typing,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.check,
		},
	}
}

// Start launches the hub's event loop. It must be called before serving
// WebSocket upgrades.
func (s *ChatServer) Start() {
	go s.hub.Run()
	s.log.Info("hub started and ready to manage websocket connections")
}

// Hub returns the connection hub for shutdown coordination.
func (s *ChatServer) Hub() *Hub {
	return s.hub
}

// Registry returns the session registry, exposed for observability surfaces.
func (s *ChatServer) Registry() *SessionRegistry {
	return s.registry
}

// HandleWebSocket upgrades the HTTP connection and registers the new client
// with the hub, which launches its read/write pumps.
func (s *ChatServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "remoteAddr", r.RemoteAddr, "error", err)
		return
	}

	client := NewClient(conn, s.hub, s.router, r.RemoteAddr, s.cfg, s.log)
	s.hub.Register(client)
}

// HandleRoot reports that the API is up.
func (s *ChatServer) HandleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("Chat relay API is running"))
}

type healthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Connections int       `json:"connections"`
	OnlineUsers []string  `json:"onlineUsers"`
}

// HandleHealth reports the connection count and current online users.
func (s *ChatServer) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:      "healthy",
		Timestamp:   time.Now().UTC(),
		Connections: s.hub.ClientCount(),
		OnlineUsers: s.registry.UserIDs(),
	})
}

type onlineUserBinding struct {
	UserID       string `json:"userId"`
	ConnectionID ConnID `json:"connectionId"`
}

type onlineUsersResponse struct {
	Users []onlineUserBinding `json:"users"`
}

// HandleOnlineUsersDebug dumps the current userID-to-connection bindings.
func (s *ChatServer) HandleOnlineUsersDebug(w http.ResponseWriter, _ *http.Request) {
	resp := onlineUsersResponse{Users: []onlineUserBinding{}}
	for userID, handle := range s.registry.Bindings() {
		resp.Users = append(resp.Users, onlineUserBinding{UserID: userID, ConnectionID: handle})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type createChatRequest struct {
	Participants []string `json:"participants"`
}

type createChatResponse struct {
	ChatID string `json:"chatId"`
}

// HandleCreateChat registers a two-participant chat in the durable store.
func (s *ChatServer) HandleCreateChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if len(req.Participants) != 2 || req.Participants[0] == "" || req.Participants[1] == "" || req.Participants[0] == req.Participants[1] {
		http.Error(w, "Exactly two distinct participants are required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.StoreTimeout)
	defer cancel()

	chat, err := s.store.CreateChat(ctx, req.Participants)
	if err != nil {
		s.log.Warn("chat creation failed", "error", err)
		http.Error(w, "Failed to create chat", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusCreated, createChatResponse{ChatID: chat.ChatID})
}

func (s *ChatServer) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("error writing json response", "error", err)
	}
}
