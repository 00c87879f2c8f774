// Package server wires the HTTP handlers into a ServeMux.
package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Routes configures and returns the ServeMux with all application routes:
// the WebSocket endpoint, health check, online-users debug dump, the
// chat-creation endpoint, and Prometheus metrics.
func (s *ChatServer) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.HandleRoot)
	mux.HandleFunc("/ws", s.HandleWebSocket)
	mux.HandleFunc("/health", s.HandleHealth)
	mux.HandleFunc("/debug/online-users", s.HandleOnlineUsersDebug)
	mux.HandleFunc("/api/chats", s.HandleCreateChat)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}
