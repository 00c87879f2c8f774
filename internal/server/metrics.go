// Package server exposes Prometheus metrics for the relay core.
package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricConnectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_connected_clients",
		Help: "Number of currently connected WebSocket clients.",
	})
	metricOnlineUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_online_users",
		Help: "Number of users with an active session binding.",
	})
	metricMessagesRelayed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_messages_relayed_total",
		Help: "Messages persisted and fanned out to recipients.",
	})
	metricStoreFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_store_failures_total",
		Help: "Durable store calls that failed or timed out.",
	})
	metricPresenceBroadcasts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_presence_broadcasts_total",
		Help: "Presence deltas and snapshots broadcast to all clients.",
	})
)
