// Package server fans presence transitions out to every connected transport
// via the PresenceBroadcaster.
package server

import "log/slog"

// Presence status values carried in userStatusChanged events.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// transport is the outbound half of the connection layer as seen by the
// relay core: address one connection by handle, or reach all of them.
type transport interface {
	// SendTo delivers payload to the connection bound to handle. It reports
	// false when the connection is gone or its buffer is full; such faults
	// are swallowed by callers since the connection's own disconnect event
	// corrects the registry.
	SendTo(handle ConnID, payload []byte) bool

	// Broadcast delivers payload to a consistent snapshot of all currently
	// connected transports, at most once each.
	Broadcast(payload []byte)
}

// PresenceBroadcaster announces presence transitions and online-user
// snapshots to every connected client. The set of online users is globally
// visible, not scoped to shared chats.
type PresenceBroadcaster struct {
	registry  *SessionRegistry
	transport transport
	log       *slog.Logger
}

// NewPresenceBroadcaster wires the broadcaster to the registry it snapshots
// and the transport it fans out through.
func NewPresenceBroadcaster(registry *SessionRegistry, tr transport, log *slog.Logger) *PresenceBroadcaster {
	return &PresenceBroadcaster{registry: registry, transport: tr, log: log}
}

// Announce broadcasts a presence transition for userID to every connected
// transport.
func (b *PresenceBroadcaster) Announce(userID, status string) {
	b.log.Info("announcing presence change", "userId", userID, "status", status)
	b.transport.Broadcast(encodeEvent(presenceEvent{
		Type:   EventUserStatusChanged,
		UserID: userID,
		Status: status,
	}))
	metricPresenceBroadcasts.Inc()
}

// BroadcastSnapshot sends the full online-user list to every connected
// transport so clients can resync if they missed deltas.
func (b *PresenceBroadcaster) BroadcastSnapshot() {
	userIDs := b.registry.UserIDs()
	b.log.Info("broadcasting online users list", "count", len(userIDs))
	b.transport.Broadcast(encodeEvent(onlineUsersEvent{
		Type:    EventOnlineUsersList,
		UserIDs: userIDs,
	}))
	metricPresenceBroadcasts.Inc()
}
