// Package server coordinates client registration, targeted delivery, and
// broadcast fan-out for the WebSocket transport via the Hub type.
package server

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Hub owns all live WebSocket connections, keyed by their ConnectionHandle.
// It serializes registration and unregistration through its run loop and
// offers the transport capabilities the relay core needs: addressed delivery
// to one handle and broadcast to a snapshot of all handles.
type Hub struct {
	clients    map[ConnID]*Client
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	log        *slog.Logger
}

// NewHub creates a Hub ready to manage WebSocket connections.
func NewHub(log *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[ConnID]*Client),
		broadcast:  make(chan []byte),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		log:        log,
	}
}

// Register queues a client for registration; the hub launches its pump
// goroutines once registered.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.ctx.Done():
	}
}

// Unregister queues a client for removal. During shutdown the run loop is
// gone, so the send must not block the pump goroutines it waits for.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// Broadcast queues payload for delivery to every connected client. The
// recipient set is snapshotted when the hub processes the payload;
// connections added or removed mid-broadcast may or may not receive it, but
// each currently connected transport receives it at most once.
func (h *Hub) Broadcast(payload []byte) {
	select {
	case h.broadcast <- payload:
	case <-h.ctx.Done():
	}
}

// SendTo delivers payload to the connection bound to handle. It reports
// false when the handle is unknown, the connection is closed, or its send
// buffer is full.
func (h *Hub) SendTo(handle ConnID, payload []byte) bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	client, ok := h.clients[handle]
	if !ok || client.closed {
		return false
	}

	select {
	case client.send <- payload:
		return true
	default:
		return false
	}
}

// ClientCount reports the number of currently registered connections.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Run starts the hub's main event loop, handling registration,
// unregistration, and broadcast fan-out. It should be called in its own
// goroutine as it runs until Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.log.Warn("received nil client registration, skipping")
				continue
			}

			h.mutex.Lock()
			client.closed = false
			h.clients[client.id] = client
			clientCount := len(h.clients)
			h.mutex.Unlock()
			metricConnectedClients.Set(float64(clientCount))
			h.log.Info("client registered", "connId", client.id, "addr", client.addr, "total", clientCount)

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				client.writePump()
			}()
			go func() {
				defer h.wg.Done()
				client.readPump()
			}()

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				client.closed = true
				clientCount := len(h.clients)
				h.mutex.Unlock()
				// Close the channel after releasing the lock.
				close(client.send)
				metricConnectedClients.Set(float64(clientCount))
				h.log.Info("client unregistered", "connId", client.id, "addr", client.addr, "total", clientCount)
			} else {
				h.mutex.Unlock()
			}

		case payload := <-h.broadcast:
			h.handleBroadcast(payload)
		}
	}
}

// handleBroadcast sends payload to a snapshot of all clients and drops the
// ones whose send buffers are full.
func (h *Hub) handleBroadcast(payload []byte) {
	clients := h.snapshot()

	var failed []*Client
	for _, client := range clients {
		if !h.SendTo(client.id, payload) {
			failed = append(failed, client)
		}
	}

	h.removeFailedClients(failed)
}

// snapshot returns the current clients under the read lock.
func (h *Hub) snapshot() []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}

// removeFailedClients drops clients that could not accept a broadcast and
// closes their send channels.
func (h *Hub) removeFailedClients(failed []*Client) {
	if len(failed) == 0 {
		return
	}

	h.mutex.Lock()
	var channelsToClose []chan []byte
	for _, client := range failed {
		if _, ok := h.clients[client.id]; ok {
			delete(h.clients, client.id)
			client.closed = true
			channelsToClose = append(channelsToClose, client.send)
			h.log.Warn("client removed due to full send buffer", "connId", client.id, "addr", client.addr)
		}
	}
	clientCount := len(h.clients)
	h.mutex.Unlock()

	metricConnectedClients.Set(float64(clientCount))
	for _, ch := range channelsToClose {
		close(ch)
	}
}

// shutdownClients closes all active client connections.
func (h *Hub) shutdownClients() {
	clients := h.snapshot()

	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
				h.log.Warn("error closing client connection", "connId", client.id, "error", err)
			}
		}
	}

	h.log.Info("closed client connections", "count", len(clients))
}

// Shutdown initiates graceful shutdown and waits for the run loop and all
// client goroutines to finish, or for the timeout to elapse.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("initiating hub shutdown")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.log.Warn("hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
