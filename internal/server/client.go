// Package server manages individual WebSocket clients, handling read/write
// pumps, send-rate limiting, and lifecycle control for each connection.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	readDeadline  = 60 * time.Second
	writeDeadline = 10 * time.Second
	pingInterval  = 54 * time.Second
	sendBuffer    = 256
)

// Client is one live WebSocket connection. Its ConnectionHandle (id) is
// assigned at upgrade time and never changes; userID is empty until a login
// event binds it, and is only touched from the connection's read goroutine.
type Client struct {
	id     ConnID
	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
	router *Router
	addr   string
	closed bool
	userID string

	limiter        *rate.Limiter
	maxMessageSize int64
	log            *slog.Logger
}

// NewClient creates a Client for conn with a freshly assigned connection
// handle. The send channel is buffered to absorb delivery bursts.
func NewClient(conn *websocket.Conn, hub *Hub, router *Router, addr string, cfg *Config, log *slog.Logger) *Client {
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	id := ConnID(uuid.NewString())
	return &Client{
		id:             id,
		conn:           conn,
		send:           make(chan []byte, sendBuffer),
		hub:            hub,
		router:         router,
		addr:           addr,
		limiter:        rate.NewLimiter(rate.Limit(cfg.SendRateLimit), cfg.SendRateBurst),
		maxMessageSize: cfg.MaxMessageSize,
		log:            log.With("connId", id, "addr", addr),
	}
}

// ID returns the connection handle assigned at upgrade time.
func (c *Client) ID() ConnID {
	return c.id
}

// setupReadConnection configures read deadlines and the pong handler.
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
		c.log.Warn("error setting initial read deadline", "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
			c.log.Warn("error setting read deadline in pong handler", "error", err)
		}
		return nil
	})
}

// handleReadError logs the read failure and reports whether the read loop
// should stop.
func (c *Client) handleReadError(err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn("inbound frame exceeded maximum size", "limit", c.maxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.log.Info("client disconnected", "error", err)
	case errors.Is(err, io.EOF), isExpectedCloseError(err):
		c.log.Info("connection closed", "error", err)
	default:
		c.log.Warn("websocket read error", "error", err)
	}
	return true
}

// dispatch decodes one inbound frame and routes it to the event router.
// Malformed frames are logged and dropped; a fault in one frame never
// affects other connections.
func (c *Client) dispatch(raw []byte) {
	var ev ClientEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		c.log.Warn("invalid event frame", "error", err)
		return
	}

	switch ev.Type {
	case EventLogin:
		c.router.Login(c, ev.UserID)
	case EventSendMessage:
		if !c.limiter.Allow() {
			c.log.Warn("send rate limit exceeded, discarding message", "chatId", ev.ChatID)
			return
		}
		c.router.SendMessage(c, ev.ChatID, ev.Text)
	case EventTyping:
		c.router.Typing(c, ev.ChatID)
	case EventStopTyping:
		c.router.StopTyping(c, ev.ChatID)
	case EventGetOnlineUsers:
		c.router.OnlineUsers(c)
	default:
		c.log.Warn("unknown event type", "type", ev.Type)
	}
}

func (c *Client) readPump() {
	defer func() {
		c.router.Disconnect(c)
		c.hub.Unregister(c)
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Warn("error closing connection in readPump", "error", err)
		}
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if c.handleReadError(err) {
				break
			}
			continue
		}
		c.dispatch(raw)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Warn("error closing connection in writePump", "error", err)
		}
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if !c.writeOutbound(payload, ok) {
				return
			}
		case <-ticker.C:
			if !c.writePing() {
				return
			}
		}
	}
}

// writeOutbound writes one queued payload, draining any additional queued
// payloads into the same frame batch. It reports false when the pump should
// stop.
func (c *Client) writeOutbound(payload []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
		c.log.Warn("error setting write deadline", "error", err)
		return false
	}

	if !ok {
		// Hub closed the send channel.
		if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
			c.log.Warn("error writing close message", "error", err)
		}
		return false
	}

	w, err := c.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		c.log.Warn("error creating writer", "error", err)
		return false
	}

	if _, err := w.Write(payload); err != nil {
		c.log.Warn("error writing message", "error", err)
		return false
	}

	n := len(c.send)
	for i := 0; i < n; i++ {
		if _, err := w.Write([]byte{'\n'}); err != nil {
			c.log.Warn("error writing frame separator", "error", err)
			return false
		}
		if _, err := w.Write(<-c.send); err != nil {
			c.log.Warn("error writing queued message", "error", err)
			return false
		}
	}

	if err := w.Close(); err != nil {
		c.log.Warn("error closing writer", "error", err)
		return false
	}
	return true
}

// writePing sends a keepalive ping and reports false when the pump should
// stop.
func (c *Client) writePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
		c.log.Warn("error setting write deadline for ping", "error", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn("error writing ping", "error", err)
		}
		return false
	}
	return true
}

// isExpectedCloseError checks if an error is expected during connection
// closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
