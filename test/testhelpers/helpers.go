// Package testhelpers provides shared utilities for integration tests: a
// fully wired relay server on a test listener and a WebSocket client that
// collects decoded event frames.
package testhelpers

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/PrajwalShete/chat-app-v4/internal/server"
	"github.com/PrajwalShete/chat-app-v4/internal/store"
)

// StartRelayServer boots a complete ChatServer backed by an in-memory store
// on an httptest listener. Shutdown is registered as test cleanup.
func StartRelayServer(t *testing.T) (*httptest.Server, *store.MemoryStore) {
	t.Helper()

	memory := store.NewMemoryStore()
	cfg := server.NewConfig()
	cfg.AllowedOrigins = []string{"*"}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	chat := server.NewChatServer(cfg, memory, logger)
	chat.Start()

	ts := httptest.NewServer(chat.Routes())
	t.Cleanup(func() {
		ts.Close()
		_ = chat.Hub().Shutdown(2 * time.Second)
	})
	return ts, memory
}

// WSClient is a test WebSocket connection that decodes every received frame
// (including newline-batched frames) onto its Events channel.
type WSClient struct {
	t      *testing.T
	conn   *websocket.Conn
	Events chan map[string]any
}

// DialWS connects a WSClient to the relay server's /ws endpoint.
func DialWS(t *testing.T, serverURL string) *WSClient {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(serverURL, "http") + "/ws"
	headers := http.Header{}
	headers.Set("Origin", "http://localhost:5173")

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := dialer.Dial(wsURL, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	require.NoError(t, err)

	c := &WSClient{
		t:      t,
		conn:   conn,
		Events: make(chan map[string]any, 64),
	}
	go c.readLoop()
	t.Cleanup(c.Close)
	return c
}

func (c *WSClient) readLoop() {
	defer close(c.Events)
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		for _, part := range bytes.Split(raw, []byte{'\n'}) {
			if len(part) == 0 {
				continue
			}
			var frame map[string]any
			if json.Unmarshal(part, &frame) == nil {
				c.Events <- frame
			}
		}
	}
}

// Send writes v as a JSON frame.
func (c *WSClient) Send(v any) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteJSON(v))
}

// Login sends a login event for userID.
func (c *WSClient) Login(userID string) {
	c.Send(map[string]string{"type": "login", "userId": userID})
}

// WaitFor returns the next received frame of the given type, discarding
// frames of other types, and fails the test on timeout.
func (c *WSClient) WaitFor(eventType string, timeout time.Duration) map[string]any {
	c.t.Helper()

	deadline := time.After(timeout)
	for {
		select {
		case frame, ok := <-c.Events:
			if !ok {
				c.t.Fatalf("connection closed while waiting for %q", eventType)
				return nil
			}
			if frame["type"] == eventType {
				return frame
			}
		case <-deadline:
			c.t.Fatalf("timed out waiting for %q", eventType)
			return nil
		}
	}
}

// ExpectNone asserts that no frame of the given type arrives inside window.
func (c *WSClient) ExpectNone(eventType string, window time.Duration) {
	c.t.Helper()

	deadline := time.After(window)
	for {
		select {
		case frame, ok := <-c.Events:
			if !ok {
				return
			}
			if frame["type"] == eventType {
				c.t.Fatalf("unexpected %q frame: %v", eventType, frame)
			}
		case <-deadline:
			return
		}
	}
}

// Close closes the underlying connection.
func (c *WSClient) Close() {
	_ = c.conn.Close()
}

// CreateChat registers a chat through the HTTP API and returns its id.
func CreateChat(t *testing.T, serverURL string, participants ...string) string {
	t.Helper()

	body, err := json.Marshal(map[string]any{"participants": participants})
	require.NoError(t, err)

	resp, err := http.Post(serverURL+"/api/chats", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer func() {
		_ = resp.Body.Close()
	}()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var out struct {
		ChatID string `json:"chatId"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out.ChatID
}
