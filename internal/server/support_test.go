package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/PrajwalShete/chat-app-v4/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newBareClient builds a client carrying only the state the router reads.
func newBareClient(id string) *Client {
	return &Client{id: ConnID(id), log: discardLogger()}
}

// fakeTransport records decoded frames per handle and broadcast frames.
type fakeTransport struct {
	mu         sync.Mutex
	direct     map[ConnID][]map[string]any
	broadcasts []map[string]any
	dead       map[ConnID]bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		direct: make(map[ConnID][]map[string]any),
		dead:   make(map[ConnID]bool),
	}
}

func (f *fakeTransport) SendTo(handle ConnID, payload []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.dead[handle] {
		return false
	}
	var frame map[string]any
	if err := json.Unmarshal(payload, &frame); err != nil {
		return false
	}
	f.direct[handle] = append(f.direct[handle], frame)
	return true
}

func (f *fakeTransport) Broadcast(payload []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var frame map[string]any
	if err := json.Unmarshal(payload, &frame); err != nil {
		return
	}
	f.broadcasts = append(f.broadcasts, frame)
}

func (f *fakeTransport) framesFor(handle ConnID) []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.direct[handle]...)
}

func (f *fakeTransport) framesOfType(handle ConnID, eventType string) []map[string]any {
	var out []map[string]any
	for _, frame := range f.framesFor(handle) {
		if frame["type"] == eventType {
			out = append(out, frame)
		}
	}
	return out
}

func (f *fakeTransport) broadcastsOfType(eventType string) []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []map[string]any
	for _, frame := range f.broadcasts {
		if frame["type"] == eventType {
			out = append(out, frame)
		}
	}
	return out
}

func (f *fakeTransport) markDead(handle ConnID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dead[handle] = true
}

// failingStore wraps a MemoryStore and injects failures per operation.
type failingStore struct {
	*store.MemoryStore
	failAppend bool
	failStatus bool
	failLast   bool
}

var errStoreDown = errors.New("store down")

func (s *failingStore) AppendMessage(ctx context.Context, env store.MessageEnvelope) (store.MessageEnvelope, error) {
	if s.failAppend {
		return store.MessageEnvelope{}, errStoreDown
	}
	return s.MemoryStore.AppendMessage(ctx, env)
}

func (s *failingStore) SetUserStatus(ctx context.Context, userID string, status store.UserStatus) error {
	if s.failStatus {
		return errStoreDown
	}
	return s.MemoryStore.SetUserStatus(ctx, userID, status)
}

func (s *failingStore) UpdateLastMessage(ctx context.Context, chatID, text, senderID string, ts time.Time) error {
	if s.failLast {
		return errStoreDown
	}
	return s.MemoryStore.UpdateLastMessage(ctx, chatID, text, senderID, ts)
}

// slowStore blocks every chat lookup until the caller's deadline expires.
type slowStore struct {
	*store.MemoryStore
}

func (s *slowStore) GetChat(ctx context.Context, chatID string) (store.ChatRef, error) {
	<-ctx.Done()
	return store.ChatRef{}, ctx.Err()
}

// routerFixture wires a router against fakes for unit tests.
type routerFixture struct {
	registry  *SessionRegistry
	transport *fakeTransport
	store     store.DurableStore
	memory    *store.MemoryStore
	typing    *typingTracker
	router    *Router
}

func newRouterFixture(st store.DurableStore, memory *store.MemoryStore) *routerFixture {
	log := discardLogger()
	registry := NewSessionRegistry()
	tr := newFakeTransport()
	presence := NewPresenceBroadcaster(registry, tr, log)
	typing := newTypingTracker(2*time.Second, &fakeScheduler{})
	return &routerFixture{
		registry:  registry,
		transport: tr,
		store:     st,
		memory:    memory,
		typing:    typing,
		router:    NewRouter(registry, presence, st, tr, typing, log, 100*time.Millisecond),
	}
}

func newMemoryFixture() *routerFixture {
	memory := store.NewMemoryStore()
	return newRouterFixture(memory, memory)
}
