package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process DurableStore used by tests and local runs.
type MemoryStore struct {
	mu       sync.RWMutex
	chats    map[string]ChatRef
	messages map[string][]MessageEnvelope
	last     map[string]LastMessage
	statuses map[string]UserStatus
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		chats:    make(map[string]ChatRef),
		messages: make(map[string][]MessageEnvelope),
		last:     make(map[string]LastMessage),
		statuses: make(map[string]UserStatus),
	}
}

// GetChat returns the chat for chatID or ErrNotFound.
func (s *MemoryStore) GetChat(ctx context.Context, chatID string) (ChatRef, error) {
	if err := ctx.Err(); err != nil {
		return ChatRef{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	chat, ok := s.chats[chatID]
	if !ok {
		return ChatRef{}, ErrNotFound
	}
	return chat, nil
}

// AppendMessage stores the envelope with an assigned ID and timestamp.
func (s *MemoryStore) AppendMessage(ctx context.Context, env MessageEnvelope) (MessageEnvelope, error) {
	if err := ctx.Err(); err != nil {
		return MessageEnvelope{}, err
	}

	env.ID = uuid.NewString()
	env.CreatedAt = time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[env.ChatID] = append(s.messages[env.ChatID], env)
	return env, nil
}

// UpdateLastMessage refreshes the chat's last-message preview.
func (s *MemoryStore) UpdateLastMessage(ctx context.Context, chatID, text, senderID string, ts time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.last[chatID] = LastMessage{Text: text, SenderID: senderID, Timestamp: ts}
	return nil
}

// SetUserStatus records the user's presence transition.
func (s *MemoryStore) SetUserStatus(ctx context.Context, userID string, status UserStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[userID] = status
	return nil
}

// CreateChat registers a new chat and returns it with an assigned ChatID.
func (s *MemoryStore) CreateChat(ctx context.Context, participants []string) (ChatRef, error) {
	if err := ctx.Err(); err != nil {
		return ChatRef{}, err
	}

	chat := ChatRef{
		ChatID:       uuid.NewString(),
		Participants: append([]string(nil), participants...),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats[chat.ChatID] = chat
	return chat, nil
}

// Messages returns all stored messages for a chat in append order.
func (s *MemoryStore) Messages(ctx context.Context, chatID string) ([]MessageEnvelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]MessageEnvelope(nil), s.messages[chatID]...), nil
}

// UserStatus reports the last persisted presence for userID.
func (s *MemoryStore) UserStatus(userID string) (UserStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status, ok := s.statuses[userID]
	return status, ok
}

// LastMessageFor reports the stored last-message preview for chatID.
func (s *MemoryStore) LastMessageFor(chatID string) (LastMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	last, ok := s.last[chatID]
	return last, ok
}
