// Package store defines the durable-store boundary consumed by the relay
// core, along with its Badger-backed and in-memory implementations.
package store

import (
	"context"
	"errors"
	"time"
)

// UserStatus is the persisted presence value for a user.
type UserStatus string

// Persisted presence values.
const (
	StatusOnline  UserStatus = "online"
	StatusOffline UserStatus = "offline"
)

// ErrNotFound is returned when a requested chat does not exist.
var ErrNotFound = errors.New("store: not found")

// ChatRef describes a two-party chat. The relay core only reads the
// participant list to compute routing targets; membership is owned here.
type ChatRef struct {
	ChatID       string   `json:"chatId"`
	Participants []string `json:"participants"`
}

// MessageEnvelope is one persisted chat message. ID and CreatedAt are
// assigned by the store on a successful append, never by the caller.
type MessageEnvelope struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chatId"`
	SenderID  string    `json:"senderId"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// LastMessage is the denormalized chat preview updated on every send.
type LastMessage struct {
	Text      string    `json:"text"`
	SenderID  string    `json:"senderId"`
	Timestamp time.Time `json:"timestamp"`
}

// DurableStore is the persistence collaborator of the relay core. Calls may
// block on I/O and must honor the deadline on the provided context; they fail
// independently of connection state and are never retried by the core.
type DurableStore interface {
	// GetChat returns the chat for chatID or ErrNotFound.
	GetChat(ctx context.Context, chatID string) (ChatRef, error)

	// AppendMessage persists the envelope, assigning its ID and CreatedAt.
	// The returned envelope carries the assigned fields.
	AppendMessage(ctx context.Context, env MessageEnvelope) (MessageEnvelope, error)

	// UpdateLastMessage refreshes the chat's last-message preview.
	UpdateLastMessage(ctx context.Context, chatID, text, senderID string, ts time.Time) error

	// SetUserStatus records the user's presence transition.
	SetUserStatus(ctx context.Context, userID string, status UserStatus) error

	// CreateChat registers a new chat between the given participants and
	// returns it with a freshly assigned ChatID.
	CreateChat(ctx context.Context, participants []string) (ChatRef, error)

	// Messages returns all persisted messages for a chat in append order.
	Messages(ctx context.Context, chatID string) ([]MessageEnvelope, error)
}
