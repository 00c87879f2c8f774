// Package server defines the JSON event frames exchanged with clients over
// the WebSocket transport.
package server

import (
	"encoding/json"
	"log/slog"
	"time"
)

// Inbound event types sent by clients.
const (
	EventLogin          = "login"
	EventSendMessage    = "sendMessage"
	EventTyping         = "typing"
	EventStopTyping     = "stopTyping"
	EventGetOnlineUsers = "getOnlineUsers"
)

// Outbound event types delivered to clients.
const (
	EventMessageSent       = "messageSent"
	EventNewMessage        = "newMessage"
	EventUserTyping        = "userTyping"
	EventUserStoppedTyping = "userStoppedTyping"
	EventUserStatusChanged = "userStatusChanged"
	EventOnlineUsersList   = "onlineUsersList"
	EventError             = "error"
)

// ClientEvent is the inbound frame. Type selects the operation; the other
// fields are populated depending on the type.
type ClientEvent struct {
	Type   string `json:"type"`
	UserID string `json:"userId,omitempty"`
	ChatID string `json:"chatId,omitempty"`
	Text   string `json:"text,omitempty"`
}

type presenceEvent struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
	Status string `json:"status"`
}

type onlineUsersEvent struct {
	Type    string   `json:"type"`
	UserIDs []string `json:"userIds"`
}

type messageEvent struct {
	Type      string    `json:"type"`
	ID        string    `json:"id"`
	ChatID    string    `json:"chatId"`
	SenderID  string    `json:"senderId"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

type typingEvent struct {
	Type   string `json:"type"`
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
}

type errorEvent struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// encodeEvent marshals an outbound frame. The frame structs above contain
// only marshal-safe fields, so a failure indicates a programming error and
// is logged rather than propagated.
func encodeEvent(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to encode outbound event", "error", err)
		return nil
	}
	return data
}
