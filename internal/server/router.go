// Package server routes inbound client events through the Router: login,
// message relay, typing notifications, online-user resync, and disconnect.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/lo"

	"github.com/PrajwalShete/chat-app-v4/internal/store"
)

// Router validates the authenticated sender of each inbound event and either
// mutates the session registry, calls the durable store, or forwards the
// event to the recipient's bound connection.
//
// Registry state is the authoritative live-presence view. Store failures are
// surfaced only to the calling connection and never roll back a registry
// mutation that already happened; store state is eventually-consistent
// persistence. No registry lock is ever held across a store call.
type Router struct {
	registry     *SessionRegistry
	presence     *PresenceBroadcaster
	store        store.DurableStore
	transport    transport
	typing       *typingTracker
	log          *slog.Logger
	storeTimeout time.Duration
}

// NewRouter wires the router to its collaborators.
func NewRouter(registry *SessionRegistry, presence *PresenceBroadcaster, st store.DurableStore, tr transport, typing *typingTracker, log *slog.Logger, storeTimeout time.Duration) *Router {
	if storeTimeout <= 0 {
		storeTimeout = 10 * time.Second
	}
	return &Router{
		registry:     registry,
		presence:     presence,
		store:        st,
		transport:    tr,
		typing:       typing,
		log:          log,
		storeTimeout: storeTimeout,
	}
}

// Login binds userID to the connection, replacing any prior binding for the
// same user (last login wins; the replaced connection is not closed). The
// bind is visible to concurrent readers before the store status update runs,
// and a store failure does not undo it: it is reported to the caller as a
// non-fatal warning. On completion the presence change and a full online
// snapshot are broadcast.
func (r *Router) Login(c *Client, userID string) {
	if userID == "" {
		c.log.Warn("login with empty userId rejected")
		r.transport.SendTo(c.id, errorFrame(fmt.Errorf("%w: login requires a userId", ErrAuthRequired)))
		return
	}

	prev, replaced := r.registry.Bind(userID, c.id)
	c.userID = userID
	metricOnlineUsers.Set(float64(r.registry.Len()))

	if replaced && prev != c.id {
		r.log.Info("login superseded previous session", "userId", userID, "prevConnId", prev, "connId", c.id)
	} else {
		r.log.Info("user logged in", "userId", userID, "connId", c.id)
	}

	if err := r.setStatus(userID, store.StatusOnline); err != nil {
		// Delivery is not blocked on persistence; the bind stands.
		r.log.Warn("store status update failed on login", "userId", userID, "error", err)
		r.transport.SendTo(c.id, errorFrame(err))
	}

	r.presence.Announce(userID, StatusOnline)
	r.presence.BroadcastSnapshot()
}

// SendMessage persists the message and relays it: an ack with the
// store-assigned id goes back to the sender, and each other participant that
// is currently bound receives a newMessage event on its one bound handle.
// Offline participants get nothing — no error, no queuing; the durable store
// is their sole recovery path.
func (r *Router) SendMessage(c *Client, chatID, text string) {
	senderID := c.userID
	if senderID == "" {
		c.log.Warn("unauthenticated message attempt")
		r.transport.SendTo(c.id, errorFrame(ErrAuthRequired))
		return
	}

	chat, err := r.getChat(chatID)
	if err != nil {
		c.log.Warn("sendMessage chat lookup failed", "chatId", chatID, "error", err)
		r.transport.SendTo(c.id, errorFrame(err))
		return
	}

	env, err := r.appendMessage(store.MessageEnvelope{
		ChatID:   chatID,
		SenderID: senderID,
		Text:     text,
	})
	if err != nil {
		// Reported to the sender only; the caller decides whether to resend.
		c.log.Warn("message persistence failed", "chatId", chatID, "error", err)
		r.transport.SendTo(c.id, errorFrame(err))
		return
	}

	if err := r.updateLastMessage(chatID, text, senderID, env.CreatedAt); err != nil {
		// The message itself is persisted; a stale preview is tolerable.
		r.log.Warn("last-message update failed", "chatId", chatID, "error", err)
	}

	// Sending a message implicitly ends the sender's typing episode.
	r.typing.Stop(chatID, senderID)

	// Ack the sender with the persisted id. The send fails harmlessly if the
	// sender disconnected while the store write was in flight.
	ack := messageEvent{
		Type:      EventMessageSent,
		ID:        env.ID,
		ChatID:    env.ChatID,
		SenderID:  env.SenderID,
		Text:      env.Text,
		CreatedAt: env.CreatedAt,
	}
	if !r.transport.SendTo(c.id, encodeEvent(ack)) {
		r.log.Info("sender gone before ack delivery", "userId", senderID, "chatId", chatID)
	}

	delivery := ack
	delivery.Type = EventNewMessage
	payload := encodeEvent(delivery)

	recipients := lo.Filter(chat.Participants, func(p string, _ int) bool {
		return p != senderID
	})
	for _, participant := range recipients {
		handle, ok := r.registry.Lookup(participant)
		if !ok {
			continue
		}
		if !r.transport.SendTo(handle, payload) {
			r.log.Warn("delivery to bound handle failed", "userId", participant, "connId", handle)
		}
	}

	metricMessagesRelayed.Inc()
}

// Typing forwards a typing notification to each other participant's bound
// handle. Unauthenticated or unknown-chat typing events fail silently; they
// are logged, never surfaced.
func (r *Router) Typing(c *Client, chatID string) {
	r.forwardTyping(c, chatID, EventUserTyping)
}

// StopTyping forwards an explicit stop-typing notification the same way
// Typing forwards a start.
func (r *Router) StopTyping(c *Client, chatID string) {
	r.forwardTyping(c, chatID, EventUserStoppedTyping)
}

func (r *Router) forwardTyping(c *Client, chatID, eventType string) {
	userID := c.userID
	if userID == "" {
		c.log.Warn("unauthenticated typing event", "event", eventType)
		return
	}

	chat, err := r.getChat(chatID)
	if err != nil {
		r.log.Warn("typing event chat lookup failed", "chatId", chatID, "event", eventType, "error", err)
		return
	}

	if eventType == EventUserTyping {
		if r.typing.Touch(chatID, userID) {
			r.log.Debug("typing episode started", "userId", userID, "chatId", chatID)
		}
	} else {
		r.typing.Stop(chatID, userID)
	}

	payload := encodeEvent(typingEvent{Type: eventType, ChatID: chatID, UserID: userID})
	for _, participant := range chat.Participants {
		if participant == userID {
			continue
		}
		if handle, ok := r.registry.Lookup(participant); ok {
			r.transport.SendTo(handle, payload)
		}
	}
}

// OnlineUsers answers a client resync request. The full list is broadcast to
// every connection, not just the requester, so all clients converge on the
// same view.
func (r *Router) OnlineUsers(c *Client) {
	r.log.Info("online users resync requested", "connId", c.id)
	r.presence.BroadcastSnapshot()
}

// Disconnect handles the end of a connection. The registry entry is removed
// only if this connection is still the active session for its user; a stale
// disconnect from a superseded session is a pure no-op for presence. Only an
// actual removal triggers the offline status write and broadcasts.
func (r *Router) Disconnect(c *Client) {
	userID := c.userID
	if userID == "" {
		return
	}

	if !r.registry.Unbind(userID, c.id) {
		r.log.Info("stale disconnect ignored, user online on another connection", "userId", userID, "connId", c.id)
		return
	}
	metricOnlineUsers.Set(float64(r.registry.Len()))

	r.typing.StopAllFor(userID)

	if err := r.setStatus(userID, store.StatusOffline); err != nil {
		// The caller is gone; nothing to report to.
		r.log.Warn("store status update failed on disconnect", "userId", userID, "error", err)
	}

	r.log.Info("user disconnected", "userId", userID, "connId", c.id)
	r.presence.Announce(userID, StatusOffline)
	r.presence.BroadcastSnapshot()
}

// storeCtx bounds a durable store call; the store is the only collaborator
// allowed to block for I/O.
func (r *Router) storeCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), r.storeTimeout)
}

func (r *Router) getChat(chatID string) (store.ChatRef, error) {
	ctx, cancel := r.storeCtx()
	defer cancel()

	chat, err := r.store.GetChat(ctx, chatID)
	switch {
	case err == nil:
		return chat, nil
	case errors.Is(err, store.ErrNotFound):
		return store.ChatRef{}, ErrChatNotFound
	default:
		return store.ChatRef{}, r.storeErr(err)
	}
}

func (r *Router) appendMessage(env store.MessageEnvelope) (store.MessageEnvelope, error) {
	ctx, cancel := r.storeCtx()
	defer cancel()

	persisted, err := r.store.AppendMessage(ctx, env)
	if err != nil {
		return store.MessageEnvelope{}, r.storeErr(err)
	}
	return persisted, nil
}

func (r *Router) updateLastMessage(chatID, text, senderID string, ts time.Time) error {
	ctx, cancel := r.storeCtx()
	defer cancel()

	if err := r.store.UpdateLastMessage(ctx, chatID, text, senderID, ts); err != nil {
		return r.storeErr(err)
	}
	return nil
}

func (r *Router) setStatus(userID string, status store.UserStatus) error {
	ctx, cancel := r.storeCtx()
	defer cancel()

	if err := r.store.SetUserStatus(ctx, userID, status); err != nil {
		return r.storeErr(err)
	}
	return nil
}

// storeErr classifies a failed store call and counts it.
func (r *Router) storeErr(err error) error {
	metricStoreFailures.Inc()
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrStoreTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrStoreWrite, err)
}
