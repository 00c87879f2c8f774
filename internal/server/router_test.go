package server

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/PrajwalShete/chat-app-v4/internal/store"
)

func TestRouterLoginBindsAndBroadcasts(t *testing.T) {
	req := require.New(t)
	f := newMemoryFixture()
	c := newBareClient("h1")

	f.router.Login(c, "u1")

	handle, ok := f.registry.Lookup("u1")
	req.True(ok)
	req.Equal(ConnID("h1"), handle)

	online := f.transport.broadcastsOfType(EventUserStatusChanged)
	req.Len(online, 1)
	req.Equal("u1", online[0]["userId"])
	req.Equal(StatusOnline, online[0]["status"])

	lists := f.transport.broadcastsOfType(EventOnlineUsersList)
	req.Len(lists, 1)
	req.Equal([]any{"u1"}, lists[0]["userIds"])

	status, ok := f.memory.UserStatus("u1")
	req.True(ok)
	req.Equal(store.StatusOnline, status)
}

func TestRouterLoginEmptyUserIDRejected(t *testing.T) {
	req := require.New(t)
	f := newMemoryFixture()
	c := newBareClient("h1")

	f.router.Login(c, "")

	req.Zero(f.registry.Len())
	frames := f.transport.framesOfType("h1", EventError)
	req.Len(frames, 1)
	req.Equal("auth_required", frames[0]["code"])
}

func TestRouterLoginStoreFailureStillBinds(t *testing.T) {
	req := require.New(t)
	memory := store.NewMemoryStore()
	f := newRouterFixture(&failingStore{MemoryStore: memory, failStatus: true}, memory)
	c := newBareClient("h1")

	f.router.Login(c, "u1")

	// The bind is authoritative even though persistence failed.
	_, ok := f.registry.Lookup("u1")
	req.True(ok)

	// The failure is reported to the caller only, as a non-fatal warning.
	frames := f.transport.framesOfType("h1", EventError)
	req.Len(frames, 1)
	req.Equal("store_error", frames[0]["code"])

	// Presence broadcasts still fire.
	req.Len(f.transport.broadcastsOfType(EventUserStatusChanged), 1)
	req.Len(f.transport.broadcastsOfType(EventOnlineUsersList), 1)
}

func TestRouterSendMessageRequiresLogin(t *testing.T) {
	req := require.New(t)
	f := newMemoryFixture()
	c := newBareClient("h1")

	f.router.SendMessage(c, "chat-1", "hello")

	frames := f.transport.framesOfType("h1", EventError)
	req.Len(frames, 1)
	req.Equal("auth_required", frames[0]["code"])
}

func TestRouterSendMessageChatNotFound(t *testing.T) {
	req := require.New(t)
	f := newMemoryFixture()
	c := newBareClient("h1")
	f.router.Login(c, "u1")

	f.router.SendMessage(c, "missing-chat", "hello")

	frames := f.transport.framesOfType("h1", EventError)
	req.Len(frames, 1)
	req.Equal("chat_not_found", frames[0]["code"])
}

func TestRouterSendMessageDeliversToBoundRecipient(t *testing.T) {
	req := require.New(t)
	f := newMemoryFixture()

	chat, err := f.memory.CreateChat(context.Background(), []string{"alice", "bob"})
	req.NoError(err)

	sender := newBareClient("hA")
	recipient := newBareClient("hB")
	f.router.Login(sender, "alice")
	f.router.Login(recipient, "bob")

	f.router.SendMessage(sender, chat.ChatID, "hi bob")

	acks := f.transport.framesOfType("hA", EventMessageSent)
	req.Len(acks, 1)
	req.NotEmpty(acks[0]["id"])
	req.Equal("alice", acks[0]["senderId"])

	delivered := f.transport.framesOfType("hB", EventNewMessage)
	req.Len(delivered, 1)
	req.Equal(acks[0]["id"], delivered[0]["id"])
	req.Equal(chat.ChatID, delivered[0]["chatId"])
	req.Equal("hi bob", delivered[0]["text"])

	// The sender never receives their own message as newMessage.
	req.Empty(f.transport.framesOfType("hA", EventNewMessage))

	// Round-trip: the persisted envelope equals the delivered one.
	msgs, err := f.memory.Messages(context.Background(), chat.ChatID)
	req.NoError(err)
	req.Len(msgs, 1)
	req.Equal(acks[0]["id"], msgs[0].ID)
	req.Equal("hi bob", msgs[0].Text)
	req.Equal("alice", msgs[0].SenderID)

	// The last-message preview was refreshed.
	last, ok := f.memory.LastMessageFor(chat.ChatID)
	req.True(ok)
	req.Equal("hi bob", last.Text)
	req.Equal("alice", last.SenderID)
}

func TestRouterSendMessageOfflineRecipientGetsNothing(t *testing.T) {
	req := require.New(t)
	f := newMemoryFixture()

	chat, err := f.memory.CreateChat(context.Background(), []string{"alice", "bob"})
	req.NoError(err)

	sender := newBareClient("hA")
	f.router.Login(sender, "alice")

	f.router.SendMessage(sender, chat.ChatID, "anyone there?")

	// No delivery attempt and no error: persistence is the recovery path.
	req.Len(f.transport.framesOfType("hA", EventMessageSent), 1)
	req.Empty(f.transport.framesOfType("hA", EventError))

	msgs, err := f.memory.Messages(context.Background(), chat.ChatID)
	req.NoError(err)
	req.Len(msgs, 1)
}

func TestRouterSendMessageDeadRecipientHandleSwallowed(t *testing.T) {
	req := require.New(t)
	f := newMemoryFixture()

	chat, err := f.memory.CreateChat(context.Background(), []string{"alice", "bob"})
	req.NoError(err)

	sender := newBareClient("hA")
	recipient := newBareClient("hB")
	f.router.Login(sender, "alice")
	f.router.Login(recipient, "bob")
	f.transport.markDead("hB")

	f.router.SendMessage(sender, chat.ChatID, "hi")

	// The transport fault is swallowed; the sender still gets the ack and
	// no error frame.
	req.Len(f.transport.framesOfType("hA", EventMessageSent), 1)
	req.Empty(f.transport.framesOfType("hA", EventError))
}

func TestRouterSendMessagePersistFailureReportedToSenderOnly(t *testing.T) {
	req := require.New(t)
	memory := store.NewMemoryStore()
	f := newRouterFixture(&failingStore{MemoryStore: memory, failAppend: true}, memory)

	chat, err := memory.CreateChat(context.Background(), []string{"alice", "bob"})
	req.NoError(err)

	sender := newBareClient("hA")
	recipient := newBareClient("hB")
	f.router.Login(sender, "alice")
	f.router.Login(recipient, "bob")

	f.router.SendMessage(sender, chat.ChatID, "hi")

	frames := f.transport.framesOfType("hA", EventError)
	req.Len(frames, 1)
	req.Equal("store_error", frames[0]["code"])

	req.Empty(f.transport.framesOfType("hA", EventMessageSent))
	req.Empty(f.transport.framesOfType("hB", EventNewMessage))
}

func TestRouterStoreTimeoutSurfacedAsTimeout(t *testing.T) {
	req := require.New(t)
	memory := store.NewMemoryStore()
	f := newRouterFixture(&slowStore{MemoryStore: memory}, memory)

	c := newBareClient("h1")
	f.router.Login(c, "u1")

	f.router.SendMessage(c, "chat-1", "hello")

	frames := f.transport.framesOfType("h1", EventError)
	req.Len(frames, 1)
	req.Equal("store_timeout", frames[0]["code"])
}

func TestRouterTypingForwardedToOtherParticipantOnly(t *testing.T) {
	req := require.New(t)
	f := newMemoryFixture()

	chat, err := f.memory.CreateChat(context.Background(), []string{"alice", "bob"})
	req.NoError(err)

	alice := newBareClient("hA")
	bob := newBareClient("hB")
	f.router.Login(alice, "alice")
	f.router.Login(bob, "bob")

	f.router.Typing(alice, chat.ChatID)
	f.router.StopTyping(alice, chat.ChatID)

	typing := f.transport.framesOfType("hB", EventUserTyping)
	req.Len(typing, 1)
	req.Equal("alice", typing[0]["userId"])
	req.Equal(chat.ChatID, typing[0]["chatId"])

	stopped := f.transport.framesOfType("hB", EventUserStoppedTyping)
	req.Len(stopped, 1)

	req.Empty(f.transport.framesOfType("hA", EventUserTyping))
	req.Empty(f.transport.framesOfType("hA", EventUserStoppedTyping))
	req.Zero(f.typing.Active())
}

func TestRouterTypingUnauthenticatedFailsSilently(t *testing.T) {
	req := require.New(t)
	f := newMemoryFixture()
	c := newBareClient("h1")

	f.router.Typing(c, "chat-1")

	req.Empty(f.transport.framesFor("h1"))
	req.Empty(f.transport.broadcasts)
}

func TestRouterTypingUnknownChatFailsSilently(t *testing.T) {
	req := require.New(t)
	f := newMemoryFixture()
	c := newBareClient("h1")
	f.router.Login(c, "u1")

	f.router.Typing(c, "missing-chat")

	req.Empty(f.transport.framesOfType("h1", EventError))
}

func TestRouterSendClearsTypingState(t *testing.T) {
	req := require.New(t)
	f := newMemoryFixture()

	chat, err := f.memory.CreateChat(context.Background(), []string{"alice", "bob"})
	req.NoError(err)

	alice := newBareClient("hA")
	f.router.Login(alice, "alice")

	f.router.Typing(alice, chat.ChatID)
	req.Equal(1, f.typing.Active())

	f.router.SendMessage(alice, chat.ChatID, "done typing")
	req.Zero(f.typing.Active())
}

func TestRouterDisconnectLifecycle(t *testing.T) {
	req := require.New(t)
	f := newMemoryFixture()

	first := newBareClient("h1")
	second := newBareClient("h2")

	f.router.Login(first, "u1")
	req.Equal([]any{"u1"}, f.transport.broadcastsOfType(EventOnlineUsersList)[0]["userIds"])

	// Same user logs in again on a second connection without disconnecting.
	f.router.Login(second, "u1")
	handle, _ := f.registry.Lookup("u1")
	req.Equal(ConnID("h2"), handle)

	// Stale disconnect from the superseded connection: registry unchanged,
	// no offline broadcast.
	before := len(f.transport.broadcastsOfType(EventUserStatusChanged))
	f.router.Disconnect(first)
	handle, ok := f.registry.Lookup("u1")
	req.True(ok)
	req.Equal(ConnID("h2"), handle)
	req.Len(f.transport.broadcastsOfType(EventUserStatusChanged), before)

	// Disconnecting the active connection fires the offline broadcast.
	f.router.Disconnect(second)
	_, ok = f.registry.Lookup("u1")
	req.False(ok)

	changes := f.transport.broadcastsOfType(EventUserStatusChanged)
	req.Equal(StatusOffline, changes[len(changes)-1]["status"])

	status, ok := f.memory.UserStatus("u1")
	req.True(ok)
	req.Equal(store.StatusOffline, status)
}

func TestRouterDisconnectUnauthenticatedNoOp(t *testing.T) {
	req := require.New(t)
	f := newMemoryFixture()

	f.router.Disconnect(newBareClient("h1"))

	req.Empty(f.transport.broadcasts)
}

func TestRouterOnlineUsersResyncBroadcasts(t *testing.T) {
	req := require.New(t)
	f := newMemoryFixture()

	c := newBareClient("h1")
	f.router.Login(c, "u1")

	before := len(f.transport.broadcastsOfType(EventOnlineUsersList))
	f.router.OnlineUsers(c)

	lists := f.transport.broadcastsOfType(EventOnlineUsersList)
	req.Len(lists, before+1)
	req.Equal([]any{"u1"}, lists[len(lists)-1]["userIds"])
}
