package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// BadgerStore persists chats, messages, and user presence in BadgerDB.
//
// Key layout:
//
//	chat:<chatId>                     -> ChatRef (JSON)
//	last:<chatId>                     -> LastMessage (JSON)
//	msg:<chatId>:<unixNano>:<msgId>   -> MessageEnvelope (JSON)
//	user:<userId>                     -> userRecord (JSON)
//
// Message keys embed a zero-padded nanosecond timestamp so a prefix scan
// yields messages in append order.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore wraps an already-opened Badger database.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

type userRecord struct {
	Status   UserStatus `json:"status"`
	LastSeen time.Time  `json:"lastSeen"`
}

func chatKey(chatID string) []byte {
	return []byte("chat:" + chatID)
}

func lastMessageKey(chatID string) []byte {
	return []byte("last:" + chatID)
}

func messageKey(chatID string, ts time.Time, id string) []byte {
	return []byte(fmt.Sprintf("msg:%s:%020d:%s", chatID, ts.UnixNano(), id))
}

func userKey(userID string) []byte {
	return []byte("user:" + userID)
}

// GetChat returns the chat for chatID or ErrNotFound.
func (s *BadgerStore) GetChat(ctx context.Context, chatID string) (ChatRef, error) {
	if err := ctx.Err(); err != nil {
		return ChatRef{}, err
	}

	var chat ChatRef
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(chatKey(chatID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &chat)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ChatRef{}, ErrNotFound
	}
	if err != nil {
		return ChatRef{}, fmt.Errorf("get chat %s: %w", chatID, err)
	}
	return chat, nil
}

// AppendMessage persists the envelope with a store-assigned ID and timestamp.
func (s *BadgerStore) AppendMessage(ctx context.Context, env MessageEnvelope) (MessageEnvelope, error) {
	if err := ctx.Err(); err != nil {
		return MessageEnvelope{}, err
	}

	env.ID = uuid.NewString()
	env.CreatedAt = time.Now().UTC()

	data, err := json.Marshal(env)
	if err != nil {
		return MessageEnvelope{}, fmt.Errorf("marshal message: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(env.ChatID, env.CreatedAt, env.ID), data)
	})
	if err != nil {
		return MessageEnvelope{}, fmt.Errorf("append message to %s: %w", env.ChatID, err)
	}
	return env, nil
}

// UpdateLastMessage refreshes the chat's last-message preview.
func (s *BadgerStore) UpdateLastMessage(ctx context.Context, chatID, text, senderID string, ts time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(LastMessage{Text: text, SenderID: senderID, Timestamp: ts})
	if err != nil {
		return fmt.Errorf("marshal last message: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(lastMessageKey(chatID), data)
	})
	if err != nil {
		return fmt.Errorf("update last message for %s: %w", chatID, err)
	}
	return nil
}

// SetUserStatus records the user's presence transition along with a
// last-seen timestamp.
func (s *BadgerStore) SetUserStatus(ctx context.Context, userID string, status UserStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(userRecord{Status: status, LastSeen: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal user record: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(userKey(userID), data)
	})
	if err != nil {
		return fmt.Errorf("set status for %s: %w", userID, err)
	}
	return nil
}

// CreateChat registers a new chat and returns it with an assigned ChatID.
func (s *BadgerStore) CreateChat(ctx context.Context, participants []string) (ChatRef, error) {
	if err := ctx.Err(); err != nil {
		return ChatRef{}, err
	}

	chat := ChatRef{
		ChatID:       uuid.NewString(),
		Participants: append([]string(nil), participants...),
	}

	data, err := json.Marshal(chat)
	if err != nil {
		return ChatRef{}, fmt.Errorf("marshal chat: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(chatKey(chat.ChatID), data)
	})
	if err != nil {
		return ChatRef{}, fmt.Errorf("create chat: %w", err)
	}
	return chat, nil
}

// Messages returns all persisted messages for a chat in append order.
func (s *BadgerStore) Messages(ctx context.Context, chatID string) ([]MessageEnvelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []MessageEnvelope
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		prefix := []byte("msg:" + chatID + ":")
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var env MessageEnvelope
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &env)
			})
			if err != nil {
				return err
			}
			out = append(out, env)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list messages for %s: %w", chatID, err)
	}
	return out, nil
}
