// Package server models ephemeral typing state with an explicit expiry,
// driven by a scheduler abstraction rather than ad-hoc per-call timers.
package server

import (
	"sync"
	"time"
)

// timerHandle cancels a pending expiry.
type timerHandle interface {
	Stop() bool
}

// scheduler arms expiry callbacks for typing entries. Tests substitute a
// manual implementation.
type scheduler interface {
	AfterFunc(d time.Duration, f func()) timerHandle
}

// wallScheduler is the production scheduler backed by the runtime timers.
type wallScheduler struct{}

func (wallScheduler) AfterFunc(d time.Duration, f func()) timerHandle {
	return time.AfterFunc(d, f)
}

type typingKey struct {
	chatID string
	userID string
}

type typingEntry struct {
	timer timerHandle
}

// typingTracker records who is typing in which chat. An entry is created on
// the first typing event after idle, refreshed on each subsequent event, and
// destroyed on explicit stop, message send, disconnect, or after the
// inactivity TTL. Expiry only clears internal state; the tracker never emits
// a stop-typing event on behalf of the user.
type typingTracker struct {
	mu      sync.Mutex
	ttl     time.Duration
	sched   scheduler
	entries map[typingKey]*typingEntry
}

func newTypingTracker(ttl time.Duration, sched scheduler) *typingTracker {
	if ttl <= 0 {
		ttl = 2 * time.Second
	}
	if sched == nil {
		sched = wallScheduler{}
	}
	return &typingTracker{
		ttl:     ttl,
		sched:   sched,
		entries: make(map[typingKey]*typingEntry),
	}
}

// Touch records a typing event for (chatID, userID), re-arming the expiry.
// It reports whether this started a new typing episode.
func (t *typingTracker) Touch(chatID, userID string) bool {
	key := typingKey{chatID: chatID, userID: userID}

	t.mu.Lock()
	defer t.mu.Unlock()

	prev, existed := t.entries[key]
	if existed {
		prev.timer.Stop()
	}

	entry := &typingEntry{}
	// An expiry that already fired for a replaced entry must not evict the
	// replacement, so expiry is keyed to the entry identity.
	entry.timer = t.sched.AfterFunc(t.ttl, func() {
		t.expire(key, entry)
	})
	t.entries[key] = entry
	return !existed
}

// Stop clears the typing entry for (chatID, userID) and reports whether one
// existed.
func (t *typingTracker) Stop(chatID, userID string) bool {
	key := typingKey{chatID: chatID, userID: userID}

	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[key]
	if !ok {
		return false
	}
	entry.timer.Stop()
	delete(t.entries, key)
	return true
}

// StopAllFor clears every typing entry held by userID across chats.
func (t *typingTracker) StopAllFor(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key, entry := range t.entries {
		if key.userID == userID {
			entry.timer.Stop()
			delete(t.entries, key)
		}
	}
}

// Active reports the number of live typing entries.
func (t *typingTracker) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *typingTracker) expire(key typingKey, entry *typingEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.entries[key] == entry {
		delete(t.entries, key)
	}
}
