// Package server tracks which user is bound to which live connection via the
// SessionRegistry, the source of truth for "who is online".
package server

import (
	"sort"
	"sync"

	"github.com/samber/lo"
)

// ConnID is the opaque handle of one live transport connection.
type ConnID string

// SessionRegistry maps a user identity to its single active connection.
// At most one binding exists per user at any instant; a new login for the
// same user replaces the previous binding (last login wins). The registry is
// process-local and rebuilt from zero on restart.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]ConnID
}

// NewSessionRegistry returns an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]ConnID)}
}

// Bind unconditionally binds userID to handle, overwriting any prior
// binding. It returns the previous handle, if one existed, so the caller can
// tell whether an older connection is now orphaned. The orphaned connection
// is not closed here.
func (r *SessionRegistry) Bind(userID string, handle ConnID) (prev ConnID, replaced bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, replaced = r.sessions[userID]
	r.sessions[userID] = handle
	return prev, replaced
}

// Unbind removes the binding for userID only if the stored handle equals
// handle, so a stale disconnect from a replaced session cannot evict a newer
// login. It reports whether removal occurred.
func (r *SessionRegistry) Unbind(userID string, handle ConnID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sessions[userID] != handle {
		return false
	}
	delete(r.sessions, userID)
	return true
}

// Lookup returns the handle currently bound for userID.
func (r *SessionRegistry) Lookup(userID string) (ConnID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handle, ok := r.sessions[userID]
	return handle, ok
}

// UserIDs returns a sorted snapshot of all currently bound user ids.
func (r *SessionRegistry) UserIDs() []string {
	r.mu.RLock()
	ids := lo.Keys(r.sessions)
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Bindings returns a snapshot of the full userID to handle mapping.
func (r *SessionRegistry) Bindings() map[string]ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]ConnID, len(r.sessions))
	for userID, handle := range r.sessions {
		out[userID] = handle
	}
	return out
}

// Len reports the number of currently bound users.
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
