// internal/session/registry.go
package session

import (
	"log"
	"sync"
)

// Registry tracks which identities currently hold a live connection.
// All map mutations happen under mu; broadcasts go out on a snapshot taken
// under the lock so a slow client can never block registration.
type Registry struct {
	mu       sync.Mutex
	sessions map[int64]*Session

	// OnEvict runs after a reconnect replaces an older session, with the
	// replaced session. Wired at startup to release whatever the old
	// connection held (queue entry, live match, tournament membership) so
	// the replacement never inherits wedged state. Called without the
	// registry lock.
	OnEvict func(old *Session)
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[int64]*Session),
	}
}

// Register stores sess as the live session for its identity. If the
// identity already has a live session, that older connection is told it is
// being replaced and torn down first. Broadcasts the updated online list.
func (r *Registry) Register(sess *Session) {
	r.mu.Lock()
	var evicted *Session
	if old, ok := r.sessions[sess.UserID]; ok && old != sess {
		log.Printf("registry: user %d reconnected, evicting previous session", sess.UserID)
		old.Write(map[string]interface{}{
			"type":    "forced_disconnect",
			"message": "connected from another location",
		})
		old.Close()
		evicted = old
	}
	r.sessions[sess.UserID] = sess
	snapshot := r.snapshotUnsafe()
	r.mu.Unlock()

	if evicted != nil && r.OnEvict != nil {
		r.OnEvict(evicted)
	}
	broadcastOnlineUsers(snapshot)
}

// Lookup resolves an identity to its live session.
func (r *Registry) Lookup(userID int64) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[userID]
	return s, ok
}

// Unregister removes sess only if it is still the stored session for its
// identity, and reports whether it did. A stale unregister racing a newer
// reconnect is a no-op, so the replacement connection survives its
// predecessor's cleanup; callers skip room/queue/tournament cleanup when
// this returns false.
func (r *Registry) Unregister(sess *Session) bool {
	r.mu.Lock()
	cur, ok := r.sessions[sess.UserID]
	if !ok || cur != sess {
		r.mu.Unlock()
		return false
	}
	delete(r.sessions, sess.UserID)
	snapshot := r.snapshotUnsafe()
	r.mu.Unlock()

	sess.Close()
	broadcastOnlineUsers(snapshot)
	return true
}

// Snapshot returns the current live sessions.
func (r *Registry) Snapshot() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotUnsafe()
}

func (r *Registry) snapshotUnsafe() []*Session {
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

func broadcastOnlineUsers(sessions []*Session) {
	users := make([]map[string]interface{}, 0, len(sessions))
	for _, s := range sessions {
		users = append(users, map[string]interface{}{
			"id":       s.UserID,
			"username": s.Username,
		})
	}
	msg := map[string]interface{}{
		"type":  "online_users",
		"users": users,
	}
	for _, s := range sessions {
		s.Write(msg)
	}
}
