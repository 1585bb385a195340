package push

import (
	"log/slog"
	"sync"
)

// Registry maps a user identity to its set of live push sessions. It is the
// only shared mutable state on the delivery path: every register, unregister
// and lookup goes through the one lock.
type Registry struct {
	mu     sync.RWMutex
	active map[string]map[string]Session
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{
		active: make(map[string]map[string]Session),
	}
}

// Register adds a session to its identity's live set. Re-registering the
// same session id is a no-op; a different connection under the same id
// replaces (and closes) the old one.
func (r *Registry) Register(sess Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity := sess.Identity()
	if _, exists := r.active[identity]; !exists {
		r.active[identity] = make(map[string]Session)
	}

	if existing, exists := r.active[identity][sess.ID()]; exists {
		if existing == sess {
			return
		}
		existing.Close("session replaced")
	}

	r.active[identity][sess.ID()] = sess
	slog.Info("Push session registered", "user_id", identity, "session_id", sess.ID())
}

// Unregister removes a session from its identity's live set. It is a no-op
// when the session was never registered or already removed: the transport
// does not guarantee disconnect ordering relative to connect.
func (r *Registry) Unregister(identity, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions, ok := r.active[identity]
	if !ok {
		return
	}
	if _, exists := sessions[sessionID]; !exists {
		return
	}
	delete(sessions, sessionID)
	if len(sessions) == 0 {
		delete(r.active, identity)
	}
	slog.Info("Push session unregistered", "user_id", identity, "session_id", sessionID)
}

// SessionsFor returns a snapshot of the identity's live sessions. Sessions
// may disconnect after the snapshot is taken; pushing to one of those fails
// softly at the session and never corrupts registry state.
func (r *Registry) SessionsFor(identity string) []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions, ok := r.active[identity]
	if !ok {
		return nil
	}
	snapshot := make([]Session, 0, len(sessions))
	for _, s := range sessions {
		snapshot = append(snapshot, s)
	}
	return snapshot
}

// CloseAll forcefully terminates every live session for an identity.
func (r *Registry) CloseAll(identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions, ok := r.active[identity]
	if !ok {
		return
	}
	for sid, s := range sessions {
		s.Close("session closed")
		slog.Info("Push session closed", "user_id", identity, "session_id", sid)
	}
	delete(r.active, identity)
}
