package duel

import "sync"

// Registry is the process-wide table of active sessions keyed by match ID.
// The registry lock guards only the matchID -> session mapping; each
// session serializes its own internal state, so unrelated matches never
// contend on a shared lock.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
	}
}

// Register inserts a session under its match ID.
func (r *Registry) Register(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.MatchID()] = s
}

// Get retrieves a session by match ID, or nil if not present.
func (r *Registry) Get(matchID string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[matchID]
}

// Evict removes a session by match ID.
func (r *Registry) Evict(matchID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, matchID)
}

// ByPlayer returns the sessions a user is currently part of. Normally at
// most one, but eviction is asynchronous to pairing so callers must not
// assume that.
func (r *Registry) ByPlayer(userID int64) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*Session
	for _, s := range r.sessions {
		if s.HasPlayer(userID) {
			result = append(result, s)
		}
	}
	return result
}

// Count returns the number of active sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
