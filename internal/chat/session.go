package chat

import "sync"

// SessionState is a connection's authentication status. The transition is
// one-way per connection lifetime: Unauthenticated, then Guest or
// Authenticated, never back without a new physical connection.
type SessionState int

const (
	StateUnauthenticated SessionState = iota
	StateGuest
	StateAuthenticated
)

// Session is the authentication state attached to one connection.
type Session struct {
	State    SessionState
	Username string
	Email    string

	// Onboarded records that the General auto-join and its joined
	// announcement already ran, making re-authentication idempotent.
	Onboarded bool
}

// SessionRegistry tracks per-connection sessions. The coordination engine
// is the sole writer.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionRegistry constructs an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]*Session)}
}

// Begin registers a fresh unauthenticated session for the connection.
func (r *SessionRegistry) Begin(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[connID] = &Session{State: StateUnauthenticated}
}

// Get returns a copy of the connection's session.
func (r *SessionRegistry) Get(connID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[connID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Live reports whether the connection still has a session. Used to discard
// verification results that resolve after a disconnect.
func (r *SessionRegistry) Live(connID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[connID]
	return ok
}

// SetGuest marks the connection as an explicit read-only guest.
func (r *SessionRegistry) SetGuest(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[connID]; ok {
		s.State = StateGuest
		s.Username = ""
		s.Email = ""
	}
}

// SetAuthenticated attaches a resolved identity to the connection.
func (r *SessionRegistry) SetAuthenticated(connID, username, email string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[connID]; ok {
		s.State = StateAuthenticated
		s.Username = username
		s.Email = email
	}
}

// MarkOnboarded flips the onboarded flag and reports whether this call was
// the first to do so.
func (r *SessionRegistry) MarkOnboarded(connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[connID]
	if !ok || s.Onboarded {
		return false
	}
	s.Onboarded = true
	return true
}

// Drop discards the connection's session. Called only on disconnect.
func (r *SessionRegistry) Drop(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, connID)
}

// AuthenticatedCount returns the number of authenticated connections.
func (r *SessionRegistry) AuthenticatedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, s := range r.sessions {
		if s.State == StateAuthenticated {
			count++
		}
	}
	return count
}
