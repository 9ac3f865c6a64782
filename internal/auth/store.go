package auth

import (
	"strings"
	"sync"
)

// User is a registered identity. Emails are stored lowercased and act as
// the primary key.
type User struct {
	Username     string
	Email        string
	PasswordHash string
}

// Store is the volatile in-memory identity store. Nothing survives a
// process restart.
type Store struct {
	mu    sync.RWMutex
	users map[string]User
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{users: make(map[string]User)}
}

// Create inserts a user unless the username or email is already taken,
// compared case-insensitively.
func (s *Store) Create(user User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(user.Email)
	for email, existing := range s.users {
		if email == key || strings.EqualFold(existing.Username, user.Username) {
			return ErrConflict
		}
	}
	user.Email = key
	s.users[key] = user
	return nil
}

// ByEmail looks a user up by (lowercased) email.
func (s *Store) ByEmail(email string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[strings.ToLower(email)]
	return user, ok
}

// ByEmailOrUsername resolves a login identifier case-insensitively.
func (s *Store) ByEmailOrUsername(q string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if user, ok := s.users[strings.ToLower(q)]; ok {
		return user, true
	}
	for _, user := range s.users {
		if strings.EqualFold(user.Username, q) {
			return user, true
		}
	}
	return User{}, false
}
