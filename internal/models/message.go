package models

import "time"

// Log entry kinds.
const (
	TypeMessage = "message"
	TypeSystem  = "system"
)

// System event names recorded on membership transitions.
const (
	SystemUserJoined      = "user-joined"
	SystemUserLeft        = "user-left"
	SystemUserJoinedGroup = "user-joined-group"
	SystemUserLeftGroup   = "user-left-group"
)

// ChatMessage is one immutable entry in a group log or the unified history.
// Entries are appended in chronological order and never mutated.
type ChatMessage struct {
	Type      string    `json:"type"`
	Event     string    `json:"event,omitempty"`
	Username  string    `json:"username"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Group     string    `json:"group,omitempty"`
}

// Identity is a credential subject resolved by the credential service.
type Identity struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}
