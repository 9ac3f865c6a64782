package models

// Outbound event names pushed to clients over the websocket.
const (
	EventAuthStatus      = "auth-status"
	EventReceiveMessages = "receive-messages"
	EventGroupMessages   = "group-messages"
	EventAllGroups       = "all-groups"
	EventUserGroups      = "user-groups"
	EventUserCount       = "user-count"
	EventUserTyping      = "user-typing"
	EventError           = "error"
)

// ServerEvent is the JSON envelope written to clients.
type ServerEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// AuthStatus reports the outcome of an authenticate event.
type AuthStatus struct {
	IsAuthenticated bool   `json:"isAuthenticated"`
	IsGuest         bool   `json:"isGuest,omitempty"`
	Username        string `json:"username,omitempty"`
	Email           string `json:"email,omitempty"`
}

// ReceiveMessages carries the legacy unified feed.
type ReceiveMessages struct {
	ChatHistory []ChatMessage `json:"chatHistory"`
	Username    string        `json:"username,omitempty"`
}

// GroupMessages carries one group's full ordered log.
type GroupMessages struct {
	Group       string        `json:"group"`
	ChatHistory []ChatMessage `json:"chatHistory"`
}

// UserTyping is a transient typing signal, never logged.
type UserTyping struct {
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
	Group    string `json:"group,omitempty"`
}

// ErrorEvent reports a rejected operation to the originating connection.
type ErrorEvent struct {
	Message string `json:"message"`
}
