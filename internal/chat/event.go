package chat

// Event is an inbound client event. The concrete type selects the handler
// in Dispatch, giving compile-time coverage of every handled case.
type Event interface {
	isEvent()
}

// AuthenticateEvent resolves the connection's session. An empty token means
// an explicit guest.
type AuthenticateEvent struct {
	Token string
}

// PostMessageEvent posts a message to a group (default group when empty).
type PostMessageEvent struct {
	Message string
	Group   string
}

// TypingStartEvent signals the sender started typing in a group.
type TypingStartEvent struct {
	Group string
}

// TypingStopEvent signals the sender stopped typing in a group.
type TypingStopEvent struct {
	Group string
}

// JoinGroupEvent joins (lazily creating) a named group.
type JoinGroupEvent struct {
	GroupName string
}

// LeaveGroupEvent leaves a named group.
type LeaveGroupEvent struct {
	GroupName string
}

// CreateGroupEvent creates a named group and auto-joins the creator.
type CreateGroupEvent struct {
	GroupName string
}

func (AuthenticateEvent) isEvent() {}
func (PostMessageEvent) isEvent()  {}
func (TypingStartEvent) isEvent()  {}
func (TypingStopEvent) isEvent()   {}
func (JoinGroupEvent) isEvent()    {}
func (LeaveGroupEvent) isEvent()   {}
func (CreateGroupEvent) isEvent()  {}
