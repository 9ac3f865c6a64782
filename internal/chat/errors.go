package chat

import "errors"

// Validation errors surfaced to the originating connection as an error
// event. None of them terminate the connection or the process; the client
// may retry with corrected input. The texts are the exact messages clients
// already display.
var (
	ErrAuthRequired       = errors.New("Authentication required. Please log in.")
	ErrRateLimited        = errors.New("Message rate limit exceeded. Please slow down.")
	ErrMessageTooLong     = errors.New("Message too long. Maximum 1000 characters.")
	ErrInvalidGroupName   = errors.New("Group name must be 1-50 characters")
	ErrGroupAlreadyExists = errors.New("Group already exists")
	ErrCannotLeaveGeneral = errors.New("Cannot leave General group")
)
