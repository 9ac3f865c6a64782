package ws

import (
	"encoding/json"
	"fmt"

	"talkio/internal/chat"
)

// Inbound event names accepted from clients.
const (
	eventAuthenticate = "authenticate"
	eventPostMessage  = "post-message"
	eventTypingStart  = "typing-start"
	eventTypingStop   = "typing-stop"
	eventJoinGroup    = "join-group"
	eventLeaveGroup   = "leave-group"
	eventCreateGroup  = "create-group"
)

// clientFrame is the inbound JSON envelope {"event": name, "data": {...}}.
type clientFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// decodeEvent maps a raw frame onto the engine's event union. A frame with
// missing data decodes to an event with zero-valued fields, mirroring
// clients that omit the payload entirely.
func decodeEvent(raw []byte) (chat.Event, error) {
	var frame clientFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}

	switch frame.Event {
	case eventAuthenticate:
		var d struct {
			Token string `json:"token"`
		}
		if err := decodeData(frame.Data, &d); err != nil {
			return nil, err
		}
		return chat.AuthenticateEvent{Token: d.Token}, nil

	case eventPostMessage:
		var d struct {
			Message string `json:"message"`
			Group   string `json:"group"`
		}
		if err := decodeData(frame.Data, &d); err != nil {
			return nil, err
		}
		return chat.PostMessageEvent{Message: d.Message, Group: d.Group}, nil

	case eventTypingStart:
		var d struct {
			Group string `json:"group"`
		}
		if err := decodeData(frame.Data, &d); err != nil {
			return nil, err
		}
		return chat.TypingStartEvent{Group: d.Group}, nil

	case eventTypingStop:
		var d struct {
			Group string `json:"group"`
		}
		if err := decodeData(frame.Data, &d); err != nil {
			return nil, err
		}
		return chat.TypingStopEvent{Group: d.Group}, nil

	case eventJoinGroup:
		var d struct {
			GroupName string `json:"groupName"`
		}
		if err := decodeData(frame.Data, &d); err != nil {
			return nil, err
		}
		return chat.JoinGroupEvent{GroupName: d.GroupName}, nil

	case eventLeaveGroup:
		var d struct {
			GroupName string `json:"groupName"`
		}
		if err := decodeData(frame.Data, &d); err != nil {
			return nil, err
		}
		return chat.LeaveGroupEvent{GroupName: d.GroupName}, nil

	case eventCreateGroup:
		var d struct {
			GroupName string `json:"groupName"`
		}
		if err := decodeData(frame.Data, &d); err != nil {
			return nil, err
		}
		return chat.CreateGroupEvent{GroupName: d.GroupName}, nil

	default:
		return nil, fmt.Errorf("unknown event %q", frame.Event)
	}
}

func decodeData(raw json.RawMessage, out any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("malformed event data: %w", err)
	}
	return nil
}
