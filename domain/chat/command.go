// Package chat decodes the frames a client sends over its live connection.
package chat

import (
	"chat-relay/domain"
	customerrors "chat-relay/errors"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

type Type string

const (
	Authenticate    Type = "authenticate"
	JoinRoomRequest Type = "join_room_request"
	LeaveRoom       Type = "leave_room"
	NotificationAck Type = "notification_ack"
)

var validate = validator.New()

// Frame is the raw inbound shape {type, payload}
type Frame struct {
	Type    Type            `json:"type" validate:"required"`
	Payload json.RawMessage `json:"payload"`
}

type Command interface {
	Name() Type
}

type AuthenticateCommand struct {
	Token string
}

type JoinRoomCommand struct {
	Room domain.ConversationID
}

type LeaveRoomCommand struct{}

type NotificationAckCommand struct {
	NotificationID domain.NotificationID
}

// UnknownCommand is returned for well-formed frames of a type nobody handles
type UnknownCommand struct {
	Type Type
}

// InvalidCommand is a known type whose payload could not be decoded.
// Callers decide per type whether this is fatal.
type InvalidCommand struct {
	Type Type
	Err  error
}

func (AuthenticateCommand) Name() Type    { return Authenticate }
func (JoinRoomCommand) Name() Type        { return JoinRoomRequest }
func (LeaveRoomCommand) Name() Type       { return LeaveRoom }
func (NotificationAckCommand) Name() Type { return NotificationAck }
func (c UnknownCommand) Name() Type       { return c.Type }
func (c InvalidCommand) Name() Type       { return c.Type }

type authenticatePayload struct {
	Token string `json:"token" validate:"required"`
}

type joinRoomPayload struct {
	RoomName json.RawMessage `json:"room_name" validate:"required"`
}

type notificationAckPayload struct {
	NotificationID json.RawMessage `json:"notification_id" validate:"required"`
}

// Decode parses one text frame.
// An error is only returned when the frame itself is not a JSON object with a type.
func Decode(data []byte) (Command, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", customerrors.ErrInvalidPayload, err)
	}
	if err := validate.Struct(f); err != nil {
		return nil, fmt.Errorf("%w: %v", customerrors.ErrInvalidPayload, err)
	}

	switch f.Type {
	case Authenticate:
		var p authenticatePayload
		if err := decodePayload(f.Payload, &p); err != nil {
			return InvalidCommand{Type: f.Type, Err: err}, nil
		}
		return AuthenticateCommand{Token: p.Token}, nil
	case JoinRoomRequest:
		var p joinRoomPayload
		if err := decodePayload(f.Payload, &p); err != nil {
			return InvalidCommand{Type: f.Type, Err: err}, nil
		}
		id, err := domain.ParseID(p.RoomName)
		if err != nil {
			return InvalidCommand{Type: f.Type, Err: fmt.Errorf("%w: %v", customerrors.ErrInvalidPayload, err)}, nil
		}
		return JoinRoomCommand{Room: domain.ConversationID(id)}, nil
	case LeaveRoom:
		return LeaveRoomCommand{}, nil
	case NotificationAck:
		var p notificationAckPayload
		if err := decodePayload(f.Payload, &p); err != nil {
			return InvalidCommand{Type: f.Type, Err: err}, nil
		}
		id, err := domain.ParseID(p.NotificationID)
		if err != nil {
			return InvalidCommand{Type: f.Type, Err: fmt.Errorf("%w: %v", customerrors.ErrInvalidPayload, err)}, nil
		}
		return NotificationAckCommand{NotificationID: domain.NotificationID(id)}, nil
	default:
		return UnknownCommand{Type: f.Type}, nil
	}
}

func decodePayload(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing payload", customerrors.ErrInvalidPayload)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", customerrors.ErrInvalidPayload, err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", customerrors.ErrInvalidPayload, err)
	}
	return nil
}
