package realtime

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"chat-hub/internal/models"

	"github.com/go-playground/validator/v10"
)

// Inbound event names.
const (
	EventAuthenticate  = "authenticate"
	EventJoinRoom      = "join_room"
	EventLeaveRoom     = "leave_room"
	EventSendMessage   = "send_message"
	EventTyping        = "typing"
	EventStopTyping    = "stop_typing"
	EventMarkRead      = "mark_read"
	EventDeleteMessage = "delete_message"
)

// Outbound event names.
const (
	EventOnlineUsers    = "online_users"
	EventUserJoined     = "user_joined"
	EventUserLeft       = "user_left"
	EventReceiveMessage = "receive_message"
	EventMessageError   = "message_error"
	EventUserTyping     = "user_typing"
	EventUserStopTyping = "user_stop_typing"
	EventMessageRead    = "message_read"
	EventMessageDeleted = "message_deleted"
	EventError          = "error"
)

// Envelope is the frame exchanged in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// SendMessagePayload is the body of send_message.
type SendMessagePayload struct {
	RoomID   string             `json:"roomId" validate:"required"`
	Content  string             `json:"content" validate:"required"`
	Type     models.MessageType `json:"type" validate:"omitempty,oneof=text image file"`
	FileURL  string             `json:"fileUrl,omitempty" validate:"omitempty,max=2048"`
	FileName string             `json:"fileName,omitempty" validate:"omitempty,max=255"`
	FileSize int64              `json:"fileSize,omitempty" validate:"gte=0"`
}

// TypingPayload is the body of typing and stop_typing.
type TypingPayload struct {
	RoomID string `json:"roomId" validate:"required"`
	UserID string `json:"userId"`
}

// MessageRefPayload is the body of mark_read and delete_message.
type MessageRefPayload struct {
	MessageID string `json:"messageId" validate:"required"`
}

// Outbound payloads.
type (
	membershipEvent struct {
		UserID string `json:"userId"`
		RoomID string `json:"roomId"`
	}
	typingEvent struct {
		Username string `json:"username"`
		RoomID   string `json:"roomId"`
	}
	messageReadEvent struct {
		MessageID string `json:"messageId"`
		UserID    string `json:"userId"`
	}
	messageDeletedEvent struct {
		MessageID string `json:"messageId"`
		RoomID    string `json:"roomId"`
	}
	messageErrorEvent struct {
		Message string `json:"message"`
	}
	errorEvent struct {
		Event   string `json:"event"`
		Code    string `json:"code"`
		Message string `json:"message"`
	}
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Encode frames an outbound event.
func Encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// decodePayload unmarshals and validates an inbound payload. String fields
// are trimmed before validation so whitespace-only values count as empty.
func decodePayload[T any](data json.RawMessage, dst *T) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("%w: missing payload", ErrInvalidMessage)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	trimStrings(dst)
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return nil
}

func trimStrings(v any) {
	switch p := v.(type) {
	case *SendMessagePayload:
		p.RoomID = strings.TrimSpace(p.RoomID)
		if strings.TrimSpace(p.Content) == "" {
			p.Content = ""
		}
	case *TypingPayload:
		p.RoomID = strings.TrimSpace(p.RoomID)
	case *MessageRefPayload:
		p.MessageID = strings.TrimSpace(p.MessageID)
	}
}

// decodeID reads an identifier sent either as a bare JSON string or as an
// object holding it under field.
func decodeID(data json.RawMessage, field string) (string, error) {
	var id string
	if err := json.Unmarshal(data, &id); err != nil {
		var obj map[string]any
		if err := json.Unmarshal(data, &obj); err != nil {
			return "", fmt.Errorf("%w: expected string or object with %q", ErrInvalidMessage, field)
		}
		id, _ = obj[field].(string)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("%w: %s is required", ErrInvalidMessage, field)
	}
	return id, nil
}
