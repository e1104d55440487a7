package websocket

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Inbound frame types.
const (
	FrameJoinRoom     = "join_room"
	FrameLeaveRoom    = "leave_room"
	FrameSendMessage  = "send_message"
	FrameTypingStart  = "typing_start"
	FrameTypingStop   = "typing_stop"
	FrameMarkRead     = "mark_read"
	FrameFetchHistory = "fetch_history"
	FramePing         = "ping"
)

// Outbound frame types besides the broker events.
const (
	FrameError   = "error"
	FrameAck     = "ack"
	FrameJoined  = "joined"
	FrameHistory = "history"
	FramePong    = "pong"
)

var validate = validator.New()

type roomPayload struct {
	RoomID string `json:"roomId" validate:"required,max=128"`
}

type joinPayload struct {
	RoomID       string `json:"roomId" validate:"required,max=128"`
	LastSequence *int64 `json:"lastSequence" validate:"omitempty,min=0"`
}

// sendPayload leaves content and type to the pipeline, they have their own error codes.
type sendPayload struct {
	ChatRoomID  string `json:"chatRoomId" validate:"required,max=128"`
	Content     string `json:"content"`
	MessageType string `json:"messageType"`
	ReplyTo     string `json:"replyTo" validate:"omitempty,uuid"`
}

type markReadPayload struct {
	RoomID string `json:"roomId" validate:"required,max=128"`
	UpTo   *int64 `json:"upTo" validate:"omitempty,min=0"`
}

type historyPayload struct {
	RoomID        string `json:"roomId" validate:"required,max=128"`
	AfterSequence int64  `json:"afterSequence" validate:"min=0"`
	Limit         int    `json:"limit" validate:"min=0"`
}

// decode unmarshals and validates a payload. Any failure is a VALIDATION_ERROR.
func decode[T any](raw json.RawMessage) (T, error) {
	var payload T
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return payload, fmt.Errorf("%w: %v", errors.ErrValidation, err)
	}
	if err := validate.Struct(payload); err != nil {
		return payload, fmt.Errorf("%w: %s", errors.ErrValidation, describe(err))
	}
	return payload, nil
}

func describe(err error) string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err.Error()
	}
	return strings.Join(lo.Map(validationErrors, func(fe validator.FieldError, _ int) string {
		return fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag())
	}), ", ")
}

func (p sendPayload) command() domain.PostMessageCommand {
	cmd := domain.PostMessageCommand{
		Room:        domain.RoomID(p.ChatRoomID),
		Content:     p.Content,
		ContentType: domain.ContentType(p.MessageType),
	}
	if p.ReplyTo != "" {
		if id, err := uuid.Parse(p.ReplyTo); err == nil {
			cmd.ReplyTo = &id
		}
	}
	return cmd
}
