package event

import (
	"chat-relay/domain"
	"time"
)

type Type string

const (
	NewMessageType      Type = "new_message"
	TypingStartType     Type = "typing_start"
	TypingStopType      Type = "typing_stop"
	MessageReadType     Type = "message_read"
	ChatRoomUpdatedType Type = "chat_room_updated"
)

// Event is what the broker fans out to subscribers.
type Event struct {
	Type      Type
	RoomID    domain.RoomID
	CreatedAt time.Time
	// SkipSession is the session that caused the event and must not receive it back.
	SkipSession string
	Payload     any
}

type NewMessage struct {
	Message domain.Message
}

type Typing struct {
	RoomID domain.RoomID
	UserID domain.UserID
}

type MessageRead struct {
	RoomID domain.RoomID
	UserID domain.UserID
	Cursor int64
}

type RoomUpdated struct {
	RoomID    domain.RoomID
	UpdatedAt time.Time
}

func NewMessagePosted(msg domain.Message) Event {
	return Event{
		Type:      NewMessageType,
		RoomID:    msg.RoomID,
		CreatedAt: msg.CreatedAt,
		Payload:   NewMessage{Message: msg},
	}
}

func NewTyping(t Type, roomID domain.RoomID, userID domain.UserID, skipSession string) Event {
	return Event{
		Type:        t,
		RoomID:      roomID,
		CreatedAt:   time.Now().UTC(),
		SkipSession: skipSession,
		Payload:     Typing{RoomID: roomID, UserID: userID},
	}
}

func NewMessageRead(roomID domain.RoomID, userID domain.UserID, cursor int64) Event {
	return Event{
		Type:      MessageReadType,
		RoomID:    roomID,
		CreatedAt: time.Now().UTC(),
		Payload:   MessageRead{RoomID: roomID, UserID: userID, Cursor: cursor},
	}
}

func NewRoomUpdated(roomID domain.RoomID, updatedAt time.Time) Event {
	return Event{
		Type:      ChatRoomUpdatedType,
		RoomID:    roomID,
		CreatedAt: time.Now().UTC(),
		Payload:   RoomUpdated{RoomID: roomID, UpdatedAt: updatedAt},
	}
}
