package domain

import (
	"time"

	"github.com/google/uuid"
)

// Command is a client intent addressed to a room.
type Command interface {
	RoomID() RoomID
}

type PostMessageCommand struct {
	Room        RoomID
	Content     string
	ContentType ContentType
	ReplyTo     *uuid.UUID
	CreatedAt   time.Time
}

func (p PostMessageCommand) RoomID() RoomID {
	return p.Room
}

type JoinRoomCommand struct {
	Room RoomID
	// LastSequence asks for a replay of everything after it, nil means no replay.
	LastSequence *int64
}

func (p JoinRoomCommand) RoomID() RoomID {
	return p.Room
}

type MarkReadCommand struct {
	Room RoomID
	// UpTo caps the cursor, nil means the latest message of the room.
	UpTo *int64
}

func (p MarkReadCommand) RoomID() RoomID {
	return p.Room
}

type GetMessageCommand struct {
	Room          RoomID
	AfterSequence int64
	Limit         int
}

func (p GetMessageCommand) RoomID() RoomID {
	return p.Room
}

type SearchCommand struct {
	Room  RoomID
	Terms string
	Limit int
}

func (p SearchCommand) RoomID() RoomID {
	return p.Room
}
