// Package domain contains core concepts of the chat system.
// This file defines Message events and related rules.
// Messages are immutable once a sequence number has been assigned.
package domain

import (
	"time"

	"github.com/google/uuid"
)

type ContentType string

const (
	ContentTypeText   ContentType = "text"
	ContentTypeSystem ContentType = "system"
)

func (c ContentType) Valid() bool {
	return c == ContentTypeText || c == ContentTypeSystem
}

// Message represents an immutable chat event.
type Message struct {
	ID          uuid.UUID // unique identifier
	RoomID      RoomID
	SenderID    UserID
	SenderRole  Role
	Content     string
	ContentType ContentType
	ReplyTo     *uuid.UUID
	Sequence    int64 // strictly increasing within a room
	CreatedAt   time.Time
}
