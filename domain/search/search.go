package search

import (
	"chat-relay/domain"
	"time"

	"github.com/google/uuid"
)

// Hit is a message matching a search, as recorded by the index.
type Hit struct {
	MessageID uuid.UUID
	RoomID    domain.RoomID
	SenderID  domain.UserID
	Sequence  int64
	Content   string
	CreatedAt time.Time
	Score     float64
}
