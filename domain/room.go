package domain

import (
	"slices"
	"time"
)

type RoomID string

type RoomKind string

const (
	RoomKindCustomerAdmin   RoomKind = "customer_admin"
	RoomKindCustomerCompany RoomKind = "customer_company"
)

// Room is owned by the booking workflow. The chat core only reads it,
// apart from the UpdatedAt touch performed when a message is posted.
type Room struct {
	ID           RoomID
	BookingRef   string
	Kind         RoomKind
	Active       bool
	Participants []UserID
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (r Room) HasParticipant(userID UserID) bool {
	return slices.Contains(r.Participants, userID)
}
