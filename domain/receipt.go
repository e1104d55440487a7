package domain

// ReadCursor is the high-water mark of what a user has read in a room.
type ReadCursor struct {
	RoomID   RoomID
	UserID   UserID
	Sequence int64
}

type UnreadSummary struct {
	PerRoom map[RoomID]int64
	Total   int64
}

// Unread derives the unread count from the latest sequence and a cursor, floored at zero.
func Unread(latest, cursor int64) int64 {
	if latest <= cursor {
		return 0
	}
	return latest - cursor
}
