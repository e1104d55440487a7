package storage

import (
	"chat-relay/internal"
	"fmt"
	"strings"
)

// InspectMapper decodes the records of this package for the debug inspector.
func InspectMapper(key string, val []byte) internal.InspectRow {
	row := internal.DefaultMapper(key, val)
	switch {
	case strings.HasPrefix(key, "msg:"):
		msg, err := DecodeMessage(val)
		if err != nil {
			row.Detail = "Error: decode failed"
			return row
		}
		row.Type = "MESSAGE"
		row.Sequence = fmt.Sprintf("%d", msg.Sequence)
		row.Detail = fmt.Sprintf("%s (%s): %s", msg.SenderID, msg.ContentType, msg.Content)
	case strings.HasPrefix(key, "room:"):
		room, err := DecodeRoom(val)
		if err != nil {
			row.Detail = "Error: decode failed"
			return row
		}
		row.Type = "ROOM"
		row.Detail = fmt.Sprintf("%s booking=%s active=%t participants=%s",
			room.Kind, room.BookingRef, room.Active, strings.Join(participantNames(room.Participants), ","))
	}
	return row
}
