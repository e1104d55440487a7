package storage

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"
)

// Records are stored in protobuf wire format, field numbers below are the
// schema and must never be reused.
const (
	messageID          protowire.Number = 1
	messageRoomID      protowire.Number = 2
	messageSenderID    protowire.Number = 3
	messageSenderRole  protowire.Number = 4
	messageContent     protowire.Number = 5
	messageContentType protowire.Number = 6
	messageReplyTo     protowire.Number = 7
	messageSequence    protowire.Number = 8
	messageCreatedAt   protowire.Number = 9

	roomID           protowire.Number = 1
	roomBookingRef   protowire.Number = 2
	roomKind         protowire.Number = 3
	roomActive       protowire.Number = 4
	roomParticipants protowire.Number = 5
	roomCreatedAt    protowire.Number = 6
	roomUpdatedAt    protowire.Number = 7
)

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendTime(b []byte, num protowire.Number, t time.Time) []byte {
	if t.IsZero() {
		return b
	}
	return appendVarint(b, num, uint64(t.UnixNano()))
}

func EncodeMessage(m domain.Message) []byte {
	var b []byte
	b = appendString(b, messageID, m.ID.String())
	b = appendString(b, messageRoomID, string(m.RoomID))
	b = appendString(b, messageSenderID, string(m.SenderID))
	b = appendString(b, messageSenderRole, string(m.SenderRole))
	b = appendString(b, messageContent, m.Content)
	b = appendString(b, messageContentType, string(m.ContentType))
	if m.ReplyTo != nil {
		b = appendString(b, messageReplyTo, m.ReplyTo.String())
	}
	b = appendVarint(b, messageSequence, uint64(m.Sequence))
	b = appendTime(b, messageCreatedAt, m.CreatedAt)
	return b
}

func DecodeMessage(b []byte) (domain.Message, error) {
	var m domain.Message
	err := walk(b, func(num protowire.Number, str string, n uint64) error {
		switch num {
		case messageID:
			id, err := uuid.Parse(str)
			if err != nil {
				return err
			}
			m.ID = id
		case messageRoomID:
			m.RoomID = domain.RoomID(str)
		case messageSenderID:
			m.SenderID = domain.UserID(str)
		case messageSenderRole:
			m.SenderRole = domain.Role(str)
		case messageContent:
			m.Content = str
		case messageContentType:
			m.ContentType = domain.ContentType(str)
		case messageReplyTo:
			id, err := uuid.Parse(str)
			if err != nil {
				return err
			}
			m.ReplyTo = &id
		case messageSequence:
			m.Sequence = int64(n)
		case messageCreatedAt:
			m.CreatedAt = time.Unix(0, int64(n)).UTC()
		}
		return nil
	})
	return m, err
}

func EncodeRoom(r domain.Room) []byte {
	var b []byte
	b = appendString(b, roomID, string(r.ID))
	b = appendString(b, roomBookingRef, r.BookingRef)
	b = appendString(b, roomKind, string(r.Kind))
	b = appendVarint(b, roomActive, protowire.EncodeBool(r.Active))
	for _, p := range r.Participants {
		b = protowire.AppendTag(b, roomParticipants, protowire.BytesType)
		b = protowire.AppendString(b, string(p))
	}
	b = appendTime(b, roomCreatedAt, r.CreatedAt)
	b = appendTime(b, roomUpdatedAt, r.UpdatedAt)
	return b
}

func DecodeRoom(b []byte) (domain.Room, error) {
	var r domain.Room
	err := walk(b, func(num protowire.Number, str string, n uint64) error {
		switch num {
		case roomID:
			r.ID = domain.RoomID(str)
		case roomBookingRef:
			r.BookingRef = str
		case roomKind:
			r.Kind = domain.RoomKind(str)
		case roomActive:
			r.Active = protowire.DecodeBool(n)
		case roomParticipants:
			r.Participants = append(r.Participants, domain.UserID(str))
		case roomCreatedAt:
			r.CreatedAt = time.Unix(0, int64(n)).UTC()
		case roomUpdatedAt:
			r.UpdatedAt = time.Unix(0, int64(n)).UTC()
		}
		return nil
	})
	return r, err
}

// walk calls fn for every bytes or varint field. Unknown wire types are skipped.
func walk(b []byte, fn func(num protowire.Number, str string, n uint64) error) error {
	for len(b) > 0 {
		num, typ, size := protowire.ConsumeTag(b)
		if size < 0 {
			return fmt.Errorf("%w: %w", errors.ErrInvalidRecord, protowire.ParseError(size))
		}
		b = b[size:]

		var err error
		switch typ {
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return fmt.Errorf("%w: %w", errors.ErrInvalidRecord, protowire.ParseError(n))
			}
			err = fn(num, string(v), 0)
			size = n
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return fmt.Errorf("%w: %w", errors.ErrInvalidRecord, protowire.ParseError(n))
			}
			err = fn(num, "", v)
			size = n
		default:
			size = protowire.ConsumeFieldValue(num, typ, b)
			if size < 0 {
				return fmt.Errorf("%w: %w", errors.ErrInvalidRecord, protowire.ParseError(size))
			}
		}
		if err != nil {
			return fmt.Errorf("%w: field %d: %w", errors.ErrInvalidRecord, num, err)
		}
		b = b[size:]
	}
	return nil
}

func participantNames(ids []domain.UserID) []string {
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = string(id)
	}
	return names
}
