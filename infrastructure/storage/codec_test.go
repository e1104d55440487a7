package storage

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestDecodeMessage_Keeps_Optional_Reply(t *testing.T) {
	req := require.New(t)
	parent := uuid.New()
	msg := domain.Message{
		ID:          uuid.New(),
		RoomID:      "r1",
		SenderID:    "bob",
		SenderRole:  domain.RoleCompany,
		Content:     "Sure, see you at 10 ✈",
		ContentType: domain.ContentTypeSystem,
		ReplyTo:     &parent,
		Sequence:    300,
		CreatedAt:   time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC),
	}

	got, err := DecodeMessage(EncodeMessage(msg))

	req.NoError(err)
	req.Equal(msg, got)
}

func TestDecode_Skips_Unknown_Fields(t *testing.T) {
	req := require.New(t)
	b := EncodeRoom(domain.Room{ID: "r1", Active: true})
	b = protowire.AppendTag(b, 99, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, 7)

	room, err := DecodeRoom(b)

	req.NoError(err)
	req.Equal(domain.RoomID("r1"), room.ID)
	req.True(room.Active)
}

func TestDecode_Truncated_Record(t *testing.T) {
	req := require.New(t)
	b := EncodeMessage(domain.Message{ID: uuid.New(), RoomID: "r1", Content: "hello", Sequence: 1})

	_, err := DecodeMessage(b[:len(b)-3])

	req.ErrorIs(err, errors.ErrInvalidRecord)
}

func TestInspectMapper_Describes_Records(t *testing.T) {
	req := require.New(t)
	msg := domain.Message{ID: uuid.New(), RoomID: "r1", SenderID: "alice", Content: "hi", ContentType: domain.ContentTypeText, Sequence: 7}

	row := InspectMapper("msg:r1:00000000000000000007", EncodeMessage(msg))
	req.Equal("MESSAGE", row.Type)
	req.Equal("7", row.Sequence)
	req.Contains(row.Detail, "alice")

	row = InspectMapper("room:r1", EncodeRoom(domain.Room{ID: "r1", Participants: []domain.UserID{"alice", "bob"}}))
	req.Equal("ROOM", row.Type)
	req.Contains(row.Detail, "alice,bob")
}
