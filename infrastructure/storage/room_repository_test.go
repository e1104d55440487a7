package storage

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRoomRepository_Save_And_Get(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewRoomRepository(SetupTestDB(t), slog.Default())
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	room := domain.Room{
		ID:           "r1",
		BookingRef:   "BK-42",
		Kind:         domain.RoomKindCustomerAdmin,
		Active:       true,
		Participants: []domain.UserID{"alice", "support"},
		CreatedAt:    at,
		UpdatedAt:    at,
	}

	req.NoError(repository.Save(ctx, room))

	got, err := repository.GetRoom(ctx, "r1")
	req.NoError(err)
	req.Equal(room, got)

	_, err = repository.GetRoom(ctx, "r2")
	req.ErrorIs(err, errors.ErrRoomNotFound)

	req.ErrorIs(repository.Save(ctx, domain.Room{}), errors.ErrValidation)
}

func TestRoomRepository_ListRoomsForUser_Follows_Participants(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewRoomRepository(SetupTestDB(t), slog.Default())

	// Given alice in two rooms
	req.NoError(repository.Save(ctx, domain.Room{ID: "r1", Participants: []domain.UserID{"alice", "bob"}}))
	req.NoError(repository.Save(ctx, domain.Room{ID: "r2", Participants: []domain.UserID{"alice"}}))

	rooms, err := repository.ListRoomsForUser(ctx, "alice")
	req.NoError(err)
	req.Len(rooms, 2)

	// When r1 is saved again without her
	req.NoError(repository.Save(ctx, domain.Room{ID: "r1", Participants: []domain.UserID{"bob"}}))

	// Then the index follows
	rooms, err = repository.ListRoomsForUser(ctx, "alice")
	req.NoError(err)
	req.Len(rooms, 1)
	req.Equal(domain.RoomID("r2"), rooms[0].ID)

	all, err := repository.ListRooms(ctx)
	req.NoError(err)
	req.Len(all, 2)
}

func TestRoomRepository_Touch_And_SetActive(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewRoomRepository(SetupTestDB(t), slog.Default())
	req.NoError(repository.Save(ctx, domain.Room{ID: "r1", Active: true}))

	updatedAt, err := repository.TouchRoom(ctx, "r1")
	req.NoError(err)
	req.NoError(repository.SetActive(ctx, "r1", false))

	room, err := repository.GetRoom(ctx, "r1")
	req.NoError(err)
	req.False(room.Active)
	req.False(room.UpdatedAt.Before(updatedAt))

	_, err = repository.TouchRoom(ctx, "missing")
	req.ErrorIs(err, errors.ErrRoomNotFound)
}

func TestRoomRepository_ListRoomsForUser_Colon_In_Ids(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewRoomRepository(SetupTestDB(t), slog.Default())

	// Given user "a" in room "x" and user "a:b" in room "y:z"
	req.NoError(repository.Save(ctx, domain.Room{ID: "x", Active: true, Participants: []domain.UserID{"a"}}))
	req.NoError(repository.Save(ctx, domain.Room{ID: "y:z", Active: true, Participants: []domain.UserID{"a:b"}}))

	// When listing the rooms of each user
	roomsOfA, err := repository.ListRoomsForUser(ctx, "a")
	req.NoError(err)
	roomsOfAB, err := repository.ListRoomsForUser(ctx, "a:b")
	req.NoError(err)

	// Then each user only sees its own room, with the id restored
	req.Len(roomsOfA, 1)
	req.Equal(domain.RoomID("x"), roomsOfA[0].ID)
	req.Len(roomsOfAB, 1)
	req.Equal(domain.RoomID("y:z"), roomsOfAB[0].ID)
}

func TestRoomRepository_Save_Rejects_Wildcard_Room(t *testing.T) {
	req := require.New(t)
	repository := NewRoomRepository(SetupTestDB(t), slog.Default())

	// A room named "*" would share the channel of every room
	err := repository.Save(context.Background(), domain.Room{ID: "*", Active: true})

	req.ErrorIs(err, errors.ErrValidation)
}
