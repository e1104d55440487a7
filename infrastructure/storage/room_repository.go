package storage

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

var _ contract.RoomDirectory = (*RoomRepository)(nil)

// RoomRepository is the local copy of the rooms created by the booking
// workflow. Keys, with every id escaped:
//
//	room:{room_id}                     -> encoded room
//	user-rooms:{user_id}:{room_id}     -> empty, participant index
type RoomRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewRoomRepository(db *badger.DB, log *slog.Logger) *RoomRepository {
	return &RoomRepository{db: db, log: log}
}

func roomKey(id domain.RoomID) []byte {
	return []byte(fmt.Sprintf("room:%s", escapeID(id)))
}

func userRoomKey(userID domain.UserID, roomID domain.RoomID) []byte {
	return []byte(fmt.Sprintf("user-rooms:%s:%s", escapeID(userID), escapeID(roomID)))
}

func userRoomPrefix(userID domain.UserID) []byte {
	return []byte(fmt.Sprintf("user-rooms:%s:", escapeID(userID)))
}

// Save creates or replaces a room and keeps the participant index in step.
func (r *RoomRepository) Save(ctx context.Context, room domain.Room) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if room.ID == "" {
		return fmt.Errorf("%w: room id is required", errors.ErrValidation)
	}
	if domain.RoomChannel(room.ID) == domain.AllRoomsChannel {
		return fmt.Errorf("%w: room id %q is reserved", errors.ErrValidation, room.ID)
	}
	return r.db.Update(func(txn *badger.Txn) error {
		previous, err := getRoom(txn, room.ID)
		switch {
		case err == nil:
			for _, p := range previous.Participants {
				if err := txn.Delete(userRoomKey(p, room.ID)); err != nil {
					return err
				}
			}
		case !errors.Is(err, errors.ErrRoomNotFound):
			return err
		}
		for _, p := range room.Participants {
			if err := txn.Set(userRoomKey(p, room.ID), nil); err != nil {
				return err
			}
		}
		return txn.Set(roomKey(room.ID), EncodeRoom(room))
	})
}

func (r *RoomRepository) GetRoom(ctx context.Context, roomID domain.RoomID) (domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return domain.Room{}, err
	}
	var room domain.Room
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		room, err = getRoom(txn, roomID)
		return err
	})
	return room, err
}

func getRoom(txn *badger.Txn, roomID domain.RoomID) (domain.Room, error) {
	item, err := txn.Get(roomKey(roomID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Room{}, fmt.Errorf("%w: %s", errors.ErrRoomNotFound, roomID)
	}
	if err != nil {
		return domain.Room{}, err
	}
	var room domain.Room
	err = item.Value(func(val []byte) error {
		room, err = DecodeRoom(val)
		return err
	})
	return room, err
}

func (r *RoomRepository) ListRoomsForUser(ctx context.Context, userID domain.UserID) ([]domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rooms []domain.Room
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := userRoomPrefix(userID)
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		var ids []domain.RoomID
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			ids = append(ids, unescapeID[domain.RoomID](strings.TrimPrefix(string(it.Item().Key()), string(prefix))))
		}
		for _, id := range ids {
			room, err := getRoom(txn, id)
			if errors.Is(err, errors.ErrRoomNotFound) {
				r.log.Warn("Dangling room index entry", "user_id", userID, "room_id", id)
				continue
			}
			if err != nil {
				return err
			}
			rooms = append(rooms, room)
		}
		return nil
	})
	return rooms, err
}

// ListRooms scans every room, for operators only.
func (r *RoomRepository) ListRooms(ctx context.Context) ([]domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rooms []domain.Room
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte("room:")
		options := badger.DefaultIteratorOptions
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				room, err := DecodeRoom(val)
				if err != nil {
					return err
				}
				rooms = append(rooms, room)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return rooms, err
}

// TouchRoom sets UpdatedAt to now and returns it.
func (r *RoomRepository) TouchRoom(ctx context.Context, roomID domain.RoomID) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}
	now := time.Now().UTC()
	err := r.db.Update(func(txn *badger.Txn) error {
		room, err := getRoom(txn, roomID)
		if err != nil {
			return err
		}
		room.UpdatedAt = now
		return txn.Set(roomKey(roomID), EncodeRoom(room))
	})
	return now, err
}

// SetActive opens or closes a room, closed rooms refuse new messages.
func (r *RoomRepository) SetActive(ctx context.Context, roomID domain.RoomID, active bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		room, err := getRoom(txn, roomID)
		if err != nil {
			return err
		}
		room.Active = active
		room.UpdatedAt = time.Now().UTC()
		return txn.Set(roomKey(roomID), EncodeRoom(room))
	})
}
