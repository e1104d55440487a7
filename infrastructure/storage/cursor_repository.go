package storage

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"google.golang.org/protobuf/encoding/protowire"
)

var _ contract.CursorStore = (*CursorRepository)(nil)

// CursorRepository stores read cursors under "cursor:{room_id}:{user_id}".
type CursorRepository struct {
	db *badger.DB
}

func NewCursorRepository(db *badger.DB) *CursorRepository {
	return &CursorRepository{db: db}
}

func cursorKey(roomID domain.RoomID, userID domain.UserID) []byte {
	return []byte(fmt.Sprintf("cursor:%s:%s", escapeID(roomID), escapeID(userID)))
}

// Get returns 0 when the user never read the room.
func (c *CursorRepository) Get(ctx context.Context, roomID domain.RoomID, userID domain.UserID) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var cursor int64
	err := c.db.View(func(txn *badger.Txn) error {
		var err error
		cursor, err = readCursor(txn, roomID, userID)
		return err
	})
	return cursor, err
}

// Advance compares and writes in the same transaction, the cursor can only grow.
func (c *CursorRepository) Advance(ctx context.Context, roomID domain.RoomID, userID domain.UserID, sequence int64) (int64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	var (
		cursor int64
		moved  bool
	)
	err := c.db.Update(func(txn *badger.Txn) error {
		current, err := readCursor(txn, roomID, userID)
		if err != nil {
			return err
		}
		if sequence <= current {
			cursor = current
			return nil
		}
		cursor, moved = sequence, true
		return txn.Set(cursorKey(roomID, userID), protowire.AppendVarint(nil, uint64(sequence)))
	})
	if err != nil {
		return 0, false, err
	}
	return cursor, moved, nil
}

func readCursor(txn *badger.Txn, roomID domain.RoomID, userID domain.UserID) (int64, error) {
	item, err := txn.Get(cursorKey(roomID, userID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var cursor int64
	err = item.Value(func(val []byte) error {
		v, n := protowire.ConsumeVarint(val)
		if n < 0 {
			return fmt.Errorf("%w: cursor of %s in room %s", errors.ErrInvalidRecord, userID, roomID)
		}
		cursor = int64(v)
		return nil
	})
	return cursor, err
}
