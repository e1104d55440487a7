package storage

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"google.golang.org/protobuf/encoding/protowire"
)

var _ contract.MessageStore = (*MessageRepository)(nil)

type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) *MessageRepository {
	return &MessageRepository{db: db, log: log}
}

// messageKey is "msg:{room_id}:{sequence_padded}" with the room id escaped.
// The 20 digit zero padding makes the lexicographical order of badger the
// sequence order.
func messageKey(roomID domain.RoomID, sequence int64) []byte {
	return []byte(fmt.Sprintf("msg:%s:%020d", escapeID(roomID), sequence))
}

func messagePrefix(roomID domain.RoomID) []byte {
	return []byte(fmt.Sprintf("msg:%s:", escapeID(roomID)))
}

func sequenceKey(roomID domain.RoomID) []byte {
	return []byte(fmt.Sprintf("seq:%s", escapeID(roomID)))
}

// Append stores the message and moves the room counter in one transaction.
// The sequence must directly follow the stored one, anything else is a conflict.
func (m *MessageRepository) Append(ctx context.Context, message domain.Message) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	err := m.db.Update(func(txn *badger.Txn) error {
		latest, err := readSequence(txn, message.RoomID)
		if err != nil {
			return err
		}
		if message.Sequence != latest+1 {
			return fmt.Errorf("%w: room %s expects %d, got %d",
				errors.ErrSequenceConflict, message.RoomID, latest+1, message.Sequence)
		}
		if err := txn.Set(messageKey(message.RoomID, message.Sequence), EncodeMessage(message)); err != nil {
			return err
		}
		return txn.Set(sequenceKey(message.RoomID), protowire.AppendVarint(nil, uint64(message.Sequence)))
	})
	if err != nil {
		return 0, err
	}
	return message.Sequence, nil
}

// LatestSequence is 0 for a room without messages.
func (m *MessageRepository) LatestSequence(ctx context.Context, roomID domain.RoomID) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var latest int64
	err := m.db.View(func(txn *badger.Txn) error {
		var err error
		latest, err = readSequence(txn, roomID)
		return err
	})
	return latest, err
}

func readSequence(txn *badger.Txn, roomID domain.RoomID) (int64, error) {
	item, err := txn.Get(sequenceKey(roomID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var latest int64
	err = item.Value(func(val []byte) error {
		v, n := protowire.ConsumeVarint(val)
		if n < 0 {
			return fmt.Errorf("%w: sequence of room %s", errors.ErrInvalidRecord, roomID)
		}
		latest = int64(v)
		return nil
	})
	return latest, err
}

// History returns up to limit messages with a sequence greater than
// afterSequence, oldest first.
func (m *MessageRepository) History(ctx context.Context, roomID domain.RoomID, afterSequence int64, limit int) ([]domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var messages []domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := messagePrefix(roomID)
		options := badger.DefaultIteratorOptions
		options.Prefix = prefix
		if limit > 0 {
			options.PrefetchSize = limit
		}
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(messageKey(roomID, afterSequence+1)); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(messages) == limit {
				m.log.Debug(fmt.Sprintf("Maximum of %d message reached", limit))
				break
			}
			err := it.Item().Value(func(val []byte) error {
				msg, err := DecodeMessage(val)
				if err != nil {
					return err
				}
				messages = append(messages, msg)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}
