package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/lo"
)

type cursorKey struct {
	room domain.RoomID
	user domain.UserID
}

// Receipts keeps the read cursors and derives unread counts from them.
type Receipts struct {
	log       *slog.Logger
	registry  contract.IRegistry
	cursors   contract.CursorStore
	directory contract.RoomDirectory
	latest    func(ctx context.Context, roomID domain.RoomID) (int64, error)
	locks     *keyedLock[cursorKey]
}

func NewReceipts(log *slog.Logger, registry contract.IRegistry, cursors contract.CursorStore,
	directory contract.RoomDirectory, latest func(ctx context.Context, roomID domain.RoomID) (int64, error)) *Receipts {
	return &Receipts{
		log:       log,
		registry:  registry,
		cursors:   cursors,
		directory: directory,
		latest:    latest,
		locks:     newKeyedLock[cursorKey](),
	}
}

// MarkRead moves the cursor of the user to the latest sequence of the room,
// or to upTo when it is lower. The cursor never goes back: an older position
// is ignored and the stored cursor is returned.
// Access is checked by the caller.
func (r *Receipts) MarkRead(ctx context.Context, userID domain.UserID, roomID domain.RoomID, upTo *int64) (int64, error) {
	unlock := r.locks.Lock(cursorKey{room: roomID, user: userID})
	defer unlock()

	latest, err := r.latest(ctx, roomID)
	if err != nil {
		return 0, err
	}
	target := latest
	if upTo != nil && *upTo < target {
		target = max(*upTo, 0)
	}

	cursor, moved, err := r.cursors.Advance(ctx, roomID, userID, target)
	if err != nil {
		return 0, fmt.Errorf("%w: advancing cursor of %s in room %s: %w", errors.ErrStoreUnavailable, userID, roomID, err)
	}
	if !moved {
		r.log.Debug("Read cursor kept", "room_id", roomID, "user_id", userID, "cursor", cursor, "requested", target)
		return cursor, nil
	}
	r.registry.Publish(domain.RoomChannel(roomID), event.NewMessageRead(roomID, userID, cursor))
	return cursor, nil
}

func (r *Receipts) UnreadCount(ctx context.Context, userID domain.UserID, roomID domain.RoomID) (int64, error) {
	latest, err := r.latest(ctx, roomID)
	if err != nil {
		return 0, err
	}
	cursor, err := r.cursors.Get(ctx, roomID, userID)
	if err != nil {
		return 0, fmt.Errorf("%w: reading cursor of %s in room %s: %w", errors.ErrStoreUnavailable, userID, roomID, err)
	}
	return domain.Unread(latest, cursor), nil
}

// UnreadSummary covers every room the directory lists for the user, live sessions play no part.
func (r *Receipts) UnreadSummary(ctx context.Context, userID domain.UserID) (domain.UnreadSummary, error) {
	rooms, err := r.directory.ListRoomsForUser(ctx, userID)
	if err != nil {
		return domain.UnreadSummary{}, fmt.Errorf("listing rooms of %s: %w", userID, err)
	}
	summary := domain.UnreadSummary{PerRoom: make(map[domain.RoomID]int64, len(rooms))}
	for _, room := range rooms {
		count, err := r.UnreadCount(ctx, userID, room.ID)
		if err != nil {
			return domain.UnreadSummary{}, err
		}
		summary.PerRoom[room.ID] = count
	}
	summary.Total = lo.Sum(lo.Values(summary.PerRoom))
	return summary, nil
}
