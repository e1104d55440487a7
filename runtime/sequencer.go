package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	loadAttempts   = 3
	loadRetryDelay = 50 * time.Millisecond
)

// roomCell is the single authoritative sequence counter of a room.
type roomCell struct {
	mu     sync.Mutex
	refs   int // holders and waiters, guarded by Sequencer.mu
	loaded bool
	latest int64
}

// Sequencer serializes every sequence assignment of a room behind the room's
// cell. Cells are created on first use and kept once their counter is loaded.
// A cell whose load failed is dropped when its last holder leaves.
type Sequencer struct {
	mu    sync.Mutex
	log   *slog.Logger
	store contract.MessageStore
	cells map[domain.RoomID]*roomCell
}

func NewSequencer(log *slog.Logger, store contract.MessageStore) *Sequencer {
	return &Sequencer{
		log:   log,
		store: store,
		cells: make(map[domain.RoomID]*roomCell),
	}
}

// acquire returns the locked cell of the room.
func (s *Sequencer) acquire(roomID domain.RoomID) *roomCell {
	s.mu.Lock()
	c, ok := s.cells[roomID]
	if !ok {
		c = &roomCell{}
		s.cells[roomID] = c
	}
	c.refs++
	s.mu.Unlock()

	c.mu.Lock()
	return c
}

func (s *Sequencer) release(roomID domain.RoomID, c *roomCell) {
	c.mu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	c.refs--
	if c.refs == 0 && !c.loaded {
		delete(s.cells, roomID)
	}
}

// Rooms is the number of rooms with a counter in memory.
func (s *Sequencer) Rooms() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cells)
}

// WithRoom runs fn while holding the room's counter. fn receives the latest
// assigned sequence and returns the new one; returning an error leaves the
// counter untouched so no number is skipped.
func (s *Sequencer) WithRoom(ctx context.Context, roomID domain.RoomID, fn func(latest int64) (int64, error)) error {
	c := s.acquire(roomID)
	defer s.release(roomID, c)

	if !c.loaded {
		latest, err := s.load(ctx, roomID)
		if err != nil {
			return err
		}
		c.latest = latest
		c.loaded = true
	}

	next, err := fn(c.latest)
	if err != nil {
		return err
	}
	c.latest = next
	return nil
}

// Invalidate forces the next assignment to reload the counter from the store.
// Used after the store reported that a number was already taken.
func (s *Sequencer) Invalidate(roomID domain.RoomID) {
	c := s.acquire(roomID)
	c.loaded = false
	s.release(roomID, c)
}

// load is the only step of the assignment that is retried internally.
func (s *Sequencer) load(ctx context.Context, roomID domain.RoomID) (int64, error) {
	var lastErr error
	for i := 0; i < loadAttempts; i++ {
		latest, err := s.store.LatestSequence(ctx, roomID)
		if err == nil {
			return latest, nil
		}
		lastErr = err
		s.log.Warn("Loading room sequence failed", "room_id", roomID, "attempt", i+1, "error", err)
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(loadRetryDelay):
		}
	}
	return 0, fmt.Errorf("loading sequence of room %s: %w", roomID, lastErr)
}
