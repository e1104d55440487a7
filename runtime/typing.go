package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/observability"
	"log/slog"
	"sync"
	"time"
)

type typingKey struct {
	room domain.RoomID
	user domain.UserID
}

type typingState struct {
	session    string
	expiresAt  time.Time
	generation uint64
	timer      *time.Timer
}

// TypingTracker holds the ephemeral "is typing" flags. Each flag owns one
// timer, re-armed on refresh and stopped on explicit stop. A timer only acts
// if its generation is still the current one, so a timer that fired while
// being replaced never emits a second typing_stop.
type TypingTracker struct {
	mu       sync.Mutex
	log      *slog.Logger
	registry contract.IRegistry
	expiry   time.Duration
	states   map[typingKey]*typingState
	next     uint64
	closed   bool
}

func NewTypingTracker(log *slog.Logger, registry contract.IRegistry, expiry time.Duration) *TypingTracker {
	return &TypingTracker{
		log:      log,
		registry: registry,
		expiry:   expiry,
		states:   make(map[typingKey]*typingState),
	}
}

// Start sets or refreshes the flag and publishes typing_start on every call.
// Membership is checked by the caller.
func (t *TypingTracker) Start(s *Session, roomID domain.RoomID) {
	key := typingKey{room: roomID, user: s.Identity.UserID}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}

	t.next++
	generation := t.next
	state, ok := t.states[key]
	if ok {
		state.timer.Stop()
	} else {
		state = &typingState{}
		t.states[key] = state
		observability.TypingActive.Inc()
	}
	state.session = s.ID
	state.generation = generation
	state.expiresAt = time.Now().Add(t.expiry)
	state.timer = time.AfterFunc(t.expiry, func() { t.expire(key, generation) })

	t.registry.Publish(domain.RoomChannel(roomID), event.NewTyping(event.TypingStartType, roomID, key.user, s.ID))
}

// Stop clears the flag and publishes typing_stop. Without a flag it does nothing.
func (t *TypingTracker) Stop(s *Session, roomID domain.RoomID) bool {
	key := typingKey{room: roomID, user: s.Identity.UserID}

	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.states[key]
	if !ok {
		return false
	}
	state.timer.Stop()
	t.clearLocked(key, s.ID)
	return true
}

func (t *TypingTracker) expire(key typingKey, generation uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.states[key]
	if !ok || state.generation != generation {
		return
	}
	t.log.Debug("Typing expired", "room_id", key.room, "user_id", key.user)
	t.clearLocked(key, state.session)
}

func (t *TypingTracker) clearLocked(key typingKey, origin string) {
	delete(t.states, key)
	observability.TypingActive.Dec()
	t.registry.Publish(domain.RoomChannel(key.room), event.NewTyping(event.TypingStopType, key.room, key.user, origin))
}

// IsTyping reports whether the user currently types in the room.
func (t *TypingTracker) IsTyping(roomID domain.RoomID, userID domain.UserID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.states[typingKey{room: roomID, user: userID}]
	return ok
}

func (t *TypingTracker) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.states)
}

// Close stops every timer without publishing, on shutdown nobody listens anymore.
func (t *TypingTracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, state := range t.states {
		state.timer.Stop()
		delete(t.states, key)
		observability.TypingActive.Dec()
	}
	t.closed = true
}
