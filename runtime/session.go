package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

var _ contract.Handler = (*Session)(nil)

// Session is one live client connection. It is owned by the transport, the
// registry and the membership manager only hold references to it.
// Its Deliver method is the push handle subscribed on channels.
type Session struct {
	ID       string
	Identity domain.Identity

	mu           sync.Mutex
	rooms        map[domain.RoomID]struct{}
	delivered    map[domain.RoomID]int64 // highest new_message sequence pushed per room
	lastActivity time.Time
	outbound     chan event.Event
	overflow     chan struct{}
	closed       bool
}

func NewSession(identity domain.Identity, bufferSize int) *Session {
	return &Session{
		ID:           uuid.NewString(),
		Identity:     identity,
		rooms:        make(map[domain.RoomID]struct{}),
		delivered:    make(map[domain.RoomID]int64),
		lastActivity: time.Now().UTC(),
		outbound:     make(chan event.Event, bufferSize),
		overflow:     make(chan struct{}),
	}
}

// Deliver queues the event for the client without blocking the publisher.
// Events caused by this session and already seen messages are dropped, so
// replay and live delivery can overlap safely.
func (s *Session) Deliver(evt event.Event) error {
	if evt.SkipSession == s.ID {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	if posted, ok := evt.Payload.(event.NewMessage); ok {
		room := posted.Message.RoomID
		if posted.Message.Sequence <= s.delivered[room] {
			return nil
		}
		s.delivered[room] = posted.Message.Sequence
	}

	select {
	case s.outbound <- evt:
		return nil
	default:
		select {
		case <-s.overflow:
		default:
			close(s.overflow)
		}
		return errors.ErrSlowConsumer
	}
}

// Events is drained by the transport write loop.
func (s *Session) Events() <-chan event.Event {
	return s.outbound
}

// Overflow is closed the first time the outbound buffer was full.
// The transport is expected to drop the connection, the client then
// reconnects and replays from its last sequence.
func (s *Session) Overflow() <-chan struct{} {
	return s.overflow
}

func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.outbound)
}

func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActivity = time.Now().UTC()
	s.mu.Unlock()
}

func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

func (s *Session) Rooms() []domain.RoomID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.Keys(s.rooms)
}

func (s *Session) InRoom(roomID domain.RoomID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rooms[roomID]
	return ok
}

func (s *Session) addRoom(roomID domain.RoomID) {
	s.mu.Lock()
	s.rooms[roomID] = struct{}{}
	s.mu.Unlock()
}

func (s *Session) removeRoom(roomID domain.RoomID) {
	s.mu.Lock()
	delete(s.rooms, roomID)
	delete(s.delivered, roomID)
	s.mu.Unlock()
}
