package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Membership tracks which sessions joined which rooms and owns their channel
// subscriptions. A session may be joined to several rooms at once, leaving is
// always explicit.
type Membership struct {
	mu         sync.Mutex
	log        *slog.Logger
	registry   contract.IRegistry
	authorizer contract.Authorizer
	joined     map[string]map[domain.RoomID]contract.Token // session -> room -> subscription
	roomLists  map[string][]contract.Token                  // session -> room list subscriptions
}

func NewMembership(log *slog.Logger, registry contract.IRegistry, authorizer contract.Authorizer) *Membership {
	return &Membership{
		log:        log,
		registry:   registry,
		authorizer: authorizer,
		joined:     make(map[string]map[domain.RoomID]contract.Token),
		roomLists:  make(map[string][]contract.Token),
	}
}

// Connect subscribes the session to the room list channels of its identity.
func (m *Membership) Connect(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roomLists[s.ID]; ok {
		return
	}
	tokens := []contract.Token{m.registry.Subscribe(domain.UserRoomListChannel(s.Identity.UserID), s)}
	if s.Identity.Role == domain.RoleAdmin {
		tokens = append(tokens, m.registry.Subscribe(domain.AdminRoomListChannel, s))
	}
	m.roomLists[s.ID] = tokens
}

// Authorize fails with ErrAuthorizationDenied for strangers and unknown rooms.
// A failing authorizer is reported as is, it is not a denial.
func (m *Membership) Authorize(ctx context.Context, s *Session, roomID domain.RoomID) error {
	ok, err := m.authorizer.CanAccessRoom(ctx, s.Identity.UserID, roomID)
	if err != nil {
		return fmt.Errorf("authorization of %s on room %s: %w", s.Identity.UserID, roomID, err)
	}
	if !ok {
		return errors.ErrAuthorizationDenied
	}
	return nil
}

// Join checks access then subscribes the session on the room channel.
// It reports whether a new membership was created; joining twice is a no-op.
func (m *Membership) Join(ctx context.Context, s *Session, roomID domain.RoomID) (bool, error) {
	if err := m.Authorize(ctx, s, roomID); err != nil {
		return false, err
	}
	return m.subscribe(s, roomID), nil
}

// subscribe is Join without the access check, the caller authorized already.
func (m *Membership) subscribe(s *Session, roomID domain.RoomID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	rooms, ok := m.joined[s.ID]
	if !ok {
		rooms = make(map[domain.RoomID]contract.Token)
		m.joined[s.ID] = rooms
	}
	if _, already := rooms[roomID]; already {
		return false
	}
	rooms[roomID] = m.registry.Subscribe(domain.RoomChannel(roomID), s)
	s.addRoom(roomID)
	m.log.Debug("Session joined room", "session_id", s.ID, "user_id", s.Identity.UserID, "room_id", roomID)
	return true
}

// Leave is idempotent, leaving a room the session is not in does nothing.
func (m *Membership) Leave(s *Session, roomID domain.RoomID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leaveLocked(s, roomID)
}

func (m *Membership) leaveLocked(s *Session, roomID domain.RoomID) bool {
	rooms, ok := m.joined[s.ID]
	if !ok {
		return false
	}
	token, ok := rooms[roomID]
	if !ok {
		return false
	}
	m.registry.Unsubscribe(token)
	delete(rooms, roomID)
	if len(rooms) == 0 {
		delete(m.joined, s.ID)
	}
	s.removeRoom(roomID)
	m.log.Debug("Session left room", "session_id", s.ID, "room_id", roomID)
	return true
}

// Disconnect leaves every joined room and drops the room list subscriptions.
// It returns the rooms that were left.
func (m *Membership) Disconnect(s *Session) []domain.RoomID {
	m.mu.Lock()
	defer m.mu.Unlock()

	var left []domain.RoomID
	for roomID := range m.joined[s.ID] {
		if m.leaveLocked(s, roomID) {
			left = append(left, roomID)
		}
	}
	for _, token := range m.roomLists[s.ID] {
		m.registry.Unsubscribe(token)
	}
	delete(m.roomLists, s.ID)
	return left
}

func (m *Membership) IsJoined(s *Session, roomID domain.RoomID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.joined[s.ID][roomID]
	return ok
}

// Sessions returns the number of sessions currently joined to at least one room.
func (m *Membership) Sessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.joined)
}
