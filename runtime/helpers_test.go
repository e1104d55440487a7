package runtime_test

import (
	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/infrastructure/storage"
	"chat-relay/observability"
	"chat-relay/runtime"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

// recorder is a handler keeping every event it receives.
type recorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recorder) Deliver(evt event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *recorder) ofType(t event.Type) []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []event.Event
	for _, evt := range r.events {
		if evt.Type == t {
			out = append(out, evt)
		}
	}
	return out
}

func sequences(events []event.Event) []int64 {
	var out []int64
	for _, evt := range events {
		if posted, ok := evt.Payload.(event.NewMessage); ok {
			out = append(out, posted.Message.Sequence)
		}
	}
	return out
}

// drain reads what is queued on the session without waiting.
func drain(s *runtime.Session) []event.Event {
	var out []event.Event
	for {
		select {
		case evt, ok := <-s.Events():
			if !ok {
				return out
			}
			out = append(out, evt)
		default:
			return out
		}
	}
}

func ofType(events []event.Event, t event.Type) []event.Event {
	var out []event.Event
	for _, evt := range events {
		if evt.Type == t {
			out = append(out, evt)
		}
	}
	return out
}

type stores struct {
	rooms    *storage.RoomRepository
	messages *storage.MessageRepository
	cursors  *storage.CursorRepository
}

func setupStores(t *testing.T) stores {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return stores{
		rooms:    storage.NewRoomRepository(db, slog.Default()),
		messages: storage.NewMessageRepository(db, slog.Default()),
		cursors:  storage.NewCursorRepository(db),
	}
}

func (s stores) saveRoom(t *testing.T, id domain.RoomID, active bool, participants ...domain.UserID) domain.Room {
	t.Helper()
	now := time.Now().UTC()
	room := domain.Room{
		ID:           id,
		BookingRef:   "booking-" + string(id),
		Kind:         domain.RoomKindCustomerCompany,
		Active:       active,
		Participants: participants,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, s.rooms.Save(context.Background(), room))
	return room
}

func (s stores) authorizer() *auth.RoomAuthorizer {
	return auth.NewRoomAuthorizer(s.rooms, []domain.UserID{"support"})
}

func newRegistry() *runtime.Registry {
	return runtime.NewRegistry(slog.Default(), observability.NewDeliveryReporter(slog.Default()))
}

var (
	alice = domain.Identity{UserID: "alice", Role: domain.RoleCustomer}
	bob   = domain.Identity{UserID: "bob", Role: domain.RoleCompany}
	carol = domain.Identity{UserID: "carol", Role: domain.RoleCustomer}
)
