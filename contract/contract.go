//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/domain/search"
	"context"
	"reflect"
	"time"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Handler receives the events published on a channel it subscribed to.
// Deliver must not block: it is called synchronously by the publisher.
type Handler interface {
	Deliver(evt event.Event) error
}

// Token identifies one subscription of one handler.
type Token struct {
	Channel domain.Channel
	ID      uint64
}

type IRegistry interface {
	Subscribe(channel domain.Channel, handler Handler) Token
	Unsubscribe(token Token)
	Publish(channel domain.Channel, evt event.Event)
}

// FailureReporter collects delivery failures that must not reach the publisher.
type FailureReporter interface {
	Report(channel domain.Channel, evt event.Event, err error)
}

type Authorizer interface {
	CanAccessRoom(ctx context.Context, userID domain.UserID, roomID domain.RoomID) (bool, error)
}

type RoomDirectory interface {
	GetRoom(ctx context.Context, roomID domain.RoomID) (domain.Room, error)
	ListRoomsForUser(ctx context.Context, userID domain.UserID) ([]domain.Room, error)
	TouchRoom(ctx context.Context, roomID domain.RoomID) (time.Time, error)
}

// MessageStore is the durable append-only log of messages, one sequence per room.
type MessageStore interface {
	Append(ctx context.Context, message domain.Message) (int64, error)
	LatestSequence(ctx context.Context, roomID domain.RoomID) (int64, error)
	History(ctx context.Context, roomID domain.RoomID, afterSequence int64, limit int) ([]domain.Message, error)
}

type CursorStore interface {
	Get(ctx context.Context, roomID domain.RoomID, userID domain.UserID) (int64, error)
	// Advance moves the cursor forward only. It returns the stored value and whether it moved.
	Advance(ctx context.Context, roomID domain.RoomID, userID domain.UserID, sequence int64) (int64, bool, error)
}

type MessageIndex interface {
	Index(message domain.Message) error
	Search(ctx context.Context, roomID domain.RoomID, terms string, limit int) ([]search.Hit, error)
}
