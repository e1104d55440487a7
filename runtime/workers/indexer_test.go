package workers_test

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/mocks"
	"chat-relay/observability"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestIndexerWorker_Indexes_Every_Published_Message(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	index := mocks.NewMockMessageIndex(ctrl)
	registry := runtime.NewRegistry(slog.Default(), observability.NewDeliveryReporter(slog.Default()))
	worker := workers.NewIndexerWorker(slog.Default(), registry, index, 16)

	var indexed atomic.Int32
	index.EXPECT().Index(gomock.Any()).DoAndReturn(func(msg domain.Message) error {
		indexed.Add(1)
		if msg.Sequence == 2 {
			return fmt.Errorf("index closed")
		}
		return nil
	}).Times(3)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- worker.Run(ctx) }()

	// Given the worker subscribed to the firehose
	req.Eventually(func() bool {
		return registry.Subscribers(domain.AllRoomsChannel) == 1
	}, time.Second, 5*time.Millisecond)

	// When messages of two rooms are published, plus an event it ignores
	registry.Publish(domain.AllRoomsChannel, event.NewMessagePosted(domain.Message{RoomID: "r1", Sequence: 1}))
	registry.Publish(domain.AllRoomsChannel, event.NewMessagePosted(domain.Message{RoomID: "r1", Sequence: 2}))
	registry.Publish(domain.AllRoomsChannel, event.NewMessagePosted(domain.Message{RoomID: "r2", Sequence: 1}))
	registry.Publish(domain.AllRoomsChannel, event.NewRoomUpdated("r1", time.Now()))

	// Then each message is indexed once, a failure does not stop the worker
	req.Eventually(func() bool { return indexed.Load() == 3 }, time.Second, 5*time.Millisecond)
	cancel()
	req.NoError(<-done)
	req.Equal(0, registry.Channels())
}

func TestIndexerWorker_Full_Queue_Refuses_Delivery(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	registry := mocks.NewMockIRegistry(ctrl)
	worker := workers.NewIndexerWorker(slog.Default(), registry, mocks.NewMockMessageIndex(ctrl), 1)

	req.NoError(worker.Deliver(event.NewMessagePosted(domain.Message{RoomID: "r1", Sequence: 1})))
	err := worker.Deliver(event.NewMessagePosted(domain.Message{RoomID: "r1", Sequence: 2}))

	req.ErrorIs(err, errors.ErrSlowConsumer)
}
