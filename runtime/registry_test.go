package runtime_test

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/mocks"
	"chat-relay/runtime"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestRegistry_Publish_Reaches_Every_Subscriber_In_Order(t *testing.T) {
	req := require.New(t)
	registry := newRegistry()
	channel := domain.RoomChannel("r1")
	first, second := &recorder{}, &recorder{}

	// Given two handlers on the same channel
	registry.Subscribe(channel, first)
	registry.Subscribe(channel, second)

	// When two events are published
	registry.Publish(channel, event.NewMessagePosted(domain.Message{RoomID: "r1", Sequence: 1}))
	registry.Publish(channel, event.NewMessagePosted(domain.Message{RoomID: "r1", Sequence: 2}))

	// Then both received them in publication order
	req.Equal([]int64{1, 2}, sequences(first.ofType(event.NewMessageType)))
	req.Equal([]int64{1, 2}, sequences(second.ofType(event.NewMessageType)))
	req.Equal(2, registry.Subscribers(channel))
}

func TestRegistry_Publish_On_Empty_Channel_Creates_Nothing(t *testing.T) {
	req := require.New(t)
	registry := newRegistry()

	registry.Publish(domain.RoomChannel("nobody"), event.NewRoomUpdated("nobody", time.Now()))

	req.Equal(0, registry.Channels())
}

func TestRegistry_Unsubscribe_Last_Subscriber_Deletes_Channel(t *testing.T) {
	req := require.New(t)
	registry := newRegistry()
	channel := domain.RoomChannel("r1")
	handler := &recorder{}

	// Given the same handler subscribed twice
	first := registry.Subscribe(channel, handler)
	second := registry.Subscribe(channel, handler)
	req.Equal(1, registry.Channels())

	// When one token is removed, the other registration stays
	registry.Unsubscribe(first)
	req.Equal(1, registry.Subscribers(channel))

	// Then removing the last one deletes the channel, and again is a no-op
	registry.Unsubscribe(second)
	registry.Unsubscribe(second)
	req.Equal(0, registry.Channels())
}

func TestRegistry_Failing_Handler_Is_Reported_And_Skipped(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	reporter := mocks.NewMockFailureReporter(ctrl)
	failing := mocks.NewMockHandler(ctrl)
	panicking := mocks.NewMockHandler(ctrl)
	healthy := &recorder{}
	registry := runtime.NewRegistry(slog.Default(), reporter)
	channel := domain.RoomChannel("r1")
	evt := event.NewMessagePosted(domain.Message{RoomID: "r1", Sequence: 1})

	// Given a refusing handler, a panicking one and a healthy one
	registry.Subscribe(channel, failing)
	registry.Subscribe(channel, panicking)
	registry.Subscribe(channel, healthy)

	failing.EXPECT().Deliver(evt).Return(fmt.Errorf("%w", errors.ErrSlowConsumer))
	panicking.EXPECT().Deliver(evt).DoAndReturn(func(event.Event) error { panic("boom") })
	reporter.EXPECT().Report(channel, evt, gomock.Any()).
		Do(func(_ domain.Channel, _ event.Event, err error) {
			req.ErrorIs(err, errors.ErrSlowConsumer)
		})
	reporter.EXPECT().Report(channel, evt, gomock.Any()).
		Do(func(_ domain.Channel, _ event.Event, err error) {
			req.ErrorIs(err, errors.ErrHandlerPanic)
		})

	// When publishing
	registry.Publish(channel, evt)

	// Then the healthy handler still got the event
	req.Len(healthy.ofType(event.NewMessageType), 1)
}
