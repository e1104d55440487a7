package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/observability"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

var _ contract.IRegistry = (*Registry)(nil)

type subscription struct {
	id      uint64
	handler contract.Handler
}

// Registry is the channel registry: channel name to ordered subscribers.
// A channel exists only while it has at least one subscriber.
type Registry struct {
	mu       sync.RWMutex
	log      *slog.Logger
	reporter contract.FailureReporter
	nextID   atomic.Uint64
	channels map[domain.Channel][]subscription
}

func NewRegistry(log *slog.Logger, reporter contract.FailureReporter) *Registry {
	return &Registry{
		log:      log,
		reporter: reporter,
		channels: make(map[domain.Channel][]subscription),
	}
}

// Subscribe registers a handler on a channel, creating the channel on the fly.
// The returned token removes exactly this registration, even if the same
// handler is subscribed several times.
func (r *Registry) Subscribe(channel domain.Channel, handler contract.Handler) contract.Token {
	id := r.nextID.Add(1)

	r.mu.Lock()
	defer r.mu.Unlock()

	subs, ok := r.channels[channel]
	if !ok {
		observability.ChannelsActive.Inc()
		r.log.Debug("Channel created", "channel", channel)
	}
	r.channels[channel] = append(subs, subscription{id: id, handler: handler})
	return contract.Token{Channel: channel, ID: id}
}

// Unsubscribe is idempotent. Removing the last subscriber deletes the channel
// so no empty entries are left in the map.
func (r *Registry) Unsubscribe(token contract.Token) {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs, ok := r.channels[token.Channel]
	if !ok {
		return
	}
	kept := make([]subscription, 0, len(subs))
	for _, s := range subs {
		if s.id != token.ID {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		delete(r.channels, token.Channel)
		observability.ChannelsActive.Dec()
		r.log.Debug("Channel deleted", "channel", token.Channel)
		return
	}
	r.channels[token.Channel] = kept
}

// Publish delivers the event synchronously to every current subscriber, in
// registration order. A failing or panicking handler is reported and skipped.
func (r *Registry) Publish(channel domain.Channel, evt event.Event) {
	r.mu.RLock()
	subs := r.channels[channel]
	r.mu.RUnlock()

	// The slice is never mutated in place, a concurrent unsubscribe builds a new one.
	for _, s := range subs {
		if err := r.deliver(s.handler, evt); err != nil {
			r.reporter.Report(channel, evt, err)
		}
	}
}

func (r *Registry) deliver(handler contract.Handler, evt event.Event) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", errors.ErrHandlerPanic, rec)
		}
	}()
	return handler.Deliver(evt)
}

// Channels returns the number of live channels.
func (r *Registry) Channels() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}

// Subscribers returns the number of handlers registered on a channel.
func (r *Registry) Subscribers(channel domain.Channel) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels[channel])
}
