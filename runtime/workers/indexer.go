package workers

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/observability"
	"context"
	"log/slog"
)

// IndexerWorker feeds the search index with every message published on the
// firehose channel. Deliver only queues, indexing happens in Run so a slow
// index never holds the sender's room lock.
type IndexerWorker struct {
	log      *slog.Logger
	registry contract.IRegistry
	index    contract.MessageIndex
	queue    chan domain.Message
}

func NewIndexerWorker(log *slog.Logger, registry contract.IRegistry, index contract.MessageIndex, bufferSize int) *IndexerWorker {
	return &IndexerWorker{
		log:      log,
		registry: registry,
		index:    index,
		queue:    make(chan domain.Message, bufferSize),
	}
}

func (w *IndexerWorker) Deliver(evt event.Event) error {
	posted, ok := evt.Payload.(event.NewMessage)
	if !ok {
		return nil
	}
	select {
	case w.queue <- posted.Message:
		return nil
	default:
		return errors.ErrSlowConsumer
	}
}

// Run subscribes for its own lifetime, a restart after a panic subscribes again.
func (w *IndexerWorker) Run(ctx context.Context) error {
	token := w.registry.Subscribe(domain.AllRoomsChannel, w)
	defer w.registry.Unsubscribe(token)
	w.log.Info("Starting message indexer")

	for {
		select {
		case <-ctx.Done():
			w.drain()
			return nil
		case msg := <-w.queue:
			w.indexOne(msg)
		}
	}
}

func (w *IndexerWorker) indexOne(msg domain.Message) {
	if err := w.index.Index(msg); err != nil {
		w.log.Warn("Indexing message failed", "room_id", msg.RoomID, "sequence", msg.Sequence, "error", err)
		return
	}
	observability.IndexedMessages.Inc()
}

func (w *IndexerWorker) drain() {
	for {
		select {
		case msg := <-w.queue:
			w.indexOne(msg)
		default:
			return
		}
	}
}
