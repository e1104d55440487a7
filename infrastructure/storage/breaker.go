package storage

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/observability"
	"context"
	"fmt"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

var _ contract.MessageStore = (*BreakerStore)(nil)

type BreakerSettings struct {
	FailureThreshold uint32
	OpenTimeout      time.Duration
	HalfOpenRequests uint32
}

// BreakerStore fails fast with ErrStoreUnavailable once the wrapped store
// kept failing, instead of holding every room lock on a dead disk.
// Sequence conflicts and cancelled contexts are answers, not failures.
type BreakerStore struct {
	log     *slog.Logger
	store   contract.MessageStore
	breaker *gobreaker.CircuitBreaker[any]
}

func NewBreakerStore(log *slog.Logger, store contract.MessageStore, settings BreakerSettings) *BreakerStore {
	b := &BreakerStore{log: log, store: store}
	b.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "message-store",
		MaxRequests: settings.HalfOpenRequests,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, errors.ErrSequenceConflict) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			observability.StoreBreakerState.Set(float64(to))
			log.Warn("Store circuit breaker changed state", "name", name, "from", from.String(), "to", to.String())
		},
	})
	return b
}

func (b *BreakerStore) Append(ctx context.Context, message domain.Message) (int64, error) {
	res, err := b.breaker.Execute(func() (any, error) {
		return b.store.Append(ctx, message)
	})
	if err != nil {
		return 0, unavailable(err)
	}
	return res.(int64), nil
}

func (b *BreakerStore) LatestSequence(ctx context.Context, roomID domain.RoomID) (int64, error) {
	res, err := b.breaker.Execute(func() (any, error) {
		return b.store.LatestSequence(ctx, roomID)
	})
	if err != nil {
		return 0, unavailable(err)
	}
	return res.(int64), nil
}

func (b *BreakerStore) History(ctx context.Context, roomID domain.RoomID, afterSequence int64, limit int) ([]domain.Message, error) {
	res, err := b.breaker.Execute(func() (any, error) {
		return b.store.History(ctx, roomID, afterSequence, limit)
	})
	if err != nil {
		return nil, unavailable(err)
	}
	return res.([]domain.Message), nil
}

func (b *BreakerStore) State() gobreaker.State {
	return b.breaker.State()
}

func unavailable(err error) error {
	if errors.Is(err, errors.ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", errors.ErrStoreUnavailable, err)
}
