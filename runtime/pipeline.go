package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/observability"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Pipeline validates, numbers, persists and fans out messages.
// A message is published only once the store acknowledged it.
type Pipeline struct {
	log              *slog.Logger
	registry         contract.IRegistry
	directory        contract.RoomDirectory
	store            contract.MessageStore
	sequencer        *Sequencer
	maxContentLength int
	replayLimit      int
}

func NewPipeline(log *slog.Logger, registry contract.IRegistry,
	directory contract.RoomDirectory, store contract.MessageStore,
	maxContentLength, replayLimit int) *Pipeline {
	return &Pipeline{
		log:              log,
		registry:         registry,
		directory:        directory,
		store:            store,
		sequencer:        NewSequencer(log, store),
		maxContentLength: maxContentLength,
		replayLimit:      replayLimit,
	}
}

// Send checks the message then assigns the next sequence of the room, persists
// and publishes it while holding the room counter, so every subscriber sees
// new_message events in sequence order.
// Membership is checked by the caller.
func (p *Pipeline) Send(ctx context.Context, s *Session, cmd domain.PostMessageCommand) (domain.Message, error) {
	start := time.Now()
	content := strings.TrimSpace(cmd.Content)
	if content == "" {
		return domain.Message{}, errors.ErrEmptyContent
	}
	if p.maxContentLength > 0 && utf8.RuneCountInString(content) > p.maxContentLength {
		return domain.Message{}, fmt.Errorf("%w: content longer than %d characters", errors.ErrValidation, p.maxContentLength)
	}
	contentType := cmd.ContentType
	if contentType == "" {
		contentType = domain.ContentTypeText
	}
	if !contentType.Valid() {
		return domain.Message{}, fmt.Errorf("%w: unknown message type %q", errors.ErrValidation, contentType)
	}

	room, err := p.directory.GetRoom(ctx, cmd.Room)
	if err != nil {
		return domain.Message{}, err
	}
	if !room.Active {
		return domain.Message{}, errors.ErrRoomInactive
	}

	createdAt := cmd.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var msg domain.Message
	err = p.sequencer.WithRoom(ctx, room.ID, func(latest int64) (int64, error) {
		msg = domain.Message{
			ID:          uuid.New(),
			RoomID:      room.ID,
			SenderID:    s.Identity.UserID,
			SenderRole:  s.Identity.Role,
			Content:     content,
			ContentType: contentType,
			ReplyTo:     cmd.ReplyTo,
			Sequence:    latest + 1,
			CreatedAt:   createdAt,
		}
		if _, err := p.store.Append(ctx, msg); err != nil {
			return latest, err
		}
		evt := event.NewMessagePosted(msg)
		p.registry.Publish(domain.RoomChannel(room.ID), evt)
		p.registry.Publish(domain.AllRoomsChannel, evt)
		return msg.Sequence, nil
	})
	if err != nil {
		if errors.Is(err, errors.ErrSequenceConflict) {
			p.sequencer.Invalidate(room.ID)
		}
		return domain.Message{}, storeUnavailable(err)
	}

	observability.MessagesSent.Inc()
	observability.SendDuration.Observe(time.Since(start).Seconds())
	p.announce(ctx, room, msg)
	return msg, nil
}

// announce touches the room and tells room lists it changed. The message is
// already durable and published, a failure here is only logged.
func (p *Pipeline) announce(ctx context.Context, room domain.Room, msg domain.Message) {
	updatedAt, err := p.directory.TouchRoom(ctx, room.ID)
	if err != nil {
		p.log.Warn("Touching room failed", "room_id", room.ID, "error", err)
		updatedAt = msg.CreatedAt
	}
	evt := event.NewRoomUpdated(room.ID, updatedAt)
	for _, participant := range room.Participants {
		p.registry.Publish(domain.UserRoomListChannel(participant), evt)
	}
	p.registry.Publish(domain.AdminRoomListChannel, evt)
}

// Attach runs join under the room counter and, when after is set, pushes the
// messages the session missed. No message can be published in between, so
// replayed and live messages reach the session in order. Access must be
// checked before, only counter and store failures are reported here.
// It returns the latest sequence of the room.
func (p *Pipeline) Attach(ctx context.Context, s *Session, roomID domain.RoomID, after *int64, join func()) (int64, error) {
	var latest int64
	err := p.sequencer.WithRoom(ctx, roomID, func(current int64) (int64, error) {
		latest = current
		join()
		if after == nil || *after >= current {
			return current, nil
		}
		missed, err := p.store.History(ctx, roomID, *after, p.replayLimit)
		if err != nil {
			p.log.Warn("Replay failed, client has to fetch history", "room_id", roomID, "error", err)
			return current, nil
		}
		lo.ForEach(missed, func(msg domain.Message, _ int) {
			if err := s.Deliver(event.NewMessagePosted(msg)); err != nil {
				p.log.Debug("Replay delivery dropped", "session_id", s.ID, "sequence", msg.Sequence, "error", err)
			}
		})
		return current, nil
	})
	if err != nil {
		return 0, storeUnavailable(err)
	}
	return latest, nil
}

// LatestSequence returns the authoritative counter of the room.
func (p *Pipeline) LatestSequence(ctx context.Context, roomID domain.RoomID) (int64, error) {
	var latest int64
	err := p.sequencer.WithRoom(ctx, roomID, func(current int64) (int64, error) {
		latest = current
		return current, nil
	})
	if err != nil {
		return 0, storeUnavailable(err)
	}
	return latest, nil
}

func storeUnavailable(err error) error {
	if errors.Is(err, errors.ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", errors.ErrStoreUnavailable, err)
}
