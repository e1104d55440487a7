package storage

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newMessage(room domain.RoomID, seq int64) domain.Message {
	return domain.Message{
		ID:          uuid.New(),
		RoomID:      room,
		SenderID:    "alice",
		SenderRole:  domain.RoleCustomer,
		Content:     fmt.Sprintf("message %d", seq),
		ContentType: domain.ContentTypeText,
		Sequence:    seq,
		CreatedAt:   time.Now().UTC().Truncate(time.Microsecond),
	}
}

func TestMessageRepository_Append_And_History_Sorted(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewMessageRepository(SetupTestDB(t), slog.Default())

	// Given 12 messages, past the 9 -> 10 digit boundary, and another room
	var stored []domain.Message
	for seq := int64(1); seq <= 12; seq++ {
		msg := newMessage("r1", seq)
		got, err := repository.Append(ctx, msg)
		req.NoError(err)
		req.Equal(seq, got)
		stored = append(stored, msg)
	}
	_, err := repository.Append(ctx, newMessage("r10", 1))
	req.NoError(err)

	// When fetching the whole room
	history, err := repository.History(ctx, "r1", 0, 0)

	// Then messages come back in sequence order, only from r1
	req.NoError(err)
	req.Equal(stored, history)

	latest, err := repository.LatestSequence(ctx, "r1")
	req.NoError(err)
	req.Equal(int64(12), latest)
}

func TestMessageRepository_History_After_And_Limit(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewMessageRepository(SetupTestDB(t), slog.Default())
	for seq := int64(1); seq <= 5; seq++ {
		_, err := repository.Append(ctx, newMessage("r1", seq))
		req.NoError(err)
	}

	tests := []struct {
		name  string
		after int64
		limit int
		want  []int64
	}{
		{"First page", 0, 2, []int64{1, 2}},
		{"Next page", 2, 2, []int64{3, 4}},
		{"Last page", 4, 2, []int64{5}},
		{"Past the end", 5, 2, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			history, err := repository.History(ctx, "r1", tt.after, tt.limit)
			require.NoError(t, err)
			var got []int64
			for _, m := range history {
				got = append(got, m.Sequence)
			}
			require.Equal(t, tt.want, got)
		})
	}
}

func TestMessageRepository_Append_Rejects_Gaps_And_Reuse(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewMessageRepository(SetupTestDB(t), slog.Default())

	_, err := repository.Append(ctx, newMessage("r1", 1))
	req.NoError(err)

	_, err = repository.Append(ctx, newMessage("r1", 1))
	req.ErrorIs(err, errors.ErrSequenceConflict)

	_, err = repository.Append(ctx, newMessage("r1", 3))
	req.ErrorIs(err, errors.ErrSequenceConflict)

	latest, err := repository.LatestSequence(ctx, "r1")
	req.NoError(err)
	req.Equal(int64(1), latest)
}

func TestMessageRepository_Empty_Room(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewMessageRepository(SetupTestDB(t), slog.Default())

	latest, err := repository.LatestSequence(ctx, "nothing")
	req.NoError(err)
	req.Equal(int64(0), latest)

	history, err := repository.History(ctx, "nothing", 0, 10)
	req.NoError(err)
	req.Empty(history)
}

func TestMessageRepository_History_Does_Not_Leak_Into_Rooms_Sharing_A_Prefix(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewMessageRepository(SetupTestDB(t), slog.Default())

	// Given messages only in rooms whose ids extend "a" with the key separator
	for _, room := range []domain.RoomID{"a:b", "a%3Ab", "a:"} {
		_, err := repository.Append(ctx, newMessage(room, 1))
		req.NoError(err)
	}

	// When reading room "a"
	history, err := repository.History(ctx, "a", 0, 10)

	// Then nothing from the other rooms comes back
	req.NoError(err)
	req.Empty(history)
	latest, err := repository.LatestSequence(ctx, "a")
	req.NoError(err)
	req.Equal(int64(0), latest)

	// And each colon-bearing room still reads its own message
	history, err = repository.History(ctx, "a:b", 0, 10)
	req.NoError(err)
	req.Len(history, 1)
	req.Equal(domain.RoomID("a:b"), history[0].RoomID)
}
