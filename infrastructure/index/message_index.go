package index

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/search"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/google/uuid"
)

const (
	fieldRoom      = "room_id"
	fieldSender    = "sender_id"
	fieldContent   = "content"
	fieldSequence  = "sequence"
	fieldCreatedAt = "created_at"
)

var _ contract.MessageIndex = (*MessageIndex)(nil)

// MessageIndex is a bluge full-text index of message contents. The message id
// is the document id, indexing the same message twice replaces it.
type MessageIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewMessageIndex(writer *bluge.Writer, log *slog.Logger) *MessageIndex {
	return &MessageIndex{writer: writer, log: log}
}

func (i *MessageIndex) Index(message domain.Message) error {
	doc := bluge.NewDocument(message.ID.String()).
		AddField(bluge.NewKeywordField(fieldRoom, string(message.RoomID)).StoreValue()).
		AddField(bluge.NewKeywordField(fieldSender, string(message.SenderID)).StoreValue()).
		AddField(bluge.NewTextField(fieldContent, message.Content).StoreValue()).
		AddField(bluge.NewNumericField(fieldSequence, float64(message.Sequence)).StoreValue()).
		AddField(bluge.NewDateTimeField(fieldCreatedAt, message.CreatedAt).StoreValue())

	if err := i.writer.Update(doc.ID(), doc); err != nil {
		return fmt.Errorf("indexing message %s: %w", message.ID, err)
	}
	return nil
}

// Search matches the terms against the contents of one room, best score first.
func (i *MessageIndex) Search(ctx context.Context, roomID domain.RoomID, terms string, limit int) ([]search.Hit, error) {
	reader, err := i.writer.Reader()
	if err != nil {
		return nil, fmt.Errorf("opening index reader: %w", err)
	}
	defer func() {
		if err := reader.Close(); err != nil {
			i.log.Warn("Closing index reader failed", "error", err)
		}
	}()

	query := bluge.NewBooleanQuery().
		AddMust(bluge.NewTermQuery(string(roomID)).SetField(fieldRoom)).
		AddMust(bluge.NewMatchQuery(terms).SetField(fieldContent))
	request := bluge.NewTopNSearch(limit, query)

	matches, err := reader.Search(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("searching room %s: %w", roomID, err)
	}

	var hits []search.Hit
	match, err := matches.Next()
	for err == nil && match != nil {
		hit := search.Hit{RoomID: roomID, Score: match.Score}
		var visitErr error
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case "_id":
				hit.MessageID, visitErr = uuid.ParseBytes(value)
			case fieldSender:
				hit.SenderID = domain.UserID(value)
			case fieldContent:
				hit.Content = string(value)
			case fieldSequence:
				var seq float64
				seq, visitErr = bluge.DecodeNumericFloat64(value)
				hit.Sequence = int64(seq)
			case fieldCreatedAt:
				var at time.Time
				at, visitErr = bluge.DecodeDateTime(value)
				hit.CreatedAt = at.UTC()
			}
			return visitErr == nil
		})
		if err == nil {
			err = visitErr
		}
		if err != nil {
			break
		}
		hits = append(hits, hit)
		match, err = matches.Next()
	}
	if err != nil {
		return nil, fmt.Errorf("reading matches of room %s: %w", roomID, err)
	}
	return hits, nil
}
