// Package wire holds the JSON shapes shared by the websocket and HTTP transports.
package wire

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/domain/search"
	"chat-relay/errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/samber/lo"
)

// Frame is the websocket envelope, in both directions.
type Frame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type Message struct {
	ID          string    `json:"id"`
	ChatRoomID  string    `json:"chatRoomId"`
	SenderID    string    `json:"senderId"`
	SenderRole  string    `json:"senderRole"`
	Content     string    `json:"content"`
	MessageType string    `json:"messageType"`
	ReplyTo     *string   `json:"replyTo,omitempty"`
	Sequence    int64     `json:"sequence"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Typing struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

type MessageRead struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
	Cursor int64  `json:"cursor"`
}

type RoomUpdated struct {
	RoomID    string    `json:"roomId"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Error struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

type Ack struct {
	Status    string `json:"status"`
	MessageID string `json:"messageId,omitempty"`
	Sequence  int64  `json:"sequence,omitempty"`
	Cursor    *int64 `json:"cursor,omitempty"`
}

type Joined struct {
	RoomID         string `json:"roomId"`
	LatestSequence int64  `json:"latestSequence"`
}

type History struct {
	RoomID   string    `json:"roomId"`
	Messages []Message `json:"messages"`
}

type Unread struct {
	RoomID string `json:"roomId"`
	Count  int64  `json:"count"`
}

type UnreadSummary struct {
	PerRoom map[string]int64 `json:"perRoom"`
	Total   int64            `json:"total"`
}

type SearchHit struct {
	MessageID string    `json:"messageId"`
	SenderID  string    `json:"senderId"`
	Sequence  int64     `json:"sequence"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	Score     float64   `json:"score"`
}

type SearchResult struct {
	RoomID string      `json:"roomId"`
	Hits   []SearchHit `json:"hits"`
}

func FromMessage(m domain.Message) Message {
	var replyTo *string
	if m.ReplyTo != nil {
		replyTo = lo.ToPtr(m.ReplyTo.String())
	}
	return Message{
		ID:          m.ID.String(),
		ChatRoomID:  string(m.RoomID),
		SenderID:    string(m.SenderID),
		SenderRole:  string(m.SenderRole),
		Content:     m.Content,
		MessageType: string(m.ContentType),
		ReplyTo:     replyTo,
		Sequence:    m.Sequence,
		CreatedAt:   m.CreatedAt,
	}
}

func FromMessages(messages []domain.Message) []Message {
	return lo.Map(messages, func(m domain.Message, _ int) Message { return FromMessage(m) })
}

func FromHits(hits []search.Hit) []SearchHit {
	return lo.Map(hits, func(h search.Hit, _ int) SearchHit {
		return SearchHit{
			MessageID: h.MessageID.String(),
			SenderID:  string(h.SenderID),
			Sequence:  h.Sequence,
			Content:   h.Content,
			CreatedAt: h.CreatedAt,
			Score:     h.Score,
		}
	})
}

func FromSummary(s domain.UnreadSummary) UnreadSummary {
	return UnreadSummary{
		PerRoom: lo.MapKeys(s.PerRoom, func(_ int64, id domain.RoomID) string { return string(id) }),
		Total:   s.Total,
	}
}

func FromError(err error) Error {
	return Error{
		Code:      string(errors.CodeOf(err)),
		Message:   errors.PublicMessage(err),
		Retryable: errors.Retryable(err),
	}
}

// EventPayload maps a broker event to its outbound payload.
func EventPayload(evt event.Event) (any, error) {
	switch p := evt.Payload.(type) {
	case event.NewMessage:
		return FromMessage(p.Message), nil
	case event.Typing:
		return Typing{RoomID: string(p.RoomID), UserID: string(p.UserID)}, nil
	case event.MessageRead:
		return MessageRead{RoomID: string(p.RoomID), UserID: string(p.UserID), Cursor: p.Cursor}, nil
	case event.RoomUpdated:
		return RoomUpdated{RoomID: string(p.RoomID), UpdatedAt: p.UpdatedAt}, nil
	default:
		return nil, fmt.Errorf("no wire shape for event %s", evt.Type)
	}
}

// NewFrame marshals the payload into a frame of the given type.
func NewFrame(frameType, requestID string, payload any) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("marshalling %s payload: %w", frameType, err)
	}
	return Frame{Type: frameType, RequestID: requestID, Payload: raw}, nil
}

func EventFrame(evt event.Event) (Frame, error) {
	payload, err := EventPayload(evt)
	if err != nil {
		return Frame{}, err
	}
	return NewFrame(string(evt.Type), "", payload)
}
