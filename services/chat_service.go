//go:generate go run go.uber.org/mock/mockgen -source=chat_service.go -destination=../mocks/mock_chat_service.go -package=mocks
package services

import (
	"chat-relay/domain"
	"chat-relay/domain/search"
	"chat-relay/errors"
	"chat-relay/observability"
	"chat-relay/runtime"
	"context"
	"log/slog"
)

// IChatService is what the transports call, one method per client operation.
type IChatService interface {
	Connect(identity domain.Identity) *runtime.Session
	Disconnect(session *runtime.Session)
	JoinRoom(ctx context.Context, session *runtime.Session, cmd domain.JoinRoomCommand) (int64, error)
	LeaveRoom(session *runtime.Session, roomID domain.RoomID)
	PostMessage(ctx context.Context, session *runtime.Session, cmd domain.PostMessageCommand) (domain.Message, error)
	StartTyping(session *runtime.Session, roomID domain.RoomID) error
	StopTyping(session *runtime.Session, roomID domain.RoomID)
	MarkRead(ctx context.Context, identity domain.Identity, cmd domain.MarkReadCommand) (int64, error)
	UnreadCount(ctx context.Context, identity domain.Identity, roomID domain.RoomID) (int64, error)
	UnreadSummary(ctx context.Context, identity domain.Identity) (domain.UnreadSummary, error)
	GetMessages(ctx context.Context, identity domain.Identity, cmd domain.GetMessageCommand) ([]domain.Message, error)
	Search(ctx context.Context, identity domain.Identity, cmd domain.SearchCommand) ([]search.Hit, error)
}

type ChatService struct {
	log          *slog.Logger
	orchestrator *runtime.Orchestrator
}

func NewChatService(log *slog.Logger, o *runtime.Orchestrator) *ChatService {
	return &ChatService{log: log, orchestrator: o}
}

func (s *ChatService) Connect(identity domain.Identity) *runtime.Session {
	return s.orchestrator.Connect(identity)
}

func (s *ChatService) Disconnect(session *runtime.Session) {
	s.orchestrator.Disconnect(session)
}

func (s *ChatService) JoinRoom(ctx context.Context, session *runtime.Session, cmd domain.JoinRoomCommand) (int64, error) {
	latest, err := s.orchestrator.JoinRoom(ctx, session, cmd)
	return latest, s.observe("join_room", session.Identity, cmd.Room, err)
}

func (s *ChatService) LeaveRoom(session *runtime.Session, roomID domain.RoomID) {
	s.orchestrator.LeaveRoom(session, roomID)
}

func (s *ChatService) PostMessage(ctx context.Context, session *runtime.Session, cmd domain.PostMessageCommand) (domain.Message, error) {
	msg, err := s.orchestrator.SendMessage(ctx, session, cmd)
	return msg, s.observe("send_message", session.Identity, cmd.Room, err)
}

func (s *ChatService) StartTyping(session *runtime.Session, roomID domain.RoomID) error {
	return s.observe("typing_start", session.Identity, roomID, s.orchestrator.StartTyping(session, roomID))
}

func (s *ChatService) StopTyping(session *runtime.Session, roomID domain.RoomID) {
	s.orchestrator.StopTyping(session, roomID)
}

func (s *ChatService) MarkRead(ctx context.Context, identity domain.Identity, cmd domain.MarkReadCommand) (int64, error) {
	cursor, err := s.orchestrator.MarkRead(ctx, identity, cmd)
	return cursor, s.observe("mark_read", identity, cmd.Room, err)
}

func (s *ChatService) UnreadCount(ctx context.Context, identity domain.Identity, roomID domain.RoomID) (int64, error) {
	count, err := s.orchestrator.UnreadCount(ctx, identity, roomID)
	return count, s.observe("unread_count", identity, roomID, err)
}

func (s *ChatService) UnreadSummary(ctx context.Context, identity domain.Identity) (domain.UnreadSummary, error) {
	summary, err := s.orchestrator.UnreadSummary(ctx, identity)
	return summary, s.observe("unread_summary", identity, "", err)
}

func (s *ChatService) GetMessages(ctx context.Context, identity domain.Identity, cmd domain.GetMessageCommand) ([]domain.Message, error) {
	messages, err := s.orchestrator.GetMessages(ctx, identity, cmd)
	return messages, s.observe("fetch_history", identity, cmd.Room, err)
}

func (s *ChatService) Search(ctx context.Context, identity domain.Identity, cmd domain.SearchCommand) ([]search.Hit, error) {
	hits, err := s.orchestrator.Search(ctx, identity, cmd)
	return hits, s.observe("search", identity, cmd.Room, err)
}

// observe counts and logs a rejected operation, then hands the error back.
// Internal errors are logged at error level, they are the only ones hiding a detail from the client.
func (s *ChatService) observe(operation string, identity domain.Identity, roomID domain.RoomID, err error) error {
	if err == nil {
		return nil
	}
	code := errors.CodeOf(err)
	observability.OperationErrors.WithLabelValues(operation, string(code)).Inc()
	attrs := []any{"operation", operation, "user_id", identity.UserID, "room_id", roomID, "code", code, "error", err}
	if code == errors.CodeInternal {
		s.log.Error("Operation failed", attrs...)
	} else {
		s.log.Debug("Operation rejected", attrs...)
	}
	return err
}
