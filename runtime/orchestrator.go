// Package runtime holds the live part of the chat: channels, sessions, room
// membership, sequencing, typing and read cursors.
// Durable state goes through the contract collaborators only.
package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/search"
	"chat-relay/errors"
	"chat-relay/observability"
	"chat-relay/runtime/workers"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Settings are the tunables of the orchestrator, filled from the server config.
type Settings struct {
	MaxContentLength  int
	HistoryLimit      int
	ReplayLimit       int
	SearchLimit       int
	TypingExpiry      time.Duration
	SessionBufferSize int
	IndexBufferSize   int
	StatsInterval     time.Duration
}

type Orchestrator struct {
	mu         sync.Mutex
	log        *slog.Logger
	settings   Settings
	registry   *Registry
	reporter   *observability.DeliveryReporter
	membership *Membership
	pipeline   *Pipeline
	typing     *TypingTracker
	receipts   *Receipts
	authorizer contract.Authorizer
	store      contract.MessageStore
	index      contract.MessageIndex
	supervisor contract.ISupervisor
	monitoring *observability.MonitoringManager
	sessions   map[string]*Session
}

func NewOrchestrator(log *slog.Logger, settings Settings, supervisor contract.ISupervisor,
	authorizer contract.Authorizer, directory contract.RoomDirectory,
	store contract.MessageStore, cursors contract.CursorStore, index contract.MessageIndex,
	monitoring *observability.MonitoringManager) *Orchestrator {
	reporter := observability.NewDeliveryReporter(log)
	registry := NewRegistry(log, reporter)
	pipeline := NewPipeline(log, registry, directory, store, settings.MaxContentLength, settings.ReplayLimit)
	return &Orchestrator{
		log:        log,
		settings:   settings,
		registry:   registry,
		reporter:   reporter,
		membership: NewMembership(log, registry, authorizer),
		pipeline:   pipeline,
		typing:     NewTypingTracker(log, registry, settings.TypingExpiry),
		receipts:   NewReceipts(log, registry, cursors, directory, pipeline.LatestSequence),
		authorizer: authorizer,
		store:      store,
		index:      index,
		supervisor: supervisor,
		monitoring: monitoring,
		sessions:   make(map[string]*Session),
	}
}

// Connect opens a session for an authenticated identity and subscribes it to
// its room list updates.
func (o *Orchestrator) Connect(identity domain.Identity) *Session {
	s := NewSession(identity, o.settings.SessionBufferSize)
	o.membership.Connect(s)

	o.mu.Lock()
	o.sessions[s.ID] = s
	o.mu.Unlock()
	observability.SessionsActive.Inc()
	o.log.Debug("Session connected", "session_id", s.ID, "user_id", identity.UserID, "role", identity.Role)
	return s
}

// Disconnect removes every subscription of the session. Typing states are
// left to expire so a quick reconnect does not flicker.
func (o *Orchestrator) Disconnect(s *Session) {
	o.mu.Lock()
	_, ok := o.sessions[s.ID]
	delete(o.sessions, s.ID)
	o.mu.Unlock()
	if !ok {
		return
	}

	left := o.membership.Disconnect(s)
	s.Close()
	observability.SessionsActive.Dec()
	o.log.Debug("Session disconnected", "session_id", s.ID, "user_id", s.Identity.UserID, "rooms_left", len(left))
}

// JoinRoom subscribes the session to the room and replays what it missed
// after cmd.LastSequence. It returns the latest sequence of the room.
// Access is checked first, a denied join never touches the room counter.
func (o *Orchestrator) JoinRoom(ctx context.Context, s *Session, cmd domain.JoinRoomCommand) (int64, error) {
	if err := o.membership.Authorize(ctx, s, cmd.Room); err != nil {
		return 0, err
	}
	return o.pipeline.Attach(ctx, s, cmd.Room, cmd.LastSequence, func() {
		o.membership.subscribe(s, cmd.Room)
	})
}

func (o *Orchestrator) LeaveRoom(s *Session, roomID domain.RoomID) bool {
	return o.membership.Leave(s, roomID)
}

func (o *Orchestrator) SendMessage(ctx context.Context, s *Session, cmd domain.PostMessageCommand) (domain.Message, error) {
	if !o.membership.IsJoined(s, cmd.Room) {
		return domain.Message{}, errors.ErrNotJoined
	}
	return o.pipeline.Send(ctx, s, cmd)
}

func (o *Orchestrator) StartTyping(s *Session, roomID domain.RoomID) error {
	if !o.membership.IsJoined(s, roomID) {
		return errors.ErrNotJoined
	}
	o.typing.Start(s, roomID)
	return nil
}

// StopTyping only clears the caller's own flag, so it needs no membership.
func (o *Orchestrator) StopTyping(s *Session, roomID domain.RoomID) {
	o.typing.Stop(s, roomID)
}

func (o *Orchestrator) MarkRead(ctx context.Context, identity domain.Identity, cmd domain.MarkReadCommand) (int64, error) {
	if err := o.authorize(ctx, identity, cmd.Room); err != nil {
		return 0, err
	}
	return o.receipts.MarkRead(ctx, identity.UserID, cmd.Room, cmd.UpTo)
}

func (o *Orchestrator) UnreadCount(ctx context.Context, identity domain.Identity, roomID domain.RoomID) (int64, error) {
	if err := o.authorize(ctx, identity, roomID); err != nil {
		return 0, err
	}
	return o.receipts.UnreadCount(ctx, identity.UserID, roomID)
}

func (o *Orchestrator) UnreadSummary(ctx context.Context, identity domain.Identity) (domain.UnreadSummary, error) {
	return o.receipts.UnreadSummary(ctx, identity.UserID)
}

// GetMessages returns the messages after cmd.AfterSequence in ascending order.
func (o *Orchestrator) GetMessages(ctx context.Context, identity domain.Identity, cmd domain.GetMessageCommand) ([]domain.Message, error) {
	if err := o.authorize(ctx, identity, cmd.Room); err != nil {
		return nil, err
	}
	messages, err := o.store.History(ctx, cmd.Room, max(cmd.AfterSequence, 0), clampLimit(cmd.Limit, o.settings.HistoryLimit))
	if err != nil {
		return nil, storeUnavailable(err)
	}
	return messages, nil
}

func (o *Orchestrator) Search(ctx context.Context, identity domain.Identity, cmd domain.SearchCommand) ([]search.Hit, error) {
	if err := o.authorize(ctx, identity, cmd.Room); err != nil {
		return nil, err
	}
	if cmd.Terms == "" {
		return nil, fmt.Errorf("%w: empty search query", errors.ErrValidation)
	}
	return o.index.Search(ctx, cmd.Room, cmd.Terms, clampLimit(cmd.Limit, o.settings.SearchLimit))
}

func (o *Orchestrator) authorize(ctx context.Context, identity domain.Identity, roomID domain.RoomID) error {
	ok, err := o.authorizer.CanAccessRoom(ctx, identity.UserID, roomID)
	if err != nil {
		return fmt.Errorf("authorization of %s on room %s: %w", identity.UserID, roomID, err)
	}
	if !ok {
		return errors.ErrAuthorizationDenied
	}
	return nil
}

func clampLimit(limit, ceiling int) int {
	if limit <= 0 || limit > ceiling {
		return ceiling
	}
	return limit
}

// Start registers the background workers and blocks until they stopped.
func (o *Orchestrator) Start(ctx context.Context) {
	o.supervisor.Add(
		workers.NewIndexerWorker(o.log, o.registry, o.index, o.settings.IndexBufferSize),
		workers.NewStatsWorker(o.log, o, o.monitoring, o.settings.StatsInterval),
	)
	o.log.Info("Starting orchestrator and all supervised workers")
	o.supervisor.Run(ctx)
}

func (o *Orchestrator) Stop() {
	o.log.Info("Requesting orchestrator shutdown")
	o.supervisor.Stop()
	o.typing.Close()
}

func (o *Orchestrator) ActiveSessions() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sessions)
}

func (o *Orchestrator) ActiveChannels() int {
	return o.registry.Channels()
}

func (o *Orchestrator) TypingStates() int {
	return o.typing.Active()
}

func (o *Orchestrator) DeliveryFailures() uint64 {
	return o.reporter.Failures()
}
