package websocket

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/infrastructure/wire"
	"chat-relay/observability"
	"chat-relay/runtime"
	"chat-relay/services"
	"context"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait          = 10 * time.Second
	pongWait           = 60 * time.Second
	pingPeriod         = (pongWait * 9) / 10
	maxMessageSize     = 64 * 1024
	maxDecodeErrors    = 5
	closeReasonOverrun = "outbound buffer overrun, reconnect and replay"
)

// Client pumps frames between one websocket connection and its session.
// The read loop handles inbound frames in order, the write loop is the only
// writer on the connection.
type Client struct {
	log     *slog.Logger
	conn    *websocket.Conn
	service services.IChatService
	session *runtime.Session
	limiter *rate.Limiter
	replies chan wire.Frame

	// done is closed when the read loop returns, writerDone when the write loop does.
	done       chan struct{}
	writerDone chan struct{}
}

func newClient(log *slog.Logger, conn *websocket.Conn, service services.IChatService,
	session *runtime.Session, limiter *rate.Limiter, replyBuffer int) *Client {
	return &Client{
		log:        log.With("session_id", session.ID, "user_id", session.Identity.UserID),
		conn:       conn,
		service:    service,
		session:    session,
		limiter:    limiter,
		replies:    make(chan wire.Frame, replyBuffer),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}
}

// run blocks until the connection is gone, then releases the session.
// Cancelling ctx closes the connection.
func (c *Client) run(ctx context.Context) {
	go func() {
		defer close(c.writerDone)
		c.writePump()
	}()
	go func() {
		select {
		case <-ctx.Done():
			_ = c.conn.Close()
		case <-c.done:
		}
	}()

	c.readPump(ctx)
	close(c.done)
	c.service.Disconnect(c.session)
	<-c.writerDone
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Error("Failed to set read deadline", "error", err)
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// A send already accepted completes even if the connection drops meanwhile.
	opCtx := context.WithoutCancel(ctx)
	decodeErrors := 0
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("Unexpected websocket close", "error", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.session.Touch()

		var frame wire.Frame
		if err := json.Unmarshal(data, &frame); err != nil || frame.Type == "" {
			decodeErrors++
			c.replyError("", errors.ErrValidation)
			if decodeErrors >= maxDecodeErrors {
				c.log.Warn("Too many malformed frames, closing")
				return
			}
			continue
		}
		decodeErrors = 0
		observability.FramesReceived.WithLabelValues(frame.Type).Inc()

		if !c.limiter.Allow() {
			c.replyError(frame.RequestID, errors.ErrRateLimited)
			continue
		}
		c.dispatch(opCtx, frame)
	}
}

func (c *Client) dispatch(ctx context.Context, frame wire.Frame) {
	switch frame.Type {
	case FrameJoinRoom:
		p, err := decode[joinPayload](frame.Payload)
		if err != nil {
			c.replyError(frame.RequestID, err)
			return
		}
		roomID := domain.RoomID(p.RoomID)
		latest, err := c.service.JoinRoom(ctx, c.session, domain.JoinRoomCommand{Room: roomID, LastSequence: p.LastSequence})
		if err != nil {
			c.replyError(frame.RequestID, err)
			return
		}
		c.reply(FrameJoined, frame.RequestID, wire.Joined{RoomID: p.RoomID, LatestSequence: latest})

	case FrameLeaveRoom:
		p, err := decode[roomPayload](frame.Payload)
		if err != nil {
			c.replyError(frame.RequestID, err)
			return
		}
		c.service.LeaveRoom(c.session, domain.RoomID(p.RoomID))
		c.reply(FrameAck, frame.RequestID, wire.Ack{Status: "ok"})

	case FrameSendMessage:
		p, err := decode[sendPayload](frame.Payload)
		if err != nil {
			c.replyError(frame.RequestID, err)
			return
		}
		msg, err := c.service.PostMessage(ctx, c.session, p.command())
		if err != nil {
			c.replyError(frame.RequestID, err)
			return
		}
		c.reply(FrameAck, frame.RequestID, wire.Ack{Status: "ok", MessageID: msg.ID.String(), Sequence: msg.Sequence})

	case FrameTypingStart:
		p, err := decode[roomPayload](frame.Payload)
		if err != nil {
			c.replyError(frame.RequestID, err)
			return
		}
		if err := c.service.StartTyping(c.session, domain.RoomID(p.RoomID)); err != nil {
			c.replyError(frame.RequestID, err)
		}

	case FrameTypingStop:
		p, err := decode[roomPayload](frame.Payload)
		if err != nil {
			c.replyError(frame.RequestID, err)
			return
		}
		c.service.StopTyping(c.session, domain.RoomID(p.RoomID))

	case FrameMarkRead:
		p, err := decode[markReadPayload](frame.Payload)
		if err != nil {
			c.replyError(frame.RequestID, err)
			return
		}
		cursor, err := c.service.MarkRead(ctx, c.session.Identity, domain.MarkReadCommand{Room: domain.RoomID(p.RoomID), UpTo: p.UpTo})
		if err != nil {
			c.replyError(frame.RequestID, err)
			return
		}
		c.reply(FrameAck, frame.RequestID, wire.Ack{Status: "ok", Cursor: &cursor})

	case FrameFetchHistory:
		p, err := decode[historyPayload](frame.Payload)
		if err != nil {
			c.replyError(frame.RequestID, err)
			return
		}
		messages, err := c.service.GetMessages(ctx, c.session.Identity, domain.GetMessageCommand{
			Room:          domain.RoomID(p.RoomID),
			AfterSequence: p.AfterSequence,
			Limit:         p.Limit,
		})
		if err != nil {
			c.replyError(frame.RequestID, err)
			return
		}
		c.reply(FrameHistory, frame.RequestID, wire.History{RoomID: p.RoomID, Messages: wire.FromMessages(messages)})

	case FramePing:
		c.reply(FramePong, frame.RequestID, struct{}{})

	default:
		c.replyError(frame.RequestID, errors.ErrValidation)
	}
}

func (c *Client) reply(frameType, requestID string, payload any) {
	frame, err := wire.NewFrame(frameType, requestID, payload)
	if err != nil {
		c.log.Error("Failed to build reply", "type", frameType, "error", err)
		return
	}
	// Once the writer gave up the connection is closed, the read loop will
	// fail on its next read.
	select {
	case c.replies <- frame:
	case <-c.writerDone:
	case <-c.done:
	}
}

// replyError answers the originating connection only.
func (c *Client) replyError(requestID string, err error) {
	c.reply(FrameError, requestID, wire.FromError(err))
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	events := c.session.Events()
	for {
		select {
		case evt, ok := <-events:
			if !ok {
				c.writeClose(websocket.CloseNormalClosure, "")
				return
			}
			frame, err := wire.EventFrame(evt)
			if err != nil {
				c.log.Error("Dropping event without wire shape", "type", evt.Type, "error", err)
				continue
			}
			if !c.write(frame) {
				return
			}

		case frame := <-c.replies:
			if !c.write(frame) {
				return
			}

		case <-c.session.Overflow():
			c.log.Warn("Slow consumer, closing connection")
			c.writeClose(websocket.CloseTryAgainLater, closeReasonOverrun)
			return

		case <-c.done:
			c.writeClose(websocket.CloseNormalClosure, "")
			return

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) write(frame wire.Frame) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Error("Failed to set write deadline", "error", err)
		return false
	}
	data, err := json.Marshal(frame)
	if err != nil {
		c.log.Error("Failed to marshal frame", "type", frame.Type, "error", err)
		return true
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.log.Debug("Failed to write frame", "type", frame.Type, "error", err)
		return false
	}
	return true
}

func (c *Client) writeClose(code int, reason string) {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
}
