package websocket

import (
	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/infrastructure/wire"
	"chat-relay/mocks"
	"chat-relay/runtime"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const secret = "0123456789abcdef0123456789abcdef"

var alice = domain.Identity{UserID: "alice", Role: domain.RoleCustomer}

type harness struct {
	server   *httptest.Server
	tokens   *auth.Tokens
	service  *mocks.MockIChatService
	sessions chan *runtime.Session
	gone     chan struct{}
}

func newHarness(t *testing.T, settings Settings) *harness {
	t.Helper()
	ctrl := gomock.NewController(t)
	h := &harness{
		tokens:   auth.NewTokens(secret, time.Minute),
		service:  mocks.NewMockIChatService(ctrl),
		sessions: make(chan *runtime.Session, 1),
		gone:     make(chan struct{}),
	}
	h.service.EXPECT().Connect(gomock.Any()).DoAndReturn(func(identity domain.Identity) *runtime.Session {
		s := runtime.NewSession(identity, 16)
		h.sessions <- s
		return s
	}).AnyTimes()
	h.service.EXPECT().Disconnect(gomock.Any()).Do(func(*runtime.Session) { close(h.gone) }).MaxTimes(1)

	h.server = httptest.NewServer(NewHandler(slog.Default(), h.tokens, h.service, settings))
	t.Cleanup(h.server.Close)
	return h
}

func defaultSettings() Settings {
	return Settings{FramesPerSecond: 100, FrameBurst: 100, ReplyBuffer: 8}
}

func (h *harness) dial(t *testing.T) (*websocket.Conn, *runtime.Session) {
	t.Helper()
	token, err := h.tokens.GenerateToken(alice)
	require.NoError(t, err)
	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
		select {
		case <-h.gone:
		case <-time.After(2 * time.Second):
		}
	})
	return conn, <-h.sessions
}

func send(t *testing.T, conn *websocket.Conn, frameType, requestID string, payload any) {
	t.Helper()
	frame, err := wire.NewFrame(frameType, requestID, payload)
	require.NoError(t, err)
	data, err := json.Marshal(frame)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func read(t *testing.T, conn *websocket.Conn) wire.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var frame wire.Frame
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame
}

func payloadOf[T any](t *testing.T, frame wire.Frame) T {
	t.Helper()
	var payload T
	require.NoError(t, json.Unmarshal(frame.Payload, &payload))
	return payload
}

func TestHandler_Rejects_Missing_Or_Bad_Token(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, defaultSettings())
	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	req.Error(err)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(url+"?token=forged", nil)
	req.Error(err)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func TestHandler_Join_Then_Send(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, defaultSettings())
	conn, session := h.dial(t)
	messageID := uuid.New()

	h.service.EXPECT().
		JoinRoom(gomock.Any(), session, domain.JoinRoomCommand{Room: "r1"}).
		Return(int64(3), nil)
	h.service.EXPECT().
		PostMessage(gomock.Any(), session, domain.PostMessageCommand{Room: "r1", Content: "hello"}).
		Return(domain.Message{ID: messageID, RoomID: "r1", Sequence: 4}, nil)

	// When joining r1
	send(t, conn, FrameJoinRoom, "1", map[string]any{"roomId": "r1"})

	// Then the reply carries the latest sequence
	frame := read(t, conn)
	req.Equal(FrameJoined, frame.Type)
	req.Equal("1", frame.RequestID)
	req.Equal(wire.Joined{RoomID: "r1", LatestSequence: 3}, payloadOf[wire.Joined](t, frame))

	// When sending a message
	send(t, conn, FrameSendMessage, "2", map[string]any{"chatRoomId": "r1", "content": "hello"})

	// Then it is acknowledged with its sequence
	frame = read(t, conn)
	req.Equal(FrameAck, frame.Type)
	req.Equal(wire.Ack{Status: "ok", MessageID: messageID.String(), Sequence: 4}, payloadOf[wire.Ack](t, frame))
}

func TestHandler_Errors_Go_Back_To_Sender(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, defaultSettings())
	conn, session := h.dial(t)

	h.service.EXPECT().
		PostMessage(gomock.Any(), session, gomock.Any()).
		Return(domain.Message{}, errors.ErrNotJoined)

	send(t, conn, FrameSendMessage, "7", map[string]any{"chatRoomId": "r1", "content": "hi"})
	frame := read(t, conn)
	req.Equal(FrameError, frame.Type)
	req.Equal("7", frame.RequestID)
	req.Equal(wire.Error{Code: "NOT_JOINED", Message: errors.ErrNotJoined.Error()}, payloadOf[wire.Error](t, frame))

	// A payload failing validation never reaches the service
	send(t, conn, FrameJoinRoom, "8", map[string]any{})
	frame = read(t, conn)
	req.Equal(FrameError, frame.Type)
	req.Equal("VALIDATION_ERROR", payloadOf[wire.Error](t, frame).Code)

	// Neither does garbage
	req.NoError(conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	frame = read(t, conn)
	req.Equal("VALIDATION_ERROR", payloadOf[wire.Error](t, frame).Code)
}

func TestHandler_Pushes_Broker_Events(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, defaultSettings())
	conn, session := h.dial(t)

	// When the broker delivers a message to the session
	msg := domain.Message{ID: uuid.New(), RoomID: "r1", SenderID: "bob", SenderRole: domain.RoleCompany,
		Content: "hi", ContentType: domain.ContentTypeText, Sequence: 9, CreatedAt: time.Now().UTC()}
	req.NoError(session.Deliver(event.NewMessagePosted(msg)))
	req.NoError(session.Deliver(event.NewTyping(event.TypingStopType, "r1", "bob", "another-session")))

	// Then the client receives both frames
	frame := read(t, conn)
	req.Equal(string(event.NewMessageType), frame.Type)
	got := payloadOf[wire.Message](t, frame)
	req.Equal(int64(9), got.Sequence)
	req.Equal("r1", got.ChatRoomID)
	req.Equal("text", got.MessageType)

	frame = read(t, conn)
	req.Equal(string(event.TypingStopType), frame.Type)
	req.Equal(wire.Typing{RoomID: "r1", UserID: "bob"}, payloadOf[wire.Typing](t, frame))
}

func TestHandler_Rate_Limits_Frames(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, Settings{FramesPerSecond: 0.01, FrameBurst: 1, ReplyBuffer: 8})
	conn, _ := h.dial(t)

	send(t, conn, FramePing, "1", struct{}{})
	req.Equal(FramePong, read(t, conn).Type)

	send(t, conn, FramePing, "2", struct{}{})
	frame := read(t, conn)
	req.Equal(FrameError, frame.Type)
	req.Equal(wire.Error{Code: "RATE_LIMITED", Message: errors.ErrRateLimited.Error(), Retryable: true}, payloadOf[wire.Error](t, frame))
}

func TestHandler_Close_Disconnects_Session(t *testing.T) {
	h := newHarness(t, defaultSettings())
	conn, _ := h.dial(t)

	require.NoError(t, conn.Close())

	select {
	case <-h.gone:
	case <-time.After(2 * time.Second):
		require.Fail(t, "session should be disconnected once the socket is closed")
	}
}

func TestClient_Reply_Gives_Up_Once_Writer_Is_Gone(t *testing.T) {
	// Given a client whose reply buffer is full and whose writer has exited
	session := runtime.NewSession(alice, 1)
	c := newClient(slog.Default(), nil, nil, session, nil, 1)
	c.reply(FramePong, "1", struct{}{})
	close(c.writerDone)

	// When the read loop answers another frame
	returned := make(chan struct{})
	go func() {
		c.reply(FramePong, "2", struct{}{})
		close(returned)
	}()

	// Then it does not park forever, so the session can be disconnected
	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		require.Fail(t, "reply should not block once the writer is gone")
	}
}

func TestHandler_Writer_Failure_Disconnects_Non_Reading_Client(t *testing.T) {
	h := newHarness(t, Settings{FramesPerSecond: 1000, FrameBurst: 1000, ReplyBuffer: 1})
	conn, session := h.dial(t)

	// Given a client that never reads and keeps sending frames
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
			}
			frame, _ := wire.NewFrame(FramePing, "", struct{}{})
			data, _ := json.Marshal(frame)
			if conn.WriteMessage(websocket.TextMessage, data) != nil {
				return
			}
		}
	}()

	// When the writer gives up while replies are still pending
	time.Sleep(50 * time.Millisecond)
	session.Close()

	// Then the session is released while the socket is still open
	select {
	case <-h.gone:
	case <-time.After(5 * time.Second):
		require.Fail(t, "session should be disconnected once the writer is gone")
	}
}
