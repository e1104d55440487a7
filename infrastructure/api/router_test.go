package api

import (
	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/domain/search"
	"chat-relay/errors"
	"chat-relay/infrastructure/wire"
	"chat-relay/mocks"
	"chat-relay/observability"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var bob = domain.Identity{UserID: "bob", Role: domain.RoleCompany}

type apiHarness struct {
	router  http.Handler
	service *mocks.MockIChatService
	token   string
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	ctrl := gomock.NewController(t)
	service := mocks.NewMockIChatService(ctrl)
	tokens := auth.NewTokens("0123456789abcdef0123456789abcdef", time.Minute)
	token, err := tokens.GenerateToken(bob)
	require.NoError(t, err)
	ws := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })
	return &apiHarness{
		router:  NewRouter(slog.Default(), tokens, service, ws, observability.NewMonitoringManager(), time.Second),
		service: service,
		token:   token,
	}
}

func (h *apiHarness) do(method, target string, body io.Reader) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, target, body)
	r.Header.Set("Authorization", "Bearer "+h.token)
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, r)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var body T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestRouter_Requires_Token(t *testing.T) {
	req := require.New(t)
	h := newAPIHarness(t)

	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/unread", nil))

	req.Equal(http.StatusUnauthorized, rec.Code)
	req.Equal("AUTHORIZATION_DENIED", decodeBody[map[string]wire.Error](t, rec)["error"].Code)
}

func TestRouter_MarkRead(t *testing.T) {
	req := require.New(t)
	h := newAPIHarness(t)
	upTo := int64(4)
	h.service.EXPECT().
		MarkRead(gomock.Any(), bob, domain.MarkReadCommand{Room: "r1", UpTo: &upTo}).
		Return(int64(4), nil)
	h.service.EXPECT().
		MarkRead(gomock.Any(), bob, domain.MarkReadCommand{Room: "r1"}).
		Return(int64(6), nil)

	rec := h.do(http.MethodPost, "/api/rooms/r1/read", strings.NewReader(`{"upTo":4}`))
	req.Equal(http.StatusOK, rec.Code)
	req.Equal(markReadResponse{RoomID: "r1", Cursor: 4}, decodeBody[markReadResponse](t, rec))

	rec = h.do(http.MethodPost, "/api/rooms/r1/read", nil)
	req.Equal(http.StatusOK, rec.Code)
	req.Equal(int64(6), decodeBody[markReadResponse](t, rec).Cursor)

	rec = h.do(http.MethodPost, "/api/rooms/r1/read", strings.NewReader(`{"upTo":-1}`))
	req.Equal(http.StatusBadRequest, rec.Code)
}

func TestRouter_Maps_Error_Codes(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"Denied", errors.ErrAuthorizationDenied, http.StatusForbidden, "AUTHORIZATION_DENIED"},
		{"Store down", fmt.Errorf("%w: io", errors.ErrStoreUnavailable), http.StatusServiceUnavailable, "STORE_UNAVAILABLE"},
		{"Unexpected", fmt.Errorf("secret detail"), http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			h := newAPIHarness(t)
			h.service.EXPECT().UnreadCount(gomock.Any(), bob, domain.RoomID("r1")).Return(int64(0), tt.err)

			rec := h.do(http.MethodGet, "/api/rooms/r1/unread", nil)

			req.Equal(tt.status, rec.Code)
			body := decodeBody[map[string]wire.Error](t, rec)["error"]
			req.Equal(tt.code, body.Code)
			req.NotContains(body.Message, "secret detail")
		})
	}
}

func TestRouter_Messages_And_Unread(t *testing.T) {
	req := require.New(t)
	h := newAPIHarness(t)
	messages := []domain.Message{{ID: uuid.New(), RoomID: "r1", Sequence: 3, Content: "hi"}}
	h.service.EXPECT().
		GetMessages(gomock.Any(), bob, domain.GetMessageCommand{Room: "r1", AfterSequence: 2, Limit: 10}).
		Return(messages, nil)
	h.service.EXPECT().
		UnreadSummary(gomock.Any(), bob).
		Return(domain.UnreadSummary{PerRoom: map[domain.RoomID]int64{"r1": 2, "r2": 1}, Total: 3}, nil)

	rec := h.do(http.MethodGet, "/api/rooms/r1/messages?after=2&limit=10", nil)
	req.Equal(http.StatusOK, rec.Code)
	history := decodeBody[wire.History](t, rec)
	req.Len(history.Messages, 1)
	req.Equal(int64(3), history.Messages[0].Sequence)

	rec = h.do(http.MethodGet, "/api/rooms/r1/messages?after=abc", nil)
	req.Equal(http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodGet, "/api/unread", nil)
	req.Equal(http.StatusOK, rec.Code)
	req.Equal(wire.UnreadSummary{PerRoom: map[string]int64{"r1": 2, "r2": 1}, Total: 3}, decodeBody[wire.UnreadSummary](t, rec))
}

func TestRouter_Search(t *testing.T) {
	req := require.New(t)
	h := newAPIHarness(t)
	hits := []search.Hit{{MessageID: uuid.New(), RoomID: "r1", Sequence: 5, Content: "airport pickup", Score: 1.2}}
	h.service.EXPECT().
		Search(gomock.Any(), bob, domain.SearchCommand{Room: "r1", Terms: "airport", Limit: 0}).
		Return(hits, nil)

	rec := h.do(http.MethodGet, "/api/rooms/r1/search?q=airport", nil)

	req.Equal(http.StatusOK, rec.Code)
	result := decodeBody[wire.SearchResult](t, rec)
	req.Len(result.Hits, 1)
	req.Equal(hits[0].MessageID.String(), result.Hits[0].MessageID)
}

func TestRouter_Health_And_Websocket_Mount(t *testing.T) {
	req := require.New(t)
	h := newAPIHarness(t)

	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	req.Equal(http.StatusOK, rec.Code)
	req.Equal("ok", decodeBody[healthResponse](t, rec).Status)

	rec = httptest.NewRecorder()
	h.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	req.Equal(http.StatusTeapot, rec.Code)
}
