package e2e

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/infrastructure/websocket"
	"chat-relay/infrastructure/wire"
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type testRoomChatSuite struct {
	BaseRelaySuite
}

func TestRoomChatSuite(t *testing.T) {
	suite.Run(t, &testRoomChatSuite{})
}

func (s *testRoomChatSuite) TestConversationFlow() {
	customer := domain.Identity{UserID: domain.UserID(s.Config.CustomerID), Role: domain.RoleCustomer}
	company := domain.Identity{UserID: domain.UserID(s.Config.CompanyID), Role: domain.RoleCompany}
	room := s.Config.RoomID

	s.Run("Step 0: relay reports healthy", func() {
		s.WithHealth("Checking grpc health", func(ctx context.Context, client healthpb.HealthClient) {
			res, err := client.Check(ctx, &healthpb.HealthCheckRequest{})
			s.Require().NoError(err)
			s.Require().Equal(healthpb.HealthCheckResponse_SERVING, res.Status)
		})
	})

	alice := s.Dial("customer", customer)
	defer alice.Close()
	bob := s.Dial("company", company)
	defer bob.Close()

	var before int64
	s.Run("Step 1: both join the room", func() {
		alice.Send(websocket.FrameJoinRoom, "join-a", map[string]any{"roomId": room})
		before = Decode[wire.Joined](&s.BaseRelaySuite, alice.Expect(websocket.FrameJoined)).LatestSequence
		bob.Send(websocket.FrameJoinRoom, "join-b", map[string]any{"roomId": room})
		bob.Expect(websocket.FrameJoined)
	})

	s.Run("Step 2: a message reaches the other side in order", func() {
		alice.Send(websocket.FrameSendMessage, "send-1", map[string]any{"chatRoomId": room, "content": "Is the pickup still at 10?"})
		ack := Decode[wire.Ack](&s.BaseRelaySuite, alice.Expect(websocket.FrameAck))
		s.Require().Equal(before+1, ack.Sequence)

		msg := Decode[wire.Message](&s.BaseRelaySuite, bob.Expect(string(event.NewMessageType)))
		s.Require().Equal(ack.Sequence, msg.Sequence)
		s.Require().Equal(string(customer.UserID), msg.SenderID)
	})

	s.Run("Step 3: typing is relayed to the others only", func() {
		bob.Send(websocket.FrameTypingStart, "", map[string]any{"roomId": room})
		typing := Decode[wire.Typing](&s.BaseRelaySuite, alice.Expect(string(event.TypingStartType)))
		s.Require().Equal(string(company.UserID), typing.UserID)
		bob.Send(websocket.FrameTypingStop, "", map[string]any{"roomId": room})
		alice.Expect(string(event.TypingStopType))
	})

	s.Run("Step 4: reading clears the unread count", func() {
		var unread wire.Unread
		s.Require().Equal(http.StatusOK, s.Call(company, http.MethodGet, "/api/rooms/"+room+"/unread", nil, &unread))

		var read struct {
			Cursor int64 `json:"cursor"`
		}
		s.Require().Equal(http.StatusOK, s.Call(company, http.MethodPost, "/api/rooms/"+room+"/read", strings.NewReader("{}"), &read))
		s.Require().GreaterOrEqual(read.Cursor, before+1)

		receipt := Decode[wire.MessageRead](&s.BaseRelaySuite, alice.Expect(string(event.MessageReadType)))
		s.Require().Equal(read.Cursor, receipt.Cursor)

		s.Require().Equal(http.StatusOK, s.Call(company, http.MethodGet, "/api/rooms/"+room+"/unread", nil, &unread))
		s.Require().Equal(int64(0), unread.Count)
	})

	s.Run("Step 5: strangers are refused", func() {
		stranger := domain.Identity{UserID: "e2e-stranger", Role: domain.RoleCustomer}
		var body map[string]wire.Error
		s.Require().Equal(http.StatusForbidden, s.Call(stranger, http.MethodGet, "/api/rooms/"+room+"/messages", nil, &body))
		s.Require().Equal("AUTHORIZATION_DENIED", body["error"].Code)
	})
}
