package e2e

import (
	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/infrastructure/wire"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type BaseRelaySuite struct {
	suite.Suite
	Config Config
	tokens *auth.Tokens
}

// SetupSuite loads the environment configuration, scenarios are skipped
// when no relay is configured.
func (s *BaseRelaySuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.HTTPURL == "" || s.Config.JwtSecret == "" {
		s.T().Skip("RELAY_HTTP_URL and JWT_SECRET are required for e2e scenarios")
	}
	s.tokens = auth.NewTokens(s.Config.JwtSecret, time.Hour)
}

func (s *BaseRelaySuite) step(name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

func (s *BaseRelaySuite) token(identity domain.Identity) string {
	token, err := s.tokens.GenerateToken(identity)
	s.Require().NoError(err)
	return token
}

// WsClient is one websocket connection speaking the relay frames.
type WsClient struct {
	s    *BaseRelaySuite
	name string
	conn *websocket.Conn
}

func (s *BaseRelaySuite) Dial(name string, identity domain.Identity) *WsClient {
	s.step("Connecting " + name)
	url := "ws" + strings.TrimPrefix(s.Config.HTTPURL, "http") + "/ws?token=" + s.token(identity)
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	s.Require().NoError(err, "websocket handshake failed")
	s.Require().Equal(http.StatusSwitchingProtocols, resp.StatusCode)
	return &WsClient{s: s, name: name, conn: conn}
}

func (c *WsClient) Close() {
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = c.conn.Close()
}

func (c *WsClient) Send(frameType, requestID string, payload any) {
	frame, err := wire.NewFrame(frameType, requestID, payload)
	c.s.Require().NoError(err)
	data, err := json.Marshal(frame)
	c.s.Require().NoError(err)
	c.debug("->", data)
	c.s.Require().NoError(c.conn.WriteMessage(websocket.TextMessage, data))
}

// Expect reads frames until one of the given type arrives, other frames are skipped.
func (c *WsClient) Expect(frameType string) wire.Frame {
	deadline := time.Now().Add(5 * time.Second)
	for {
		c.s.Require().NoError(c.conn.SetReadDeadline(deadline))
		_, data, err := c.conn.ReadMessage()
		c.s.Require().NoError(err, "%s waited for %s", c.name, frameType)
		c.debug("<-", data)
		var frame wire.Frame
		c.s.Require().NoError(json.Unmarshal(data, &frame))
		if frame.Type == frameType {
			return frame
		}
	}
}

func (c *WsClient) debug(direction string, data []byte) {
	if c.s.Config.DebugJSON {
		c.s.T().Logf("%s %s %s", c.name, direction, data)
	}
}

func Decode[T any](s *BaseRelaySuite, frame wire.Frame) T {
	var payload T
	s.Require().NoError(json.Unmarshal(frame.Payload, &payload))
	return payload
}

// Call performs an authenticated HTTP request and decodes the JSON answer.
func (s *BaseRelaySuite) Call(identity domain.Identity, method, path string, body io.Reader, out any) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, method, s.Config.HTTPURL+path, body)
	s.Require().NoError(err)
	req.Header.Set("Authorization", "Bearer "+s.token(identity))
	res, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer res.Body.Close()
	if out != nil {
		s.Require().NoError(json.NewDecoder(res.Body).Decode(out))
	}
	return res.StatusCode
}

// WithHealth provides a grpc health client within a contextual test step.
func (s *BaseRelaySuite) WithHealth(name string, fn func(ctx context.Context, client healthpb.HealthClient)) {
	s.step(name)
	conn, err := grpc.NewClient(s.Config.GrpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	s.Require().NoError(err, "Failed to connect to gRPC server at "+s.Config.GrpcAddr)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	fn(ctx, healthpb.NewHealthClient(conn))
}
