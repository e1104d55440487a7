package websocket

import (
	"chat-relay/auth"
	"chat-relay/services"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

type Settings struct {
	AllowedOrigins  []string
	FramesPerSecond float64
	FrameBurst      int
	ReplyBuffer     int
}

// Handler upgrades authenticated requests and runs one Client per connection.
type Handler struct {
	log      *slog.Logger
	tokens   *auth.Tokens
	service  services.IChatService
	settings Settings
	upgrader websocket.Upgrader
}

func NewHandler(log *slog.Logger, tokens *auth.Tokens, service services.IChatService, settings Settings) *Handler {
	h := &Handler{log: log, tokens: tokens, service: service, settings: settings}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
	return h
}

// ServeHTTP rejects the handshake before upgrading when the token is missing
// or invalid, the client then gets a plain 401.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := auth.BearerToken(r)
	if token == "" {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}
	identity, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.log.Debug("Websocket unauthorized", "remote", r.RemoteAddr, "error", err)
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("Websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	session := h.service.Connect(identity)
	limiter := rate.NewLimiter(rate.Limit(h.settings.FramesPerSecond), h.settings.FrameBurst)
	client := newClient(h.log, conn, h.service, session, limiter, h.settings.ReplyBuffer)
	client.run(r.Context())
}

// checkOrigin accepts requests without Origin (non browser clients) and the
// configured origins. An empty list accepts everything.
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.settings.AllowedOrigins) == 0 {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range h.settings.AllowedOrigins {
		if allowed == "*" || allowed == origin || allowed == parsed.Host {
			return true
		}
	}
	return false
}
