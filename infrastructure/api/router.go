package api

import (
	"chat-relay/auth"
	"chat-relay/observability"
	"chat-relay/services"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter mounts the websocket endpoint, the REST API and the operational
// endpoints on one chi router.
func NewRouter(log *slog.Logger, tokens *auth.Tokens, service services.IChatService,
	ws http.Handler, monitoring *observability.MonitoringManager, requestTimeout time.Duration) http.Handler {
	h := &Handler{log: log, service: service, monitoring: monitoring}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", h.health)
	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/ws", ws)

	r.Route("/api", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(requestTimeout))
		r.Use(authenticate(log, tokens))

		r.Get("/unread", h.unreadSummary)
		r.Route("/rooms/{roomID}", func(r chi.Router) {
			r.Post("/read", h.markRead)
			r.Get("/messages", h.messages)
			r.Get("/unread", h.unreadCount)
			r.Get("/search", h.search)
		})
	})
	return r
}

func authenticate(log *slog.Logger, tokens *auth.Tokens) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := auth.BearerToken(r)
			if token == "" {
				writeJSON(w, http.StatusUnauthorized, errorBody("AUTHORIZATION_DENIED", "authorization token is missing"))
				return
			}
			identity, err := tokens.ValidateToken(token)
			if err != nil {
				log.Debug("Rejected token", "path", r.URL.Path, "error", err)
				writeJSON(w, http.StatusUnauthorized, errorBody("AUTHORIZATION_DENIED", "invalid or expired token"))
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), identity)))
		})
	}
}
