package api

import (
	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/infrastructure/wire"
	"chat-relay/observability"
	"chat-relay/services"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
)

type Handler struct {
	log        *slog.Logger
	service    services.IChatService
	monitoring *observability.MonitoringManager
}

type markReadRequest struct {
	UpTo *int64 `json:"upTo"`
}

type markReadResponse struct {
	RoomID string `json:"roomId"`
	Cursor int64  `json:"cursor"`
}

type healthResponse struct {
	Status string                        `json:"status"`
	Stats  observability.MonitoringStats `json:"stats"`
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Stats: h.monitoring.GetLatest()})
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFrom(r.Context())
	roomID := chi.URLParam(r, "roomID")

	var body markReadRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&body); err != nil && err != io.EOF {
			h.fail(w, errors.ErrValidation)
			return
		}
	}
	if body.UpTo != nil && *body.UpTo < 0 {
		h.fail(w, errors.ErrValidation)
		return
	}

	cursor, err := h.service.MarkRead(r.Context(), identity, domain.MarkReadCommand{Room: domain.RoomID(roomID), UpTo: body.UpTo})
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, markReadResponse{RoomID: roomID, Cursor: cursor})
}

func (h *Handler) messages(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFrom(r.Context())
	roomID := chi.URLParam(r, "roomID")

	after, err := queryInt(r, "after")
	if err != nil {
		h.fail(w, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.fail(w, err)
		return
	}

	messages, err := h.service.GetMessages(r.Context(), identity, domain.GetMessageCommand{
		Room:          domain.RoomID(roomID),
		AfterSequence: int64(after),
		Limit:         limit,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wire.History{RoomID: roomID, Messages: wire.FromMessages(messages)})
}

func (h *Handler) unreadCount(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFrom(r.Context())
	roomID := chi.URLParam(r, "roomID")

	count, err := h.service.UnreadCount(r.Context(), identity, domain.RoomID(roomID))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wire.Unread{RoomID: roomID, Count: count})
}

func (h *Handler) unreadSummary(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFrom(r.Context())

	summary, err := h.service.UnreadSummary(r.Context(), identity)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wire.FromSummary(summary))
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFrom(r.Context())
	roomID := chi.URLParam(r, "roomID")

	limit, err := queryInt(r, "limit")
	if err != nil {
		h.fail(w, err)
		return
	}
	hits, err := h.service.Search(r.Context(), identity, domain.SearchCommand{
		Room:  domain.RoomID(roomID),
		Terms: r.URL.Query().Get("q"),
		Limit: limit,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wire.SearchResult{RoomID: roomID, Hits: wire.FromHits(hits)})
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	writeJSON(w, statusOf(err), map[string]wire.Error{"error": wire.FromError(err)})
}

func statusOf(err error) int {
	switch errors.CodeOf(err) {
	case errors.CodeAuthorizationDenied:
		return http.StatusForbidden
	case errors.CodeNotJoined, errors.CodeRoomInactive:
		return http.StatusConflict
	case errors.CodeEmptyContent, errors.CodeValidation:
		return http.StatusBadRequest
	case errors.CodeStoreUnavailable:
		return http.StatusServiceUnavailable
	case errors.CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errors.ErrValidation
	}
	return v, nil
}

func errorBody(code, message string) map[string]wire.Error {
	return map[string]wire.Error{"error": {Code: code, Message: message}}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
