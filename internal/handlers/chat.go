package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/kaitanna/kaitanna-backend/internal/middleware"
	"github.com/kaitanna/kaitanna-backend/internal/services"
	"go.uber.org/zap"
)

const defaultMessageLimit = 100

type ChatHandler struct {
	chat *services.ChatService
	log  *zap.Logger
}

func NewChatHandler(chat *services.ChatService, log *zap.Logger) *ChatHandler {
	return &ChatHandler{chat: chat, log: log}
}

type ChatSessionRequest struct {
	Title string `json:"title"`
}

type SendMessageRequest struct {
	Content string `json:"content"`
}

// ListSessions handles GET /api/chat/sessions.
func (h *ChatHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.chat.ListSessions(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		h.chatError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"sessions": sessions,
	})
}

// CreateSession handles POST /api/chat/sessions. The body is optional.
func (h *ChatHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req ChatSessionRequest
	if r.ContentLength > 0 && !decodeJSON(w, r, &req) {
		return
	}
	session, err := h.chat.CreateSession(r.Context(), middleware.UserIDFromContext(r.Context()), req.Title)
	if err != nil {
		h.chatError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"session": session,
	})
}

// RenameSession handles PUT /api/chat/sessions/{id}.
func (h *ChatHandler) RenameSession(w http.ResponseWriter, r *http.Request) {
	var req ChatSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	err := h.chat.RenameSession(r.Context(), middleware.UserIDFromContext(r.Context()), chi.URLParam(r, "id"), req.Title)
	if err != nil {
		h.chatError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Chat renamed",
	})
}

// DeleteSession handles DELETE /api/chat/sessions/{id}.
func (h *ChatHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	err := h.chat.DeleteSession(r.Context(), middleware.UserIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.chatError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Chat deleted",
	})
}

// Messages handles GET /api/chat/sessions/{id}/messages?limit=.
func (h *ChatHandler) Messages(w http.ResponseWriter, r *http.Request) {
	limit := int64(defaultMessageLimit)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive number")
			return
		}
		limit = n
	}

	msgs, err := h.chat.Messages(r.Context(), middleware.UserIDFromContext(r.Context()), chi.URLParam(r, "id"), limit)
	if err != nil {
		h.chatError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"messages": msgs,
	})
}

// SendMessage handles POST /api/chat/sessions/{id}/messages. When the reply
// cannot be generated the stored user message is still returned.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	userID := middleware.UserIDFromContext(r.Context())
	sessionID := chi.URLParam(r, "id")
	userMsg, reply, err := h.chat.Send(r.Context(), userID, sessionID, req.Content)
	if err != nil {
		if userMsg.ID != "" {
			h.log.Warn("chat reply failed", zap.String("session_id", sessionID), zap.Error(err))
			writeJSON(w, http.StatusBadGateway, map[string]interface{}{
				"success":      false,
				"message":      "Kaitanna could not reply right now. Please try again.",
				"user_message": userMsg,
			})
			return
		}
		h.chatError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"user_message": userMsg,
		"reply":        reply,
	})
}

func (h *ChatHandler) chatError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrChatUnavailable):
		writeError(w, http.StatusServiceUnavailable, "Chat is not available right now")
	case errors.Is(err, services.ErrChatNotFound):
		writeError(w, http.StatusNotFound, "Chat not found")
	case errors.Is(err, services.ErrEmptyMessage), errors.Is(err, services.ErrMessageTooLong):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error("chat request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Something went wrong. Please try again.")
	}
}
