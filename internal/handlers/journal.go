package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kaitanna/kaitanna-backend/internal/middleware"
	"github.com/kaitanna/kaitanna-backend/internal/models"
	"github.com/kaitanna/kaitanna-backend/internal/services"
	"go.uber.org/zap"
)

type JournalHandler struct {
	journals *services.JournalStore
	log      *zap.Logger
}

func NewJournalHandler(journals *services.JournalStore, log *zap.Logger) *JournalHandler {
	return &JournalHandler{journals: journals, log: log}
}

type JournalRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// JournalView is a journal entry as returned by the API.
type JournalView struct {
	models.JournalEntry
	Edited bool `json:"edited"`
}

func journalView(e models.JournalEntry) JournalView {
	return JournalView{JournalEntry: e, Edited: e.Edited()}
}

// CreateJournal handles POST /api/journals.
func (h *JournalHandler) CreateJournal(w http.ResponseWriter, r *http.Request) {
	var req JournalRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	userID := middleware.UserIDFromContext(r.Context())
	entry, source, err := h.journals.Create(r.Context(), userID, req.Title, req.Content)
	if err != nil {
		h.journalError(w, "create", userID, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"message": "Journal entry saved",
		"journal": journalView(entry),
		"source":  source,
	})
}

// GetJournals handles GET /api/journals?q=.
func (h *JournalHandler) GetJournals(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	entries, source, err := h.journals.ListByUser(r.Context(), userID, r.URL.Query().Get("q"))
	if err != nil {
		h.journalError(w, "list", userID, err)
		return
	}

	views := make([]JournalView, 0, len(entries))
	for _, e := range entries {
		views = append(views, journalView(e))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"journals": views,
		"total":    len(views),
		"source":   source,
	})
}

// UpdateJournal handles PUT /api/journals/{id}.
func (h *JournalHandler) UpdateJournal(w http.ResponseWriter, r *http.Request) {
	var req JournalRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	userID := middleware.UserIDFromContext(r.Context())
	entry, source, err := h.journals.Update(r.Context(), userID, chi.URLParam(r, "id"), req.Title, req.Content)
	if err != nil {
		h.journalError(w, "update", userID, err)
		return
	}
	if entry == nil {
		writeError(w, http.StatusNotFound, "Journal entry not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Journal entry updated",
		"journal": journalView(*entry),
		"source":  source,
	})
}

// DeleteJournal handles DELETE /api/journals/{id}.
func (h *JournalHandler) DeleteJournal(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	deleted, source, err := h.journals.Delete(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		h.journalError(w, "delete", userID, err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "Journal entry not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Journal entry deleted",
		"source":  source,
	})
}

func (h *JournalHandler) journalError(w http.ResponseWriter, op, userID string, err error) {
	if errors.Is(err, services.ErrEmptyJournal) {
		writeError(w, http.StatusBadRequest, "Title and content are required")
		return
	}
	h.log.Error("journal request failed", zap.String("op", op), zap.String("user_id", userID), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "Failed to "+op+" journal entry")
}
