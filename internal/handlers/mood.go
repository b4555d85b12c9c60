package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kaitanna/kaitanna-backend/internal/middleware"
	"github.com/kaitanna/kaitanna-backend/internal/models"
	"github.com/kaitanna/kaitanna-backend/internal/mood"
	"github.com/kaitanna/kaitanna-backend/internal/services"
	"go.uber.org/zap"
)

const maxMoodNoteLength = 500

type MoodHandler struct {
	moods *services.MoodStore
	loc   *time.Location
	now   func() time.Time
	log   *zap.Logger
}

func NewMoodHandler(moods *services.MoodStore, loc *time.Location, log *zap.Logger) *MoodHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &MoodHandler{moods: moods, loc: loc, now: time.Now, log: log}
}

// MoodView is a stored entry with its catalog presentation.
type MoodView struct {
	models.MoodEntry
	Emoji    string        `json:"emoji"`
	Category mood.Category `json:"category"`
}

type CreateMoodRequest struct {
	Mood string `json:"mood"`
	Note string `json:"note"`
}

// Catalog handles GET /api/moods/catalog.
func (h *MoodHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"moods":      mood.Catalog(),
		"categories": mood.Categories,
	})
}

// Create handles POST /api/moods. A second mood on the same day replaces
// the first.
func (h *MoodHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateMoodRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	label, ok := mood.Lookup(strings.TrimSpace(req.Mood))
	if !ok {
		writeError(w, http.StatusBadRequest, "Please select a mood from the list")
		return
	}
	note := strings.TrimSpace(req.Note)
	if len([]rune(note)) > maxMoodNoteLength {
		writeError(w, http.StatusBadRequest, "Note must be at most 500 characters")
		return
	}

	userID := middleware.UserIDFromContext(r.Context())
	entry, err := h.moods.Add(r.Context(), userID, label.Name, note)
	if err != nil {
		h.log.Error("failed to save mood", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to save mood")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"message": "Mood saved",
		"entry":   entry,
		"emoji":   label.Emoji,
	})
}

// List handles GET /api/moods, newest first.
func (h *MoodHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	entries, err := h.moods.ListByUser(r.Context(), userID)
	if err != nil {
		h.log.Error("failed to list moods", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to load moods")
		return
	}
	mood.SortNewestFirst(entries)
	views := make([]MoodView, len(entries))
	for i, e := range entries {
		views[i] = MoodView{MoodEntry: e, Emoji: mood.EmojiOf(e.Mood), Category: mood.CategoryOf(e.Mood)}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"entries": views,
		"total":   len(entries),
	})
}

// Delete handles DELETE /api/moods/{id}. Deleting a missing entry succeeds.
func (h *MoodHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	if err := h.moods.DeleteByUser(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		h.log.Error("failed to delete mood", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to delete mood")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Mood deleted",
	})
}

// Chart handles GET /api/moods/chart?range=week|month|6months|year.
func (h *MoodHandler) Chart(w http.ResponseWriter, r *http.Request) {
	now := h.now().In(h.loc)
	rng, entries, ok := h.rangeEntries(w, r, now)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"range":   rng,
		"buckets": mood.BucketByDay(entries, rng, now),
	})
}

// Distribution handles GET /api/moods/distribution?range=.
func (h *MoodHandler) Distribution(w http.ResponseWriter, r *http.Request) {
	rng, entries, ok := h.rangeEntries(w, r, h.now().In(h.loc))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"range":        rng,
		"distribution": mood.Distribution(entries),
		"total":        len(entries),
	})
}

// rangeEntries loads the caller's entries that fall inside the requested range.
func (h *MoodHandler) rangeEntries(w http.ResponseWriter, r *http.Request, now time.Time) (mood.Range, []models.MoodEntry, bool) {
	rng, err := mood.ParseRange(r.URL.Query().Get("range"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", nil, false
	}
	userID := middleware.UserIDFromContext(r.Context())
	entries, err := h.moods.ListByUser(r.Context(), userID)
	if err != nil {
		h.log.Error("failed to load moods for chart", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to load moods")
		return "", nil, false
	}
	return rng, mood.FilterByRange(entries, rng, now), true
}
