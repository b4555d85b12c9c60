package handlers

import (
	"net/http"
	"time"

	"github.com/kaitanna/kaitanna-backend/internal/middleware"
	"github.com/kaitanna/kaitanna-backend/internal/mood"
	"github.com/kaitanna/kaitanna-backend/internal/services"
	"go.uber.org/zap"
)

const dashboardRecentJournals = 3

type DashboardHandler struct {
	moods    *services.MoodStore
	journals *services.JournalStore
	loc      *time.Location
	now      func() time.Time
	log      *zap.Logger
}

func NewDashboardHandler(moods *services.MoodStore, journals *services.JournalStore, loc *time.Location, log *zap.Logger) *DashboardHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &DashboardHandler{moods: moods, journals: journals, loc: loc, now: time.Now, log: log}
}

// GetDashboard handles GET /api/dashboard: mood summary, the week chart and
// the latest journal entries. A journal failure leaves the mood cards intact.
func (h *DashboardHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserIDFromContext(ctx)
	now := h.now().In(h.loc)

	entries, err := h.moods.ListByUser(ctx, userID)
	if err != nil {
		h.log.Error("dashboard: failed to load moods", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to load dashboard")
		return
	}

	journalCount := 0
	recent := []JournalView{}
	journals, _, err := h.journals.ListByUser(ctx, userID, "")
	if err != nil {
		h.log.Warn("dashboard: failed to load journals", zap.String("user_id", userID), zap.Error(err))
	} else {
		journalCount = len(journals)
		for i, e := range journals {
			if i == dashboardRecentJournals {
				break
			}
			recent = append(recent, journalView(e))
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":         true,
		"mood":            mood.Summarize(entries, now),
		"week":            mood.BucketByDay(mood.FilterByRange(entries, mood.RangeWeek, now), mood.RangeWeek, now),
		"journal_count":   journalCount,
		"recent_journals": recent,
	})
}
