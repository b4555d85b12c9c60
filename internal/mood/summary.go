package mood

import (
	"sort"
	"time"

	"github.com/kaitanna/kaitanna-backend/internal/models"
)

// Summary backs the dashboard's mood cards.
type Summary struct {
	TotalEntries  int                `json:"total_entries"`
	DaysTracked   int                `json:"days_tracked"`
	CurrentStreak int                `json:"current_streak"`
	Latest        *models.MoodEntry  `json:"latest,omitempty"`
	Recent        []models.MoodEntry `json:"recent"`
}

// SortNewestFirst orders entries by date descending, in place.
func SortNewestFirst(entries []models.MoodEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Date.After(entries[j].Date)
	})
}

// Summarize computes dashboard figures for one user's entries.
// The streak counts consecutive tracked days ending today, or yesterday when
// today has no entry yet.
func Summarize(entries []models.MoodEntry, now time.Time) Summary {
	loc := now.Location()
	sorted := make([]models.MoodEntry, len(entries))
	copy(sorted, entries)
	SortNewestFirst(sorted)

	days := make(map[string]bool, len(sorted))
	for _, e := range sorted {
		days[e.Date.In(loc).Format(time.DateOnly)] = true
	}

	s := Summary{
		TotalEntries: len(sorted),
		DaysTracked:  len(days),
		Recent:       FilterByRange(sorted, RangeWeek, now),
	}
	if len(sorted) > 0 {
		latest := sorted[0]
		s.Latest = &latest
	}

	day := startOfDay(now)
	if !days[day.Format(time.DateOnly)] {
		day = day.AddDate(0, 0, -1)
	}
	for days[day.Format(time.DateOnly)] {
		s.CurrentStreak++
		day = day.AddDate(0, 0, -1)
	}
	return s
}
