package mood

import (
	"fmt"
	"strings"
	"time"

	"github.com/kaitanna/kaitanna-backend/internal/models"
)

// Range selects the time window of a chart.
type Range string

const (
	RangeWeek     Range = "week"
	RangeMonth    Range = "month"
	RangeHalfYear Range = "6months"
	RangeYear     Range = "year"
)

// ParseRange validates a range name. An empty string selects the week.
func ParseRange(s string) (Range, error) {
	switch r := Range(strings.ToLower(strings.TrimSpace(s))); r {
	case "":
		return RangeWeek, nil
	case RangeWeek, RangeMonth, RangeHalfYear, RangeYear:
		return r, nil
	default:
		return "", fmt.Errorf("unknown range %q (want week, month, 6months or year)", s)
	}
}

// Days is the number of daily buckets a chart over r contains.
func (r Range) Days() int {
	switch r {
	case RangeMonth:
		return 30
	case RangeHalfYear:
		return 180
	case RangeYear:
		return 365
	default:
		return 7
	}
}

// Cutoff is the earliest instant still inside r when measured back from now.
func (r Range) Cutoff(now time.Time) time.Time {
	switch r {
	case RangeMonth:
		return subMonths(now, 1)
	case RangeHalfYear:
		return subMonths(now, 6)
	case RangeYear:
		return subMonths(now, 12)
	default:
		return now.AddDate(0, 0, -7)
	}
}

// subMonths steps back n calendar months, clamping the day to the length of
// the target month (Mar 31 minus one month is Feb 28, not Mar 3).
func subMonths(t time.Time, n int) time.Time {
	year, month, day := t.Date()
	target := time.Date(year, month-time.Month(n), 1, 0, 0, 0, 0, t.Location())
	if last := daysIn(target.Year(), target.Month(), t.Location()); day > last {
		day = last
	}
	return time.Date(target.Year(), target.Month(), day,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

// FilterByRange keeps entries dated at or after the range cutoff.
func FilterByRange(entries []models.MoodEntry, r Range, now time.Time) []models.MoodEntry {
	cutoff := r.Cutoff(now)
	out := make([]models.MoodEntry, 0, len(entries))
	for _, e := range entries {
		if !e.Date.Before(cutoff) {
			out = append(out, e)
		}
	}
	return out
}

// Bucket is one calendar day of a mood chart.
type Bucket struct {
	Date     string           `json:"full_date"`
	Label    string           `json:"date"`
	Counts   map[Category]int `json:"counts"`
	Dominant Category         `json:"dominant"`
	Total    int              `json:"total"`
}

// BucketByDay returns exactly r.Days() buckets, oldest first, ending with the
// calendar day of now. Days are computed in now's location.
func BucketByDay(entries []models.MoodEntry, r Range, now time.Time) []Bucket {
	days := r.Days()
	loc := now.Location()
	today := startOfDay(now)

	buckets := make([]Bucket, days)
	index := make(map[string]int, days)
	for i := 0; i < days; i++ {
		day := today.AddDate(0, 0, i-(days-1))
		key := day.Format(time.DateOnly)
		buckets[i] = Bucket{
			Date:     key,
			Label:    dayLabel(day, r),
			Counts:   zeroCounts(),
			Dominant: Neutral,
		}
		index[key] = i
	}

	for _, e := range entries {
		key := e.Date.In(loc).Format(time.DateOnly)
		i, ok := index[key]
		if !ok {
			continue
		}
		buckets[i].Counts[CategoryOf(e.Mood)]++
		buckets[i].Total++
	}

	for i := range buckets {
		buckets[i].Dominant = Dominant(buckets[i].Counts)
	}
	return buckets
}

// Dominant returns the category with the highest count. Ties go to the
// category that comes first in Categories; all-zero counts yield Neutral.
func Dominant(counts map[Category]int) Category {
	best, bestCount := Neutral, 0
	for _, c := range Categories {
		if n := counts[c]; n > bestCount {
			best, bestCount = c, n
		}
	}
	return best
}

// Share is a category's total within a distribution.
type Share struct {
	Category Category `json:"category"`
	Name     string   `json:"name"`
	Count    int      `json:"value"`
}

// Distribution counts entries per category. Every category is present, in
// enumeration order, zero counts included.
func Distribution(entries []models.MoodEntry) []Share {
	counts := zeroCounts()
	for _, e := range entries {
		counts[CategoryOf(e.Mood)]++
	}
	out := make([]Share, 0, len(Categories))
	for _, c := range Categories {
		out = append(out, Share{Category: c, Name: displayName(c), Count: counts[c]})
	}
	return out
}

func zeroCounts() map[Category]int {
	m := make(map[Category]int, len(Categories))
	for _, c := range Categories {
		m[c] = 0
	}
	return m
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func dayLabel(day time.Time, r Range) string {
	if r == RangeWeek {
		return day.Format("Mon")
	}
	return day.Format("Jan 02")
}

func displayName(c Category) string {
	s := string(c)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
