package models

import "time"

// MoodEntry is one user's emotional self-report for a calendar day.
type MoodEntry struct {
	ID     string    `json:"id"`
	UserID string    `json:"user_id"`
	Mood   string    `json:"mood"`
	Note   string    `json:"note,omitempty"`
	Date   time.Time `json:"date"`
}
