package models

import (
	"time"
)

// JournalEntry represents a private journaling entry for a user
type JournalEntry struct {
	ID        string    `bson:"_id" json:"id"`
	UserID    string    `bson:"user_id" json:"user_id"`
	Title     string    `bson:"title" json:"title"`
	Content   string    `bson:"content" json:"content"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Edited reports whether the entry was changed after it was created.
func (j JournalEntry) Edited() bool {
	return j.UpdatedAt.After(j.CreatedAt)
}
