package models

import (
	"time"
)

// User is the read-only projection of an account held for a session's lifetime.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Internal only - never returned in JSON
	PasswordHash string `json:"-"`
}

// Public strips internal fields before the user leaves the identity layer.
func (u User) Public() User {
	u.PasswordHash = ""
	return u
}
