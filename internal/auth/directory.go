package auth

import (
	"context"

	"github.com/kaitanna/kaitanna-backend/internal/models"
)

// UserDirectory stores accounts. Lookups return (nil, nil) when no user
// matches. Username comparisons are case-insensitive; emails are stored
// normalized.
type UserDirectory interface {
	Create(ctx context.Context, u models.User) error
	ByID(ctx context.Context, id string) (*models.User, error)
	ByUsername(ctx context.Context, username string) (*models.User, error)
	ByEmail(ctx context.Context, email string) (*models.User, error)
	// Update saves username, avatar and updated_at.
	Update(ctx context.Context, u models.User) error
	Delete(ctx context.Context, id string) error
}
