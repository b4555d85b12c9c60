package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/kaitanna/kaitanna-backend/internal/kv"
	"github.com/kaitanna/kaitanna-backend/internal/models"
	"github.com/kaitanna/kaitanna-backend/pkg/utils"
	"go.uber.org/zap"
)

// storedUser is the on-disk shape; models.User hides the hash from JSON.
type storedUser struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	AvatarURL    string    `json:"avatar_url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toStored(u models.User) storedUser {
	return storedUser{u.ID, u.Username, u.Email, u.PasswordHash, u.AvatarURL, u.CreatedAt, u.UpdatedAt}
}

func (s storedUser) user() *models.User {
	return &models.User{
		ID:           s.ID,
		Username:     s.Username,
		Email:        s.Email,
		PasswordHash: s.PasswordHash,
		AvatarURL:    s.AvatarURL,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

// KVDirectory keeps users in the local users collection.
type KVDirectory struct {
	store kv.Store
	log   *zap.Logger
	mu    sync.Mutex
}

func NewKVDirectory(store kv.Store, log *zap.Logger) *KVDirectory {
	return &KVDirectory{store: store, log: log}
}

func (d *KVDirectory) Create(ctx context.Context, u models.User) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	users, err := d.load(ctx)
	if err != nil {
		return err
	}
	for _, existing := range users {
		if sameUsername(existing.Username, u.Username) {
			return ErrUsernameTaken
		}
		if strings.EqualFold(existing.Email, u.Email) {
			return ErrEmailTaken
		}
	}
	users = append(users, toStored(u))
	return kv.SaveCollection(ctx, d.store, kv.UsersKey, users)
}

func (d *KVDirectory) ByID(ctx context.Context, id string) (*models.User, error) {
	return d.find(ctx, func(s storedUser) bool { return s.ID == id })
}

func (d *KVDirectory) ByUsername(ctx context.Context, username string) (*models.User, error) {
	return d.find(ctx, func(s storedUser) bool { return sameUsername(s.Username, username) })
}

func (d *KVDirectory) ByEmail(ctx context.Context, email string) (*models.User, error) {
	return d.find(ctx, func(s storedUser) bool { return strings.EqualFold(s.Email, email) })
}

func (d *KVDirectory) Update(ctx context.Context, u models.User) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	users, err := d.load(ctx)
	if err != nil {
		return err
	}
	idx := -1
	for i, existing := range users {
		if existing.ID == u.ID {
			idx = i
			continue
		}
		if sameUsername(existing.Username, u.Username) {
			return ErrUsernameTaken
		}
	}
	if idx == -1 {
		return ErrUserNotFound
	}
	users[idx].Username = u.Username
	users[idx].AvatarURL = u.AvatarURL
	users[idx].UpdatedAt = u.UpdatedAt
	return kv.SaveCollection(ctx, d.store, kv.UsersKey, users)
}

func (d *KVDirectory) Delete(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	users, err := d.load(ctx)
	if err != nil {
		return err
	}
	kept := make([]storedUser, 0, len(users))
	for _, u := range users {
		if u.ID != id {
			kept = append(kept, u)
		}
	}
	if len(kept) == len(users) {
		return nil
	}
	return kv.SaveCollection(ctx, d.store, kv.UsersKey, kept)
}

func (d *KVDirectory) find(ctx context.Context, match func(storedUser) bool) (*models.User, error) {
	users, err := d.load(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if match(u) {
			return u.user(), nil
		}
	}
	return nil, nil
}

func (d *KVDirectory) load(ctx context.Context) ([]storedUser, error) {
	return kv.LoadCollection[storedUser](ctx, d.store, kv.UsersKey, d.log)
}

func sameUsername(a, b string) bool {
	return utils.NormalizeUsername(a) == utils.NormalizeUsername(b)
}
