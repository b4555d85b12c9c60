package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kaitanna/kaitanna-backend/internal/kv"
	"github.com/kaitanna/kaitanna-backend/internal/models"
	"go.uber.org/zap"
)

// Source tells where a journal result was served from.
type Source string

const (
	SourceRemote Source = "remote"
	SourceLocal  Source = "local"
)

const remoteTimeout = 5 * time.Second

// ErrEmptyJournal is returned when a title or content is blank.
var ErrEmptyJournal = errors.New("journal title and content are required")

// JournalRemote is the primary journal storage. Update returns nil and
// Delete returns false when the entry does not exist for that user.
type JournalRemote interface {
	Insert(ctx context.Context, entry models.JournalEntry) error
	ListByUser(ctx context.Context, userID string) ([]models.JournalEntry, error)
	Update(ctx context.Context, userID, id, title, content string, updatedAt time.Time) (*models.JournalEntry, error)
	Delete(ctx context.Context, userID, id string) (bool, error)
	DeleteAllForUser(ctx context.Context, userID string) error
}

// JournalStore tries the remote store first and falls back to the local
// collection on any remote error. With a nil remote it runs local-only.
type JournalStore struct {
	remote JournalRemote
	local  kv.Store
	log    *zap.Logger
	now    func() time.Time

	mu sync.Mutex
}

func NewJournalStore(remote JournalRemote, local kv.Store, log *zap.Logger) *JournalStore {
	return &JournalStore{remote: remote, local: local, log: log, now: time.Now}
}

// Create stores a new entry with trimmed title and content.
func (s *JournalStore) Create(ctx context.Context, userID, title, content string) (models.JournalEntry, Source, error) {
	title, content = strings.TrimSpace(title), strings.TrimSpace(content)
	if title == "" || content == "" {
		return models.JournalEntry{}, "", ErrEmptyJournal
	}

	now := s.now().UTC()
	entry := models.JournalEntry{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if s.remote != nil {
		rctx, cancel := context.WithTimeout(ctx, remoteTimeout)
		err := s.remote.Insert(rctx, entry)
		cancel()
		if err == nil {
			return entry, SourceRemote, nil
		}
		s.fallback("create", userID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.loadLocal(ctx)
	if err != nil {
		return models.JournalEntry{}, "", err
	}
	entries = append([]models.JournalEntry{entry}, entries...)
	if err := kv.SaveCollection(ctx, s.local, kv.JournalEntriesKey, entries); err != nil {
		return models.JournalEntry{}, "", err
	}
	return entry, SourceLocal, nil
}

// ListByUser returns the user's entries newest first, keeping only those whose
// title or content contains query (case-insensitive) when query is not empty.
func (s *JournalStore) ListByUser(ctx context.Context, userID, query string) ([]models.JournalEntry, Source, error) {
	entries, source, err := s.listByUser(ctx, userID)
	if err != nil {
		return nil, "", err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	return filterJournals(entries, query), source, nil
}

func (s *JournalStore) listByUser(ctx context.Context, userID string) ([]models.JournalEntry, Source, error) {
	if s.remote != nil {
		rctx, cancel := context.WithTimeout(ctx, remoteTimeout)
		entries, err := s.remote.ListByUser(rctx, userID)
		cancel()
		if err == nil {
			if entries == nil {
				entries = []models.JournalEntry{}
			}
			return entries, SourceRemote, nil
		}
		s.fallback("list", userID, err)
	}

	entries, err := s.loadLocal(ctx)
	if err != nil {
		return nil, "", err
	}
	out := make([]models.JournalEntry, 0, len(entries))
	for _, e := range entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, SourceLocal, nil
}

// Update changes title and content of the user's entry. A nil entry means it
// was not found in the store that served the call.
func (s *JournalStore) Update(ctx context.Context, userID, id, title, content string) (*models.JournalEntry, Source, error) {
	title, content = strings.TrimSpace(title), strings.TrimSpace(content)
	if title == "" || content == "" {
		return nil, "", ErrEmptyJournal
	}
	now := s.now().UTC()

	if s.remote != nil {
		rctx, cancel := context.WithTimeout(ctx, remoteTimeout)
		entry, err := s.remote.Update(rctx, userID, id, title, content, now)
		cancel()
		if err == nil {
			return entry, SourceRemote, nil
		}
		s.fallback("update", userID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.loadLocal(ctx)
	if err != nil {
		return nil, "", err
	}
	for i := range entries {
		if entries[i].ID != id || entries[i].UserID != userID {
			continue
		}
		entries[i].Title = title
		entries[i].Content = content
		entries[i].UpdatedAt = now
		if err := kv.SaveCollection(ctx, s.local, kv.JournalEntriesKey, entries); err != nil {
			return nil, "", err
		}
		updated := entries[i]
		return &updated, SourceLocal, nil
	}
	return nil, SourceLocal, nil
}

// Delete removes the user's entry and reports whether it existed.
func (s *JournalStore) Delete(ctx context.Context, userID, id string) (bool, Source, error) {
	if s.remote != nil {
		rctx, cancel := context.WithTimeout(ctx, remoteTimeout)
		deleted, err := s.remote.Delete(rctx, userID, id)
		cancel()
		if err == nil {
			return deleted, SourceRemote, nil
		}
		s.fallback("delete", userID, err)
	}

	removed, err := s.removeLocal(ctx, func(e models.JournalEntry) bool {
		return e.ID == id && e.UserID == userID
	})
	if err != nil {
		return false, "", err
	}
	return removed > 0, SourceLocal, nil
}

// DeleteAllForUser clears the user's entries from both stores. A remote
// failure is logged and does not stop the local cleanup.
func (s *JournalStore) DeleteAllForUser(ctx context.Context, userID string) error {
	if s.remote != nil {
		rctx, cancel := context.WithTimeout(ctx, remoteTimeout)
		err := s.remote.DeleteAllForUser(rctx, userID)
		cancel()
		if err != nil {
			s.fallback("delete all", userID, err)
		}
	}
	_, err := s.removeLocal(ctx, func(e models.JournalEntry) bool {
		return e.UserID == userID
	})
	return err
}

func (s *JournalStore) removeLocal(ctx context.Context, drop func(models.JournalEntry) bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.loadLocal(ctx)
	if err != nil {
		return 0, err
	}
	kept := make([]models.JournalEntry, 0, len(entries))
	for _, e := range entries {
		if !drop(e) {
			kept = append(kept, e)
		}
	}
	removed := len(entries) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	return removed, kv.SaveCollection(ctx, s.local, kv.JournalEntriesKey, kept)
}

func (s *JournalStore) loadLocal(ctx context.Context) ([]models.JournalEntry, error) {
	return kv.LoadCollection[models.JournalEntry](ctx, s.local, kv.JournalEntriesKey, s.log)
}

func (s *JournalStore) fallback(op, userID string, err error) {
	s.log.Warn("remote journal store failed, using local fallback",
		zap.String("op", op),
		zap.String("user_id", userID),
		zap.Error(err),
	)
}

func filterJournals(entries []models.JournalEntry, query string) []models.JournalEntry {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return entries
	}
	out := make([]models.JournalEntry, 0, len(entries))
	for _, e := range entries {
		if strings.Contains(strings.ToLower(e.Title), query) || strings.Contains(strings.ToLower(e.Content), query) {
			out = append(out, e)
		}
	}
	return out
}
