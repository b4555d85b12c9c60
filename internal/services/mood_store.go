package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kaitanna/kaitanna-backend/internal/kv"
	"github.com/kaitanna/kaitanna-backend/internal/models"
	"go.uber.org/zap"
)

// MoodStore keeps every user's mood entries in one serialized collection.
// A user has at most one entry per calendar day; a later add for the same
// day replaces the earlier one.
type MoodStore struct {
	kv  kv.Store
	log *zap.Logger
	loc *time.Location
	now func() time.Time

	// Serializes read-modify-write cycles on the shared collection.
	mu sync.Mutex
}

// NewMoodStore returns a store whose calendar days are taken in loc.
func NewMoodStore(store kv.Store, loc *time.Location, log *zap.Logger) *MoodStore {
	if loc == nil {
		loc = time.UTC
	}
	return &MoodStore{kv: store, log: log, loc: loc, now: time.Now}
}

// Add records mood for today, dropping any entry the user already has today.
func (s *MoodStore) Add(ctx context.Context, userID, mood, note string) (models.MoodEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := kv.LoadCollection[models.MoodEntry](ctx, s.kv, kv.MoodEntriesKey, s.log)
	if err != nil {
		return models.MoodEntry{}, err
	}

	entry := models.MoodEntry{
		ID:     uuid.NewString(),
		UserID: userID,
		Mood:   mood,
		Note:   note,
		Date:   s.now().In(s.loc),
	}

	kept := make([]models.MoodEntry, 0, len(entries)+1)
	kept = append(kept, entry)
	for _, e := range entries {
		if e.UserID == userID && s.sameDay(e.Date, entry.Date) {
			continue
		}
		kept = append(kept, e)
	}

	if err := kv.SaveCollection(ctx, s.kv, kv.MoodEntriesKey, kept); err != nil {
		return models.MoodEntry{}, err
	}
	return entry, nil
}

// ListByUser returns the user's entries in storage order.
func (s *MoodStore) ListByUser(ctx context.Context, userID string) ([]models.MoodEntry, error) {
	entries, err := kv.LoadCollection[models.MoodEntry](ctx, s.kv, kv.MoodEntriesKey, s.log)
	if err != nil {
		return nil, err
	}
	out := make([]models.MoodEntry, 0, len(entries))
	for _, e := range entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

// DeleteByUser removes entryID if userID owns it. Deleting a missing entry is
// not an error.
func (s *MoodStore) DeleteByUser(ctx context.Context, userID, entryID string) error {
	return s.removeWhere(ctx, func(e models.MoodEntry) bool {
		return e.UserID == userID && e.ID == entryID
	})
}

// DeleteAllForUser drops every entry of userID.
func (s *MoodStore) DeleteAllForUser(ctx context.Context, userID string) error {
	return s.removeWhere(ctx, func(e models.MoodEntry) bool {
		return e.UserID == userID
	})
}

func (s *MoodStore) removeWhere(ctx context.Context, drop func(models.MoodEntry) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := kv.LoadCollection[models.MoodEntry](ctx, s.kv, kv.MoodEntriesKey, s.log)
	if err != nil {
		return err
	}
	kept := entries[:0]
	for _, e := range entries {
		if !drop(e) {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(entries) {
		return nil
	}
	return kv.SaveCollection(ctx, s.kv, kv.MoodEntriesKey, kept)
}

func (s *MoodStore) sameDay(a, b time.Time) bool {
	ay, am, ad := a.In(s.loc).Date()
	by, bm, bd := b.In(s.loc).Date()
	return ay == by && am == bm && ad == bd
}
