package auth

import (
	"context"
	"errors"
	"time"

	"github.com/kaitanna/kaitanna-backend/internal/kv"
)

const (
	// SessionDuration is 7 days
	SessionDuration = 7 * 24 * time.Hour
	// SessionKeyPrefix is the key prefix for sessions
	SessionKeyPrefix = "session:"
	// UserSessionKeyPrefix is the key prefix for the user->session mapping
	UserSessionKeyPrefix = "user_session:"
)

// SessionRegistry records live session ids so logout can revoke a token
// before it expires. A user holds one session at a time; a new login
// replaces the previous one and restarts the 7-day timer.
type SessionRegistry struct {
	store kv.Store
}

func NewSessionRegistry(store kv.Store) *SessionRegistry {
	return &SessionRegistry{store: store}
}

// Register stores sessionID for userID, invalidating any older session.
func (r *SessionRegistry) Register(ctx context.Context, userID, sessionID string) error {
	if err := r.RevokeUser(ctx, userID); err != nil {
		return err
	}
	if err := r.store.Set(ctx, SessionKeyPrefix+sessionID, []byte(userID), SessionDuration); err != nil {
		return err
	}
	return r.store.Set(ctx, UserSessionKeyPrefix+userID, []byte(sessionID), SessionDuration)
}

// Active reports whether sessionID is live and belongs to userID.
func (r *SessionRegistry) Active(ctx context.Context, userID, sessionID string) (bool, error) {
	owner, ok, err := r.store.Get(ctx, SessionKeyPrefix+sessionID)
	if err != nil || !ok {
		return false, err
	}
	return string(owner) == userID, nil
}

// Revoke removes a single session. The session key is deleted even when the
// user mapping cannot be read or cleared; both failures are reported.
func (r *SessionRegistry) Revoke(ctx context.Context, userID, sessionID string) error {
	current, ok, err := r.store.Get(ctx, UserSessionKeyPrefix+userID)
	if err == nil && ok && string(current) == sessionID {
		err = r.store.Del(ctx, UserSessionKeyPrefix+userID)
	}
	return errors.Join(err, r.store.Del(ctx, SessionKeyPrefix+sessionID))
}

// RevokeUser removes whatever session userID currently holds.
func (r *SessionRegistry) RevokeUser(ctx context.Context, userID string) error {
	current, ok, err := r.store.Get(ctx, UserSessionKeyPrefix+userID)
	if err != nil {
		return err
	}
	if ok && len(current) > 0 {
		if err := r.store.Del(ctx, SessionKeyPrefix+string(current)); err != nil {
			return err
		}
	}
	return r.store.Del(ctx, UserSessionKeyPrefix+userID)
}
