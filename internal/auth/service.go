// Package auth owns accounts and sessions: signup, login, logout, the
// current user behind a token and the session change notifications.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kaitanna/kaitanna-backend/internal/models"
	"github.com/kaitanna/kaitanna-backend/pkg/utils"
	"go.uber.org/zap"
)

// Session is returned by Signup and Login.
type Session struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      models.User `json:"user"`
}

// AccountCleanup removes data owned by a deleted account.
type AccountCleanup func(ctx context.Context, userID string) error

type Service struct {
	users    UserDirectory
	sessions *SessionRegistry
	tokens   *Tokens
	bus      Bus
	log      *zap.Logger
	now      func() time.Time
	cleanups []AccountCleanup
}

func NewService(users UserDirectory, sessions *SessionRegistry, tokens *Tokens, bus Bus, log *zap.Logger) *Service {
	return &Service{
		users:    users,
		sessions: sessions,
		tokens:   tokens,
		bus:      bus,
		log:      log,
		now:      time.Now,
	}
}

// OnAccountDelete registers a cleanup run by DeleteAccount.
func (s *Service) OnAccountDelete(fn AccountCleanup) {
	s.cleanups = append(s.cleanups, fn)
}

// OnSessionChange subscribes fn to session events. Events arrive
// asynchronously; call the returned function to unsubscribe.
func (s *Service) OnSessionChange(fn func(SessionEvent)) func() {
	return s.bus.Subscribe(fn)
}

// Signup creates an account and signs it in.
func (s *Service) Signup(ctx context.Context, username, email, password string) (*Session, error) {
	username = strings.TrimSpace(username)
	email = utils.NormalizeEmail(email)

	if err := utils.ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := utils.ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := utils.ValidatePassword(password); err != nil {
		return nil, err
	}

	if existing, err := s.users.ByUsername(ctx, username); err != nil {
		return nil, fmt.Errorf("lookup username: %w", err)
	} else if existing != nil {
		return nil, ErrUsernameTaken
	}
	if existing, err := s.users.ByEmail(ctx, email); err != nil {
		return nil, fmt.Errorf("lookup email: %w", err)
	} else if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	user := models.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrUsernameTaken) || errors.Is(err, ErrEmailTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.log.Info("user signed up", zap.String("user_id", user.ID))
	return s.startSession(ctx, user)
}

// Login signs in with a username or email address.
func (s *Service) Login(ctx context.Context, identifier, password string) (*Session, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	var (
		user *models.User
		err  error
	)
	if strings.Contains(identifier, "@") {
		user, err = s.users.ByEmail(ctx, utils.NormalizeEmail(identifier))
	} else {
		user, err = s.users.ByUsername(ctx, identifier)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}

	ok, err := utils.VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		return nil, ErrInvalidCredentials
	}
	return s.startSession(ctx, *user)
}

// Logout revokes the session behind token. An invalid token is not an error.
func (s *Service) Logout(ctx context.Context, token string) error {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil
	}
	if err := s.sessions.Revoke(ctx, claims.UserID, claims.SessionID); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	s.publish(ctx, SessionEvent{Type: EventSignedOut, UserID: claims.UserID})
	return nil
}

// CurrentUser resolves a token to its live session's user.
func (s *Service) CurrentUser(ctx context.Context, token string) (*models.User, error) {
	claims, err := s.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	user, err := s.users.ByID(ctx, claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if user == nil {
		return nil, ErrUnauthenticated
	}
	public := user.Public()
	return &public, nil
}

// Authenticate checks the token signature and that its session is live.
func (s *Service) Authenticate(ctx context.Context, token string) (*Claims, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	active, err := s.sessions.Active(ctx, claims.UserID, claims.SessionID)
	if err != nil {
		return nil, fmt.Errorf("check session: %w", err)
	}
	if !active {
		return nil, ErrUnauthenticated
	}
	return claims, nil
}

// Profile returns the public view of userID.
func (s *Service) Profile(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.users.ByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	public := user.Public()
	return &public, nil
}

// UpdateUsername changes the user's username.
func (s *Service) UpdateUsername(ctx context.Context, userID, username string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if err := utils.ValidateUsername(username); err != nil {
		return nil, err
	}
	return s.update(ctx, userID, func(u *models.User) { u.Username = username })
}

// SetAvatar stores the URL of the user's uploaded avatar.
func (s *Service) SetAvatar(ctx context.Context, userID, avatarURL string) (*models.User, error) {
	return s.update(ctx, userID, func(u *models.User) { u.AvatarURL = avatarURL })
}

// DeleteAccount removes the user's data, the account and its session.
// Cleanup failures are logged and do not stop the deletion.
func (s *Service) DeleteAccount(ctx context.Context, userID string) error {
	for _, cleanup := range s.cleanups {
		if err := cleanup(ctx, userID); err != nil {
			s.log.Error("account cleanup failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	if err := s.users.Delete(ctx, userID); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if err := s.sessions.RevokeUser(ctx, userID); err != nil {
		s.log.Warn("failed to revoke session of deleted user", zap.String("user_id", userID), zap.Error(err))
	}
	s.log.Info("account deleted", zap.String("user_id", userID))
	s.publish(ctx, SessionEvent{Type: EventUserDeleted, UserID: userID})
	return nil
}

func (s *Service) update(ctx context.Context, userID string, apply func(*models.User)) (*models.User, error) {
	user, err := s.users.ByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	apply(user)
	user.UpdatedAt = s.now().UTC()
	if err := s.users.Update(ctx, *user); err != nil {
		if errors.Is(err, ErrUsernameTaken) || errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update user: %w", err)
	}

	public := user.Public()
	s.publish(ctx, SessionEvent{Type: EventUserUpdated, UserID: userID, User: &public})
	return &public, nil
}

func (s *Service) startSession(ctx context.Context, user models.User) (*Session, error) {
	token, claims, err := s.tokens.Sign(user.ID)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	if err := s.sessions.Register(ctx, user.ID, claims.SessionID); err != nil {
		return nil, fmt.Errorf("register session: %w", err)
	}

	public := user.Public()
	s.publish(ctx, SessionEvent{Type: EventSignedIn, UserID: user.ID, User: &public})
	return &Session{Token: token, ExpiresAt: claims.ExpiresAt.Time, User: public}, nil
}

func (s *Service) publish(ctx context.Context, event SessionEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now().UTC()
	}
	if err := s.bus.Publish(ctx, event); err != nil {
		s.log.Warn("failed to publish session event", zap.String("type", string(event.Type)), zap.Error(err))
	}
}
