package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kaitanna/kaitanna-backend/internal/kv"
	"go.uber.org/zap"
)

func newTestService() (*Service, *kv.Memory) {
	mem := kv.NewMemory()
	svc := NewService(
		NewKVDirectory(mem, zap.NewNop()),
		NewSessionRegistry(mem),
		NewTokens("test-secret", SessionDuration),
		NewHub(),
		zap.NewNop(),
	)
	return svc, mem
}

func TestSignupAndLogin(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	sess, err := svc.Signup(ctx, "MoodFan", " Fan@Example.com ", "supersecret")
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if sess.Token == "" || sess.User.Username != "MoodFan" || sess.User.Email != "fan@example.com" {
		t.Errorf("Unexpected session %+v", sess)
	}
	if sess.User.PasswordHash != "" {
		t.Error("Password hash leaked out of the identity layer")
	}

	tests := []struct {
		name       string
		identifier string
		password   string
		wantErr    error
	}{
		{"by username any case", "moodfan", "supersecret", nil},
		{"by email", "FAN@example.com", "supersecret", nil},
		{"wrong password", "moodfan", "nope-nope", ErrInvalidCredentials},
		{"unknown user", "ghost", "supersecret", ErrInvalidCredentials},
		{"empty", "", "", ErrInvalidCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.Login(ctx, tt.identifier, tt.password)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Login error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && got.User.ID != sess.User.ID {
				t.Errorf("Logged in as %q, want %q", got.User.ID, sess.User.ID)
			}
		})
	}
}

func TestSignupConflictsAndValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	if _, err := svc.Signup(ctx, "kai", "kai@example.com", "password1"); err != nil {
		t.Fatalf("Signup: %v", err)
	}

	tests := []struct {
		name     string
		username string
		email    string
		password string
		check    func(error) bool
	}{
		{"username taken", "KAI", "other@example.com", "password1", func(err error) bool { return errors.Is(err, ErrUsernameTaken) }},
		{"email taken", "kai2", "Kai@Example.com", "password1", func(err error) bool { return errors.Is(err, ErrEmailTaken) }},
		{"bad username", "k!", "k@example.com", "password1", isValidation("username")},
		{"bad email", "kai3", "not-an-email", "password1", isValidation("email")},
		{"short password", "kai4", "kai4@example.com", "short", isValidation("password")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Signup(ctx, tt.username, tt.email, tt.password)
			if !tt.check(err) {
				t.Errorf("Signup error = %v", err)
			}
		})
	}
}

func isValidation(field string) func(error) bool {
	return func(err error) bool {
		var ve *ValidationError
		return errors.As(err, &ve) && ve.Field == field
	}
}

func TestCurrentUserAndLogout(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	sess, _ := svc.Signup(ctx, "journaler", "j@example.com", "password1")

	user, err := svc.CurrentUser(ctx, sess.Token)
	if err != nil || user.ID != sess.User.ID {
		t.Fatalf("CurrentUser = %v, %v", user, err)
	}

	if err := svc.Logout(ctx, sess.Token); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := svc.CurrentUser(ctx, sess.Token); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("Expected ErrUnauthenticated after logout, got %v", err)
	}
	if err := svc.Logout(ctx, "garbage"); err != nil {
		t.Errorf("Logout with invalid token should be a no-op, got %v", err)
	}
	if _, err := svc.CurrentUser(ctx, ""); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("Expected ErrUnauthenticated for empty token, got %v", err)
	}
}

func TestNewLoginReplacesSession(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	first, _ := svc.Signup(ctx, "one_session", "one@example.com", "password1")
	second, err := svc.Login(ctx, "one_session", "password1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if _, err := svc.CurrentUser(ctx, first.Token); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("Expected the first session revoked, got %v", err)
	}
	if _, err := svc.CurrentUser(ctx, second.Token); err != nil {
		t.Errorf("Expected second session active, got %v", err)
	}
}

func TestTokenFromOtherSecretRejected(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	svc.Signup(ctx, "secretive", "s@example.com", "password1")

	forged, _, err := NewTokens("another-secret", time.Hour).Sign("someone")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, err := svc.CurrentUser(ctx, forged); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("Expected ErrUnauthenticated, got %v", err)
	}
}

func TestExpiredToken(t *testing.T) {
	tokens := NewTokens("secret", time.Hour)
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tokens.now = func() time.Time { return issued }
	tok, _, err := tokens.Sign("u1")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, err := tokens.Parse(tok); err != nil {
		t.Fatalf("Parse fresh token: %v", err)
	}

	tokens.now = func() time.Time { return issued.Add(2 * time.Hour) }
	if _, err := tokens.Parse(tok); err == nil {
		t.Error("Expected expired token to be rejected")
	}
}

func TestUpdateProfile(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	a, _ := svc.Signup(ctx, "alpha", "a@example.com", "password1")
	svc.Signup(ctx, "bravo", "b@example.com", "password1")

	if _, err := svc.UpdateUsername(ctx, a.User.ID, "Bravo"); !errors.Is(err, ErrUsernameTaken) {
		t.Errorf("Expected ErrUsernameTaken, got %v", err)
	}
	if _, err := svc.UpdateUsername(ctx, a.User.ID, "x"); !isValidation("username")(err) {
		t.Errorf("Expected username validation error, got %v", err)
	}

	updated, err := svc.UpdateUsername(ctx, a.User.ID, "alpha_two")
	if err != nil {
		t.Fatalf("UpdateUsername: %v", err)
	}
	if updated.Username != "alpha_two" {
		t.Errorf("Username = %q", updated.Username)
	}

	withAvatar, err := svc.SetAvatar(ctx, a.User.ID, "https://res.cloudinary.com/demo/alpha.png")
	if err != nil || withAvatar.AvatarURL == "" || withAvatar.Username != "alpha_two" {
		t.Errorf("SetAvatar = %+v, %v", withAvatar, err)
	}

	if _, err := svc.Profile(ctx, "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Expected ErrUserNotFound, got %v", err)
	}
}

func TestDeleteAccount(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	sess, _ := svc.Signup(ctx, "leaving", "leave@example.com", "password1")

	var cleaned []string
	svc.OnAccountDelete(func(_ context.Context, userID string) error {
		cleaned = append(cleaned, "moods:"+userID)
		return nil
	})
	svc.OnAccountDelete(func(_ context.Context, userID string) error {
		return errors.New("journal store down")
	})

	if err := svc.DeleteAccount(ctx, sess.User.ID); err != nil {
		t.Fatalf("DeleteAccount: %v", err)
	}
	if len(cleaned) != 1 || cleaned[0] != "moods:"+sess.User.ID {
		t.Errorf("Expected mood cleanup to run, got %v", cleaned)
	}
	if _, err := svc.CurrentUser(ctx, sess.Token); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("Expected session revoked, got %v", err)
	}
	if _, err := svc.Login(ctx, "leaving", "password1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected deleted account to be unable to log in, got %v", err)
	}
	// Username is free again.
	if _, err := svc.Signup(ctx, "leaving", "leave@example.com", "password1"); err != nil {
		t.Errorf("Expected re-signup to succeed, got %v", err)
	}
}

func TestOnSessionChange(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	events := make(chan SessionEvent, 8)
	unsubscribe := svc.OnSessionChange(func(e SessionEvent) { events <- e })

	sess, _ := svc.Signup(ctx, "watcher", "w@example.com", "password1")
	expectEvent(t, events, EventSignedIn, sess.User.ID)

	svc.Logout(ctx, sess.Token)
	expectEvent(t, events, EventSignedOut, sess.User.ID)

	unsubscribe()
	unsubscribe()
	svc.Login(ctx, "watcher", "password1")
	select {
	case e := <-events:
		t.Errorf("Received %v after unsubscribe", e.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func expectEvent(t *testing.T, events <-chan SessionEvent, want EventType, userID string) {
	t.Helper()
	select {
	case e := <-events:
		if e.Type != want || e.UserID != userID {
			t.Errorf("Got event %s for %s, want %s for %s", e.Type, e.UserID, want, userID)
		}
		if e.Timestamp.IsZero() {
			t.Error("Event timestamp not set")
		}
	case <-time.After(time.Second):
		t.Fatalf("Timed out waiting for %s", want)
	}
}
