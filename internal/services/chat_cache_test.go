package services

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kaitanna/kaitanna-backend/internal/database"
	"github.com/kaitanna/kaitanna-backend/internal/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func TestTail(t *testing.T) {
	msgs := []models.ChatMessage{{ID: "1"}, {ID: "2"}, {ID: "3"}}

	tests := []struct {
		n    int64
		want []string
	}{
		{n: 5, want: []string{"1", "2", "3"}},
		{n: 3, want: []string{"1", "2", "3"}},
		{n: 2, want: []string{"2", "3"}},
		{n: 1, want: []string{"3"}},
	}
	for _, tt := range tests {
		got := tail(msgs, tt.n)
		if len(got) != len(tt.want) {
			t.Fatalf("tail(%d) returned %d messages, want %d", tt.n, len(got), len(tt.want))
		}
		for i, id := range tt.want {
			if got[i].ID != id {
				t.Errorf("tail(%d)[%d] = %s, want %s", tt.n, i, got[i].ID, id)
			}
		}
	}
}

func TestChatRecentKey(t *testing.T) {
	if got := chatRecentKey("abc"); got != "kaitanna:chat:abc:recent" {
		t.Errorf("chatRecentKey = %q", got)
	}
}

// countingChats counts reads that reach the wrapped repository.
type countingChats struct {
	*fakeChatRepo
	lists atomic.Int32
}

func (c *countingChats) ListMessages(ctx context.Context, sessionID string, limit int64) ([]models.ChatMessage, error) {
	c.lists.Add(1)
	return c.fakeChatRepo.ListMessages(ctx, sessionID, limit)
}

func chatMessage(userID, sessionID, content string) models.ChatMessage {
	return models.ChatMessage{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		UserID:    userID,
		Content:   content,
		Sender:    models.SenderUser,
		CreatedAt: time.Now().UTC(),
	}
}

func messageIDs(msgs []models.ChatMessage) []string {
	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	return ids
}

func sameIDs(got []models.ChatMessage, want ...models.ChatMessage) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i].ID != want[i].ID {
			return false
		}
	}
	return true
}

func TestCachedChats_FallsThroughWhenRedisIsDown(t *testing.T) {
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	inner := &countingChats{fakeChatRepo: newFakeChatRepo()}
	c := NewCachedChats(inner, client, zap.NewNop())
	inner.CreateSession(ctx, models.ChatSession{ID: "s1", UserID: "u1"})

	m1 := chatMessage("u1", "s1", "hello")
	if err := c.InsertMessage(ctx, m1); err != nil {
		t.Fatalf("InsertMessage: %v", err)
	}
	for i := 0; i < 2; i++ {
		got, err := c.ListMessages(ctx, "s1", 10)
		if err != nil {
			t.Fatalf("ListMessages: %v", err)
		}
		if !sameIDs(got, m1) {
			t.Errorf("ListMessages = %v", messageIDs(got))
		}
	}
	if n := inner.lists.Load(); n != 2 {
		t.Errorf("Expected every read to reach the repository, got %d", n)
	}
	if ok, err := c.DeleteSession(ctx, "u1", "s1"); err != nil || !ok {
		t.Errorf("DeleteSession = %v, %v", ok, err)
	}
}

func TestCachedChats_Redis(t *testing.T) {
	uri := os.Getenv("REDIS_URI")
	if uri == "" {
		t.Skip("REDIS_URI not set")
	}
	client, err := database.ConnectRedis(uri)
	if err != nil {
		t.Fatalf("ConnectRedis: %v", err)
	}
	defer client.Close()

	ctx := context.Background()
	userID := uuid.NewString()
	s1, s2 := uuid.NewString(), uuid.NewString()
	t.Cleanup(func() { client.Del(context.Background(), chatRecentKey(s1), chatRecentKey(s2)) })

	inner := &countingChats{fakeChatRepo: newFakeChatRepo()}
	c := NewCachedChats(inner, client, zap.NewNop())
	inner.CreateSession(ctx, models.ChatSession{ID: s1, UserID: userID})
	inner.CreateSession(ctx, models.ChatSession{ID: s2, UserID: userID})

	exists := func(sessionID string) bool {
		t.Helper()
		n, err := client.Exists(ctx, chatRecentKey(sessionID)).Result()
		if err != nil {
			t.Fatal(err)
		}
		return n == 1
	}

	m1 := chatMessage(userID, s1, "first")
	c.InsertMessage(ctx, m1)
	if exists(s1) {
		t.Fatal("Insert into a cold session must not create its list")
	}

	got, _ := c.ListMessages(ctx, s1, 10)
	if !sameIDs(got, m1) || inner.lists.Load() != 1 {
		t.Fatalf("Miss: got %v after %d repository reads", messageIDs(got), inner.lists.Load())
	}
	if !exists(s1) {
		t.Fatal("Expected the list warmed after a miss")
	}

	m2 := chatMessage(userID, s1, "second")
	c.InsertMessage(ctx, m2)
	got, _ = c.ListMessages(ctx, s1, 10)
	if !sameIDs(got, m1, m2) {
		t.Errorf("Hit: got %v, want oldest first", messageIDs(got))
	}
	got, _ = c.ListMessages(ctx, s1, 1)
	if !sameIDs(got, m2) {
		t.Errorf("Hit with limit 1: got %v", messageIDs(got))
	}
	if n := inner.lists.Load(); n != 1 {
		t.Errorf("Warm reads reached the repository: %d reads", n)
	}

	if ok, err := c.DeleteSession(ctx, userID, s1); err != nil || !ok {
		t.Fatalf("DeleteSession = %v, %v", ok, err)
	}
	if exists(s1) {
		t.Error("Expected the list dropped with its session")
	}

	c.InsertMessage(ctx, chatMessage(userID, s2, "other"))
	c.ListMessages(ctx, s2, 10)
	if !exists(s2) {
		t.Fatal("Expected s2 warmed")
	}
	if err := c.DeleteAllForUser(ctx, userID); err != nil {
		t.Fatalf("DeleteAllForUser: %v", err)
	}
	if exists(s2) {
		t.Error("Expected the list dropped with the account")
	}
}
