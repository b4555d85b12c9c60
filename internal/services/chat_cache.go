package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/kaitanna/kaitanna-backend/internal/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	chatRecentKeyPrefix = "kaitanna:chat:"
	chatRecentKeySuffix = ":recent"
	chatRecentMaxLen    = 50
	chatRecentTTL       = 1 * time.Hour
	chatCacheTimeout    = 2 * time.Second
)

func chatRecentKey(sessionID string) string {
	return chatRecentKeyPrefix + sessionID + chatRecentKeySuffix
}

// CachedChats keeps the most recent messages of each session in a Redis list
// (newest at head) in front of another ChatRepository. Cache failures fall
// through to the wrapped repository.
type CachedChats struct {
	ChatRepository
	client *redis.Client
	log    *zap.Logger
}

func NewCachedChats(inner ChatRepository, client *redis.Client, log *zap.Logger) *CachedChats {
	return &CachedChats{ChatRepository: inner, client: client, log: log}
}

// InsertMessage stores msg and pushes it onto the session's list if the
// list is already warm. A cold list stays cold so it never holds a partial
// history.
func (c *CachedChats) InsertMessage(ctx context.Context, msg models.ChatMessage) error {
	if err := c.ChatRepository.InsertMessage(ctx, msg); err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil
	}

	cctx, cancel := context.WithTimeout(ctx, chatCacheTimeout)
	defer cancel()
	key := chatRecentKey(msg.SessionID)
	pipe := c.client.Pipeline()
	pipe.LPushX(cctx, key, data)
	pipe.LTrim(cctx, key, 0, chatRecentMaxLen-1)
	pipe.Expire(cctx, key, chatRecentTTL)
	if _, err := pipe.Exec(cctx); err != nil {
		c.log.Warn("chat cache push failed", zap.String("session_id", msg.SessionID), zap.Error(err))
	}
	return nil
}

// ListMessages serves up to chatRecentMaxLen messages from the cache and
// warms it on a miss. Larger pages go straight to the wrapped repository.
func (c *CachedChats) ListMessages(ctx context.Context, sessionID string, limit int64) ([]models.ChatMessage, error) {
	if limit <= 0 || limit > chatRecentMaxLen {
		return c.ChatRepository.ListMessages(ctx, sessionID, limit)
	}
	if cached, ok := c.recent(ctx, sessionID); ok {
		return tail(cached, limit), nil
	}

	msgs, err := c.ChatRepository.ListMessages(ctx, sessionID, chatRecentMaxLen)
	if err != nil {
		return nil, err
	}
	c.warm(ctx, sessionID, msgs)
	return tail(msgs, limit), nil
}

func (c *CachedChats) DeleteSession(ctx context.Context, userID, sessionID string) (bool, error) {
	ok, err := c.ChatRepository.DeleteSession(ctx, userID, sessionID)
	if err != nil {
		return false, err
	}
	c.forget(ctx, sessionID)
	return ok, nil
}

func (c *CachedChats) DeleteAllForUser(ctx context.Context, userID string) error {
	sessions, err := c.ChatRepository.ListSessions(ctx, userID)
	if err != nil {
		return err
	}
	if err := c.ChatRepository.DeleteAllForUser(ctx, userID); err != nil {
		return err
	}
	ids := make([]string, 0, len(sessions))
	for _, s := range sessions {
		ids = append(ids, s.ID)
	}
	c.forget(ctx, ids...)
	return nil
}

// recent returns the cached messages oldest first. An empty list is a miss.
func (c *CachedChats) recent(ctx context.Context, sessionID string) ([]models.ChatMessage, bool) {
	cctx, cancel := context.WithTimeout(ctx, chatCacheTimeout)
	defer cancel()
	raw, err := c.client.LRange(cctx, chatRecentKey(sessionID), 0, -1).Result()
	if err != nil || len(raw) == 0 {
		return nil, false
	}

	msgs := make([]models.ChatMessage, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var m models.ChatMessage
		if json.Unmarshal([]byte(raw[i]), &m) != nil {
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, true
}

// warm replaces the session's list with msgs (oldest first).
func (c *CachedChats) warm(ctx context.Context, sessionID string, msgs []models.ChatMessage) {
	if len(msgs) == 0 {
		return
	}
	cctx, cancel := context.WithTimeout(ctx, chatCacheTimeout)
	defer cancel()

	key := chatRecentKey(sessionID)
	pipe := c.client.TxPipeline()
	pipe.Del(cctx, key)
	for i := len(msgs) - 1; i >= 0; i-- {
		data, err := json.Marshal(msgs[i])
		if err != nil {
			continue
		}
		pipe.RPush(cctx, key, data)
	}
	pipe.LTrim(cctx, key, 0, chatRecentMaxLen-1)
	pipe.Expire(cctx, key, chatRecentTTL)
	if _, err := pipe.Exec(cctx); err != nil {
		c.log.Warn("chat cache warm failed", zap.String("session_id", sessionID), zap.Error(err))
	}
}

func (c *CachedChats) forget(ctx context.Context, sessionIDs ...string) {
	if len(sessionIDs) == 0 {
		return
	}
	keys := make([]string, len(sessionIDs))
	for i, id := range sessionIDs {
		keys[i] = chatRecentKey(id)
	}
	cctx, cancel := context.WithTimeout(ctx, chatCacheTimeout)
	defer cancel()
	if err := c.client.Del(cctx, keys...).Err(); err != nil {
		c.log.Warn("chat cache invalidation failed", zap.Error(err))
	}
}

// tail returns the last n messages of an oldest-first slice.
func tail(msgs []models.ChatMessage, n int64) []models.ChatMessage {
	if int64(len(msgs)) <= n {
		return msgs
	}
	return msgs[int64(len(msgs))-n:]
}
