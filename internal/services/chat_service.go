package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kaitanna/kaitanna-backend/internal/ai"
	"github.com/kaitanna/kaitanna-backend/internal/models"
	"go.uber.org/zap"
)

const (
	DefaultChatTitle   = "New Chat"
	maxChatTitleLength = 100
	maxChatMessageLen  = 4000
	promptHistorySize  = 10
)

var (
	ErrChatUnavailable = errors.New("chat is not available")
	ErrChatNotFound    = errors.New("chat session not found")
	ErrEmptyMessage    = errors.New("message cannot be empty")
	ErrMessageTooLong  = fmt.Errorf("message must be at most %d characters", maxChatMessageLen)
)

// ChatRepository persists chat sessions and their messages.
type ChatRepository interface {
	CreateSession(ctx context.Context, session models.ChatSession) error
	ListSessions(ctx context.Context, userID string) ([]models.ChatSession, error)
	GetSession(ctx context.Context, userID, sessionID string) (*models.ChatSession, error)
	RenameSession(ctx context.Context, userID, sessionID, title string, at time.Time) (bool, error)
	TouchSession(ctx context.Context, sessionID string, at time.Time) error
	DeleteSession(ctx context.Context, userID, sessionID string) (bool, error)
	InsertMessage(ctx context.Context, msg models.ChatMessage) error
	ListMessages(ctx context.Context, sessionID string, limit int64) ([]models.ChatMessage, error)
	DeleteAllForUser(ctx context.Context, userID string) error
}

// ChatService runs conversations between a user and the text generator.
// Both repo and gen are required; without them every call reports
// ErrChatUnavailable.
type ChatService struct {
	repo ChatRepository
	gen  ai.Generator
	log  *zap.Logger
	now  func() time.Time
}

func NewChatService(repo ChatRepository, gen ai.Generator, log *zap.Logger) *ChatService {
	return &ChatService{repo: repo, gen: gen, log: log, now: time.Now}
}

// Available reports whether chat can be served.
func (s *ChatService) Available() bool {
	return s != nil && s.repo != nil && s.gen != nil
}

func (s *ChatService) CreateSession(ctx context.Context, userID, title string) (models.ChatSession, error) {
	if !s.Available() {
		return models.ChatSession{}, ErrChatUnavailable
	}
	now := s.now().UTC()
	session := models.ChatSession{
		ID:            uuid.NewString(),
		UserID:        userID,
		Title:         normalizeTitle(title),
		CreatedAt:     now,
		UpdatedAt:     now,
		LastMessageAt: now,
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return models.ChatSession{}, fmt.Errorf("create chat session: %w", err)
	}
	return session, nil
}

// ListSessions returns the user's sessions, most recently active first.
func (s *ChatService) ListSessions(ctx context.Context, userID string) ([]models.ChatSession, error) {
	if !s.Available() {
		return nil, ErrChatUnavailable
	}
	sessions, err := s.repo.ListSessions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list chat sessions: %w", err)
	}
	if sessions == nil {
		sessions = []models.ChatSession{}
	}
	return sessions, nil
}

func (s *ChatService) RenameSession(ctx context.Context, userID, sessionID, title string) error {
	if !s.Available() {
		return ErrChatUnavailable
	}
	ok, err := s.repo.RenameSession(ctx, userID, sessionID, normalizeTitle(title), s.now().UTC())
	if err != nil {
		return fmt.Errorf("rename chat session: %w", err)
	}
	if !ok {
		return ErrChatNotFound
	}
	return nil
}

// DeleteSession removes the session and all of its messages.
func (s *ChatService) DeleteSession(ctx context.Context, userID, sessionID string) error {
	if !s.Available() {
		return ErrChatUnavailable
	}
	ok, err := s.repo.DeleteSession(ctx, userID, sessionID)
	if err != nil {
		return fmt.Errorf("delete chat session: %w", err)
	}
	if !ok {
		return ErrChatNotFound
	}
	return nil
}

// Messages returns the session's messages, oldest first.
func (s *ChatService) Messages(ctx context.Context, userID, sessionID string, limit int64) ([]models.ChatMessage, error) {
	if !s.Available() {
		return nil, ErrChatUnavailable
	}
	if _, err := s.session(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	msgs, err := s.repo.ListMessages(ctx, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	if msgs == nil {
		msgs = []models.ChatMessage{}
	}
	return msgs, nil
}

// Send stores the user's message, asks the generator for a reply and stores
// that too. When generation fails the user's message stays stored.
func (s *ChatService) Send(ctx context.Context, userID, sessionID, text string) (models.ChatMessage, models.ChatMessage, error) {
	if !s.Available() {
		return models.ChatMessage{}, models.ChatMessage{}, ErrChatUnavailable
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return models.ChatMessage{}, models.ChatMessage{}, ErrEmptyMessage
	}
	if len(text) > maxChatMessageLen {
		return models.ChatMessage{}, models.ChatMessage{}, ErrMessageTooLong
	}
	if _, err := s.session(ctx, userID, sessionID); err != nil {
		return models.ChatMessage{}, models.ChatMessage{}, err
	}

	history, err := s.repo.ListMessages(ctx, sessionID, promptHistorySize)
	if err != nil {
		s.log.Warn("could not load chat history for prompt", zap.String("session_id", sessionID), zap.Error(err))
		history = nil
	}

	userMsg := s.message(userID, sessionID, text, models.SenderUser)
	if err := s.repo.InsertMessage(ctx, userMsg); err != nil {
		return models.ChatMessage{}, models.ChatMessage{}, fmt.Errorf("store chat message: %w", err)
	}
	s.touch(ctx, sessionID, userMsg.CreatedAt)

	replyText, err := s.gen.Generate(ctx, buildPrompt(history, text))
	if err != nil {
		return userMsg, models.ChatMessage{}, fmt.Errorf("generate reply: %w", err)
	}

	reply := s.message(userID, sessionID, replyText, models.SenderKaitanna)
	if err := s.repo.InsertMessage(ctx, reply); err != nil {
		return userMsg, models.ChatMessage{}, fmt.Errorf("store chat reply: %w", err)
	}
	s.touch(ctx, sessionID, reply.CreatedAt)
	return userMsg, reply, nil
}

// DeleteAllForUser removes every session and message of userID.
func (s *ChatService) DeleteAllForUser(ctx context.Context, userID string) error {
	if s == nil || s.repo == nil {
		return nil
	}
	return s.repo.DeleteAllForUser(ctx, userID)
}

func (s *ChatService) session(ctx context.Context, userID, sessionID string) (*models.ChatSession, error) {
	session, err := s.repo.GetSession(ctx, userID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load chat session: %w", err)
	}
	if session == nil {
		return nil, ErrChatNotFound
	}
	return session, nil
}

func (s *ChatService) message(userID, sessionID, content string, sender models.ChatSender) models.ChatMessage {
	return models.ChatMessage{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		UserID:    userID,
		Content:   content,
		Sender:    sender,
		CreatedAt: s.now().UTC(),
	}
}

func (s *ChatService) touch(ctx context.Context, sessionID string, at time.Time) {
	if err := s.repo.TouchSession(ctx, sessionID, at); err != nil {
		s.log.Warn("failed to bump chat session activity", zap.String("session_id", sessionID), zap.Error(err))
	}
}

func normalizeTitle(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return DefaultChatTitle
	}
	if r := []rune(title); len(r) > maxChatTitleLength {
		title = string(r[:maxChatTitleLength])
	}
	return title
}

// buildPrompt prefixes the new message with the recent transcript.
func buildPrompt(history []models.ChatMessage, text string) string {
	if len(history) == 0 {
		return text
	}
	var b strings.Builder
	b.WriteString("Conversation so far:\n")
	for _, m := range history {
		who := "User"
		if m.Sender == models.SenderKaitanna {
			who = "Kaitanna"
		}
		b.WriteString(who)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	b.WriteString("\nUser: ")
	b.WriteString(text)
	return b.String()
}
