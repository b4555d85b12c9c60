package models

import (
	"time"
)

// ChatSender identifies who wrote a chat message.
type ChatSender string

const (
	SenderUser     ChatSender = "user"
	SenderKaitanna ChatSender = "kaitanna"
)

// ChatSession groups the messages of one conversation with the assistant.
type ChatSession struct {
	ID            string    `bson:"_id" json:"id"`
	UserID        string    `bson:"user_id" json:"user_id"`
	Title         string    `bson:"title" json:"title"`
	CreatedAt     time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time `bson:"updated_at" json:"updated_at"`
	LastMessageAt time.Time `bson:"last_message_at" json:"last_message_at"`
}

// ChatMessage is stored in MongoDB, one document per message.
type ChatMessage struct {
	ID        string     `bson:"_id" json:"id"`
	SessionID string     `bson:"session_id" json:"session_id"`
	UserID    string     `bson:"user_id" json:"user_id"`
	Content   string     `bson:"content" json:"content"`
	Sender    ChatSender `bson:"sender" json:"sender"`
	CreatedAt time.Time  `bson:"created_at" json:"created_at"`
}
