package services

import (
	"context"
	"time"

	"github.com/kaitanna/kaitanna-backend/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const maxChatPage = 200

// MongoChats stores chat sessions and messages in two collections.
type MongoChats struct {
	sessions *mongo.Collection
	messages *mongo.Collection
}

func NewMongoChats(db *mongo.Database) *MongoChats {
	return &MongoChats{
		sessions: db.Collection("chat_sessions"),
		messages: db.Collection("chat_messages"),
	}
}

// EnsureIndexes configures indexes for the chat collections.
// Called on startup from main after Mongo has connected.
func (m *MongoChats) EnsureIndexes(ctx context.Context) error {
	if _, err := m.sessions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "user_id", Value: 1},
			{Key: "last_message_at", Value: -1},
		},
		Options: options.Index().SetName("idx_user_last_message"),
	}); err != nil {
		return err
	}

	// Compound index on (session_id, created_at) to support history paging.
	_, err := m.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "session_id", Value: 1},
			{Key: "created_at", Value: -1},
		},
		Options: options.Index().SetName("idx_session_created"),
	})
	return err
}

func (m *MongoChats) CreateSession(ctx context.Context, session models.ChatSession) error {
	_, err := m.sessions.InsertOne(ctx, session)
	return err
}

func (m *MongoChats) ListSessions(ctx context.Context, userID string) ([]models.ChatSession, error) {
	opts := options.Find().SetSort(bson.D{{Key: "last_message_at", Value: -1}})
	cur, err := m.sessions.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var sessions []models.ChatSession
	if err := cur.All(ctx, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (m *MongoChats) GetSession(ctx context.Context, userID, sessionID string) (*models.ChatSession, error) {
	var session models.ChatSession
	err := m.sessions.FindOne(ctx, bson.M{"_id": sessionID, "user_id": userID}).Decode(&session)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (m *MongoChats) RenameSession(ctx context.Context, userID, sessionID, title string, at time.Time) (bool, error) {
	res, err := m.sessions.UpdateOne(ctx,
		bson.M{"_id": sessionID, "user_id": userID},
		bson.M{"$set": bson.M{"title": title, "updated_at": at}},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

func (m *MongoChats) TouchSession(ctx context.Context, sessionID string, at time.Time) error {
	_, err := m.sessions.UpdateOne(ctx,
		bson.M{"_id": sessionID},
		bson.M{"$set": bson.M{"last_message_at": at, "updated_at": at}},
	)
	return err
}

func (m *MongoChats) DeleteSession(ctx context.Context, userID, sessionID string) (bool, error) {
	res, err := m.sessions.DeleteOne(ctx, bson.M{"_id": sessionID, "user_id": userID})
	if err != nil {
		return false, err
	}
	if res.DeletedCount == 0 {
		return false, nil
	}
	if _, err := m.messages.DeleteMany(ctx, bson.M{"session_id": sessionID}); err != nil {
		return true, err
	}
	return true, nil
}

func (m *MongoChats) InsertMessage(ctx context.Context, msg models.ChatMessage) error {
	_, err := m.messages.InsertOne(ctx, msg)
	return err
}

// ListMessages returns the newest limit messages of a session, oldest first.
func (m *MongoChats) ListMessages(ctx context.Context, sessionID string, limit int64) ([]models.ChatMessage, error) {
	if limit <= 0 || limit > maxChatPage {
		limit = maxChatPage
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit)

	cur, err := m.messages.Find(ctx, bson.M{"session_id": sessionID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var msgs []models.ChatMessage
	if err := cur.All(ctx, &msgs); err != nil {
		return nil, err
	}

	// Reverse to oldest-first for the UI.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (m *MongoChats) DeleteAllForUser(ctx context.Context, userID string) error {
	if _, err := m.messages.DeleteMany(ctx, bson.M{"user_id": userID}); err != nil {
		return err
	}
	_, err := m.sessions.DeleteMany(ctx, bson.M{"user_id": userID})
	return err
}
