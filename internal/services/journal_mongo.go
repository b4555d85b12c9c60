package services

import (
	"context"
	"fmt"
	"time"

	"github.com/kaitanna/kaitanna-backend/internal/models"
	"github.com/kaitanna/kaitanna-backend/pkg/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const journalCollection = "journal_entries"

// MongoJournals stores journal entries in MongoDB. When cipher is set the
// content field is encrypted at rest.
type MongoJournals struct {
	col    *mongo.Collection
	cipher *utils.Cipher
}

func NewMongoJournals(db *mongo.Database, cipher *utils.Cipher) *MongoJournals {
	return &MongoJournals{col: db.Collection(journalCollection), cipher: cipher}
}

// EnsureIndexes creates the (user_id, created_at) index used by listings.
func (m *MongoJournals) EnsureIndexes(ctx context.Context) error {
	_, err := m.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "user_id", Value: 1},
			{Key: "created_at", Value: -1},
		},
		Options: options.Index().SetName("idx_user_created"),
	})
	return err
}

func (m *MongoJournals) Insert(ctx context.Context, entry models.JournalEntry) error {
	stored, err := m.seal(entry)
	if err != nil {
		return err
	}
	_, err = m.col.InsertOne(ctx, stored)
	return err
}

func (m *MongoJournals) ListByUser(ctx context.Context, userID string) ([]models.JournalEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cur, err := m.col.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var entries []models.JournalEntry
	if err := cur.All(ctx, &entries); err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i], err = m.open(entries[i]); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func (m *MongoJournals) Update(ctx context.Context, userID, id, title, content string, updatedAt time.Time) (*models.JournalEntry, error) {
	stored, err := m.sealContent(content)
	if err != nil {
		return nil, err
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	res := m.col.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "user_id": userID},
		bson.M{"$set": bson.M{"title": title, "content": stored, "updated_at": updatedAt}},
		opts,
	)

	var entry models.JournalEntry
	if err := res.Decode(&entry); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	entry, err = m.open(entry)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (m *MongoJournals) Delete(ctx context.Context, userID, id string) (bool, error) {
	res, err := m.col.DeleteOne(ctx, bson.M{"_id": id, "user_id": userID})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

func (m *MongoJournals) DeleteAllForUser(ctx context.Context, userID string) error {
	_, err := m.col.DeleteMany(ctx, bson.M{"user_id": userID})
	return err
}

func (m *MongoJournals) seal(entry models.JournalEntry) (models.JournalEntry, error) {
	content, err := m.sealContent(entry.Content)
	if err != nil {
		return entry, err
	}
	entry.Content = content
	return entry, nil
}

func (m *MongoJournals) sealContent(content string) (string, error) {
	if m.cipher == nil {
		return content, nil
	}
	sealed, err := m.cipher.Encrypt(content)
	if err != nil {
		return "", fmt.Errorf("encrypt journal content: %w", err)
	}
	return sealed, nil
}

func (m *MongoJournals) open(entry models.JournalEntry) (models.JournalEntry, error) {
	if m.cipher == nil {
		return entry, nil
	}
	content, err := m.cipher.Decrypt(entry.Content)
	if err != nil {
		return entry, fmt.Errorf("decrypt journal %s: %w", entry.ID, err)
	}
	entry.Content = content
	return entry, nil
}
