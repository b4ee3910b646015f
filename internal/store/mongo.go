package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	collUsers    = "users"
	collFriends  = "friends"
	collMessages = "messages"
)

// MongoConfig holds MongoDB connection settings.
type MongoConfig struct {
	URI         string
	Database    string
	MaxPoolSize uint64
	Timeout     time.Duration
}

// DefaultMongoConfig returns the default MongoDB configuration.
func DefaultMongoConfig() MongoConfig {
	return MongoConfig{
		URI:         "mongodb://localhost:27017",
		Database:    "chatlite",
		MaxPoolSize: 100,
		Timeout:     10 * time.Second,
	}
}

// Mongo implements Store on a MongoDB database. Friendships are stored
// as one document per direction (user_id, friend_id), so lookups never
// need an $or across both fields.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
}

// friendDoc is one direction of a friendship edge.
type friendDoc struct {
	UserID   string `bson:"user_id"`
	FriendID string `bson:"friend_id"`
}

// NewMongo connects to MongoDB and verifies the connection with a ping.
func NewMongo(ctx context.Context, cfg MongoConfig) (*Mongo, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongo uri is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MaxPoolSize)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	m := &Mongo{client: client, db: client.Database(cfg.Database)}
	if err := m.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return m, nil
}

func (m *Mongo) ensureIndexes(ctx context.Context) error {
	_, err := m.db.Collection(collFriends).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "friend_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create friends index: %w", err)
	}
	_, err = m.db.Collection(collMessages).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "room_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create messages index: %w", err)
	}
	return nil
}

func (m *Mongo) FindUser(ctx context.Context, id string) (*User, error) {
	var u User
	err := m.db.Collection(collUsers).FindOne(ctx, bson.M{"_id": id}).Decode(&u)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user %s: %w", id, err)
	}
	return &u, nil
}

func (m *Mongo) FriendIDs(ctx context.Context, userID string) ([]string, error) {
	cur, err := m.db.Collection(collFriends).Find(ctx, bson.M{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("find friends of %s: %w", userID, err)
	}
	defer cur.Close(ctx)

	var ids []string
	for cur.Next(ctx) {
		var doc friendDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode friend doc: %w", err)
		}
		ids = append(ids, doc.FriendID)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate friends of %s: %w", userID, err)
	}
	return ids, nil
}

func (m *Mongo) AreFriends(ctx context.Context, a, b string) (bool, error) {
	n, err := m.db.Collection(collFriends).CountDocuments(ctx,
		bson.M{"user_id": a, "friend_id": b},
		options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("check friendship %s/%s: %w", a, b, err)
	}
	return n > 0, nil
}

func (m *Mongo) SaveMessage(ctx context.Context, msg *Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if _, err := m.db.Collection(collMessages).InsertOne(ctx, msg); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (m *Mongo) MarkMessageRead(ctx context.Context, messageID, userID string, readAt time.Time) error {
	// The filter excludes messages the user already read, so repeat
	// receipts match nothing and stay idempotent.
	_, err := m.db.Collection(collMessages).UpdateOne(ctx,
		bson.M{"_id": messageID, "read_by.user_id": bson.M{"$ne": userID}},
		bson.M{"$push": bson.M{"read_by": ReadReceipt{UserID: userID, ReadAt: readAt}}})
	if err != nil {
		return fmt.Errorf("mark message %s read: %w", messageID, err)
	}
	return nil
}

func (m *Mongo) UpdatePresence(ctx context.Context, userID, status string, lastSeen time.Time) error {
	_, err := m.db.Collection(collUsers).UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$set": bson.M{"status": status, "last_seen": lastSeen}})
	if err != nil {
		return fmt.Errorf("update presence for %s: %w", userID, err)
	}
	return nil
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
