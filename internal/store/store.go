// Package store defines the document-store boundary the relay persists
// through: users, friendships, messages, and presence fields.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested document does not exist.
var ErrNotFound = errors.New("store: not found")

// User is the public slice of a user document the relay needs: identity
// for matchmaking and typing indicators, presence fields for status.
type User struct {
	ID          string    `bson:"_id" json:"id"`
	DisplayName string    `bson:"display_name" json:"display_name"`
	AvatarURL   string    `bson:"avatar_url" json:"avatar_url"`
	Status      string    `bson:"status" json:"status"`
	LastSeen    time.Time `bson:"last_seen" json:"last_seen"`
}

// Message is a persisted chat message. Exactly one of RoomID, GroupID,
// or RecipientID is set, matching the channel it was sent on.
type Message struct {
	ID          string    `bson:"_id" json:"id"`
	RoomID      string    `bson:"room_id,omitempty" json:"room_id,omitempty"`
	GroupID     string    `bson:"group_id,omitempty" json:"group_id,omitempty"`
	SenderID    string    `bson:"sender_id" json:"sender_id"`
	RecipientID string    `bson:"recipient_id,omitempty" json:"recipient_id,omitempty"`
	Text        string    `bson:"text" json:"text"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
}

// ReadReceipt records that a user has read a message.
type ReadReceipt struct {
	UserID string    `bson:"user_id" json:"user_id"`
	ReadAt time.Time `bson:"read_at" json:"read_at"`
}

// Store is the repository interface the relay persists through. All
// methods are safe for concurrent use. Implementations: Mongo for
// production, Memory for tests and development.
type Store interface {
	// FindUser returns the user document for the given ID, or
	// ErrNotFound.
	FindUser(ctx context.Context, id string) (*User, error)

	// FriendIDs returns the IDs of the user's friends.
	FriendIDs(ctx context.Context, userID string) ([]string, error)

	// AreFriends reports whether two users are friends.
	AreFriends(ctx context.Context, a, b string) (bool, error)

	// SaveMessage persists a message, assigning ID and CreatedAt if
	// unset.
	SaveMessage(ctx context.Context, msg *Message) error

	// MarkMessageRead records a read receipt for a message.
	MarkMessageRead(ctx context.Context, messageID, userID string, readAt time.Time) error

	// UpdatePresence writes the user's status and last-seen fields.
	UpdatePresence(ctx context.Context, userID, status string, lastSeen time.Time) error

	// Close releases any underlying resources.
	Close(ctx context.Context) error
}
