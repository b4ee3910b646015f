package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-memory Store used by tests and `serve --store memory`
// development runs. Friendships are stored symmetrically.
type Memory struct {
	mu       sync.RWMutex
	users    map[string]*User
	friends  map[string]map[string]struct{} // userID -> friend set
	messages []*Message
	receipts map[string][]ReadReceipt // messageID -> receipts
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		users:    make(map[string]*User),
		friends:  make(map[string]map[string]struct{}),
		receipts: make(map[string][]ReadReceipt),
	}
}

// AddUser inserts or replaces a user document.
func (m *Memory) AddUser(u *User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.users[u.ID] = &cp
}

// AddFriendship records a mutual friendship between two users.
func (m *Memory) AddFriendship(a, b string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.friends[a] == nil {
		m.friends[a] = make(map[string]struct{})
	}
	if m.friends[b] == nil {
		m.friends[b] = make(map[string]struct{})
	}
	m.friends[a][b] = struct{}{}
	m.friends[b][a] = struct{}{}
}

// Messages returns a snapshot of all persisted messages.
func (m *Memory) Messages() []*Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Message, len(m.messages))
	for i, msg := range m.messages {
		cp := *msg
		out[i] = &cp
	}
	return out
}

// Receipts returns the read receipts recorded for a message.
func (m *Memory) Receipts(messageID string) []ReadReceipt {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ReadReceipt(nil), m.receipts[messageID]...)
}

func (m *Memory) FindUser(ctx context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *Memory) FriendIDs(ctx context.Context, userID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set := m.friends[userID]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *Memory) AreFriends(ctx context.Context, a, b string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.friends[a][b]
	return ok, nil
}

func (m *Memory) SaveMessage(ctx context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	cp := *msg
	m.messages = append(m.messages, &cp)
	return nil
}

func (m *Memory) MarkMessageRead(ctx context.Context, messageID, userID string, readAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.receipts[messageID] {
		if r.UserID == userID {
			return nil
		}
	}
	m.receipts[messageID] = append(m.receipts[messageID], ReadReceipt{UserID: userID, ReadAt: readAt})
	return nil
}

func (m *Memory) UpdatePresence(ctx context.Context, userID, status string, lastSeen time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.Status = status
	u.LastSeen = lastSeen
	return nil
}

func (m *Memory) Close(ctx context.Context) error {
	return nil
}
