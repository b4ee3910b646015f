package relay

import (
	"sync"
	"time"
)

// Status is a user's presence status.
type Status string

const (
	StatusOnline    Status = "online"
	StatusAway      Status = "away"
	StatusOffline   Status = "offline"
	StatusInvisible Status = "invisible"
)

// Valid reports whether the status is one a client may set.
func (s Status) Valid() bool {
	switch s {
	case StatusOnline, StatusAway, StatusOffline, StatusInvisible:
		return true
	}
	return false
}

// Presence is the authoritative in-memory registry of who is online. An
// entry exists iff its user has at least one open connection; it is
// removed the moment the connection set empties.
type Presence struct {
	mu      sync.RWMutex
	entries map[string]*presenceEntry // userID -> entry
}

type presenceEntry struct {
	conns    map[string]struct{} // connection IDs
	status   Status
	lastSeen time.Time
}

func newPresence() *Presence {
	return &Presence{entries: make(map[string]*presenceEntry)}
}

// Register adds a connection for a user, creating the entry if needed.
// Returns true when this is the user's first connection.
func (p *Presence) Register(userID, connID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[userID]
	if !ok {
		e = &presenceEntry{conns: make(map[string]struct{}), status: StatusOnline}
		p.entries[userID] = e
	}
	e.conns[connID] = struct{}{}
	e.lastSeen = time.Now()
	return !ok
}

// Unregister removes a connection for a user, deleting the entry when
// the connection set empties. Returns true when the last connection was
// removed.
func (p *Presence) Unregister(userID, connID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[userID]
	if !ok {
		return false
	}
	delete(e.conns, connID)
	if len(e.conns) == 0 {
		delete(p.entries, userID)
		return true
	}
	return false
}

// SetStatus updates a user's status and last-seen time. Returns false
// if the user is not online.
func (p *Presence) SetStatus(userID string, st Status) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[userID]
	if !ok {
		return false
	}
	e.status = st
	e.lastSeen = time.Now()
	return true
}

// Status returns a user's current status.
func (p *Presence) Status(userID string) (Status, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.entries[userID]
	if !ok {
		return StatusOffline, false
	}
	return e.status, true
}

// IsOnline reports whether the user has at least one open connection.
func (p *Presence) IsOnline(userID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.entries[userID]
	return ok
}

// ConnIDs returns a snapshot of the user's connection IDs.
func (p *Presence) ConnIDs(userID string) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.entries[userID]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(e.conns))
	for id := range e.conns {
		ids = append(ids, id)
	}
	return ids
}

// OnlineCount returns the number of users with an active entry.
func (p *Presence) OnlineCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}
