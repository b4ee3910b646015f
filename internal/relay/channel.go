package relay

import (
	"strings"
	"sync"
)

// ChannelKind discriminates the three addressable fan-out targets.
type ChannelKind uint8

const (
	KindRoom ChannelKind = iota
	KindGroup
	KindPrivate
)

// ChannelID is an explicit tagged channel identifier. Private pairs are
// order-independent: PrivateChannel(a, b) == PrivateChannel(b, a).
type ChannelID struct {
	kind ChannelKind
	key  string
}

// RoomChannel returns the channel for a public room.
func RoomChannel(roomID string) ChannelID {
	return ChannelID{kind: KindRoom, key: roomID}
}

// GroupChannel returns the channel for a group.
func GroupChannel(groupID string) ChannelID {
	return ChannelID{kind: KindGroup, key: groupID}
}

// PrivateChannel returns the deterministic channel for a user pair.
func PrivateChannel(a, b string) ChannelID {
	if b < a {
		a, b = b, a
	}
	return ChannelID{kind: KindPrivate, key: a + "|" + b}
}

// Kind returns the channel kind.
func (c ChannelID) Kind() ChannelKind { return c.kind }

// Key returns the raw identifier: room ID, group ID, or the sorted pair.
func (c ChannelID) Key() string { return c.key }

// IsZero reports whether the channel is unset.
func (c ChannelID) IsZero() bool { return c.key == "" }

// String renders the channel as a wire-facing room key.
func (c ChannelID) String() string {
	switch c.kind {
	case KindGroup:
		return "group:" + c.key
	case KindPrivate:
		return "private:" + c.key
	default:
		return "room:" + c.key
	}
}

// otherUser returns the peer of a private channel relative to self.
func (c ChannelID) otherUser(self string) (string, bool) {
	if c.kind != KindPrivate {
		return "", false
	}
	a, b, ok := strings.Cut(c.key, "|")
	if !ok {
		return "", false
	}
	if a == self {
		return b, true
	}
	if b == self {
		return a, true
	}
	return "", false
}

// channelFromDiscriminators builds a ChannelID from a payload that must
// carry exactly one of roomID, groupID, or toUserID. Ambiguous or empty
// payloads return false.
func channelFromDiscriminators(roomID, groupID, toUserID, selfID string) (ChannelID, bool) {
	set := 0
	for _, v := range []string{roomID, groupID, toUserID} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return ChannelID{}, false
	}
	switch {
	case roomID != "":
		return RoomChannel(roomID), true
	case groupID != "":
		return GroupChannel(groupID), true
	default:
		return PrivateChannel(selfID, toUserID), true
	}
}

// Channels tracks which connections belong to which channel. It is a
// pure fan-out index: entries are created lazily on join and removed
// when the member set empties.
type Channels struct {
	mu      sync.RWMutex
	members map[ChannelID]map[string]*Conn // channel -> connID -> conn
}

func newChannels() *Channels {
	return &Channels{members: make(map[ChannelID]map[string]*Conn)}
}

// Join adds a connection to a channel. Returns false if it was already
// a member.
func (cs *Channels) Join(ch ChannelID, conn *Conn) bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	set := cs.members[ch]
	if set == nil {
		set = make(map[string]*Conn)
		cs.members[ch] = set
	}
	if _, ok := set[conn.id]; ok {
		return false
	}
	set[conn.id] = conn
	return true
}

// Leave removes a connection from a channel, dropping the channel when
// it empties. Returns false if the connection was not a member.
func (cs *Channels) Leave(ch ChannelID, connID string) bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	set, ok := cs.members[ch]
	if !ok {
		return false
	}
	if _, ok := set[connID]; !ok {
		return false
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(cs.members, ch)
	}
	return true
}

// LeaveAll removes a connection from every channel it belongs to and
// returns the channels it left.
func (cs *Channels) LeaveAll(connID string) []ChannelID {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	var left []ChannelID
	for ch, set := range cs.members {
		if _, ok := set[connID]; !ok {
			continue
		}
		delete(set, connID)
		if len(set) == 0 {
			delete(cs.members, ch)
		}
		left = append(left, ch)
	}
	return left
}

// Contains reports whether a connection is a member of a channel.
func (cs *Channels) Contains(ch ChannelID, connID string) bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	_, ok := cs.members[ch][connID]
	return ok
}

// Members returns a snapshot of the channel's connections.
func (cs *Channels) Members(ch ChannelID) []*Conn {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	set := cs.members[ch]
	out := make([]*Conn, 0, len(set))
	for _, conn := range set {
		out = append(out, conn)
	}
	return out
}

// Broadcast delivers an encoded frame to every member of the channel
// except excludeConnID. Returns the number of recipients.
func (cs *Channels) Broadcast(ch ChannelID, data []byte, excludeConnID string) int {
	sent := 0
	for _, conn := range cs.Members(ch) {
		if conn.id == excludeConnID {
			continue
		}
		conn.enqueue(data)
		sent++
	}
	return sent
}

// Count returns the number of active channels.
func (cs *Channels) Count() int {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return len(cs.members)
}

// snapshot returns per-channel membership counts for stats.
func (cs *Channels) snapshot() map[ChannelID]int {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	out := make(map[ChannelID]int, len(cs.members))
	for ch, set := range cs.members {
		out[ch] = len(set)
	}
	return out
}
