package relay

import (
	"github.com/markb/chatlite/internal/log"
)

// Typing tracks which users are currently typing on each channel.
// Entries are removed on explicit stop events; disconnect cleanup is
// authoritative so indicators can never stick.
type typingState struct {
	channels map[ChannelID]map[string]struct{} // channel -> userID set
}

func newTypingState() *typingState {
	return &typingState{channels: make(map[ChannelID]map[string]struct{})}
}

// start marks a user as typing. Returns false if already marked.
func (t *typingState) start(ch ChannelID, userID string) bool {
	set := t.channels[ch]
	if set == nil {
		set = make(map[string]struct{})
		t.channels[ch] = set
	}
	if _, ok := set[userID]; ok {
		return false
	}
	set[userID] = struct{}{}
	return true
}

// stop clears a user's typing mark. Returns false if not marked.
func (t *typingState) stop(ch ChannelID, userID string) bool {
	set, ok := t.channels[ch]
	if !ok {
		return false
	}
	if _, ok := set[userID]; !ok {
		return false
	}
	delete(set, userID)
	if len(set) == 0 {
		delete(t.channels, ch)
	}
	return true
}

// purgeUser clears the user from every channel and returns the channels
// that were affected.
func (t *typingState) purgeUser(userID string) []ChannelID {
	var purged []ChannelID
	for ch, set := range t.channels {
		if _, ok := set[userID]; !ok {
			continue
		}
		delete(set, userID)
		if len(set) == 0 {
			delete(t.channels, ch)
		}
		purged = append(purged, ch)
	}
	return purged
}

// typingUsers returns the users currently typing on a channel.
func (t *typingState) typingUsers(ch ChannelID) []string {
	set := t.channels[ch]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

func (t *typingState) count() int {
	return len(t.channels)
}

// SetTyping handles typing:start and typing:stop for a connection. Room
// and group channels require membership; unknown channels are dropped.
func (h *Hub) SetTyping(c *Conn, ch ChannelID, isTyping bool) {
	if ch.Kind() != KindPrivate && !h.channels.Contains(ch, c.id) {
		log.Debug("relay: typing on channel without membership", "conn_id", c.id, "channel", ch.String())
		return
	}

	h.typingMu.Lock()
	var changed bool
	if isTyping {
		changed = h.typing.start(ch, c.UserID())
	} else {
		changed = h.typing.stop(ch, c.UserID())
	}
	h.typingMu.Unlock()

	if !changed {
		return
	}
	h.broadcastTyping(ch, c.UserID(), c.user.DisplayName, isTyping, c.id)
}

// broadcastTyping fans a typing indicator out to the channel. Private
// channels have no membership entry, so delivery goes through the peer's
// presence connections (plus the typist's other devices).
func (h *Hub) broadcastTyping(ch ChannelID, userID, displayName string, isTyping bool, excludeConnID string) {
	data, err := encodeEvent(EventTypingIndicator, typingIndicatorPayload{
		UserID:      userID,
		DisplayName: displayName,
		IsTyping:    isTyping,
		RoomKey:     ch.String(),
	})
	if err != nil {
		log.Error("relay: encode typing indicator", "error", err.Error())
		return
	}

	if ch.Kind() == KindPrivate {
		peer, ok := ch.otherUser(userID)
		if !ok {
			return
		}
		for _, conn := range h.userConns(peer) {
			conn.enqueue(data)
		}
		for _, conn := range h.userConns(userID) {
			if conn.id != excludeConnID {
				conn.enqueue(data)
			}
		}
		return
	}

	h.channels.Broadcast(ch, data, excludeConnID)
}
