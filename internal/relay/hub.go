package relay

import (
	"context"
	"sync"
	"time"

	"github.com/markb/chatlite/internal/log"
	"github.com/markb/chatlite/internal/observability"
	"github.com/markb/chatlite/internal/store"
)

// Hub is the connection lifecycle controller. It owns every live Conn
// and orchestrates the registries: presence, channel membership, typing
// state, matchmaking, and rate limiting. Each registry guards its own
// state; the hub never exposes one component's internals to another.
type Hub struct {
	mu          sync.RWMutex
	connections map[string]*Conn // connID -> conn

	presence *Presence
	channels *Channels
	matcher  *Matchmaker
	limiter  *RateLimiter

	typingMu sync.Mutex
	typing   *typingState

	store   store.Store
	metrics *observability.Metrics
	cfg     Config
	ctx     context.Context
}

// HubStats is a point-in-time snapshot of relay state.
type HubStats struct {
	Connections    int            `json:"connections"`
	OnlineUsers    int            `json:"online_users"`
	Channels       int            `json:"channels"`
	TypingChannels int            `json:"typing_channels"`
	QueueDepth     int            `json:"queue_depth"`
	ActivePairs    int            `json:"active_pairs"`
	ChannelDetails []ChannelStats `json:"channel_details"`
}

// ChannelStats describes one active channel.
type ChannelStats struct {
	Channel string `json:"channel"`
	Members int    `json:"members"`
}

// NewHub creates a Hub backed by the given store. metrics may be nil.
func NewHub(st store.Store, cfg Config, metrics *observability.Metrics) *Hub {
	return &Hub{
		connections: make(map[string]*Conn),
		presence:    newPresence(),
		channels:    newChannels(),
		matcher:     newMatchmaker(),
		limiter:     newRateLimiter(cfg.SendInterval),
		typing:      newTypingState(),
		store:       st,
		metrics:     metrics,
		cfg:         cfg,
		ctx:         context.Background(),
	}
}

// Connect registers an authenticated connection: the user's presence
// entry is created or extended, status is set online, and the change is
// persisted and broadcast to friends. In-memory state commits first;
// storage failures are logged, never rolled back into registries.
func (h *Hub) Connect(conn *Conn) {
	h.mu.Lock()
	h.connections[conn.id] = conn
	h.mu.Unlock()

	userID := conn.UserID()
	first := h.presence.Register(userID, conn.id)
	h.presence.SetStatus(userID, StatusOnline)
	h.metrics.ConnOpened(h.ctx)

	log.Debug("relay: connected", "conn_id", conn.id, "user_id", userID, "first_device", first)
	h.publishStatus(userID, StatusOnline)
}

// Disconnect unwinds every registry membership for a connection. It is
// idempotent: a second call for the same ID is a no-op.
func (h *Hub) Disconnect(connID string) {
	h.mu.Lock()
	conn, ok := h.connections[connID]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.connections, connID)
	h.mu.Unlock()

	userID := conn.UserID()

	// Channel memberships, with leave broadcasts for the rooms the
	// connection was in.
	for _, ch := range h.channels.LeaveAll(connID) {
		h.broadcastMembership(ch, EventUserLeft, userID, "")
	}

	// Typing indicators: losing the last device synthesizes a stop-typing
	// for every channel the user was typing on. While other devices stay
	// connected the user's typing marks are left alone.
	if len(h.presence.ConnIDs(userID)) <= 1 {
		h.typingMu.Lock()
		purged := h.typing.purgeUser(userID)
		h.typingMu.Unlock()
		for _, ch := range purged {
			h.broadcastTyping(ch, userID, conn.user.DisplayName, false, connID)
		}
	}

	// Matchmaking: leave the queue and notify an abandoned partner.
	if partner, wasPaired := h.matcher.Teardown(connID); wasPaired {
		h.notifyEnded(partner)
	}

	h.limiter.Forget(connID)

	// Presence last: dropping the final connection flips the user
	// offline, persisted and broadcast best-effort.
	if last := h.presence.Unregister(userID, connID); last {
		h.publishStatus(userID, StatusOffline)
	}

	h.metrics.ConnClosed(h.ctx)
	log.Debug("relay: disconnected", "conn_id", connID, "user_id", userID)
}

// JoinChannel adds the connection to a room or group channel and tells
// the rest of the channel.
func (h *Hub) JoinChannel(c *Conn, ch ChannelID) {
	if ch.Kind() == KindPrivate {
		// Private delivery goes through presence, not membership.
		return
	}
	if !h.channels.Join(ch, c) {
		return
	}
	h.broadcastMembership(ch, EventUserJoined, c.UserID(), c.id)
	log.Debug("relay: joined channel", "conn_id", c.id, "channel", ch.String())
}

// LeaveChannel removes the connection from a channel and tells the
// remaining members.
func (h *Hub) LeaveChannel(c *Conn, ch ChannelID) {
	if !h.channels.Leave(ch, c.id) {
		return
	}
	h.broadcastMembership(ch, EventUserLeft, c.UserID(), "")
	log.Debug("relay: left channel", "conn_id", c.id, "channel", ch.String())
}

// UpdateStatus applies an explicit status change. Invisible transitions
// are kept out of friend broadcasts: the user looks offline to others
// while staying reachable for direct messages.
func (h *Hub) UpdateStatus(c *Conn, st Status) {
	if !st.Valid() {
		log.Debug("relay: invalid status", "conn_id", c.id, "status", string(st))
		return
	}
	if !h.presence.SetStatus(c.UserID(), st) {
		return
	}
	h.publishStatus(c.UserID(), st)
}

// publishStatus persists a status change and fans it out to online
// friends. Both halves are best-effort: failures are logged and
// swallowed so presence bookkeeping never blocks teardown.
func (h *Hub) publishStatus(userID string, st Status) {
	now := time.Now().UTC()
	if err := h.store.UpdatePresence(h.ctx, userID, string(st), now); err != nil {
		log.Warn("relay: persist status", "user_id", userID, "status", string(st), "error", err.Error())
	}

	if st == StatusInvisible {
		return
	}

	friends, err := h.store.FriendIDs(h.ctx, userID)
	if err != nil {
		log.Warn("relay: load friends for status broadcast", "user_id", userID, "error", err.Error())
		return
	}
	if len(friends) == 0 {
		return
	}

	data, err := encodeEvent(EventFriendStatus, friendStatusPayload{
		UserID:   userID,
		Status:   string(st),
		LastSeen: now,
	})
	if err != nil {
		log.Error("relay: encode status broadcast", "error", err.Error())
		return
	}
	for _, friendID := range friends {
		// Friends with no open connection are skipped, not queued.
		for _, conn := range h.userConns(friendID) {
			conn.enqueue(data)
		}
	}
}

// broadcastMembership tells a channel that a user joined or left. The
// acting connection is excluded so a join never echoes back to the
// joiner.
func (h *Hub) broadcastMembership(ch ChannelID, event, userID, excludeConnID string) {
	p := membershipPayload{UserID: userID}
	switch ch.Kind() {
	case KindGroup:
		p.GroupID = ch.Key()
	default:
		p.RoomID = ch.Key()
	}
	data, err := encodeEvent(event, p)
	if err != nil {
		log.Error("relay: encode membership event", "error", err.Error())
		return
	}
	h.channels.Broadcast(ch, data, excludeConnID)
}

// conn returns a live connection by ID.
func (h *Hub) conn(connID string) (*Conn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.connections[connID]
	return c, ok
}

// alive reports whether a connection ID is still registered.
func (h *Hub) alive(connID string) bool {
	_, ok := h.conn(connID)
	return ok
}

// userConns returns every live connection of a user, for multi-device
// fan-out.
func (h *Hub) userConns(userID string) []*Conn {
	ids := h.presence.ConnIDs(userID)
	if len(ids) == 0 {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns := make([]*Conn, 0, len(ids))
	for _, id := range ids {
		if c, ok := h.connections[id]; ok {
			conns = append(conns, c)
		}
	}
	return conns
}

// Presence exposes the presence registry (read paths only).
func (h *Hub) Presence() *Presence { return h.presence }

// Stats returns a snapshot of relay state.
func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	connCount := len(h.connections)
	h.mu.RUnlock()

	h.typingMu.Lock()
	typingCount := h.typing.count()
	h.typingMu.Unlock()

	stats := HubStats{
		Connections:    connCount,
		OnlineUsers:    h.presence.OnlineCount(),
		TypingChannels: typingCount,
		QueueDepth:     h.matcher.QueueLen(),
		ActivePairs:    h.matcher.PairedCount(),
	}
	members := h.channels.snapshot()
	stats.Channels = len(members)
	stats.ChannelDetails = make([]ChannelStats, 0, len(members))
	for ch, n := range members {
		stats.ChannelDetails = append(stats.ChannelDetails, ChannelStats{Channel: ch.String(), Members: n})
	}
	return stats
}

// CloseAll tears down every live connection, used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.connections))
	for _, c := range h.connections {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		c.Close()
	}
}
