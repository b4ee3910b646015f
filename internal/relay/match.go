package relay

import (
	"sync"
	"time"

	"github.com/markb/chatlite/internal/log"
)

// Matchmaker pairs waiting connections two at a time for anonymous
// one-on-one chat. Invariant: a connection ID appears in at most one of
// the queue and the pairing map.
type Matchmaker struct {
	mu     sync.Mutex
	queue  []string          // waiting connection IDs, oldest first
	paired map[string]string // connID -> partner connID
}

func newMatchmaker() *Matchmaker {
	return &Matchmaker{paired: make(map[string]string)}
}

// Enqueue adds a connection to the back of the queue. An existing
// pairing is torn down first and the old partner returned so the caller
// can notify it; a stale queue entry for the same connection is removed
// (re-enqueueing is idempotent).
func (m *Matchmaker) Enqueue(connID string) (oldPartner string, hadPartner bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if partner, ok := m.paired[connID]; ok {
		delete(m.paired, connID)
		delete(m.paired, partner)
		oldPartner, hadPartner = partner, true
	}
	m.removeLocked(connID)
	m.queue = append(m.queue, connID)
	return oldPartner, hadPartner
}

// PairNext drains the queue, pairing the two oldest live connections at
// a time. Stale entries are discarded, never re-inserted; a live
// connection left without a partner stays at the front of the queue.
func (m *Matchmaker) PairNext(alive func(string) bool) [][2]string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var pairs [][2]string
	pending := ""
	for len(m.queue) > 0 {
		id := m.queue[0]
		m.queue = m.queue[1:]
		if !alive(id) {
			continue
		}
		if pending == "" {
			pending = id
			continue
		}
		m.paired[pending] = id
		m.paired[id] = pending
		pairs = append(pairs, [2]string{pending, id})
		pending = ""
	}
	if pending != "" {
		m.queue = append([]string{pending}, m.queue...)
	}
	return pairs
}

// Teardown removes a connection from the queue and, if paired, breaks
// the pairing in both directions. Returns the former partner so the
// caller can notify it.
func (m *Matchmaker) Teardown(connID string) (partner string, wasPaired bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.removeLocked(connID)
	if p, ok := m.paired[connID]; ok {
		delete(m.paired, connID)
		delete(m.paired, p)
		return p, true
	}
	return "", false
}

// Partner returns the connection's current partner, if paired.
func (m *Matchmaker) Partner(connID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.paired[connID]
	return p, ok
}

// QueueLen returns the number of waiting connections.
func (m *Matchmaker) QueueLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// PairedCount returns the number of active pairings.
func (m *Matchmaker) PairedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.paired) / 2
}

func (m *Matchmaker) removeLocked(connID string) {
	for i, id := range m.queue {
		if id == connID {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			return
		}
	}
}

// StartMatch handles random:start and random:next: any existing pairing
// is ended (the old partner is told), the connection is queued, and the
// queue is drained for new pairs.
func (h *Hub) StartMatch(c *Conn) {
	if oldPartner, had := h.matcher.Enqueue(c.id); had {
		h.notifyEnded(oldPartner)
	}
	c.Send(EventRandomQueued, nil)
	h.drainMatches()
}

// drainMatches pairs queued connections and notifies both sides with
// the partner's public identity.
func (h *Hub) drainMatches() {
	for _, pair := range h.matcher.PairNext(h.alive) {
		h.deliverMatch(pair)
	}
}

func (h *Hub) deliverMatch(pair [2]string) {
	a, okA := h.conn(pair[0])
	b, okB := h.conn(pair[1])
	if !okA || !okB {
		// Raced with a disconnect between the liveness check and now.
		// If the disconnect already tore the pairing down it also
		// notified the survivor, so only notify when this Teardown is
		// the one that removed the pairing.
		if _, removed := h.matcher.Teardown(pair[0]); removed {
			if okA {
				h.notifyEnded(a.id)
			}
			if okB {
				h.notifyEnded(b.id)
			}
		}
		return
	}
	a.Send(EventRandomMatched, matchedPayload{Partner: partnerInfo{
		UserID:      b.UserID(),
		DisplayName: b.user.DisplayName,
		AvatarURL:   b.user.AvatarURL,
	}})
	b.Send(EventRandomMatched, matchedPayload{Partner: partnerInfo{
		UserID:      a.UserID(),
		DisplayName: a.user.DisplayName,
		AvatarURL:   a.user.AvatarURL,
	}})
	h.metrics.MatchMade(h.ctx)
}

// SendRandom relays an ephemeral message within a matchmaking pair:
// rate-limited, sanitized, echoed to the sender, forwarded to the
// partner, never persisted.
func (h *Hub) SendRandom(c *Conn, text string) {
	if !h.limiter.Allow(c.id) {
		return
	}
	text, ok := sanitizeText(text, h.cfg.MaxMessageLen)
	if !ok {
		return
	}
	partnerID, ok := h.matcher.Partner(c.id)
	if !ok {
		log.Debug("relay: random message while unpaired", "conn_id", c.id)
		return
	}
	partner, ok := h.conn(partnerID)
	if !ok {
		// Partner vanished; treat like a disconnect.
		h.matcher.Teardown(c.id)
		h.notifyEnded(c.id)
		return
	}

	data, err := encodeEvent(EventRandomMessage, randomChatPayload{
		FromUserID: c.UserID(),
		Text:       text,
		SentAt:     time.Now().UTC(),
	})
	if err != nil {
		log.Error("relay: encode random message", "error", err.Error())
		return
	}
	c.enqueue(data)
	partner.enqueue(data)
	h.metrics.MessageRelayed(h.ctx, "random")
}

// notifyEnded sends random:ended to a connection if it is still live.
func (h *Hub) notifyEnded(connID string) {
	if conn, ok := h.conn(connID); ok {
		conn.Send(EventRandomEnded, nil)
	}
}
